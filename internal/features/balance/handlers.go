// Package balance — handlers.go обрабатывает GET-запросы /api/v1/me/*.
package balance

import (
	"net/http"

	"serotonyl.ru/referral-ledger/internal/common"
	"serotonyl.ru/referral-ledger/internal/ledger"
	"serotonyl.ru/referral-ledger/internal/server/middleware"
)

// Handler обрабатывает запросы баланса.
type Handler struct {
	service *Service
}

// NewHandler создаёт обработчик баланса.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// HandleBalance — GET /api/v1/me/balance.
func (h *Handler) HandleBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		common.WriteError(w, common.ErrUnauthorized)
		return
	}
	b, err := h.service.GetBalance(r.Context(), userID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, b)
}

// HandleTransactions — GET /api/v1/me/transactions?limit=.
func (h *Handler) HandleTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		common.WriteError(w, common.ErrUnauthorized)
		return
	}
	limit, err := common.QueryInt(r, "limit")
	if err != nil {
		common.WriteBadRequest(w, "invalid limit")
		return
	}
	list, err := h.service.GetRecentTransactions(r.Context(), userID, limit)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if list == nil {
		list = []*ledger.CommissionTransaction{}
	}
	common.WriteJSON(w, http.StatusOK, list)
}

// HandleWithdrawals — GET /api/v1/me/withdrawals?limit=.
func (h *Handler) HandleWithdrawals(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		common.WriteError(w, common.ErrUnauthorized)
		return
	}
	limit, err := common.QueryInt(r, "limit")
	if err != nil {
		common.WriteBadRequest(w, "invalid limit")
		return
	}
	list, err := h.service.GetRecentWithdrawals(r.Context(), userID, limit)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if list == nil {
		list = []*ledger.WithdrawalRequest{}
	}
	common.WriteJSON(w, http.StatusOK, list)
}
