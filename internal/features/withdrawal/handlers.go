// Package withdrawal — handlers.go обрабатывает HTTP-запросы заявок на вывод:
// создание пользователем и решения администратора.
package withdrawal

import (
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"serotonyl.ru/referral-ledger/internal/common"
	"serotonyl.ru/referral-ledger/internal/ledger"
	"serotonyl.ru/referral-ledger/internal/server/middleware"
)

// Handler обрабатывает HTTP-запросы заявок.
type Handler struct {
	manager *Manager
}

// NewHandler создаёт обработчик заявок.
func NewHandler(manager *Manager) *Handler {
	return &Handler{manager: manager}
}

type createRequest struct {
	Amount decimal.Decimal         `json:"amount"`
	Payout ledger.PayoutDescriptor `json:"payout"`
}

type decisionRequest struct {
	AdminNotes string `json:"admin_notes"`
}

// HandleCreate — POST /api/v1/me/withdrawals.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		common.WriteError(w, common.ErrUnauthorized)
		return
	}

	var req createRequest
	if err := common.DecodeJSON(w, r, &req); err != nil {
		common.WriteBadRequest(w, "invalid JSON")
		return
	}

	created, err := h.manager.RequestWithdrawal(r.Context(), userID, req.Amount, req.Payout)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusCreated, created)
}

// HandleList — GET /api/v1/admin/withdrawals?status=&limit=.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	status := ledger.WithdrawalStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = ledger.WithdrawalPending
	}
	if !status.Valid() {
		common.WriteBadRequest(w, "invalid status")
		return
	}
	limit, err := common.QueryInt(r, "limit")
	if err != nil {
		common.WriteBadRequest(w, "invalid limit")
		return
	}

	list, err := h.manager.ListByStatus(r.Context(), status, limit)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if list == nil {
		list = []*ledger.WithdrawalRequest{}
	}
	common.WriteJSON(w, http.StatusOK, list)
}

// HandleApprove — POST /api/v1/admin/withdrawals/{id}/approve.
func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	id, notes, ok := parseDecision(w, r)
	if !ok {
		return
	}
	h.respond(w)(h.manager.Approve(r.Context(), id, notes))
}

// HandleReject — POST /api/v1/admin/withdrawals/{id}/reject.
func (h *Handler) HandleReject(w http.ResponseWriter, r *http.Request) {
	id, notes, ok := parseDecision(w, r)
	if !ok {
		return
	}
	h.respond(w)(h.manager.Reject(r.Context(), id, notes))
}

// HandleMarkPaid — POST /api/v1/admin/withdrawals/{id}/paid.
func (h *Handler) HandleMarkPaid(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		common.WriteBadRequest(w, "invalid withdrawal id")
		return
	}
	h.respond(w)(h.manager.MarkPaid(r.Context(), id))
}

func (h *Handler) respond(w http.ResponseWriter) func(*ledger.WithdrawalRequest, error) {
	return func(req *ledger.WithdrawalRequest, err error) {
		if err != nil {
			common.WriteError(w, err)
			return
		}
		common.WriteJSON(w, http.StatusOK, req)
	}
}

// parseDecision читает id из пути и необязательное тело с admin_notes.
func parseDecision(w http.ResponseWriter, r *http.Request) (uuid.UUID, string, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		common.WriteBadRequest(w, "invalid withdrawal id")
		return uuid.Nil, "", false
	}

	var req decisionRequest
	if err := common.DecodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		common.WriteBadRequest(w, "invalid JSON")
		return uuid.Nil, "", false
	}
	return id, req.AdminNotes, true
}
