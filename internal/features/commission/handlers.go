// Package commission — handlers.go обрабатывает HTTP-запросы:
// вебхук оплаты и ручной запуск перевода комиссий.
package commission

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/referral-ledger/internal/common"
)

// Handler обрабатывает HTTP-запросы комиссий.
type Handler struct {
	recorder *Recorder
	sweeper  *Sweeper
}

// NewHandler создаёт обработчик комиссий.
func NewHandler(recorder *Recorder, sweeper *Sweeper) *Handler {
	return &Handler{recorder: recorder, sweeper: sweeper}
}

type paymentEvent struct {
	ReferralID string          `json:"referral_id"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
}

// HandlePaymentWebhook — POST /webhooks/payments.
// Повторная доставка того же события возвращает 409.
func (h *Handler) HandlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	var ev paymentEvent
	if err := common.DecodeJSON(w, r, &ev); err != nil {
		common.WriteBadRequest(w, "invalid JSON")
		return
	}
	referralID, err := uuid.Parse(ev.ReferralID)
	if err != nil {
		common.WriteBadRequest(w, "invalid referral_id")
		return
	}

	c, err := h.recorder.RecordCommission(r.Context(), referralID, ev.Amount, ev.Currency)
	if err != nil {
		log.WithError(err).WithField("referral_id", referralID).Info("Вебхук оплаты не обработан")
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusCreated, c)
}

// HandleSweep — POST /api/v1/admin/sweeps, внеочередной проход.
func (h *Handler) HandleSweep(w http.ResponseWriter, r *http.Request) {
	res, err := h.sweeper.SweepEligibleCommissions(r.Context(), time.Now().UTC())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, res)
}
