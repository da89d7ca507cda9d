// Package commission — service.go начисляет комиссию за оплату приглашённого.
// Комиссия сначала попадает в pending-баланс и ждёт окончания периода удержания.
package commission

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/referral-ledger/internal/common"
	"serotonyl.ru/referral-ledger/internal/ledger"
)

// Recorder превращает успешный платёж приглашённого в комиссию пригласившему.
type Recorder struct {
	store    ledger.Store
	settings ledger.Settings
	now      func() time.Time
}

// NewRecorder создаёт сервис начисления комиссий.
func NewRecorder(store ledger.Store, settings ledger.Settings) *Recorder {
	return &Recorder{store: store, settings: settings, now: time.Now}
}

// RecordCommission начисляет комиссию по рефералу за платёж paymentAmount.
//
// Всё выполняется в одной транзакции: реферал блокируется, поэтому
// повторный вебхук по тому же рефералу получит ErrConflict, а не вторую комиссию.
func (r *Recorder) RecordCommission(ctx context.Context, referralID uuid.UUID, paymentAmount decimal.Decimal, currency string) (*ledger.CommissionTransaction, error) {
	if !paymentAmount.IsPositive() {
		return nil, common.ErrInvalidAmount
	}
	amount := r.settings.CommissionFor(paymentAmount)
	if !amount.IsPositive() {
		return nil, common.ErrInvalidAmount
	}
	currency = r.settings.NormalizeCurrency(currency)

	now := r.now().UTC()
	var created *ledger.CommissionTransaction

	err := r.store.InTx(ctx, func(tx ledger.Tx) error {
		ref, err := tx.LockReferral(ctx, referralID)
		if err != nil {
			return err
		}
		if (ref.Status != ledger.ReferralPending && ref.Status != ledger.ReferralSignedUp) || ref.ReferredUserID == nil {
			return fmt.Errorf("реферал %s в статусе %s: %w", ref.ID, ref.Status, common.ErrConflict)
		}

		bal, err := tx.LockOrCreateBalance(ctx, ref.ReferrerID, currency)
		if err != nil {
			return err
		}
		if bal.Currency != currency {
			return fmt.Errorf("баланс в %s, платёж в %s: %w", bal.Currency, currency, common.ErrCurrencyMismatch)
		}

		c := &ledger.CommissionTransaction{
			ID:                  uuid.New(),
			BeneficiaryID:       ref.ReferrerID,
			ReferralID:          ref.ID,
			ReferredUserID:      *ref.ReferredUserID,
			Amount:              amount,
			Currency:            currency,
			CommissionRate:      r.settings.CommissionRate,
			SourcePaymentAmount: paymentAmount,
			Status:              ledger.CommissionPending,
			EligibleAt:          now.Add(r.settings.HoldPeriod),
			CreatedAt:           now,
		}
		if err := tx.InsertCommission(ctx, c); err != nil {
			return err
		}

		if err := bal.Apply(ledger.OpRecordCommission, ledger.Delta{Pending: amount}); err != nil {
			return err
		}
		if err := tx.SaveBalance(ctx, bal); err != nil {
			return err
		}

		ref.Status = ledger.ReferralSubscribed
		ref.ReferredSubscribedAt = &now
		ref.RewardEligibleAt = &c.EligibleAt
		if err := tx.UpdateReferral(ctx, ref); err != nil {
			return err
		}

		created = c
		return nil
	})
	if err != nil {
		ledger.LogViolation(err)
		return nil, err
	}

	log.WithFields(log.Fields{
		"referral_id": referralID,
		"beneficiary": created.BeneficiaryID,
		"amount":      created.Amount.StringFixed(2),
		"eligible_at": created.EligibleAt,
	}).Info("Комиссия начислена")

	return created, nil
}
