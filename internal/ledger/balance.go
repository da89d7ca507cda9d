package ledger

import (
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/referral-ledger/internal/common"
)

// Названия операций для логов сверки.
const (
	OpRecordCommission   = "record_commission"
	OpPromoteCommission  = "promote_commission"
	OpCancelCommission   = "cancel_commission"
	OpRequestWithdrawal  = "request_withdrawal"
	OpRejectWithdrawal   = "reject_withdrawal"
	OpMarkWithdrawalPaid = "mark_withdrawal_paid"
)

// Delta — изменение полей баланса за одну операцию.
// Нулевые поля не меняют баланс.
type Delta struct {
	Pending        decimal.Decimal
	Available      decimal.Decimal
	TotalEarned    decimal.Decimal
	TotalWithdrawn decimal.Decimal
}

// NewBalance возвращает пустой баланс, который создаётся при первой комиссии.
func NewBalance(userID uuid.UUID, currency string) *Balance {
	return &Balance{
		UserID:         userID,
		Currency:       currency,
		Pending:        decimal.Zero,
		Available:      decimal.Zero,
		TotalEarned:    decimal.Zero,
		TotalWithdrawn: decimal.Zero,
	}
}

// Snapshot возвращает значения баланса для логов.
func (b *Balance) Snapshot() common.BalanceSnapshot {
	return common.BalanceSnapshot{
		Pending:        b.Pending,
		Available:      b.Available,
		TotalEarned:    b.TotalEarned,
		TotalWithdrawn: b.TotalWithdrawn,
	}
}

// Apply применяет дельту и проверяет инварианты баланса:
//   - pending и available не отрицательны;
//   - total_earned и total_withdrawn не уменьшаются.
//
// Вызывается внутри транзакции, которая держит блокировку строки баланса.
// При нарушении возвращает *common.InvariantViolationError, баланс не меняется.
func (b *Balance) Apply(op string, d Delta) error {
	next := *b
	next.Pending = b.Pending.Add(d.Pending)
	next.Available = b.Available.Add(d.Available)
	next.TotalEarned = b.TotalEarned.Add(d.TotalEarned)
	next.TotalWithdrawn = b.TotalWithdrawn.Add(d.TotalWithdrawn)

	var reason string
	switch {
	case next.Pending.IsNegative():
		reason = "pending balance would become negative"
	case next.Available.IsNegative():
		reason = "available balance would become negative"
	case d.TotalEarned.IsNegative():
		reason = "total earned cannot decrease"
	case d.TotalWithdrawn.IsNegative():
		reason = "total withdrawn cannot decrease"
	}
	if reason != "" {
		return &common.InvariantViolationError{
			UserID:    b.UserID,
			Operation: op,
			Reason:    reason,
			Before:    b.Snapshot(),
			After:     next.Snapshot(),
		}
	}

	*b = next
	return nil
}

// LogViolation пишет в лог нарушение инварианта, если err его содержит.
// Такие записи разбираются вручную при сверке.
func LogViolation(err error) {
	var inv *common.InvariantViolationError
	if !errors.As(err, &inv) {
		return
	}
	log.WithFields(log.Fields{
		"user_id":   inv.UserID,
		"operation": inv.Operation,
		"reason":    inv.Reason,
		"before":    inv.Before.String(),
		"after":     inv.After.String(),
	}).Error("Нарушен инвариант баланса, операция отменена")
}
