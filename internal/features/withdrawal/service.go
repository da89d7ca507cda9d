// Package withdrawal — service.go управляет заявками на вывод комиссий.
//
// Деньги списываются с доступного баланса сразу при создании заявки.
// Одобрение баланс не меняет, выплата переносит сумму в total_withdrawn,
// отклонение возвращает сумму в доступный баланс.
package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/referral-ledger/internal/common"
	"serotonyl.ru/referral-ledger/internal/ledger"
	"serotonyl.ru/referral-ledger/internal/notify"
)

// Лимиты выборки очереди для админки.
const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// Manager — жизненный цикл заявок на вывод.
type Manager struct {
	store    ledger.Store
	notifier notify.Notifier
	now      func() time.Time
}

// NewManager создаёт сервис заявок. notifier может быть nil.
func NewManager(store ledger.Store, notifier notify.Notifier) *Manager {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &Manager{store: store, notifier: notifier, now: time.Now}
}

// RequestWithdrawal резервирует amount с доступного баланса и создаёт pending-заявку.
// У пользователя может быть только одна pending-заявка.
func (m *Manager) RequestWithdrawal(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, payout ledger.PayoutDescriptor) (*ledger.WithdrawalRequest, error) {
	if !amount.IsPositive() {
		return nil, common.ErrInvalidAmount
	}
	if !amount.Equal(amount.Round(2)) {
		return nil, fmt.Errorf("%w: at most two decimal places", common.ErrInvalidAmount)
	}
	payout = payout.Normalize()
	if err := payout.Validate(); err != nil {
		return nil, err
	}

	var created *ledger.WithdrawalRequest
	err := m.store.InTx(ctx, func(tx ledger.Tx) error {
		bal, err := tx.LockBalance(ctx, userID)
		if err != nil {
			if isNotFound(err) {
				return common.ErrInsufficientBalance
			}
			return err
		}

		pending, err := tx.HasPendingWithdrawal(ctx, userID)
		if err != nil {
			return err
		}
		if pending {
			return common.ErrDuplicatePendingRequest
		}
		if amount.GreaterThan(bal.Available) {
			return common.ErrInsufficientBalance
		}

		if err := bal.Apply(ledger.OpRequestWithdrawal, ledger.Delta{Available: amount.Neg()}); err != nil {
			return err
		}
		if err := tx.SaveBalance(ctx, bal); err != nil {
			return err
		}

		w := &ledger.WithdrawalRequest{
			ID:        uuid.New(),
			UserID:    userID,
			Amount:    amount,
			Currency:  bal.Currency,
			Status:    ledger.WithdrawalPending,
			Payout:    payout,
			CreatedAt: m.now().UTC(),
		}
		if err := tx.InsertWithdrawal(ctx, w); err != nil {
			return err
		}
		created = w
		return nil
	})
	if err != nil {
		ledger.LogViolation(err)
		return nil, err
	}

	log.WithFields(log.Fields{
		"withdrawal_id": created.ID,
		"user_id":       userID,
		"amount":        amount.StringFixed(2),
		"key_type":      payout.KeyType,
	}).Info("Создана заявка на вывод")

	m.notifier.WithdrawalRequested(ctx, created)
	return created, nil
}

// Approve одобряет pending-заявку. Баланс не меняется.
func (m *Manager) Approve(ctx context.Context, requestID uuid.UUID, adminNotes string) (*ledger.WithdrawalRequest, error) {
	return m.transition(ctx, requestID, ledger.WithdrawalApproved, func(tx ledger.Tx, w *ledger.WithdrawalRequest, now time.Time) error {
		w.ProcessedAt = &now
		w.AdminNotes = notesPtr(adminNotes)
		return nil
	})
}

// Reject отклоняет pending-заявку и возвращает сумму в доступный баланс.
// Комментарий администратора обязателен.
func (m *Manager) Reject(ctx context.Context, requestID uuid.UUID, adminNotes string) (*ledger.WithdrawalRequest, error) {
	notes := notesPtr(adminNotes)
	if notes == nil {
		return nil, common.ErrAdminNotesRequired
	}
	return m.transition(ctx, requestID, ledger.WithdrawalRejected, func(tx ledger.Tx, w *ledger.WithdrawalRequest, now time.Time) error {
		w.ProcessedAt = &now
		w.AdminNotes = notes
		return m.adjustBalance(ctx, tx, w.UserID, ledger.OpRejectWithdrawal, ledger.Delta{Available: w.Amount})
	})
}

// MarkPaid отмечает одобренную заявку выплаченной: сумма уходит в total_withdrawn.
func (m *Manager) MarkPaid(ctx context.Context, requestID uuid.UUID) (*ledger.WithdrawalRequest, error) {
	return m.transition(ctx, requestID, ledger.WithdrawalPaid, func(tx ledger.Tx, w *ledger.WithdrawalRequest, now time.Time) error {
		w.PaidAt = &now
		return m.adjustBalance(ctx, tx, w.UserID, ledger.OpMarkWithdrawalPaid, ledger.Delta{TotalWithdrawn: w.Amount})
	})
}

// ListByStatus — очередь заявок для админки, старые первыми.
func (m *Manager) ListByStatus(ctx context.Context, status ledger.WithdrawalStatus, limit int) ([]*ledger.WithdrawalRequest, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("неизвестный статус заявки %q", status)
	}
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}
	return m.store.ListWithdrawalsByStatus(ctx, status, limit)
}

// transition блокирует заявку, проверяет переход статуса и вызывает apply
// в той же транзакции.
func (m *Manager) transition(
	ctx context.Context,
	requestID uuid.UUID,
	next ledger.WithdrawalStatus,
	apply func(tx ledger.Tx, w *ledger.WithdrawalRequest, now time.Time) error,
) (*ledger.WithdrawalRequest, error) {
	now := m.now().UTC()
	var updated *ledger.WithdrawalRequest

	err := m.store.InTx(ctx, func(tx ledger.Tx) error {
		w, err := tx.LockWithdrawal(ctx, requestID)
		if err != nil {
			return err
		}
		if !w.Status.CanTransitionTo(next) {
			return fmt.Errorf("заявка %s: %s → %s: %w", w.ID, w.Status, next, common.ErrInvalidStateTransition)
		}

		w.Status = next
		if err := apply(tx, w, now); err != nil {
			return err
		}
		if err := tx.UpdateWithdrawal(ctx, w); err != nil {
			return err
		}
		updated = w
		return nil
	})
	if err != nil {
		ledger.LogViolation(err)
		return nil, err
	}

	log.WithFields(log.Fields{
		"withdrawal_id": updated.ID,
		"user_id":       updated.UserID,
		"status":        updated.Status,
		"amount":        updated.Amount.StringFixed(2),
	}).Info("Статус заявки на вывод изменён")

	return updated, nil
}

func (m *Manager) adjustBalance(ctx context.Context, tx ledger.Tx, userID uuid.UUID, op string, d ledger.Delta) error {
	bal, err := tx.LockBalance(ctx, userID)
	if err != nil {
		return err
	}
	if err := bal.Apply(op, d); err != nil {
		return err
	}
	return tx.SaveBalance(ctx, bal)
}

func isNotFound(err error) bool {
	return errors.Is(err, common.ErrNotFound)
}

func notesPtr(notes string) *string {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return nil
	}
	return &notes
}
