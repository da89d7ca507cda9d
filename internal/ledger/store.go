package ledger

import (
	"bytes"
	"context"
	"time"

	"github.com/google/uuid"
)

// Store — хранилище леджера.
// Методы верхнего уровня только читают; все изменения идут через InTx,
// где каждая операция видит и меняет строки под блокировкой.
type Store interface {
	// InTx выполняет fn в одной транзакции. Если fn вернула ошибку,
	// все изменения откатываются.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	// CreateReferral сохраняет новый реферал (вызывается модулем атрибуции).
	CreateReferral(ctx context.Context, r *Referral) error
	GetReferral(ctx context.Context, id uuid.UUID) (*Referral, error)

	// GetBalance возвращает баланс или common.ErrNotFound, если строки ещё нет.
	GetBalance(ctx context.Context, userID uuid.UUID) (*Balance, error)
	// ListCommissions — последние комиссии получателя, новые первыми.
	ListCommissions(ctx context.Context, beneficiaryID uuid.UUID, limit int) ([]*CommissionTransaction, error)
	// ListDueCommissions — pending-комиссии с eligible_at <= now, строго после
	// курсора, в порядке (eligible_at, id).
	ListDueCommissions(ctx context.Context, now time.Time, after DueCursor, limit int) ([]*CommissionTransaction, error)
	// ListWithdrawals — последние заявки пользователя, новые первыми.
	ListWithdrawals(ctx context.Context, userID uuid.UUID, limit int) ([]*WithdrawalRequest, error)
	// ListWithdrawalsByStatus — очередь заявок для админки, старые первыми.
	ListWithdrawalsByStatus(ctx context.Context, status WithdrawalStatus, limit int) ([]*WithdrawalRequest, error)
}

// Tx — операции внутри одной транзакции хранилища.
// Lock* возвращают common.ErrNotFound, если строки нет.
type Tx interface {
	LockReferral(ctx context.Context, id uuid.UUID) (*Referral, error)
	UpdateReferral(ctx context.Context, r *Referral) error

	InsertCommission(ctx context.Context, c *CommissionTransaction) error
	LockCommission(ctx context.Context, id uuid.UUID) (*CommissionTransaction, error)
	UpdateCommission(ctx context.Context, c *CommissionTransaction) error

	LockBalance(ctx context.Context, userID uuid.UUID) (*Balance, error)
	// LockOrCreateBalance создаёт нулевой баланс в валюте currency, если его нет.
	LockOrCreateBalance(ctx context.Context, userID uuid.UUID, currency string) (*Balance, error)
	SaveBalance(ctx context.Context, b *Balance) error

	HasPendingWithdrawal(ctx context.Context, userID uuid.UUID) (bool, error)
	// InsertWithdrawal возвращает common.ErrDuplicatePendingRequest,
	// если у пользователя уже есть pending-заявка.
	InsertWithdrawal(ctx context.Context, w *WithdrawalRequest) error
	LockWithdrawal(ctx context.Context, id uuid.UUID) (*WithdrawalRequest, error)
	UpdateWithdrawal(ctx context.Context, w *WithdrawalRequest) error
}

// DueCursor — позиция в очереди созревших комиссий.
// Нулевое значение означает начало очереди.
type DueCursor struct {
	EligibleAt time.Time
	ID         uuid.UUID
}

// CursorAt — курсор сразу за комиссией c.
func CursorAt(c *CommissionTransaction) DueCursor {
	return DueCursor{EligibleAt: c.EligibleAt, ID: c.ID}
}

// IsZero — курсор указывает на начало очереди.
func (k DueCursor) IsZero() bool {
	return k.EligibleAt.IsZero() && k.ID == uuid.Nil
}

// Precedes сообщает, что c стоит в очереди после курсора.
// UUID сравниваются побайтно, как в PostgreSQL.
func (k DueCursor) Precedes(c *CommissionTransaction) bool {
	if k.IsZero() {
		return true
	}
	if cmp := c.EligibleAt.Compare(k.EligibleAt); cmp != 0 {
		return cmp > 0
	}
	return bytes.Compare(c.ID[:], k.ID[:]) > 0
}

// CompareDue упорядочивает комиссии по (eligible_at, id).
func CompareDue(a, b *CommissionTransaction) int {
	if cmp := a.EligibleAt.Compare(b.EligibleAt); cmp != 0 {
		return cmp
	}
	return bytes.Compare(a.ID[:], b.ID[:])
}
