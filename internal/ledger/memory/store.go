// Package memory — хранилище леджера в памяти процесса.
// Используется в тестах и при локальном запуске без PostgreSQL (LEDGER_STORE=memory).
//
// Транзакции сериализуются общим мьютексом. Внутри InTx работа идёт с копией
// состояния, которая подменяет текущее только при успешном завершении —
// так ошибка в середине операции ничего не оставляет после себя.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"serotonyl.ru/referral-ledger/internal/common"
	"serotonyl.ru/referral-ledger/internal/ledger"
)

type state struct {
	referrals   map[uuid.UUID]ledger.Referral
	commissions map[uuid.UUID]ledger.CommissionTransaction
	balances    map[uuid.UUID]ledger.Balance
	withdrawals map[uuid.UUID]ledger.WithdrawalRequest

	// Порядок вставки, чтобы списки были стабильными при равных created_at
	commissionOrder []uuid.UUID
	withdrawalOrder []uuid.UUID
}

func newState() *state {
	return &state{
		referrals:   make(map[uuid.UUID]ledger.Referral),
		commissions: make(map[uuid.UUID]ledger.CommissionTransaction),
		balances:    make(map[uuid.UUID]ledger.Balance),
		withdrawals: make(map[uuid.UUID]ledger.WithdrawalRequest),
	}
}

func (s *state) clone() *state {
	c := &state{
		referrals:       make(map[uuid.UUID]ledger.Referral, len(s.referrals)),
		commissions:     make(map[uuid.UUID]ledger.CommissionTransaction, len(s.commissions)),
		balances:        make(map[uuid.UUID]ledger.Balance, len(s.balances)),
		withdrawals:     make(map[uuid.UUID]ledger.WithdrawalRequest, len(s.withdrawals)),
		commissionOrder: slices.Clone(s.commissionOrder),
		withdrawalOrder: slices.Clone(s.withdrawalOrder),
	}
	for k, v := range s.referrals {
		c.referrals[k] = v
	}
	for k, v := range s.commissions {
		c.commissions[k] = v
	}
	for k, v := range s.balances {
		c.balances[k] = v
	}
	for k, v := range s.withdrawals {
		c.withdrawals[k] = v
	}
	return c
}

// Store хранит леджер в памяти.
type Store struct {
	mu    sync.Mutex
	state *state
}

// New создаёт пустое хранилище.
func New() *Store {
	return &Store{state: newState()}
}

var _ ledger.Store = (*Store)(nil)

// InTx выполняет fn на копии состояния и фиксирует её, если fn не вернула ошибку.
func (s *Store) InTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(&tx{st: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

// CreateReferral сохраняет реферал, созданный модулем атрибуции.
func (s *Store) CreateReferral(_ context.Context, r *ledger.Referral) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.state.referrals[r.ID]; ok {
		return fmt.Errorf("реферал %s уже существует: %w", r.ID, common.ErrConflict)
	}
	s.state.referrals[r.ID] = *r
	return nil
}

func (s *Store) GetReferral(_ context.Context, id uuid.UUID) (*ledger.Referral, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.state.referrals[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &r, nil
}

func (s *Store) GetBalance(_ context.Context, userID uuid.UUID) (*ledger.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.state.balances[userID]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &b, nil
}

func (s *Store) ListCommissions(_ context.Context, beneficiaryID uuid.UUID, limit int) ([]*ledger.CommissionTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*ledger.CommissionTransaction
	for _, id := range s.state.commissionOrder {
		c := s.state.commissions[id]
		if c.BeneficiaryID == beneficiaryID {
			out = append(out, &c)
		}
	}
	slices.Reverse(out)
	slices.SortStableFunc(out, func(a, b *ledger.CommissionTransaction) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return truncate(out, limit), nil
}

func (s *Store) ListDueCommissions(_ context.Context, now time.Time, after ledger.DueCursor, limit int) ([]*ledger.CommissionTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*ledger.CommissionTransaction
	for _, id := range s.state.commissionOrder {
		c := s.state.commissions[id]
		if c.Status == ledger.CommissionPending && !c.EligibleAt.After(now) && after.Precedes(&c) {
			out = append(out, &c)
		}
	}
	slices.SortFunc(out, ledger.CompareDue)
	return truncate(out, limit), nil
}

func (s *Store) ListWithdrawals(_ context.Context, userID uuid.UUID, limit int) ([]*ledger.WithdrawalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*ledger.WithdrawalRequest
	for _, id := range s.state.withdrawalOrder {
		w := s.state.withdrawals[id]
		if w.UserID == userID {
			out = append(out, &w)
		}
	}
	slices.Reverse(out)
	slices.SortStableFunc(out, func(a, b *ledger.WithdrawalRequest) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return truncate(out, limit), nil
}

func (s *Store) ListWithdrawalsByStatus(_ context.Context, status ledger.WithdrawalStatus, limit int) ([]*ledger.WithdrawalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*ledger.WithdrawalRequest
	for _, id := range s.state.withdrawalOrder {
		w := s.state.withdrawals[id]
		if w.Status == status {
			out = append(out, &w)
		}
	}
	slices.SortStableFunc(out, func(a, b *ledger.WithdrawalRequest) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return truncate(out, limit), nil
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

// tx работает с рабочей копией состояния. Блокировки строк не нужны:
// весь InTx выполняется под мьютексом хранилища.
type tx struct {
	st *state
}

func (t *tx) LockReferral(_ context.Context, id uuid.UUID) (*ledger.Referral, error) {
	r, ok := t.st.referrals[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &r, nil
}

func (t *tx) UpdateReferral(_ context.Context, r *ledger.Referral) error {
	if _, ok := t.st.referrals[r.ID]; !ok {
		return common.ErrNotFound
	}
	t.st.referrals[r.ID] = *r
	return nil
}

func (t *tx) InsertCommission(_ context.Context, c *ledger.CommissionTransaction) error {
	if _, ok := t.st.commissions[c.ID]; ok {
		return fmt.Errorf("комиссия %s уже существует: %w", c.ID, common.ErrConflict)
	}
	for _, existing := range t.st.commissions {
		if existing.ReferralID == c.ReferralID {
			return fmt.Errorf("комиссия по рефералу %s уже есть: %w", c.ReferralID, common.ErrConflict)
		}
	}
	t.st.commissions[c.ID] = *c
	t.st.commissionOrder = append(t.st.commissionOrder, c.ID)
	return nil
}

func (t *tx) LockCommission(_ context.Context, id uuid.UUID) (*ledger.CommissionTransaction, error) {
	c, ok := t.st.commissions[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &c, nil
}

func (t *tx) UpdateCommission(_ context.Context, c *ledger.CommissionTransaction) error {
	if _, ok := t.st.commissions[c.ID]; !ok {
		return common.ErrNotFound
	}
	t.st.commissions[c.ID] = *c
	return nil
}

func (t *tx) LockBalance(_ context.Context, userID uuid.UUID) (*ledger.Balance, error) {
	b, ok := t.st.balances[userID]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &b, nil
}

func (t *tx) LockOrCreateBalance(_ context.Context, userID uuid.UUID, currency string) (*ledger.Balance, error) {
	if b, ok := t.st.balances[userID]; ok {
		return &b, nil
	}
	b := ledger.NewBalance(userID, currency)
	now := time.Now()
	b.CreatedAt, b.UpdatedAt = now, now
	t.st.balances[userID] = *b
	return b, nil
}

func (t *tx) SaveBalance(_ context.Context, b *ledger.Balance) error {
	if _, ok := t.st.balances[b.UserID]; !ok {
		return common.ErrNotFound
	}
	b.UpdatedAt = time.Now()
	t.st.balances[b.UserID] = *b
	return nil
}

func (t *tx) HasPendingWithdrawal(_ context.Context, userID uuid.UUID) (bool, error) {
	for _, w := range t.st.withdrawals {
		if w.UserID == userID && w.Status == ledger.WithdrawalPending {
			return true, nil
		}
	}
	return false, nil
}

func (t *tx) InsertWithdrawal(ctx context.Context, w *ledger.WithdrawalRequest) error {
	if w.Status == ledger.WithdrawalPending {
		exists, _ := t.HasPendingWithdrawal(ctx, w.UserID)
		if exists {
			return common.ErrDuplicatePendingRequest
		}
	}
	t.st.withdrawals[w.ID] = *w
	t.st.withdrawalOrder = append(t.st.withdrawalOrder, w.ID)
	return nil
}

func (t *tx) LockWithdrawal(_ context.Context, id uuid.UUID) (*ledger.WithdrawalRequest, error) {
	w, ok := t.st.withdrawals[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &w, nil
}

func (t *tx) UpdateWithdrawal(_ context.Context, w *ledger.WithdrawalRequest) error {
	if _, ok := t.st.withdrawals[w.ID]; !ok {
		return common.ErrNotFound
	}
	t.st.withdrawals[w.ID] = *w
	return nil
}
