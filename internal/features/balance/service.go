// Package balance — service.go отдаёт пользователю его баланс комиссий,
// последние начисления и заявки на вывод. Только чтение, без кеша.
package balance

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"serotonyl.ru/referral-ledger/internal/common"
	"serotonyl.ru/referral-ledger/internal/ledger"
)

// Лимиты списков.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Service — чтение баланса и истории.
type Service struct {
	store    ledger.Store
	currency string
}

// NewService создаёт сервис. currency — валюта нулевого баланса
// для пользователей без начислений.
func NewService(store ledger.Store, currency string) *Service {
	return &Service{store: store, currency: currency}
}

// GetBalance возвращает баланс; у пользователя без начислений он нулевой.
func (s *Service) GetBalance(ctx context.Context, userID uuid.UUID) (*ledger.Balance, error) {
	b, err := s.store.GetBalance(ctx, userID)
	if errors.Is(err, common.ErrNotFound) {
		return ledger.NewBalance(userID, s.currency), nil
	}
	return b, err
}

// GetRecentTransactions — последние комиссии пользователя, новые первыми.
func (s *Service) GetRecentTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]*ledger.CommissionTransaction, error) {
	return s.store.ListCommissions(ctx, userID, ClampLimit(limit))
}

// GetRecentWithdrawals — последние заявки пользователя, новые первыми.
func (s *Service) GetRecentWithdrawals(ctx context.Context, userID uuid.UUID, limit int) ([]*ledger.WithdrawalRequest, error) {
	return s.store.ListWithdrawals(ctx, userID, ClampLimit(limit))
}

// ClampLimit приводит limit к [1, MaxLimit]; 0 и меньше — DefaultLimit.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}
