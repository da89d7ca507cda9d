// Package common — errors.go определяет ошибки, которые используются
// во всех модулях реферального леджера.
// Сервисы возвращают эти ошибки (обёрнутые через %w), а HTTP-слой
// по ним выбирает код ответа и понятное пользователю сообщение.
package common

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Ошибки поиска и состояния
var (
	// ErrNotFound — реферал, заявка или пользователь не найдены
	ErrNotFound = errors.New("not found")
	// ErrConflict — реферал уже обработан (повторный вебхук оплаты)
	ErrConflict = errors.New("referral already processed")
	// ErrInvalidStateTransition — переход из недопустимого статуса
	ErrInvalidStateTransition = errors.New("invalid state transition")
)

// Ошибки валидации (показываются пользователю как есть)
var (
	// ErrInvalidAmount — сумма ноль или отрицательная
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrInsufficientBalance — на доступном балансе меньше, чем запрошено
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrDuplicatePendingRequest — у пользователя уже есть заявка на вывод в обработке
	ErrDuplicatePendingRequest = errors.New("a withdrawal is already in progress")
	// ErrInvalidPayoutDescriptor — некорректные реквизиты для выплаты
	ErrInvalidPayoutDescriptor = errors.New("invalid payout details")
	// ErrAdminNotesRequired — отклонение заявки без комментария администратора
	ErrAdminNotesRequired = errors.New("admin notes are required to reject a withdrawal")
	// ErrCurrencyMismatch — валюта операции не совпадает с валютой баланса
	ErrCurrencyMismatch = errors.New("currency does not match the balance currency")
)

// Ошибки инфраструктуры и доступа
var (
	// ErrDependencyUnavailable — внешний сервис подписок не ответил
	ErrDependencyUnavailable = errors.New("subscription status lookup unavailable")
	// ErrUnauthorized — нет или неверные учётные данные
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvariantViolation — нарушен инвариант баланса (ошибка программы)
	ErrInvariantViolation = errors.New("ledger invariant violation")
)

// IsValidation сообщает, является ли ошибка ошибкой пользовательского ввода.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrInvalidPayoutDescriptor) ||
		errors.Is(err, ErrAdminNotesRequired) ||
		errors.Is(err, ErrCurrencyMismatch)
}

// BalanceSnapshot — значения полей баланса для логов сверки.
type BalanceSnapshot struct {
	Pending        decimal.Decimal
	Available      decimal.Decimal
	TotalEarned    decimal.Decimal
	TotalWithdrawn decimal.Decimal
}

func (s BalanceSnapshot) String() string {
	return fmt.Sprintf("pending=%s available=%s earned=%s withdrawn=%s",
		s.Pending.StringFixed(2), s.Available.StringFixed(2),
		s.TotalEarned.StringFixed(2), s.TotalWithdrawn.StringFixed(2))
}

// InvariantViolationError — попытка оставить баланс в недопустимом состоянии.
// Операция откатывается, запись нужна для ручной сверки.
type InvariantViolationError struct {
	UserID    uuid.UUID
	Operation string
	Reason    string
	Before    BalanceSnapshot
	After     BalanceSnapshot
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("ledger invariant violation: user=%s op=%s: %s (before: %s; after: %s)",
		e.UserID, e.Operation, e.Reason, e.Before, e.After)
}

// Is позволяет проверять ошибку через errors.Is(err, ErrInvariantViolation).
func (e *InvariantViolationError) Is(target error) bool {
	return target == ErrInvariantViolation
}
