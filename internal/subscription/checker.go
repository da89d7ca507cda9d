// Package subscription — проверка, активна ли подписка приглашённого пользователя.
// Подписками владеет внешний модуль биллинга; здесь только чтение его таблицы.
package subscription

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Checker отвечает, оплачивает ли пользователь платный план прямо сейчас.
type Checker interface {
	IsActiveSubscriber(ctx context.Context, userID uuid.UUID) (bool, error)
}

// CheckerFunc позволяет использовать обычную функцию как Checker.
type CheckerFunc func(ctx context.Context, userID uuid.UUID) (bool, error)

func (f CheckerFunc) IsActiveSubscriber(ctx context.Context, userID uuid.UUID) (bool, error) {
	return f(ctx, userID)
}

// PostgresChecker читает таблицу subscriptions модуля биллинга.
type PostgresChecker struct {
	db *pgxpool.Pool
}

// NewPostgresChecker создаёт проверку подписок поверх пула БД.
func NewPostgresChecker(db *pgxpool.Pool) *PostgresChecker {
	return &PostgresChecker{db: db}
}

// IsActiveSubscriber — активная платная подписка с неистёкшим периодом.
func (c *PostgresChecker) IsActiveSubscriber(ctx context.Context, userID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM subscriptions
			WHERE user_id = $1
			  AND status = 'active'
			  AND plan <> 'free'
			  AND (current_period_end IS NULL OR current_period_end > NOW())
		)
	`
	var active bool
	if err := c.db.QueryRow(ctx, query, userID).Scan(&active); err != nil {
		return false, fmt.Errorf("ошибка проверки подписки %s: %w", userID, err)
	}
	return active, nil
}
