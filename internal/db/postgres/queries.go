// Package postgres — вспомогательные функции для работы с БД.
// queries.go содержит применение одной миграции.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// migrationLockKey — ключ advisory-блокировки, чтобы два экземпляра
// сервиса не применяли миграции одновременно.
const migrationLockKey = 7_301_845_112

// ExecMigrationSQL выполняет один SQL-запрос миграции в транзакции.
// Возвращает false, если версия уже была применена.
func ExecMigrationSQL(ctx context.Context, pool *pgxpool.Pool, version int, sql string) (bool, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	// Откатываем транзакцию, если что-то пошло не так
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLockKey); err != nil {
		return false, fmt.Errorf("ошибка блокировки миграций: %w", err)
	}

	var exists bool
	err = tx.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)", version,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки миграции: %w", err)
	}
	if exists {
		return false, nil
	}

	if _, err := tx.Exec(ctx, sql); err != nil {
		return false, fmt.Errorf("ошибка выполнения миграции %d: %w", version, err)
	}

	if _, err := tx.Exec(ctx,
		"INSERT INTO schema_migrations (version) VALUES ($1)", version,
	); err != nil {
		return false, fmt.Errorf("ошибка записи версии миграции: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("ошибка фиксации миграции %d: %w", version, err)
	}
	return true, nil
}
