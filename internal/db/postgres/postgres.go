// Package postgres управляет подключением к базе данных PostgreSQL.
// Используется пул соединений pgxpool: леджер и проверка подписок
// работают через один пул из нескольких горутин свипера и HTTP-обработчиков.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/referral-ledger/internal/config"
)

// NewPool создаёт новый пул соединений к PostgreSQL и проверяет,
// что база отвечает.
//
// Пример:
//
//	pool, err := postgres.NewPool(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer pool.Close()
func NewPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга DSN: %w", err)
	}

	poolConfig.MaxConns = cfg.DBMaxConns           // Максимум соединений
	poolConfig.MinConns = cfg.DBMinConns           // Минимум (держать открытыми)
	poolConfig.MaxConnLifetime = 1 * time.Hour     // Время жизни одного соединения
	poolConfig.MaxConnIdleTime = 30 * time.Minute  // Время простоя до закрытия
	poolConfig.HealthCheckPeriod = 1 * time.Minute // Проверка здоровья соединений

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания пула: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("база данных недоступна: %w", err)
	}

	log.WithFields(log.Fields{
		"host":      cfg.DBHost,
		"db":        cfg.DBName,
		"max_conns": cfg.DBMaxConns,
	}).Info("Подключение к PostgreSQL установлено")
	return pool, nil
}

// Migration — одна версия схемы.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// RunMigrations создаёт таблицу schema_migrations и применяет
// миграции по порядку. Уже применённые версии пропускаются.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, migrations []Migration) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("не удалось получить соединение: %w", err)
	}
	_, err = conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ DEFAULT NOW()
		)
	`)
	conn.Release()
	if err != nil {
		return fmt.Errorf("ошибка создания таблицы миграций: %w", err)
	}

	for _, m := range migrations {
		applied, err := ExecMigrationSQL(ctx, pool, m.Version, m.SQL)
		if err != nil {
			return fmt.Errorf("миграция %d (%s): %w", m.Version, m.Name, err)
		}
		if applied {
			log.Infof("Миграция %d (%s) применена", m.Version, m.Name)
		}
	}
	return nil
}
