// Package app инициализирует все компоненты приложения.
// app.go — точка сборки: создаёт хранилище, сервисы, обработчики,
// HTTP-сервер и планировщик свипа.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"serotonyl.ru/referral-ledger/internal/config"
	"serotonyl.ru/referral-ledger/internal/db/postgres"
	"serotonyl.ru/referral-ledger/internal/features/balance"
	"serotonyl.ru/referral-ledger/internal/features/commission"
	"serotonyl.ru/referral-ledger/internal/features/withdrawal"
	"serotonyl.ru/referral-ledger/internal/jobs"
	"serotonyl.ru/referral-ledger/internal/ledger"
	"serotonyl.ru/referral-ledger/internal/ledger/memory"
	ledgerpg "serotonyl.ru/referral-ledger/internal/ledger/postgres"
	"serotonyl.ru/referral-ledger/internal/notify"
	"serotonyl.ru/referral-ledger/internal/server"
	"serotonyl.ru/referral-ledger/internal/server/middleware"
	"serotonyl.ru/referral-ledger/internal/subscription"
)

// App содержит все компоненты приложения.
type App struct {
	Server    *http.Server
	Scheduler *jobs.Scheduler // nil, если SWEEP_ENABLED=false
	DB        *pgxpool.Pool   // nil для LEDGER_STORE=memory

	cfg     *config.Config
	limiter *middleware.RateLimiter
}

// New создаёт и инициализирует приложение.
// Порядок инициализации важен — компоненты зависят друг от друга.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{cfg: cfg}

	// === 1. Хранилище и проверка подписок ===
	var (
		store   ledger.Store
		checker subscription.Checker
	)
	switch cfg.LedgerStore {
	case config.StoreMemory:
		log.Warn("LEDGER_STORE=memory: данные не сохраняются, все подписки считаются активными")
		store = memory.New()
		checker = subscription.CheckerFunc(func(context.Context, uuid.UUID) (bool, error) {
			return true, nil
		})
	default:
		pool, err := postgres.NewPool(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
		}
		if err := postgres.RunMigrations(ctx, pool, Migrations); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ошибка миграций: %w", err)
		}
		a.DB = pool
		store = ledgerpg.NewStore(pool)
		checker = subscription.NewPostgresChecker(pool)
	}

	// === 2. Уведомления администраторам ===
	var notifier notify.Notifier = notify.Noop{}
	if cfg.TelegramBotToken != "" {
		tg, err := notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramAdminChatIDs)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("ошибка создания Telegram-бота: %w", err)
		}
		notifier = tg
		log.WithField("chats", len(cfg.TelegramAdminChatIDs)).Info("Уведомления в Telegram включены")
	}

	// === 3. Сервисы ===
	settings := cfg.LedgerSettings()
	recorder := commission.NewRecorder(store, settings)
	sweeper := commission.NewSweeper(store, checker, notifier, cfg.SweepBatchSize, cfg.SweepConcurrency)
	manager := withdrawal.NewManager(store, notifier)
	balanceService := balance.NewService(store, settings.Currency)

	// === 4. HTTP ===
	a.limiter = middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow)
	if err := a.limiter.TrustProxies(cfg.HTTPTrustedProxies); err != nil {
		a.Close()
		return nil, fmt.Errorf("HTTP_TRUSTED_PROXIES: %w", err)
	}
	handler := server.NewRouter(
		server.Handlers{
			Balance:    balance.NewHandler(balanceService),
			Withdrawal: withdrawal.NewHandler(manager),
			Commission: commission.NewHandler(recorder, sweeper),
		},
		server.Auth{
			JWTSecret:     []byte(cfg.JWTSecret),
			AdminKeyHash:  cfg.AdminKeyHash,
			WebhookSecret: cfg.WebhookSecret,
		},
		cfg.HTTPAllowedOrigins,
		a.limiter,
	)
	a.Server = &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      handler,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
	}

	// === 5. Планировщик задач ===
	if cfg.SweepEnabled {
		a.Scheduler = jobs.NewScheduler(sweeper, cfg.SweepSchedule, cfg.Location())
	}

	log.WithFields(log.Fields{
		"store":           cfg.LedgerStore,
		"commission_rate": settings.CommissionRate.String(),
		"hold_period":     settings.HoldPeriod.String(),
		"currency":        settings.Currency,
	}).Info("Приложение собрано")
	return a, nil
}

// Run запускает HTTP-сервер и планировщик и блокируется до отмены ctx.
// После отмены сервер дорабатывает текущие запросы в пределах HTTP_SHUTDOWN_TIMEOUT.
func (a *App) Run(ctx context.Context) error {
	if a.Scheduler != nil {
		if err := a.Scheduler.Start(ctx); err != nil {
			return err
		}
		defer a.Scheduler.Stop()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("addr", a.Server.Addr).Info("HTTP-сервер запущен")
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTPShutdownTimeout)
		defer cancel()
		if err := a.Server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("ошибка остановки HTTP-сервера: %w", err)
		}
		log.Info("HTTP-сервер остановлен")
		return nil
	})
	return g.Wait()
}

// Close освобождает ресурсы: лимитер и пул БД.
func (a *App) Close() {
	if a.limiter != nil {
		a.limiter.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
