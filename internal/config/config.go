// Package config загружает конфигурацию сервиса из переменных окружения.
// Используется envconfig для маппинга переменных окружения на поля структуры.
package config

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"

	"serotonyl.ru/referral-ledger/internal/ledger"
)

// Хранилища леджера.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config содержит ВСЕ настройки приложения.
type Config struct {
	// --- Database ---
	// В Docker внутри контейнера "localhost" почти всегда неправильно.
	// Дефолт ставим "postgres" (имя сервиса в docker-compose), а для локалки переопределяй DB_HOST=localhost.
	DBHost     string `envconfig:"DB_HOST" default:"postgres"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"ledger"`
	DBPassword string `envconfig:"DB_PASSWORD"`
	DBName     string `envconfig:"DB_NAME" default:"referral_ledger"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns int32  `envconfig:"DB_MAX_CONNS" default:"25"`
	DBMinConns int32  `envconfig:"DB_MIN_CONNS" default:"5"`

	// --- Application ---
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	AppLogLevel string `envconfig:"APP_LOG_LEVEL" default:"debug"`
	AppTimezone string `envconfig:"APP_TIMEZONE" default:"America/Sao_Paulo"`
	// memory — только для локального запуска, данные живут до рестарта
	LedgerStore string `envconfig:"LEDGER_STORE" default:"postgres"`

	// --- HTTP ---
	HTTPAddr           string   `envconfig:"HTTP_ADDR" default:":8080"`
	HTTPAllowedOrigins []string `envconfig:"HTTP_ALLOWED_ORIGINS"`
	// Адреса или подсети обратных прокси. Без них X-Forwarded-For игнорируется.
	HTTPTrustedProxies  []string      `envconfig:"HTTP_TRUSTED_PROXIES"`
	HTTPReadTimeout     time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"10s"`
	HTTPWriteTimeout    time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"30s"`
	HTTPShutdownTimeout time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"15s"`

	// --- Auth ---
	JWTSecret     string `envconfig:"JWT_SECRET" required:"true"`
	AdminKeyHash  string `envconfig:"ADMIN_KEY_HASH" required:"true"`
	WebhookSecret string `envconfig:"WEBHOOK_SECRET" required:"true"`

	// --- Ledger ---
	CommissionRate decimal.Decimal `envconfig:"COMMISSION_RATE" default:"0.50"`
	HoldPeriodDays int             `envconfig:"HOLD_PERIOD_DAYS" default:"30"`
	LedgerCurrency string          `envconfig:"LEDGER_CURRENCY" default:"BRL"`

	// --- Sweeper ---
	SweepEnabled     bool   `envconfig:"SWEEP_ENABLED" default:"true"`
	SweepSchedule    string `envconfig:"SWEEP_SCHEDULE" default:"0 * * * *"`
	SweepBatchSize   int    `envconfig:"SWEEP_BATCH_SIZE" default:"100"`
	SweepConcurrency int    `envconfig:"SWEEP_CONCURRENCY" default:"4"`

	// --- Telegram (уведомления администраторам, необязательно) ---
	TelegramBotToken        string  `envconfig:"TELEGRAM_BOT_TOKEN"`
	TelegramAdminChatIDsRaw string  `envconfig:"TELEGRAM_ADMIN_CHAT_IDS"`
	TelegramAdminChatIDs    []int64 `envconfig:"-"` // заполним вручную

	// --- Rate Limiting ---
	RateLimitRequests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"60"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`
}

// DatabaseDSN возвращает строку подключения к PostgreSQL в формате DSN.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// IsProduction — окружение production.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// LedgerSettings — параметры начисления, которые получают сервисы.
func (c *Config) LedgerSettings() ledger.Settings {
	return ledger.Settings{
		CommissionRate: c.CommissionRate,
		HoldPeriod:     time.Duration(c.HoldPeriodDays) * 24 * time.Hour,
		Currency:       strings.ToUpper(c.LedgerCurrency),
	}
}

// Location — часовой пояс расписания. Неизвестная зона заменяется на UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.AppTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) Validate() error {
	switch c.LedgerStore {
	case StorePostgres:
		if c.DBPassword == "" {
			return fmt.Errorf("DB_PASSWORD не задан")
		}
	case StoreMemory:
		if c.IsProduction() {
			return fmt.Errorf("LEDGER_STORE=memory запрещён в production")
		}
	default:
		return fmt.Errorf("неизвестный LEDGER_STORE %q", c.LedgerStore)
	}
	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("некорректные DB_MIN_CONNS/DB_MAX_CONNS")
	}
	if !c.CommissionRate.IsPositive() || c.CommissionRate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("COMMISSION_RATE должен быть в (0, 1]")
	}
	if c.HoldPeriodDays < 0 {
		return fmt.Errorf("HOLD_PERIOD_DAYS не может быть отрицательным")
	}
	if len(strings.TrimSpace(c.LedgerCurrency)) != 3 {
		return fmt.Errorf("LEDGER_CURRENCY должен быть кодом ISO 4217")
	}
	if _, err := cron.ParseStandard(c.SweepSchedule); err != nil {
		return fmt.Errorf("некорректный SWEEP_SCHEDULE %q: %w", c.SweepSchedule, err)
	}
	if c.SweepBatchSize <= 0 || c.SweepConcurrency <= 0 {
		return fmt.Errorf("SWEEP_BATCH_SIZE и SWEEP_CONCURRENCY должны быть > 0")
	}
	if c.RateLimitRequests <= 0 || c.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS и RATE_LIMIT_WINDOW должны быть > 0")
	}
	for _, p := range c.HTTPTrustedProxies {
		p = strings.TrimSpace(p)
		if _, err := netip.ParsePrefix(p); err == nil {
			continue
		}
		if _, err := netip.ParseAddr(p); err != nil {
			return fmt.Errorf("некорректный HTTP_TRUSTED_PROXIES %q", p)
		}
	}
	if len(c.JWTSecret) < 32 && c.IsProduction() {
		return fmt.Errorf("JWT_SECRET должен быть не короче 32 символов")
	}
	if !strings.HasPrefix(c.AdminKeyHash, "$argon2id$") {
		return fmt.Errorf("ADMIN_KEY_HASH должен быть хешем Argon2id (scripts/generate_hash.go)")
	}
	if c.TelegramBotToken != "" && len(c.TelegramAdminChatIDs) == 0 {
		return fmt.Errorf("TELEGRAM_ADMIN_CHAT_IDS не задан при TELEGRAM_BOT_TOKEN")
	}
	return nil
}

// Load читает переменные окружения и заполняет структуру Config.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("не удалось загрузить конфигурацию: %w", err)
	}

	ids, err := parseInt64CSV(cfg.TelegramAdminChatIDsRaw)
	if err != nil {
		return nil, fmt.Errorf("TELEGRAM_ADMIN_CHAT_IDS parse: %w", err)
	}
	cfg.TelegramAdminChatIDs = ids

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parseInt64CSV(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad int64 %q: %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}
