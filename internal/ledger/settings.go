package ledger

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Значения по умолчанию, если конфиг их не переопределяет.
const (
	DefaultHoldPeriodDays = 30
	DefaultCurrency       = "BRL"
)

// DefaultCommissionRate — доля от платежа приглашённого (50%).
var DefaultCommissionRate = decimal.RequireFromString("0.50")

// Settings — параметры начисления комиссий.
// Передаются в сервисы при создании, глобальных констант в логике нет.
type Settings struct {
	CommissionRate decimal.Decimal // Доля от суммы платежа
	HoldPeriod     time.Duration   // Сколько комиссия остаётся в pending
	Currency       string          // Валюта баланса по умолчанию
}

// DefaultSettings возвращает параметры по умолчанию: 50%, 30 дней, BRL.
func DefaultSettings() Settings {
	return Settings{
		CommissionRate: DefaultCommissionRate,
		HoldPeriod:     DefaultHoldPeriodDays * 24 * time.Hour,
		Currency:       DefaultCurrency,
	}
}

// CommissionFor считает комиссию с платежа, округляя до копеек.
func (s Settings) CommissionFor(paymentAmount decimal.Decimal) decimal.Decimal {
	return paymentAmount.Mul(s.CommissionRate).Round(2)
}

// NormalizeCurrency приводит код валюты к верхнему регистру,
// пустой код заменяется валютой по умолчанию.
func (s Settings) NormalizeCurrency(currency string) string {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return s.Currency
	}
	return currency
}
