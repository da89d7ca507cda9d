// Package common — format.go форматирует суммы и числительные
// для сообщений администраторам.
package common

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Pluralize возвращает правильную форму слова для числа n.
//
// Правила русского языка:
//   - n%10==1 И n%100!=11 → one (1, 21, 31, 101, ...)
//   - n%10 в [2,3,4] И n%100 НЕ в [12,13,14] → few (2, 3, 4, 22, 23, ...)
//   - Остальные случаи → many (0, 5-20, 25-30, 100, ...)
//
// Пример: Pluralize(3, "комиссия", "комиссии", "комиссий") → "комиссии"
func Pluralize(n int, one, few, many string) string {
	if n < 0 {
		n = -n
	}
	lastDigit := n % 10
	lastTwoDigits := n % 100

	if lastDigit == 1 && lastTwoDigits != 11 {
		return one
	}
	if lastDigit >= 2 && lastDigit <= 4 && (lastTwoDigits < 12 || lastTwoDigits > 14) {
		return few
	}
	return many
}

// FormatNumber форматирует число с разделителями тысяч (пробелами).
// Пример: FormatNumber(2350) → "2 350"
func FormatNumber(n int64) string {
	if n < 0 {
		return "-" + FormatNumber(-n)
	}
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("%s %03d", FormatNumber(n/1000), n%1000)
}

// FormatMoney — сумма с копейками, разделителями тысяч и кодом валюты.
// Пример: FormatMoney(1234.5, "BRL") → "1 234.50 BRL"
func FormatMoney(amount decimal.Decimal, currency string) string {
	rounded := amount.Abs().Round(2)
	_, cents, _ := strings.Cut(rounded.StringFixed(2), ".")

	sign := ""
	if amount.IsNegative() && !rounded.IsZero() {
		sign = "-"
	}
	return fmt.Sprintf("%s%s.%s %s", sign, FormatNumber(rounded.IntPart()), cents, currency)
}
