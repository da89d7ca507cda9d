// Package notify — уведомления администраторов в Telegram.
// Уведомления отправляются по принципу best effort: ошибка отправки
// логируется и никогда не откатывает операцию леджера.
package notify

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/referral-ledger/internal/common"
	"serotonyl.ru/referral-ledger/internal/ledger"
)

// SweepSummary — итог одного прохода по комиссиям.
type SweepSummary struct {
	Promoted  int
	Cancelled int
	Skipped   int
	Failed    int
}

// Notifier сообщает администраторам о событиях леджера.
type Notifier interface {
	WithdrawalRequested(ctx context.Context, w *ledger.WithdrawalRequest)
	SweepFinished(ctx context.Context, s SweepSummary)
}

// Noop ничего не отправляет (Telegram не настроен).
type Noop struct{}

func (Noop) WithdrawalRequested(context.Context, *ledger.WithdrawalRequest) {}
func (Noop) SweepFinished(context.Context, SweepSummary)                    {}

// sender — часть API бота, которая нужна уведомлениям.
type sender interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
}

// Telegram рассылает уведомления в чаты администраторов.
type Telegram struct {
	bot     sender
	chatIDs []int64
}

// NewTelegram создаёт бота только для исходящих сообщений (без polling).
func NewTelegram(token string, chatIDs []int64) (*Telegram, error) {
	bot, err := telego.NewBot(token, telego.WithDiscardLogger())
	if err != nil {
		return nil, fmt.Errorf("ошибка создания Telegram-бота: %w", err)
	}
	return &Telegram{bot: bot, chatIDs: chatIDs}, nil
}

// WithdrawalRequested — новая заявка ждёт решения.
func (t *Telegram) WithdrawalRequested(ctx context.Context, w *ledger.WithdrawalRequest) {
	text := fmt.Sprintf(
		"💸 <b>Новая заявка на вывод</b>\n\n"+
			"Сумма: <b>%s</b>\n"+
			"Пользователь: <code>%s</code>\n"+
			"Получатель: %s\n"+
			"Реквизиты: %s <code>%s</code>\n"+
			"Заявка: <code>%s</code>",
		html.EscapeString(common.FormatMoney(w.Amount, w.Currency)),
		w.UserID,
		html.EscapeString(w.Payout.HolderName),
		w.Payout.KeyType, html.EscapeString(maskKey(w.Payout.Key)),
		w.ID,
	)
	t.broadcast(ctx, text)
}

// SweepFinished сообщает итог прохода, если что-то изменилось.
func (t *Telegram) SweepFinished(ctx context.Context, s SweepSummary) {
	if s.Promoted == 0 && s.Cancelled == 0 && s.Failed == 0 {
		return
	}
	text := fmt.Sprintf(
		"📊 <b>Перевод комиссий</b>\n\n"+
			"✅ Доступно к выводу: %d %s\n"+
			"❌ Отменено: %d %s\n"+
			"⏭ Пропущено: %d\n"+
			"⚠️ Ошибок: %d",
		s.Promoted, commissions(s.Promoted),
		s.Cancelled, commissions(s.Cancelled),
		s.Skipped, s.Failed,
	)
	t.broadcast(ctx, text)
}

func (t *Telegram) broadcast(ctx context.Context, text string) {
	for _, chatID := range t.chatIDs {
		msg := tu.Message(tu.ID(chatID), text).WithParseMode(telego.ModeHTML)
		if _, err := t.bot.SendMessage(ctx, msg); err != nil {
			log.WithError(err).WithField("chat_id", chatID).Warn("Не удалось отправить уведомление администратору")
		}
	}
}

func commissions(n int) string {
	return common.Pluralize(n, "комиссия", "комиссии", "комиссий")
}

// maskKey оставляет видимыми только последние 4 символа ключа выплаты.
func maskKey(key string) string {
	r := []rune(key)
	if len(r) <= 4 {
		return key
	}
	return strings.Repeat("•", len(r)-4) + string(r[len(r)-4:])
}
