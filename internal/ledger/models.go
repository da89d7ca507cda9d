// Package ledger — реферальный леджер: комиссии, балансы и заявки на вывод.
// models.go описывает сущности и их статусы.
//
// Статусы — закрытые перечисления. Все переходы проверяются через
// CanTransitionTo, поэтому, например, одобрить уже выплаченную заявку нельзя.
package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReferralStatus — статус реферала.
type ReferralStatus string

const (
	ReferralPending    ReferralStatus = "pending"    // Приглашение создано
	ReferralSignedUp   ReferralStatus = "signed_up"  // Приглашённый зарегистрировался
	ReferralSubscribed ReferralStatus = "subscribed" // Приглашённый оплатил подписку
	ReferralEligible   ReferralStatus = "eligible"   // Комиссия прошла период удержания
	ReferralExpired    ReferralStatus = "expired"    // Подписка отменена до конца удержания
	ReferralRewarded   ReferralStatus = "rewarded"   // Вознаграждение выплачено
)

// CanTransitionTo проверяет, разрешён ли переход статуса реферала.
func (s ReferralStatus) CanTransitionTo(next ReferralStatus) bool {
	switch s {
	case ReferralPending:
		return next == ReferralSignedUp || next == ReferralSubscribed
	case ReferralSignedUp:
		return next == ReferralSubscribed
	case ReferralSubscribed:
		return next == ReferralEligible || next == ReferralExpired
	case ReferralEligible:
		return next == ReferralRewarded
	case ReferralExpired, ReferralRewarded:
		return false
	}
	return false
}

// Valid сообщает, известен ли статус.
func (s ReferralStatus) Valid() bool {
	switch s {
	case ReferralPending, ReferralSignedUp, ReferralSubscribed,
		ReferralEligible, ReferralExpired, ReferralRewarded:
		return true
	}
	return false
}

// CommissionStatus — статус комиссионной транзакции.
type CommissionStatus string

const (
	CommissionPending   CommissionStatus = "pending"   // В периоде удержания
	CommissionAvailable CommissionStatus = "available" // Переведена в доступный баланс
	CommissionCancelled CommissionStatus = "cancelled" // Отменена (подписка не активна)
	CommissionPaid      CommissionStatus = "paid"      // Выплачена (внешний процесс)
)

// CanTransitionTo проверяет, разрешён ли переход статуса комиссии.
func (s CommissionStatus) CanTransitionTo(next CommissionStatus) bool {
	switch s {
	case CommissionPending:
		return next == CommissionAvailable || next == CommissionCancelled
	case CommissionAvailable:
		return next == CommissionPaid
	case CommissionCancelled, CommissionPaid:
		return false
	}
	return false
}

// WithdrawalStatus — статус заявки на вывод.
type WithdrawalStatus string

const (
	WithdrawalPending  WithdrawalStatus = "pending"  // Ждёт решения администратора
	WithdrawalApproved WithdrawalStatus = "approved" // Одобрена, ждёт перевода
	WithdrawalRejected WithdrawalStatus = "rejected" // Отклонена, деньги вернулись на баланс
	WithdrawalPaid     WithdrawalStatus = "paid"     // Деньги отправлены
)

// CanTransitionTo проверяет, разрешён ли переход статуса заявки.
func (s WithdrawalStatus) CanTransitionTo(next WithdrawalStatus) bool {
	switch s {
	case WithdrawalPending:
		return next == WithdrawalApproved || next == WithdrawalRejected
	case WithdrawalApproved:
		return next == WithdrawalPaid
	case WithdrawalRejected, WithdrawalPaid:
		return false
	}
	return false
}

// Valid сообщает, известен ли статус.
func (s WithdrawalStatus) Valid() bool {
	switch s {
	case WithdrawalPending, WithdrawalApproved, WithdrawalRejected, WithdrawalPaid:
		return true
	}
	return false
}

// InFlight — заявка ещё держит деньги вне доступного баланса и вне total_withdrawn.
func (s WithdrawalStatus) InFlight() bool {
	return s == WithdrawalPending || s == WithdrawalApproved
}

// Referral — одно приглашение, приведшее пользователя.
// Создаётся внешним модулем атрибуции при регистрации.
type Referral struct {
	ID                   uuid.UUID      `db:"id" json:"id"`
	ReferrerID           uuid.UUID      `db:"referrer_id" json:"referrer_id"`
	ReferredUserID       *uuid.UUID     `db:"referred_user_id" json:"referred_user_id,omitempty"`
	ReferralCode         string         `db:"referral_code" json:"referral_code"`
	ReferredEmail        *string        `db:"referred_email" json:"referred_email,omitempty"`
	Status               ReferralStatus `db:"status" json:"status"`
	CreatedAt            time.Time      `db:"created_at" json:"created_at"`
	ReferredSubscribedAt *time.Time     `db:"referred_subscribed_at" json:"referred_subscribed_at,omitempty"`
	RewardEligibleAt     *time.Time     `db:"reward_eligible_at" json:"reward_eligible_at,omitempty"`
}

// CommissionTransaction — одна комиссия, привязанная ровно к одному рефералу.
// Amount считается один раз при создании и больше не пересчитывается.
type CommissionTransaction struct {
	ID                  uuid.UUID        `db:"id" json:"id"`
	BeneficiaryID       uuid.UUID        `db:"beneficiary_id" json:"beneficiary_id"`
	ReferralID          uuid.UUID        `db:"referral_id" json:"referral_id"`
	ReferredUserID      uuid.UUID        `db:"referred_user_id" json:"referred_user_id"`
	Amount              decimal.Decimal  `db:"amount" json:"amount"`
	Currency            string           `db:"currency" json:"currency"`
	CommissionRate      decimal.Decimal  `db:"commission_rate" json:"commission_rate"`
	SourcePaymentAmount decimal.Decimal  `db:"source_payment_amount" json:"source_payment_amount"`
	Status              CommissionStatus `db:"status" json:"status"`
	EligibleAt          time.Time        `db:"eligible_at" json:"eligible_at"`
	AvailableAt         *time.Time       `db:"available_at" json:"available_at,omitempty"`
	CreatedAt           time.Time        `db:"created_at" json:"created_at"`
}

// Balance — агрегированный баланс одного получателя комиссий (одна строка на пользователя).
// Отдельного «зарезервированного» поля нет: заявка на вывод сразу списывает Available.
type Balance struct {
	UserID         uuid.UUID       `db:"user_id" json:"user_id"`
	Currency       string          `db:"currency" json:"currency"`
	Pending        decimal.Decimal `db:"pending_balance" json:"pending_balance"`
	Available      decimal.Decimal `db:"available_balance" json:"available_balance"`
	TotalEarned    decimal.Decimal `db:"total_earned" json:"total_earned"`
	TotalWithdrawn decimal.Decimal `db:"total_withdrawn" json:"total_withdrawn"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// PayoutKeyType — тип ключа для выплаты.
type PayoutKeyType string

const (
	PayoutKeyTaxID  PayoutKeyType = "tax_id"
	PayoutKeyEmail  PayoutKeyType = "email"
	PayoutKeyPhone  PayoutKeyType = "phone"
	PayoutKeyRandom PayoutKeyType = "random"
)

// PayoutDescriptor — реквизиты, куда отправить деньги.
type PayoutDescriptor struct {
	KeyType    PayoutKeyType `json:"key_type"`
	Key        string        `json:"key"`
	HolderName string        `json:"holder_name"`
}

// WithdrawalRequest — одна попытка вывести деньги.
type WithdrawalRequest struct {
	ID          uuid.UUID        `db:"id" json:"id"`
	UserID      uuid.UUID        `db:"user_id" json:"user_id"`
	Amount      decimal.Decimal  `db:"amount" json:"amount"`
	Currency    string           `db:"currency" json:"currency"`
	Status      WithdrawalStatus `db:"status" json:"status"`
	Payout      PayoutDescriptor `json:"payout"`
	AdminNotes  *string          `db:"admin_notes" json:"admin_notes,omitempty"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
	ProcessedAt *time.Time       `db:"processed_at" json:"processed_at,omitempty"`
	PaidAt      *time.Time       `db:"paid_at" json:"paid_at,omitempty"`
}
