package app

import "serotonyl.ru/referral-ledger/internal/db/postgres"

// Migrations — схема леджера. SQL встроен в код для упрощения деплоя.
var Migrations = []postgres.Migration{
	{Version: 1, Name: "referrals", SQL: migration001Referrals},
	{Version: 2, Name: "commission_transactions", SQL: migration002Commissions},
	{Version: 3, Name: "user_commission_balances", SQL: migration003Balances},
	{Version: 4, Name: "withdrawal_requests", SQL: migration004Withdrawals},
	{Version: 5, Name: "subscriptions", SQL: migration005Subscriptions},
}

var migration001Referrals = `
CREATE TABLE IF NOT EXISTS referrals (
    id UUID PRIMARY KEY,
    referrer_id UUID NOT NULL,
    referred_user_id UUID,
    referral_code VARCHAR(64) NOT NULL,
    referred_email VARCHAR(320),
    status VARCHAR(20) NOT NULL DEFAULT 'pending'
        CHECK (status IN ('pending', 'signed_up', 'subscribed', 'eligible', 'expired', 'rewarded')),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    referred_subscribed_at TIMESTAMPTZ,
    reward_eligible_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_referrals_referrer_id ON referrals(referrer_id);
CREATE INDEX IF NOT EXISTS idx_referrals_referred_user_id ON referrals(referred_user_id);
`

var migration002Commissions = `
CREATE TABLE IF NOT EXISTS commission_transactions (
    id UUID PRIMARY KEY,
    beneficiary_id UUID NOT NULL,
    referral_id UUID NOT NULL REFERENCES referrals(id),
    referred_user_id UUID NOT NULL,
    amount NUMERIC(18,2) NOT NULL CHECK (amount > 0),
    currency CHAR(3) NOT NULL,
    commission_rate NUMERIC(5,4) NOT NULL,
    source_payment_amount NUMERIC(18,2) NOT NULL,
    status VARCHAR(20) NOT NULL DEFAULT 'pending'
        CHECK (status IN ('pending', 'available', 'cancelled', 'paid')),
    eligible_at TIMESTAMPTZ NOT NULL,
    available_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT commission_transactions_referral_id_key UNIQUE (referral_id)
);
CREATE INDEX IF NOT EXISTS idx_commissions_beneficiary ON commission_transactions(beneficiary_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_commissions_due ON commission_transactions(eligible_at) WHERE status = 'pending';
`

var migration003Balances = `
CREATE TABLE IF NOT EXISTS user_commission_balances (
    user_id UUID PRIMARY KEY,
    currency CHAR(3) NOT NULL,
    pending_balance NUMERIC(18,2) NOT NULL DEFAULT 0 CHECK (pending_balance >= 0),
    available_balance NUMERIC(18,2) NOT NULL DEFAULT 0 CHECK (available_balance >= 0),
    total_earned NUMERIC(18,2) NOT NULL DEFAULT 0 CHECK (total_earned >= 0),
    total_withdrawn NUMERIC(18,2) NOT NULL DEFAULT 0 CHECK (total_withdrawn >= 0),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

var migration004Withdrawals = `
CREATE TABLE IF NOT EXISTS withdrawal_requests (
    id UUID PRIMARY KEY,
    user_id UUID NOT NULL,
    amount NUMERIC(18,2) NOT NULL CHECK (amount > 0),
    currency CHAR(3) NOT NULL,
    status VARCHAR(20) NOT NULL DEFAULT 'pending'
        CHECK (status IN ('pending', 'approved', 'rejected', 'paid')),
    payout_key_type VARCHAR(16) NOT NULL,
    payout_key VARCHAR(140) NOT NULL,
    payout_holder_name VARCHAR(200) NOT NULL,
    admin_notes TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    processed_at TIMESTAMPTZ,
    paid_at TIMESTAMPTZ
);
CREATE UNIQUE INDEX IF NOT EXISTS withdrawal_requests_one_pending
    ON withdrawal_requests(user_id) WHERE status = 'pending';
CREATE INDEX IF NOT EXISTS idx_withdrawals_user ON withdrawal_requests(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_withdrawals_status ON withdrawal_requests(status, created_at);
`

// Таблицей subscriptions владеет модуль биллинга; создаём её только
// для окружений, где биллинг ещё не развёрнут.
var migration005Subscriptions = `
CREATE TABLE IF NOT EXISTS subscriptions (
    id UUID PRIMARY KEY,
    user_id UUID NOT NULL,
    plan VARCHAR(32) NOT NULL,
    status VARCHAR(20) NOT NULL,
    current_period_end TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_subscriptions_user_id ON subscriptions(user_id);
`
