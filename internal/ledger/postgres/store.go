// Package postgres — хранилище леджера в PostgreSQL.
// Все изменения балансов выполняются в транзакциях БД с блокировкой строк
// (SELECT ... FOR UPDATE), чтобы параллельные операции не теряли обновления.
//
// Правило «не больше одной pending-заявки на пользователя» дополнительно
// закреплено частичным уникальным индексом withdrawal_requests_one_pending.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/referral-ledger/internal/common"
	"serotonyl.ru/referral-ledger/internal/ledger"
)

// Имена ограничений, по которым различаем нарушения уникальности.
const (
	constraintOnePending       = "withdrawal_requests_one_pending"
	constraintCommissionPerRef = "commission_transactions_referral_id_key"
	uniqueViolation            = "23505"
)

// querier — общее подмножество pgxpool.Pool и pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store — реализация ledger.Store поверх пула pgx.
type Store struct {
	db *pgxpool.Pool
}

// NewStore создаёт хранилище леджера.
func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

var _ ledger.Store = (*Store)(nil)

// InTx открывает транзакцию БД и фиксирует её, если fn не вернула ошибку.
func (s *Store) InTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	// Откатываем, если fn или Commit не дошли до конца
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return nil
}

// --- Чтение без блокировок ---

const referralColumns = `
	id, referrer_id, referred_user_id, referral_code, referred_email, status,
	created_at, referred_subscribed_at, reward_eligible_at`

const commissionColumns = `
	id, beneficiary_id, referral_id, referred_user_id, amount, currency,
	commission_rate, source_payment_amount, status, eligible_at, available_at, created_at`

const balanceColumns = `
	user_id, currency, pending_balance, available_balance, total_earned,
	total_withdrawn, created_at, updated_at`

const withdrawalColumns = `
	id, user_id, amount, currency, status, payout_key_type, payout_key,
	payout_holder_name, admin_notes, created_at, processed_at, paid_at`

// CreateReferral сохраняет реферал от модуля атрибуции.
func (s *Store) CreateReferral(ctx context.Context, r *ledger.Referral) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO referrals (id, referrer_id, referred_user_id, referral_code, referred_email,
		                       status, created_at, referred_subscribed_at, reward_eligible_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, r.ID, r.ReferrerID, r.ReferredUserID, r.ReferralCode, r.ReferredEmail,
		r.Status, r.CreatedAt, r.ReferredSubscribedAt, r.RewardEligibleAt)
	if err != nil {
		if isUniqueViolation(err, "") {
			return fmt.Errorf("реферал %s уже существует: %w", r.ID, common.ErrConflict)
		}
		return fmt.Errorf("ошибка создания реферала: %w", err)
	}
	return nil
}

func (s *Store) GetReferral(ctx context.Context, id uuid.UUID) (*ledger.Referral, error) {
	return getReferral(ctx, s.db, id, false)
}

func (s *Store) GetBalance(ctx context.Context, userID uuid.UUID) (*ledger.Balance, error) {
	return getBalance(ctx, s.db, userID, false)
}

func (s *Store) ListCommissions(ctx context.Context, beneficiaryID uuid.UUID, limit int) ([]*ledger.CommissionTransaction, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+commissionColumns+`
		FROM commission_transactions
		WHERE beneficiary_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, beneficiaryID, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения комиссий: %w", err)
	}
	return collectCommissions(rows)
}

func (s *Store) ListDueCommissions(ctx context.Context, now time.Time, after ledger.DueCursor, limit int) ([]*ledger.CommissionTransaction, error) {
	query, args := dueCommissionsQuery(now, after, limit)
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки комиссий к переводу: %w", err)
	}
	return collectCommissions(rows)
}

// dueCommissionsQuery — страница очереди по курсору (eligible_at, id).
func dueCommissionsQuery(now time.Time, after ledger.DueCursor, limit int) (string, []any) {
	if after.IsZero() {
		return `
		SELECT ` + commissionColumns + `
		FROM commission_transactions
		WHERE status = 'pending' AND eligible_at <= $1
		ORDER BY eligible_at ASC, id ASC
		LIMIT $2
	`, []any{now, limit}
	}
	return `
		SELECT ` + commissionColumns + `
		FROM commission_transactions
		WHERE status = 'pending' AND eligible_at <= $1
		  AND (eligible_at, id) > ($2, $3)
		ORDER BY eligible_at ASC, id ASC
		LIMIT $4
	`, []any{now, after.EligibleAt, after.ID, limit}
}

func (s *Store) ListWithdrawals(ctx context.Context, userID uuid.UUID, limit int) ([]*ledger.WithdrawalRequest, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+withdrawalColumns+`
		FROM withdrawal_requests
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения заявок: %w", err)
	}
	return collectWithdrawals(rows)
}

func (s *Store) ListWithdrawalsByStatus(ctx context.Context, status ledger.WithdrawalStatus, limit int) ([]*ledger.WithdrawalRequest, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+withdrawalColumns+`
		FROM withdrawal_requests
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`, status, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения очереди заявок: %w", err)
	}
	return collectWithdrawals(rows)
}

// --- Операции внутри транзакции ---

type pgTx struct {
	q querier
}

func (t *pgTx) LockReferral(ctx context.Context, id uuid.UUID) (*ledger.Referral, error) {
	return getReferral(ctx, t.q, id, true)
}

func (t *pgTx) UpdateReferral(ctx context.Context, r *ledger.Referral) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE referrals
		SET status = $2, referred_subscribed_at = $3, reward_eligible_at = $4
		WHERE id = $1
	`, r.ID, r.Status, r.ReferredSubscribedAt, r.RewardEligibleAt)
	if err != nil {
		return fmt.Errorf("ошибка обновления реферала: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (t *pgTx) InsertCommission(ctx context.Context, c *ledger.CommissionTransaction) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO commission_transactions (id, beneficiary_id, referral_id, referred_user_id, amount, currency,
		                                     commission_rate, source_payment_amount, status, eligible_at,
		                                     available_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, c.ID, c.BeneficiaryID, c.ReferralID, c.ReferredUserID, c.Amount, c.Currency,
		c.CommissionRate, c.SourcePaymentAmount, c.Status, c.EligibleAt, c.AvailableAt, c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, constraintCommissionPerRef) {
			return fmt.Errorf("комиссия по рефералу %s уже есть: %w", c.ReferralID, common.ErrConflict)
		}
		return fmt.Errorf("ошибка записи комиссии: %w", err)
	}
	return nil
}

func (t *pgTx) LockCommission(ctx context.Context, id uuid.UUID) (*ledger.CommissionTransaction, error) {
	row := t.q.QueryRow(ctx, `
		SELECT `+commissionColumns+`
		FROM commission_transactions
		WHERE id = $1
		FOR UPDATE
	`, id)
	c, err := scanCommission(row)
	if err != nil {
		return nil, notFound(err, "комиссия", id)
	}
	return c, nil
}

func (t *pgTx) UpdateCommission(ctx context.Context, c *ledger.CommissionTransaction) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE commission_transactions
		SET status = $2, available_at = $3
		WHERE id = $1
	`, c.ID, c.Status, c.AvailableAt)
	if err != nil {
		return fmt.Errorf("ошибка обновления комиссии: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (t *pgTx) LockBalance(ctx context.Context, userID uuid.UUID) (*ledger.Balance, error) {
	return getBalance(ctx, t.q, userID, true)
}

// LockOrCreateBalance создаёт нулевой баланс (ON CONFLICT DO NOTHING) и блокирует строку.
func (t *pgTx) LockOrCreateBalance(ctx context.Context, userID uuid.UUID, currency string) (*ledger.Balance, error) {
	_, err := t.q.Exec(ctx, `
		INSERT INTO user_commission_balances (user_id, currency, pending_balance, available_balance,
		                                      total_earned, total_withdrawn)
		VALUES ($1, $2, 0, 0, 0, 0)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, currency)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания баланса: %w", err)
	}
	return getBalance(ctx, t.q, userID, true)
}

func (t *pgTx) SaveBalance(ctx context.Context, b *ledger.Balance) error {
	row := t.q.QueryRow(ctx, `
		UPDATE user_commission_balances
		SET pending_balance = $2, available_balance = $3, total_earned = $4,
		    total_withdrawn = $5, updated_at = NOW()
		WHERE user_id = $1
		RETURNING updated_at
	`, b.UserID, b.Pending, b.Available, b.TotalEarned, b.TotalWithdrawn)
	if err := row.Scan(&b.UpdatedAt); err != nil {
		return notFound(err, "баланс", b.UserID)
	}
	return nil
}

func (t *pgTx) HasPendingWithdrawal(ctx context.Context, userID uuid.UUID) (bool, error) {
	var exists bool
	err := t.q.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM withdrawal_requests WHERE user_id = $1 AND status = 'pending')
	`, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки заявок: %w", err)
	}
	return exists, nil
}

func (t *pgTx) InsertWithdrawal(ctx context.Context, w *ledger.WithdrawalRequest) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO withdrawal_requests (id, user_id, amount, currency, status, payout_key_type, payout_key,
		                                 payout_holder_name, admin_notes, created_at, processed_at, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, w.ID, w.UserID, w.Amount, w.Currency, w.Status, w.Payout.KeyType, w.Payout.Key,
		w.Payout.HolderName, w.AdminNotes, w.CreatedAt, w.ProcessedAt, w.PaidAt)
	if err != nil {
		if isUniqueViolation(err, constraintOnePending) {
			return common.ErrDuplicatePendingRequest
		}
		return fmt.Errorf("ошибка записи заявки: %w", err)
	}
	return nil
}

func (t *pgTx) LockWithdrawal(ctx context.Context, id uuid.UUID) (*ledger.WithdrawalRequest, error) {
	row := t.q.QueryRow(ctx, `
		SELECT `+withdrawalColumns+`
		FROM withdrawal_requests
		WHERE id = $1
		FOR UPDATE
	`, id)
	w, err := scanWithdrawal(row)
	if err != nil {
		return nil, notFound(err, "заявка", id)
	}
	return w, nil
}

func (t *pgTx) UpdateWithdrawal(ctx context.Context, w *ledger.WithdrawalRequest) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE withdrawal_requests
		SET status = $2, admin_notes = $3, processed_at = $4, paid_at = $5
		WHERE id = $1
	`, w.ID, w.Status, w.AdminNotes, w.ProcessedAt, w.PaidAt)
	if err != nil {
		if isUniqueViolation(err, constraintOnePending) {
			return common.ErrDuplicatePendingRequest
		}
		return fmt.Errorf("ошибка обновления заявки: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrNotFound
	}
	return nil
}

// --- Вспомогательные функции ---

type rowScanner interface {
	Scan(dest ...any) error
}

func getReferral(ctx context.Context, q querier, id uuid.UUID, forUpdate bool) (*ledger.Referral, error) {
	query := `SELECT ` + referralColumns + ` FROM referrals WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var r ledger.Referral
	err := q.QueryRow(ctx, query, id).Scan(
		&r.ID, &r.ReferrerID, &r.ReferredUserID, &r.ReferralCode, &r.ReferredEmail, &r.Status,
		&r.CreatedAt, &r.ReferredSubscribedAt, &r.RewardEligibleAt,
	)
	if err != nil {
		return nil, notFound(err, "реферал", id)
	}
	return &r, nil
}

func getBalance(ctx context.Context, q querier, userID uuid.UUID, forUpdate bool) (*ledger.Balance, error) {
	query := `SELECT ` + balanceColumns + ` FROM user_commission_balances WHERE user_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var b ledger.Balance
	err := q.QueryRow(ctx, query, userID).Scan(
		&b.UserID, &b.Currency, &b.Pending, &b.Available, &b.TotalEarned,
		&b.TotalWithdrawn, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err, "баланс", userID)
	}
	return &b, nil
}

func scanCommission(row rowScanner) (*ledger.CommissionTransaction, error) {
	var c ledger.CommissionTransaction
	err := row.Scan(
		&c.ID, &c.BeneficiaryID, &c.ReferralID, &c.ReferredUserID, &c.Amount, &c.Currency,
		&c.CommissionRate, &c.SourcePaymentAmount, &c.Status, &c.EligibleAt, &c.AvailableAt, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func scanWithdrawal(row rowScanner) (*ledger.WithdrawalRequest, error) {
	var w ledger.WithdrawalRequest
	err := row.Scan(
		&w.ID, &w.UserID, &w.Amount, &w.Currency, &w.Status, &w.Payout.KeyType, &w.Payout.Key,
		&w.Payout.HolderName, &w.AdminNotes, &w.CreatedAt, &w.ProcessedAt, &w.PaidAt,
	)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func collectCommissions(rows pgx.Rows) ([]*ledger.CommissionTransaction, error) {
	defer rows.Close()

	var list []*ledger.CommissionTransaction
	for rows.Next() {
		c, err := scanCommission(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования комиссии: %w", err)
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

func collectWithdrawals(rows pgx.Rows) ([]*ledger.WithdrawalRequest, error) {
	defer rows.Close()

	var list []*ledger.WithdrawalRequest
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования заявки: %w", err)
		}
		list = append(list, w)
	}
	return list, rows.Err()
}

// notFound превращает pgx.ErrNoRows в common.ErrNotFound.
func notFound(err error, what string, id uuid.UUID) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", what, id, common.ErrNotFound)
	}
	return fmt.Errorf("ошибка чтения (%s %s): %w", what, id, err)
}

// isUniqueViolation проверяет нарушение уникальности; пустой constraint — любое.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
