// Package commission — sweeper.go переводит комиссии после периода удержания.
// Если подписка приглашённого ещё активна, комиссия становится доступной
// к выводу, иначе отменяется.
package commission

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"serotonyl.ru/referral-ledger/internal/common"
	"serotonyl.ru/referral-ledger/internal/ledger"
	"serotonyl.ru/referral-ledger/internal/notify"
	"serotonyl.ru/referral-ledger/internal/subscription"
)

// Значения по умолчанию для прохода.
const (
	DefaultBatchSize   = 100
	DefaultConcurrency = 4
)

// SweepResult — итог одного прохода.
type SweepResult struct {
	Promoted  int `json:"promoted"`  // Переведены в доступный баланс
	Cancelled int `json:"cancelled"` // Отменены (подписка не активна)
	Skipped   int `json:"skipped"`   // Уже обработаны параллельным проходом
	Failed    int `json:"failed"`    // Ошибка, комиссия осталась pending
}

type outcome int

const (
	outcomePromoted outcome = iota
	outcomeCancelled
	outcomeSkipped
	outcomeFailed
)

func (r *SweepResult) add(o outcome) {
	switch o {
	case outcomePromoted:
		r.Promoted++
	case outcomeCancelled:
		r.Cancelled++
	case outcomeSkipped:
		r.Skipped++
	case outcomeFailed:
		r.Failed++
	}
}

// Sweeper проходит по pending-комиссиям с наступившим eligible_at.
// Глобальной блокировки нет: каждая комиссия обрабатывается в своей
// транзакции и перечитывается под блокировкой перед изменением.
type Sweeper struct {
	store       ledger.Store
	checker     subscription.Checker
	notifier    notify.Notifier
	batchSize   int
	concurrency int
}

// NewSweeper создаёт сервис перевода комиссий.
// Непозитивные batchSize и concurrency заменяются значениями по умолчанию.
func NewSweeper(store ledger.Store, checker subscription.Checker, notifier notify.Notifier, batchSize, concurrency int) *Sweeper {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &Sweeper{
		store:       store,
		checker:     checker,
		notifier:    notifier,
		batchSize:   batchSize,
		concurrency: concurrency,
	}
}

// SweepEligibleCommissions обрабатывает все комиссии, срок удержания которых истёк к now.
//
// Ошибка по одной комиссии не прерывает проход. При отмене ctx новые
// комиссии не берутся, возвращается частичный результат и ошибка контекста.
func (s *Sweeper) SweepEligibleCommissions(ctx context.Context, now time.Time) (SweepResult, error) {
	var (
		result SweepResult
		mu     sync.Mutex
		// Упавшие комиссии остаются pending; курсор идёт дальше,
		// чтобы они не загораживали остальную очередь
		cursor ledger.DueCursor
	)

	start := time.Now()

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		batch, err := s.store.ListDueCommissions(ctx, now, cursor, s.batchSize)
		if err != nil {
			return result, fmt.Errorf("ошибка выборки комиссий: %w", err)
		}
		if len(batch) == 0 {
			break
		}
		cursor = ledger.CursorAt(batch[len(batch)-1])

		var g errgroup.Group
		g.SetLimit(s.concurrency)
		for _, c := range batch {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				o := s.processOne(ctx, c, now)
				mu.Lock()
				result.add(o)
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()

		if len(batch) < s.batchSize {
			break
		}
	}

	log.WithFields(log.Fields{
		"promoted":  result.Promoted,
		"cancelled": result.Cancelled,
		"skipped":   result.Skipped,
		"failed":    result.Failed,
		"duration":  time.Since(start).Round(time.Millisecond),
	}).Info("Проход по комиссиям завершён")

	s.notifier.SweepFinished(ctx, notify.SweepSummary{
		Promoted:  result.Promoted,
		Cancelled: result.Cancelled,
		Skipped:   result.Skipped,
		Failed:    result.Failed,
	})

	return result, ctx.Err()
}

// processOne обрабатывает одну комиссию. Подписка проверяется до транзакции,
// чтобы не держать блокировки во время внешнего запроса.
func (s *Sweeper) processOne(ctx context.Context, c *ledger.CommissionTransaction, now time.Time) outcome {
	logger := log.WithFields(log.Fields{
		"commission_id": c.ID,
		"referral_id":   c.ReferralID,
		"beneficiary":   c.BeneficiaryID,
	})

	active, err := s.checker.IsActiveSubscriber(ctx, c.ReferredUserID)
	if err != nil {
		logger.WithError(fmt.Errorf("%w: %v", common.ErrDependencyUnavailable, err)).
			Warn("Не удалось проверить подписку, комиссия останется pending")
		return outcomeFailed
	}

	var o outcome
	err = s.store.InTx(ctx, func(tx ledger.Tx) error {
		cur, err := tx.LockCommission(ctx, c.ID)
		if err != nil {
			return err
		}
		if cur.Status != ledger.CommissionPending || cur.EligibleAt.After(now) {
			o = outcomeSkipped
			return nil
		}

		if active {
			o = outcomePromoted
			return promote(ctx, tx, cur, now)
		}
		o = outcomeCancelled
		return cancel(ctx, tx, cur)
	})
	if err != nil {
		ledger.LogViolation(err)
		logger.WithError(err).Error("Ошибка обработки комиссии")
		return outcomeFailed
	}

	if o != outcomeSkipped {
		logger.WithFields(log.Fields{
			"active": active,
			"amount": c.Amount.StringFixed(2),
		}).Debug("Комиссия обработана")
	}
	return o
}

// promote: pending → available, total_earned растёт, реферал → eligible.
func promote(ctx context.Context, tx ledger.Tx, c *ledger.CommissionTransaction, now time.Time) error {
	c.Status = ledger.CommissionAvailable
	c.AvailableAt = &now
	if err := tx.UpdateCommission(ctx, c); err != nil {
		return err
	}
	if err := moveReferral(ctx, tx, c.ReferralID, ledger.ReferralEligible); err != nil {
		return err
	}

	bal, err := tx.LockBalance(ctx, c.BeneficiaryID)
	if err != nil {
		return err
	}
	if err := bal.Apply(ledger.OpPromoteCommission, ledger.Delta{
		Pending:     c.Amount.Neg(),
		Available:   c.Amount,
		TotalEarned: c.Amount,
	}); err != nil {
		return err
	}
	return tx.SaveBalance(ctx, bal)
}

// cancel: комиссия отменяется, pending уменьшается не ниже нуля, реферал → expired.
func cancel(ctx context.Context, tx ledger.Tx, c *ledger.CommissionTransaction) error {
	c.Status = ledger.CommissionCancelled
	if err := tx.UpdateCommission(ctx, c); err != nil {
		return err
	}
	if err := moveReferral(ctx, tx, c.ReferralID, ledger.ReferralExpired); err != nil {
		return err
	}

	bal, err := tx.LockBalance(ctx, c.BeneficiaryID)
	if err != nil {
		return err
	}
	debit := decimal.Min(bal.Pending, c.Amount)
	if debit.LessThan(c.Amount) {
		log.WithFields(log.Fields{
			"user_id":       bal.UserID,
			"commission_id": c.ID,
			"pending":       bal.Pending.StringFixed(2),
			"amount":        c.Amount.StringFixed(2),
		}).Warn("Pending-баланс меньше отменяемой комиссии")
	}
	if err := bal.Apply(ledger.OpCancelCommission, ledger.Delta{Pending: debit.Neg()}); err != nil {
		return err
	}
	return tx.SaveBalance(ctx, bal)
}

// moveReferral переводит реферал в next. Если переход недопустим,
// реферал остаётся в текущем статусе, а комиссия всё равно обрабатывается.
func moveReferral(ctx context.Context, tx ledger.Tx, referralID uuid.UUID, next ledger.ReferralStatus) error {
	ref, err := tx.LockReferral(ctx, referralID)
	if errors.Is(err, common.ErrNotFound) {
		log.WithField("referral_id", referralID).Warn("Реферал комиссии не найден")
		return nil
	}
	if err != nil {
		return err
	}
	if !ref.Status.CanTransitionTo(next) {
		log.WithFields(log.Fields{
			"referral_id": referralID,
			"from":        ref.Status,
			"to":          next,
		}).Warn("Пропущен недопустимый переход статуса реферала")
		return nil
	}
	ref.Status = next
	return tx.UpdateReferral(ctx, ref)
}
