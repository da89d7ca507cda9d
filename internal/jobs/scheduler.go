// Package jobs управляет фоновыми задачами (cron).
// scheduler.go настраивает расписание перевода созревших комиссий.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/referral-ledger/internal/features/commission"
)

// Sweeper — то, что умеет обработать созревшие комиссии.
type Sweeper interface {
	SweepEligibleCommissions(ctx context.Context, now time.Time) (commission.SweepResult, error)
}

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron     *cron.Cron
	sweeper  Sweeper
	schedule string
	loc      *time.Location
	now      func() time.Time
}

// NewScheduler создаёт планировщик. Запуск, пересекающийся с предыдущим,
// пропускается.
func NewScheduler(sweeper Sweeper, schedule string, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)),
	)
	return &Scheduler{
		cron:     c,
		sweeper:  sweeper,
		schedule: schedule,
		loc:      loc,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Start запускает все фоновые задачи.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.schedule, func() { s.RunSweep(ctx) }); err != nil {
		return fmt.Errorf("некорректное расписание %q: %w", s.schedule, err)
	}

	s.cron.Start()
	log.WithFields(log.Fields{
		"schedule": s.schedule,
		"timezone": s.loc.String(),
	}).Info("Планировщик задач запущен")
	return nil
}

// RunSweep выполняет один проход свипера.
func (s *Scheduler) RunSweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	log.Info("[CRON] Перевод созревших комиссий")
	start := time.Now()
	res, err := s.sweeper.SweepEligibleCommissions(ctx, s.now())
	entry := log.WithFields(log.Fields{
		"promoted":  res.Promoted,
		"cancelled": res.Cancelled,
		"skipped":   res.Skipped,
		"failed":    res.Failed,
		"took":      time.Since(start).Round(time.Millisecond),
	})
	if err != nil {
		entry.WithError(err).Error("[CRON] Свип прерван")
		return
	}
	entry.Info("[CRON] Свип завершён")
}

// Stop останавливает планировщик и ждёт завершения запущенных задач.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}
