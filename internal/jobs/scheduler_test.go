package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"serotonyl.ru/referral-ledger/internal/features/commission"
)

type countingSweeper struct {
	calls atomic.Int32
	err   error
	last  atomic.Value
}

func (c *countingSweeper) SweepEligibleCommissions(_ context.Context, now time.Time) (commission.SweepResult, error) {
	c.calls.Add(1)
	c.last.Store(now)
	return commission.SweepResult{Promoted: 1}, c.err
}

func TestRunSweep_UsesClock(t *testing.T) {
	sw := &countingSweeper{}
	s := NewScheduler(sw, "@every 1h", nil)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	s.RunSweep(context.Background())

	if sw.calls.Load() != 1 {
		t.Fatalf("expected 1 call, got %d", sw.calls.Load())
	}
	if got := sw.last.Load().(time.Time); !got.Equal(fixed) {
		t.Errorf("now: got %v", got)
	}
}

func TestRunSweep_ErrorIsLoggedNotPanicked(t *testing.T) {
	sw := &countingSweeper{err: errors.New("boom")}
	NewScheduler(sw, "@every 1h", time.UTC).RunSweep(context.Background())
	if sw.calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", sw.calls.Load())
	}
}

func TestRunSweep_SkipsCancelledContext(t *testing.T) {
	sw := &countingSweeper{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	NewScheduler(sw, "@every 1h", nil).RunSweep(ctx)
	if sw.calls.Load() != 0 {
		t.Errorf("expected no calls, got %d", sw.calls.Load())
	}
}

func TestStart_InvalidSchedule(t *testing.T) {
	s := NewScheduler(&countingSweeper{}, "whenever", nil)
	if err := s.Start(context.Background()); err == nil {
		t.Error("expected error for invalid schedule")
	}
}

func TestStartStop(t *testing.T) {
	s := NewScheduler(&countingSweeper{}, "0 * * * *", time.UTC)
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	s.Stop()
}
