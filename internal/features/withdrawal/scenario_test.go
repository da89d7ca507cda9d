package withdrawal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"serotonyl.ru/referral-ledger/internal/common"
	"serotonyl.ru/referral-ledger/internal/features/commission"
	"serotonyl.ru/referral-ledger/internal/ledger"
	"serotonyl.ru/referral-ledger/internal/ledger/memory"
	"serotonyl.ru/referral-ledger/internal/subscription"
)

// Полный путь денег: оплата → удержание → перевод → вывод.
func TestReferralPayoutScenario(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	referrer := uuid.New()
	referred := uuid.New()

	ref := &ledger.Referral{
		ID:             uuid.New(),
		ReferrerID:     referrer,
		ReferredUserID: &referred,
		ReferralCode:   "ANA-2026",
		Status:         ledger.ReferralSignedUp,
		CreatedAt:      time.Now(),
	}
	if err := store.CreateReferral(ctx, ref); err != nil {
		t.Fatal(err)
	}

	expect := func(step, pending, available, earned, withdrawn string) {
		t.Helper()
		b := balanceOf(t, store, referrer)
		if !b.Pending.Equal(dec(pending)) || !b.Available.Equal(dec(available)) ||
			!b.TotalEarned.Equal(dec(earned)) || !b.TotalWithdrawn.Equal(dec(withdrawn)) {
			t.Fatalf("%s: got %s", step, b.Snapshot())
		}
	}

	// 1. Оплата 100 при ставке 0.50
	recorder := commission.NewRecorder(store, ledger.DefaultSettings())
	if _, err := recorder.RecordCommission(ctx, ref.ID, dec("100"), "BRL"); err != nil {
		t.Fatal(err)
	}
	expect("recorded", "50", "0", "0", "0")

	// 2. Через 31 день подписка всё ещё активна
	active := subscription.CheckerFunc(func(_ context.Context, userID uuid.UUID) (bool, error) {
		return userID == referred, nil
	})
	sweeper := commission.NewSweeper(store, active, nil, 10, 2)
	res, err := sweeper.SweepEligibleCommissions(ctx, time.Now().Add(31*24*time.Hour))
	if err != nil || res.Promoted != 1 {
		t.Fatalf("sweep: %+v, %v", res, err)
	}
	expect("promoted", "0", "50", "50", "0")

	m := NewManager(store, nil)

	// 3. Заявка на 50, вторая — отказ
	first, err := m.RequestWithdrawal(ctx, referrer, dec("50"), validPayout)
	if err != nil {
		t.Fatal(err)
	}
	expect("requested", "0", "0", "50", "0")
	if _, err := m.RequestWithdrawal(ctx, referrer, dec("10"), validPayout); !errors.Is(err, common.ErrDuplicatePendingRequest) {
		t.Fatalf("second request: expected ErrDuplicatePendingRequest, got %v", err)
	}

	// 4. Отклонение возвращает деньги
	if _, err := m.Reject(ctx, first.ID, "invalid key"); err != nil {
		t.Fatal(err)
	}
	expect("rejected", "0", "50", "50", "0")

	// 5. Новая заявка, одобрение, выплата
	second, err := m.RequestWithdrawal(ctx, referrer, dec("50"), validPayout)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Approve(ctx, second.ID, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := m.MarkPaid(ctx, second.ID); err != nil {
		t.Fatal(err)
	}
	expect("paid", "0", "0", "50", "50")

	got, _ := store.GetReferral(ctx, ref.ID)
	if got.Status != ledger.ReferralEligible {
		t.Errorf("referral status: got %s", got.Status)
	}
}
