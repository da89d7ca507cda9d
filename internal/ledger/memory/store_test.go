package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"serotonyl.ru/referral-ledger/internal/ledger"
)

func TestListDueCommissions_PagesByCursor(t *testing.T) {
	ctx := context.Background()
	store := New()
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	// Пять комиссий с одинаковым eligible_at и одна ещё в удержании
	for i := 0; i < 6; i++ {
		eligible := at
		if i == 5 {
			eligible = at.Add(48 * time.Hour)
		}
		err := store.InTx(ctx, func(tx ledger.Tx) error {
			return tx.InsertCommission(ctx, &ledger.CommissionTransaction{
				ID:             uuid.New(),
				BeneficiaryID:  uuid.New(),
				ReferralID:     uuid.New(),
				ReferredUserID: uuid.New(),
				Amount:         decimal.NewFromInt(10),
				Currency:       "BRL",
				Status:         ledger.CommissionPending,
				EligibleAt:     eligible,
				CreatedAt:      at,
			})
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	now := at.Add(time.Hour)
	seen := make(map[uuid.UUID]bool)
	var cursor ledger.DueCursor
	for page := 0; ; page++ {
		batch, err := store.ListDueCommissions(ctx, now, cursor, 2)
		if err != nil {
			t.Fatal(err)
		}
		if len(batch) == 0 {
			break
		}
		for i, c := range batch {
			if seen[c.ID] {
				t.Fatalf("page %d returned %s twice", page, c.ID)
			}
			seen[c.ID] = true
			if i > 0 && ledger.CompareDue(batch[i-1], c) >= 0 {
				t.Errorf("page %d is not ordered by (eligible_at, id)", page)
			}
		}
		cursor = ledger.CursorAt(batch[len(batch)-1])
	}
	if len(seen) != 5 {
		t.Errorf("expected 5 due commissions, got %d", len(seen))
	}
}
