package balance

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"serotonyl.ru/referral-ledger/internal/ledger"
	"serotonyl.ru/referral-ledger/internal/ledger/memory"
	"serotonyl.ru/referral-ledger/internal/server/middleware"
)

// seedCommissions пишет n комиссий напрямую через транзакцию хранилища.
func seedCommissions(t *testing.T, store *memory.Store, userID uuid.UUID, n int) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		err := store.InTx(ctx, func(tx ledger.Tx) error {
			return tx.InsertCommission(ctx, &ledger.CommissionTransaction{
				ID:                  uuid.New(),
				BeneficiaryID:       userID,
				ReferralID:          uuid.New(),
				ReferredUserID:      uuid.New(),
				Amount:              decimal.NewFromInt(int64(i + 1)),
				Currency:            "BRL",
				CommissionRate:      ledger.DefaultCommissionRate,
				SourcePaymentAmount: decimal.NewFromInt(int64(2 * (i + 1))),
				Status:              ledger.CommissionPending,
				EligibleAt:          base.Add(30 * 24 * time.Hour),
				CreatedAt:           base.Add(time.Duration(i) * time.Minute),
			})
		})
		if err != nil {
			t.Fatal(err)
		}
	}
}

func TestGetBalance_ZeroForNewUser(t *testing.T) {
	svc := NewService(memory.New(), "BRL")
	user := uuid.New()

	b, err := svc.GetBalance(context.Background(), user)
	if err != nil {
		t.Fatal(err)
	}
	if b.UserID != user || b.Currency != "BRL" || !b.Pending.IsZero() || !b.Available.IsZero() {
		t.Errorf("unexpected zero balance: %+v", b)
	}
}

func TestGetRecentTransactions_NewestFirstAndClamped(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	user := uuid.New()
	seedCommissions(t, store, user, 120)
	svc := NewService(store, "BRL")

	list, err := svc.GetRecentTransactions(ctx, user, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != DefaultLimit {
		t.Errorf("default limit: got %d", len(list))
	}
	if !list[0].Amount.Equal(decimal.NewFromInt(120)) {
		t.Errorf("newest first: got %s", list[0].Amount)
	}

	list, _ = svc.GetRecentTransactions(ctx, user, 500)
	if len(list) != MaxLimit {
		t.Errorf("max limit: got %d", len(list))
	}

	list, _ = svc.GetRecentTransactions(ctx, uuid.New(), 10)
	if len(list) != 0 {
		t.Errorf("other user: got %d", len(list))
	}
}

func TestClampLimit(t *testing.T) {
	tests := map[int]int{-5: 20, 0: 20, 1: 1, 50: 50, 100: 100, 101: 100}
	for in, want := range tests {
		if got := ClampLimit(in); got != want {
			t.Errorf("ClampLimit(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestHandlers(t *testing.T) {
	store := memory.New()
	user := uuid.New()
	seedCommissions(t, store, user, 3)
	h := NewHandler(NewService(store, "BRL"))

	get := func(handle http.HandlerFunc, target string, authed bool) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		if authed {
			req = req.WithContext(middleware.WithUserID(req.Context(), user))
		}
		rec := httptest.NewRecorder()
		handle(rec, req)
		return rec
	}

	rec := get(h.HandleBalance, "/api/v1/me/balance", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("balance: %d", rec.Code)
	}

	rec = get(h.HandleTransactions, "/api/v1/me/transactions?limit=2", true)
	var txs []ledger.CommissionTransaction
	if err := json.Unmarshal(rec.Body.Bytes(), &txs); err != nil || len(txs) != 2 {
		t.Errorf("transactions: %s", rec.Body.String())
	}

	rec = get(h.HandleWithdrawals, "/api/v1/me/withdrawals", true)
	if rec.Code != http.StatusOK || rec.Body.String() != "[]\n" {
		t.Errorf("withdrawals: %d %q", rec.Code, rec.Body.String())
	}

	if rec := get(h.HandleTransactions, "/api/v1/me/transactions?limit=abc", true); rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit: expected 400, got %d", rec.Code)
	}
	if rec := get(h.HandleBalance, "/api/v1/me/balance", false); rec.Code != http.StatusUnauthorized {
		t.Errorf("no user: expected 401, got %d", rec.Code)
	}
}
