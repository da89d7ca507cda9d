package withdrawal

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"serotonyl.ru/referral-ledger/internal/ledger"
	"serotonyl.ru/referral-ledger/internal/ledger/memory"
	"serotonyl.ru/referral-ledger/internal/server/middleware"
)

const validBody = `{"amount":"30.00","payout":{"key_type":"email","key":"ana@example.com","holder_name":"Ana Silva"}}`

func createAs(h *Handler, userID uuid.UUID, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/me/withdrawals", strings.NewReader(body))
	req = req.WithContext(middleware.WithUserID(req.Context(), userID))
	rec := httptest.NewRecorder()
	h.HandleCreate(rec, req)
	return rec
}

func decide(handle http.HandlerFunc, id, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/withdrawals/"+id+"/x", strings.NewReader(body))
	req.SetPathValue("id", id)
	rec := httptest.NewRecorder()
	handle(rec, req)
	return rec
}

func TestHandleCreate(t *testing.T) {
	store := memory.New()
	user := uuid.New()
	seedBalance(t, store, user, "50")
	h := NewHandler(NewManager(store, nil))

	rec := createAs(h, user, validBody)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var w ledger.WithdrawalRequest
	if err := json.Unmarshal(rec.Body.Bytes(), &w); err != nil {
		t.Fatal(err)
	}
	if w.Status != ledger.WithdrawalPending || w.Payout.Key != "ana@example.com" {
		t.Errorf("unexpected response: %+v", w)
	}

	rec = createAs(h, user, validBody)
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate: expected 409, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "a withdrawal is already in progress") {
		t.Errorf("duplicate message: %s", rec.Body.String())
	}
}

func TestHandleCreate_Errors(t *testing.T) {
	store := memory.New()
	user := uuid.New()
	seedBalance(t, store, user, "10")
	h := NewHandler(NewManager(store, nil))

	tests := []struct {
		name string
		body string
		want int
	}{
		{"bad json", `{"amount":`, http.StatusBadRequest},
		{"insufficient", validBody, http.StatusUnprocessableEntity},
		{"bad payout", `{"amount":"5","payout":{"key_type":"fax","key":"1","holder_name":"A"}}`, http.StatusUnprocessableEntity},
		{"zero", `{"amount":"0","payout":{"key_type":"email","key":"a@b.co","holder_name":"A"}}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := createAs(h, user, tt.body); rec.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/me/withdrawals", strings.NewReader(validBody))
	rec := httptest.NewRecorder()
	h.HandleCreate(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no user: expected 401, got %d", rec.Code)
	}
}

func TestAdminDecisions(t *testing.T) {
	store := memory.New()
	user := uuid.New()
	seedBalance(t, store, user, "50")
	h := NewHandler(NewManager(store, nil))

	var w ledger.WithdrawalRequest
	_ = json.Unmarshal(createAs(h, user, validBody).Body.Bytes(), &w)
	id := w.ID.String()

	if rec := decide(h.HandleReject, id, ``); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("reject without notes: expected 422, got %d", rec.Code)
	}
	if rec := decide(h.HandleMarkPaid, id, ``); rec.Code != http.StatusConflict {
		t.Errorf("paid before approve: expected 409, got %d", rec.Code)
	}
	if rec := decide(h.HandleApprove, id, ``); rec.Code != http.StatusOK {
		t.Fatalf("approve: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec := decide(h.HandleMarkPaid, id, ``); rec.Code != http.StatusOK {
		t.Fatalf("paid: expected 200, got %d", rec.Code)
	}
	if rec := decide(h.HandleApprove, uuid.NewString(), `{"admin_notes":"x"}`); rec.Code != http.StatusNotFound {
		t.Errorf("unknown id: expected 404, got %d", rec.Code)
	}
	if rec := decide(h.HandleApprove, "nope", ``); rec.Code != http.StatusBadRequest {
		t.Errorf("bad id: expected 400, got %d", rec.Code)
	}
}

func TestHandleList(t *testing.T) {
	store := memory.New()
	user := uuid.New()
	seedBalance(t, store, user, "50")
	h := NewHandler(NewManager(store, nil))
	createAs(h, user, validBody)

	list := func(query string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.HandleList(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/withdrawals"+query, nil))
		return rec
	}

	rec := list("")
	var got []ledger.WithdrawalRequest
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil || len(got) != 1 {
		t.Fatalf("pending queue: %s (%v)", rec.Body.String(), err)
	}

	rec = list("?status=paid")
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("empty list must be [], got %s", rec.Body.String())
	}
	if rec := list("?status=weird"); rec.Code != http.StatusBadRequest {
		t.Errorf("bad status: expected 400, got %d", rec.Code)
	}
	if rec := list("?limit=x"); rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit: expected 400, got %d", rec.Code)
	}
}
