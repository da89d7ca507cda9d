package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	if id, ok := UserIDFromContext(r.Context()); ok {
		w.Write([]byte(id.String()))
	}
})

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// ---------------------------------------------------------------------------
// UserAuth
// ---------------------------------------------------------------------------

func TestUserAuth_ValidToken(t *testing.T) {
	secret := []byte("test-secret")
	userID := uuid.New()
	token, err := IssueUserToken(secret, userID, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := serve(UserAuth(secret)(okHandler), req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != userID.String() {
		t.Errorf("user id in context: got %q", rec.Body.String())
	}
}

func TestUserAuth_Rejects(t *testing.T) {
	secret := []byte("test-secret")
	userID := uuid.New()

	expired, _ := IssueUserToken(secret, userID, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	})
	noExpiry, _ := IssueUserToken(secret, userID, jwt.RegisteredClaims{})
	foreign, _ := IssueUserToken([]byte("other"), userID, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	badSubject, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "not-a-uuid",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(secret)

	tests := map[string]string{
		"missing header": "",
		"not bearer":     "Basic abc",
		"expired":        "Bearer " + expired,
		"no expiry":      "Bearer " + noExpiry,
		"wrong secret":   "Bearer " + foreign,
		"bad subject":    "Bearer " + badSubject,
	}
	for name, header := range tests {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			if rec := serve(UserAuth(secret)(okHandler), req); rec.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", rec.Code)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// AdminKey / WebhookSecret
// ---------------------------------------------------------------------------

func TestAdminKey(t *testing.T) {
	hash, err := HashArgon2id("s3cret-admin")
	if err != nil {
		t.Fatal(err)
	}
	h := AdminKey(hash)(okHandler)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("X-Admin-Key", "s3cret-admin")
	if rec := serve(h, req); rec.Code != http.StatusOK {
		t.Errorf("valid key: expected 200, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("X-Admin-Key", "guess")
	if rec := serve(h, req); rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong key: expected 401, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/", nil)
	if rec := serve(h, req); rec.Code != http.StatusUnauthorized {
		t.Errorf("missing key: expected 401, got %d", rec.Code)
	}
}

func TestVerifyArgon2id_MalformedHash(t *testing.T) {
	for _, h := range []string{"", "plain", "$argon2id$v=19$m=x$salt$hash", "$bcrypt$v=19$m=1,t=1,p=1$AAAA$AAAA"} {
		if VerifyArgon2id("key", h) {
			t.Errorf("malformed hash %q must not verify", h)
		}
	}
}

func TestWebhookSecret(t *testing.T) {
	h := WebhookSecret("hook")(okHandler)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("X-Webhook-Secret", "hook")
	if rec := serve(h, req); rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("X-Webhook-Secret", "nope")
	if rec := serve(h, req); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

// ---------------------------------------------------------------------------
// RateLimiter / Recover
// ---------------------------------------------------------------------------

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	defer rl.Close()
	h := rl.Middleware(okHandler)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		codes = append(codes, serve(h, req).Code)
	}
	if codes[0] != 200 || codes[1] != 200 || codes[2] != http.StatusTooManyRequests {
		t.Errorf("unexpected codes: %v", codes)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.2:5000"
	if rec := serve(h, req); rec.Code != http.StatusOK {
		t.Errorf("other client must not be limited, got %d", rec.Code)
	}
}

func TestRateLimiter_IgnoresSpoofedForwardedFor(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	defer rl.Close()
	h := rl.Middleware(okHandler)

	passed := 0
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "203.0.113.7:5000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i))
		if serve(h, req).Code == http.StatusOK {
			passed++
		}
	}
	if passed != 1 {
		t.Errorf("expected 1 request to pass, got %d", passed)
	}

	rl.mu.Lock()
	keys := len(rl.requests)
	rl.mu.Unlock()
	if keys != 1 {
		t.Errorf("expected 1 limiter key, got %d", keys)
	}
}

func TestRateLimiter_TrustedProxy(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	defer rl.Close()
	if err := rl.TrustProxies([]string{"10.0.0.0/8"}); err != nil {
		t.Fatal(err)
	}
	h := rl.Middleware(okHandler)

	send := func(xff string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.1.2.3:443"
		req.Header.Set("X-Forwarded-For", xff)
		return serve(h, req).Code
	}

	if code := send("198.51.100.1"); code != http.StatusOK {
		t.Fatalf("first client: got %d", code)
	}
	if code := send("198.51.100.2"); code != http.StatusOK {
		t.Errorf("second client behind proxy must not be limited, got %d", code)
	}
	// Левое значение подставлено клиентом, ключом остаётся адрес, добавленный прокси
	if code := send("1.1.1.1, 198.51.100.1"); code != http.StatusTooManyRequests {
		t.Errorf("spoofed prefix must not reset the limit, got %d", code)
	}
}

func TestClientIP(t *testing.T) {
	trusted := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}
	tests := []struct {
		name    string
		remote  string
		xff     string
		trusted []netip.Prefix
		want    string
	}{
		{"no proxies configured", "203.0.113.7:1", "198.51.100.1", nil, "203.0.113.7"},
		{"untrusted peer", "203.0.113.7:1", "198.51.100.1", trusted, "203.0.113.7"},
		{"trusted peer", "10.0.0.5:1", "198.51.100.1", trusted, "198.51.100.1"},
		{"proxy chain", "10.0.0.5:1", "198.51.100.1, 10.0.0.9", trusted, "198.51.100.1"},
		{"spoofed left hop", "10.0.0.5:1", "6.6.6.6, 198.51.100.1", trusted, "198.51.100.1"},
		{"garbage hop", "10.0.0.5:1", "not-an-ip", trusted, "10.0.0.5"},
		{"only proxies", "10.0.0.5:1", "10.0.0.9", trusted, "10.0.0.5"},
		{"no header", "10.0.0.5:1", "", trusted, "10.0.0.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := clientIP(req, tt.trusted); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTrustProxies_Invalid(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	defer rl.Close()
	for _, bad := range []string{"10.0.0.0/33", "proxy.local"} {
		if err := rl.TrustProxies([]string{bad}); err == nil {
			t.Errorf("%q: expected error", bad)
		}
	}
	if err := rl.TrustProxies([]string{" 192.168.1.10 ", ""}); err != nil {
		t.Errorf("single address: %v", err)
	}
}

func TestRecover(t *testing.T) {
	h := Recover(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}
