// Package server собирает HTTP-маршруты леджера и общую цепочку middleware.
package server

import (
	"net/http"

	"github.com/rs/cors"

	"serotonyl.ru/referral-ledger/internal/common"
	"serotonyl.ru/referral-ledger/internal/features/balance"
	"serotonyl.ru/referral-ledger/internal/features/commission"
	"serotonyl.ru/referral-ledger/internal/features/withdrawal"
	"serotonyl.ru/referral-ledger/internal/server/middleware"
)

// Handlers — обработчики фич.
type Handlers struct {
	Balance    *balance.Handler
	Withdrawal *withdrawal.Handler
	Commission *commission.Handler
}

// Auth — секреты для трёх видов клиентов: пользователь, админ, платёжный провайдер.
type Auth struct {
	JWTSecret     []byte
	AdminKeyHash  string
	WebhookSecret string
}

// NewRouter регистрирует маршруты и оборачивает их в общую цепочку:
// Recover → LogRequests → CORS → rate limit → mux.
func NewRouter(h Handlers, auth Auth, allowedOrigins []string, limiter *middleware.RateLimiter) http.Handler {
	mux := http.NewServeMux()

	user := middleware.UserAuth(auth.JWTSecret)
	admin := middleware.AdminKey(auth.AdminKeyHash)
	webhook := middleware.WebhookSecret(auth.WebhookSecret)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		common.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Пользователь
	mux.Handle("GET /api/v1/me/balance", user(http.HandlerFunc(h.Balance.HandleBalance)))
	mux.Handle("GET /api/v1/me/transactions", user(http.HandlerFunc(h.Balance.HandleTransactions)))
	mux.Handle("GET /api/v1/me/withdrawals", user(http.HandlerFunc(h.Balance.HandleWithdrawals)))
	mux.Handle("POST /api/v1/me/withdrawals", user(http.HandlerFunc(h.Withdrawal.HandleCreate)))

	// Админка
	mux.Handle("GET /api/v1/admin/withdrawals", admin(http.HandlerFunc(h.Withdrawal.HandleList)))
	mux.Handle("POST /api/v1/admin/withdrawals/{id}/approve", admin(http.HandlerFunc(h.Withdrawal.HandleApprove)))
	mux.Handle("POST /api/v1/admin/withdrawals/{id}/reject", admin(http.HandlerFunc(h.Withdrawal.HandleReject)))
	mux.Handle("POST /api/v1/admin/withdrawals/{id}/paid", admin(http.HandlerFunc(h.Withdrawal.HandleMarkPaid)))
	mux.Handle("POST /api/v1/admin/sweeps", admin(http.HandlerFunc(h.Commission.HandleSweep)))

	// Платёжный провайдер
	mux.Handle("POST /webhooks/payments", webhook(http.HandlerFunc(h.Commission.HandlePaymentWebhook)))

	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Admin-Key"},
		MaxAge:         600,
	})

	var handler http.Handler = mux
	if limiter != nil {
		handler = limiter.Middleware(handler)
	}
	handler = c.Handler(handler)
	handler = middleware.LogRequests(handler)
	return middleware.Recover(handler)
}
