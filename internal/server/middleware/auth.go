package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/referral-ledger/internal/common"
)

type ctxKey int

const userIDKey ctxKey = iota

// WithUserID кладёт id пользователя в контекст запроса.
func WithUserID(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext возвращает id пользователя, проверенный UserAuth.
func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDKey).(uuid.UUID)
	return id, ok
}

// UserAuth проверяет Bearer-токен (HS256), sub — uuid пользователя.
// Токены выпускает сервис аккаунтов, здесь только проверка.
func UserAuth(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := parseUserToken(r.Header.Get("Authorization"), secret)
			if err != nil {
				log.WithError(err).Debug("Отклонён токен пользователя")
				common.WriteError(w, common.ErrUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

func parseUserToken(header string, secret []byte) (uuid.UUID, error) {
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		return uuid.Nil, errors.New("нет Bearer-токена")
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(claims.Subject)
}

// IssueUserToken подписывает токен пользователя; используется в тестах и dev-окружении.
func IssueUserToken(secret []byte, userID uuid.UUID, claims jwt.RegisteredClaims) (string, error) {
	claims.Subject = userID.String()
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// AdminKey пропускает запросы с X-Admin-Key, совпадающим с хешем Argon2id.
func AdminKey(encodedHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-Admin-Key")
			if key == "" || !VerifyArgon2id(key, encodedHash) {
				log.WithField("remote", remoteHost(r)).Warn("Неверный ключ администратора")
				common.WriteError(w, common.ErrUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WebhookSecret пропускает запросы платёжного провайдера с верным X-Webhook-Secret.
func WebhookSecret(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("X-Webhook-Secret")
			if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				log.WithField("remote", remoteHost(r)).Warn("Неверный секрет вебхука")
				common.WriteError(w, common.ErrUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
