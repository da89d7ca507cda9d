// Package middleware содержит промежуточные обработчики HTTP: логирование,
// восстановление после паники, rate-limiting и аутентификацию.
package middleware

import (
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

// statusRecorder запоминает код ответа для лога.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// LogRequests логирует каждый запрос: метод, путь, код, длительность.
func LogRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		entry := log.WithFields(log.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start).Round(time.Microsecond),
			"remote":   remoteHost(r),
		})
		if rec.status >= http.StatusInternalServerError {
			entry.Warn("HTTP-запрос завершился ошибкой")
			return
		}
		entry.Debug("HTTP-запрос")
	})
}
