package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/referral-ledger/internal/common"
)

// Recover перехватывает панику в обработчике и отвечает 500.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				log.WithFields(log.Fields{
					"component": "panic_recovery",
					"panic":     fmt.Sprintf("%v", p),
					"path":      r.URL.Path,
					"stack":     string(debug.Stack()),
				}).Error("ПАНИКА в обработчике — восстановлено")
				common.WriteJSON(w, http.StatusInternalServerError, common.ErrorResponse{Error: "internal error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
