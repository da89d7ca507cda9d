// Package common — respond.go содержит общие функции JSON-ответов HTTP API.
package common

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	log "github.com/sirupsen/logrus"
)

// ErrorResponse — тело ответа с ошибкой.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteJSON пишет v как JSON с кодом status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("Ошибка записи JSON-ответа")
	}
}

// WriteError выбирает HTTP-код по ошибке леджера.
// Текст внутренних ошибок наружу не отдаётся.
func WriteError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	msg := err.Error()

	switch {
	case status == http.StatusInternalServerError:
		log.WithError(err).Error("Внутренняя ошибка при обработке запроса")
		msg = "internal error"
	case errors.Is(err, ErrNotFound):
		msg = ErrNotFound.Error()
	case errors.Is(err, ErrConflict):
		msg = ErrConflict.Error()
	case errors.Is(err, ErrDuplicatePendingRequest):
		msg = ErrDuplicatePendingRequest.Error()
	case errors.Is(err, ErrInvalidStateTransition):
		msg = ErrInvalidStateTransition.Error()
	case errors.Is(err, ErrDependencyUnavailable):
		msg = ErrDependencyUnavailable.Error()
	case errors.Is(err, ErrUnauthorized):
		msg = ErrUnauthorized.Error()
	}

	WriteJSON(w, status, ErrorResponse{Error: msg})
}

// StatusFor сопоставляет ошибку и HTTP-код.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict),
		errors.Is(err, ErrDuplicatePendingRequest),
		errors.Is(err, ErrInvalidStateTransition):
		return http.StatusConflict
	case IsValidation(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrDependencyUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

// WriteBadRequest — невалидный JSON или параметры запроса.
func WriteBadRequest(w http.ResponseWriter, msg string) {
	WriteJSON(w, http.StatusBadRequest, ErrorResponse{Error: msg})
}

// DecodeJSON читает тело запроса, неизвестные поля запрещены.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// QueryInt читает целый параметр запроса; пустой — 0.
func QueryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
