package postgres

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"serotonyl.ru/referral-ledger/internal/common"
	"serotonyl.ru/referral-ledger/internal/ledger"
)

func TestIsUniqueViolation(t *testing.T) {
	pending := &pgconn.PgError{Code: uniqueViolation, ConstraintName: constraintOnePending}

	tests := []struct {
		name       string
		err        error
		constraint string
		want       bool
	}{
		{"matching constraint", pending, constraintOnePending, true},
		{"wrapped", fmt.Errorf("insert: %w", pending), constraintOnePending, true},
		{"any constraint", pending, "", true},
		{"other constraint", pending, constraintCommissionPerRef, false},
		{"other code", &pgconn.PgError{Code: "23503", ConstraintName: constraintOnePending}, constraintOnePending, false},
		{"not a pg error", errors.New("connection reset"), "", false},
		{"nil", nil, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isUniqueViolation(tt.err, tt.constraint); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNotFound(t *testing.T) {
	id := uuid.New()

	err := notFound(pgx.ErrNoRows, "баланс", id)
	if !errors.Is(err, common.ErrNotFound) {
		t.Errorf("ErrNoRows must map to ErrNotFound, got %v", err)
	}
	if !strings.Contains(err.Error(), id.String()) {
		t.Errorf("error must name the id: %v", err)
	}

	cause := errors.New("conn closed")
	err = notFound(cause, "баланс", id)
	if errors.Is(err, common.ErrNotFound) {
		t.Error("other errors must not become ErrNotFound")
	}
	if !errors.Is(err, cause) {
		t.Errorf("cause must be wrapped, got %v", err)
	}
}

func TestDueCommissionsQuery(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	query, args := dueCommissionsQuery(now, ledger.DueCursor{}, 50)
	if len(args) != 2 || args[1] != 50 {
		t.Errorf("first page args: %v", args)
	}
	if strings.Contains(query, "(eligible_at, id) >") {
		t.Error("first page must not filter by cursor")
	}

	after := ledger.DueCursor{EligibleAt: now.Add(-time.Hour), ID: uuid.New()}
	query, args = dueCommissionsQuery(now, after, 50)
	if len(args) != 4 || args[1] != after.EligibleAt || args[2] != after.ID || args[3] != 50 {
		t.Errorf("next page args: %v", args)
	}
	if !strings.Contains(query, "(eligible_at, id) > ($2, $3)") || !strings.Contains(query, "LIMIT $4") {
		t.Errorf("next page query: %s", query)
	}
	if !strings.Contains(query, "ORDER BY eligible_at ASC, id ASC") {
		t.Error("order must match the cursor")
	}
}
