package utils

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert ballot: %w", &pgconn.PgError{Code: "23505", ConstraintName: "anonymized_ballots_voter_position_key"})

	if !IsUniqueViolation(err, "") {
		t.Fatalf("expected unique violation to be detected through wrapping")
	}
	if !IsUniqueViolation(err, "anonymized_ballots_voter_position_key") {
		t.Fatalf("expected constraint name to match")
	}
	if IsUniqueViolation(err, "ballots_voter_candidate_key") {
		t.Fatalf("expected constraint mismatch to be rejected")
	}
	if IsUniqueViolation(errors.New("boom"), "") {
		t.Fatalf("plain errors are not unique violations")
	}
}

func TestIsForeignKeyViolation(t *testing.T) {
	if !IsForeignKeyViolation(&pgconn.PgError{Code: "23503"}) {
		t.Fatalf("expected fk violation")
	}
	if IsForeignKeyViolation(&pgconn.PgError{Code: "23505"}) {
		t.Fatalf("unique violation is not an fk violation")
	}
}

func TestPoolDefaults(t *testing.T) {
	got := PostgresPoolConfig{MaxOpenConns: 10}.withDefaults()
	if got.MaxIdleConns != 10 {
		t.Fatalf("expected idle conns to follow open conns, got %d", got.MaxIdleConns)
	}
	if got.PingTimeout != 5*time.Second {
		t.Fatalf("unexpected ping timeout %v", got.PingTimeout)
	}
}

func TestHealthCheck_NilDB(t *testing.T) {
	if err := HealthCheck(t.Context(), nil, time.Second); err == nil {
		t.Fatalf("expected error for nil db")
	}
}
