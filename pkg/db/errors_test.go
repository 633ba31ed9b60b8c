package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		constraint string
		want       bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "pgx match", err: &pgconn.PgError{Code: "23505", ConstraintName: "ux_member_nodes_parent_position"}, constraint: "ux_member_nodes_parent_position", want: true},
		{name: "pgx other constraint", err: &pgconn.PgError{Code: "23505", ConstraintName: "ux_other"}, constraint: "ux_member_nodes_parent_position", want: false},
		{name: "pgx fk violation", err: &pgconn.PgError{Code: "23503"}, want: false},
		{name: "pq wrapped", err: fmt.Errorf("insert: %w", &pq.Error{Code: "23505", Constraint: "ux_commissions_idempotency"}), constraint: "ux_commissions_idempotency", want: true},
		{name: "sqlite", err: errors.New("UNIQUE constraint failed: member_nodes.parent_id, member_nodes.position"), want: true},
		{name: "plain", err: errors.New("boom"), want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsUniqueViolation(tc.err, tc.constraint); got != tc.want {
				t.Fatalf("IsUniqueViolation() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestIsRetryableTxError(t *testing.T) {
	if !IsRetryableTxError(fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40001"})) {
		t.Fatal("serialization failure should be retryable")
	}
	if !IsRetryableTxError(&pq.Error{Code: "40P01"}) {
		t.Fatal("deadlock should be retryable")
	}
	if IsRetryableTxError(&pgconn.PgError{Code: "23505"}) || IsRetryableTxError(errors.New("boom")) {
		t.Fatal("only serialization and deadlock failures are retryable")
	}
}
