package db

import (
	"strings"

	pkgerrors "github.com/angelmondragon/mmn-engine/pkg/errors"
)

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// IsUniqueViolation reports whether err is a unique constraint violation from
// Postgres (pgx or lib/pq) or SQLite. A non-empty constraintName must match the
// violated index.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	if detail, ok := pkgerrors.PostgresDetail(err); ok {
		return detail.Code == pgUniqueViolation &&
			(constraintName == "" || detail.Constraint == constraintName)
	}

	// SQLite names the columns rather than the index.
	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint failed") {
		return true
	}
	return strings.Contains(msg, "duplicate key value") &&
		(constraintName == "" || strings.Contains(msg, constraintName))
}

// IsRetryableTxError reports serialization failures and deadlocks, which
// Postgres resolves by aborting one of the competing transactions.
func IsRetryableTxError(err error) bool {
	detail, ok := pkgerrors.PostgresDetail(err)
	if !ok {
		return false
	}
	return detail.Code == pgSerializationFailure || detail.Code == pgDeadlockDetected
}
