package db

import (
	"context"

	"gorm.io/gorm"
)

// Joined runs transactional work inside an already open transaction. Nested
// calls become savepoints, so a failing step rolls back only its own writes
// unless the caller propagates the error.
type Joined struct {
	tx *gorm.DB
}

func Join(tx *gorm.DB) Joined {
	return Joined{tx: tx}
}

func (j Joined) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return j.tx.WithContext(ctx).Transaction(fn)
}
