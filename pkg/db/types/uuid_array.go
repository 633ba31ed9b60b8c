package dbtypes

import (
	"database/sql/driver"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// UUIDArray is a uuid[] column on Postgres and an array literal in a text
// column elsewhere. Payouts use it to pin the commissions they settle.
type UUIDArray []uuid.UUID

func (UUIDArray) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "uuid[]"
	}
	return "text"
}

func (a *UUIDArray) Scan(src any) error {
	var raw pq.StringArray
	if err := raw.Scan(src); err != nil {
		return fmt.Errorf("UUIDArray: %w", err)
	}
	ids := make(UUIDArray, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return fmt.Errorf("UUIDArray: parse %q: %w", s, err)
		}
		ids = append(ids, id)
	}
	*a = ids
	return nil
}

func (a UUIDArray) Value() (driver.Value, error) {
	raw := make(pq.StringArray, len(a))
	for i, id := range a {
		raw[i] = id.String()
	}
	return raw.Value()
}

func (a UUIDArray) Contains(id uuid.UUID) bool {
	return slices.Contains(a, id)
}
