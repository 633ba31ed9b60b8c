package dbtypes

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// JSON stores raw JSON in a jsonb column. Values are written as text so the
// simple query protocol does not encode them as bytea.
type JSON json.RawMessage

// MarshalJSONValue encodes v into a JSON column value.
func MarshalJSONValue(v any) (JSON, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return JSON(raw), nil
}

// Unmarshal decodes the stored document into v.
func (j JSON) Unmarshal(v any) error {
	if len(j) == 0 {
		return nil
	}
	return json.Unmarshal(j, v)
}

// GormDBDataType picks the column type for schema migration per dialect.
func (JSON) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "jsonb"
	}
	return "text"
}

func (j JSON) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return string(j), nil
}

func (j *JSON) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*j = nil
	case string:
		*j = JSON(v)
	case []byte:
		buf := make([]byte, len(v))
		copy(buf, v)
		*j = JSON(buf)
	default:
		return fmt.Errorf("JSON: unsupported Scan type %T", src)
	}
	return nil
}

// MarshalJSON keeps the document inline when the owning struct is encoded.
func (j JSON) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (j *JSON) UnmarshalJSON(data []byte) error {
	buf := make([]byte, len(data))
	copy(buf, data)
	*j = JSON(buf)
	return nil
}
