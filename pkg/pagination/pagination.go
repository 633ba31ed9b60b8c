package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DefaultLimit = 25
	MaxLimit     = 100
)

// ErrInvalidCursor is returned for cursors this package did not produce.
var ErrInvalidCursor = errors.New("invalid cursor")

// Params is a keyset page request. Cursor is the NextCursor of the previous page.
type Params struct {
	Limit  int
	Cursor string
}

// Cursor is the (timestamp, id) key of the last row on a page. Rows are always
// walked newest first with id as the tie-breaker.
type Cursor struct {
	At time.Time
	ID uuid.UUID
}

func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// Encode renders c as an opaque URL-safe token.
func (c Cursor) Encode() string {
	raw := strconv.FormatInt(c.At.UTC().UnixMicro(), 10) + "." + c.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// ParseCursor decodes a token produced by Encode. An empty token is the first page.
func ParseCursor(value string) (*Cursor, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	micros, rawID, ok := strings.Cut(string(decoded), ".")
	if !ok {
		return nil, ErrInvalidCursor
	}
	at, err := strconv.ParseInt(micros, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: timestamp: %v", ErrInvalidCursor, err)
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("%w: id: %v", ErrInvalidCursor, err)
	}
	return &Cursor{At: time.UnixMicro(at).UTC(), ID: id}, nil
}

// Apply orders query by column descending and, when cursor is set, resumes
// strictly after it. One extra row is requested so Trim can detect a next page.
func Apply(query *gorm.DB, column string, cursor *Cursor, limit int) *gorm.DB {
	if cursor != nil {
		query = query.Where(
			fmt.Sprintf("(%[1]s < ?) OR (%[1]s = ? AND id < ?)", column),
			cursor.At, cursor.At, cursor.ID,
		)
	}
	return query.
		Order(column + " DESC").
		Order("id DESC").
		Limit(NormalizeLimit(limit) + 1)
}

// Trim cuts rows fetched through Apply down to limit and returns the cursor of
// the next page, or "" on the last page.
func Trim[T any](rows []T, limit int, key func(T) Cursor) ([]T, string) {
	limit = NormalizeLimit(limit)
	if len(rows) <= limit {
		return rows, ""
	}
	rows = rows[:limit]
	return rows, key(rows[limit-1]).Encode()
}
