package types

import (
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/mmn-engine/pkg/enums"
)

var (
	errPeriodType   = errors.New("period: invalid type")
	errPeriodBounds = errors.New("period: end must be after start")
)

// Period identifies a volume/commission window. It is always explicit so that
// recomputation over the same period is deterministic.
type Period struct {
	Type  enums.PeriodType `json:"type"`
	Start time.Time        `json:"start"`
	End   time.Time        `json:"end"`
}

// NewPeriod builds a validated period with UTC-normalized bounds.
func NewPeriod(periodType enums.PeriodType, start, end time.Time) (Period, error) {
	p := Period{Type: periodType, Start: normalizeInstant(start), End: normalizeInstant(end)}
	if err := p.Validate(); err != nil {
		return Period{}, err
	}
	return p, nil
}

// PeriodContaining returns the calendar period of the given type that contains at.
// Weeks start on Monday.
func PeriodContaining(periodType enums.PeriodType, at time.Time) (Period, error) {
	at = at.UTC()
	day := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)

	var start time.Time
	switch periodType {
	case enums.PeriodTypeDaily:
		start = day
	case enums.PeriodTypeWeekly:
		offset := (int(day.Weekday()) + 6) % 7
		start = day.AddDate(0, 0, -offset)
	case enums.PeriodTypeMonthly:
		start = time.Date(at.Year(), at.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return Period{}, fmt.Errorf("%w %q", errPeriodType, periodType)
	}
	return NewPeriod(periodType, start, advance(periodType, start))
}

// Validate checks the period type and bounds.
func (p Period) Validate() error {
	if !p.Type.IsValid() {
		return fmt.Errorf("%w %q", errPeriodType, p.Type)
	}
	if p.Start.IsZero() || p.End.IsZero() || !p.End.After(p.Start) {
		return errPeriodBounds
	}
	return nil
}

// Normalized returns the period with UTC bounds truncated to microseconds, the
// precision Postgres keeps for timestamptz.
func (p Period) Normalized() Period {
	return Period{Type: p.Type, Start: normalizeInstant(p.Start), End: normalizeInstant(p.End)}
}

// Next returns the period that immediately follows p.
func (p Period) Next() Period {
	start := normalizeInstant(p.End)
	return Period{Type: p.Type, Start: start, End: advance(p.Type, start)}
}

// Contains reports whether t falls in [Start, End).
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// Key is a stable textual identity used for locks and log fields.
func (p Period) Key() string {
	return fmt.Sprintf("%s:%s:%s", p.Type, p.Start.UTC().Format(time.RFC3339), p.End.UTC().Format(time.RFC3339))
}

func (p Period) String() string {
	return p.Key()
}

// advance returns the end of the period starting at from. Monthly periods
// always end on the first of the following month.
func advance(periodType enums.PeriodType, from time.Time) time.Time {
	switch periodType {
	case enums.PeriodTypeDaily:
		return from.AddDate(0, 0, 1)
	case enums.PeriodTypeWeekly:
		return from.AddDate(0, 0, 7)
	default:
		from = from.UTC()
		return time.Date(from.Year(), from.Month()+1, 1, 0, 0, 0, 0, time.UTC)
	}
}

func normalizeInstant(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
