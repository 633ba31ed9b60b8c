package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/mmn-engine/pkg/enums"
)

func TestPeriodContainingMonthly(t *testing.T) {
	at := time.Date(2026, time.September, 17, 13, 45, 0, 0, time.FixedZone("EST", -5*3600))

	p, err := PeriodContaining(enums.PeriodTypeMonthly, at)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC), p.Start)
	assert.Equal(t, time.Date(2026, time.October, 1, 0, 0, 0, 0, time.UTC), p.End)
	assert.True(t, p.Contains(at))
}

func TestPeriodContainingWeeklyStartsMonday(t *testing.T) {
	sunday := time.Date(2026, time.October, 18, 10, 0, 0, 0, time.UTC)

	p, err := PeriodContaining(enums.PeriodTypeWeekly, sunday)
	require.NoError(t, err)
	assert.Equal(t, time.Monday, p.Start.Weekday())
	assert.Equal(t, time.Date(2026, time.October, 12, 0, 0, 0, 0, time.UTC), p.Start)
	assert.Equal(t, 7*24*time.Hour, p.End.Sub(p.Start))
}

func TestPeriodNextIsContiguous(t *testing.T) {
	p, err := PeriodContaining(enums.PeriodTypeMonthly, time.Date(2026, time.January, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	next := p.Next()
	assert.Equal(t, p.End, next.Start)
	assert.Equal(t, time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC), next.End)
	assert.NoError(t, next.Validate())
}

func TestMonthlyNextStaysOnCalendarMonths(t *testing.T) {
	start := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	jan31 := time.Date(2026, time.January, 31, 0, 0, 0, 0, time.UTC)
	p, err := NewPeriod(enums.PeriodTypeMonthly, start, jan31)
	require.NoError(t, err)

	next := p.Next()
	assert.Equal(t, jan31, next.Start)
	assert.Equal(t, time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC), next.End)

	after := next.Next()
	assert.Equal(t, next.End, after.Start)
	assert.Equal(t, time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC), after.End)

	december, err := PeriodContaining(enums.PeriodTypeMonthly, time.Date(2026, time.December, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2027, time.January, 1, 0, 0, 0, 0, time.UTC), december.End)
	assert.Equal(t, time.Date(2027, time.February, 1, 0, 0, 0, 0, time.UTC), december.Next().End)
}

func TestPeriodValidate(t *testing.T) {
	start := time.Date(2026, time.May, 1, 0, 0, 0, 0, time.UTC)

	_, err := NewPeriod(enums.PeriodType("yearly"), start, start.AddDate(1, 0, 0))
	assert.ErrorIs(t, err, errPeriodType)

	_, err = NewPeriod(enums.PeriodTypeDaily, start, start)
	assert.ErrorIs(t, err, errPeriodBounds)

	_, err = PeriodContaining(enums.PeriodType(""), start)
	assert.ErrorIs(t, err, errPeriodType)
}

func TestPeriodKeyIsStable(t *testing.T) {
	start := time.Date(2026, time.May, 1, 0, 0, 0, 0, time.UTC)
	p, err := NewPeriod(enums.PeriodTypeDaily, start, start.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, "daily:2026-05-01T00:00:00Z:2026-05-02T00:00:00Z", p.Key())
}
