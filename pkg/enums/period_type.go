package enums

import "slices"

// PeriodType names the cadence a volume period covers.
type PeriodType string

const (
	PeriodTypeDaily   PeriodType = "daily"
	PeriodTypeWeekly  PeriodType = "weekly"
	PeriodTypeMonthly PeriodType = "monthly"
)

var validPeriodTypes = []PeriodType{
	PeriodTypeDaily,
	PeriodTypeWeekly,
	PeriodTypeMonthly,
}

// String implements fmt.Stringer.
func (p PeriodType) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PeriodType.
func (p PeriodType) IsValid() bool {
	return slices.Contains(validPeriodTypes, p)
}

// ParsePeriodType converts raw input into a PeriodType.
func ParsePeriodType(value string) (PeriodType, error) {
	return parse(validPeriodTypes, value, "period type")
}
