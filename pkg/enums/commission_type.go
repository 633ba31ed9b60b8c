package enums

import "slices"

// CommissionType maps to the commission_type enum in Postgres.
type CommissionType string

const (
	CommissionTypeBinary     CommissionType = "binary"
	CommissionTypeUnilevel   CommissionType = "unilevel"
	CommissionTypeMatching   CommissionType = "matching"
	CommissionTypeLeadership CommissionType = "leadership"
)

var validCommissionTypes = []CommissionType{
	CommissionTypeBinary,
	CommissionTypeUnilevel,
	CommissionTypeMatching,
	CommissionTypeLeadership,
}

// String implements fmt.Stringer.
func (c CommissionType) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CommissionType.
func (c CommissionType) IsValid() bool {
	return slices.Contains(validCommissionTypes, c)
}

// ParseCommissionType converts raw input into a CommissionType.
func ParseCommissionType(value string) (CommissionType, error) {
	return parse(validCommissionTypes, value, "commission type")
}
