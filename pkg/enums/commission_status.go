package enums

import "slices"

// CommissionStatus tracks a commission from calculation through settlement.
type CommissionStatus string

const (
	CommissionStatusPending   CommissionStatus = "pending"
	CommissionStatusApproved  CommissionStatus = "approved"
	CommissionStatusPaid      CommissionStatus = "paid"
	CommissionStatusCancelled CommissionStatus = "cancelled"
)

var validCommissionStatuses = []CommissionStatus{
	CommissionStatusPending,
	CommissionStatusApproved,
	CommissionStatusPaid,
	CommissionStatusCancelled,
}

// String implements fmt.Stringer.
func (c CommissionStatus) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CommissionStatus.
func (c CommissionStatus) IsValid() bool {
	return slices.Contains(validCommissionStatuses, c)
}

// ParseCommissionStatus converts raw input into a CommissionStatus.
func ParseCommissionStatus(value string) (CommissionStatus, error) {
	return parse(validCommissionStatuses, value, "commission status")
}
