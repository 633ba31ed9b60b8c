package enums

import "slices"

// PayoutStatus tracks a payout request through the settlement workflow.
type PayoutStatus string

const (
	PayoutStatusPending    PayoutStatus = "pending"
	PayoutStatusProcessing PayoutStatus = "processing"
	PayoutStatusCompleted  PayoutStatus = "completed"
	PayoutStatusFailed     PayoutStatus = "failed"
	PayoutStatusCancelled  PayoutStatus = "cancelled"
)

var validPayoutStatuses = []PayoutStatus{
	PayoutStatusPending,
	PayoutStatusProcessing,
	PayoutStatusCompleted,
	PayoutStatusFailed,
	PayoutStatusCancelled,
}

// String implements fmt.Stringer.
func (p PayoutStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PayoutStatus.
func (p PayoutStatus) IsValid() bool {
	return slices.Contains(validPayoutStatuses, p)
}

// ParsePayoutStatus converts raw input into a PayoutStatus.
func ParsePayoutStatus(value string) (PayoutStatus, error) {
	return parse(validPayoutStatuses, value, "payout status")
}

// IsOpen reports whether commissions referenced by the payout are still settled by it.
func (p PayoutStatus) IsOpen() bool {
	return p == PayoutStatusPending || p == PayoutStatusProcessing || p == PayoutStatusCompleted
}
