package enums

import "slices"

// MemberStatus tracks whether a member participates in volume and commissions.
type MemberStatus string

const (
	MemberStatusActive    MemberStatus = "active"
	MemberStatusInactive  MemberStatus = "inactive"
	MemberStatusSuspended MemberStatus = "suspended"
)

var validMemberStatuses = []MemberStatus{
	MemberStatusActive,
	MemberStatusInactive,
	MemberStatusSuspended,
}

// String implements fmt.Stringer.
func (m MemberStatus) String() string {
	return string(m)
}

// IsValid reports whether the value is a known MemberStatus.
func (m MemberStatus) IsValid() bool {
	return slices.Contains(validMemberStatuses, m)
}

// ParseMemberStatus converts raw input into a MemberStatus.
func ParseMemberStatus(value string) (MemberStatus, error) {
	return parse(validMemberStatuses, value, "member status")
}
