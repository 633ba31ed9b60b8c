package enums

import "slices"

// Position is the slot a member occupies under its binary parent; maps to member_position.
type Position string

const (
	PositionLeft  Position = "left"
	PositionRight Position = "right"
)

var validPositions = []Position{
	PositionLeft,
	PositionRight,
}

// String implements fmt.Stringer.
func (p Position) String() string {
	return string(p)
}

// IsValid reports whether the value is a known Position.
func (p Position) IsValid() bool {
	return slices.Contains(validPositions, p)
}

// ParsePosition converts raw input into a Position.
func ParsePosition(value string) (Position, error) {
	return parse(validPositions, value, "position")
}

// Opposite returns the other slot.
func (p Position) Opposite() Position {
	if p == PositionLeft {
		return PositionRight
	}
	return PositionLeft
}

// PathSegment is the single-letter encoding used in member paths.
func (p Position) PathSegment() string {
	if p == PositionLeft {
		return "L"
	}
	return "R"
}
