package volume

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/mmn-engine/pkg/db/models"
	"github.com/angelmondragon/mmn-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/mmn-engine/pkg/errors"
)

// LegVolumes is the weaker/stronger split of a period record. The weaker leg
// is consumed entirely; only the stronger leg's surplus carries forward.
type LegVolumes struct {
	TotalLeft            decimal.Decimal `json:"total_left"`
	TotalRight           decimal.Decimal `json:"total_right"`
	WeakerLeg            decimal.Decimal `json:"weaker_leg"`
	StrongerLeg          decimal.Decimal `json:"stronger_leg"`
	WeakerSide           enums.Position  `json:"weaker_side"`
	CommissionableVolume decimal.Decimal `json:"commissionable_volume"`
	NewLeftCarryForward  decimal.Decimal `json:"new_left_carry_forward"`
	NewRightCarryForward decimal.Decimal `json:"new_right_carry_forward"`
}

// ComputeLegVolumes splits a record into weaker and stronger legs. Ties count
// the left leg as weaker.
func ComputeLegVolumes(record models.VolumePeriodRecord) (LegVolumes, error) {
	for name, value := range map[string]decimal.Decimal{
		"left_volume":         record.LeftVolume,
		"right_volume":        record.RightVolume,
		"left_carry_forward":  record.LeftCarryForward,
		"right_carry_forward": record.RightCarryForward,
	} {
		if value.IsNegative() {
			return LegVolumes{}, pkgerrors.Newf(pkgerrors.CodeInternal, "negative %s on volume record %s", name, record.ID)
		}
	}
	return splitLegs(record.LeftTotal(), record.RightTotal()), nil
}

func splitLegs(left, right decimal.Decimal) LegVolumes {
	out := LegVolumes{
		TotalLeft:            left,
		TotalRight:           right,
		NewLeftCarryForward:  decimal.Zero,
		NewRightCarryForward: decimal.Zero,
	}
	if right.LessThan(left) {
		out.WeakerSide = enums.PositionRight
		out.WeakerLeg = right
		out.StrongerLeg = left
		out.NewLeftCarryForward = left.Sub(right)
	} else {
		out.WeakerSide = enums.PositionLeft
		out.WeakerLeg = left
		out.StrongerLeg = right
		out.NewRightCarryForward = right.Sub(left)
	}
	out.CommissionableVolume = out.WeakerLeg
	return out
}
