package commissions

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/mmn-engine/internal/compplan"
	"github.com/angelmondragon/mmn-engine/internal/volume"
)

const amountPlaces = 2

// BinaryBreakdown shows how a binary commission amount was reached.
type BinaryBreakdown struct {
	CommissionableVolume decimal.Decimal `json:"commissionable_volume"`
	RawAmount            decimal.Decimal `json:"raw_amount"`
	Cap                  decimal.Decimal `json:"cap"`
	Amount               decimal.Decimal `json:"amount"`
	Capped               bool            `json:"capped"`
}

// ComputeBinary pays the binary rate on the credited share of the weaker leg,
// capped at MaxPayoutPercentage of the commissionable volume.
func ComputeBinary(legs volume.LegVolumes, plan *compplan.Plan) BinaryBreakdown {
	raw := compplan.Percent(compplan.Percent(legs.WeakerLeg, plan.BinaryCommissionRate), plan.WeakerLegPercentage)
	ceiling := compplan.Percent(legs.CommissionableVolume, plan.MaxPayoutPercentage)
	out := BinaryBreakdown{
		CommissionableVolume: legs.CommissionableVolume,
		RawAmount:            raw,
		Cap:                  ceiling,
		Amount:               raw,
	}
	if raw.GreaterThan(ceiling) {
		out.Amount = ceiling
		out.Capped = true
	}
	out.Amount = out.Amount.Round(amountPlaces)
	return out
}

// ComputeShare applies a percentage rate and rounds to cents.
func ComputeShare(base, rate decimal.Decimal) decimal.Decimal {
	return compplan.Percent(base, rate).Round(amountPlaces)
}
