package ranks

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/mmn-engine/internal/compplan"
)

var hundred = decimal.NewFromInt(100)

// Stats are the qualifying figures a member is measured on.
type Stats struct {
	PersonalSales       decimal.Decimal `json:"personal_sales"`
	TeamSales           decimal.Decimal `json:"team_sales"`
	ActiveDownlineCount int             `json:"active_downline_count"`
	LeftLegVolume       decimal.Decimal `json:"left_leg_volume"`
	RightLegVolume      decimal.Decimal `json:"right_leg_volume"`
	QualifiedLegCount   int             `json:"qualified_leg_count"`
}

// Satisfies reports whether every requirement of req is met.
func (s Stats) Satisfies(req compplan.TierRequirements) bool {
	return s.PersonalSales.GreaterThanOrEqual(req.PersonalSales) &&
		s.TeamSales.GreaterThanOrEqual(req.TeamSales) &&
		s.ActiveDownlineCount >= req.ActiveDownlineCount &&
		s.LeftLegVolume.GreaterThanOrEqual(req.LeftLegVolume) &&
		s.RightLegVolume.GreaterThanOrEqual(req.RightLegVolume) &&
		s.QualifiedLegCount >= req.QualifiedLegCount
}

// SelectTier returns the highest tier whose requirements are all met. Tiers
// are not cumulative: a tier above a failed one is still considered. The
// first tier has no thresholds, so a tier is always found.
func SelectTier(tiers []compplan.Tier, stats Stats) compplan.Tier {
	best := tiers[0]
	for _, tier := range tiers[1:] {
		if tier.Level > best.Level && stats.Satisfies(tier.Requirements) {
			best = tier
		}
	}
	return best
}

// NextTier returns the tier directly above level, or nil at the top.
func NextTier(tiers []compplan.Tier, level int) *compplan.Tier {
	for i := range tiers {
		if tiers[i].Level > level {
			next := tiers[i]
			return &next
		}
	}
	return nil
}

// Dimension is progress along one requirement.
type Dimension struct {
	Name       string          `json:"name"`
	Current    decimal.Decimal `json:"current"`
	Required   decimal.Decimal `json:"required"`
	Percentage decimal.Decimal `json:"percentage"`
}

// Dimensions measures stats against req. Percentages are capped at 100 and a
// zero requirement counts as complete.
func Dimensions(stats Stats, req compplan.TierRequirements) []Dimension {
	count := func(v int) decimal.Decimal { return decimal.NewFromInt(int64(v)) }
	return []Dimension{
		dimension("personal_sales", stats.PersonalSales, req.PersonalSales),
		dimension("team_sales", stats.TeamSales, req.TeamSales),
		dimension("active_downline_count", count(stats.ActiveDownlineCount), count(req.ActiveDownlineCount)),
		dimension("left_leg_volume", stats.LeftLegVolume, req.LeftLegVolume),
		dimension("right_leg_volume", stats.RightLegVolume, req.RightLegVolume),
		dimension("qualified_leg_count", count(stats.QualifiedLegCount), count(req.QualifiedLegCount)),
	}
}

func dimension(name string, current, required decimal.Decimal) Dimension {
	pct := hundred
	if required.IsPositive() {
		pct = current.Mul(hundred).Div(required).Round(2)
		if pct.GreaterThan(hundred) {
			pct = hundred
		}
	}
	return Dimension{Name: name, Current: current, Required: required, Percentage: pct}
}
