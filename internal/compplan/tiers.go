package compplan

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	pkgerrors "github.com/angelmondragon/mmn-engine/pkg/errors"
)

// Tier is one rung of the rank ladder. Every requirement must be met for the
// tier to apply.
type Tier struct {
	Name             string           `json:"name" yaml:"name" validate:"required"`
	Level            int              `json:"level" yaml:"level" validate:"gte=0"`
	Requirements     TierRequirements `json:"requirements" yaml:"requirements"`
	AchievementBonus decimal.Decimal  `json:"achievement_bonus" yaml:"achievement_bonus"`
	MonthlyBonus     decimal.Decimal  `json:"monthly_bonus" yaml:"monthly_bonus"`
}

// TierRequirements are the six thresholds evaluated for a tier.
type TierRequirements struct {
	PersonalSales       decimal.Decimal `json:"personal_sales" yaml:"personal_sales"`
	TeamSales           decimal.Decimal `json:"team_sales" yaml:"team_sales"`
	ActiveDownlineCount int             `json:"active_downline_count" yaml:"active_downline_count"`
	LeftLegVolume       decimal.Decimal `json:"left_leg_volume" yaml:"left_leg_volume"`
	RightLegVolume      decimal.Decimal `json:"right_leg_volume" yaml:"right_leg_volume"`
	QualifiedLegCount   int             `json:"qualified_leg_count" yaml:"qualified_leg_count"`
}

// IsZero reports whether every threshold is zero.
func (r TierRequirements) IsZero() bool {
	return r.PersonalSales.IsZero() &&
		r.TeamSales.IsZero() &&
		r.ActiveDownlineCount == 0 &&
		r.LeftLegVolume.IsZero() &&
		r.RightLegVolume.IsZero() &&
		r.QualifiedLegCount == 0
}

type tierFile struct {
	Tiers []Tier `yaml:"tiers"`
}

// DefaultTiers is the stock ladder: Member, Bronze, Silver, Gold, Platinum, Diamond.
func DefaultTiers() []Tier {
	d := decimal.NewFromInt
	return []Tier{
		{Name: "Member", Level: 0},
		{
			Name:  "Bronze",
			Level: 1,
			Requirements: TierRequirements{
				PersonalSales: d(100), TeamSales: d(500), ActiveDownlineCount: 2,
				LeftLegVolume: d(200), RightLegVolume: d(200), QualifiedLegCount: 0,
			},
			AchievementBonus: d(50),
			MonthlyBonus:     d(25),
		},
		{
			Name:  "Silver",
			Level: 2,
			Requirements: TierRequirements{
				PersonalSales: d(200), TeamSales: d(2000), ActiveDownlineCount: 5,
				LeftLegVolume: d(800), RightLegVolume: d(800), QualifiedLegCount: 1,
			},
			AchievementBonus: d(150),
			MonthlyBonus:     d(50),
		},
		{
			Name:  "Gold",
			Level: 3,
			Requirements: TierRequirements{
				PersonalSales: d(300), TeamSales: d(5000), ActiveDownlineCount: 10,
				LeftLegVolume: d(2000), RightLegVolume: d(2000), QualifiedLegCount: 2,
			},
			AchievementBonus: d(500),
			MonthlyBonus:     d(150),
		},
		{
			Name:  "Platinum",
			Level: 4,
			Requirements: TierRequirements{
				PersonalSales: d(500), TeamSales: d(15000), ActiveDownlineCount: 25,
				LeftLegVolume: d(6000), RightLegVolume: d(6000), QualifiedLegCount: 2,
			},
			AchievementBonus: d(1500),
			MonthlyBonus:     d(400),
		},
		{
			Name:  "Diamond",
			Level: 5,
			Requirements: TierRequirements{
				PersonalSales: d(1000), TeamSales: d(50000), ActiveDownlineCount: 50,
				LeftLegVolume: d(20000), RightLegVolume: d(20000), QualifiedLegCount: 2,
			},
			AchievementBonus: d(5000),
			MonthlyBonus:     d(1000),
		},
	}
}

// LoadTiersFile reads a YAML tier ladder from disk.
func LoadTiersFile(path string) ([]Tier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rank tiers %q: %w", path, err)
	}
	return ParseTiers(data)
}

// ParseTiers decodes a YAML document of the form `tiers: [...]`.
func ParseTiers(data []byte) ([]Tier, error) {
	var file tierFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode rank tiers")
	}
	if err := validateTiers(file.Tiers); err != nil {
		return nil, err
	}
	return file.Tiers, nil
}

func validateTiers(tiers []Tier) error {
	if len(tiers) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one rank tier is required")
	}
	if !tiers[0].Requirements.IsZero() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "first rank tier %q must have zero thresholds", tiers[0].Name)
	}
	for i, tier := range tiers {
		if err := planValidator.Struct(tier); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid rank tier")
		}
		if i > 0 && tier.Level <= tiers[i-1].Level {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "rank tier %q must have a level above %q", tier.Name, tiers[i-1].Name)
		}
		if tier.AchievementBonus.IsNegative() || tier.MonthlyBonus.IsNegative() {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "rank tier %q has a negative bonus", tier.Name)
		}
	}
	return nil
}
