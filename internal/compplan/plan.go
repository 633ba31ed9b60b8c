package compplan

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/mmn-engine/pkg/config"
	"github.com/angelmondragon/mmn-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/mmn-engine/pkg/errors"
)

// SpilloverBreadthFirst is the only placement strategy the engine implements.
const SpilloverBreadthFirst = "breadth_first"

var hundred = decimal.NewFromInt(100)

// Plan is the resolved compensation configuration of one tenant. Rates are
// percentages (10 means 10%).
type Plan struct {
	TenantID              uuid.UUID         `json:"tenant_id"`
	Name                  string            `json:"name"`
	Currency              string            `json:"currency" validate:"required,len=3"`
	BinaryCommissionRate  decimal.Decimal   `json:"binary_commission_rate"`
	MaxPayoutPercentage   decimal.Decimal   `json:"max_payout_percentage"`
	WeakerLegPercentage   decimal.Decimal   `json:"weaker_leg_percentage"`
	UnilevelLevels        int               `json:"unilevel_levels" validate:"gte=0,lte=50"`
	UnilevelRates         []decimal.Decimal `json:"unilevel_rates"`
	MatchingBonusRate     decimal.Decimal   `json:"matching_bonus_rate"`
	MinimumPayout         decimal.Decimal   `json:"minimum_payout"`
	PaymentFrequency      enums.PeriodType  `json:"payment_frequency" validate:"oneof=daily weekly monthly"`
	SpilloverStrategy     string            `json:"spillover_strategy" validate:"oneof=breadth_first"`
	PersonalSalesRequired decimal.Decimal   `json:"personal_sales_required"`
	MinimumActiveDownline int               `json:"minimum_active_downline" validate:"gte=0"`
	MaxPlacementDepth     int               `json:"max_placement_depth" validate:"gte=1,lte=1024"`
	RankTiers             []Tier            `json:"rank_tiers" validate:"min=1,dive"`
}

var planValidator = validator.New()

// FromConfig builds the default plan from environment configuration.
func FromConfig(cfg config.CompensationConfig) (*Plan, error) {
	rates := make([]decimal.Decimal, 0, len(cfg.UnilevelRates))
	for _, raw := range cfg.UnilevelRates {
		rate, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("unilevel rate %q: %w", raw, err)
		}
		rates = append(rates, rate)
	}

	plan := &Plan{
		Name:                  "default",
		Currency:              cfg.Currency,
		UnilevelLevels:        cfg.UnilevelLevels,
		UnilevelRates:         rates,
		PaymentFrequency:      enums.PeriodType(cfg.PaymentFrequency),
		SpilloverStrategy:     cfg.SpilloverStrategy,
		MinimumActiveDownline: cfg.MinimumActiveDownline,
		MaxPlacementDepth:     cfg.MaxPlacementDepth,
	}

	for _, field := range []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"binary commission rate", cfg.BinaryCommissionRate, &plan.BinaryCommissionRate},
		{"max payout percentage", cfg.MaxPayoutPercentage, &plan.MaxPayoutPercentage},
		{"weaker leg percentage", cfg.WeakerLegPercentage, &plan.WeakerLegPercentage},
		{"matching bonus rate", cfg.MatchingBonusRate, &plan.MatchingBonusRate},
		{"minimum payout", cfg.MinimumPayout, &plan.MinimumPayout},
		{"personal sales required", cfg.PersonalSalesRequired, &plan.PersonalSalesRequired},
	} {
		value, err := decimal.NewFromString(strings.TrimSpace(field.raw))
		if err != nil {
			return nil, fmt.Errorf("%s %q: %w", field.name, field.raw, err)
		}
		*field.dst = value
	}

	tiers := DefaultTiers()
	if path := strings.TrimSpace(cfg.RankTiersFile); path != "" {
		loaded, err := LoadTiersFile(path)
		if err != nil {
			return nil, err
		}
		tiers = loaded
	}
	plan.RankTiers = tiers

	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return plan, nil
}

// Validate checks the plan is internally consistent.
func (p *Plan) Validate() error {
	if p == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "plan is required")
	}
	if err := planValidator.Struct(p); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid compensation plan")
	}
	if !enums.Currency(p.Currency).IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "unsupported currency %q", p.Currency)
	}
	for name, value := range map[string]decimal.Decimal{
		"binary_commission_rate":  p.BinaryCommissionRate,
		"matching_bonus_rate":     p.MatchingBonusRate,
		"minimum_payout":          p.MinimumPayout,
		"personal_sales_required": p.PersonalSalesRequired,
	} {
		if value.IsNegative() {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "%s must not be negative", name)
		}
	}
	for name, value := range map[string]decimal.Decimal{
		"max_payout_percentage": p.MaxPayoutPercentage,
		"weaker_leg_percentage": p.WeakerLegPercentage,
	} {
		if value.IsNegative() || value.GreaterThan(hundred) {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "%s must be between 0 and 100", name)
		}
	}
	if len(p.UnilevelRates) < p.UnilevelLevels {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "unilevel_rates has %d entries for %d levels", len(p.UnilevelRates), p.UnilevelLevels)
	}
	for i, rate := range p.UnilevelRates {
		if rate.IsNegative() {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "unilevel rate for level %d must not be negative", i+1)
		}
	}
	return validateTiers(p.RankTiers)
}

// UnilevelRate returns the percentage paid at the given upline level (1-based).
func (p *Plan) UnilevelRate(level int) decimal.Decimal {
	if level < 1 || level > p.UnilevelLevels || level > len(p.UnilevelRates) {
		return decimal.Zero
	}
	return p.UnilevelRates[level-1]
}

// ForTenant returns a copy of the plan bound to tenantID.
func (p *Plan) ForTenant(tenantID uuid.UUID) *Plan {
	clone := *p
	clone.TenantID = tenantID
	clone.UnilevelRates = append([]decimal.Decimal(nil), p.UnilevelRates...)
	clone.RankTiers = append([]Tier(nil), p.RankTiers...)
	return &clone
}

// Percent applies a percentage rate to an amount.
func Percent(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(rate).Div(hundred)
}
