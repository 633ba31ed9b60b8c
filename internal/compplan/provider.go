package compplan

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/mmn-engine/pkg/db/models"
	"github.com/angelmondragon/mmn-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/mmn-engine/pkg/errors"
)

// Provider resolves the compensation plan in force for a tenant.
type Provider interface {
	PlanFor(ctx context.Context, tenantID uuid.UUID) (*Plan, error)
}

// Static serves the same plan to every tenant.
type Static struct {
	Plan *Plan
}

func (s Static) PlanFor(_ context.Context, tenantID uuid.UUID) (*Plan, error) {
	if s.Plan == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "compensation plan not configured")
	}
	return s.Plan.ForTenant(tenantID), nil
}

// StoreProvider layers the compensation_plans overrides of a tenant over the
// configured defaults.
type StoreProvider struct {
	repo     Repository
	defaults *Plan
	fallback bool
}

// NewStoreProvider returns a provider reading overrides through repo. When
// fallback is false, tenants without a stored plan are rejected.
func NewStoreProvider(repo Repository, defaults *Plan, fallback bool) (*StoreProvider, error) {
	if repo == nil {
		return nil, fmt.Errorf("compensation plan repository required")
	}
	if defaults == nil {
		return nil, fmt.Errorf("default compensation plan required")
	}
	return &StoreProvider{repo: repo, defaults: defaults, fallback: fallback}, nil
}

func (p *StoreProvider) PlanFor(ctx context.Context, tenantID uuid.UUID) (*Plan, error) {
	if tenantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant id is required")
	}
	row, err := p.repo.FindByTenant(ctx, tenantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load compensation plan")
	}
	plan := p.defaults.ForTenant(tenantID)
	if row == nil {
		if !p.fallback {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "compensation plan not found for tenant")
		}
		return plan, nil
	}
	if err := applyOverrides(plan, row); err != nil {
		return nil, err
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return plan, nil
}

func applyOverrides(plan *Plan, row *models.CompensationPlan) error {
	plan.Name = row.Name
	if row.Currency != nil {
		plan.Currency = *row.Currency
	}
	overrideDecimal(&plan.BinaryCommissionRate, row.BinaryCommissionRate)
	overrideDecimal(&plan.MaxPayoutPercentage, row.MaxPayoutPercentage)
	overrideDecimal(&plan.WeakerLegPercentage, row.WeakerLegPercentage)
	overrideDecimal(&plan.MatchingBonusRate, row.MatchingBonusRate)
	overrideDecimal(&plan.MinimumPayout, row.MinimumPayout)
	overrideDecimal(&plan.PersonalSalesRequired, row.PersonalSalesRequired)
	overrideInt(&plan.UnilevelLevels, row.UnilevelLevels)
	overrideInt(&plan.MinimumActiveDownline, row.MinimumActiveDownline)
	overrideInt(&plan.MaxPlacementDepth, row.MaxPlacementDepth)
	if row.PaymentFrequency != nil {
		plan.PaymentFrequency = enums.PeriodType(*row.PaymentFrequency)
	}
	if row.SpilloverStrategy != nil {
		plan.SpilloverStrategy = *row.SpilloverStrategy
	}
	if len(row.UnilevelRates) > 0 {
		var rates []decimal.Decimal
		if err := row.UnilevelRates.Unmarshal(&rates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode unilevel_rates override")
		}
		plan.UnilevelRates = rates
	}
	if len(row.RankTiers) > 0 {
		var tiers []Tier
		if err := row.RankTiers.Unmarshal(&tiers); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode rank_tiers override")
		}
		plan.RankTiers = tiers
	}
	return nil
}

func overrideDecimal(dst *decimal.Decimal, value *decimal.Decimal) {
	if value != nil {
		*dst = *value
	}
}

func overrideInt(dst *int, value *int) {
	if value != nil {
		*dst = *value
	}
}
