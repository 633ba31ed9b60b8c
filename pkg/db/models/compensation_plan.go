package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	dbtypes "github.com/angelmondragon/mmn-engine/pkg/db/types"
)

// CompensationPlan stores per-tenant overrides of the default plan. Nil columns
// fall back to the configured defaults.
type CompensationPlan struct {
	TenantID              uuid.UUID        `gorm:"column:tenant_id;type:uuid;primaryKey"`
	Name                  string           `gorm:"column:name;not null"`
	Currency              *string          `gorm:"column:currency"`
	BinaryCommissionRate  *decimal.Decimal `gorm:"column:binary_commission_rate;type:numeric(9,4)"`
	MaxPayoutPercentage   *decimal.Decimal `gorm:"column:max_payout_percentage;type:numeric(9,4)"`
	WeakerLegPercentage   *decimal.Decimal `gorm:"column:weaker_leg_percentage;type:numeric(9,4)"`
	UnilevelLevels        *int             `gorm:"column:unilevel_levels"`
	UnilevelRates         dbtypes.JSON     `gorm:"column:unilevel_rates"`
	MatchingBonusRate     *decimal.Decimal `gorm:"column:matching_bonus_rate;type:numeric(9,4)"`
	MinimumPayout         *decimal.Decimal `gorm:"column:minimum_payout;type:numeric(18,2)"`
	PaymentFrequency      *string          `gorm:"column:payment_frequency"`
	SpilloverStrategy     *string          `gorm:"column:spillover_strategy"`
	PersonalSalesRequired *decimal.Decimal `gorm:"column:personal_sales_required;type:numeric(18,2)"`
	MinimumActiveDownline *int             `gorm:"column:minimum_active_downline"`
	MaxPlacementDepth     *int             `gorm:"column:max_placement_depth"`
	RankTiers             dbtypes.JSON     `gorm:"column:rank_tiers"`
	CreatedAt             time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
