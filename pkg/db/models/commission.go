package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/mmn-engine/pkg/enums"
	"github.com/angelmondragon/mmn-engine/pkg/types"
)

// Commission is a single earning owed to a member. The idempotency index keeps
// a re-run of any calculation from producing a second row.
type Commission struct {
	ID          uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	TenantID    uuid.UUID              `gorm:"column:tenant_id;type:uuid;not null;index:idx_commissions_tenant_period,priority:1"`
	MemberID    uuid.UUID              `gorm:"column:member_id;type:uuid;not null;uniqueIndex:ux_commissions_idempotency,priority:1;index:idx_commissions_member_status,priority:1"`
	SourceID    uuid.UUID              `gorm:"column:source_id;type:uuid;not null;uniqueIndex:ux_commissions_idempotency,priority:2"`
	Type        enums.CommissionType   `gorm:"column:type;type:commission_type;not null;uniqueIndex:ux_commissions_idempotency,priority:3"`
	Level       int                    `gorm:"column:level;not null;default:0;uniqueIndex:ux_commissions_idempotency,priority:4"`
	Leg         *enums.Position        `gorm:"column:leg;type:member_position"`
	Volume      decimal.Decimal        `gorm:"column:volume;type:numeric(18,2);not null"`
	Rate        decimal.Decimal        `gorm:"column:rate;type:numeric(9,4);not null"`
	Amount      decimal.Decimal        `gorm:"column:amount;type:numeric(18,2);not null"`
	Currency    string                 `gorm:"column:currency;not null;default:'USD'"`
	Status      enums.CommissionStatus `gorm:"column:status;type:commission_status;not null;default:'pending';index:idx_commissions_member_status,priority:2"`
	PeriodType  enums.PeriodType       `gorm:"column:period_type;type:period_type;not null;uniqueIndex:ux_commissions_idempotency,priority:5;index:idx_commissions_tenant_period,priority:2"`
	PeriodStart time.Time              `gorm:"column:period_start;not null;uniqueIndex:ux_commissions_idempotency,priority:6;index:idx_commissions_tenant_period,priority:3"`
	PeriodEnd   time.Time              `gorm:"column:period_end;not null;uniqueIndex:ux_commissions_idempotency,priority:7;index:idx_commissions_tenant_period,priority:4"`
	Reference   string                 `gorm:"column:reference;not null;default:'';uniqueIndex:ux_commissions_idempotency,priority:8"`
	PayoutID    *uuid.UUID             `gorm:"column:payout_id;type:uuid;index:idx_commissions_payout"`
	Notes       *string                `gorm:"column:notes"`
	ApprovedAt  *time.Time             `gorm:"column:approved_at"`
	PaidAt      *time.Time             `gorm:"column:paid_at"`
	CancelledAt *time.Time             `gorm:"column:cancelled_at"`
	CreatedAt   time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *Commission) BeforeCreate(*gorm.DB) error {
	assignID(&c.ID)
	return nil
}

// Period rebuilds the accrual period of the commission.
func (c Commission) Period() types.Period {
	return types.Period{Type: c.PeriodType, Start: c.PeriodStart, End: c.PeriodEnd}.Normalized()
}
