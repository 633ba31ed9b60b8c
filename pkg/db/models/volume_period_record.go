package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/mmn-engine/pkg/enums"
	"github.com/angelmondragon/mmn-engine/pkg/types"
)

// VolumePeriodRecord accumulates a member's volume for one period. The carry
// columns hold what was brought in from the previous period.
type VolumePeriodRecord struct {
	ID                uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	TenantID          uuid.UUID        `gorm:"column:tenant_id;type:uuid;not null"`
	MemberID          uuid.UUID        `gorm:"column:member_id;type:uuid;not null;uniqueIndex:ux_volume_period_member_period,priority:1"`
	PeriodType        enums.PeriodType `gorm:"column:period_type;type:period_type;not null;uniqueIndex:ux_volume_period_member_period,priority:2"`
	PeriodStart       time.Time        `gorm:"column:period_start;not null;uniqueIndex:ux_volume_period_member_period,priority:3"`
	PeriodEnd         time.Time        `gorm:"column:period_end;not null;uniqueIndex:ux_volume_period_member_period,priority:4"`
	PersonalVolume    decimal.Decimal  `gorm:"column:personal_volume;type:numeric(18,2);not null;default:0"`
	TotalVolume       decimal.Decimal  `gorm:"column:total_volume;type:numeric(18,2);not null;default:0"`
	LeftVolume        decimal.Decimal  `gorm:"column:left_volume;type:numeric(18,2);not null;default:0"`
	RightVolume       decimal.Decimal  `gorm:"column:right_volume;type:numeric(18,2);not null;default:0"`
	LeftCarryForward  decimal.Decimal  `gorm:"column:left_carry_forward;type:numeric(18,2);not null;default:0"`
	RightCarryForward decimal.Decimal  `gorm:"column:right_carry_forward;type:numeric(18,2);not null;default:0"`
	IsProcessed       bool             `gorm:"column:is_processed;not null;default:false"`
	ProcessedAt       *time.Time       `gorm:"column:processed_at"`
	CreatedAt         time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (r *VolumePeriodRecord) BeforeCreate(*gorm.DB) error {
	assignID(&r.ID)
	return nil
}

// Period rebuilds the period value the record belongs to.
func (r VolumePeriodRecord) Period() types.Period {
	return types.Period{Type: r.PeriodType, Start: r.PeriodStart, End: r.PeriodEnd}.Normalized()
}

// LeftTotal is the left leg volume including carry-forward.
func (r VolumePeriodRecord) LeftTotal() decimal.Decimal {
	return r.LeftVolume.Add(r.LeftCarryForward)
}

// RightTotal is the right leg volume including carry-forward.
func (r VolumePeriodRecord) RightTotal() decimal.Decimal {
	return r.RightVolume.Add(r.RightCarryForward)
}
