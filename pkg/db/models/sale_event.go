package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbtypes "github.com/angelmondragon/mmn-engine/pkg/db/types"
	"github.com/angelmondragon/mmn-engine/pkg/enums"
)

// SaleEvent records one ingested sale. The reference is unique per tenant so a
// replayed sale never credits volume twice.
type SaleEvent struct {
	ID          uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	TenantID    uuid.UUID        `gorm:"column:tenant_id;type:uuid;not null;uniqueIndex:ux_sale_events_reference,priority:1"`
	Reference   string           `gorm:"column:reference;not null;uniqueIndex:ux_sale_events_reference,priority:2"`
	MemberID    uuid.UUID        `gorm:"column:member_id;type:uuid;not null;index"`
	Volume      decimal.Decimal  `gorm:"column:volume;type:numeric(18,2);not null"`
	PeriodType  enums.PeriodType `gorm:"column:period_type;type:period_type;not null"`
	PeriodStart time.Time        `gorm:"column:period_start;not null"`
	PeriodEnd   time.Time        `gorm:"column:period_end;not null"`
	Metadata    dbtypes.JSON     `gorm:"column:metadata;type:jsonb"`
	CreatedAt   time.Time        `gorm:"column:created_at;autoCreateTime"`
}

func (e *SaleEvent) BeforeCreate(*gorm.DB) error {
	assignID(&e.ID)
	return nil
}
