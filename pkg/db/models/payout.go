package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbtypes "github.com/angelmondragon/mmn-engine/pkg/db/types"
	"github.com/angelmondragon/mmn-engine/pkg/enums"
)

// Payout is a withdrawal request covering a set of approved commissions.
type Payout struct {
	ID                uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	TenantID          uuid.UUID          `gorm:"column:tenant_id;type:uuid;not null"`
	MemberID          uuid.UUID          `gorm:"column:member_id;type:uuid;not null;index:idx_payouts_member_status,priority:1"`
	Amount            decimal.Decimal    `gorm:"column:amount;type:numeric(18,2);not null"`
	Fee               decimal.Decimal    `gorm:"column:fee;type:numeric(18,2);not null;default:0"`
	NetAmount         decimal.Decimal    `gorm:"column:net_amount;type:numeric(18,2);not null"`
	Currency          string             `gorm:"column:currency;not null;default:'USD'"`
	Method            enums.PayoutMethod `gorm:"column:method;type:payout_method;not null"`
	CommissionIDs     dbtypes.UUIDArray  `gorm:"column:commission_ids;not null"`
	Status            enums.PayoutStatus `gorm:"column:status;type:payout_status;not null;default:'pending';index:idx_payouts_member_status,priority:2"`
	Destination       dbtypes.JSON       `gorm:"column:destination"`
	ExternalReference *string            `gorm:"column:external_reference"`
	FailureReason     *string            `gorm:"column:failure_reason"`
	RequestedAt       time.Time          `gorm:"column:requested_at;not null"`
	ProcessedAt       *time.Time         `gorm:"column:processed_at"`
	CompletedAt       *time.Time         `gorm:"column:completed_at"`
	FailedAt          *time.Time         `gorm:"column:failed_at"`
	CancelledAt       *time.Time         `gorm:"column:cancelled_at"`
	CreatedAt         time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Payout) BeforeCreate(*gorm.DB) error {
	assignID(&p.ID)
	return nil
}
