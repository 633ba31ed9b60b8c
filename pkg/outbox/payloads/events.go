package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/mmn-engine/pkg/enums"
)

// MemberPlacedEvent is emitted when a member takes a seat in the tree.
type MemberPlacedEvent struct {
	MemberID  uuid.UUID       `json:"member_id" validate:"required"`
	UserID    uuid.UUID       `json:"user_id"`
	SponsorID *uuid.UUID      `json:"sponsor_id,omitempty"`
	ParentID  *uuid.UUID      `json:"parent_id,omitempty"`
	Position  *enums.Position `json:"position,omitempty"`
	Level     int             `json:"level"`
}

// CommissionCreatedEvent is emitted for every new commission row.
type CommissionCreatedEvent struct {
	CommissionID uuid.UUID            `json:"commission_id" validate:"required"`
	MemberID     uuid.UUID            `json:"member_id" validate:"required"`
	SourceID     uuid.UUID            `json:"source_id"`
	Type         enums.CommissionType `json:"type" validate:"required"`
	Level        int                  `json:"level"`
	Amount       decimal.Decimal      `json:"amount"`
	Currency     string               `json:"currency"`
	PeriodStart  time.Time            `json:"period_start"`
	PeriodEnd    time.Time            `json:"period_end"`
}

// RankChangedEvent is emitted when a member's active rank changes.
type RankChangedEvent struct {
	MemberID      uuid.UUID `json:"member_id" validate:"required"`
	PreviousRank  string    `json:"previous_rank"`
	PreviousLevel int       `json:"previous_level"`
	Rank          string    `json:"rank" validate:"required"`
	Level         int       `json:"level"`
}

// PayoutStatusEvent is emitted on every payout state transition.
type PayoutStatusEvent struct {
	PayoutID          uuid.UUID          `json:"payout_id" validate:"required"`
	MemberID          uuid.UUID          `json:"member_id" validate:"required"`
	Status            enums.PayoutStatus `json:"status" validate:"required"`
	Method            enums.PayoutMethod `json:"method" validate:"required"`
	Amount            decimal.Decimal    `json:"amount"`
	NetAmount         decimal.Decimal    `json:"net_amount"`
	CommissionIDs     []uuid.UUID        `json:"commission_ids"`
	ExternalReference *string            `json:"external_reference,omitempty"`
	Reason            *string            `json:"reason,omitempty"`
}
