package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbtypes "github.com/angelmondragon/mmn-engine/pkg/db/types"
	"github.com/angelmondragon/mmn-engine/pkg/enums"
)

// OutboxEvent represents an append-only event emitted via the outbox pattern.
type OutboxEvent struct {
	ID            uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	TenantID      uuid.UUID                 `gorm:"column:tenant_id;type:uuid;not null"`
	EventType     enums.OutboxEventType     `gorm:"column:event_type;type:outbox_event_type;not null"`
	AggregateType enums.OutboxAggregateType `gorm:"column:aggregate_type;type:outbox_aggregate_type;not null"`
	AggregateID   uuid.UUID                 `gorm:"column:aggregate_id;type:uuid;not null"`
	Payload       dbtypes.JSON              `gorm:"column:payload;not null"`
	CreatedAt     time.Time                 `gorm:"column:created_at;autoCreateTime"`
	PublishedAt   *time.Time                `gorm:"column:published_at;index:idx_outbox_events_unpublished"`
	AttemptCount  int                       `gorm:"column:attempt_count;not null;default:0"`
	LastError     *string                   `gorm:"column:last_error"`
}

func (e *OutboxEvent) BeforeCreate(*gorm.DB) error {
	assignID(&e.ID)
	return nil
}

// All returns every model owned by the engine, in dependency order.
func All() []any {
	return []any{
		&CompensationPlan{},
		&MemberNode{},
		&GenealogyEdge{},
		&VolumePeriodRecord{},
		&SaleEvent{},
		&Commission{},
		&MemberRank{},
		&Payout{},
		&OutboxEvent{},
	}
}
