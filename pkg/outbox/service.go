package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/mmn-engine/pkg/db/models"
	dbtypes "github.com/angelmondragon/mmn-engine/pkg/db/types"
	"github.com/angelmondragon/mmn-engine/pkg/enums"
	"github.com/angelmondragon/mmn-engine/pkg/logger"
)

// DomainEvent is what services hand to an Emitter. Data is any JSON-encodable
// payload from pkg/outbox/payloads.
type DomainEvent struct {
	TenantID      uuid.UUID
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Data          interface{}
	Version       int
	OccurredAt    time.Time
}

func (e DomainEvent) validate() error {
	switch {
	case e.TenantID == uuid.Nil:
		return errors.New("event tenant is required")
	case e.EventType == "":
		return errors.New("event type is required")
	case e.AggregateID == uuid.Nil:
		return fmt.Errorf("%s: aggregate id is required", e.EventType)
	}
	return nil
}

// Emitter queues domain events inside the caller's transaction so they commit
// or roll back with the state change that raised them.
type Emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error
}

type Service struct {
	repo *Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	if logg == nil {
		logg = logger.Discard()
	}
	return &Service{repo: repo, logg: logg, now: time.Now}
}

func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if err := event.validate(); err != nil {
		return err
	}
	env, err := Seal(event, s.now())
	if err != nil {
		return err
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}

	if err := s.repo.Insert(tx, models.OutboxEvent{
		TenantID:      event.TenantID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       dbtypes.JSON(payload),
	}); err != nil {
		return fmt.Errorf("queue %s: %w", event.EventType, err)
	}

	s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
		"event_id":     env.EventID,
		"event_type":   event.EventType,
		"aggregate_id": event.AggregateID.String(),
	}), "outbox event queued")
	return nil
}

// Discard drops every event; used where nothing downstream consumes them.
type Discard struct{}

func (Discard) Emit(context.Context, *gorm.DB, DomainEvent) error { return nil }
