package registry

import (
	"errors"
	"fmt"
	"slices"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/angelmondragon/mmn-engine/pkg/config"
	"github.com/angelmondragon/mmn-engine/pkg/db/models"
	"github.com/angelmondragon/mmn-engine/pkg/enums"
	"github.com/angelmondragon/mmn-engine/pkg/outbox"
	"github.com/angelmondragon/mmn-engine/pkg/outbox/payloads"
)

// EventDescriptor links an event type to its aggregate, topic and payload schema.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	PayloadFactory func() interface{}
}

// ResolvedEvent is a validated outbox row with its typed payload.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    interface{}
}

// NonRetryableError marks failures that no amount of republishing will fix.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

type schema struct {
	aggregate enums.OutboxAggregateType
	payload   func() interface{}
	events []enums.OutboxEventType
}

// catalog lists every event the engine emits. All of them go to the events topic.
var catalog = []schema{
	{
		aggregate: enums.AggregateMember,
		payload:   func() interface{} { return &payloads.MemberPlacedEvent{} },
		events:    []enums.OutboxEventType{enums.EventMemberPlaced},
	},
	{
		aggregate: enums.AggregateCommission,
		payload:   func() interface{} { return &payloads.CommissionCreatedEvent{} },
		events:    []enums.OutboxEventType{enums.EventCommissionCreated},
	},
	{
		aggregate: enums.AggregateRank,
		payload:   func() interface{} { return &payloads.RankChangedEvent{} },
		events:    []enums.OutboxEventType{enums.EventRankChanged},
	},
	{
		aggregate: enums.AggregatePayout,
		payload:   func() interface{} { return &payloads.PayoutStatusEvent{} },
		events: []enums.OutboxEventType{
			enums.EventPayoutRequested,
			enums.EventPayoutProcessing,
			enums.EventPayoutCompleted,
			enums.EventPayoutFailed,
			enums.EventPayoutCancelled,
		},
	},
}

// EventRegistry resolves outbox rows against the catalog.
type EventRegistry struct {
	entries  map[enums.OutboxEventType]EventDescriptor
	validate *validator.Validate
}

func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.EventsTopic == "" {
		return nil, errors.New("events topic is required")
	}
	reg := &EventRegistry{
		entries:  make(map[enums.OutboxEventType]EventDescriptor),
		validate: validator.New(),
	}
	for _, s := range catalog {
		for _, eventType := range s.events {
			reg.entries[eventType] = EventDescriptor{
				EventType:      eventType,
				AggregateType:  s.aggregate,
				Topic:          cfg.EventsTopic,
				PayloadFactory: s.payload,
			}
		}
	}
	return reg, nil
}

// Types lists the registered event types in a stable order.
func (r *EventRegistry) Types() []enums.OutboxEventType {
	out := make([]enums.OutboxEventType, 0, len(r.entries))
	for eventType := range r.entries {
		out = append(out, eventType)
	}
	slices.Sort(out)
	return out
}

// Resolve checks the row against its descriptor and decodes the payload.
// Every failure is non-retryable.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	resolved, err := r.resolve(event)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("%s: %w", event.EventType, err))
	}
	return resolved, nil
}

func (r *EventRegistry) resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return nil, errors.New("unsupported event type")
	case desc.AggregateType != event.AggregateType:
		return nil, fmt.Errorf("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return nil, errors.New("missing aggregate_id")
	}

	envelope, err := outbox.Open(event.Payload)
	if err != nil {
		return nil, err
	}
	payload := desc.PayloadFactory()
	if err := envelope.Decode(payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if err := r.validate.Struct(payload); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
