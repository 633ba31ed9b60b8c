package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/mmn-engine/pkg/db/models"
	"github.com/angelmondragon/mmn-engine/pkg/outbox/registry"
	"github.com/angelmondragon/mmn-engine/pkg/pubsub"
)

type outcome int

const (
	outcomePublished outcome = iota
	outcomeRetry
	outcomeParked
)

// processBatch locks the next batch of rows, delivers each one and records the
// outcome in the same transaction. It reports whether any row was claimed.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	claimed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return fmt.Errorf("fetch outbox batch: %w", err)
		}
		claimed = len(events) > 0
		for _, event := range events {
			if err := s.settle(ctx, tx, event); err != nil {
				return err
			}
		}
		return nil
	})
	return claimed, err
}

func (s *Service) settle(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) error {
	fields := eventFields(event)
	result, cause := s.deliver(ctx, event, fields)
	logCtx := s.logg.WithFields(ctx, fields)

	switch result {
	case outcomePublished:
		if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.logg.Info(logCtx, "outbox event published")
	case outcomeRetry:
		s.logg.Warn(s.logg.WithField(logCtx, "error", cause.Error()), "outbox publish failed")
		if err := s.repo.MarkFailedTx(tx, event.ID, cause); err != nil {
			return fmt.Errorf("mark failure %s: %w", event.ID, err)
		}
	case outcomeParked:
		s.logg.Warn(s.logg.WithField(logCtx, "error", cause.Error()), "outbox event parked")
		if err := s.repo.MarkTerminalTx(tx, event.ID, cause, s.maxAttempts); err != nil {
			return fmt.Errorf("mark terminal %s: %w", event.ID, err)
		}
	}
	return nil
}

// deliver publishes one row. Rows the registry cannot resolve, and rows that
// exhaust their attempts, are parked rather than retried.
func (s *Service) deliver(ctx context.Context, event models.OutboxEvent, fields map[string]any) (outcome, error) {
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return outcomeParked, err
	}
	fields["event_id"] = resolved.Envelope.EventID
	fields["topic"] = resolved.Descriptor.Topic

	publishCtx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	defer cancel()
	_, err = s.sender.Send(publishCtx, resolved.Descriptor.Topic, messageFor(event, resolved))
	if err == nil {
		return outcomePublished, nil
	}

	var nonRetry registry.NonRetryableError
	if errors.As(err, &nonRetry) {
		return outcomeParked, err
	}
	attempt := event.AttemptCount + 1
	fields["attempt_count"] = attempt
	if attempt >= s.maxAttempts {
		return outcomeParked, fmt.Errorf("max publish attempts reached: %w", err)
	}
	return outcomeRetry, err
}

// messageFor carries routing data as attributes so subscribers can filter
// without decoding the payload. Events are ordered per tenant.
func messageFor(event models.OutboxEvent, resolved *registry.ResolvedEvent) pubsub.Message {
	return pubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"tenant_id":      event.TenantID.String(),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"occurred_at":    resolved.Envelope.OccurredAt.Format(time.RFC3339Nano),
		},
		OrderingKey: event.TenantID.String(),
	}
}

func eventFields(event models.OutboxEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"tenant_id":      event.TenantID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}
