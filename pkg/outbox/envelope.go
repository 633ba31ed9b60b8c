package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnvelopeVersion is stamped on events that do not pick their own version.
const EnvelopeVersion = 1

// PayloadEnvelope wraps every event payload stored in outbox_events.Payload.
// Consumers dedupe on EventID.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	TenantID   uuid.UUID       `json:"tenantId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Data       json.RawMessage `json:"data"`
}

var errEmptyPayload = errors.New("envelope carries no payload")

// Seal encodes event.Data and wraps it in a fresh envelope.
func Seal(event DomainEvent, now time.Time) (PayloadEnvelope, error) {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return PayloadEnvelope{}, fmt.Errorf("encode %s payload: %w", event.EventType, err)
	}
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = now
	}
	version := event.Version
	if version == 0 {
		version = EnvelopeVersion
	}
	return PayloadEnvelope{
		Version:    version,
		EventID:    uuid.NewString(),
		TenantID:   event.TenantID,
		OccurredAt: occurred.UTC(),
		Data:       data,
	}, nil
}

// Open decodes a stored envelope and rejects ones without an id or payload.
func Open(raw []byte) (PayloadEnvelope, error) {
	var env PayloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return PayloadEnvelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.EventID == "" {
		return PayloadEnvelope{}, errors.New("envelope missing eventId")
	}
	if data := bytes.TrimSpace(env.Data); len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return PayloadEnvelope{}, errEmptyPayload
	}
	return env, nil
}

// Decode unmarshals the payload into dst.
func (e PayloadEnvelope) Decode(dst any) error {
	return json.Unmarshal(e.Data, dst)
}
