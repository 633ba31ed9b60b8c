package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/mmn-engine/pkg/db/dbtest"
	"github.com/angelmondragon/mmn-engine/pkg/db/models"
	"github.com/angelmondragon/mmn-engine/pkg/enums"
	"github.com/angelmondragon/mmn-engine/pkg/logger"
)

func TestEmitWritesEnvelope(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	svc := NewService(repo, logger.Discard())

	tenantID := uuid.New()
	memberID := uuid.New()
	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			TenantID:      tenantID,
			EventType:     enums.EventMemberPlaced,
			AggregateType: enums.AggregateMember,
			AggregateID:   memberID,
			Data:          map[string]string{"member_id": memberID.String()},
		})
	})
	require.NoError(t, err)

	rows, err := repo.ListByAggregate(context.Background(), memberID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, tenantID, rows[0].TenantID)
	assert.Equal(t, enums.EventMemberPlaced, rows[0].EventType)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	assert.Equal(t, 1, envelope.Version)
	assert.Equal(t, tenantID, envelope.TenantID)
	assert.NotEmpty(t, envelope.EventID)
	assert.JSONEq(t, `{"member_id":"`+memberID.String()+`"}`, string(envelope.Data))
}

func TestEmitRequiresTransaction(t *testing.T) {
	svc := NewService(NewRepository(nil), nil)
	err := svc.Emit(context.Background(), nil, DomainEvent{})
	require.Error(t, err)
}

func TestEmitRejectsIncompleteEvents(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), nil)

	complete := DomainEvent{
		TenantID:      uuid.New(),
		EventType:     enums.EventRankChanged,
		AggregateType: enums.AggregateRank,
		AggregateID:   uuid.New(),
		Data:          map[string]string{},
	}
	for name, mutate := range map[string]func(*DomainEvent){
		"tenant":    func(e *DomainEvent) { e.TenantID = uuid.Nil },
		"type":      func(e *DomainEvent) { e.EventType = "" },
		"aggregate": func(e *DomainEvent) { e.AggregateID = uuid.Nil },
	} {
		event := complete
		mutate(&event)
		assert.Error(t, svc.Emit(context.Background(), conn, event), name)
	}
	assert.NoError(t, svc.Emit(context.Background(), conn, complete))
}

func TestDeletePublishedBefore(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)

	row := models.OutboxEvent{
		TenantID:      uuid.New(),
		EventType:     enums.EventPayoutCompleted,
		AggregateType: enums.AggregatePayout,
		AggregateID:   uuid.New(),
		Payload:       []byte(`{"data":{}}`),
	}
	pending := row
	pending.AggregateID = uuid.New()
	require.NoError(t, repo.Insert(conn, row))
	require.NoError(t, repo.Insert(conn, pending))

	rows, err := repo.FetchUnpublishedForPublish(conn, 10, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.NoError(t, repo.MarkPublishedTx(conn, rows[0].ID))

	deleted, err := repo.DeletePublishedBefore(context.Background(), conn, time.Now().UTC().Add(-time.Hour), 0)
	require.NoError(t, err)
	assert.Zero(t, deleted, "recently published rows are kept")

	deleted, err = repo.DeletePublishedBefore(context.Background(), conn, time.Now().UTC().Add(time.Minute), 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	rows, err = repo.FetchUnpublishedForPublish(conn, 10, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 1, "unpublished rows survive retention")
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)

	first := models.OutboxEvent{
		TenantID:      uuid.New(),
		EventType:     enums.EventPayoutRequested,
		AggregateType: enums.AggregatePayout,
		AggregateID:   uuid.New(),
		Payload:       []byte(`{"data":{}}`),
	}
	second := first
	second.AggregateID = uuid.New()
	require.NoError(t, repo.Insert(conn, first))
	require.NoError(t, repo.Insert(conn, second))

	rows, err := repo.FetchUnpublishedForPublish(conn, 10, 3)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	require.NoError(t, repo.MarkPublishedTx(conn, rows[0].ID))
	require.NoError(t, repo.MarkFailedTx(conn, rows[1].ID, errors.New("topic unavailable")))

	rows, err = repo.FetchUnpublishedForPublish(conn, 10, 3)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].AttemptCount)
	require.NotNil(t, rows[0].LastError)
	assert.Equal(t, "topic unavailable", *rows[0].LastError)

	require.NoError(t, repo.MarkTerminalTx(conn, rows[0].ID, errors.New("bad payload"), 3))
	rows, err = repo.FetchUnpublishedForPublish(conn, 10, 3)
	require.NoError(t, err)
	assert.Empty(t, rows)
}
