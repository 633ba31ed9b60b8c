package outbox

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/mmn-engine/pkg/enums"
)

func TestSealDefaultsVersionAndTime(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))
	env, err := Seal(DomainEvent{
		TenantID:  uuid.New(),
		EventType: enums.EventRankChanged,
		Data:      map[string]string{"rank": "Gold"},
	}, now)
	require.NoError(t, err)

	assert.Equal(t, EnvelopeVersion, env.Version)
	assert.True(t, env.OccurredAt.Equal(now))
	assert.Equal(t, time.UTC, env.OccurredAt.Location())
	assert.NotEmpty(t, env.EventID)
	assert.JSONEq(t, `{"rank":"Gold"}`, string(env.Data))

	explicit, err := Seal(DomainEvent{Version: 3, OccurredAt: now.Add(-time.Hour), Data: 1}, now)
	require.NoError(t, err)
	assert.Equal(t, 3, explicit.Version)
	assert.True(t, explicit.OccurredAt.Equal(now.Add(-time.Hour)))
}

func TestSealRejectsUnencodablePayload(t *testing.T) {
	_, err := Seal(DomainEvent{EventType: enums.EventRankChanged, Data: make(chan int)}, time.Now())
	require.Error(t, err)
}

func TestOpen(t *testing.T) {
	env, err := Open([]byte(`{"version":1,"eventId":"e-1","data":{"rank":"Gold"}}`))
	require.NoError(t, err)
	var decoded struct{ Rank string }
	require.NoError(t, env.Decode(&decoded))
	assert.Equal(t, "Gold", decoded.Rank)

	_, err = Open([]byte(`{"version":1,"data":{}}`))
	assert.Error(t, err, "missing event id")
	_, err = Open([]byte(`{"version":1,"eventId":"e-1","data":null}`))
	assert.ErrorIs(t, err, errEmptyPayload)
	_, err = Open([]byte(`not json`))
	assert.Error(t, err)
}
