package compplan

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/mmn-engine/pkg/db/dbtest"
	"github.com/angelmondragon/mmn-engine/pkg/db/models"
	dbtypes "github.com/angelmondragon/mmn-engine/pkg/db/types"
	pkgerrors "github.com/angelmondragon/mmn-engine/pkg/errors"
)

func defaultPlan(t *testing.T) *Plan {
	t.Helper()
	plan, err := FromConfig(defaultCompensationConfig())
	require.NoError(t, err)
	return plan
}

func TestStoreProviderFallsBackToDefaults(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	provider, err := NewStoreProvider(repo, defaultPlan(t), true)
	require.NoError(t, err)

	tenantID := uuid.New()
	plan, err := provider.PlanFor(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Equal(t, tenantID, plan.TenantID)
	assert.True(t, plan.BinaryCommissionRate.Equal(decimal.NewFromInt(10)))
}

func TestStoreProviderWithoutFallbackRequiresRow(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	provider, err := NewStoreProvider(repo, defaultPlan(t), false)
	require.NoError(t, err)

	_, err = provider.PlanFor(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestStoreProviderMergesOverrides(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(dbtest.Open(t))
	tenantID := uuid.New()

	rate := decimal.NewFromInt(12)
	levels := 2
	currency := "EUR"
	rates, err := dbtypes.MarshalJSONValue([]string{"7", "3"})
	require.NoError(t, err)
	require.NoError(t, repo.Upsert(ctx, &models.CompensationPlan{
		TenantID:             tenantID,
		Name:                 "euro-plan",
		Currency:             &currency,
		BinaryCommissionRate: &rate,
		UnilevelLevels:       &levels,
		UnilevelRates:        rates,
	}))

	provider, err := NewStoreProvider(repo, defaultPlan(t), false)
	require.NoError(t, err)
	plan, err := provider.PlanFor(ctx, tenantID)
	require.NoError(t, err)

	assert.Equal(t, "euro-plan", plan.Name)
	assert.Equal(t, "EUR", plan.Currency)
	assert.True(t, plan.BinaryCommissionRate.Equal(rate))
	assert.Equal(t, 2, plan.UnilevelLevels)
	assert.True(t, plan.UnilevelRate(1).Equal(decimal.NewFromInt(7)))
	assert.True(t, plan.MaxPayoutPercentage.Equal(decimal.NewFromInt(50)))
}

func TestStoreProviderRejectsInvalidOverride(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(dbtest.Open(t))
	tenantID := uuid.New()

	ceiling := decimal.NewFromInt(150)
	require.NoError(t, repo.Upsert(ctx, &models.CompensationPlan{
		TenantID:            tenantID,
		Name:                "broken",
		MaxPayoutPercentage: &ceiling,
	}))

	provider, err := NewStoreProvider(repo, defaultPlan(t), true)
	require.NoError(t, err)
	_, err = provider.PlanFor(ctx, tenantID)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

type memoryStore struct {
	values map[string]string
	ttls   map[string]time.Duration
	gets   int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	m.gets++
	value, ok := m.values[key]
	if !ok {
		return "", errors.New("redis: nil")
	}
	return value, nil
}

func (m *memoryStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	m.values[key] = value.(string)
	m.ttls[key] = ttl
	return nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.values, key)
	}
	return nil
}

func (m *memoryStore) PlanKey(tenantID string) string {
	return "mmn:plan:" + tenantID
}

type countingProvider struct {
	plan  *Plan
	calls int
}

func (c *countingProvider) PlanFor(_ context.Context, tenantID uuid.UUID) (*Plan, error) {
	c.calls++
	return c.plan.ForTenant(tenantID), nil
}

func TestCachedProviderServesFromCache(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	inner := &countingProvider{plan: defaultPlan(t)}
	cached, err := NewCachedProvider(inner, store, time.Minute, nil)
	require.NoError(t, err)

	tenantID := uuid.New()
	first, err := cached.PlanFor(ctx, tenantID)
	require.NoError(t, err)
	second, err := cached.PlanFor(ctx, tenantID)
	require.NoError(t, err)

	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, time.Minute, store.ttls["mmn:plan:"+tenantID.String()])
	assert.Equal(t, first.TenantID, second.TenantID)
	assert.True(t, first.BinaryCommissionRate.Equal(second.BinaryCommissionRate))
	require.Len(t, second.RankTiers, len(first.RankTiers))
	assert.True(t, second.RankTiers[2].Requirements.TeamSales.Equal(first.RankTiers[2].Requirements.TeamSales))

	require.NoError(t, cached.Invalidate(ctx, tenantID))
	_, err = cached.PlanFor(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedProviderIgnoresCorruptEntries(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	tenantID := uuid.New()
	store.values[store.PlanKey(tenantID.String())] = "{not json"

	inner := &countingProvider{plan: defaultPlan(t)}
	cached, err := NewCachedProvider(inner, store, 0, nil)
	require.NoError(t, err)

	plan, err := cached.PlanFor(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, tenantID, plan.TenantID)
	assert.Equal(t, 1, inner.calls)
}

func TestStaticProvider(t *testing.T) {
	_, err := Static{}.PlanFor(context.Background(), uuid.New())
	require.Error(t, err)

	tenantID := uuid.New()
	plan, err := Static{Plan: defaultPlan(t)}.PlanFor(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Equal(t, tenantID, plan.TenantID)
}
