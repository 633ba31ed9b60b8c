package ranks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/mmn-engine/internal/commissions"
	"github.com/angelmondragon/mmn-engine/internal/compplan"
	"github.com/angelmondragon/mmn-engine/internal/compplan/compplantest"
	"github.com/angelmondragon/mmn-engine/internal/genealogy"
	"github.com/angelmondragon/mmn-engine/internal/placement"
	"github.com/angelmondragon/mmn-engine/internal/volume"
	"github.com/angelmondragon/mmn-engine/pkg/db"
	"github.com/angelmondragon/mmn-engine/pkg/db/dbtest"
	"github.com/angelmondragon/mmn-engine/pkg/db/models"
	"github.com/angelmondragon/mmn-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/mmn-engine/pkg/errors"
	"github.com/angelmondragon/mmn-engine/pkg/outbox"
	"github.com/angelmondragon/mmn-engine/pkg/types"
)

type fixture struct {
	client *db.Client
	svc    Service
	tree   placement.Service
	volume volume.Service
	events *outbox.Repository
	tenant uuid.UUID

	r, a, b, c *models.MemberNode
}

func newFixture(t *testing.T, mutate ...func(*compplan.Plan)) *fixture {
	t.Helper()
	client := dbtest.Client(t)
	plans := compplantest.Provider(t, mutate...)
	events := outbox.NewRepository(client.DB())
	emitter := outbox.NewService(events, nil)

	gen, err := genealogy.NewService(genealogy.NewRepository(client.DB()), client, nil)
	require.NoError(t, err)
	tree, err := placement.NewService(placement.NewRepository(client.DB()), gen, plans, client, emitter, nil, nil)
	require.NoError(t, err)
	vol, err := volume.NewService(volume.NewRepository(client.DB()), gen, client, nil)
	require.NoError(t, err)
	engine, err := commissions.NewService(commissions.Deps{
		Repo:      commissions.NewRepository(client.DB()),
		Genealogy: gen,
		Volume:    vol,
		Members:   tree,
		Plans:     plans,
		Tx:        client,
		Outbox:    emitter,
	})
	require.NoError(t, err)
	svc, err := NewService(Deps{
		Repo:      NewRepository(client.DB()),
		Genealogy: gen,
		Volume:    vol,
		Members:   tree,
		Bonuses:   engine,
		Plans:     plans,
		Tx:        client,
		Outbox:    emitter,
	})
	require.NoError(t, err)

	base := time.Date(2026, 3, 20, 9, 0, 0, 0, time.UTC)
	tick := 0
	svc.(*service).now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	f := &fixture{client: client, svc: svc, tree: tree, volume: vol, events: events, tenant: uuid.New()}
	ctx := context.Background()
	f.r, err = tree.CreateRoot(ctx, placement.CreateRootInput{TenantID: f.tenant, UserID: uuid.New()})
	require.NoError(t, err)
	place := func() *models.MemberNode {
		node, err := tree.CreateNode(ctx, placement.CreateNodeInput{TenantID: f.tenant, UserID: uuid.New(), SponsorID: f.r.ID})
		require.NoError(t, err)
		return node
	}
	f.a, f.b, f.c = place(), place(), place()
	return f
}

func (f *fixture) sell(t *testing.T, member *models.MemberNode, amount int64) {
	t.Helper()
	_, err := f.volume.RecordVolume(context.Background(), volume.RecordVolumeInput{
		MemberID:          member.ID,
		Period:            march(t),
		Amount:            dec(amount),
		PropagateToUpline: true,
	})
	require.NoError(t, err)
}

// bronze gives R the lifetime volume and downline Bronze asks for.
func (f *fixture) bronze(t *testing.T) {
	t.Helper()
	f.sell(t, f.r, 100)
	f.sell(t, f.a, 300)
	f.sell(t, f.b, 300)
}

func (f *fixture) earnings(t *testing.T, member uuid.UUID) []models.Commission {
	t.Helper()
	var rows []models.Commission
	require.NoError(t, f.client.DB().Where("member_id = ?", member).Find(&rows).Error)
	return rows
}

func march(t *testing.T) types.Period {
	t.Helper()
	period, err := types.PeriodContaining(enums.PeriodTypeMonthly, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return period
}

func TestCalculateRankAssignsFallbackTier(t *testing.T) {
	f := newFixture(t)
	eval, err := f.svc.CalculateRank(context.Background(), f.c.ID)
	require.NoError(t, err)

	assert.True(t, eval.Changed)
	assert.Nil(t, eval.Previous)
	assert.Nil(t, eval.Bonus)
	assert.Equal(t, "Member", eval.Rank.RankName)
	assert.Equal(t, 0, eval.Rank.RankLevel)
	assert.True(t, eval.Rank.IsActive)
}

func TestCalculateRankPromotesAndPaysAchievementOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.bronze(t)

	eval, err := f.svc.CalculateRank(ctx, f.r.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bronze", eval.Tier.Name)
	assert.True(t, eval.Changed)
	assert.Equal(t, 3, eval.Stats.ActiveDownlineCount)
	assert.True(t, eval.Stats.TeamSales.Equal(dec(600)))
	require.NotNil(t, eval.Bonus)
	assert.Equal(t, enums.CommissionTypeLeadership, eval.Bonus.Type)
	assert.True(t, eval.Bonus.Amount.Equal(dec(50)))

	var snapshot Stats
	require.NoError(t, eval.Rank.Requirements.Unmarshal(&snapshot))
	assert.True(t, snapshot.PersonalSales.Equal(dec(100)))

	events, err := f.events.ListByAggregate(ctx, eval.Rank.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventRankChanged, events[0].EventType)

	again, err := f.svc.CalculateRank(ctx, f.r.ID)
	require.NoError(t, err)
	assert.False(t, again.Changed)
	assert.Equal(t, eval.Rank.ID, again.Rank.ID)
	assert.Len(t, f.earnings(t, f.r.ID), 1)
}

func TestCalculateRankDemotesAndKeepsHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.bronze(t)

	first, err := f.svc.CalculateRank(ctx, f.r.ID)
	require.NoError(t, err)
	require.Equal(t, "Bronze", first.Rank.RankName)

	for _, m := range []*models.MemberNode{f.a, f.b} {
		_, err := f.tree.UpdateStatus(ctx, m.ID, enums.MemberStatusSuspended)
		require.NoError(t, err)
	}
	demoted, err := f.svc.CalculateRank(ctx, f.r.ID)
	require.NoError(t, err)
	assert.True(t, demoted.Changed)
	assert.Equal(t, "Member", demoted.Rank.RankName)
	require.NotNil(t, demoted.Previous)
	assert.Equal(t, "Bronze", demoted.Previous.RankName)

	history, err := f.svc.History(ctx, f.r.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.True(t, history[0].IsActive)
	assert.False(t, history[1].IsActive)
	require.NotNil(t, history[1].LostAt)

	for _, m := range []*models.MemberNode{f.a, f.b} {
		_, err := f.tree.UpdateStatus(ctx, m.ID, enums.MemberStatusActive)
		require.NoError(t, err)
	}
	restored, err := f.svc.CalculateRank(ctx, f.r.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bronze", restored.Rank.RankName)
	assert.Nil(t, restored.Bonus)
	assert.Len(t, f.earnings(t, f.r.ID), 1)

	active, err := f.svc.ActiveRank(ctx, f.r.ID)
	require.NoError(t, err)
	assert.Equal(t, restored.Rank.ID, active.ID)
}

func TestActiveRankNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ActiveRank(context.Background(), f.a.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestGetRankProgress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.bronze(t)
	_, err := f.svc.CalculateRank(ctx, f.r.ID)
	require.NoError(t, err)

	progress, err := f.svc.GetRankProgress(ctx, f.r.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bronze", progress.Current.Name)
	require.NotNil(t, progress.Next)
	assert.Equal(t, "Silver", progress.Next.Name)

	got := map[string]Dimension{}
	for _, d := range progress.Dimensions {
		got[d.Name] = d
	}
	assert.True(t, got["personal_sales"].Percentage.Equal(dec(50)))
	assert.True(t, got["team_sales"].Percentage.Equal(dec(30)))
	assert.True(t, got["active_downline_count"].Percentage.Equal(dec(60)))
	assert.True(t, got["qualified_leg_count"].Percentage.IsZero())
}

func TestGetRankProgressAtTopTier(t *testing.T) {
	f := newFixture(t, func(p *compplan.Plan) {
		p.RankTiers = p.RankTiers[:2]
	})
	ctx := context.Background()
	f.bronze(t)
	_, err := f.svc.CalculateRank(ctx, f.r.ID)
	require.NoError(t, err)

	progress, err := f.svc.GetRankProgress(ctx, f.r.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bronze", progress.Current.Name)
	assert.Nil(t, progress.Next)
	assert.Empty(t, progress.Dimensions)
}

func TestRefreshQualification(t *testing.T) {
	f := newFixture(t, func(p *compplan.Plan) {
		p.MinimumActiveDownline = 0
	})
	ctx := context.Background()

	qualified, err := f.svc.RefreshQualification(ctx, f.a.ID, march(t))
	require.NoError(t, err)
	assert.False(t, qualified)

	f.sell(t, f.a, 100)
	qualified, err = f.svc.RefreshQualification(ctx, f.a.ID, march(t))
	require.NoError(t, err)
	assert.True(t, qualified)
	member, err := f.tree.GetMember(ctx, f.a.ID)
	require.NoError(t, err)
	assert.True(t, member.IsQualified)

	qualified, err = f.svc.RefreshQualification(ctx, f.a.ID, march(t).Next())
	require.NoError(t, err)
	assert.False(t, qualified)

	qualified, err = f.svc.RefreshQualification(ctx, f.r.ID, march(t))
	require.NoError(t, err)
	assert.True(t, qualified)
}

func TestRefreshQualificationNeedsActiveSponsored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.sell(t, f.a, 500)

	qualified, err := f.svc.RefreshQualification(ctx, f.a.ID, march(t))
	require.NoError(t, err)
	assert.False(t, qualified)
}

func TestRecalculateTenant(t *testing.T) {
	f := newFixture(t)
	f.bronze(t)

	result, err := f.svc.RecalculateTenant(context.Background(), f.tenant, march(t))
	require.NoError(t, err)
	assert.Equal(t, 4, result.Scanned)
	assert.Equal(t, 1, result.Qualified)
	assert.Equal(t, 4, result.Changed)
	assert.Empty(t, result.Failed)
}

func TestAwardMonthlyBonusesOncePerPeriod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.bronze(t)
	_, err := f.svc.CalculateRank(ctx, f.r.ID)
	require.NoError(t, err)
	_, err = f.svc.CalculateRank(ctx, f.a.ID)
	require.NoError(t, err)

	result, err := f.svc.AwardMonthlyBonuses(ctx, f.tenant, march(t))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Awarded)
	assert.True(t, result.Total.Equal(dec(25)))

	again, err := f.svc.AwardMonthlyBonuses(ctx, f.tenant, march(t))
	require.NoError(t, err)
	assert.Zero(t, again.Awarded)
	assert.Len(t, f.earnings(t, f.r.ID), 2)
}
