package volume

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/mmn-engine/internal/compplan/compplantest"
	"github.com/angelmondragon/mmn-engine/internal/genealogy"
	"github.com/angelmondragon/mmn-engine/internal/placement"
	"github.com/angelmondragon/mmn-engine/pkg/db"
	"github.com/angelmondragon/mmn-engine/pkg/db/dbtest"
	"github.com/angelmondragon/mmn-engine/pkg/db/models"
	"github.com/angelmondragon/mmn-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/mmn-engine/pkg/errors"
	"github.com/angelmondragon/mmn-engine/pkg/types"
)

type fixture struct {
	client *db.Client
	svc    Service
	tree   placement.Service
	tenant uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client := dbtest.Client(t)
	gen, err := genealogy.NewService(genealogy.NewRepository(client.DB()), client, nil)
	require.NoError(t, err)
	tree, err := placement.NewService(placement.NewRepository(client.DB()), gen, compplantest.Provider(t), client, nil, nil, nil)
	require.NoError(t, err)
	svc, err := NewService(NewRepository(client.DB()), gen, client, nil)
	require.NoError(t, err)
	return &fixture{client: client, svc: svc, tree: tree, tenant: uuid.New()}
}

// rabc builds root R with A and B as its children and C spilled under A.
func (f *fixture) rabc(t *testing.T) (r, a, b, c *models.MemberNode) {
	t.Helper()
	ctx := context.Background()
	r, err := f.tree.CreateRoot(ctx, placement.CreateRootInput{TenantID: f.tenant, UserID: uuid.New()})
	require.NoError(t, err)
	place := func() *models.MemberNode {
		node, err := f.tree.CreateNode(ctx, placement.CreateNodeInput{TenantID: f.tenant, UserID: uuid.New(), SponsorID: r.ID})
		require.NoError(t, err)
		return node
	}
	a, b, c = place(), place(), place()
	return r, a, b, c
}

func march(t *testing.T) types.Period {
	t.Helper()
	period, err := types.PeriodContaining(enums.PeriodTypeMonthly, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return period
}

func TestRecordVolumePropagatesToAncestorLegs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r, a, b, c := f.rabc(t)
	period := march(t)

	result, err := f.svc.RecordVolume(ctx, RecordVolumeInput{
		MemberID:          c.ID,
		Period:            period,
		Amount:            dec(500),
		PropagateToUpline: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.AncestorsCredited)
	assert.True(t, result.Record.PersonalVolume.Equal(dec(500)))
	assert.True(t, result.Record.TotalVolume.Equal(dec(500)))

	aRecord, err := f.svc.GetRecord(ctx, a.ID, period)
	require.NoError(t, err)
	assert.True(t, aRecord.LeftVolume.Equal(dec(500)))
	assert.True(t, aRecord.RightVolume.IsZero())
	assert.True(t, aRecord.PersonalVolume.IsZero())

	rRecord, err := f.svc.GetRecord(ctx, r.ID, period)
	require.NoError(t, err)
	assert.True(t, rRecord.LeftVolume.Equal(dec(500)))
	assert.True(t, rRecord.RightVolume.IsZero())

	_, err = f.svc.GetRecord(ctx, b.ID, period)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestRecordVolumeAccumulatesWithoutPropagation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r, a, _, _ := f.rabc(t)
	period := march(t)

	for _, amount := range []int64{100, 50} {
		_, err := f.svc.RecordVolume(ctx, RecordVolumeInput{MemberID: a.ID, Period: period, Amount: dec(amount)})
		require.NoError(t, err)
	}
	record, err := f.svc.GetRecord(ctx, a.ID, period)
	require.NoError(t, err)
	assert.True(t, record.PersonalVolume.Equal(dec(150)))

	_, err = f.svc.GetRecord(ctx, r.ID, period)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestRecordVolumeValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, a, _, _ := f.rabc(t)

	_, err := f.svc.RecordVolume(ctx, RecordVolumeInput{MemberID: a.ID, Period: march(t), Amount: decimal.Zero})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.RecordVolume(ctx, RecordVolumeInput{MemberID: a.ID, Period: types.Period{Type: enums.PeriodTypeMonthly}, Amount: dec(10)})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.RecordVolume(ctx, RecordVolumeInput{MemberID: uuid.New(), Period: march(t), Amount: dec(10)})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestCalculateLegVolumesIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r, a, b, c := f.rabc(t)
	period := march(t)

	for _, sale := range []struct {
		member uuid.UUID
		amount int64
	}{{c.ID, 150}, {b.ID, 100}, {a.ID, 20}} {
		_, err := f.svc.RecordVolume(ctx, RecordVolumeInput{MemberID: sale.member, Period: period, Amount: dec(sale.amount), PropagateToUpline: true})
		require.NoError(t, err)
	}

	first, err := f.svc.CalculateLegVolumes(ctx, r.ID, period)
	require.NoError(t, err)
	second, err := f.svc.CalculateLegVolumes(ctx, r.ID, period)
	require.NoError(t, err)

	assert.True(t, first.TotalLeft.Equal(dec(170)))
	assert.True(t, first.TotalRight.Equal(dec(100)))
	assert.True(t, first.WeakerLeg.Equal(dec(100)))
	assert.True(t, first.NewLeftCarryForward.Equal(dec(70)))
	assert.Equal(t, first.WeakerSide, second.WeakerSide)
	assert.True(t, first.CommissionableVolume.Equal(second.CommissionableVolume))
	assert.True(t, first.NewLeftCarryForward.Equal(second.NewLeftCarryForward))

	empty, err := f.svc.CalculateLegVolumes(ctx, c.ID, period)
	require.NoError(t, err)
	assert.True(t, empty.CommissionableVolume.IsZero())
}

func TestUpdateCarryForwardSeedsNextPeriod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r, _, _, _ := f.rabc(t)
	period := march(t)

	for i := 0; i < 2; i++ {
		require.NoError(t, f.svc.UpdateCarryForward(ctx, f.client.DB(), r.ID, period, dec(50), decimal.Zero))
	}
	next, err := f.svc.GetRecord(ctx, r.ID, period.Next())
	require.NoError(t, err)
	assert.True(t, next.LeftCarryForward.Equal(dec(50)))
	assert.True(t, next.RightCarryForward.IsZero())

	legs, err := f.svc.CalculateLegVolumes(ctx, r.ID, period.Next())
	require.NoError(t, err)
	assert.True(t, legs.TotalLeft.Equal(dec(50)))

	require.NoError(t, f.svc.UpdateCarryForward(ctx, f.client.DB(), r.ID, period.Next(), decimal.Zero, decimal.Zero))
	_, err = f.svc.GetRecord(ctx, r.ID, period.Next().Next())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestMarkAsProcessed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, a, _, _ := f.rabc(t)
	period := march(t)

	_, err := f.svc.RecordVolume(ctx, RecordVolumeInput{MemberID: a.ID, Period: period, Amount: dec(10)})
	require.NoError(t, err)
	require.NoError(t, f.svc.MarkAsProcessed(ctx, f.client.DB(), a.ID, period))

	record, err := f.svc.GetRecord(ctx, a.ID, period)
	require.NoError(t, err)
	assert.True(t, record.IsProcessed)
	assert.NotNil(t, record.ProcessedAt)

	require.NoError(t, f.svc.MarkAsProcessed(ctx, f.client.DB(), uuid.New(), period))
}

func TestTotalsAndLeaderboard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r, a, b, c := f.rabc(t)
	period := march(t)

	record := func(member uuid.UUID, p types.Period, amount int64) {
		_, err := f.svc.RecordVolume(ctx, RecordVolumeInput{MemberID: member, Period: p, Amount: dec(amount), PropagateToUpline: true})
		require.NoError(t, err)
	}
	record(c.ID, period, 300)
	record(b.ID, period, 200)
	record(c.ID, period.Next(), 100)

	totals, err := f.svc.Totals(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, totals.LeftVolume.Equal(dec(400)))
	assert.True(t, totals.RightVolume.Equal(dec(200)))
	assert.True(t, totals.PersonalVolume.IsZero())

	board, err := f.svc.Leaderboard(ctx, f.tenant, period, 10)
	require.NoError(t, err)
	require.Len(t, board, 4)
	assert.Equal(t, r.ID, board[0].MemberID)
	assert.True(t, board[0].GroupVolume.Equal(dec(500)))

	ids := map[uuid.UUID]bool{}
	for _, entry := range board {
		ids[entry.MemberID] = true
	}
	assert.True(t, ids[a.ID])

	records, err := f.svc.ListMemberRecords(ctx, c.ID, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.True(t, records[0].PeriodStart.After(records[1].PeriodStart))
}
