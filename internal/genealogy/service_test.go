package genealogy

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/mmn-engine/pkg/db"
	"github.com/angelmondragon/mmn-engine/pkg/db/dbtest"
	"github.com/angelmondragon/mmn-engine/pkg/db/models"
	"github.com/angelmondragon/mmn-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/mmn-engine/pkg/errors"
)

type treeFixture struct {
	client *db.Client
	svc    Service
	tenant uuid.UUID
	nodes  map[Path]*models.MemberNode
}

func newTreeFixture(t *testing.T) *treeFixture {
	t.Helper()
	client := dbtest.Client(t)
	svc, err := NewService(NewRepository(client.DB()), client, nil)
	require.NoError(t, err)
	return &treeFixture{
		client: client,
		svc:    svc,
		tenant: uuid.New(),
		nodes:  map[Path]*models.MemberNode{},
	}
}

// seed inserts a node at path together with its genealogy chain. Parents must
// be seeded first.
func (f *treeFixture) seed(t *testing.T, path Path) *models.MemberNode {
	t.Helper()
	ctx := context.Background()
	node := &models.MemberNode{
		TenantID: f.tenant,
		UserID:   uuid.New(),
		Level:    path.Level(),
		Path:     path.String(),
		Status:   enums.MemberStatusActive,
		JoinedAt: time.Now().UTC(),
	}
	if parentPath, ok := path.Parent(); ok {
		parent := f.nodes[parentPath]
		require.NotNil(t, parent, "parent %s not seeded", parentPath)
		leg, _ := path.Leg()
		node.ParentID = &parent.ID
		node.Position = &leg
		node.SponsorID = &parent.ID
	}
	err := f.client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(node).Error; err != nil {
			return err
		}
		return f.svc.RecordGenealogyChain(ctx, tx, node)
	})
	require.NoError(t, err)
	f.nodes[path] = node
	return node
}

func (f *treeFixture) seedAll(t *testing.T, paths ...Path) {
	t.Helper()
	for _, path := range paths {
		f.seed(t, path)
	}
}

func relativePaths(relatives []Relative) []string {
	out := make([]string, 0, len(relatives))
	for _, r := range relatives {
		out = append(out, r.Member.Path)
	}
	return out
}

func TestGetUplineMatchesPathPrefixes(t *testing.T) {
	f := newTreeFixture(t)
	f.seedAll(t, "root", "root.L", "root.R", "root.L.R", "root.L.R.L")
	ctx := context.Background()

	member := f.nodes["root.L.R.L"]
	upline, err := f.svc.GetUpline(ctx, member.ID, 0)
	require.NoError(t, err)

	refs := Path(member.Path).Ancestors()
	require.Len(t, upline, len(refs))
	for i, ref := range refs {
		assert.Equal(t, ref.Path.String(), upline[i].Member.Path)
		assert.Equal(t, ref.Distance, upline[i].Distance)
		assert.Equal(t, ref.Leg, upline[i].Leg)
	}

	limited, err := f.svc.GetUpline(ctx, member.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"root.L.R", "root.L"}, relativePaths(limited))
}

func TestGetDownlineOrderAndFilters(t *testing.T) {
	f := newTreeFixture(t)
	f.seedAll(t, "root", "root.L", "root.R", "root.L.L", "root.L.R", "root.R.L")
	ctx := context.Background()
	root := f.nodes["root"]

	all, err := f.svc.GetDownline(ctx, root.ID, DownlineFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"root.L", "root.R", "root.L.L", "root.L.R", "root.R.L"}, relativePaths(all))

	left := enums.PositionLeft
	leftLeg, err := f.svc.GetDownline(ctx, root.ID, DownlineFilter{Leg: &left})
	require.NoError(t, err)
	assert.Equal(t, []string{"root.L", "root.L.L", "root.L.R"}, relativePaths(leftLeg))

	firstLevel, err := f.svc.GetDownline(ctx, root.ID, DownlineFilter{MaxLevels: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"root.L", "root.R"}, relativePaths(firstLevel))

	count, err := f.svc.CountDownline(ctx, root.ID, DownlineFilter{Leg: &left})
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)
}

func TestDownlineActiveAndQualifiedFilters(t *testing.T) {
	f := newTreeFixture(t)
	f.seedAll(t, "root", "root.L", "root.R")
	ctx := context.Background()

	gdb := f.client.DB()
	require.NoError(t, gdb.Model(&models.MemberNode{}).
		Where("id = ?", f.nodes["root.R"].ID).
		Update("status", enums.MemberStatusSuspended).Error)
	require.NoError(t, gdb.Model(&models.MemberNode{}).
		Where("id = ?", f.nodes["root.L"].ID).
		Update("is_qualified", true).Error)

	active, err := f.svc.CountDownline(ctx, f.nodes["root"].ID, DownlineFilter{ActiveOnly: true})
	require.NoError(t, err)
	assert.EqualValues(t, 1, active)

	qualified, err := f.svc.GetDownline(ctx, f.nodes["root"].ID, DownlineFilter{QualifiedOnly: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"root.L"}, relativePaths(qualified))
}

func TestUplineAndDownlineAreInverse(t *testing.T) {
	f := newTreeFixture(t)
	f.seedAll(t, "root", "root.L", "root.R", "root.L.R", "root.R.R")
	ctx := context.Background()

	for _, a := range f.nodes {
		for _, b := range f.nodes {
			down, err := f.svc.IsInDownline(ctx, a.ID, b.ID)
			require.NoError(t, err)
			up, err := f.svc.IsInUpline(ctx, b.ID, a.ID)
			require.NoError(t, err)
			assert.Equal(t, up, down, "a=%s b=%s", a.Path, b.Path)
			assert.Equal(t, Path(b.Path).IsPrefixOf(Path(a.Path)), down, "a=%s b=%s", a.Path, b.Path)
		}
	}
}

func TestRebuildGenealogyIsIdempotent(t *testing.T) {
	f := newTreeFixture(t)
	f.seedAll(t, "root", "root.R", "root.R.L", "root.R.L.L")
	ctx := context.Background()
	member := f.nodes["root.R.L.L"]

	require.NoError(t, f.client.DB().Where("member_id = ?", member.ID).Delete(&models.GenealogyEdge{}).Error)
	upline, err := f.svc.GetUpline(ctx, member.ID, 0)
	require.NoError(t, err)
	require.Empty(t, upline)

	for i := 0; i < 2; i++ {
		written, err := f.svc.RebuildGenealogy(ctx, member.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, written)
	}

	upline, err = f.svc.GetUpline(ctx, member.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"root.R.L", "root.R", "root"}, relativePaths(upline))
}

func TestRebuildGenealogyUnknownMember(t *testing.T) {
	f := newTreeFixture(t)
	_, err := f.svc.RebuildGenealogy(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestRecordGenealogyChainRejectsMissingAncestor(t *testing.T) {
	f := newTreeFixture(t)
	f.seed(t, "root")
	ctx := context.Background()

	orphan := &models.MemberNode{
		ID:       uuid.New(),
		TenantID: f.tenant,
		Level:    3,
		Path:     "root.L.L",
	}
	err := f.client.WithTx(ctx, func(tx *gorm.DB) error {
		return f.svc.RecordGenealogyChain(ctx, tx, orphan)
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInternal))
}
