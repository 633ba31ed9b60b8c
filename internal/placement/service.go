package placement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/mmn-engine/internal/compplan"
	"github.com/angelmondragon/mmn-engine/internal/genealogy"
	"github.com/angelmondragon/mmn-engine/pkg/db"
	"github.com/angelmondragon/mmn-engine/pkg/db/models"
	"github.com/angelmondragon/mmn-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/mmn-engine/pkg/errors"
	"github.com/angelmondragon/mmn-engine/pkg/logger"
	"github.com/angelmondragon/mmn-engine/pkg/metrics"
	"github.com/angelmondragon/mmn-engine/pkg/outbox"
	"github.com/angelmondragon/mmn-engine/pkg/outbox/payloads"
	"github.com/angelmondragon/mmn-engine/pkg/pagination"
)

const defaultMaxPlacementDepth = 64

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// CreateRootInput seats the first member of a tenant.
type CreateRootInput struct {
	TenantID uuid.UUID
	UserID   uuid.UUID
}

// CreateNodeInput places a sponsored member.
type CreateNodeInput struct {
	TenantID          uuid.UUID
	UserID            uuid.UUID
	SponsorID         uuid.UUID
	PreferredPosition *enums.Position
}

// SponsoredPage is a cursor page of personally sponsored members.
type SponsoredPage struct {
	Members    []models.MemberNode
	NextCursor string
}

// Service owns the binary tree topology.
type Service interface {
	CreateRoot(ctx context.Context, input CreateRootInput) (*models.MemberNode, error)
	CreateNode(ctx context.Context, input CreateNodeInput) (*models.MemberNode, error)
	GetMember(ctx context.Context, memberID uuid.UUID) (*models.MemberNode, error)
	GetTree(ctx context.Context, memberID uuid.UUID, depth int) (*TreeNode, error)
	GetDownline(ctx context.Context, memberID uuid.UUID, filter genealogy.DownlineFilter) ([]genealogy.Relative, error)
	CountDownline(ctx context.Context, memberID uuid.UUID, filter genealogy.DownlineFilter) (int64, error)
	UpdateStatus(ctx context.Context, memberID uuid.UUID, status enums.MemberStatus) (*models.MemberNode, error)
	SetQualified(ctx context.Context, tx *gorm.DB, memberID uuid.UUID, qualified bool) error
	ListSponsored(ctx context.Context, sponsorID uuid.UUID, params pagination.Params) (*SponsoredPage, error)
	ListActive(ctx context.Context, tenantID uuid.UUID) ([]models.MemberNode, error)
}

type service struct {
	repo      Repository
	genealogy genealogy.Service
	plans     compplan.Provider
	tx        txRunner
	outbox    outbox.Emitter
	metrics   *metrics.EngineMetrics
	logg      *logger.Logger
	now       func() time.Time
}

// NewService wires the placement engine.
func NewService(
	repo Repository,
	genealogySvc genealogy.Service,
	plans compplan.Provider,
	tx txRunner,
	emitter outbox.Emitter,
	engineMetrics *metrics.EngineMetrics,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("placement repository required")
	}
	if genealogySvc == nil {
		return nil, fmt.Errorf("genealogy service required")
	}
	if plans == nil {
		return nil, fmt.Errorf("plan provider required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		emitter = outbox.Discard{}
	}
	if logg == nil {
		logg = logger.Discard()
	}
	return &service{
		repo:      repo,
		genealogy: genealogySvc,
		plans:     plans,
		tx:        tx,
		outbox:    emitter,
		metrics:   engineMetrics,
		logg:      logg,
		now:       time.Now,
	}, nil
}

func (s *service) CreateRoot(ctx context.Context, input CreateRootInput) (*models.MemberNode, error) {
	if input.TenantID == uuid.Nil || input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant id and user id are required")
	}
	now := s.timestamp()
	root := &models.MemberNode{
		TenantID:    input.TenantID,
		UserID:      input.UserID,
		Level:       genealogy.RootPath.Level(),
		Path:        genealogy.RootPath.String(),
		Status:      enums.MemberStatusActive,
		IsQualified: true,
		JoinedAt:    now,
		ActivatedAt: &now,
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.FindRoot(ctx, input.TenantID); err == nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "tenant already has a root member")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load root")
		}
		if err := repo.Create(ctx, root); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "root already exists")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create root")
		}
		return s.emitPlaced(ctx, tx, root)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncPlacement("root")
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"tenant_id": root.TenantID.String(),
		"member_id": root.ID.String(),
	}), "root member created")
	return root, nil
}

func (s *service) CreateNode(ctx context.Context, input CreateNodeInput) (*models.MemberNode, error) {
	if input.TenantID == uuid.Nil || input.UserID == uuid.Nil || input.SponsorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant id, user id and sponsor id are required")
	}
	if input.PreferredPosition != nil && !input.PreferredPosition.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid preferred position %q", *input.PreferredPosition)
	}
	plan, err := s.plans.PlanFor(ctx, input.TenantID)
	if err != nil {
		return nil, err
	}
	maxDepth := plan.MaxPlacementDepth
	if maxDepth <= 0 {
		maxDepth = defaultMaxPlacementDepth
	}

	var node *models.MemberNode
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if _, err := repo.FindByUser(ctx, input.TenantID, input.UserID); err == nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "member already exists in tenant tree")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing member")
		}

		sponsor, err := repo.FindByID(ctx, input.SponsorID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "sponsor not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load sponsor")
		}
		if sponsor.TenantID != input.TenantID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "sponsor not found")
		}

		parent, pos, err := findSlot(ctx, repo, sponsor, input.PreferredPosition, maxDepth)
		if err != nil {
			return err
		}

		now := s.timestamp()
		sponsorID := sponsor.ID
		parentID := parent.ID
		slot := pos
		node = &models.MemberNode{
			TenantID:    input.TenantID,
			UserID:      input.UserID,
			SponsorID:   &sponsorID,
			ParentID:    &parentID,
			Position:    &slot,
			Level:       parent.Level + 1,
			Path:        genealogy.Path(parent.Path).Child(pos).String(),
			Status:      enums.MemberStatusActive,
			JoinedAt:    now,
			ActivatedAt: &now,
		}
		if err := repo.Create(ctx, node); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "placement slot or member already taken")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create member node")
		}
		if err := repo.SetChild(ctx, parent.ID, pos, node.ID); err != nil {
			if errors.Is(err, errSlotTaken) {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "placement slot taken concurrently")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "occupy parent slot")
		}
		if err := s.genealogy.RecordGenealogyChain(ctx, tx, node); err != nil {
			return err
		}
		return s.emitPlaced(ctx, tx, node)
	})
	if err != nil {
		return nil, err
	}

	kind := "direct"
	if node.ParentID != nil && *node.ParentID != input.SponsorID {
		kind = "spillover"
	}
	s.metrics.IncPlacement(kind)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"tenant_id":  node.TenantID.String(),
		"member_id":  node.ID.String(),
		"sponsor_id": input.SponsorID.String(),
		"parent_id":  node.ParentID.String(),
		"position":   string(*node.Position),
		"placement":  kind,
	}), "member placed")
	return node, nil
}

// findSlot returns the parent and side a new member of sponsor lands on. The
// sponsor's own slot wins when open; otherwise the first open slot in
// breadth-first order below the sponsor, left before right, confined to the
// preferred leg when one is given.
func findSlot(ctx context.Context, repo Repository, sponsor *models.MemberNode, preferred *enums.Position, maxDepth int) (*models.MemberNode, enums.Position, error) {
	if preferred != nil {
		if sponsor.ChildAt(*preferred) == nil {
			return sponsor, *preferred, nil
		}
	} else if pos, ok := sponsor.OpenPosition(); ok {
		return sponsor, pos, nil
	}

	var frontier []uuid.UUID
	if preferred != nil {
		frontier = []uuid.UUID{*sponsor.ChildAt(*preferred)}
	} else {
		frontier = []uuid.UUID{*sponsor.LeftChildID, *sponsor.RightChildID}
	}

	for depth := 1; len(frontier) > 0; depth++ {
		if depth > maxDepth {
			return nil, "", pkgerrors.Newf(pkgerrors.CodeNoAvailablePosition, "no open slot within %d levels of sponsor", maxDepth)
		}
		nodes, err := repo.FindByIDs(ctx, frontier)
		if err != nil {
			return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load placement frontier")
		}
		byID := make(map[uuid.UUID]*models.MemberNode, len(nodes))
		for i := range nodes {
			byID[nodes[i].ID] = &nodes[i]
		}

		next := make([]uuid.UUID, 0, len(frontier)*2)
		for _, id := range frontier {
			node, ok := byID[id]
			if !ok {
				return nil, "", pkgerrors.Newf(pkgerrors.CodeInternal, "child %s referenced but missing", id)
			}
			if pos, open := node.OpenPosition(); open {
				return node, pos, nil
			}
			next = append(next, *node.LeftChildID, *node.RightChildID)
		}
		frontier = next
	}
	return nil, "", pkgerrors.New(pkgerrors.CodeNoAvailablePosition, "no open slot below sponsor")
}

func (s *service) GetMember(ctx context.Context, memberID uuid.UUID) (*models.MemberNode, error) {
	node, err := s.repo.FindByID(ctx, memberID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "member not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load member")
	}
	return node, nil
}

func (s *service) GetDownline(ctx context.Context, memberID uuid.UUID, filter genealogy.DownlineFilter) ([]genealogy.Relative, error) {
	return s.genealogy.GetDownline(ctx, memberID, filter)
}

func (s *service) CountDownline(ctx context.Context, memberID uuid.UUID, filter genealogy.DownlineFilter) (int64, error) {
	return s.genealogy.CountDownline(ctx, memberID, filter)
}

// UpdateStatus changes a member's participation status. Topology is never
// touched. The first move to active stamps activated_at; any other status
// drops qualification until the next refresh.
func (s *service) UpdateStatus(ctx context.Context, memberID uuid.UUID, status enums.MemberStatus) (*models.MemberNode, error) {
	if !status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid member status %q", status)
	}
	var updated *models.MemberNode
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		node, err := repo.FindByID(ctx, memberID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "member not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load member")
		}
		var activatedAt *time.Time
		if status == enums.MemberStatusActive && node.ActivatedAt == nil {
			now := s.timestamp()
			activatedAt = &now
			node.ActivatedAt = activatedAt
		}
		if err := repo.UpdateStatus(ctx, memberID, status, activatedAt); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update member status")
		}
		node.Status = status
		if status != enums.MemberStatusActive {
			node.IsQualified = false
		}
		updated = node
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"member_id": memberID.String(),
		"status":    string(status),
	}), "member status updated")
	return updated, nil
}

func (s *service) ListSponsored(ctx context.Context, sponsorID uuid.UUID, params pagination.Params) (*SponsoredPage, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	nodes, err := s.repo.ListSponsored(ctx, sponsorID, cursor, params.Limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list sponsored members")
	}
	page := &SponsoredPage{}
	page.Members, page.NextCursor = pagination.Trim(nodes, params.Limit, func(m models.MemberNode) pagination.Cursor {
		return pagination.Cursor{At: m.JoinedAt, ID: m.ID}
	})
	return page, nil
}

// SetQualified records whether a member currently meets the plan's
// qualification rules. It runs inside the caller's transaction when tx is set.
func (s *service) SetQualified(ctx context.Context, tx *gorm.DB, memberID uuid.UUID, qualified bool) error {
	if err := s.repo.WithTx(tx).SetQualified(ctx, memberID, qualified); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "member not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update member qualification")
	}
	return nil
}

func (s *service) ListActive(ctx context.Context, tenantID uuid.UUID) ([]models.MemberNode, error) {
	nodes, err := s.repo.ListActive(ctx, tenantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list active members")
	}
	return nodes, nil
}

func (s *service) emitPlaced(ctx context.Context, tx *gorm.DB, node *models.MemberNode) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		TenantID:      node.TenantID,
		EventType:     enums.EventMemberPlaced,
		AggregateType: enums.AggregateMember,
		AggregateID:   node.ID,
		Data: payloads.MemberPlacedEvent{
			MemberID:  node.ID,
			UserID:    node.UserID,
			SponsorID: node.SponsorID,
			ParentID:  node.ParentID,
			Position:  node.Position,
			Level:     node.Level,
		},
	})
}

func (s *service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}
