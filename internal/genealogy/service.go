package genealogy

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/mmn-engine/pkg/db/models"
	"github.com/angelmondragon/mmn-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/mmn-engine/pkg/errors"
	"github.com/angelmondragon/mmn-engine/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// DownlineFilter narrows descendant queries. Zero values mean unbounded.
type DownlineFilter struct {
	MaxLevels     int
	Leg           *enums.Position
	ActiveOnly    bool
	QualifiedOnly bool
}

// Relative is a member found through the closure, tagged with its distance
// from the queried member and the leg it sits in.
type Relative struct {
	Member   models.MemberNode
	Distance int
	Leg      enums.Position
}

// Service answers ancestry questions from the materialized closure instead of
// walking parent pointers.
type Service interface {
	WithTx(tx *gorm.DB) Service
	Member(ctx context.Context, memberID uuid.UUID) (*models.MemberNode, error)
	RecordGenealogyChain(ctx context.Context, tx *gorm.DB, member *models.MemberNode) error
	GetUpline(ctx context.Context, memberID uuid.UUID, maxLevels int) ([]Relative, error)
	GetDownline(ctx context.Context, memberID uuid.UUID, filter DownlineFilter) ([]Relative, error)
	CountDownline(ctx context.Context, memberID uuid.UUID, filter DownlineFilter) (int64, error)
	RebuildGenealogy(ctx context.Context, memberID uuid.UUID) (int, error)
	IsInUpline(ctx context.Context, ancestorID, memberID uuid.UUID) (bool, error)
	IsInDownline(ctx context.Context, descendantID, memberID uuid.UUID) (bool, error)
}

type service struct {
	repo Repository
	tx   txRunner
	logg *logger.Logger
}

// NewService wires the genealogy index.
func NewService(repo Repository, tx txRunner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("genealogy repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		logg = logger.Discard()
	}
	return &service{repo: repo, tx: tx, logg: logg}, nil
}

// WithTx returns a service whose reads run inside tx.
func (s *service) WithTx(tx *gorm.DB) Service {
	if tx == nil {
		return s
	}
	return &service{repo: s.repo.WithTx(tx), tx: s.tx, logg: s.logg}
}

// Member loads a single node.
func (s *service) Member(ctx context.Context, memberID uuid.UUID) (*models.MemberNode, error) {
	node, err := s.repo.FindNode(ctx, memberID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "member not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load member")
	}
	return node, nil
}

// RecordGenealogyChain writes one edge per proper prefix of the member's path.
// It must run in the transaction that inserted the member.
func (s *service) RecordGenealogyChain(ctx context.Context, tx *gorm.DB, member *models.MemberNode) error {
	if member == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "member is required")
	}
	repo := s.repo.WithTx(tx)
	edges, err := buildEdges(ctx, repo, member)
	if err != nil {
		return err
	}
	if err := repo.InsertEdges(ctx, edges); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert genealogy edges")
	}
	return nil
}

func buildEdges(ctx context.Context, repo Repository, member *models.MemberNode) ([]models.GenealogyEdge, error) {
	path := Path(member.Path)
	if err := path.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "member path is corrupt")
	}
	refs := path.Ancestors()
	if len(refs) == 0 {
		return nil, nil
	}

	paths := make([]string, 0, len(refs))
	for _, ref := range refs {
		paths = append(paths, ref.Path.String())
	}
	ancestors, err := repo.FindNodesByPaths(ctx, member.TenantID, paths)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ancestors")
	}
	byPath := make(map[string]models.MemberNode, len(ancestors))
	for _, ancestor := range ancestors {
		byPath[ancestor.Path] = ancestor
	}

	edges := make([]models.GenealogyEdge, 0, len(refs))
	for _, ref := range refs {
		ancestor, ok := byPath[ref.Path.String()]
		if !ok {
			return nil, pkgerrors.Newf(pkgerrors.CodeInternal, "ancestor at %s missing for member %s", ref.Path, member.ID)
		}
		if member.Level-ancestor.Level != ref.Distance {
			return nil, pkgerrors.Newf(pkgerrors.CodeInternal, "level mismatch between %s and ancestor %s", member.ID, ancestor.ID)
		}
		edges = append(edges, models.GenealogyEdge{
			MemberID:   member.ID,
			AncestorID: ancestor.ID,
			TenantID:   member.TenantID,
			Level:      ref.Distance,
			Leg:        ref.Leg,
		})
	}
	return edges, nil
}

// GetUpline returns ancestors nearest first. maxLevels <= 0 means all.
func (s *service) GetUpline(ctx context.Context, memberID uuid.UUID, maxLevels int) ([]Relative, error) {
	edges, err := s.repo.ListAncestorEdges(ctx, memberID, maxLevels)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list ancestor edges")
	}
	ids := make([]uuid.UUID, 0, len(edges))
	for _, edge := range edges {
		ids = append(ids, edge.AncestorID)
	}
	nodes, err := s.loadNodes(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]Relative, 0, len(edges))
	for _, edge := range edges {
		node, ok := nodes[edge.AncestorID]
		if !ok {
			continue
		}
		out = append(out, Relative{Member: node, Distance: edge.Level, Leg: edge.Leg})
	}
	return out, nil
}

// GetDownline returns descendants level by level, left to right.
func (s *service) GetDownline(ctx context.Context, memberID uuid.UUID, filter DownlineFilter) ([]Relative, error) {
	edges, err := s.repo.ListDescendantEdges(ctx, memberID, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list descendant edges")
	}
	ids := make([]uuid.UUID, 0, len(edges))
	for _, edge := range edges {
		ids = append(ids, edge.MemberID)
	}
	nodes, err := s.loadNodes(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]Relative, 0, len(edges))
	for _, edge := range edges {
		node, ok := nodes[edge.MemberID]
		if !ok {
			continue
		}
		out = append(out, Relative{Member: node, Distance: edge.Level, Leg: edge.Leg})
	}
	return out, nil
}

func (s *service) CountDownline(ctx context.Context, memberID uuid.UUID, filter DownlineFilter) (int64, error) {
	count, err := s.repo.CountDescendants(ctx, memberID, filter)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count descendants")
	}
	return count, nil
}

// RebuildGenealogy drops and recomputes the member's ancestor edges from its
// path. Running it twice yields the same edge set.
func (s *service) RebuildGenealogy(ctx context.Context, memberID uuid.UUID) (int, error) {
	var written int
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		member, err := s.WithTx(tx).Member(ctx, memberID)
		if err != nil {
			return err
		}
		edges, err := buildEdges(ctx, repo, member)
		if err != nil {
			return err
		}
		if err := repo.DeleteEdges(ctx, memberID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete genealogy edges")
		}
		if err := repo.InsertEdges(ctx, edges); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert genealogy edges")
		}
		written = len(edges)
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"member_id": memberID.String(),
		"edges":     written,
	}), "genealogy rebuilt")
	return written, nil
}

// IsInUpline reports whether ancestorID is a proper ancestor of memberID.
func (s *service) IsInUpline(ctx context.Context, ancestorID, memberID uuid.UUID) (bool, error) {
	ok, err := s.repo.EdgeExists(ctx, memberID, ancestorID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check genealogy edge")
	}
	return ok, nil
}

// IsInDownline reports whether descendantID sits below memberID.
func (s *service) IsInDownline(ctx context.Context, descendantID, memberID uuid.UUID) (bool, error) {
	return s.IsInUpline(ctx, memberID, descendantID)
}

func (s *service) loadNodes(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.MemberNode, error) {
	nodes, err := s.repo.FindNodesByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load member nodes")
	}
	out := make(map[uuid.UUID]models.MemberNode, len(nodes))
	for _, node := range nodes {
		out[node.ID] = node
	}
	return out, nil
}
