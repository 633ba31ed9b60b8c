package genealogy

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/mmn-engine/pkg/db/models"
	"github.com/angelmondragon/mmn-engine/pkg/enums"
)

// Repository reads member nodes and maintains the member_genealogy closure.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindNode(ctx context.Context, id uuid.UUID) (*models.MemberNode, error)
	FindNodesByIDs(ctx context.Context, ids []uuid.UUID) ([]models.MemberNode, error)
	FindNodesByPaths(ctx context.Context, tenantID uuid.UUID, paths []string) ([]models.MemberNode, error)
	InsertEdges(ctx context.Context, edges []models.GenealogyEdge) error
	DeleteEdges(ctx context.Context, memberID uuid.UUID) error
	ListAncestorEdges(ctx context.Context, memberID uuid.UUID, maxLevels int) ([]models.GenealogyEdge, error)
	ListDescendantEdges(ctx context.Context, ancestorID uuid.UUID, filter DownlineFilter) ([]models.GenealogyEdge, error)
	CountDescendants(ctx context.Context, ancestorID uuid.UUID, filter DownlineFilter) (int64, error)
	EdgeExists(ctx context.Context, memberID, ancestorID uuid.UUID) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a genealogy repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindNode(ctx context.Context, id uuid.UUID) (*models.MemberNode, error) {
	var node models.MemberNode
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&node).Error; err != nil {
		return nil, err
	}
	return &node, nil
}

func (r *repository) FindNodesByIDs(ctx context.Context, ids []uuid.UUID) ([]models.MemberNode, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var nodes []models.MemberNode
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&nodes).Error; err != nil {
		return nil, err
	}
	return nodes, nil
}

func (r *repository) FindNodesByPaths(ctx context.Context, tenantID uuid.UUID, paths []string) ([]models.MemberNode, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	var nodes []models.MemberNode
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND path IN ?", tenantID, paths).
		Find(&nodes).Error
	if err != nil {
		return nil, err
	}
	return nodes, nil
}

func (r *repository) InsertEdges(ctx context.Context, edges []models.GenealogyEdge) error {
	if len(edges) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&edges).Error
}

func (r *repository) DeleteEdges(ctx context.Context, memberID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("member_id = ?", memberID).
		Delete(&models.GenealogyEdge{}).Error
}

func (r *repository) ListAncestorEdges(ctx context.Context, memberID uuid.UUID, maxLevels int) ([]models.GenealogyEdge, error) {
	query := r.db.WithContext(ctx).Where("member_id = ?", memberID)
	if maxLevels > 0 {
		query = query.Where("level <= ?", maxLevels)
	}
	var edges []models.GenealogyEdge
	if err := query.Order("level ASC").Find(&edges).Error; err != nil {
		return nil, err
	}
	return edges, nil
}

func (r *repository) ListDescendantEdges(ctx context.Context, ancestorID uuid.UUID, filter DownlineFilter) ([]models.GenealogyEdge, error) {
	var edges []models.GenealogyEdge
	err := r.descendantQuery(ctx, ancestorID, filter).
		Select("member_genealogy.*").
		Order("member_genealogy.level ASC").
		Order("member_nodes.path ASC").
		Find(&edges).Error
	if err != nil {
		return nil, err
	}
	return edges, nil
}

func (r *repository) CountDescendants(ctx context.Context, ancestorID uuid.UUID, filter DownlineFilter) (int64, error) {
	var count int64
	if err := r.descendantQuery(ctx, ancestorID, filter).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repository) EdgeExists(ctx context.Context, memberID, ancestorID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.GenealogyEdge{}).
		Where("member_id = ? AND ancestor_id = ?", memberID, ancestorID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) descendantQuery(ctx context.Context, ancestorID uuid.UUID, filter DownlineFilter) *gorm.DB {
	query := r.db.WithContext(ctx).
		Model(&models.GenealogyEdge{}).
		Joins("JOIN member_nodes ON member_nodes.id = member_genealogy.member_id").
		Where("member_genealogy.ancestor_id = ?", ancestorID)
	if filter.MaxLevels > 0 {
		query = query.Where("member_genealogy.level <= ?", filter.MaxLevels)
	}
	if filter.Leg != nil {
		query = query.Where("member_genealogy.leg = ?", *filter.Leg)
	}
	if filter.ActiveOnly {
		query = query.Where("member_nodes.status = ?", enums.MemberStatusActive)
	}
	if filter.QualifiedOnly {
		query = query.Where("member_nodes.is_qualified = ?", true)
	}
	return query
}
