package placement

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/mmn-engine/pkg/db/models"
	"github.com/angelmondragon/mmn-engine/pkg/enums"
	"github.com/angelmondragon/mmn-engine/pkg/pagination"
)

var errSlotTaken = errors.New("placement slot already taken")

// Repository persists member nodes.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, node *models.MemberNode) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.MemberNode, error)
	FindByUser(ctx context.Context, tenantID, userID uuid.UUID) (*models.MemberNode, error)
	FindRoot(ctx context.Context, tenantID uuid.UUID) (*models.MemberNode, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.MemberNode, error)
	SetChild(ctx context.Context, parentID uuid.UUID, pos enums.Position, childID uuid.UUID) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.MemberStatus, activatedAt *time.Time) error
	SetQualified(ctx context.Context, id uuid.UUID, qualified bool) error
	ListSponsored(ctx context.Context, sponsorID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.MemberNode, error)
	ListActive(ctx context.Context, tenantID uuid.UUID) ([]models.MemberNode, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a member node repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, node *models.MemberNode) error {
	return r.db.WithContext(ctx).Create(node).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.MemberNode, error) {
	var node models.MemberNode
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&node).Error; err != nil {
		return nil, err
	}
	return &node, nil
}

func (r *repository) FindByUser(ctx context.Context, tenantID, userID uuid.UUID) (*models.MemberNode, error) {
	var node models.MemberNode
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND user_id = ?", tenantID, userID).
		First(&node).Error
	if err != nil {
		return nil, err
	}
	return &node, nil
}

func (r *repository) FindRoot(ctx context.Context, tenantID uuid.UUID) (*models.MemberNode, error) {
	var node models.MemberNode
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND parent_id IS NULL", tenantID).
		First(&node).Error
	if err != nil {
		return nil, err
	}
	return &node, nil
}

func (r *repository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.MemberNode, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var nodes []models.MemberNode
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&nodes).Error; err != nil {
		return nil, err
	}
	return nodes, nil
}

// SetChild fills an empty slot on the parent. It returns errSlotTaken when the
// slot was filled concurrently.
func (r *repository) SetChild(ctx context.Context, parentID uuid.UUID, pos enums.Position, childID uuid.UUID) error {
	column := "left_child_id"
	if pos == enums.PositionRight {
		column = "right_child_id"
	}
	res := r.db.WithContext(ctx).
		Model(&models.MemberNode{}).
		Where("id = ?", parentID).
		Where(column + " IS NULL").
		Update(column, childID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errSlotTaken
	}
	return nil
}

func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.MemberStatus, activatedAt *time.Time) error {
	updates := map[string]any{"status": status}
	if status != enums.MemberStatusActive {
		updates["is_qualified"] = false
	}
	if activatedAt != nil {
		updates["activated_at"] = *activatedAt
	}
	res := r.db.WithContext(ctx).
		Model(&models.MemberNode{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) SetQualified(ctx context.Context, id uuid.UUID, qualified bool) error {
	res := r.db.WithContext(ctx).
		Model(&models.MemberNode{}).
		Where("id = ?", id).
		Update("is_qualified", qualified)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) ListSponsored(ctx context.Context, sponsorID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.MemberNode, error) {
	query := r.db.WithContext(ctx).Where("sponsor_id = ?", sponsorID)

	var nodes []models.MemberNode
	err := pagination.Apply(query, "joined_at", cursor, limit).Find(&nodes).Error
	if err != nil {
		return nil, err
	}
	return nodes, nil
}

func (r *repository) ListActive(ctx context.Context, tenantID uuid.UUID) ([]models.MemberNode, error) {
	var nodes []models.MemberNode
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND status = ?", tenantID, enums.MemberStatusActive).
		Order("level ASC").
		Order("path ASC").
		Find(&nodes).Error
	if err != nil {
		return nil, err
	}
	return nodes, nil
}
