package ranks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/mmn-engine/pkg/db/models"
	"github.com/angelmondragon/mmn-engine/pkg/enums"
)

// Repository persists rank history.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindActive(ctx context.Context, memberID uuid.UUID) (*models.MemberRank, error)
	Deactivate(ctx context.Context, memberID uuid.UUID, lostAt time.Time) (int64, error)
	Create(ctx context.Context, rank *models.MemberRank) error
	HasAchieved(ctx context.Context, memberID uuid.UUID, level int) (bool, error)
	History(ctx context.Context, memberID uuid.UUID) ([]models.MemberRank, error)
	ListActiveByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.MemberRank, error)
	CountActiveSponsored(ctx context.Context, sponsorID uuid.UUID) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a rank repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindActive(ctx context.Context, memberID uuid.UUID) (*models.MemberRank, error) {
	var rank models.MemberRank
	err := r.db.WithContext(ctx).
		Where("member_id = ? AND is_active = ?", memberID, true).
		Order("achieved_at DESC").
		First(&rank).Error
	if err != nil {
		return nil, err
	}
	return &rank, nil
}

// Deactivate closes every active rank of the member.
func (r *repository) Deactivate(ctx context.Context, memberID uuid.UUID, lostAt time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.MemberRank{}).
		Where("member_id = ? AND is_active = ?", memberID, true).
		Updates(map[string]any{"is_active": false, "lost_at": lostAt})
	return res.RowsAffected, res.Error
}

func (r *repository) Create(ctx context.Context, rank *models.MemberRank) error {
	return r.db.WithContext(ctx).Create(rank).Error
}

func (r *repository) HasAchieved(ctx context.Context, memberID uuid.UUID, level int) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.MemberRank{}).
		Where("member_id = ? AND rank_level = ?", memberID, level).
		Count(&count).Error
	return count > 0, err
}

// History lists every rank the member held, newest first.
func (r *repository) History(ctx context.Context, memberID uuid.UUID) ([]models.MemberRank, error) {
	var rows []models.MemberRank
	err := r.db.WithContext(ctx).
		Where("member_id = ?", memberID).
		Order("achieved_at DESC").
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListActiveByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.MemberRank, error) {
	var rows []models.MemberRank
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND is_active = ?", tenantID, true).
		Order("rank_level DESC").
		Order("achieved_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) CountActiveSponsored(ctx context.Context, sponsorID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.MemberNode{}).
		Where("sponsor_id = ? AND status = ?", sponsorID, enums.MemberStatusActive).
		Count(&count).Error
	return count, err
}
