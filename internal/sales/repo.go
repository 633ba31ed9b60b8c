package sales

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/mmn-engine/pkg/db/models"
)

// Repository manages persistence for ingested sales.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, sale *models.SaleEvent) error
	FindByReference(ctx context.Context, tenantID uuid.UUID, reference string) (*models.SaleEvent, error)
	ListByMember(ctx context.Context, memberID uuid.UUID, limit int) ([]models.SaleEvent, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a sales repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, sale *models.SaleEvent) error {
	return r.db.WithContext(ctx).Create(sale).Error
}

func (r *repository) FindByReference(ctx context.Context, tenantID uuid.UUID, reference string) (*models.SaleEvent, error) {
	var sale models.SaleEvent
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND reference = ?", tenantID, reference).
		First(&sale).Error
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

func (r *repository) ListByMember(ctx context.Context, memberID uuid.UUID, limit int) ([]models.SaleEvent, error) {
	var sales []models.SaleEvent
	if err := r.db.WithContext(ctx).
		Where("member_id = ?", memberID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&sales).Error; err != nil {
		return nil, err
	}
	return sales, nil
}
