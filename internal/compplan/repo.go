package compplan

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/mmn-engine/pkg/db/models"
)

// Repository persists per-tenant plan overrides.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByTenant(ctx context.Context, tenantID uuid.UUID) (*models.CompensationPlan, error)
	Upsert(ctx context.Context, plan *models.CompensationPlan) error
	Delete(ctx context.Context, tenantID uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a compensation plan repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// FindByTenant returns nil without error when the tenant has no overrides.
func (r *repository) FindByTenant(ctx context.Context, tenantID uuid.UUID) (*models.CompensationPlan, error) {
	var plan models.CompensationPlan
	err := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).First(&plan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *repository) Upsert(ctx context.Context, plan *models.CompensationPlan) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}},
			UpdateAll: true,
		}).
		Create(plan).Error
}

func (r *repository) Delete(ctx context.Context, tenantID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Delete(&models.CompensationPlan{}).Error
}
