package payouts

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/mmn-engine/pkg/db/models"
	"github.com/angelmondragon/mmn-engine/pkg/enums"
	"github.com/angelmondragon/mmn-engine/pkg/pagination"
)

// Filter narrows payout listings.
type Filter struct {
	TenantID uuid.UUID
	MemberID *uuid.UUID
	Status   *enums.PayoutStatus
	Method   *enums.PayoutMethod
}

// StatusTotals aggregates payouts sharing a status.
type StatusTotals struct {
	Status    enums.PayoutStatus `json:"status"`
	Count     int64              `json:"count"`
	Amount    decimal.Decimal    `json:"amount"`
	Fee       decimal.Decimal    `json:"fee"`
	NetAmount decimal.Decimal    `json:"net_amount"`
}

// Repository persists payouts.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, payout *models.Payout) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Payout, error)
	Transition(ctx context.Context, id uuid.UUID, from []enums.PayoutStatus, updates map[string]any) (int64, error)
	SetExternalReference(ctx context.Context, id uuid.UUID, reference string) error
	List(ctx context.Context, filter Filter, cursor *pagination.Cursor, limit int) ([]models.Payout, error)
	TotalsByMember(ctx context.Context, memberID uuid.UUID) ([]StatusTotals, error)
	TotalsByTenant(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]StatusTotals, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a payout repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, payout *models.Payout) error {
	return r.db.WithContext(ctx).Create(payout).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	var payout models.Payout
	if err := r.db.WithContext(ctx).First(&payout, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &payout, nil
}

// Transition applies updates only while the payout is in one of from.
func (r *repository) Transition(ctx context.Context, id uuid.UUID, from []enums.PayoutStatus, updates map[string]any) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Payout{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	return res.RowsAffected, res.Error
}

func (r *repository) SetExternalReference(ctx context.Context, id uuid.UUID, reference string) error {
	return r.db.WithContext(ctx).
		Model(&models.Payout{}).
		Where("id = ?", id).
		Update("external_reference", reference).Error
}

func (r *repository) List(ctx context.Context, filter Filter, cursor *pagination.Cursor, limit int) ([]models.Payout, error) {
	query := r.db.WithContext(ctx).Model(&models.Payout{})
	if filter.TenantID != uuid.Nil {
		query = query.Where("tenant_id = ?", filter.TenantID)
	}
	if filter.MemberID != nil {
		query = query.Where("member_id = ?", *filter.MemberID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Method != nil {
		query = query.Where("method = ?", *filter.Method)
	}

	var rows []models.Payout
	err := pagination.Apply(query, "requested_at", cursor, limit).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) TotalsByMember(ctx context.Context, memberID uuid.UUID) ([]StatusTotals, error) {
	return r.totals(r.db.WithContext(ctx).Where("member_id = ?", memberID))
}

// TotalsByTenant aggregates payouts requested in [from, to).
func (r *repository) TotalsByTenant(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]StatusTotals, error) {
	return r.totals(r.db.WithContext(ctx).
		Where("tenant_id = ? AND requested_at >= ? AND requested_at < ?", tenantID, from, to))
}

func (r *repository) totals(query *gorm.DB) ([]StatusTotals, error) {
	var rows []struct {
		Status    enums.PayoutStatus
		Count     int64
		Amount    decimal.NullDecimal
		Fee       decimal.NullDecimal
		NetAmount decimal.NullDecimal
	}
	err := query.
		Model(&models.Payout{}).
		Select("status, COUNT(*) AS count, SUM(amount) AS amount, SUM(fee) AS fee, SUM(net_amount) AS net_amount").
		Group("status").
		Order("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]StatusTotals, 0, len(rows))
	for _, row := range rows {
		out = append(out, StatusTotals{
			Status:    row.Status,
			Count:     row.Count,
			Amount:    row.Amount.Decimal,
			Fee:       row.Fee.Decimal,
			NetAmount: row.NetAmount.Decimal,
		})
	}
	return out, nil
}
