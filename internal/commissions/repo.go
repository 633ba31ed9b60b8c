package commissions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/mmn-engine/pkg/db/models"
	"github.com/angelmondragon/mmn-engine/pkg/enums"
	"github.com/angelmondragon/mmn-engine/pkg/pagination"
	"github.com/angelmondragon/mmn-engine/pkg/types"
)

// Key identifies a commission for idempotency: a calculation re-run for the
// same key never creates a second row.
type Key struct {
	MemberID  uuid.UUID
	SourceID  uuid.UUID
	Type      enums.CommissionType
	Level     int
	Period    types.Period
	Reference string
}

// Filter narrows commission listings.
type Filter struct {
	TenantID uuid.UUID
	MemberID *uuid.UUID
	Status   *enums.CommissionStatus
	Type     *enums.CommissionType
	Period   *types.Period
	PayoutID *uuid.UUID
}

// Repository persists commissions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, commission *models.Commission) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Commission, error)
	FindByKey(ctx context.Context, key Key) (*models.Commission, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Commission, error)
	List(ctx context.Context, filter Filter, cursor *pagination.Cursor, limit int) ([]models.Commission, error)
	ListPayable(ctx context.Context, memberID uuid.UUID) ([]models.Commission, error)
	SumApprovedByMember(ctx context.Context, memberIDs []uuid.UUID, period types.Period) (map[uuid.UUID]decimal.Decimal, error)
	ListSponsoredIDs(ctx context.Context, sponsorID uuid.UUID) ([]uuid.UUID, error)
	Transition(ctx context.Context, ids []uuid.UUID, from []enums.CommissionStatus, updates map[string]any) (int64, error)
	TransitionPeriod(ctx context.Context, tenantID uuid.UUID, period types.Period, from enums.CommissionStatus, updates map[string]any) (int64, error)
	MarkPaid(ctx context.Context, ids []uuid.UUID, payoutID uuid.UUID, at time.Time) (int64, error)
	RevertPaid(ctx context.Context, ids []uuid.UUID, payoutID uuid.UUID) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a commission repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, commission *models.Commission) error {
	return r.db.WithContext(ctx).Create(commission).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Commission, error) {
	var commission models.Commission
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&commission).Error; err != nil {
		return nil, err
	}
	return &commission, nil
}

func (r *repository) FindByKey(ctx context.Context, key Key) (*models.Commission, error) {
	var commission models.Commission
	err := r.db.WithContext(ctx).
		Where("member_id = ? AND source_id = ? AND type = ? AND level = ?", key.MemberID, key.SourceID, key.Type, key.Level).
		Where("period_type = ? AND period_start = ? AND period_end = ?", key.Period.Type, key.Period.Start, key.Period.End).
		Where("reference = ?", key.Reference).
		First(&commission).Error
	if err != nil {
		return nil, err
	}
	return &commission, nil
}

func (r *repository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Commission, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []models.Commission
	err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) List(ctx context.Context, filter Filter, cursor *pagination.Cursor, limit int) ([]models.Commission, error) {
	query := r.db.WithContext(ctx).Model(&models.Commission{})
	if filter.TenantID != uuid.Nil {
		query = query.Where("tenant_id = ?", filter.TenantID)
	}
	if filter.MemberID != nil {
		query = query.Where("member_id = ?", *filter.MemberID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Type != nil {
		query = query.Where("type = ?", *filter.Type)
	}
	if filter.Period != nil {
		query = query.Where("period_type = ? AND period_start = ? AND period_end = ?", filter.Period.Type, filter.Period.Start, filter.Period.End)
	}
	if filter.PayoutID != nil {
		query = query.Where("payout_id = ?", *filter.PayoutID)
	}

	var rows []models.Commission
	err := pagination.Apply(query, "created_at", cursor, limit).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ListPayable returns approved commissions not yet attached to a payout, in
// accrual order.
func (r *repository) ListPayable(ctx context.Context, memberID uuid.UUID) ([]models.Commission, error) {
	var rows []models.Commission
	err := r.db.WithContext(ctx).
		Where("member_id = ? AND status = ? AND payout_id IS NULL", memberID, enums.CommissionStatusApproved).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) SumApprovedByMember(ctx context.Context, memberIDs []uuid.UUID, period types.Period) (map[uuid.UUID]decimal.Decimal, error) {
	out := make(map[uuid.UUID]decimal.Decimal, len(memberIDs))
	if len(memberIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		MemberID uuid.UUID
		Total    decimal.Decimal
	}
	err := r.db.WithContext(ctx).
		Model(&models.Commission{}).
		Select("member_id, SUM(amount) AS total").
		Where("member_id IN ? AND status = ?", memberIDs, enums.CommissionStatusApproved).
		Where("period_type = ? AND period_start = ? AND period_end = ?", period.Type, period.Start, period.End).
		Group("member_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.MemberID] = row.Total
	}
	return out, nil
}

func (r *repository) ListSponsoredIDs(ctx context.Context, sponsorID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.MemberNode{}).
		Where("sponsor_id = ?", sponsorID).
		Order("joined_at ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repository) Transition(ctx context.Context, ids []uuid.UUID, from []enums.CommissionStatus, updates map[string]any) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.Commission{}).
		Where("id IN ? AND status IN ?", ids, from).
		Updates(updates)
	return res.RowsAffected, res.Error
}

func (r *repository) TransitionPeriod(ctx context.Context, tenantID uuid.UUID, period types.Period, from enums.CommissionStatus, updates map[string]any) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Commission{}).
		Where("tenant_id = ? AND status = ?", tenantID, from).
		Where("period_type = ? AND period_start = ? AND period_end = ?", period.Type, period.Start, period.End).
		Updates(updates)
	return res.RowsAffected, res.Error
}

func (r *repository) MarkPaid(ctx context.Context, ids []uuid.UUID, payoutID uuid.UUID, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.Commission{}).
		Where("id IN ? AND status = ? AND payout_id IS NULL", ids, enums.CommissionStatusApproved).
		Updates(map[string]any{
			"status":    enums.CommissionStatusPaid,
			"payout_id": payoutID,
			"paid_at":   at,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) RevertPaid(ctx context.Context, ids []uuid.UUID, payoutID uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.Commission{}).
		Where("id IN ? AND status = ? AND payout_id = ?", ids, enums.CommissionStatusPaid, payoutID).
		Updates(map[string]any{
			"status":    enums.CommissionStatusApproved,
			"payout_id": nil,
			"paid_at":   nil,
		})
	return res.RowsAffected, res.Error
}
