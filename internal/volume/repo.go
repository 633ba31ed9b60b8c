package volume

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/mmn-engine/pkg/db/models"
	"github.com/angelmondragon/mmn-engine/pkg/types"
)

// Totals are lifetime sums over every period record of a member.
type Totals struct {
	PersonalVolume decimal.Decimal `json:"personal_volume"`
	TotalVolume    decimal.Decimal `json:"total_volume"`
	LeftVolume     decimal.Decimal `json:"left_volume"`
	RightVolume    decimal.Decimal `json:"right_volume"`
}

// LeaderboardEntry ranks a member by the volume moved through them in a period.
type LeaderboardEntry struct {
	MemberID       uuid.UUID       `json:"member_id"`
	PersonalVolume decimal.Decimal `json:"personal_volume"`
	GroupVolume    decimal.Decimal `json:"group_volume"`
}

// Repository persists volume_period_records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindRecord(ctx context.Context, memberID uuid.UUID, period types.Period) (*models.VolumePeriodRecord, error)
	EnsureRecord(ctx context.Context, tenantID, memberID uuid.UUID, period types.Period) (*models.VolumePeriodRecord, error)
	AddVolumes(ctx context.Context, recordID uuid.UUID, deltas map[string]decimal.Decimal) error
	SetCarryForward(ctx context.Context, recordID uuid.UUID, left, right decimal.Decimal) error
	MarkProcessed(ctx context.Context, recordID uuid.UUID, at time.Time) error
	ListByMember(ctx context.Context, memberID uuid.UUID, limit int) ([]models.VolumePeriodRecord, error)
	Totals(ctx context.Context, memberID uuid.UUID) (*Totals, error)
	Leaderboard(ctx context.Context, tenantID uuid.UUID, period types.Period, limit int) ([]LeaderboardEntry, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a volume repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindRecord(ctx context.Context, memberID uuid.UUID, period types.Period) (*models.VolumePeriodRecord, error) {
	var record models.VolumePeriodRecord
	err := r.db.WithContext(ctx).
		Where("member_id = ? AND period_type = ? AND period_start = ? AND period_end = ?", memberID, period.Type, period.Start, period.End).
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// EnsureRecord returns the member's record for period, inserting an empty one
// when none exists.
func (r *repository) EnsureRecord(ctx context.Context, tenantID, memberID uuid.UUID, period types.Period) (*models.VolumePeriodRecord, error) {
	record := &models.VolumePeriodRecord{
		TenantID:          tenantID,
		MemberID:          memberID,
		PeriodType:        period.Type,
		PeriodStart:       period.Start,
		PeriodEnd:         period.End,
		PersonalVolume:    decimal.Zero,
		TotalVolume:       decimal.Zero,
		LeftVolume:        decimal.Zero,
		RightVolume:       decimal.Zero,
		LeftCarryForward:  decimal.Zero,
		RightCarryForward: decimal.Zero,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "member_id"},
				{Name: "period_type"},
				{Name: "period_start"},
				{Name: "period_end"},
			},
			DoNothing: true,
		}).
		Create(record).Error
	if err != nil {
		return nil, err
	}
	return r.FindRecord(ctx, memberID, period)
}

func (r *repository) AddVolumes(ctx context.Context, recordID uuid.UUID, deltas map[string]decimal.Decimal) error {
	if len(deltas) == 0 {
		return nil
	}
	updates := make(map[string]any, len(deltas))
	for column, delta := range deltas {
		updates[column] = gorm.Expr(column+" + ?", delta)
	}
	return r.db.WithContext(ctx).
		Model(&models.VolumePeriodRecord{}).
		Where("id = ?", recordID).
		Updates(updates).Error
}

func (r *repository) SetCarryForward(ctx context.Context, recordID uuid.UUID, left, right decimal.Decimal) error {
	return r.db.WithContext(ctx).
		Model(&models.VolumePeriodRecord{}).
		Where("id = ?", recordID).
		Updates(map[string]any{
			"left_carry_forward":  left,
			"right_carry_forward": right,
		}).Error
}

func (r *repository) MarkProcessed(ctx context.Context, recordID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.VolumePeriodRecord{}).
		Where("id = ?", recordID).
		Updates(map[string]any{
			"is_processed": true,
			"processed_at": at,
		}).Error
}

func (r *repository) ListByMember(ctx context.Context, memberID uuid.UUID, limit int) ([]models.VolumePeriodRecord, error) {
	query := r.db.WithContext(ctx).
		Where("member_id = ?", memberID).
		Order("period_start DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var records []models.VolumePeriodRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repository) Totals(ctx context.Context, memberID uuid.UUID) (*Totals, error) {
	var row struct {
		PersonalVolume decimal.NullDecimal
		TotalVolume    decimal.NullDecimal
		LeftVolume     decimal.NullDecimal
		RightVolume    decimal.NullDecimal
	}
	err := r.db.WithContext(ctx).
		Model(&models.VolumePeriodRecord{}).
		Select("SUM(personal_volume) AS personal_volume, SUM(total_volume) AS total_volume, SUM(left_volume) AS left_volume, SUM(right_volume) AS right_volume").
		Where("member_id = ?", memberID).
		Scan(&row).Error
	if err != nil {
		return nil, err
	}
	return &Totals{
		PersonalVolume: row.PersonalVolume.Decimal,
		TotalVolume:    row.TotalVolume.Decimal,
		LeftVolume:     row.LeftVolume.Decimal,
		RightVolume:    row.RightVolume.Decimal,
	}, nil
}

func (r *repository) Leaderboard(ctx context.Context, tenantID uuid.UUID, period types.Period, limit int) ([]LeaderboardEntry, error) {
	var entries []LeaderboardEntry
	err := r.db.WithContext(ctx).
		Model(&models.VolumePeriodRecord{}).
		Select("member_id, personal_volume, (personal_volume + left_volume + right_volume) AS group_volume").
		Where("tenant_id = ? AND period_type = ? AND period_start = ? AND period_end = ?", tenantID, period.Type, period.Start, period.End).
		Order("group_volume DESC").
		Order("member_id ASC").
		Limit(limit).
		Scan(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
