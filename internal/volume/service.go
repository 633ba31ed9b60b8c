package volume

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/mmn-engine/internal/genealogy"
	"github.com/angelmondragon/mmn-engine/pkg/db"
	"github.com/angelmondragon/mmn-engine/pkg/db/models"
	"github.com/angelmondragon/mmn-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/mmn-engine/pkg/errors"
	"github.com/angelmondragon/mmn-engine/pkg/logger"
	"github.com/angelmondragon/mmn-engine/pkg/types"
)

const (
	columnPersonal = "personal_volume"
	columnTotal    = "total_volume"
	columnLeft     = "left_volume"
	columnRight    = "right_volume"

	maxLeaderboard = 100
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// RecordVolumeInput credits sales volume to a member for an explicit period.
type RecordVolumeInput struct {
	MemberID          uuid.UUID
	Period            types.Period
	Amount            decimal.Decimal
	PropagateToUpline bool
}

// RecordVolumeResult reports the member's record after the write.
type RecordVolumeResult struct {
	Record            *models.VolumePeriodRecord
	AncestorsCredited int
}

// Service is the period-scoped volume ledger.
type Service interface {
	WithTx(tx *gorm.DB) Service
	RecordVolume(ctx context.Context, input RecordVolumeInput) (*RecordVolumeResult, error)
	CalculateLegVolumes(ctx context.Context, memberID uuid.UUID, period types.Period) (*LegVolumes, error)
	UpdateCarryForward(ctx context.Context, tx *gorm.DB, memberID uuid.UUID, period types.Period, left, right decimal.Decimal) error
	MarkAsProcessed(ctx context.Context, tx *gorm.DB, memberID uuid.UUID, period types.Period) error
	GetRecord(ctx context.Context, memberID uuid.UUID, period types.Period) (*models.VolumePeriodRecord, error)
	ListMemberRecords(ctx context.Context, memberID uuid.UUID, limit int) ([]models.VolumePeriodRecord, error)
	Totals(ctx context.Context, memberID uuid.UUID) (*Totals, error)
	Leaderboard(ctx context.Context, tenantID uuid.UUID, period types.Period, limit int) ([]LeaderboardEntry, error)
}

type service struct {
	repo      Repository
	genealogy genealogy.Service
	tx        txRunner
	logg      *logger.Logger
	now       func() time.Time
}

// NewService wires the volume ledger.
func NewService(repo Repository, genealogySvc genealogy.Service, tx txRunner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("volume repository required")
	}
	if genealogySvc == nil {
		return nil, fmt.Errorf("genealogy service required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		logg = logger.Discard()
	}
	return &service{repo: repo, genealogy: genealogySvc, tx: tx, logg: logg, now: time.Now}, nil
}

// WithTx returns a ledger whose reads and writes run inside tx.
func (s *service) WithTx(tx *gorm.DB) Service {
	if tx == nil {
		return s
	}
	clone := *s
	clone.repo = s.repo.WithTx(tx)
	clone.genealogy = s.genealogy.WithTx(tx)
	clone.tx = db.Join(tx)
	return &clone
}

// RecordVolume adds amount to the member's personal and total volume and, when
// asked, to the matching leg of every ancestor for the same period.
func (s *service) RecordVolume(ctx context.Context, input RecordVolumeInput) (*RecordVolumeResult, error) {
	if input.MemberID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "member id is required")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "volume amount must be positive")
	}
	period, err := validPeriod(input.Period)
	if err != nil {
		return nil, err
	}

	result := &RecordVolumeResult{}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		gen := s.genealogy.WithTx(tx)

		member, err := gen.Member(ctx, input.MemberID)
		if err != nil {
			return err
		}
		record, err := repo.EnsureRecord(ctx, member.TenantID, member.ID, period)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ensure volume record")
		}
		if err := repo.AddVolumes(ctx, record.ID, map[string]decimal.Decimal{
			columnPersonal: input.Amount,
			columnTotal:    input.Amount,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "add personal volume")
		}

		if input.PropagateToUpline {
			upline, err := gen.GetUpline(ctx, member.ID, 0)
			if err != nil {
				return err
			}
			for _, ancestor := range upline {
				ancestorRecord, err := repo.EnsureRecord(ctx, ancestor.Member.TenantID, ancestor.Member.ID, period)
				if err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ensure ancestor volume record")
				}
				column := columnLeft
				if ancestor.Leg == enums.PositionRight {
					column = columnRight
				}
				if err := repo.AddVolumes(ctx, ancestorRecord.ID, map[string]decimal.Decimal{column: input.Amount}); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "propagate leg volume")
				}
			}
			result.AncestorsCredited = len(upline)
		}

		updated, err := repo.FindRecord(ctx, member.ID, period)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload volume record")
		}
		result.Record = updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"member_id":          input.MemberID.String(),
		"period":             period.Key(),
		"amount":             input.Amount.String(),
		"ancestors_credited": result.AncestorsCredited,
	}), "volume recorded")
	return result, nil
}

// CalculateLegVolumes is read-only: a member without a record for period has
// zero legs.
func (s *service) CalculateLegVolumes(ctx context.Context, memberID uuid.UUID, period types.Period) (*LegVolumes, error) {
	period, err := validPeriod(period)
	if err != nil {
		return nil, err
	}
	record, err := s.repo.FindRecord(ctx, memberID, period)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			legs := splitLegs(decimal.Zero, decimal.Zero)
			return &legs, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load volume record")
	}
	legs, err := ComputeLegVolumes(*record)
	if err != nil {
		return nil, err
	}
	return &legs, nil
}

// UpdateCarryForward seeds the carry-forward of the period that follows
// period. Re-running it overwrites the same values.
func (s *service) UpdateCarryForward(ctx context.Context, tx *gorm.DB, memberID uuid.UUID, period types.Period, left, right decimal.Decimal) error {
	if left.IsNegative() || right.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeInternal, "carry-forward must not be negative")
	}
	period, err := validPeriod(period)
	if err != nil {
		return err
	}
	repo := s.repo.WithTx(tx)
	next := period.Next()

	existing, err := repo.FindRecord(ctx, memberID, next)
	switch {
	case err == nil:
		if err := repo.SetCarryForward(ctx, existing.ID, left, right); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update carry-forward")
		}
		return nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load next volume record")
	}
	if left.IsZero() && right.IsZero() {
		return nil
	}

	member, err := s.genealogy.WithTx(tx).Member(ctx, memberID)
	if err != nil {
		return err
	}
	record, err := repo.EnsureRecord(ctx, member.TenantID, memberID, next)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create next volume record")
	}
	if err := repo.SetCarryForward(ctx, record.ID, left, right); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update carry-forward")
	}
	return nil
}

// MarkAsProcessed finalizes the member's record for period. A member without
// a record has nothing to finalize.
func (s *service) MarkAsProcessed(ctx context.Context, tx *gorm.DB, memberID uuid.UUID, period types.Period) error {
	period, err := validPeriod(period)
	if err != nil {
		return err
	}
	repo := s.repo.WithTx(tx)
	record, err := repo.FindRecord(ctx, memberID, period)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load volume record")
	}
	if err := repo.MarkProcessed(ctx, record.ID, s.now().UTC()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark volume record processed")
	}
	return nil
}

func (s *service) GetRecord(ctx context.Context, memberID uuid.UUID, period types.Period) (*models.VolumePeriodRecord, error) {
	period, err := validPeriod(period)
	if err != nil {
		return nil, err
	}
	record, err := s.repo.FindRecord(ctx, memberID, period)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "volume record not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load volume record")
	}
	return record, nil
}

func (s *service) ListMemberRecords(ctx context.Context, memberID uuid.UUID, limit int) ([]models.VolumePeriodRecord, error) {
	records, err := s.repo.ListByMember(ctx, memberID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list volume records")
	}
	return records, nil
}

func (s *service) Totals(ctx context.Context, memberID uuid.UUID) (*Totals, error) {
	totals, err := s.repo.Totals(ctx, memberID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum volume records")
	}
	return totals, nil
}

func (s *service) Leaderboard(ctx context.Context, tenantID uuid.UUID, period types.Period, limit int) ([]LeaderboardEntry, error) {
	period, err := validPeriod(period)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > maxLeaderboard {
		limit = maxLeaderboard
	}
	entries, err := s.repo.Leaderboard(ctx, tenantID, period, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load leaderboard")
	}
	return entries, nil
}

func validPeriod(period types.Period) (types.Period, error) {
	period = period.Normalized()
	if err := period.Validate(); err != nil {
		return types.Period{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid period")
	}
	return period, nil
}
