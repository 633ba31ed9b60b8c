package sales

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/mmn-engine/internal/commissions"
	"github.com/angelmondragon/mmn-engine/internal/genealogy"
	"github.com/angelmondragon/mmn-engine/internal/volume"
	"github.com/angelmondragon/mmn-engine/pkg/db"
	"github.com/angelmondragon/mmn-engine/pkg/db/models"
	dbtypes "github.com/angelmondragon/mmn-engine/pkg/db/types"
	pkgerrors "github.com/angelmondragon/mmn-engine/pkg/errors"
	"github.com/angelmondragon/mmn-engine/pkg/logger"
	"github.com/angelmondragon/mmn-engine/pkg/types"
)

const (
	saleReferenceIndex = "ux_sale_events_reference"
	defaultListLimit   = 50
	maxListLimit       = 500
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// SaleEvent is a sale reported by the commerce side of the platform.
type SaleEvent struct {
	MemberID  uuid.UUID
	Period    types.Period
	Volume    decimal.Decimal
	Reference string
	Metadata  map[string]any
}

// SaleResult reports what one sale produced. Replayed is set when the
// reference was already ingested; nothing is written in that case.
type SaleResult struct {
	Sale              *models.SaleEvent          `json:"sale"`
	Record            *models.VolumePeriodRecord `json:"volume_record,omitempty"`
	AncestorsCredited int                        `json:"ancestors_credited"`
	Commissions       []models.Commission        `json:"commissions"`
	Replayed          bool                       `json:"replayed"`
}

// Service is the single entry point for sales volume.
type Service interface {
	RecordSale(ctx context.Context, event SaleEvent) (*SaleResult, error)
	ListMemberSales(ctx context.Context, memberID uuid.UUID, limit int) ([]models.SaleEvent, error)
}

type service struct {
	repo        Repository
	genealogy   genealogy.Service
	volume      volume.Service
	commissions commissions.Service
	tx          txRunner
	logg        *logger.Logger
	now         func() time.Time
}

// NewService wires sale ingestion.
func NewService(
	repo Repository,
	genealogySvc genealogy.Service,
	volumeSvc volume.Service,
	commissionSvc commissions.Service,
	tx txRunner,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("sales repository required")
	}
	if genealogySvc == nil {
		return nil, fmt.Errorf("genealogy service required")
	}
	if volumeSvc == nil {
		return nil, fmt.Errorf("volume service required")
	}
	if commissionSvc == nil {
		return nil, fmt.Errorf("commission service required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		logg = logger.Discard()
	}
	return &service{
		repo:        repo,
		genealogy:   genealogySvc,
		volume:      volumeSvc,
		commissions: commissionSvc,
		tx:          tx,
		logg:        logg,
		now:         time.Now,
	}, nil
}

// RecordSale stores the sale, credits its volume to the member and every
// ancestor leg, and pays unilevel commissions up the sponsor line. All of it
// commits together. A repeated reference returns the original sale.
func (s *service) RecordSale(ctx context.Context, event SaleEvent) (*SaleResult, error) {
	if event.MemberID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "member id is required")
	}
	if event.Reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sale reference is required")
	}
	if !event.Volume.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sale volume must be positive")
	}
	period := event.Period.Normalized()
	if err := period.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid period")
	}
	member, err := s.genealogy.Member(ctx, event.MemberID)
	if err != nil {
		return nil, err
	}

	var metadata dbtypes.JSON
	if len(event.Metadata) > 0 {
		metadata, err = dbtypes.MarshalJSONValue(event.Metadata)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "encode sale metadata")
		}
	}

	result := &SaleResult{}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.FindByReference(ctx, member.TenantID, event.Reference)
		switch {
		case err == nil:
			if existing.MemberID != member.ID || !existing.Volume.Equal(event.Volume) {
				return pkgerrors.Newf(pkgerrors.CodeConflict, "sale %s was recorded with different details", event.Reference)
			}
			result.Sale = existing
			result.Replayed = true
			return nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load sale")
		}

		sale := &models.SaleEvent{
			TenantID:    member.TenantID,
			Reference:   event.Reference,
			MemberID:    member.ID,
			Volume:      event.Volume,
			PeriodType:  period.Type,
			PeriodStart: period.Start,
			PeriodEnd:   period.End,
			Metadata:    metadata,
			CreatedAt:   s.timestamp(),
		}
		if err := repo.Create(ctx, sale); err != nil {
			if db.IsUniqueViolation(err, saleReferenceIndex) {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "sale already recorded")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create sale")
		}
		result.Sale = sale

		recorded, err := s.volume.WithTx(tx).RecordVolume(ctx, volume.RecordVolumeInput{
			MemberID:          member.ID,
			Period:            period,
			Amount:            event.Volume,
			PropagateToUpline: true,
		})
		if err != nil {
			return err
		}
		result.Record = recorded.Record
		result.AncestorsCredited = recorded.AncestorsCredited

		created, err := s.commissions.WithTx(tx).CalculateUnilevelCommission(ctx, commissions.UnilevelInput{
			MemberID:    member.ID,
			Period:      period,
			SalesVolume: event.Volume,
			Reference:   event.Reference,
		})
		if err != nil {
			return err
		}
		result.Commissions = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"member_id": member.ID.String(),
		"reference": event.Reference,
		"volume":    event.Volume.String(),
	})
	if result.Replayed {
		s.logg.Info(logCtx, "sale already recorded")
		return result, nil
	}
	s.logg.Info(s.logg.WithFields(logCtx, map[string]any{
		"ancestors_credited": result.AncestorsCredited,
		"commissions":        len(result.Commissions),
	}), "sale recorded")
	return result, nil
}

func (s *service) ListMemberSales(ctx context.Context, memberID uuid.UUID, limit int) ([]models.SaleEvent, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	rows, err := s.repo.ListByMember(ctx, memberID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list sales")
	}
	return rows, nil
}

func (s *service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}
