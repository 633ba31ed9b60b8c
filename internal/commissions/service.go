package commissions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/mmn-engine/internal/compplan"
	"github.com/angelmondragon/mmn-engine/internal/genealogy"
	"github.com/angelmondragon/mmn-engine/internal/volume"
	"github.com/angelmondragon/mmn-engine/pkg/db"
	"github.com/angelmondragon/mmn-engine/pkg/db/models"
	"github.com/angelmondragon/mmn-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/mmn-engine/pkg/errors"
	"github.com/angelmondragon/mmn-engine/pkg/logger"
	"github.com/angelmondragon/mmn-engine/pkg/metrics"
	"github.com/angelmondragon/mmn-engine/pkg/outbox"
	"github.com/angelmondragon/mmn-engine/pkg/outbox/payloads"
	"github.com/angelmondragon/mmn-engine/pkg/pagination"
	"github.com/angelmondragon/mmn-engine/pkg/types"
)

const idempotencyIndex = "ux_commissions_idempotency"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type memberLister interface {
	ListActive(ctx context.Context, tenantID uuid.UUID) ([]models.MemberNode, error)
}

// UnilevelInput is one sale whose volume pays up the upline.
type UnilevelInput struct {
	MemberID    uuid.UUID
	Period      types.Period
	SalesVolume decimal.Decimal
	Reference   string
}

// BonusInput describes a fixed-amount leadership commission.
type BonusInput struct {
	TenantID  uuid.UUID
	MemberID  uuid.UUID
	Amount    decimal.Decimal
	Currency  string
	Period    types.Period
	Reference string
	Notes     string
}

// BatchResult summarizes a period close. Members that failed are listed in
// Failed; their errors are returned alongside the result.
type BatchResult struct {
	TenantID        uuid.UUID       `json:"tenant_id"`
	Period          types.Period    `json:"period"`
	MembersScanned  int             `json:"members_scanned"`
	BinaryCreated   int             `json:"binary_created"`
	MatchingCreated int             `json:"matching_created"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Failed          []uuid.UUID     `json:"failed,omitempty"`
}

// CommissionList is a cursor page of commissions.
type CommissionList struct {
	Items      []models.Commission `json:"items"`
	NextCursor string              `json:"next_cursor,omitempty"`
}

// Service computes and transitions commissions.
type Service interface {
	WithTx(tx *gorm.DB) Service
	CalculateBinaryCommission(ctx context.Context, memberID uuid.UUID, period types.Period) (*models.Commission, error)
	CalculateUnilevelCommission(ctx context.Context, input UnilevelInput) ([]models.Commission, error)
	CalculateMatchingBonus(ctx context.Context, memberID uuid.UUID, period types.Period, matchingRate decimal.Decimal) ([]models.Commission, error)
	ProcessCommissions(ctx context.Context, tenantID uuid.UUID, period types.Period) (*BatchResult, error)
	RecordBonus(ctx context.Context, tx *gorm.DB, input BonusInput) (*models.Commission, bool, error)
	ApproveCommission(ctx context.Context, id uuid.UUID) (*models.Commission, error)
	CancelCommission(ctx context.Context, id uuid.UUID, reason string) (*models.Commission, error)
	ApprovePeriod(ctx context.Context, tenantID uuid.UUID, period types.Period) (int64, error)
	MarkAsPaid(ctx context.Context, tx *gorm.DB, ids []uuid.UUID, payoutID uuid.UUID) error
	RevertToApproved(ctx context.Context, tx *gorm.DB, ids []uuid.UUID, payoutID uuid.UUID) (int64, error)
	ListPayable(ctx context.Context, memberID uuid.UUID) ([]models.Commission, error)
	GetCommission(ctx context.Context, id uuid.UUID) (*models.Commission, error)
	ListCommissions(ctx context.Context, filter Filter, params pagination.Params) (*CommissionList, error)
}

type service struct {
	repo      Repository
	genealogy genealogy.Service
	volume    volume.Service
	members   memberLister
	plans     compplan.Provider
	tx        txRunner
	outbox    outbox.Emitter
	metrics   *metrics.EngineMetrics
	logg      *logger.Logger
	now       func() time.Time
}

// Deps groups the collaborators of the commission engine.
type Deps struct {
	Repo      Repository
	Genealogy genealogy.Service
	Volume    volume.Service
	Members   memberLister
	Plans     compplan.Provider
	Tx        txRunner
	Outbox    outbox.Emitter
	Metrics   *metrics.EngineMetrics
	Logger    *logger.Logger
}

// NewService wires the commission engine.
func NewService(deps Deps) (Service, error) {
	switch {
	case deps.Repo == nil:
		return nil, fmt.Errorf("commission repository required")
	case deps.Genealogy == nil:
		return nil, fmt.Errorf("genealogy service required")
	case deps.Volume == nil:
		return nil, fmt.Errorf("volume service required")
	case deps.Members == nil:
		return nil, fmt.Errorf("member lister required")
	case deps.Plans == nil:
		return nil, fmt.Errorf("plan provider required")
	case deps.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	}
	emitter := deps.Outbox
	if emitter == nil {
		emitter = outbox.Discard{}
	}
	logg := deps.Logger
	if logg == nil {
		logg = logger.Discard()
	}
	return &service{
		repo:      deps.Repo,
		genealogy: deps.Genealogy,
		volume:    deps.Volume,
		members:   deps.Members,
		plans:     deps.Plans,
		tx:        deps.Tx,
		outbox:    emitter,
		metrics:   deps.Metrics,
		logg:      logg,
		now:       time.Now,
	}, nil
}

// WithTx returns an engine whose reads run inside tx.
func (s *service) WithTx(tx *gorm.DB) Service {
	if tx == nil {
		return s
	}
	clone := *s
	clone.repo = s.repo.WithTx(tx)
	clone.genealogy = s.genealogy.WithTx(tx)
	clone.volume = s.volume.WithTx(tx)
	clone.tx = db.Join(tx)
	return &clone
}

// CalculateBinaryCommission pays a qualified member on the weaker leg of
// period, rolls the stronger leg's surplus into the next period and finalizes
// the record. It returns nil when nothing is commissionable and the existing
// row when the period was already paid.
func (s *service) CalculateBinaryCommission(ctx context.Context, memberID uuid.UUID, period types.Period) (*models.Commission, error) {
	commission, _, err := s.calculateBinary(ctx, memberID, period)
	return commission, err
}

func (s *service) calculateBinary(ctx context.Context, memberID uuid.UUID, period types.Period) (*models.Commission, bool, error) {
	period, err := validPeriod(period)
	if err != nil {
		return nil, false, err
	}
	member, err := s.genealogy.Member(ctx, memberID)
	if err != nil {
		return nil, false, err
	}
	if !member.Earns() {
		return nil, false, nil
	}
	plan, err := s.plans.PlanFor(ctx, member.TenantID)
	if err != nil {
		return nil, false, err
	}

	key := Key{MemberID: member.ID, SourceID: member.ID, Type: enums.CommissionTypeBinary, Period: period}
	if existing, err := s.repo.FindByKey(ctx, key); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing binary commission")
	}

	var created *models.Commission
	var fresh bool
	var breakdown BinaryBreakdown
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ledger := s.volume.WithTx(tx)
		legs, err := ledger.CalculateLegVolumes(ctx, member.ID, period)
		if err != nil {
			return err
		}

		if legs.CommissionableVolume.IsPositive() {
			breakdown = ComputeBinary(*legs, plan)
			weaker := legs.WeakerSide
			commission := &models.Commission{
				TenantID:    member.TenantID,
				MemberID:    member.ID,
				SourceID:    member.ID,
				Type:        enums.CommissionTypeBinary,
				Leg:         &weaker,
				Volume:      breakdown.CommissionableVolume,
				Rate:        plan.BinaryCommissionRate,
				Amount:      breakdown.Amount,
				Currency:    plan.Currency,
				Status:      enums.CommissionStatusPending,
				PeriodType:  period.Type,
				PeriodStart: period.Start,
				PeriodEnd:   period.End,
			}
			row, ok, err := s.insert(ctx, tx, commission)
			if err != nil {
				return err
			}
			created, fresh = row, ok
			if !ok {
				return nil
			}
		}

		if err := ledger.UpdateCarryForward(ctx, tx, member.ID, period, legs.NewLeftCarryForward, legs.NewRightCarryForward); err != nil {
			return err
		}
		return ledger.MarkAsProcessed(ctx, tx, member.ID, period)
	})
	if err != nil {
		return nil, false, err
	}
	if fresh {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"member_id":   member.ID.String(),
			"period":      period.Key(),
			"amount":      created.Amount.String(),
			"raw_amount":  breakdown.RawAmount.String(),
			"capped":      breakdown.Capped,
			"weaker_side": string(*created.Leg),
		}), "binary commission calculated")
	}
	return created, fresh, nil
}

// CalculateUnilevelCommission pays each qualified, active ancestor within the
// plan's unilevel depth its level's share of the sale. Shares of unqualified
// ancestors are forfeited.
func (s *service) CalculateUnilevelCommission(ctx context.Context, input UnilevelInput) ([]models.Commission, error) {
	period, err := validPeriod(input.Period)
	if err != nil {
		return nil, err
	}
	if !input.SalesVolume.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sales volume must be positive")
	}
	if input.Reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sale reference is required")
	}
	member, err := s.genealogy.Member(ctx, input.MemberID)
	if err != nil {
		return nil, err
	}
	plan, err := s.plans.PlanFor(ctx, member.TenantID)
	if err != nil {
		return nil, err
	}
	if plan.UnilevelLevels == 0 {
		return nil, nil
	}

	var created []models.Commission
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		upline, err := s.genealogy.WithTx(tx).GetUpline(ctx, member.ID, plan.UnilevelLevels)
		if err != nil {
			return err
		}
		for _, ancestor := range upline {
			if !ancestor.Member.Earns() {
				continue
			}
			rate := plan.UnilevelRate(ancestor.Distance)
			if !rate.IsPositive() {
				continue
			}
			leg := ancestor.Leg
			row, ok, err := s.insert(ctx, tx, &models.Commission{
				TenantID:    member.TenantID,
				MemberID:    ancestor.Member.ID,
				SourceID:    member.ID,
				Type:        enums.CommissionTypeUnilevel,
				Level:       ancestor.Distance,
				Leg:         &leg,
				Volume:      input.SalesVolume,
				Rate:        rate,
				Amount:      ComputeShare(input.SalesVolume, rate),
				Currency:    plan.Currency,
				Status:      enums.CommissionStatusPending,
				PeriodType:  period.Type,
				PeriodStart: period.Start,
				PeriodEnd:   period.End,
				Reference:   input.Reference,
			})
			if err != nil {
				return err
			}
			if ok {
				created = append(created, *row)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// CalculateMatchingBonus pays a qualified member matchingRate percent of what
// each personally sponsored member had approved in period.
func (s *service) CalculateMatchingBonus(ctx context.Context, memberID uuid.UUID, period types.Period, matchingRate decimal.Decimal) ([]models.Commission, error) {
	period, err := validPeriod(period)
	if err != nil {
		return nil, err
	}
	if matchingRate.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "matching rate must not be negative")
	}
	member, err := s.genealogy.Member(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if !member.Earns() || !matchingRate.IsPositive() {
		return nil, nil
	}
	plan, err := s.plans.PlanFor(ctx, member.TenantID)
	if err != nil {
		return nil, err
	}

	var created []models.Commission
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		sponsored, err := repo.ListSponsoredIDs(ctx, member.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list sponsored members")
		}
		sums, err := repo.SumApprovedByMember(ctx, sponsored, period)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum sponsored commissions")
		}
		for _, sourceID := range sponsored {
			earned := sums[sourceID]
			if !earned.IsPositive() {
				continue
			}
			row, ok, err := s.insert(ctx, tx, &models.Commission{
				TenantID:    member.TenantID,
				MemberID:    member.ID,
				SourceID:    sourceID,
				Type:        enums.CommissionTypeMatching,
				Level:       1,
				Volume:      earned,
				Rate:        matchingRate,
				Amount:      ComputeShare(earned, matchingRate),
				Currency:    plan.Currency,
				Status:      enums.CommissionStatusPending,
				PeriodType:  period.Type,
				PeriodStart: period.Start,
				PeriodEnd:   period.End,
			})
			if err != nil {
				return err
			}
			if ok {
				created = append(created, *row)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// ProcessCommissions closes period for every active member of the tenant:
// binary first, then matching. A failing member does not roll back the others.
func (s *service) ProcessCommissions(ctx context.Context, tenantID uuid.UUID, period types.Period) (*BatchResult, error) {
	period, err := validPeriod(period)
	if err != nil {
		return nil, err
	}
	plan, err := s.plans.PlanFor(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	members, err := s.members.ListActive(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{TenantID: tenantID, Period: period, MembersScanned: len(members), TotalAmount: decimal.Zero}
	failed := map[uuid.UUID]bool{}
	var errs error
	fail := func(memberID uuid.UUID, pass string, err error) {
		errs = multierr.Append(errs, fmt.Errorf("%s commission for member %s: %w", pass, memberID, err))
		if !failed[memberID] {
			failed[memberID] = true
			result.Failed = append(result.Failed, memberID)
		}
	}

	for _, member := range members {
		commission, created, err := s.calculateBinary(ctx, member.ID, period)
		if err != nil {
			fail(member.ID, "binary", err)
			continue
		}
		if created {
			result.BinaryCreated++
			result.TotalAmount = result.TotalAmount.Add(commission.Amount)
		}
	}
	for _, member := range members {
		matched, err := s.CalculateMatchingBonus(ctx, member.ID, period, plan.MatchingBonusRate)
		if err != nil {
			fail(member.ID, "matching", err)
			continue
		}
		result.MatchingCreated += len(matched)
		for _, commission := range matched {
			result.TotalAmount = result.TotalAmount.Add(commission.Amount)
		}
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"tenant_id":        tenantID.String(),
		"period":           period.Key(),
		"members":          result.MembersScanned,
		"binary_created":   result.BinaryCreated,
		"matching_created": result.MatchingCreated,
		"failed":           len(result.Failed),
	})
	if errs != nil {
		s.logg.Error(logCtx, "commission batch finished with failures", errs)
	} else {
		s.logg.Info(logCtx, "commission batch finished")
	}
	return result, errs
}

// RecordBonus writes a leadership commission inside tx. created is false when
// the same bonus was already recorded.
func (s *service) RecordBonus(ctx context.Context, tx *gorm.DB, input BonusInput) (*models.Commission, bool, error) {
	if !input.Amount.IsPositive() {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "bonus amount must be positive")
	}
	if input.Reference == "" {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "bonus reference is required")
	}
	period, err := validPeriod(input.Period)
	if err != nil {
		return nil, false, err
	}
	commission := &models.Commission{
		TenantID:    input.TenantID,
		MemberID:    input.MemberID,
		SourceID:    input.MemberID,
		Type:        enums.CommissionTypeLeadership,
		Volume:      decimal.Zero,
		Rate:        decimal.Zero,
		Amount:      input.Amount.Round(amountPlaces),
		Currency:    input.Currency,
		Status:      enums.CommissionStatusPending,
		PeriodType:  period.Type,
		PeriodStart: period.Start,
		PeriodEnd:   period.End,
		Reference:   input.Reference,
	}
	if input.Notes != "" {
		notes := input.Notes
		commission.Notes = &notes
	}
	return s.insert(ctx, tx, commission)
}

func (s *service) ApproveCommission(ctx context.Context, id uuid.UUID) (*models.Commission, error) {
	now := s.timestamp()
	return s.transitionOne(ctx, id, []enums.CommissionStatus{enums.CommissionStatusPending}, map[string]any{
		"status":      enums.CommissionStatusApproved,
		"approved_at": now,
	})
}

// CancelCommission voids a commission that has not been paid.
func (s *service) CancelCommission(ctx context.Context, id uuid.UUID, reason string) (*models.Commission, error) {
	updates := map[string]any{
		"status":       enums.CommissionStatusCancelled,
		"cancelled_at": s.timestamp(),
	}
	if reason != "" {
		updates["notes"] = reason
	}
	return s.transitionOne(ctx, id, []enums.CommissionStatus{enums.CommissionStatusPending, enums.CommissionStatusApproved}, updates)
}

func (s *service) transitionOne(ctx context.Context, id uuid.UUID, from []enums.CommissionStatus, updates map[string]any) (*models.Commission, error) {
	var out *models.Commission
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "commission not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load commission")
		}
		affected, err := repo.Transition(ctx, []uuid.UUID{id}, from, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update commission status")
		}
		if affected == 0 {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "commission is %s", current.Status).
				WithDetails(map[string]any{"status": current.Status, "target": updates["status"]})
		}
		out, err = repo.FindByID(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload commission")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ApprovePeriod approves every pending commission of the tenant in period.
func (s *service) ApprovePeriod(ctx context.Context, tenantID uuid.UUID, period types.Period) (int64, error) {
	period, err := validPeriod(period)
	if err != nil {
		return 0, err
	}
	affected, err := s.repo.TransitionPeriod(ctx, tenantID, period, enums.CommissionStatusPending, map[string]any{
		"status":      enums.CommissionStatusApproved,
		"approved_at": s.timestamp(),
	})
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "approve period commissions")
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"tenant_id": tenantID.String(),
		"period":    period.Key(),
		"approved":  affected,
	}), "period commissions approved")
	return affected, nil
}

// MarkAsPaid attaches approved commissions to a payout. Every id must be
// approved and unattached or nothing is changed.
func (s *service) MarkAsPaid(ctx context.Context, tx *gorm.DB, ids []uuid.UUID, payoutID uuid.UUID) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	affected, err := s.repo.WithTx(tx).MarkPaid(ctx, ids, payoutID, s.timestamp())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark commissions paid")
	}
	if affected != int64(len(ids)) {
		return pkgerrors.Newf(pkgerrors.CodeStateConflict, "%d of %d commissions were payable", affected, len(ids))
	}
	return nil
}

// RevertToApproved detaches commissions from a payout that did not settle.
func (s *service) RevertToApproved(ctx context.Context, tx *gorm.DB, ids []uuid.UUID, payoutID uuid.UUID) (int64, error) {
	if tx == nil {
		return 0, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	affected, err := s.repo.WithTx(tx).RevertPaid(ctx, ids, payoutID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revert paid commissions")
	}
	return affected, nil
}

func (s *service) ListPayable(ctx context.Context, memberID uuid.UUID) ([]models.Commission, error) {
	rows, err := s.repo.ListPayable(ctx, memberID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payable commissions")
	}
	return rows, nil
}

func (s *service) GetCommission(ctx context.Context, id uuid.UUID) (*models.Commission, error) {
	row, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "commission not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load commission")
	}
	return row, nil
}

func (s *service) ListCommissions(ctx context.Context, filter Filter, params pagination.Params) (*CommissionList, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	if filter.Period != nil {
		normalized := filter.Period.Normalized()
		filter.Period = &normalized
	}
	rows, err := s.repo.List(ctx, filter, cursor, params.Limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list commissions")
	}
	list := &CommissionList{}
	list.Items, list.NextCursor = pagination.Trim(rows, params.Limit, func(c models.Commission) pagination.Cursor {
		return pagination.Cursor{At: c.CreatedAt, ID: c.ID}
	})
	return list, nil
}

// insert writes c unless a row with the same idempotency key exists. The
// returned bool reports whether a new row was written.
func (s *service) insert(ctx context.Context, tx *gorm.DB, c *models.Commission) (*models.Commission, bool, error) {
	repo := s.repo.WithTx(tx)
	existing, err := repo.FindByKey(ctx, keyOf(c))
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check commission idempotency")
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.timestamp()
	}
	if err := repo.Create(ctx, c); err != nil {
		if db.IsUniqueViolation(err, idempotencyIndex) {
			return nil, false, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "commission already recorded")
		}
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create commission")
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		TenantID:      c.TenantID,
		EventType:     enums.EventCommissionCreated,
		AggregateType: enums.AggregateCommission,
		AggregateID:   c.ID,
		Data: payloads.CommissionCreatedEvent{
			CommissionID: c.ID,
			MemberID:     c.MemberID,
			SourceID:     c.SourceID,
			Type:         c.Type,
			Level:        c.Level,
			Amount:       c.Amount,
			Currency:     c.Currency,
			PeriodStart:  c.PeriodStart,
			PeriodEnd:    c.PeriodEnd,
		},
	}); err != nil {
		return nil, false, err
	}
	s.metrics.ObserveCommission(string(c.Type), c.Amount)
	return c, true, nil
}

func keyOf(c *models.Commission) Key {
	return Key{
		MemberID:  c.MemberID,
		SourceID:  c.SourceID,
		Type:      c.Type,
		Level:     c.Level,
		Period:    types.Period{Type: c.PeriodType, Start: c.PeriodStart, End: c.PeriodEnd},
		Reference: c.Reference,
	}
}

func (s *service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func validPeriod(period types.Period) (types.Period, error) {
	period = period.Normalized()
	if err := period.Validate(); err != nil {
		return types.Period{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid period")
	}
	return period, nil
}
