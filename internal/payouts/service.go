package payouts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/mmn-engine/internal/commissions"
	"github.com/angelmondragon/mmn-engine/internal/compplan"
	"github.com/angelmondragon/mmn-engine/internal/genealogy"
	"github.com/angelmondragon/mmn-engine/pkg/db/models"
	dbtypes "github.com/angelmondragon/mmn-engine/pkg/db/types"
	"github.com/angelmondragon/mmn-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/mmn-engine/pkg/errors"
	"github.com/angelmondragon/mmn-engine/pkg/logger"
	"github.com/angelmondragon/mmn-engine/pkg/metrics"
	"github.com/angelmondragon/mmn-engine/pkg/outbox"
	"github.com/angelmondragon/mmn-engine/pkg/outbox/payloads"
	"github.com/angelmondragon/mmn-engine/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// RequestPayoutInput asks to withdraw approved earnings.
type RequestPayoutInput struct {
	MemberID    uuid.UUID
	Amount      decimal.Decimal
	Method      enums.PayoutMethod
	Destination Destination
}

// PayoutList is a cursor page of payouts.
type PayoutList struct {
	Items      []models.Payout `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// MemberStats summarizes a member's withdrawals and what is left to withdraw.
type MemberStats struct {
	MemberID         uuid.UUID       `json:"member_id"`
	AvailableBalance decimal.Decimal `json:"available_balance"`
	InFlight         decimal.Decimal `json:"in_flight"`
	TotalPaid        decimal.Decimal `json:"total_paid"`
	ByStatus         []StatusTotals  `json:"by_status"`
}

// TenantStats summarizes payouts requested in [From, To).
type TenantStats struct {
	TenantID       uuid.UUID       `json:"tenant_id"`
	From           time.Time       `json:"from"`
	To             time.Time       `json:"to"`
	TotalRequested decimal.Decimal `json:"total_requested"`
	TotalCompleted decimal.Decimal `json:"total_completed"`
	TotalFees      decimal.Decimal `json:"total_fees"`
	ByStatus       []StatusTotals  `json:"by_status"`
}

// Service drives payouts through pending, processing and a terminal state.
type Service interface {
	RequestPayout(ctx context.Context, input RequestPayoutInput) (*models.Payout, error)
	ProcessPayout(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error)
	CompletePayout(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error)
	FailPayout(ctx context.Context, payoutID uuid.UUID, reason string) (*models.Payout, error)
	CancelPayout(ctx context.Context, payoutID, memberID uuid.UUID) (*models.Payout, error)
	GetPayout(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error)
	ListPayouts(ctx context.Context, filter Filter, params pagination.Params) (*PayoutList, error)
	MemberStats(ctx context.Context, memberID uuid.UUID) (*MemberStats, error)
	TenantStats(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (*TenantStats, error)
}

type service struct {
	repo        Repository
	commissions commissions.Service
	genealogy   genealogy.Service
	plans       compplan.Provider
	executors   *ExecutorRegistry
	fees        FeeSchedule
	tx          txRunner
	outbox      outbox.Emitter
	metrics     *metrics.EngineMetrics
	logg        *logger.Logger
	now         func() time.Time
}

// Deps groups the collaborators of the payout workflow.
type Deps struct {
	Repo        Repository
	Commissions commissions.Service
	Genealogy   genealogy.Service
	Plans       compplan.Provider
	Executors   *ExecutorRegistry
	Fees        FeeSchedule
	Tx          txRunner
	Outbox      outbox.Emitter
	Metrics     *metrics.EngineMetrics
	Logger      *logger.Logger
}

// NewService wires the payout workflow.
func NewService(deps Deps) (Service, error) {
	switch {
	case deps.Repo == nil:
		return nil, fmt.Errorf("payout repository required")
	case deps.Commissions == nil:
		return nil, fmt.Errorf("commission service required")
	case deps.Genealogy == nil:
		return nil, fmt.Errorf("genealogy service required")
	case deps.Plans == nil:
		return nil, fmt.Errorf("plan provider required")
	case deps.Executors == nil:
		return nil, fmt.Errorf("executor registry required")
	case deps.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	}
	fees := deps.Fees
	if fees == nil {
		fees = DefaultFeeSchedule()
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
		repo:        deps.Repo,
		commissions: deps.Commissions,
		genealogy:   deps.Genealogy,
		plans:       deps.Plans,
		executors:   deps.Executors,
		fees:        fees,
		tx:          deps.Tx,
		outbox:      emitter,
		metrics:     deps.Metrics,
		logg:        logg,
		now:         time.Now,
	}, nil
}

// SelectFirstFit walks payable commissions in order and keeps each one that
// still fits under target. The total may fall short of target when amounts do
// not divide evenly.
func SelectFirstFit(payable []models.Commission, target decimal.Decimal) ([]models.Commission, decimal.Decimal) {
	total := decimal.Zero
	var selected []models.Commission
	for _, c := range payable {
		if total.Equal(target) {
			break
		}
		if total.Add(c.Amount).GreaterThan(target) {
			continue
		}
		selected = append(selected, c)
		total = total.Add(c.Amount)
	}
	return selected, total
}

// RequestPayout creates a pending payout over approved commissions and marks
// them paid in the same transaction. They return to approved if the payout
// fails or is cancelled.
func (s *service) RequestPayout(ctx context.Context, input RequestPayoutInput) (*models.Payout, error) {
	if input.MemberID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "member id is required")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payout amount must be positive")
	}
	if !input.Method.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unsupported payout method %q", input.Method)
	}
	destination, err := input.Destination.ForMethod(input.Method)
	if err != nil {
		return nil, err
	}
	member, err := s.genealogy.Member(ctx, input.MemberID)
	if err != nil {
		return nil, err
	}
	plan, err := s.plans.PlanFor(ctx, member.TenantID)
	if err != nil {
		return nil, err
	}
	if input.Amount.LessThan(plan.MinimumPayout) {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "payout amount is below the minimum of %s", plan.MinimumPayout).
			WithDetails(map[string]any{"minimum": plan.MinimumPayout.String()})
	}
	destinationJSON, err := dbtypes.MarshalJSONValue(destination)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode payout destination")
	}

	var payout *models.Payout
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		payable, err := s.commissions.WithTx(tx).ListPayable(ctx, member.ID)
		if err != nil {
			return err
		}
		available := decimal.Zero
		for _, c := range payable {
			available = available.Add(c.Amount)
		}
		if input.Amount.GreaterThan(available) {
			return pkgerrors.New(pkgerrors.CodeValidation, "payout amount exceeds available balance").
				WithDetails(map[string]any{"available": available.String()})
		}

		selected, total := SelectFirstFit(payable, input.Amount)
		if len(selected) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "no approved commissions fit the requested amount")
		}
		fee, err := s.fees.Fee(input.Method, total)
		if err != nil {
			return err
		}
		ids := make(dbtypes.UUIDArray, 0, len(selected))
		for _, c := range selected {
			ids = append(ids, c.ID)
		}

		now := s.timestamp()
		payout = &models.Payout{
			TenantID:      member.TenantID,
			MemberID:      member.ID,
			Amount:        total,
			Fee:           fee,
			NetAmount:     total.Sub(fee),
			Currency:      plan.Currency,
			Method:        input.Method,
			CommissionIDs: ids,
			Status:        enums.PayoutStatusPending,
			Destination:   destinationJSON,
			RequestedAt:   now,
			CreatedAt:     now,
		}
		if err := s.repo.WithTx(tx).Create(ctx, payout); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payout")
		}
		if err := s.commissions.MarkAsPaid(ctx, tx, ids, payout.ID); err != nil {
			return err
		}
		return s.emit(ctx, tx, payout, enums.EventPayoutRequested)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncPayoutTransition(string(enums.PayoutStatusPending))
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"payout_id":   payout.ID.String(),
		"member_id":   payout.MemberID.String(),
		"requested":   input.Amount.String(),
		"amount":      payout.Amount.String(),
		"fee":         payout.Fee.String(),
		"commissions": len(payout.CommissionIDs),
	}), "payout requested")
	return payout, nil
}

// ProcessPayout commits the move to processing, then hands the transfer to
// the method's executor. Executor failures are logged and the payout stays
// processing for manual resolution.
func (s *service) ProcessPayout(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error) {
	payout, err := s.transition(ctx, payoutID, transition{
		from:  []enums.PayoutStatus{enums.PayoutStatusPending},
		to:    enums.PayoutStatusProcessing,
		event: enums.EventPayoutProcessing,
		updates: map[string]any{
			"processed_at": s.timestamp(),
		},
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"payout_id": payout.ID.String(),
		"method":    string(payout.Method),
	})
	executor, ok := s.executors.For(payout.Method)
	if !ok {
		s.logg.Warn(logCtx, "no executor registered for payout method")
		return payout, nil
	}
	var destination Destination
	if err := payout.Destination.Unmarshal(&destination); err != nil {
		s.logg.Error(logCtx, "payout destination unreadable", err)
		return payout, nil
	}
	result, err := executor.Execute(ctx, ExecutionRequest{
		PayoutID:    payout.ID,
		MemberID:    payout.MemberID,
		Method:      payout.Method,
		NetAmount:   payout.NetAmount,
		Currency:    payout.Currency,
		Destination: destination,
	})
	if err != nil {
		s.logg.Error(logCtx, "payout execution failed; left processing", err)
		return payout, nil
	}
	if result != nil && result.ExternalReference != "" {
		if err := s.repo.SetExternalReference(ctx, payout.ID, result.ExternalReference); err != nil {
			s.logg.Error(logCtx, "record external reference", err)
			return payout, nil
		}
		reference := result.ExternalReference
		payout.ExternalReference = &reference
	}
	return payout, nil
}

func (s *service) CompletePayout(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error) {
	return s.transition(ctx, payoutID, transition{
		from:  []enums.PayoutStatus{enums.PayoutStatusProcessing},
		to:    enums.PayoutStatusCompleted,
		event: enums.EventPayoutCompleted,
		updates: map[string]any{
			"completed_at": s.timestamp(),
		},
	})
}

// FailPayout marks the payout failed and returns its commissions to approved.
func (s *service) FailPayout(ctx context.Context, payoutID uuid.UUID, reason string) (*models.Payout, error) {
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "failure reason is required")
	}
	return s.transition(ctx, payoutID, transition{
		from:   []enums.PayoutStatus{enums.PayoutStatusPending, enums.PayoutStatusProcessing},
		to:     enums.PayoutStatusFailed,
		event:  enums.EventPayoutFailed,
		revert: true,
		reason: reason,
		updates: map[string]any{
			"failed_at":      s.timestamp(),
			"failure_reason": reason,
		},
	})
}

// CancelPayout withdraws a pending request. Only the requesting member may
// cancel.
func (s *service) CancelPayout(ctx context.Context, payoutID, memberID uuid.UUID) (*models.Payout, error) {
	return s.transition(ctx, payoutID, transition{
		from:   []enums.PayoutStatus{enums.PayoutStatusPending},
		to:     enums.PayoutStatusCancelled,
		event:  enums.EventPayoutCancelled,
		revert: true,
		updates: map[string]any{
			"cancelled_at": s.timestamp(),
		},
		check: func(p *models.Payout) error {
			if p.MemberID != memberID {
				return pkgerrors.New(pkgerrors.CodeForbidden, "only the requesting member may cancel a payout")
			}
			return nil
		},
	})
}

type transition struct {
	from    []enums.PayoutStatus
	to      enums.PayoutStatus
	event   enums.OutboxEventType
	updates map[string]any
	revert  bool
	reason  string
	check   func(*models.Payout) error
}

func (s *service) transition(ctx context.Context, payoutID uuid.UUID, t transition) (*models.Payout, error) {
	var payout *models.Payout
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindByID(ctx, payoutID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "payout not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout")
		}
		if t.check != nil {
			if err := t.check(current); err != nil {
				return err
			}
		}

		updates := map[string]any{"status": t.to}
		for k, v := range t.updates {
			updates[k] = v
		}
		affected, err := repo.Transition(ctx, payoutID, t.from, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payout status")
		}
		if affected == 0 {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "payout is %s", current.Status).
				WithDetails(map[string]any{"status": current.Status, "target": t.to})
		}

		if t.revert {
			reverted, err := s.commissions.RevertToApproved(ctx, tx, current.CommissionIDs, current.ID)
			if err != nil {
				return err
			}
			if reverted != int64(len(current.CommissionIDs)) {
				return pkgerrors.Newf(pkgerrors.CodeInternal, "reverted %d of %d commissions for payout %s", reverted, len(current.CommissionIDs), current.ID)
			}
		}

		payout, err = repo.FindByID(ctx, payoutID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload payout")
		}
		return s.emit(ctx, tx, payout, t.event)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncPayoutTransition(string(t.to))
	fields := map[string]any{
		"payout_id": payout.ID.String(),
		"member_id": payout.MemberID.String(),
		"status":    string(t.to),
	}
	if t.reason != "" {
		fields["reason"] = t.reason
	}
	s.logg.Info(s.logg.WithFields(ctx, fields), "payout status changed")
	return payout, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, payout *models.Payout, eventType enums.OutboxEventType) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		TenantID:      payout.TenantID,
		EventType:     eventType,
		AggregateType: enums.AggregatePayout,
		AggregateID:   payout.ID,
		Data: payloads.PayoutStatusEvent{
			PayoutID:          payout.ID,
			MemberID:          payout.MemberID,
			Status:            payout.Status,
			Method:            payout.Method,
			Amount:            payout.Amount,
			NetAmount:         payout.NetAmount,
			CommissionIDs:     []uuid.UUID(payout.CommissionIDs),
			ExternalReference: payout.ExternalReference,
			Reason:            payout.FailureReason,
		},
	})
}

func (s *service) GetPayout(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error) {
	payout, err := s.repo.FindByID(ctx, payoutID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payout not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout")
	}
	return payout, nil
}

func (s *service) ListPayouts(ctx context.Context, filter Filter, params pagination.Params) (*PayoutList, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.List(ctx, filter, cursor, params.Limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payouts")
	}
	list := &PayoutList{}
	list.Items, list.NextCursor = pagination.Trim(rows, params.Limit, func(p models.Payout) pagination.Cursor {
		return pagination.Cursor{At: p.RequestedAt, ID: p.ID}
	})
	return list, nil
}

func (s *service) MemberStats(ctx context.Context, memberID uuid.UUID) (*MemberStats, error) {
	payable, err := s.commissions.ListPayable(ctx, memberID)
	if err != nil {
		return nil, err
	}
	totals, err := s.repo.TotalsByMember(ctx, memberID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum member payouts")
	}
	stats := &MemberStats{
		MemberID:         memberID,
		AvailableBalance: decimal.Zero,
		InFlight:         decimal.Zero,
		TotalPaid:        decimal.Zero,
		ByStatus:         totals,
	}
	for _, c := range payable {
		stats.AvailableBalance = stats.AvailableBalance.Add(c.Amount)
	}
	for _, row := range totals {
		switch row.Status {
		case enums.PayoutStatusPending, enums.PayoutStatusProcessing:
			stats.InFlight = stats.InFlight.Add(row.Amount)
		case enums.PayoutStatusCompleted:
			stats.TotalPaid = stats.TotalPaid.Add(row.NetAmount)
		}
	}
	return stats, nil
}

// TenantStats aggregates payouts requested in [from, to).
func (s *service) TenantStats(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (*TenantStats, error) {
	if !to.After(from) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stats window end must be after its start")
	}
	from, to = from.UTC(), to.UTC()
	totals, err := s.repo.TotalsByTenant(ctx, tenantID, from, to)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum tenant payouts")
	}
	stats := &TenantStats{
		TenantID:       tenantID,
		From:           from,
		To:             to,
		TotalRequested: decimal.Zero,
		TotalCompleted: decimal.Zero,
		TotalFees:      decimal.Zero,
		ByStatus:       totals,
	}
	for _, row := range totals {
		stats.TotalRequested = stats.TotalRequested.Add(row.Amount)
		if row.Status == enums.PayoutStatusCompleted {
			stats.TotalCompleted = stats.TotalCompleted.Add(row.NetAmount)
			stats.TotalFees = stats.TotalFees.Add(row.Fee)
		}
	}
	return stats, nil
}

func (s *service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}
