package ranks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/mmn-engine/internal/commissions"
	"github.com/angelmondragon/mmn-engine/internal/compplan"
	"github.com/angelmondragon/mmn-engine/internal/genealogy"
	"github.com/angelmondragon/mmn-engine/internal/volume"
	"github.com/angelmondragon/mmn-engine/pkg/db/models"
	dbtypes "github.com/angelmondragon/mmn-engine/pkg/db/types"
	"github.com/angelmondragon/mmn-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/mmn-engine/pkg/errors"
	"github.com/angelmondragon/mmn-engine/pkg/logger"
	"github.com/angelmondragon/mmn-engine/pkg/outbox"
	"github.com/angelmondragon/mmn-engine/pkg/outbox/payloads"
	"github.com/angelmondragon/mmn-engine/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type memberStore interface {
	SetQualified(ctx context.Context, tx *gorm.DB, memberID uuid.UUID, qualified bool) error
	ListActive(ctx context.Context, tenantID uuid.UUID) ([]models.MemberNode, error)
}

type bonusWriter interface {
	RecordBonus(ctx context.Context, tx *gorm.DB, input commissions.BonusInput) (*models.Commission, bool, error)
}

// Evaluation is the outcome of a rank calculation.
type Evaluation struct {
	MemberID uuid.UUID          `json:"member_id"`
	Tier     compplan.Tier      `json:"tier"`
	Stats    Stats              `json:"stats"`
	Rank     *models.MemberRank `json:"rank"`
	Previous *models.MemberRank `json:"previous,omitempty"`
	Changed  bool               `json:"changed"`
	Bonus    *models.Commission `json:"bonus,omitempty"`
}

// Progress measures a member against the tier above their current rank.
type Progress struct {
	MemberID   uuid.UUID      `json:"member_id"`
	Current    compplan.Tier  `json:"current"`
	Next       *compplan.Tier `json:"next,omitempty"`
	Stats      Stats          `json:"stats"`
	Dimensions []Dimension    `json:"dimensions,omitempty"`
}

// BonusResult summarizes a monthly bonus run.
type BonusResult struct {
	Awarded int             `json:"awarded"`
	Total   decimal.Decimal `json:"total"`
}

// RecalcResult summarizes a tenant-wide rank recalculation.
type RecalcResult struct {
	Scanned   int         `json:"scanned"`
	Qualified int         `json:"qualified"`
	Changed   int         `json:"changed"`
	Failed    []uuid.UUID `json:"failed,omitempty"`
}

// Service assigns ranks from lifetime volume and downline shape.
type Service interface {
	CalculateRank(ctx context.Context, memberID uuid.UUID) (*Evaluation, error)
	GetRankProgress(ctx context.Context, memberID uuid.UUID) (*Progress, error)
	RefreshQualification(ctx context.Context, memberID uuid.UUID, period types.Period) (bool, error)
	RecalculateTenant(ctx context.Context, tenantID uuid.UUID, period types.Period) (*RecalcResult, error)
	AwardMonthlyBonuses(ctx context.Context, tenantID uuid.UUID, period types.Period) (*BonusResult, error)
	ActiveRank(ctx context.Context, memberID uuid.UUID) (*models.MemberRank, error)
	History(ctx context.Context, memberID uuid.UUID) ([]models.MemberRank, error)
}

type service struct {
	repo      Repository
	genealogy genealogy.Service
	volume    volume.Service
	members   memberStore
	bonuses   bonusWriter
	plans     compplan.Provider
	tx        txRunner
	outbox    outbox.Emitter
	logg      *logger.Logger
	now       func() time.Time
}

// Deps groups the collaborators of the rank engine.
type Deps struct {
	Repo      Repository
	Genealogy genealogy.Service
	Volume    volume.Service
	Members   memberStore
	Bonuses   bonusWriter
	Plans     compplan.Provider
	Tx        txRunner
	Outbox    outbox.Emitter
	Logger    *logger.Logger
}

// NewService wires the rank engine.
func NewService(deps Deps) (Service, error) {
	switch {
	case deps.Repo == nil:
		return nil, fmt.Errorf("rank repository required")
	case deps.Genealogy == nil:
		return nil, fmt.Errorf("genealogy service required")
	case deps.Volume == nil:
		return nil, fmt.Errorf("volume service required")
	case deps.Members == nil:
		return nil, fmt.Errorf("member store required")
	case deps.Bonuses == nil:
		return nil, fmt.Errorf("bonus writer required")
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
		bonuses:   deps.Bonuses,
		plans:     deps.Plans,
		tx:        deps.Tx,
		outbox:    emitter,
		logg:      logg,
		now:       time.Now,
	}, nil
}

// CalculateRank assigns the highest fully satisfied tier. A change closes the
// previous rank and opens the new one in a single transaction; reaching a tier
// for the first time pays its achievement bonus.
func (s *service) CalculateRank(ctx context.Context, memberID uuid.UUID) (*Evaluation, error) {
	member, err := s.genealogy.Member(ctx, memberID)
	if err != nil {
		return nil, err
	}
	plan, err := s.plans.PlanFor(ctx, member.TenantID)
	if err != nil {
		return nil, err
	}
	stats, err := s.gatherStats(ctx, member)
	if err != nil {
		return nil, err
	}
	tier := SelectTier(plan.RankTiers, *stats)
	eval := &Evaluation{MemberID: member.ID, Tier: tier, Stats: *stats}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindActive(ctx, member.ID)
		switch {
		case err == nil:
			eval.Previous = current
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active rank")
		}
		if current != nil && current.RankLevel == tier.Level && current.RankName == tier.Name {
			eval.Rank = current
			return nil
		}

		achievedBefore, err := repo.HasAchieved(ctx, member.ID, tier.Level)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check rank history")
		}
		now := s.timestamp()
		if _, err := repo.Deactivate(ctx, member.ID, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deactivate rank")
		}
		snapshot, err := dbtypes.MarshalJSONValue(stats)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode rank requirements")
		}
		rank := &models.MemberRank{
			TenantID:     member.TenantID,
			MemberID:     member.ID,
			RankName:     tier.Name,
			RankLevel:    tier.Level,
			Requirements: snapshot,
			AchievedAt:   now,
			IsActive:     true,
			CreatedAt:    now,
		}
		if err := repo.Create(ctx, rank); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create rank")
		}
		eval.Rank = rank
		eval.Changed = true

		if err := s.emitChanged(ctx, tx, current, rank); err != nil {
			return err
		}
		if achievedBefore || !tier.AchievementBonus.IsPositive() {
			return nil
		}
		period, err := types.PeriodContaining(plan.PaymentFrequency, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolve bonus period")
		}
		bonus, created, err := s.bonuses.RecordBonus(ctx, tx, commissions.BonusInput{
			TenantID:  member.TenantID,
			MemberID:  member.ID,
			Amount:    tier.AchievementBonus,
			Currency:  plan.Currency,
			Period:    period,
			Reference: bonusReference(tier, "achievement"),
			Notes:     fmt.Sprintf("%s achievement bonus", tier.Name),
		})
		if err != nil {
			return err
		}
		if created {
			eval.Bonus = bonus
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if eval.Changed {
		fields := map[string]any{
			"member_id":  member.ID.String(),
			"rank":       tier.Name,
			"rank_level": tier.Level,
		}
		if eval.Previous != nil {
			fields["previous_rank"] = eval.Previous.RankName
		}
		s.logg.Info(s.logg.WithFields(ctx, fields), "rank changed")
	}
	return eval, nil
}

func (s *service) emitChanged(ctx context.Context, tx *gorm.DB, previous, rank *models.MemberRank) error {
	event := payloads.RankChangedEvent{
		MemberID: rank.MemberID,
		Rank:     rank.RankName,
		Level:    rank.RankLevel,
	}
	if previous != nil {
		event.PreviousRank = previous.RankName
		event.PreviousLevel = previous.RankLevel
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		TenantID:      rank.TenantID,
		EventType:     enums.EventRankChanged,
		AggregateType: enums.AggregateRank,
		AggregateID:   rank.ID,
		Data:          event,
	})
}

// gatherStats reads lifetime volume totals and the shape of the downline.
func (s *service) gatherStats(ctx context.Context, member *models.MemberNode) (*Stats, error) {
	totals, err := s.volume.Totals(ctx, member.ID)
	if err != nil {
		return nil, err
	}
	active, err := s.genealogy.CountDownline(ctx, member.ID, genealogy.DownlineFilter{ActiveOnly: true})
	if err != nil {
		return nil, err
	}
	qualifiedLegs := 0
	for _, leg := range []enums.Position{enums.PositionLeft, enums.PositionRight} {
		n, err := s.genealogy.CountDownline(ctx, member.ID, genealogy.DownlineFilter{Leg: &leg, QualifiedOnly: true})
		if err != nil {
			return nil, err
		}
		if n > 0 {
			qualifiedLegs++
		}
	}
	return &Stats{
		PersonalSales:       totals.PersonalVolume,
		TeamSales:           totals.LeftVolume.Add(totals.RightVolume),
		ActiveDownlineCount: int(active),
		LeftLegVolume:       totals.LeftVolume,
		RightLegVolume:      totals.RightVolume,
		QualifiedLegCount:   qualifiedLegs,
	}, nil
}

func (s *service) GetRankProgress(ctx context.Context, memberID uuid.UUID) (*Progress, error) {
	member, err := s.genealogy.Member(ctx, memberID)
	if err != nil {
		return nil, err
	}
	plan, err := s.plans.PlanFor(ctx, member.TenantID)
	if err != nil {
		return nil, err
	}
	stats, err := s.gatherStats(ctx, member)
	if err != nil {
		return nil, err
	}

	current := plan.RankTiers[0]
	active, err := s.repo.FindActive(ctx, member.ID)
	switch {
	case err == nil:
		if tier, ok := tierAt(plan.RankTiers, active.RankLevel); ok {
			current = tier
		} else {
			current = SelectTier(plan.RankTiers, *stats)
		}
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active rank")
	}

	progress := &Progress{MemberID: member.ID, Current: current, Stats: *stats}
	if next := NextTier(plan.RankTiers, current.Level); next != nil {
		progress.Next = next
		progress.Dimensions = Dimensions(*stats, next.Requirements)
	}
	return progress, nil
}

// RefreshQualification recomputes is_qualified from personal volume in period
// and the number of active personally sponsored members. The root stays
// qualified.
func (s *service) RefreshQualification(ctx context.Context, memberID uuid.UUID, period types.Period) (bool, error) {
	period = period.Normalized()
	if err := period.Validate(); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid period")
	}
	member, err := s.genealogy.Member(ctx, memberID)
	if err != nil {
		return false, err
	}
	if member.IsRoot() {
		if !member.IsQualified {
			if err := s.members.SetQualified(ctx, nil, member.ID, true); err != nil {
				return false, err
			}
		}
		return true, nil
	}
	plan, err := s.plans.PlanFor(ctx, member.TenantID)
	if err != nil {
		return false, err
	}

	personal := decimal.Zero
	record, err := s.volume.GetRecord(ctx, member.ID, period)
	switch {
	case err == nil:
		personal = record.PersonalVolume
	case !pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
		return false, err
	}
	sponsored, err := s.repo.CountActiveSponsored(ctx, member.ID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count active sponsored members")
	}

	qualified := member.Status == enums.MemberStatusActive &&
		personal.GreaterThanOrEqual(plan.PersonalSalesRequired) &&
		sponsored >= int64(plan.MinimumActiveDownline)
	if qualified != member.IsQualified {
		if err := s.members.SetQualified(ctx, nil, member.ID, qualified); err != nil {
			return false, err
		}
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"member_id": member.ID.String(),
			"qualified": qualified,
			"period":    period.Key(),
		}), "member qualification changed")
	}
	return qualified, nil
}

// RecalculateTenant refreshes qualification for every active member before
// recalculating ranks, since qualified leg counts depend on the downline.
func (s *service) RecalculateTenant(ctx context.Context, tenantID uuid.UUID, period types.Period) (*RecalcResult, error) {
	members, err := s.members.ListActive(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	result := &RecalcResult{Scanned: len(members)}
	failed := map[uuid.UUID]bool{}
	var errs error
	fail := func(memberID uuid.UUID, err error) {
		errs = multierr.Append(errs, fmt.Errorf("member %s: %w", memberID, err))
		if !failed[memberID] {
			failed[memberID] = true
			result.Failed = append(result.Failed, memberID)
		}
	}

	for _, member := range members {
		qualified, err := s.RefreshQualification(ctx, member.ID, period)
		if err != nil {
			fail(member.ID, err)
			continue
		}
		if qualified {
			result.Qualified++
		}
	}
	for _, member := range members {
		if failed[member.ID] {
			continue
		}
		eval, err := s.CalculateRank(ctx, member.ID)
		if err != nil {
			fail(member.ID, err)
			continue
		}
		if eval.Changed {
			result.Changed++
		}
	}
	return result, errs
}

// AwardMonthlyBonuses pays each active rank's monthly bonus for period once.
func (s *service) AwardMonthlyBonuses(ctx context.Context, tenantID uuid.UUID, period types.Period) (*BonusResult, error) {
	period = period.Normalized()
	if err := period.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid period")
	}
	plan, err := s.plans.PlanFor(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	active, err := s.repo.ListActiveByTenant(ctx, tenantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list active ranks")
	}

	result := &BonusResult{Total: decimal.Zero}
	var errs error
	for _, rank := range active {
		tier, ok := tierAt(plan.RankTiers, rank.RankLevel)
		if !ok || !tier.MonthlyBonus.IsPositive() {
			continue
		}
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			bonus, created, err := s.bonuses.RecordBonus(ctx, tx, commissions.BonusInput{
				TenantID:  tenantID,
				MemberID:  rank.MemberID,
				Amount:    tier.MonthlyBonus,
				Currency:  plan.Currency,
				Period:    period,
				Reference: bonusReference(tier, "monthly"),
				Notes:     fmt.Sprintf("%s monthly bonus", tier.Name),
			})
			if err != nil {
				return err
			}
			if created {
				result.Awarded++
				result.Total = result.Total.Add(bonus.Amount)
			}
			return nil
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("monthly bonus for member %s: %w", rank.MemberID, err))
		}
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"tenant_id": tenantID.String(),
		"period":    period.Key(),
		"awarded":   result.Awarded,
		"total":     result.Total.String(),
	}), "monthly rank bonuses awarded")
	return result, errs
}

func (s *service) ActiveRank(ctx context.Context, memberID uuid.UUID) (*models.MemberRank, error) {
	rank, err := s.repo.FindActive(ctx, memberID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "member has no active rank")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active rank")
	}
	return rank, nil
}

func (s *service) History(ctx context.Context, memberID uuid.UUID) ([]models.MemberRank, error) {
	rows, err := s.repo.History(ctx, memberID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list rank history")
	}
	return rows, nil
}

func (s *service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func tierAt(tiers []compplan.Tier, level int) (compplan.Tier, bool) {
	for _, tier := range tiers {
		if tier.Level == level {
			return tier, true
		}
	}
	return compplan.Tier{}, false
}

func bonusReference(tier compplan.Tier, kind string) string {
	return fmt.Sprintf("rank:%s:%s", strings.ToLower(tier.Name), kind)
}
