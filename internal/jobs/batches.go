package jobs

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/mmn-engine/internal/commissions"
	"github.com/angelmondragon/mmn-engine/internal/ranks"
	"github.com/angelmondragon/mmn-engine/pkg/types"
)

const (
	JobCommissionBatch = "commission-batch"
	JobMonthlyBonuses  = "rank-monthly-bonuses"
	JobRankRecalc      = "rank-recalc"
	JobApprovePeriod   = "approve-period"
	JobOutboxRetention = "outbox-retention"
)

// LockKey scopes a batch lock to a tenant and period.
func LockKey(batch string, tenantID uuid.UUID, period types.Period) string {
	return strings.Join([]string{batch, tenantID.String(), period.Key()}, ":")
}

// ApprovedCount reports how many commissions a period approval moved.
type ApprovedCount struct {
	Approved int64 `json:"approved"`
}

// ClosePeriod runs the commission batch and then pays monthly rank bonuses.
func ClosePeriod(earnings commissions.Service, rankSvc ranks.Service, tenantID uuid.UUID, period types.Period) (*Registry, error) {
	if earnings == nil || rankSvc == nil {
		return nil, fmt.Errorf("commission and rank services required")
	}
	return NewRegistry(
		Func(JobCommissionBatch, func(ctx context.Context) (any, error) {
			return earnings.ProcessCommissions(ctx, tenantID, period)
		}),
		Func(JobMonthlyBonuses, func(ctx context.Context) (any, error) {
			return rankSvc.AwardMonthlyBonuses(ctx, tenantID, period)
		}),
	), nil
}

// RecalculateRanks refreshes qualification and ranks for every active member.
func RecalculateRanks(rankSvc ranks.Service, tenantID uuid.UUID, period types.Period) (*Registry, error) {
	if rankSvc == nil {
		return nil, fmt.Errorf("rank service required")
	}
	return NewRegistry(Func(JobRankRecalc, func(ctx context.Context) (any, error) {
		return rankSvc.RecalculateTenant(ctx, tenantID, period)
	})), nil
}

// ApprovePeriod approves every pending commission of the period.
func ApprovePeriod(earnings commissions.Service, tenantID uuid.UUID, period types.Period) (*Registry, error) {
	if earnings == nil {
		return nil, fmt.Errorf("commission service required")
	}
	return NewRegistry(Func(JobApprovePeriod, func(ctx context.Context) (any, error) {
		approved, err := earnings.ApprovePeriod(ctx, tenantID, period)
		if err != nil {
			return nil, err
		}
		return ApprovedCount{Approved: approved}, nil
	})), nil
}
