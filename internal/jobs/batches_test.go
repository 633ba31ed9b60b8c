package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/mmn-engine/internal/commissions"
	"github.com/angelmondragon/mmn-engine/internal/ranks"
	"github.com/angelmondragon/mmn-engine/pkg/enums"
	"github.com/angelmondragon/mmn-engine/pkg/types"
)

type fakeEarnings struct {
	commissions.Service
	calls []string
}

func (f *fakeEarnings) ProcessCommissions(_ context.Context, tenantID uuid.UUID, period types.Period) (*commissions.BatchResult, error) {
	f.calls = append(f.calls, "process")
	return &commissions.BatchResult{TenantID: tenantID, Period: period, MembersScanned: 4}, nil
}

func (f *fakeEarnings) ApprovePeriod(context.Context, uuid.UUID, types.Period) (int64, error) {
	f.calls = append(f.calls, "approve")
	return 3, nil
}

type fakeRanks struct {
	ranks.Service
	earnings *fakeEarnings
}

func (f *fakeRanks) AwardMonthlyBonuses(context.Context, uuid.UUID, types.Period) (*ranks.BonusResult, error) {
	f.earnings.calls = append(f.earnings.calls, "bonuses")
	return &ranks.BonusResult{Awarded: 2}, nil
}

func april(t *testing.T) types.Period {
	t.Helper()
	period, err := types.PeriodContaining(enums.PeriodTypeMonthly, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("period: %v", err)
	}
	return period
}

func TestClosePeriodRunsBatchBeforeBonuses(t *testing.T) {
	earnings := &fakeEarnings{}
	registry, err := ClosePeriod(earnings, &fakeRanks{earnings: earnings}, uuid.New(), april(t))
	if err != nil {
		t.Fatalf("ClosePeriod: %v", err)
	}
	outcomes, err := newRunner(t, &fakeLock{}, nil).Run(context.Background(), "close", registry)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(earnings.calls) != 2 || earnings.calls[0] != "process" || earnings.calls[1] != "bonuses" {
		t.Fatalf("unexpected call order %v", earnings.calls)
	}
	batch, ok := outcomes[0].Result.(*commissions.BatchResult)
	if !ok || batch.MembersScanned != 4 {
		t.Fatalf("unexpected batch result %#v", outcomes[0].Result)
	}
	if outcomes[1].Job != JobMonthlyBonuses {
		t.Fatalf("unexpected second job %q", outcomes[1].Job)
	}

	if _, err := ClosePeriod(nil, nil, uuid.New(), april(t)); err == nil {
		t.Fatal("expected error without services")
	}
}

func TestApprovePeriodReportsCount(t *testing.T) {
	earnings := &fakeEarnings{}
	registry, err := ApprovePeriod(earnings, uuid.New(), april(t))
	if err != nil {
		t.Fatalf("ApprovePeriod: %v", err)
	}
	outcomes, err := newRunner(t, &fakeLock{}, nil).Run(context.Background(), "approve", registry)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got, ok := outcomes[0].Result.(ApprovedCount); !ok || got.Approved != 3 {
		t.Fatalf("unexpected result %#v", outcomes[0].Result)
	}
}
