package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/mmn-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/mmn-engine/pkg/errors"
	"github.com/angelmondragon/mmn-engine/pkg/logger"
	"github.com/angelmondragon/mmn-engine/pkg/metrics"
	"github.com/angelmondragon/mmn-engine/pkg/types"
)

type fakeLock struct {
	held     bool
	released int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.held = false
	f.released++
	return nil
}

type testJob struct {
	name   string
	result any
	err    error
	runs   int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) (any, error) {
	t.runs++
	return t.result, t.err
}

func newRunner(t *testing.T, lock *fakeLock, jobMetrics *metrics.JobMetrics) *Runner {
	t.Helper()
	runner, err := NewRunner(RunnerParams{
		Logger:  logger.New(logger.Options{ServiceName: "jobs-test"}),
		Locks:   func(string) (Lock, error) { return lock, nil },
		Metrics: jobMetrics,
	})
	if err != nil {
		t.Fatalf("construct runner: %v", err)
	}
	return runner
}

func TestRunnerRunsJobsInOrder(t *testing.T) {
	lock := &fakeLock{}
	first := &testJob{name: "first", result: map[string]int{"scanned": 3}}
	second := &testJob{name: "second"}
	runner := newRunner(t, lock, nil)

	outcomes, err := runner.Run(context.Background(), "close", NewRegistry(first, second))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(outcomes) != 2 || outcomes[0].Job != "first" || outcomes[1].Job != "second" {
		t.Fatalf("unexpected outcomes %+v", outcomes)
	}
	if first.runs != 1 || second.runs != 1 {
		t.Fatalf("expected each job once, got %d and %d", first.runs, second.runs)
	}
	if lock.held || lock.released != 1 {
		t.Fatalf("expected lock released once, held=%v released=%d", lock.held, lock.released)
	}
}

func TestRunnerStopsAtFirstFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	jobMetrics := metrics.NewJobMetrics(reg)
	failing := &testJob{name: "failing", err: errors.New("boom")}
	after := &testJob{name: "after"}
	runner := newRunner(t, &fakeLock{}, jobMetrics)

	outcomes, err := runner.Run(context.Background(), "close", NewRegistry(failing, after))
	if err == nil {
		t.Fatal("expected failure")
	}
	if len(outcomes) != 1 || outcomes[0].Error != "boom" || !outcomes[0].Retryable {
		t.Fatalf("unexpected outcomes %+v", outcomes)
	}
	if after.runs != 0 {
		t.Fatalf("job after a failure must not run")
	}
	if got := runCount(t, reg, "failing", "failure"); got != 1 {
		t.Fatalf("expected one failure, got %v", got)
	}
}

func TestRunnerRejectsHeldLock(t *testing.T) {
	lock := &fakeLock{held: true}
	job := &testJob{name: "blocked"}
	runner := newRunner(t, lock, metrics.NewJobMetrics(nil))

	_, err := runner.Run(context.Background(), "close", NewRegistry(job))
	if !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("job ran while another run held the lock")
	}
	if lock.released != 0 {
		t.Fatalf("must not release a lock it does not own")
	}
}

func TestRegistryStoresJobs(t *testing.T) {
	registry := NewRegistry(nil)
	jobA := &testJob{name: "a"}
	jobB := Func("b", func(context.Context) (any, error) { return nil, nil })
	registry.Register(jobA)
	registry.Register(jobB)
	jobs := registry.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0] != Job(jobA) || jobs[1].Name() != "b" {
		t.Fatalf("jobs returned out of order")
	}
	jobs[0] = nil
	if registry.Jobs()[0] == nil {
		t.Fatalf("internal slice leaked")
	}
}

func TestLockKeyScopesTenantAndPeriod(t *testing.T) {
	tenant := uuid.New()
	period, err := types.PeriodContaining(enums.PeriodTypeMonthly, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("period: %v", err)
	}
	key := LockKey("close-period", tenant, period)
	want := "close-period:" + tenant.String() + ":" + period.Key()
	if key != want {
		t.Fatalf("expected %q, got %q", want, key)
	}
}

func runCount(t *testing.T, reg *prometheus.Registry, job, outcome string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() != "mmn_job_runs_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			labels := map[string]string{}
			for _, label := range metric.GetLabel() {
				labels[label.GetName()] = label.GetValue()
			}
			if labels["job"] == job && labels["outcome"] == outcome {
				return metric.GetCounter().GetValue()
			}
		}
	}
	t.Fatalf("mmn_job_runs_total{job=%q,outcome=%q} not found", job, outcome)
	return 0
}
