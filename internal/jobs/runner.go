package jobs

import (
	"context"
	"fmt"
	"time"

	pkgerrors "github.com/angelmondragon/mmn-engine/pkg/errors"
	"github.com/angelmondragon/mmn-engine/pkg/logger"
	"github.com/angelmondragon/mmn-engine/pkg/metrics"
)

// Outcome is the report of one job in a batch.
type Outcome struct {
	Job        string `json:"job"`
	Result     any    `json:"result,omitempty"`
	Error      string `json:"error,omitempty"`
	Retryable  bool   `json:"retryable,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

type RunnerParams struct {
	Logger  *logger.Logger
	Locks   LockFactory
	Metrics *metrics.JobMetrics
}

// Runner executes a batch of jobs while holding the lock for its scope.
type Runner struct {
	logg    *logger.Logger
	locks   LockFactory
	metrics *metrics.JobMetrics
	now     func() time.Time
}

func NewRunner(params RunnerParams) (*Runner, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Locks == nil {
		return nil, fmt.Errorf("lock factory required")
	}
	return &Runner{
		logg:    params.Logger,
		locks:   params.Locks,
		metrics: params.Metrics,
		now:     time.Now,
	}, nil
}

// Run executes the registry's jobs in order under the lock for key. It stops
// at the first failing job; later jobs are not attempted. A held lock fails
// with CodeConflict without running anything.
func (r *Runner) Run(ctx context.Context, key string, registry *Registry) ([]Outcome, error) {
	lock, err := r.locks(key)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build job lock")
	}
	locked, err := lock.Acquire(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire job lock")
	}
	jobs := registry.Jobs()
	if !locked {
		for _, job := range jobs {
			r.metrics.IncSkipped(job.Name())
		}
		r.logg.Warn(r.logg.WithField(ctx, "lock", key), "another run holds the lock; skipping")
		return nil, pkgerrors.Newf(pkgerrors.CodeConflict, "a run for %s is already in progress", key)
	}
	defer func() {
		if relErr := lock.Release(ctx); relErr != nil {
			r.logg.Error(ctx, "failed to release job lock", relErr)
		}
	}()

	outcomes := make([]Outcome, 0, len(jobs))
	for _, job := range jobs {
		outcome, err := r.runJob(ctx, job)
		outcomes = append(outcomes, outcome)
		if err != nil {
			return outcomes, err
		}
	}
	return outcomes, nil
}

func (r *Runner) runJob(ctx context.Context, job Job) (Outcome, error) {
	jobCtx := r.logg.WithFields(ctx, map[string]any{
		"job":   job.Name(),
		"event": "jobs.run",
	})
	r.logg.Info(jobCtx, "job start")
	start := r.now()
	result, err := job.Run(jobCtx)
	duration := r.now().Sub(start)
	r.metrics.ObserveDuration(job.Name(), duration)

	outcome := Outcome{Job: job.Name(), Result: result, DurationMS: duration.Milliseconds()}
	jobCtx = r.logg.WithField(jobCtx, "duration_ms", outcome.DurationMS)
	if err != nil {
		outcome.Error = err.Error()
		outcome.Retryable = pkgerrors.IsRetryable(err)
		r.logg.Error(jobCtx, "job failed", err)
		r.metrics.IncFailure(job.Name())
		return outcome, err
	}
	r.logg.Info(jobCtx, "job completed")
	r.metrics.IncSuccess(job.Name())
	return outcome, nil
}
