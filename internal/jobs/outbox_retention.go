package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/mmn-engine/pkg/logger"
)

const (
	defaultRetentionDays  = 30
	defaultRetentionChunk = 500
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type publishedEventPruner interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, limit int) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository publishedEventPruner
	// Retention is in days.
	Retention int
	// ChunkSize caps the rows removed per transaction.
	ChunkSize int
}

// RetentionResult reports a cleanup pass.
type RetentionResult struct {
	Cutoff  time.Time `json:"cutoff"`
	Deleted int64     `json:"deleted"`
	Chunks  int       `json:"chunks"`
}

// NewOutboxRetentionJob prunes published outbox rows older than the retention
// window in bounded transactions. Unpublished rows are never touched.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.DB == nil:
		return nil, errors.New("db runner required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository required")
	}
	job := &outboxRetentionJob{
		logg:  params.Logger,
		db:    params.DB,
		repo:  params.Repository,
		days:  params.Retention,
		chunk: params.ChunkSize,
		now:   time.Now,
	}
	if job.days <= 0 {
		job.days = defaultRetentionDays
	}
	if job.chunk <= 0 {
		job.chunk = defaultRetentionChunk
	}
	return job, nil
}

type outboxRetentionJob struct {
	logg  *logger.Logger
	db    txRunner
	repo  publishedEventPruner
	days  int
	chunk int
	now   func() time.Time
}

func (j *outboxRetentionJob) Name() string { return JobOutboxRetention }

func (j *outboxRetentionJob) Run(ctx context.Context) (any, error) {
	result := RetentionResult{Cutoff: j.now().UTC().AddDate(0, 0, -j.days)}
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		var removed int64
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			removed, err = j.repo.DeletePublishedBefore(ctx, tx, result.Cutoff, j.chunk)
			return err
		})
		if err != nil {
			return result, fmt.Errorf("outbox retention chunk %d: %w", result.Chunks+1, err)
		}
		result.Chunks++
		result.Deleted += removed
		if removed < int64(j.chunk) {
			break
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":         result.Cutoff,
		"retention_days": j.days,
		"rows_deleted":   result.Deleted,
		"chunks":         result.Chunks,
	}), "outbox retention cleanup complete")
	return result, nil
}
