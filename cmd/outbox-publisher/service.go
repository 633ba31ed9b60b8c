package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/mmn-engine/pkg/config"
	"github.com/angelmondragon/mmn-engine/pkg/db/models"
	"github.com/angelmondragon/mmn-engine/pkg/logger"
	"github.com/angelmondragon/mmn-engine/pkg/outbox/registry"
	"github.com/angelmondragon/mmn-engine/pkg/pubsub"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxBackoff            = 10 * time.Second
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type sender interface {
	Ping(context.Context) error
	Send(ctx context.Context, topic string, msg pubsub.Message) (string, error)
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type ServiceParams struct {
	Config     config.OutboxConfig
	Logger     *logger.Logger
	DB         dbClient
	Sender     sender
	Repository outboxRepository
	Registry   registryResolver
}

// Service drains engine events from the outbox to Pub/Sub. Rows that can
// never be delivered are parked at the attempt ceiling with their last error.
type Service struct {
	logg     *logger.Logger
	db       dbClient
	repo     outboxRepository
	sender   sender
	registry registryResolver

	batchSize      int
	maxAttempts    int
	pollInterval   time.Duration
	publishTimeout time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.Sender == nil:
		return nil, errors.New("pubsub sender is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	}

	s := &Service{
		logg:           params.Logger,
		db:             params.DB,
		repo:           params.Repository,
		sender:         params.Sender,
		registry:       params.Registry,
		batchSize:      params.Config.BatchSize,
		maxAttempts:    params.Config.MaxAttempts,
		pollInterval:   time.Duration(params.Config.PollIntervalMS) * time.Millisecond,
		publishTimeout: defaultPublishTimeout,
	}
	if s.batchSize <= 0 {
		s.batchSize = defaultBatchSize
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = defaultMaxAttempts
	}
	if s.pollInterval <= 0 {
		s.pollInterval = defaultPollInterval
	}
	return s, nil
}

func (s *Service) checkDependencies(ctx context.Context) error {
	for name, ping := range map[string]func(context.Context) error{
		"database": s.db.Ping,
		"pubsub":   s.sender.Ping,
	} {
		if err := ping(ctx); err != nil {
			s.logg.Error(ctx, name+" ping failed", err)
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}
	return nil
}

// Run polls until ctx is cancelled. A full batch is followed immediately by
// the next one; failing batches back off exponentially.
func (s *Service) Run(ctx context.Context) error {
	if err := s.checkDependencies(ctx); err != nil {
		return err
	}

	wait := s.pollInterval
	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "outbox publisher context canceled")
			return err
		}

		processed, err := s.processBatch(ctx)
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox publisher batch error", err)
			wait = nextBackoff(wait, s.pollInterval, maxBackoff)
		case processed:
			wait = s.pollInterval
			continue
		default:
			wait = s.pollInterval
		}
		if err := sleep(ctx, withJitter(wait)); err != nil {
			return err
		}
	}
}
