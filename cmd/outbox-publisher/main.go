package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/angelmondragon/mmn-engine/pkg/config"
	"github.com/angelmondragon/mmn-engine/pkg/db"
	"github.com/angelmondragon/mmn-engine/pkg/logger"
	"github.com/angelmondragon/mmn-engine/pkg/migrate"
	"github.com/angelmondragon/mmn-engine/pkg/outbox"
	"github.com/angelmondragon/mmn-engine/pkg/outbox/registry"
	"github.com/angelmondragon/mmn-engine/pkg/pubsub"
)

const serviceName = "outbox-publisher"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.New(logger.Options{ServiceName: serviceName}).Error(ctx, "outbox publisher stopped", err)
		stop()
		os.Exit(1)
	}
}

// run wires the publisher and blocks until ctx ends. Connections are closed
// on every return path.
func run(ctx context.Context) (err error) {
	if loadErr := godotenv.Load(); loadErr != nil && !errors.Is(loadErr, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", loadErr)
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logg := logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(ctx, map[string]any{
		"env":   cfg.App.Env,
		"topic": cfg.PubSub.EventsTopic,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	sender, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return fmt.Errorf("bootstrap pubsub: %w", err)
	}
	defer func() { err = multierr.Append(err, sender.Close()) }()

	events, err := registry.NewEventRegistry(cfg.PubSub)
	if err != nil {
		return err
	}
	service, err := NewService(ServiceParams{
		Config:     cfg.Outbox,
		Logger:     logg,
		DB:         dbClient,
		Sender:     sender,
		Repository: outbox.NewRepository(dbClient.DB()),
		Registry:   events,
	})
	if err != nil {
		return err
	}

	logg.Info(ctx, "starting outbox publisher")
	if err := service.Run(ctx); !errors.Is(err, context.Canceled) {
		return err
	}
	logg.Info(ctx, "outbox publisher shutting down gracefully")
	return nil
}
