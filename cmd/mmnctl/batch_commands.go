package main

import (
	"context"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/angelmondragon/mmn-engine/internal/jobs"
	"github.com/angelmondragon/mmn-engine/pkg/types"
)

type batchOptions struct {
	Tenant string
	Period periodFlags
}

type batchReport struct {
	TenantID uuid.UUID      `json:"tenant_id"`
	Period   types.Period   `json:"period"`
	Jobs     []jobs.Outcome `json:"jobs"`
}

type registryBuilder func(*app, uuid.UUID, types.Period) (*jobs.Registry, error)

func newBatchCommand(root *rootOptions, use, short, lockScope string, build registryBuilder) *cobra.Command {
	opts := &batchOptions{}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenantID, err := parseID("tenant", opts.Tenant)
			if err != nil {
				return err
			}
			period, err := opts.Period.resolve(root.now())
			if err != nil {
				return err
			}
			return root.run(cmd, func(ctx context.Context, a *app) (any, error) {
				registry, err := build(a, tenantID, period)
				if err != nil {
					return nil, err
				}
				ctx = a.logg.WithTenantID(ctx, tenantID.String())
				outcomes, err := a.runBatch(ctx, jobs.LockKey(lockScope, tenantID, period), registry)
				if err != nil {
					return nil, err
				}
				return batchReport{TenantID: tenantID, Period: period, Jobs: outcomes}, nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.Tenant, "tenant", "", "tenant id")
	opts.Period.register(cmd)
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func newClosePeriodCommand(root *rootOptions) *cobra.Command {
	return newBatchCommand(root, "close-period", "Run the binary commission batch and monthly rank bonuses for a period",
		"close-period", func(a *app, tenantID uuid.UUID, period types.Period) (*jobs.Registry, error) {
			return jobs.ClosePeriod(a.commissions, a.ranks, tenantID, period)
		})
}

func newRecalcRanksCommand(root *rootOptions) *cobra.Command {
	return newBatchCommand(root, "recalc-ranks", "Refresh qualification and ranks for every active member",
		jobs.JobRankRecalc, func(a *app, tenantID uuid.UUID, period types.Period) (*jobs.Registry, error) {
			return jobs.RecalculateRanks(a.ranks, tenantID, period)
		})
}

func newApprovePeriodCommand(root *rootOptions) *cobra.Command {
	return newBatchCommand(root, "approve-period", "Approve every pending commission of a period",
		jobs.JobApprovePeriod, func(a *app, tenantID uuid.UUID, period types.Period) (*jobs.Registry, error) {
			return jobs.ApprovePeriod(a.commissions, tenantID, period)
		})
}

func newPruneOutboxCommand(root *rootOptions) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "prune-outbox",
		Short: "Delete published outbox events older than the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return root.run(cmd, func(ctx context.Context, a *app) (any, error) {
				retention := days
				if retention <= 0 {
					retention = a.cfg.Outbox.RetentionDays
				}
				job, err := jobs.NewOutboxRetentionJob(jobs.OutboxRetentionJobParams{
					Logger:     a.logg,
					DB:         a.db,
					Repository: a.outboxRepo,
					Retention:  retention,
					ChunkSize:  a.cfg.Outbox.RetentionChunk,
				})
				if err != nil {
					return nil, err
				}
				return a.runBatch(ctx, jobs.JobOutboxRetention, jobs.NewRegistry(job))
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "retention in days (defaults to MMN_OUTBOX_RETENTION_DAYS)")
	return cmd
}
