package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

type rootOptions struct {
	Timeout time.Duration
	// open is swapped in tests to avoid touching real infrastructure.
	open func(context.Context) (*app, error)
	now  func() time.Time
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{open: bootstrap, now: time.Now}

	cmd := &cobra.Command{
		Use:           "mmnctl",
		Short:         "Operate the MMN compensation engine",
		Long:          "Operator commands for period close, rank recalculation, payouts, sales ingestion and tree inspection.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 30*time.Minute, "overall deadline for the command")

	cmd.AddCommand(
		newClosePeriodCommand(opts),
		newRecalcRanksCommand(opts),
		newApprovePeriodCommand(opts),
		newPruneOutboxCommand(opts),
		newProcessPayoutCommand(opts),
		newCompletePayoutCommand(opts),
		newFailPayoutCommand(opts),
		newRebuildGenealogyCommand(opts),
		newTreeCommand(opts),
		newRankProgressCommand(opts),
		newRecordSaleCommand(opts),
	)
	return cmd
}

// run bootstraps the engine, executes fn and prints its result as JSON.
func (o *rootOptions) run(cmd *cobra.Command, fn func(context.Context, *app) (any, error)) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if o.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}

	a, err := o.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, a.Close())
	}()

	ctx = a.logg.WithField(ctx, "command", cmd.Name())
	result, err := fn(ctx, a)
	if err != nil {
		a.logg.Error(ctx, "command failed", err)
		return err
	}
	return writeResult(cmd.OutOrStdout(), result)
}
