package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	pkgerrors "github.com/angelmondragon/mmn-engine/pkg/errors"
)

func newProcessPayoutCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "process-payout <payout-id>",
		Short: "Move a pending payout to processing and hand it to its rail executor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payoutID, err := parseID("payout id", args[0])
			if err != nil {
				return err
			}
			return root.run(cmd, func(ctx context.Context, a *app) (any, error) {
				return a.payouts.ProcessPayout(a.logg.WithPayoutID(ctx, payoutID.String()), payoutID)
			})
		},
	}
}

func newCompletePayoutCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "complete-payout <payout-id>",
		Short: "Mark a processing payout as settled",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payoutID, err := parseID("payout id", args[0])
			if err != nil {
				return err
			}
			return root.run(cmd, func(ctx context.Context, a *app) (any, error) {
				return a.payouts.CompletePayout(a.logg.WithPayoutID(ctx, payoutID.String()), payoutID)
			})
		},
	}
}

func newFailPayoutCommand(root *rootOptions) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "fail-payout <payout-id>",
		Short: "Fail a payout and return its commissions to the member's balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payoutID, err := parseID("payout id", args[0])
			if err != nil {
				return err
			}
			if strings.TrimSpace(reason) == "" {
				return pkgerrors.New(pkgerrors.CodeValidation, "--reason is required")
			}
			return root.run(cmd, func(ctx context.Context, a *app) (any, error) {
				return a.payouts.FailPayout(a.logg.WithPayoutID(ctx, payoutID.String()), payoutID, reason)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "failure reason recorded on the payout")
	return cmd
}
