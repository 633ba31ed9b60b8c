package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/angelmondragon/mmn-engine/internal/sales"
	pkgerrors "github.com/angelmondragon/mmn-engine/pkg/errors"
)

type rebuildReport struct {
	MemberID string `json:"member_id"`
	Rows     int    `json:"rows"`
}

func newRebuildGenealogyCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild-genealogy <member-id>",
		Short: "Recreate the ancestor rows of a member from its tree path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			memberID, err := parseID("member id", args[0])
			if err != nil {
				return err
			}
			return root.run(cmd, func(ctx context.Context, a *app) (any, error) {
				rows, err := a.genealogy.RebuildGenealogy(a.logg.WithMemberID(ctx, memberID.String()), memberID)
				if err != nil {
					return nil, err
				}
				return rebuildReport{MemberID: memberID.String(), Rows: rows}, nil
			})
		},
	}
}

func newTreeCommand(root *rootOptions) *cobra.Command {
	var depth int
	cmd := &cobra.Command{
		Use:   "tree <member-id>",
		Short: "Print the binary subtree below a member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			memberID, err := parseID("member id", args[0])
			if err != nil {
				return err
			}
			return root.run(cmd, func(ctx context.Context, a *app) (any, error) {
				return a.placement.GetTree(ctx, memberID, depth)
			})
		},
	}
	cmd.Flags().IntVar(&depth, "depth", 3, "levels to include below the member")
	return cmd
}

func newRankProgressCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rank-progress <member-id>",
		Short: "Show a member's current rank and distance to the next tier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			memberID, err := parseID("member id", args[0])
			if err != nil {
				return err
			}
			return root.run(cmd, func(ctx context.Context, a *app) (any, error) {
				return a.ranks.GetRankProgress(a.logg.WithMemberID(ctx, memberID.String()), memberID)
			})
		},
	}
}

type recordSaleOptions struct {
	Member    string
	Volume    string
	Reference string
	Period    periodFlags
}

func newRecordSaleCommand(root *rootOptions) *cobra.Command {
	opts := &recordSaleOptions{}
	cmd := &cobra.Command{
		Use:   "record-sale",
		Short: "Ingest a sale: credit volume up the tree and pay unilevel commissions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			event, err := opts.event(root.now)
			if err != nil {
				return err
			}
			return root.run(cmd, func(ctx context.Context, a *app) (any, error) {
				return a.sales.RecordSale(a.logg.WithMemberID(ctx, event.MemberID.String()), event)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Member, "member", "", "member id credited with the sale")
	cmd.Flags().StringVar(&opts.Volume, "volume", "", "sale volume")
	cmd.Flags().StringVar(&opts.Reference, "reference", "", "external sale reference, unique per tenant")
	opts.Period.register(cmd)
	_ = cmd.MarkFlagRequired("member")
	_ = cmd.MarkFlagRequired("volume")
	_ = cmd.MarkFlagRequired("reference")
	return cmd
}

func (o *recordSaleOptions) event(now func() time.Time) (sales.SaleEvent, error) {
	memberID, err := parseID("member", o.Member)
	if err != nil {
		return sales.SaleEvent{}, err
	}
	amount, err := parseAmount("volume", o.Volume)
	if err != nil {
		return sales.SaleEvent{}, err
	}
	if !amount.IsPositive() {
		return sales.SaleEvent{}, pkgerrors.New(pkgerrors.CodeValidation, "volume must be positive")
	}
	period, err := o.Period.resolve(now())
	if err != nil {
		return sales.SaleEvent{}, err
	}
	return sales.SaleEvent{
		MemberID:  memberID,
		Period:    period,
		Volume:    amount,
		Reference: o.Reference,
		Metadata:  map[string]any{"source": serviceName},
	}, nil
}
