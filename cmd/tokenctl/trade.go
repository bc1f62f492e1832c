package main

import (
	"context"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"tokenlease/pkg/client"
	"tokenlease/pkg/tokens"
)

// idCommand builds a command taking a single token id argument.
func idCommand(opts *RootOptions, use, short string, run func(ctx context.Context, c *client.Client, id int64) (any, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			out, err := run(cmd.Context(), c, id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}

func NewMarketCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "market",
		Short: "Sell and buy tokens",
	}

	browse := &cobra.Command{
		Use:   "browse",
		Short: "List tokens for sale",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			l, err := c.Marketplace(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), l)
		},
	}

	sell := idCommand(opts, "sell", "List a token for sale", func(ctx context.Context, c *client.Client, id int64) (any, error) {
		return c.ListForSale(ctx, id)
	})
	unlist := idCommand(opts, "unlist", "Withdraw a sale or rent listing", func(ctx context.Context, c *client.Client, id int64) (any, error) {
		return c.Unlist(ctx, id)
	})

	buy := &cobra.Command{
		Use:   "buy <id> <payment>",
		Short: "Buy a listed token paying exactly its price",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			payment, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return err
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			t, err := c.Buy(cmd.Context(), id, payment)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), t)
		},
	}

	cmd.AddCommand(browse, sell, unlist, buy)
	return cmd
}

func NewRentalCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rental",
		Short: "Rent out, rent and retrieve tokens",
	}

	offer := idCommand(opts, "offer", "List a token for rent", func(ctx context.Context, c *client.Client, id int64) (any, error) {
		return c.ListForRent(ctx, id)
	})
	retrieve := idCommand(opts, "retrieve", "Take back a token whose rental has expired", func(ctx context.Context, c *client.Client, id int64) (any, error) {
		return c.Retrieve(ctx, id)
	})

	var duration time.Duration
	quote := idCommand(opts, "quote", "Price a rental", func(ctx context.Context, c *client.Client, id int64) (any, error) {
		return c.RentPrice(ctx, id, duration)
	})
	quote.Flags().DurationVar(&duration, "duration", tokens.OneDay, "rental duration, e.g. 72h")

	var (
		rentFor time.Duration
		payment int64
		quoted  bool
	)
	rent := idCommand(opts, "rent", "Rent a token", func(ctx context.Context, c *client.Client, id int64) (any, error) {
		if quoted {
			q, err := c.RentPrice(ctx, id, rentFor)
			if err != nil {
				return nil, err
			}
			payment = q.Price
		}
		return c.Rent(ctx, id, rentFor, payment)
	})
	rent.Flags().DurationVar(&rentFor, "duration", tokens.OneDay, "rental duration, e.g. 72h")
	rent.Flags().Int64Var(&payment, "payment", 0, "exact payment")
	rent.Flags().BoolVar(&quoted, "pay-quote", false, "fetch the quote and pay it")

	cmd.AddCommand(offer, quote, rent, retrieve)
	return cmd
}

func NewCustodyCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "custody",
		Short: "Inspect and move raw custody",
	}

	show := idCommand(opts, "show", "Show the registry holder and approved spender", func(ctx context.Context, c *client.Client, id int64) (any, error) {
		return c.Custody(ctx, id)
	})

	var (
		to   string
		safe bool
	)
	transfer := idCommand(opts, "transfer", "Transfer an idle token", func(ctx context.Context, c *client.Client, id int64) (any, error) {
		return c.Transfer(ctx, id, tokens.Address(to), safe)
	})
	transfer.Flags().StringVar(&to, "to", "", "recipient address")
	transfer.Flags().BoolVar(&safe, "safe", false, "require the recipient to hold a ledger account")
	_ = transfer.MarkFlagRequired("to")

	var spender string
	approve := idCommand(opts, "approve", "Approve a spender, or clear with an empty --spender", func(ctx context.Context, c *client.Client, id int64) (any, error) {
		return c.Approve(ctx, id, tokens.Address(spender))
	})
	approve.Flags().StringVar(&spender, "spender", "", "spender address")

	cmd.AddCommand(show, transfer, approve)
	return cmd
}
