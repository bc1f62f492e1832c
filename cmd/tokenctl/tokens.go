package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tokenlease/pkg/tokens"
)

func NewTokenCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint and query tokens",
	}

	var (
		metadata string
		price    int64
	)
	mint := &cobra.Command{
		Use:   "mint",
		Short: "Mint a token owned by the caller",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			t, err := c.Mint(cmd.Context(), metadata, price)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), t)
		},
	}
	mint.Flags().StringVar(&metadata, "metadata", "", "metadata URI")
	mint.Flags().Int64Var(&price, "price", 0, "price in ledger units")
	_ = mint.MarkFlagRequired("price")

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one token",
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
			t, err := c.GetToken(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), t)
		},
	}

	var (
		owner, state string
		page, limit  int
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := tokens.Filter{}
			if owner != "" {
				addr := tokens.Address(owner)
				filter.Owner = &addr
			}
			if state != "" {
				s := tokens.State(state)
				if !s.Valid() {
					return fmt.Errorf("invalid state %q", state)
				}
				filter.State = &s
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			l, err := c.ListTokens(cmd.Context(), filter, page, limit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), l)
		},
	}
	list.Flags().StringVar(&owner, "owner", "", "filter by owner address")
	list.Flags().StringVar(&state, "state", "", "filter by state (idle|listed_for_sale|listed_for_rent|rented)")
	list.Flags().IntVar(&page, "page", 1, "page number")
	list.Flags().IntVar(&limit, "limit", 10, "items per page")

	cmd.AddCommand(mint, get, list)
	return cmd
}
