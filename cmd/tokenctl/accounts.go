package main

import (
	"strconv"

	"github.com/spf13/cobra"

	"tokenlease/pkg/tokens"
)

func NewAccountCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Register and inspect accounts",
	}

	var name, email, password string
	register := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			a, err := c.Register(cmd.Context(), name, email, password)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), a)
		},
	}
	register.Flags().StringVar(&name, "name", "", "display name")
	register.Flags().StringVar(&email, "email", "", "email address")
	register.Flags().StringVar(&password, "password", "", "password")
	_ = register.MarkFlagRequired("name")
	_ = register.MarkFlagRequired("email")
	_ = register.MarkFlagRequired("password")

	me := &cobra.Command{
		Use:   "me",
		Short: "Show the logged-in account and its balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			p, err := c.Me(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), p)
		},
	}

	payments := &cobra.Command{
		Use:   "payments <on|off>",
		Short: "Accept or reject incoming payments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			accepts, err := parseOnOff(args[0])
			if err != nil {
				return err
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			p, err := c.SetAcceptsPayments(cmd.Context(), accepts)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), p)
		},
	}

	deposit := &cobra.Command{
		Use:   "deposit <address> <amount>",
		Short: "Credit an account (admin only)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return err
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			acct, err := c.Deposit(cmd.Context(), tokens.Address(args[0]), amount)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), acct)
		},
	}

	cmd.AddCommand(register, me, payments, deposit)
	return cmd
}

func NewLoginCommand(opts *RootOptions) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and print a bearer token",
		Long: `Log in and print a bearer token.

Example:
  export TOKENLEASE_TOKEN=$(tokenctl login --email a@b.c --password pw --raw)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			session, err := c.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			if raw, _ := cmd.Flags().GetBool("raw"); raw {
				_, err := cmd.OutOrStdout().Write([]byte(session.Token + "\n"))
				return err
			}
			return printJSON(cmd.OutOrStdout(), session)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "password")
	cmd.Flags().Bool("raw", false, "print only the token")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func parseOnOff(s string) (bool, error) {
	switch s {
	case "on", "true", "yes":
		return true, nil
	case "off", "false", "no":
		return false, nil
	default:
		return strconv.ParseBool(s)
	}
}
