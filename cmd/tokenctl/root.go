package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"tokenlease/pkg/client"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Server  string
	Token   string
	CACert  string
	Timeout time.Duration
}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "tokenctl",
		Short:         "Command line client for the tokenlease API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Server, "server", envOr("TOKENLEASE_SERVER", "http://localhost:8080"), "server base URL")
	cmd.PersistentFlags().StringVar(&opts.Token, "token", os.Getenv("TOKENLEASE_TOKEN"), "bearer token from 'tokenctl login'")
	cmd.PersistentFlags().StringVar(&opts.CACert, "ca-cert", "", "extra CA certificate for TLS servers")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "request timeout")

	cmd.AddCommand(NewAccountCommand(opts))
	cmd.AddCommand(NewLoginCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))
	cmd.AddCommand(NewMarketCommand(opts))
	cmd.AddCommand(NewRentalCommand(opts))
	cmd.AddCommand(NewCustodyCommand(opts))

	return cmd
}

func (o *RootOptions) client() (*client.Client, error) {
	return client.New(client.Config{
		BaseURL:    o.Server,
		Token:      o.Token,
		CACertPath: o.CACert,
		Timeout:    o.Timeout,
	})
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid token id %q", raw)
	}
	return id, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
