package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/deusflow/technews/internal/app"
	"github.com/deusflow/technews/internal/config"
	"github.com/deusflow/technews/internal/digest"
	"github.com/deusflow/technews/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "technews",
		Short:         "Daily tech news digest: fetch, score, summarize, publish",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(), newLatestCmd(), newCheckCmd(), newServeCmd())
	return root
}

// open loads the environment and the catalog, then opens the store.
func open(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.Init(cfg.Debug)
	return app.Open(ctx, cfg, log)
}

func newRunCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline for yesterday, or for --date",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			log := logger.Init(cfg.Debug)
			if err != nil {
				_, err = app.InitFailure(cmd.Context(), cfg, date, err, log)
				return err
			}

			report, err := app.RunOnce(cmd.Context(), cfg, date, log)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), report.Digest.PublicURL)
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "target date YYYY-MM-DD (default: yesterday in DIGEST_TIMEZONE)")
	return cmd
}

func newLatestCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "latest",
		Short: "Print the stored digest",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			out, err := renderLatest(cmd.Context(), a.Store, format)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "reply", "reply | summary | detail | url | json")
	return cmd
}

// renderLatest formats the stored digest. Only the reply format has a
// text for a missing digest.
func renderLatest(ctx context.Context, store digest.Store, format string) (string, error) {
	if format == "reply" {
		return digest.Reply(ctx, store)
	}

	d, err := store.ReadLatest(ctx)
	if err != nil {
		return "", err
	}
	switch format {
	case "summary":
		return d.SummaryText, nil
	case "detail":
		return d.DetailText, nil
	case "url":
		return d.PublicURL, nil
	case "json":
		data, err := json.MarshalIndent(d, "", "  ")
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	return "", fmt.Errorf("unknown format %q", format)
}

func newCheckCmd() *cobra.Command {
	var network bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify credentials, catalog and output paths",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			errs := []error{a.Check()}
			if network {
				report := a.CheckNetwork(cmd.Context(), nil)
				for _, w := range report.Warnings {
					fmt.Fprintln(cmd.OutOrStdout(), "⚠️", w)
				}
				errs = append(errs, report.Err())
			}
			if err := errors.Join(errs...); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ ready: %d sources, store %s\n", len(a.Catalog.Sources), a.Config.DigestStore)
			return nil
		},
	}
	cmd.Flags().BoolVar(&network, "network", false, "also send HEAD requests to every source and provider endpoint")
	return cmd
}

func newServeCmd() *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the stored digest over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if port == "" {
				port = a.Config.MonitoringPort
			}
			srv := a.Server()
			defer srv.Close()

			err = srv.ListenAndServe(cmd.Context(), ":"+port)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "listen port (default: MONITORING_PORT)")
	return cmd
}
