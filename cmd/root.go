// Package cmd defines and implements the CLI commands for the novacrawler
// executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/novasearch/novacrawler/internal/config"
	"github.com/novasearch/novacrawler/internal/logging"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "novacrawler",
		Short: "A crawler that builds and maintains the Nova search index.",
		Long: `novacrawler fetches pages breadth-first from a seed URL, extracts the
metadata the search index ranks on, and keeps the page database fresh with a
periodic stale-page refresh. Run "crawl" for a one-shot crawl or "serve" for
the long-running task service.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is built-in defaults plus NOVACRAWLER_* env vars)")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newServeCmd())
	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func setup() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}
