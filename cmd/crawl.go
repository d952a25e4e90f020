package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/novasearch/novacrawler/internal/config"
	"github.com/novasearch/novacrawler/internal/crawler"
	"github.com/novasearch/novacrawler/internal/database"
	"github.com/novasearch/novacrawler/internal/progress"
)

func newCrawlCmd() *cobra.Command {
	var (
		url        string
		depth      int
		stealth    bool
		sameDomain bool
		workers    int
	)

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Run a one-shot crawl from a seed URL",
		Long: `Crawls breadth-first from the seed URL, saving page metadata into the
page database, then resolves favicons for any newly discovered domains.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck // best-effort flush

			if workers > 0 {
				cfg.Crawler.Workers = workers
			}
			if depth < 0 {
				depth = cfg.Crawler.DefaultDepth
			}
			if !cmd.Flags().Changed("stealth") {
				stealth = cfg.Crawler.Stealth
			}
			if !cmd.Flags().Changed("same-domain") {
				sameDomain = cfg.Crawler.SameDomain
			}

			store, err := openStore(cfg, cmd.InOrStdin(), cmd.OutOrStdout(), false)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runOneShotCrawl(ctx, cfg, store, logger, cmd, crawler.CrawlParams{
				URL:         url,
				Depth:       depth,
				SameDomain:  sameDomain,
				StealthMode: stealth,
			})
		},
	}

	cmd.Flags().StringVarP(&url, "url", "u", "", "seed URL to crawl (required)")
	cmd.Flags().IntVar(&depth, "depth", -1, "crawl depth, 1 = seed page only (default from config)")
	cmd.Flags().BoolVar(&stealth, "stealth", false, "rotate browser-like request identities")
	cmd.Flags().BoolVar(&sameDomain, "same-domain", true, "restrict the crawl to the seed's domain")
	cmd.Flags().IntVar(&workers, "workers", 0, "concurrent crawl workers (default from config)")
	_ = cmd.MarkFlagRequired("url")

	return cmd
}

func runOneShotCrawl(ctx context.Context, cfg config.Config, store *database.Store, logger *zap.Logger, cmd *cobra.Command, params crawler.CrawlParams) error {
	log := progress.NewLog(cfg.Crawler.ProgressHistory, logger)
	pool := buildPool(cfg, store, log, logger)

	taskID, err := store.CreateTask(ctx, crawler.TaskTypeCrawl, &params)
	if err != nil {
		return err
	}
	if err := store.UpdateTaskStatus(ctx, taskID, crawler.TaskStatusRunning, ""); err != nil {
		return err
	}

	stats, err := pool.Crawl(ctx, taskID, params, nil)
	if err != nil {
		_ = store.UpdateTaskStatus(ctx, taskID, crawler.TaskStatusFailed, err.Error())
		return err
	}

	if len(stats.NewDomains) > 0 {
		blobs, err := buildBlobStore(ctx, cfg)
		if err != nil {
			return err
		}
		resolver := buildFaviconResolver(cfg, store, blobs, logger)
		resolved, err := resolver.ResolveAll(ctx, stats.NewDomains)
		if err != nil {
			logger.Warn("favicon pass aborted", zap.Error(err))
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Favicons resolved for %d of %d new domains\n",
				resolved, len(stats.NewDomains))
		}
	}

	if err := store.UpdateTaskStatus(ctx, taskID, crawler.TaskStatusCompleted, ""); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(),
		"Crawl finished: %d saved, %d updated, %d deleted, %d skipped, %d failed, %d rate limited\n",
		stats.Saved, stats.Updated, stats.Deleted, stats.Skipped, stats.Failed, stats.RateLimited)
	return nil
}
