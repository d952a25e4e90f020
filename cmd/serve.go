package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/novasearch/novacrawler/internal/dispatcher"
	"github.com/novasearch/novacrawler/internal/metrics"
	"github.com/novasearch/novacrawler/internal/progress"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the long-lived crawl task service",
		Long: `Starts the dispatcher that executes submitted crawl tasks one at a time,
schedules periodic stale-page refreshes, and serves health and metrics
endpoints.`,
		RunE: runServeCommand,
	}
}

func runServeCommand(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(cfg, cmd.InOrStdin(), cmd.OutOrStdout(), true)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	blobs, err := buildBlobStore(ctx, cfg)
	if err != nil {
		return err
	}
	pub, err := buildPublisher(ctx, cfg)
	if err != nil {
		return err
	}
	if pub != nil {
		defer func() { _ = pub.Close() }()
	}

	log := progress.NewLog(cfg.Crawler.ProgressHistory, logger)
	pool := buildPool(cfg, store, log, logger)
	resolver := buildFaviconResolver(cfg, store, blobs, logger)

	d := dispatcher.New(dispatcher.Config{
		QueueDepth:     cfg.Crawler.QueueDepth,
		Topic:          cfg.PubSub.TopicName,
		RefreshCommand: cfg.Refresh.Command,
		StaleAfter:     time.Duration(cfg.Refresh.StaleAfterDays) * 24 * time.Hour,
	}, store, store, pool, resolver, pub, log, logger)

	if err := d.Recover(ctx); err != nil {
		return err
	}

	go func() {
		if err := d.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("dispatcher stopped", zap.Error(err))
		}
	}()
	go d.RunScheduler(ctx, time.Duration(cfg.Refresh.IntervalMinutes)*time.Minute)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Ops.Port),
		Handler:           metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("ops server listening", zap.Int("port", cfg.Ops.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ops server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("ops server shutdown", zap.Error(err))
	}
	return nil
}
