package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	gstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/novasearch/novacrawler/internal/clock/system"
	"github.com/novasearch/novacrawler/internal/config"
	"github.com/novasearch/novacrawler/internal/crawler"
	"github.com/novasearch/novacrawler/internal/database"
	"github.com/novasearch/novacrawler/internal/favicon"
	"github.com/novasearch/novacrawler/internal/fetcher"
	"github.com/novasearch/novacrawler/internal/hash/md5sum"
	"github.com/novasearch/novacrawler/internal/policy/identity"
	"github.com/novasearch/novacrawler/internal/policy/ratelimit"
	"github.com/novasearch/novacrawler/internal/progress"
	pubsubpub "github.com/novasearch/novacrawler/internal/publisher/pubsub"
	"github.com/novasearch/novacrawler/internal/storage/gcs"
	"github.com/novasearch/novacrawler/internal/storage/local"
	"github.com/novasearch/novacrawler/internal/storage/memory"
	"github.com/novasearch/novacrawler/internal/worker"
)

// openStore opens the SQLite database. When the file is missing and the
// command is interactive, the user is asked whether to create it; the
// service path creates it unconditionally.
func openStore(cfg config.Config, in io.Reader, out io.Writer, alwaysCreate bool) (*database.Store, error) {
	exists, err := database.Exists(cfg.DB.Path)
	if err != nil {
		return nil, err
	}
	create := alwaysCreate
	if !exists && !alwaysCreate {
		fmt.Fprintf(out, "Database not found at %s. Create it? [y/N]: ", cfg.DB.Path)
		answer, _ := bufio.NewReader(in).ReadString('\n')
		if strings.ToLower(strings.TrimSpace(answer)) != "y" {
			return nil, fmt.Errorf("database %s does not exist", cfg.DB.Path)
		}
		create = true
	}
	opts := database.DefaultOptions()
	opts.CreateIfNotExists = create || exists
	opts.Clock = system.New()
	return database.Open(cfg.DB.Path, opts)
}

func buildBlobStore(ctx context.Context, cfg config.Config) (crawler.BlobStore, error) {
	switch cfg.Storage.Provider {
	case "local":
		return local.New(local.Config{BaseDir: cfg.Storage.BaseDir})
	case "memory":
		return memory.NewBlobStore(), nil
	case "gcs":
		client, err := gstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		return gcs.New(client, gcs.Config{Bucket: cfg.Storage.GCSBucket})
	default:
		return nil, fmt.Errorf("unknown storage provider %q", cfg.Storage.Provider)
	}
}

func buildPublisher(ctx context.Context, cfg config.Config) (crawler.Publisher, error) {
	if !cfg.PubSub.Enabled {
		return nil, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return pubsubpub.New(client)
}

func buildPool(cfg config.Config, store *database.Store, log *progress.Log, logger *zap.Logger) *worker.Pool {
	fetch := fetcher.New(fetcher.Config{
		Timeout:     time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second,
		MaxAttempts: cfg.HTTP.MaxAttempts,
		RetryDelay:  time.Duration(cfg.HTTP.RetryDelaySeconds) * time.Second,
	}, logger)
	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.RateLimit.RequestsPerSecond,
		DefaultBurst: cfg.RateLimit.Burst,
	})
	return worker.New(worker.Config{
		Workers:   cfg.Crawler.Workers,
		QueueSize: cfg.Crawler.QueueDepth,
	}, store, fetch, limiter, identity.New(identity.Config{
		UserAgent:       cfg.HTTP.UserAgent,
		DefaultReferrer: cfg.HTTP.ReferrerSite,
	}), log, logger)
}

func buildFaviconResolver(cfg config.Config, store *database.Store, blobs crawler.BlobStore, logger *zap.Logger) *favicon.Resolver {
	return favicon.New(favicon.Config{
		Concurrency: cfg.Crawler.FaviconConcurrency,
		Timeout:     time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second,
	}, store, blobs, md5sum.New(), logger)
}
