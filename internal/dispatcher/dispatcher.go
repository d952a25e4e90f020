// Package dispatcher owns the task lifecycle: it accepts submissions,
// drains them in FIFO order one at a time, runs the matching pipeline,
// and records the terminal status.
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/novasearch/novacrawler/internal/crawler"
	"github.com/novasearch/novacrawler/internal/metrics"
	"github.com/novasearch/novacrawler/internal/progress"
	"github.com/novasearch/novacrawler/internal/worker"
)

// Crawler runs one crawl task. Satisfied by worker.Pool.
type Crawler interface {
	Crawl(ctx context.Context, taskID int64, params crawler.CrawlParams, canceled crawler.CancelCheck) (worker.Stats, error)
}

// FaviconResolver resolves icons for newly discovered domains. Satisfied
// by favicon.Resolver.
type FaviconResolver interface {
	ResolveAll(ctx context.Context, domains []string) (int, error)
}

// Config tunes dispatcher behavior.
type Config struct {
	// QueueDepth bounds how many submitted tasks can wait; submissions
	// beyond it fail fast instead of blocking the caller.
	QueueDepth int
	// Topic is the completion-event topic when a publisher is configured.
	Topic string
	// RefreshCommand, when non-empty, is executed as a shell command for
	// stale_refresh tasks. When empty the built-in re-crawl runs.
	RefreshCommand string
	// StaleAfter is the freshness window for the built-in refresh.
	StaleAfter time.Duration
}

// Dispatcher serializes task execution over a durable task store.
type Dispatcher struct {
	cfg      Config
	tasks    crawler.TaskStore
	pages    crawler.PageStore
	pool     Crawler
	favicons FaviconResolver
	pub      crawler.Publisher // nil disables publishing
	log      *progress.Log
	logger   *zap.Logger

	queue   chan int64
	cancels *cancelRegistry
}

// New builds a Dispatcher. The publisher may be nil.
func New(cfg Config, tasks crawler.TaskStore, pages crawler.PageStore, pool Crawler, favicons FaviconResolver, pub crawler.Publisher, log *progress.Log, logger *zap.Logger) *Dispatcher {
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 256
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 14 * 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		cfg:      cfg,
		tasks:    tasks,
		pages:    pages,
		pool:     pool,
		favicons: favicons,
		pub:      pub,
		log:      log,
		logger:   logger,
		queue:    make(chan int64, cfg.QueueDepth),
		cancels:  newCancelRegistry(),
	}
}

// Recover force-fails tasks left pending or running by a previous process.
// Call once before Run.
func (d *Dispatcher) Recover(ctx context.Context) error {
	n, err := d.tasks.FailInterruptedTasks(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		d.logger.Warn("failed interrupted tasks from previous run", zap.Int64("count", n))
	}
	return nil
}

// Submit persists a crawl task and queues it, returning the task id.
func (d *Dispatcher) Submit(ctx context.Context, params crawler.CrawlParams) (int64, error) {
	if _, err := crawler.NormalizeURL(params.URL); err != nil {
		return 0, fmt.Errorf("submit: %w", err)
	}
	return d.enqueue(ctx, crawler.TaskTypeCrawl, &params)
}

// SubmitRefresh persists a stale_refresh task and queues it.
func (d *Dispatcher) SubmitRefresh(ctx context.Context) (int64, error) {
	return d.enqueue(ctx, crawler.TaskTypeStaleRefresh, nil)
}

func (d *Dispatcher) enqueue(ctx context.Context, typ crawler.TaskType, params *crawler.CrawlParams) (int64, error) {
	id, err := d.tasks.CreateTask(ctx, typ, params)
	if err != nil {
		return 0, err
	}
	select {
	case d.queue <- id:
		return id, nil
	default:
		reason := "dispatch queue full"
		if err := d.tasks.UpdateTaskStatus(ctx, id, crawler.TaskStatusFailed, reason); err != nil {
			d.logger.Error("mark overflow task failed", zap.Int64("task_id", id), zap.Error(err))
		}
		return 0, fmt.Errorf("submit task %d: %s", id, reason)
	}
}

// Cancel requests cancellation of a task. A pending or running task is
// eagerly marked canceled in the store; a running one additionally stops
// at its next cooperative check. Canceling a task that already finished is
// a no-op, so repeated cancels are safe.
func (d *Dispatcher) Cancel(ctx context.Context, id int64) error {
	task, err := d.tasks.GetTask(ctx, id)
	if err != nil {
		return err
	}
	switch task.Status {
	case crawler.TaskStatusPending, crawler.TaskStatusRunning:
		d.cancels.request(id)
		return d.tasks.UpdateTaskStatus(ctx, id, crawler.TaskStatusCanceled, "")
	default:
		return nil
	}
}

// ListRecent returns the most recently created tasks.
func (d *Dispatcher) ListRecent(ctx context.Context, limit int) ([]crawler.Task, error) {
	return d.tasks.ListRecentTasks(ctx, limit)
}

// Logs returns up to n recent progress lines.
func (d *Dispatcher) Logs(n int) []progress.Entry {
	return d.log.Recent(n)
}

// SubscribeLogs streams new progress lines until cancel is called.
func (d *Dispatcher) SubscribeLogs(buffer int) (<-chan progress.Entry, func()) {
	return d.log.Subscribe(buffer)
}

// Run drains the queue until the context ends. Tasks execute strictly one
// at a time in submission order.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case id := <-d.queue:
			d.handle(ctx, id)
		}
	}
}

// RunScheduler submits a stale_refresh task every interval until the
// context ends.
func (d *Dispatcher) RunScheduler(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.SubmitRefresh(ctx); err != nil {
				d.logger.Warn("scheduled refresh submit failed", zap.Error(err))
			}
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, id int64) {
	defer d.cancels.clear(id)

	task, err := d.tasks.GetTask(ctx, id)
	if err != nil {
		d.logger.Error("load task", zap.Int64("task_id", id), zap.Error(err))
		return
	}
	// A cancel that landed while the task sat in the queue already moved
	// it to canceled; never start those.
	if task.Status != crawler.TaskStatusPending {
		d.logger.Info("skipping queued task",
			zap.Int64("task_id", id), zap.String("status", string(task.Status)))
		return
	}
	if err := d.tasks.UpdateTaskStatus(ctx, id, crawler.TaskStatusRunning, ""); err != nil {
		d.logger.Error("mark task running", zap.Int64("task_id", id), zap.Error(err))
		return
	}

	runID := uuid.NewString()
	logger := d.logger.With(zap.Int64("task_id", id), zap.String("run_id", runID))
	logger.Info("task started", zap.String("type", string(task.Type)))

	var final crawler.TaskStatus
	var reason string
	switch task.Type {
	case crawler.TaskTypeCrawl:
		final, reason = d.runCrawl(ctx, task, runID, logger)
	case crawler.TaskTypeStaleRefresh:
		final, reason = d.runRefresh(ctx, task, logger)
	default:
		final, reason = crawler.TaskStatusFailed, fmt.Sprintf("unknown task type %q", task.Type)
	}

	if err := d.tasks.UpdateTaskStatus(ctx, id, final, reason); err != nil {
		logger.Error("record final status", zap.Error(err))
		return
	}
	metrics.CountTask(string(final))
	logger.Info("task finished", zap.String("status", string(final)))
}

func (d *Dispatcher) runCrawl(ctx context.Context, task crawler.Task, runID string, logger *zap.Logger) (crawler.TaskStatus, string) {
	if task.Params == nil {
		return crawler.TaskStatusFailed, "crawl task has no parameters"
	}
	d.log.Append(task.ID, "crawl started: "+task.Params.URL)

	stats, err := d.pool.Crawl(ctx, task.ID, *task.Params, d.cancels.check(task.ID))
	switch {
	case d.cancels.requested(task.ID):
		d.log.Append(task.ID, "crawl canceled")
		return crawler.TaskStatusCanceled, ""
	case err != nil:
		d.log.Append(task.ID, "crawl failed: "+err.Error())
		return crawler.TaskStatusFailed, err.Error()
	}

	if d.favicons != nil && len(stats.NewDomains) > 0 {
		resolved, err := d.favicons.ResolveAll(ctx, stats.NewDomains)
		if err != nil {
			logger.Warn("favicon pass aborted", zap.Error(err))
		} else {
			d.log.Append(task.ID, fmt.Sprintf("favicons resolved for %d of %d domains", resolved, len(stats.NewDomains)))
		}
	}

	d.publishCompletion(ctx, task, runID, stats, logger)
	d.log.Append(task.ID, fmt.Sprintf(
		"crawl completed: %d saved, %d updated, %d deleted, %d skipped, %d failed",
		stats.Saved, stats.Updated, stats.Deleted, stats.Skipped, stats.Failed))
	return crawler.TaskStatusCompleted, ""
}

func (d *Dispatcher) publishCompletion(ctx context.Context, task crawler.Task, runID string, stats worker.Stats, logger *zap.Logger) {
	if d.pub == nil {
		return
	}
	payload := map[string]any{
		"task_id": task.ID,
		"run_id":  runID,
		"params":  task.Params,
		"stats":   stats,
	}
	if _, err := d.pub.Publish(ctx, d.cfg.Topic, payload); err != nil {
		logger.Warn("publish completion event", zap.Error(err))
	}
}
