package dispatcher

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"time"

	"go.uber.org/zap"

	"github.com/novasearch/novacrawler/internal/crawler"
)

// cancelPollInterval is how often a running refresh subprocess is checked
// against the cancel registry.
const cancelPollInterval = 250 * time.Millisecond

// runRefresh executes one stale_refresh task: either the configured
// external command or the built-in re-crawl of stale URLs.
func (d *Dispatcher) runRefresh(ctx context.Context, task crawler.Task, logger *zap.Logger) (crawler.TaskStatus, string) {
	if d.cfg.RefreshCommand != "" {
		return d.runRefreshCommand(ctx, task, logger)
	}
	return d.runBuiltinRefresh(ctx, task, logger)
}

// runRefreshCommand shells out to the configured command and streams its
// stdout into the progress log line by line. A cancel request kills the
// subprocess.
func (d *Dispatcher) runRefreshCommand(ctx context.Context, task crawler.Task, logger *zap.Logger) (crawler.TaskStatus, string) {
	cctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd := exec.CommandContext(cctx, "/bin/sh", "-c", d.cfg.RefreshCommand)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return crawler.TaskStatusFailed, fmt.Sprintf("pipe refresh command: %v", err)
	}
	cmd.Stderr = cmd.Stdout
	if err := cmd.Start(); err != nil {
		return crawler.TaskStatusFailed, fmt.Sprintf("start refresh command: %v", err)
	}
	d.log.Append(task.ID, "refresh command started")

	// Kill the subprocess as soon as cancellation is requested.
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		ticker := time.NewTicker(cancelPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-cctx.Done():
				return
			case <-ticker.C:
				if d.cancels.requested(task.ID) {
					cancel()
					return
				}
			}
		}
	}()

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		d.log.Append(task.ID, scanner.Text())
	}

	err = cmd.Wait()
	cancel()
	<-watchDone

	if d.cancels.requested(task.ID) {
		d.log.Append(task.ID, "refresh command canceled")
		return crawler.TaskStatusCanceled, ""
	}
	if err != nil {
		d.log.Append(task.ID, "refresh command failed: "+err.Error())
		return crawler.TaskStatusFailed, err.Error()
	}
	d.log.Append(task.ID, "refresh command completed")
	return crawler.TaskStatusCompleted, ""
}

// runBuiltinRefresh re-crawls every stale URL on its own, without link
// expansion. Used when no external refresh command is configured.
func (d *Dispatcher) runBuiltinRefresh(ctx context.Context, task crawler.Task, logger *zap.Logger) (crawler.TaskStatus, string) {
	urls, err := d.pages.ListStaleURLs(ctx, d.cfg.StaleAfter)
	if err != nil {
		return crawler.TaskStatusFailed, err.Error()
	}
	d.log.Append(task.ID, fmt.Sprintf("refreshing %d stale pages", len(urls)))

	for _, u := range urls {
		if d.cancels.requested(task.ID) {
			d.log.Append(task.ID, "refresh canceled")
			return crawler.TaskStatusCanceled, ""
		}
		if err := ctx.Err(); err != nil {
			return crawler.TaskStatusFailed, err.Error()
		}
		params := crawler.CrawlParams{URL: u, Depth: 1, SameDomain: true}
		if _, err := d.pool.Crawl(ctx, task.ID, params, d.cancels.check(task.ID)); err != nil {
			logger.Warn("stale refresh crawl failed", zap.String("url", u), zap.Error(err))
		}
	}
	d.log.Append(task.ID, "refresh completed")
	return crawler.TaskStatusCompleted, ""
}
