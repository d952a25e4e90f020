package crawler

import (
	"context"
	"time"
)

// PageStore persists page rows keyed by normalized URL.
type PageStore interface {
	// GetPage returns the stored page, or nil when no row exists.
	GetPage(ctx context.Context, url string) (*Page, error)
	// UpsertPage inserts or updates a page in one transaction. The priority
	// delta is always applied; metadata and last_crawled are only written
	// when the extracted fields differ from the stored ones. It reports
	// whether a new row was created.
	UpsertPage(ctx context.Context, meta PageMeta, priorityDelta int) (inserted bool, err error)
	// DeletePage removes a page row; deleting a missing row is not an error.
	DeletePage(ctx context.Context, url string) error
	// SetFaviconForDomain batch-updates favicon_id for every page whose URL
	// belongs to the domain, returning the number of rows touched.
	SetFaviconForDomain(ctx context.Context, domain, faviconID string) (int64, error)
	// ListStaleURLs returns URLs never crawled or last crawled before the
	// freshness window.
	ListStaleURLs(ctx context.Context, olderThan time.Duration) ([]string, error)
}

// TaskStore persists task rows and their status transitions.
type TaskStore interface {
	CreateTask(ctx context.Context, typ TaskType, params *CrawlParams) (int64, error)
	GetTask(ctx context.Context, id int64) (Task, error)
	// UpdateTaskStatus sets the status (and failure reason, for failed
	// tasks); terminal statuses also record completed_at.
	UpdateTaskStatus(ctx context.Context, id int64, status TaskStatus, reason string) error
	// ListRecentTasks returns the most recent tasks by creation time,
	// descending.
	ListRecentTasks(ctx context.Context, limit int) ([]Task, error)
	// FailInterruptedTasks force-transitions every pending or running task
	// to failed. Called once at dispatcher startup; rows left in those
	// states after a restart are never trusted.
	FailInterruptedTasks(ctx context.Context) (int64, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
	Close() error
}

// Hasher computes digests used as stable identifiers.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// CancelCheck reports whether cancellation has been requested for the task
// the closure was built for. Checked cooperatively at frontier-entry
// boundaries; it never interrupts an in-flight fetch.
type CancelCheck func() bool
