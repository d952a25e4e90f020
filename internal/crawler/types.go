package crawler

import "time"

// TaskStatus represents the lifecycle state of a submitted task.
type TaskStatus string

// Task status values persisted in the task store. Transitions are monotonic
// along pending -> running -> {completed | canceled | failed}.
const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusCanceled  TaskStatus = "canceled"
	TaskStatusFailed    TaskStatus = "failed"
)

// Terminal reports whether the status is final.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusCanceled, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// TaskType discriminates the task variants the dispatcher knows how to run.
type TaskType string

// Supported task variants.
const (
	TaskTypeCrawl        TaskType = "crawl"
	TaskTypeStaleRefresh TaskType = "stale_refresh"
)

// CrawlParams captures the per-crawl knobs requested by the submitter.
type CrawlParams struct {
	URL string `json:"url"`
	// Depth is the page budget counted down along each link chain: 1
	// crawls only the seed, 2 adds its links, and so on. Zero crawls
	// nothing.
	Depth       int  `json:"depth"`
	SameDomain  bool `json:"same_domain"`
	StealthMode bool `json:"stealth_mode"`
}

// Task represents the metadata persisted for each submitted or scheduled job.
// Params is nil for stale_refresh tasks.
type Task struct {
	ID            int64        `json:"id"`
	Type          TaskType     `json:"task_type"`
	Params        *CrawlParams `json:"params,omitempty"`
	Status        TaskStatus   `json:"status"`
	FailureReason string       `json:"failure_reason,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	CompletedAt   *time.Time   `json:"completed_at,omitempty"`
}

// Page is one row per canonical URL in the page store.
type Page struct {
	URL         string     `json:"url"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Keywords    string     `json:"keywords"`
	FaviconID   string     `json:"favicon_id,omitempty"`
	Priority    int        `json:"priority"`
	LastCrawled *time.Time `json:"last_crawled,omitempty"`
}

// PageMeta carries the fields extracted from one successful fetch. URL must
// already be in normalized form when it reaches the store.
type PageMeta struct {
	URL         string
	Title       string
	Description string
	Keywords    string
}
