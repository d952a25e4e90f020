// Package database implements the page and task stores on SQLite.
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/novasearch/novacrawler/internal/crawler"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("database: not found")

// Store provides SQLite-backed persistence for pages and tasks. It
// implements crawler.PageStore and crawler.TaskStore.
type Store struct {
	db    *sql.DB
	clock crawler.Clock
}

// Options configures Store behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	// When false, Open fails on a missing file so callers can decide
	// whether to create it (the CLI prompts the user).
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool

	// Clock supplies timestamps; nil means wall clock.
	Clock crawler.Clock
}

// DefaultOptions returns the options used by the long-running service.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// Exists reports whether a database file is already present at path.
func Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat database: %w", err)
	}
	return true, nil
}

// Open opens or creates the store at the given file path.
//
// modernc.org/sqlite uses URI-style options: mode=rw refuses to create a
// missing file, mode=rwc allows creation.
func Open(path string, opts Options) (*Store, error) {
	if opts.CreateIfNotExists {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	} else {
		ok, err := Exists(path)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("database not found at %s", path)
		}
	}

	mode := "rw"
	if opts.CreateIfNotExists {
		mode = "rwc"
	}
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=%s", path, mode))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite supports a single writer; funnel everything through one
	// connection and rely on WAL for concurrent readers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.ExecContext(context.Background(), "PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	clock := opts.Clock
	if clock == nil {
		clock = wallClock{}
	}
	s := &Store{db: db, clock: clock}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetPage returns the stored page, or nil when no row exists.
func (s *Store) GetPage(ctx context.Context, url string) (*crawler.Page, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT url, title, description, keywords, COALESCE(favicon_id, ''), priority, last_crawled
		FROM pages WHERE url = ?`, url)

	var (
		p           crawler.Page
		lastCrawled sql.NullString
	)
	err := row.Scan(&p.URL, &p.Title, &p.Description, &p.Keywords, &p.FaviconID, &p.Priority, &lastCrawled)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get page: %w", err)
	}
	if lastCrawled.Valid {
		t, err := parseTime(lastCrawled.String)
		if err != nil {
			return nil, fmt.Errorf("get page %s: %w", url, err)
		}
		p.LastCrawled = &t
	}
	return &p, nil
}

// UpsertPage inserts or updates a page in one transaction. The priority
// delta is always applied. Metadata and last_crawled are rewritten only
// when the extracted fields differ from the stored row, so a re-crawl that
// finds nothing new leaves the freshness timestamp alone and the update
// bonus in the delta rewards pages that did change.
func (s *Store) UpsertPage(ctx context.Context, meta crawler.PageMeta, priorityDelta int) (bool, error) {
	now := s.clock.Now().UTC().Format(time.RFC3339)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("upsert page: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		title, description, keywords string
	)
	err = tx.QueryRowContext(ctx,
		`SELECT title, description, keywords FROM pages WHERE url = ?`, meta.URL,
	).Scan(&title, &description, &keywords)

	inserted := false
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx, `
			INSERT INTO pages (url, title, description, keywords, priority, last_crawled)
			VALUES (?, ?, ?, ?, ?, ?)`,
			meta.URL, meta.Title, meta.Description, meta.Keywords, priorityDelta, now)
		if err != nil {
			return false, fmt.Errorf("upsert page: insert: %w", err)
		}
		inserted = true
	case err != nil:
		return false, fmt.Errorf("upsert page: select: %w", err)
	default:
		changed := title != meta.Title || description != meta.Description || keywords != meta.Keywords
		if changed {
			_, err = tx.ExecContext(ctx, `
				UPDATE pages
				SET title = ?, description = ?, keywords = ?, priority = priority + ?, last_crawled = ?
				WHERE url = ?`,
				meta.Title, meta.Description, meta.Keywords, priorityDelta, now, meta.URL)
		} else {
			_, err = tx.ExecContext(ctx,
				`UPDATE pages SET priority = priority + ? WHERE url = ?`, priorityDelta, meta.URL)
		}
		if err != nil {
			return false, fmt.Errorf("upsert page: update: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("upsert page: commit: %w", err)
	}
	return inserted, nil
}

// DeletePage removes a page row; deleting a missing row is not an error.
func (s *Store) DeletePage(ctx context.Context, url string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pages WHERE url = ?`, url); err != nil {
		return fmt.Errorf("delete page: %w", err)
	}
	return nil
}

// SetFaviconForDomain stamps favicon_id onto every page whose URL contains
// the domain, returning the number of rows touched. The substring match
// deliberately covers both http and https rows for the domain.
func (s *Store) SetFaviconForDomain(ctx context.Context, domain, faviconID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pages SET favicon_id = ? WHERE url LIKE '%' || ? || '%'`, faviconID, domain)
	if err != nil {
		return 0, fmt.Errorf("set favicon for %s: %w", domain, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("set favicon for %s: rows affected: %w", domain, err)
	}
	return n, nil
}

// ListStaleURLs returns URLs never crawled or last crawled before the
// freshness window.
func (s *Store) ListStaleURLs(ctx context.Context, olderThan time.Duration) ([]string, error) {
	cutoff := s.clock.Now().UTC().Add(-olderThan).Format(time.RFC3339)
	rows, err := s.db.QueryContext(ctx, `
		SELECT url FROM pages
		WHERE last_crawled IS NULL OR last_crawled < ?
		ORDER BY priority DESC, url`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list stale urls: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("list stale urls: scan: %w", err)
		}
		urls = append(urls, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list stale urls: %w", err)
	}
	return urls, nil
}

// CreateTask inserts a pending task row and returns its id.
func (s *Store) CreateTask(ctx context.Context, typ crawler.TaskType, params *crawler.CrawlParams) (int64, error) {
	var paramsJSON sql.NullString
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return 0, fmt.Errorf("create task: marshal params: %w", err)
		}
		paramsJSON = sql.NullString{String: string(b), Valid: true}
	}
	now := s.clock.Now().UTC().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (task_type, params, status, created_at)
		VALUES (?, ?, ?, ?)`,
		string(typ), paramsJSON, string(crawler.TaskStatusPending), now)
	if err != nil {
		return 0, fmt.Errorf("create task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create task: last insert id: %w", err)
	}
	return id, nil
}

// GetTask returns one task by id, or ErrNotFound.
func (s *Store) GetTask(ctx context.Context, id int64) (crawler.Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, task_type, params, status, failure_reason, created_at, completed_at
		FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return crawler.Task{}, fmt.Errorf("get task %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return crawler.Task{}, fmt.Errorf("get task %d: %w", id, err)
	}
	return task, nil
}

// UpdateTaskStatus sets the status and, for failed tasks, the failure
// reason. Terminal statuses also stamp completed_at.
func (s *Store) UpdateTaskStatus(ctx context.Context, id int64, status crawler.TaskStatus, reason string) error {
	var res sql.Result
	var err error
	if status.Terminal() {
		now := s.clock.Now().UTC().Format(time.RFC3339)
		res, err = s.db.ExecContext(ctx, `
			UPDATE tasks SET status = ?, failure_reason = ?, completed_at = ? WHERE id = ?`,
			string(status), reason, now, id)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE tasks SET status = ? WHERE id = ?`, string(status), id)
	}
	if err != nil {
		return fmt.Errorf("update task %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update task %d: rows affected: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("update task %d: %w", id, ErrNotFound)
	}
	return nil
}

// ListRecentTasks returns the most recent tasks by creation time,
// descending.
func (s *Store) ListRecentTasks(ctx context.Context, limit int) ([]crawler.Task, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_type, params, status, failure_reason, created_at, completed_at
		FROM tasks ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []crawler.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("list recent tasks: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list recent tasks: %w", err)
	}
	return tasks, nil
}

// FailInterruptedTasks force-fails every pending or running task. The
// dispatcher calls this once at startup; rows left in those states belong
// to a previous process and will never make progress.
func (s *Store) FailInterruptedTasks(ctx context.Context) (int64, error) {
	now := s.clock.Now().UTC().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET status = ?, failure_reason = ?, completed_at = ?
		WHERE status IN (?, ?)`,
		string(crawler.TaskStatusFailed), "interrupted by restart", now,
		string(crawler.TaskStatusPending), string(crawler.TaskStatusRunning))
	if err != nil {
		return 0, fmt.Errorf("fail interrupted tasks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("fail interrupted tasks: rows affected: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (crawler.Task, error) {
	var (
		task        crawler.Task
		typ         string
		status      string
		paramsJSON  sql.NullString
		createdAt   string
		completedAt sql.NullString
	)
	if err := row.Scan(&task.ID, &typ, &paramsJSON, &status, &task.FailureReason, &createdAt, &completedAt); err != nil {
		return crawler.Task{}, err
	}
	task.Type = crawler.TaskType(typ)
	task.Status = crawler.TaskStatus(status)
	if paramsJSON.Valid && paramsJSON.String != "" {
		var params crawler.CrawlParams
		if err := json.Unmarshal([]byte(paramsJSON.String), &params); err != nil {
			return crawler.Task{}, fmt.Errorf("unmarshal params: %w", err)
		}
		task.Params = &params
	}
	created, err := parseTime(createdAt)
	if err != nil {
		return crawler.Task{}, err
	}
	task.CreatedAt = created
	if completedAt.Valid {
		done, err := parseTime(completedAt.String)
		if err != nil {
			return crawler.Task{}, err
		}
		task.CompletedAt = &done
	}
	return task, nil
}

// parseTime accepts the timestamp formats SQLite may hand back depending on
// how the value was written.
func parseTime(s string) (time.Time, error) {
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}
