package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/novasearch/novacrawler/internal/crawler"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newTestStore(t *testing.T) (*Store, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	s, err := Open(filepath.Join(t.TempDir(), "nova.db"), Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
		Clock:             clock,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, clock
}

func TestOpen_MissingFileWithoutCreate(t *testing.T) {
	t.Parallel()

	_, err := Open(filepath.Join(t.TempDir(), "absent.db"), Options{CreateIfNotExists: false})
	require.Error(t, err)
	require.Contains(t, err.Error(), "not found")
}

func TestOpen_MigrationsIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nova.db")
	s, err := Open(path, DefaultOptions())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path, DefaultOptions())
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestUpsertPage_InsertThenUpdate(t *testing.T) {
	t.Parallel()

	s, clock := newTestStore(t)
	ctx := context.Background()

	meta := crawler.PageMeta{
		URL:         "https://example.com/a",
		Title:       "A",
		Description: "first",
		Keywords:    "k",
	}
	inserted, err := s.UpsertPage(ctx, meta, 5)
	require.NoError(t, err)
	require.True(t, inserted)

	p, err := s.GetPage(ctx, meta.URL)
	require.NoError(t, err)
	require.NotNil(t, p)
	require.Equal(t, 5, p.Priority)
	require.NotNil(t, p.LastCrawled)
	firstCrawl := *p.LastCrawled

	// Unchanged metadata: delta applies, last_crawled stays put.
	clock.now = clock.now.Add(time.Hour)
	inserted, err = s.UpsertPage(ctx, meta, 2)
	require.NoError(t, err)
	require.False(t, inserted)

	p, err = s.GetPage(ctx, meta.URL)
	require.NoError(t, err)
	require.Equal(t, 7, p.Priority)
	require.True(t, p.LastCrawled.Equal(firstCrawl))

	// Changed metadata: fields and last_crawled move.
	meta.Title = "A updated"
	inserted, err = s.UpsertPage(ctx, meta, 3)
	require.NoError(t, err)
	require.False(t, inserted)

	p, err = s.GetPage(ctx, meta.URL)
	require.NoError(t, err)
	require.Equal(t, "A updated", p.Title)
	require.Equal(t, 10, p.Priority)
	require.True(t, p.LastCrawled.After(firstCrawl))
}

func TestGetPage_Missing(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	p, err := s.GetPage(context.Background(), "https://nowhere.example")
	require.NoError(t, err)
	require.Nil(t, p)
}

func TestDeletePage(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertPage(ctx, crawler.PageMeta{URL: "https://example.com/x", Title: "X"}, 0)
	require.NoError(t, err)
	require.NoError(t, s.DeletePage(ctx, "https://example.com/x"))

	p, err := s.GetPage(ctx, "https://example.com/x")
	require.NoError(t, err)
	require.Nil(t, p)

	// Deleting again is a no-op.
	require.NoError(t, s.DeletePage(ctx, "https://example.com/x"))
}

func TestSetFaviconForDomain(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	ctx := context.Background()

	for _, u := range []string{
		"https://example.com",
		"https://example.com/about",
		"http://example.com/legacy",
		"https://other.example/page",
	} {
		_, err := s.UpsertPage(ctx, crawler.PageMeta{URL: u, Title: "t"}, 0)
		require.NoError(t, err)
	}

	n, err := s.SetFaviconForDomain(ctx, "example.com", "abc123")
	require.NoError(t, err)
	require.EqualValues(t, 4, n) // substring match also catches other.example

	p, err := s.GetPage(ctx, "https://example.com/about")
	require.NoError(t, err)
	require.Equal(t, "abc123", p.FaviconID)
}

func TestListStaleURLs(t *testing.T) {
	t.Parallel()

	s, clock := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertPage(ctx, crawler.PageMeta{URL: "https://example.com/old", Title: "old"}, 0)
	require.NoError(t, err)

	clock.now = clock.now.Add(15 * 24 * time.Hour)
	_, err = s.UpsertPage(ctx, crawler.PageMeta{URL: "https://example.com/fresh", Title: "fresh"}, 0)
	require.NoError(t, err)

	stale, err := s.ListStaleURLs(ctx, 14*24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, []string{"https://example.com/old"}, stale)
}

func TestTaskLifecycle(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	ctx := context.Background()

	params := &crawler.CrawlParams{URL: "https://example.com", Depth: 2, SameDomain: true}
	id, err := s.CreateTask(ctx, crawler.TaskTypeCrawl, params)
	require.NoError(t, err)

	task, err := s.GetTask(ctx, id)
	require.NoError(t, err)
	require.Equal(t, crawler.TaskStatusPending, task.Status)
	require.Equal(t, crawler.TaskTypeCrawl, task.Type)
	require.NotNil(t, task.Params)
	require.Equal(t, "https://example.com", task.Params.URL)
	require.Nil(t, task.CompletedAt)

	require.NoError(t, s.UpdateTaskStatus(ctx, id, crawler.TaskStatusRunning, ""))
	require.NoError(t, s.UpdateTaskStatus(ctx, id, crawler.TaskStatusFailed, "boom"))

	task, err = s.GetTask(ctx, id)
	require.NoError(t, err)
	require.Equal(t, crawler.TaskStatusFailed, task.Status)
	require.Equal(t, "boom", task.FailureReason)
	require.NotNil(t, task.CompletedAt)
}

func TestGetTask_NotFound(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	_, err := s.GetTask(context.Background(), 9999)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateTaskStatus_NotFound(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	err := s.UpdateTaskStatus(context.Background(), 9999, crawler.TaskStatusRunning, "")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListRecentTasks_Order(t *testing.T) {
	t.Parallel()

	s, clock := newTestStore(t)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 3; i++ {
		clock.now = clock.now.Add(time.Minute)
		id, err := s.CreateTask(ctx, crawler.TaskTypeStaleRefresh, nil)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	tasks, err := s.ListRecentTasks(ctx, 2)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	require.Equal(t, ids[2], tasks[0].ID)
	require.Equal(t, ids[1], tasks[1].ID)
	require.Nil(t, tasks[0].Params)
}

func TestFailInterruptedTasks(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	ctx := context.Background()

	pending, err := s.CreateTask(ctx, crawler.TaskTypeCrawl, &crawler.CrawlParams{URL: "https://a.example"})
	require.NoError(t, err)
	running, err := s.CreateTask(ctx, crawler.TaskTypeCrawl, &crawler.CrawlParams{URL: "https://b.example"})
	require.NoError(t, err)
	require.NoError(t, s.UpdateTaskStatus(ctx, running, crawler.TaskStatusRunning, ""))
	done, err := s.CreateTask(ctx, crawler.TaskTypeCrawl, &crawler.CrawlParams{URL: "https://c.example"})
	require.NoError(t, err)
	require.NoError(t, s.UpdateTaskStatus(ctx, done, crawler.TaskStatusCompleted, ""))

	n, err := s.FailInterruptedTasks(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	for _, id := range []int64{pending, running} {
		task, err := s.GetTask(ctx, id)
		require.NoError(t, err)
		require.Equal(t, crawler.TaskStatusFailed, task.Status)
		require.Equal(t, "interrupted by restart", task.FailureReason)
	}
	task, err := s.GetTask(ctx, done)
	require.NoError(t, err)
	require.Equal(t, crawler.TaskStatusCompleted, task.Status)
}
