// Package progress keeps a bounded in-memory log of crawl activity and
// fans new lines out to live subscribers. Emission never blocks the
// producing worker; a slow subscriber loses lines rather than stalling a
// crawl.
package progress

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultCapacity = 1000

// Entry is one line of crawl progress attributed to a task.
type Entry struct {
	Time   time.Time `json:"time"`
	TaskID int64     `json:"task_id"`
	Line   string    `json:"line"`
}

// Log is a fixed-capacity ring of progress entries with live subscription.
// Safe for concurrent use.
type Log struct {
	mu       sync.Mutex
	ring     []Entry
	start    int
	count    int
	subs     map[chan Entry]struct{}
	logger   *zap.Logger
	capacity int
}

// NewLog builds a Log holding at most capacity entries; non-positive
// capacity uses the default of 1000.
func NewLog(capacity int, logger *zap.Logger) *Log {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{
		ring:     make([]Entry, capacity),
		subs:     make(map[chan Entry]struct{}),
		logger:   logger,
		capacity: capacity,
	}
}

// Append records one line, evicting the oldest entry when full, and
// offers it to every subscriber without blocking.
func (l *Log) Append(taskID int64, line string) {
	entry := Entry{Time: time.Now().UTC(), TaskID: taskID, Line: line}

	l.mu.Lock()
	idx := (l.start + l.count) % l.capacity
	if l.count == l.capacity {
		l.start = (l.start + 1) % l.capacity
		idx = (l.start + l.count - 1) % l.capacity
	} else {
		l.count++
	}
	l.ring[idx] = entry

	for ch := range l.subs {
		select {
		case ch <- entry:
		default:
			l.logger.Debug("progress line dropped for slow subscriber",
				zap.Int64("task_id", taskID))
		}
	}
	l.mu.Unlock()
}

// Recent returns up to n of the most recent entries, oldest first.
// n <= 0 returns everything retained.
func (l *Log) Recent(n int) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n <= 0 || n > l.count {
		n = l.count
	}
	out := make([]Entry, 0, n)
	for i := l.count - n; i < l.count; i++ {
		out = append(out, l.ring[(l.start+i)%l.capacity])
	}
	return out
}

// Subscribe registers a live feed of new entries. The returned cancel
// function unregisters the feed and closes the channel; it is safe to call
// more than once.
func (l *Log) Subscribe(buffer int) (<-chan Entry, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Entry, buffer)

	l.mu.Lock()
	l.subs[ch] = struct{}{}
	l.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.subs, ch)
			l.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}
