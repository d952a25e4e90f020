package dispatcher

import (
	"sync"

	"github.com/novasearch/novacrawler/internal/crawler"
)

// cancelRegistry tracks cancellation requests by task id. Requests survive
// until the dispatcher finishes handling the task, so a flag set while the
// task waits in the queue is still visible when it would start.
type cancelRegistry struct {
	mu    sync.Mutex
	flags map[int64]bool
}

func newCancelRegistry() *cancelRegistry {
	return &cancelRegistry{flags: make(map[int64]bool)}
}

func (r *cancelRegistry) request(id int64) {
	r.mu.Lock()
	r.flags[id] = true
	r.mu.Unlock()
}

func (r *cancelRegistry) requested(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flags[id]
}

// check returns a CancelCheck bound to one task.
func (r *cancelRegistry) check(id int64) crawler.CancelCheck {
	return func() bool { return r.requested(id) }
}

func (r *cancelRegistry) clear(id int64) {
	r.mu.Lock()
	delete(r.flags, id)
	r.mu.Unlock()
}
