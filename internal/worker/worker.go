// Package worker implements the concurrent crawl pipeline: a bounded
// frontier drained by a fixed pool of workers, with a shared visited set
// and an active counter that closes the frontier once no work remains.
package worker

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/novasearch/novacrawler/internal/crawler"
	"github.com/novasearch/novacrawler/internal/extract"
	"github.com/novasearch/novacrawler/internal/fetcher"
	"github.com/novasearch/novacrawler/internal/metrics"
	"github.com/novasearch/novacrawler/internal/progress"
)

// Priority deltas applied per crawl of a page.
const (
	homePageBonus    = 5
	missingTitleCost = -5
	missingDescCost  = -3
	keywordsBonus    = 1
	updateBonus      = 1
)

// Fetcher retrieves one URL. Satisfied by fetcher.Fetcher.
type Fetcher interface {
	Fetch(ctx context.Context, url string, headers http.Header) (fetcher.Result, error)
}

// Waiter applies per-domain politeness before a fetch. Satisfied by
// ratelimit.Limiter.
type Waiter interface {
	Wait(ctx context.Context, url string) error
}

// HeaderPolicy builds outbound headers. Satisfied by identity.Policy.
type HeaderPolicy interface {
	Headers(stealthMode bool, referrer string) http.Header
}

// Config sizes the pool.
type Config struct {
	Workers   int
	QueueSize int
}

// Stats summarizes one crawl for the dispatcher and the completion event.
type Stats struct {
	Saved       int `json:"saved"`
	Updated     int `json:"updated"`
	Deleted     int `json:"deleted"`
	Skipped     int `json:"skipped"`
	Failed      int `json:"failed"`
	RateLimited int `json:"rate_limited"`
	// NewDomains lists domains that gained their first page row during
	// this crawl; the favicon pass runs over these.
	NewDomains []string `json:"new_domains,omitempty"`
}

// Pool runs crawls against a page store.
type Pool struct {
	pages    crawler.PageStore
	fetch    Fetcher
	limiter  Waiter
	identity HeaderPolicy
	log      *progress.Log
	logger   *zap.Logger

	workers   int
	queueSize int
}

// New builds a Pool. Zero workers defaults to 10, zero queue size to 4096.
func New(cfg Config, pages crawler.PageStore, fetch Fetcher, limiter Waiter, identity HeaderPolicy, log *progress.Log, logger *zap.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 10
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 4096
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		pages:     pages,
		fetch:     fetch,
		limiter:   limiter,
		identity:  identity,
		log:       log,
		logger:    logger,
		workers:   cfg.Workers,
		queueSize: cfg.QueueSize,
	}
}

// entry is one frontier item. URL is already normalized when enqueued and
// remaining counts down from the crawl's max depth; entries that reach
// zero are not expanded further.
type entry struct {
	url       string
	referrer  string
	remaining int
}

type crawlState struct {
	taskID   int64
	params   crawler.CrawlParams
	seedHost string
	canceled crawler.CancelCheck

	frontier chan entry
	active   atomic.Int64

	mu         sync.Mutex
	visited    map[string]struct{}
	stats      Stats
	newDomains map[string]struct{}
}

// Crawl runs one crawl task to completion. The frontier is seeded with the
// normalized start URL carrying the full depth budget and closed by the
// worker that drops the active count to zero. A depth of zero crawls
// nothing. Cancellation is cooperative: the check runs before each fetch,
// never during one.
func (p *Pool) Crawl(ctx context.Context, taskID int64, params crawler.CrawlParams, canceled crawler.CancelCheck) (Stats, error) {
	seed, err := crawler.NormalizeURL(params.URL)
	if err != nil {
		return Stats{}, err
	}
	if params.Depth <= 0 {
		return Stats{}, nil
	}
	if canceled == nil {
		canceled = func() bool { return false }
	}

	st := &crawlState{
		taskID:     taskID,
		params:     params,
		seedHost:   crawler.Domain(seed),
		canceled:   canceled,
		frontier:   make(chan entry, p.queueSize),
		visited:    make(map[string]struct{}),
		newDomains: make(map[string]struct{}),
	}
	st.visited[seed] = struct{}{}
	st.active.Add(1)
	st.frontier <- entry{url: seed, remaining: params.Depth}

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for e := range st.frontier {
				p.process(ctx, st, e)
				if st.active.Add(-1) == 0 {
					close(st.frontier)
				}
			}
		}()
	}
	wg.Wait()

	st.mu.Lock()
	stats := st.stats
	for d := range st.newDomains {
		stats.NewDomains = append(stats.NewDomains, d)
	}
	st.mu.Unlock()
	sort.Strings(stats.NewDomains)

	if err := ctx.Err(); err != nil {
		return stats, err
	}
	return stats, nil
}

func (p *Pool) process(ctx context.Context, st *crawlState, e entry) {
	if ctx.Err() != nil || st.canceled() {
		p.count(st, func(s *Stats) { s.Skipped++ })
		return
	}

	if err := p.limiter.Wait(ctx, e.url); err != nil {
		p.count(st, func(s *Stats) { s.Skipped++ })
		return
	}

	res, err := p.fetch.Fetch(ctx, e.url, p.identity.Headers(st.params.StealthMode, e.referrer))
	if err != nil {
		metrics.CountPage(metrics.PageFailed)
		p.count(st, func(s *Stats) { s.Failed++ })
		p.emit(st, "failed "+e.url+": "+err.Error())
		p.logger.Warn("fetch failed", zap.String("url", e.url), zap.Error(err))
		return
	}

	switch res.Outcome {
	case fetcher.OutcomeGone:
		if err := p.pages.DeletePage(ctx, e.url); err != nil {
			p.logger.Error("delete page", zap.String("url", e.url), zap.Error(err))
			p.count(st, func(s *Stats) { s.Failed++ })
			return
		}
		metrics.CountPage(metrics.PageDeleted)
		p.count(st, func(s *Stats) { s.Deleted++ })
		p.emit(st, "deleted "+e.url)
		return
	case fetcher.OutcomeRateLimited:
		metrics.CountPage(metrics.PageRateLimited)
		p.count(st, func(s *Stats) { s.RateLimited++ })
		p.emit(st, "rate limited "+e.url)
		return
	case fetcher.OutcomeSkip:
		metrics.CountPage(metrics.PageSkipped)
		p.count(st, func(s *Stats) { s.Skipped++ })
		return
	}

	data, err := extract.Parse(res.Body, res.FinalURL)
	if err != nil {
		metrics.CountPage(metrics.PageFailed)
		p.count(st, func(s *Stats) { s.Failed++ })
		p.logger.Warn("parse failed", zap.String("url", e.url), zap.Error(err))
		return
	}

	if data.NoIndex {
		// A policy-skipped page contributes nothing, links included.
		metrics.CountPage(metrics.PageSkipped)
		p.count(st, func(s *Stats) { s.Skipped++ })
		p.emit(st, "skipped (noindex) "+e.url)
		return
	}
	p.savePage(ctx, st, e.url, data)

	if e.remaining > 1 && !st.canceled() {
		p.enqueueLinks(st, e, data.Links)
	}
}

func (p *Pool) savePage(ctx context.Context, st *crawlState, url string, data *extract.PageData) {
	meta := crawler.PageMeta{
		URL:         url,
		Title:       data.Title,
		Description: data.Description,
		Keywords:    data.Keywords,
	}

	delta := 0
	if crawler.IsHomePage(url) {
		delta += homePageBonus
	}
	if meta.Title == "" {
		delta += missingTitleCost
	}
	if meta.Description == "" {
		delta += missingDescCost
	}
	if meta.Keywords != "" {
		delta += keywordsBonus
	}

	existing, err := p.pages.GetPage(ctx, url)
	if err != nil {
		metrics.CountPage(metrics.PageFailed)
		p.count(st, func(s *Stats) { s.Failed++ })
		p.logger.Error("load page", zap.String("url", url), zap.Error(err))
		return
	}
	if existing != nil {
		delta += updateBonus
	}

	inserted, err := p.pages.UpsertPage(ctx, meta, delta)
	if err != nil {
		metrics.CountPage(metrics.PageFailed)
		p.count(st, func(s *Stats) { s.Failed++ })
		p.logger.Error("upsert page", zap.String("url", url), zap.Error(err))
		return
	}

	if inserted {
		metrics.CountPage(metrics.PageSaved)
		p.count(st, func(s *Stats) {
			s.Saved++
		})
		st.mu.Lock()
		st.newDomains[crawler.Domain(url)] = struct{}{}
		st.mu.Unlock()
		p.emit(st, "saved "+url)
	} else {
		metrics.CountPage(metrics.PageUpdated)
		p.count(st, func(s *Stats) { s.Updated++ })
		p.emit(st, "updated "+url)
	}
}

func (p *Pool) enqueueLinks(st *crawlState, parent entry, links []string) {
	for _, link := range links {
		norm, err := crawler.NormalizeURL(link)
		if err != nil {
			continue
		}
		if st.params.SameDomain && crawler.Domain(norm) != st.seedHost {
			continue
		}

		st.mu.Lock()
		_, seen := st.visited[norm]
		if !seen {
			st.visited[norm] = struct{}{}
		}
		st.mu.Unlock()
		if seen {
			continue
		}

		st.active.Add(1)
		select {
		case st.frontier <- entry{url: norm, referrer: parent.url, remaining: parent.remaining - 1}:
		default:
			// Frontier full: drop rather than deadlock the pool. The
			// parent entry still holds an active slot, so this cannot be
			// the decrement that closes the frontier.
			st.active.Add(-1)
			p.logger.Warn("frontier full, dropping link", zap.String("url", norm))
		}
	}
}

func (p *Pool) count(st *crawlState, apply func(*Stats)) {
	st.mu.Lock()
	apply(&st.stats)
	st.mu.Unlock()
}

func (p *Pool) emit(st *crawlState, line string) {
	if p.log != nil {
		p.log.Append(st.taskID, line)
	}
}
