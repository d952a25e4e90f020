// Package fetcher executes single HTTP GETs for the crawl worker pool and
// classifies each response into the outcome the worker acts on.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/novasearch/novacrawler/internal/metrics"
)

// Outcome tells the worker what to do with a fetched URL.
type Outcome int

const (
	// OutcomeOK means an HTML page was retrieved and should be processed.
	OutcomeOK Outcome = iota
	// OutcomeSkip means the response is not crawlable content (non-200
	// status or non-HTML body); the page row is left untouched.
	OutcomeSkip
	// OutcomeGone means the server returned a non-retryable client error;
	// any stored row for the URL should be deleted.
	OutcomeGone
	// OutcomeRateLimited means the server kept answering 429 after all
	// retry attempts; the URL is given up on without deleting its row.
	OutcomeRateLimited
)

// Result is the classified response for one URL.
type Result struct {
	Outcome    Outcome
	StatusCode int
	Body       []byte
	Header     http.Header
	// FinalURL is the URL after redirects, used as the base for resolving
	// relative links.
	FinalURL string
	Duration time.Duration
}

// Config controls HTTP client behavior.
type Config struct {
	Timeout      time.Duration
	MaxAttempts  int
	RetryDelay   time.Duration
	MaxBodyBytes int64
}

// Fetcher implements single-page retrieval over net/http.
type Fetcher struct {
	client       *http.Client
	logger       *zap.Logger
	maxAttempts  int
	retryDelay   time.Duration
	maxBodyBytes int64
}

// New builds a Fetcher. Zero config fields fall back to the defaults the
// crawl pipeline was tuned for: 10s timeout, 3 attempts, 5s between 429
// retries, 10 MiB body cap.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 10 << 20
	}
	return &Fetcher{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: newHTTPTransport(),
		},
		logger:       logger,
		maxAttempts:  cfg.MaxAttempts,
		retryDelay:   cfg.RetryDelay,
		maxBodyBytes: cfg.MaxBodyBytes,
	}
}

// Fetch retrieves one URL with the provided headers. A 429 response is
// retried up to the configured attempt count with a fixed delay between
// tries; every other status resolves on the first attempt. Network errors
// are returned as errors so the caller can count the URL as a transient
// failure.
func (f *Fetcher) Fetch(ctx context.Context, url string, headers http.Header) (Result, error) {
	var last Result
	for attempt := 1; attempt <= f.maxAttempts; attempt++ {
		res, err := f.fetchOnce(ctx, url, headers)
		if err != nil {
			return Result{}, err
		}
		if res.StatusCode != http.StatusTooManyRequests {
			return res, nil
		}
		last = res
		if attempt < f.maxAttempts {
			metrics.CountRetry()
			f.logger.Debug("rate limited, backing off",
				zap.String("url", url),
				zap.Int("attempt", attempt),
				zap.Duration("delay", f.retryDelay),
			)
			select {
			case <-ctx.Done():
				return Result{}, ctx.Err()
			case <-time.After(f.retryDelay):
			}
		}
	}
	last.Outcome = OutcomeRateLimited
	return last, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string, headers http.Header) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{}, fmt.Errorf("build request: %w", err)
	}
	for key, values := range headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	res := Result{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		FinalURL:   resp.Request.URL.String(),
		Duration:   time.Since(start),
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return res, nil
	case resp.StatusCode >= 500:
		res.Outcome = OutcomeSkip
		return res, nil
	case resp.StatusCode >= 400:
		res.Outcome = OutcomeGone
		return res, nil
	case resp.StatusCode != http.StatusOK:
		res.Outcome = OutcomeSkip
		return res, nil
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" && !isHTMLContentType(ct) {
		res.Outcome = OutcomeSkip
		return res, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes))
	if err != nil {
		return Result{}, fmt.Errorf("read body %s: %w", url, err)
	}
	res.Body = body
	res.Outcome = OutcomeOK
	return res, nil
}

func isHTMLContentType(ct string) bool {
	ct = strings.ToLower(ct)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml+xml")
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
