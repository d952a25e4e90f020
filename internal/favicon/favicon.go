// Package favicon resolves and stores site icons for freshly discovered
// domains, then stamps the icon id onto every stored page of the domain.
package favicon

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/novasearch/novacrawler/internal/crawler"
	"github.com/novasearch/novacrawler/internal/extract"
	"github.com/novasearch/novacrawler/internal/metrics"
	"github.com/novasearch/novacrawler/internal/policy/identity"
)

// iconExtensions maps the response content type to the stored file
// extension. Anything else is treated as not-an-icon.
var iconExtensions = map[string]string{
	"image/png":                "png",
	"image/jpeg":               "jpg",
	"image/jpg":                "jpg",
	"image/svg+xml":            "svg",
	"image/x-icon":             "ico",
	"image/vnd.microsoft.icon": "ico",
	"image/webp":               "webp",
	"image/avif":               "avif",
	"image/gif":                "gif",
}

const maxIconBytes = 1 << 20

// Config controls resolver behavior.
type Config struct {
	// Concurrency bounds how many domains resolve at once.
	Concurrency int
	Timeout     time.Duration
	// Scheme is the scheme used to reach domains; the default is https.
	Scheme string
}

// Resolver downloads one icon per domain and persists it.
type Resolver struct {
	pages  crawler.PageStore
	blobs  crawler.BlobStore
	hasher crawler.Hasher
	client *http.Client
	logger *zap.Logger

	concurrency int
	scheme      string
}

// New builds a Resolver.
func New(cfg Config, pages crawler.PageStore, blobs crawler.BlobStore, hasher crawler.Hasher, logger *zap.Logger) *Resolver {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Scheme == "" {
		cfg.Scheme = "https"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		pages:       pages,
		blobs:       blobs,
		hasher:      hasher,
		client:      &http.Client{Timeout: cfg.Timeout},
		logger:      logger,
		concurrency: cfg.Concurrency,
		scheme:      cfg.Scheme,
	}
}

// ResolveAll fans resolution out over the domains with bounded
// concurrency. A domain that yields no usable icon is logged and skipped;
// only context cancellation aborts the batch. It returns how many domains
// got an icon.
func (r *Resolver) ResolveAll(ctx context.Context, domains []string) (int, error) {
	var resolved int
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, domain := range domains {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := r.resolveDomain(ctx, domain); err != nil {
				metrics.CountFavicon("none")
				r.logger.Debug("favicon not resolved",
					zap.String("domain", domain), zap.Error(err))
				return nil
			}
			metrics.CountFavicon("resolved")
			mu.Lock()
			resolved++
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return resolved, err
	}
	return resolved, nil
}

// resolveDomain finds the icon URL declared by the domain's home page,
// falling back to the conventional /favicon.ico, downloads it, stores the
// bytes, and stamps the id onto the domain's pages. The id is the MD5 of
// the icon URL so re-resolving a domain is idempotent.
func (r *Resolver) resolveDomain(ctx context.Context, domain string) error {
	base := r.scheme + "://" + domain
	iconURL := r.discoverIconURL(ctx, base)
	if iconURL == "" {
		iconURL = base + "/favicon.ico"
	}

	data, contentType, err := r.download(ctx, iconURL)
	if err != nil {
		return err
	}
	ext, ok := iconExtensions[normalizeContentType(contentType)]
	if !ok {
		return fmt.Errorf("unsupported icon content type %q", contentType)
	}

	id, err := r.hasher.Hash([]byte(iconURL))
	if err != nil {
		return fmt.Errorf("hash icon url: %w", err)
	}
	path := fmt.Sprintf("favicons/%s.%s", id, ext)
	if _, err := r.blobs.PutObject(ctx, path, contentType, data); err != nil {
		return fmt.Errorf("store icon: %w", err)
	}

	n, err := r.pages.SetFaviconForDomain(ctx, domain, id)
	if err != nil {
		return err
	}
	r.logger.Info("favicon resolved",
		zap.String("domain", domain),
		zap.String("favicon_id", id),
		zap.Int64("pages", n),
	)
	return nil
}

// discoverIconURL fetches the home page and returns its declared icon
// link, or "" when the page is unreachable or declares none.
func (r *Resolver) discoverIconURL(ctx context.Context, base string) string {
	body, contentType, err := r.download(ctx, base)
	if err != nil || !strings.Contains(strings.ToLower(contentType), "text/html") {
		return ""
	}
	data, err := extract.Parse(body, base)
	if err != nil {
		return ""
	}
	return data.IconURL
}

func (r *Resolver) download(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", identity.DefaultUserAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxIconBytes))
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", url, err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func normalizeContentType(ct string) string {
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}
