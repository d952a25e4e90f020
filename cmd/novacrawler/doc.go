// Package main hosts the novacrawler entrypoint.
//
// Architecture overview:
//   - Dispatcher: tasks (crawl, stale_refresh) are persisted as rows in the
//     SQLite task table and drained strictly one at a time in submission
//     order. Cancellation is cooperative; a pending task flips to canceled
//     immediately, a running one stops at the next page boundary.
//   - Crawl pipeline: a fixed worker pool drains a bounded frontier seeded
//     with the normalized start URL. Each worker waits on the per-domain
//     politeness limiter, fetches with the configured identity policy,
//     extracts metadata with goquery, and upserts the page row with its
//     priority delta. 404-class responses delete the row.
//   - Favicons: after a crawl, icons for newly discovered domains are
//     resolved concurrently and written to the configured blob store
//     (local/memory/GCS); the icon id is stamped onto the domain's pages.
//   - Refresh: a scheduler submits a stale_refresh task periodically, which
//     either shells out to the configured command or re-crawls stale URLs
//     in place.
//   - Plumbing: Viper populates config from file/env (NOVACRAWLER_*); zap
//     provides structured logging; Prometheus metrics and health are served
//     by the ops HTTP server; completion events go to Pub/Sub when enabled.
package main
