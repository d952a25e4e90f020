package crawler

import (
	"fmt"
	"net/url"
	"strings"
)

// queryIdentityHosts lists origins whose page identity lives in the query
// string (video-watch and app-store pages). Normalization keeps the query
// for these hosts instead of stripping it.
var queryIdentityHosts = []string{
	"youtube.com",
	"play.google.com",
	"apps.apple.com",
}

// skippedExtensions filters outbound links to non-HTML resources.
var skippedExtensions = []string{
	".css", ".js", ".jpg", ".jpeg", ".png", ".gif",
	".svg", ".woff", ".pdf", ".zip", ".mp4", ".mp3", ".exe",
}

// NormalizeURL canonicalizes a URL to the stable key used throughout the
// store. It lowercases scheme and host, removes default ports, always strips
// the fragment, and strips the query string and trailing path slash unless
// the host keeps its identity in the query. The result is idempotent:
// NormalizeURL(NormalizeURL(u)) == NormalizeURL(u).
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q has no scheme or host", rawURL)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Scheme == "http" {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""
	u.RawFragment = ""
	if !keepsQueryIdentity(u.Hostname()) {
		u.RawQuery = ""
	}
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	u.User = nil

	return u.String(), nil
}

// IsHomePage reports whether the URL points at the root of its site.
func IsHomePage(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return u.Path == "" || u.Path == "/"
}

// Domain extracts the host (including subdomain) from a URL, or "" when the
// URL does not parse.
func Domain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}

// IsCrawlableLink reports whether a resolved outbound link is worth
// enqueueing: http(s) scheme and not an obvious binary/media resource.
func IsCrawlableLink(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	lower := strings.ToLower(rawURL)
	for _, ext := range skippedExtensions {
		if strings.HasSuffix(lower, ext) {
			return false
		}
	}
	return true
}

func keepsQueryIdentity(host string) bool {
	for _, h := range queryIdentityHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}
