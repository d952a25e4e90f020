// Package identity builds the outbound request headers for crawl fetches,
// in either the fixed default identity or the rotating stealth profile.
package identity

import (
	"math/rand/v2"
	"net/http"
)

// DefaultUserAgent is the crawler's honest identity string.
const DefaultUserAgent = "NovaCrawler/1.1"

// defaultReferrerSite is sent as the Referer in stealth mode when the
// frontier has no referrer for the URL.
const defaultReferrerSite = "https://novasearch.xyz"

// stealthAgents is the pool of realistic browser identities rotated per
// request in stealth mode.
var stealthAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/117.0",
	"Dalvik/2.1.0 (Linux; U; Android 11; Pixel 3a XL Build/RQ2A.210305.006)",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0.0.0 Safari/537.36",
}

// Config overrides the built-in identity strings.
type Config struct {
	UserAgent       string
	StealthAgents   []string
	DefaultReferrer string
}

// Policy produces header sets for outbound requests.
type Policy struct {
	userAgent       string
	stealthAgents   []string
	defaultReferrer string
}

// New constructs a Policy, filling unset config fields with the built-ins.
func New(cfg Config) *Policy {
	p := &Policy{
		userAgent:       cfg.UserAgent,
		stealthAgents:   cfg.StealthAgents,
		defaultReferrer: cfg.DefaultReferrer,
	}
	if p.userAgent == "" {
		p.userAgent = DefaultUserAgent
	}
	if len(p.stealthAgents) == 0 {
		p.stealthAgents = stealthAgents
	}
	if p.defaultReferrer == "" {
		p.defaultReferrer = defaultReferrerSite
	}
	return p
}

// Headers builds the header set for one request. In stealth mode the user
// agent is drawn from the pool per request and browser-like navigation
// metadata is added; referrer falls back to the configured default site.
func (p *Policy) Headers(stealthMode bool, referrer string) http.Header {
	h := http.Header{}
	h.Set("Accept-Language", "en-US,en;q=0.9")
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	h.Set("Upgrade-Insecure-Requests", "1")
	if stealthMode {
		h.Set("DNT", "1")
		h.Set("User-Agent", p.stealthAgents[rand.IntN(len(p.stealthAgents))])
		if referrer == "" {
			referrer = p.defaultReferrer
		}
		h.Set("Referer", referrer)
		h.Set("Cache-Control", "max-age=0")
		h.Set("Sec-Fetch-Dest", "document")
		h.Set("Sec-Fetch-Mode", "navigate")
		h.Set("Sec-Fetch-Site", "none")
		h.Set("Sec-Fetch-User", "?1")
	} else {
		h.Set("DNT", "0")
		h.Set("User-Agent", p.userAgent)
	}
	return h
}
