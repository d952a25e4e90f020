// Package extract pulls page metadata and outbound links from fetched HTML.
package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/novasearch/novacrawler/internal/crawler"
)

// descriptionFallbackLen caps the body-text fallback used when a page has
// no meta description.
const descriptionFallbackLen = 200

// PageData is everything the worker needs from one parsed document.
type PageData struct {
	Title       string
	Description string
	Keywords    string
	// NoIndex is set when robots meta asks not to index, or the title is a
	// soft-404 ("404" in the title text).
	NoIndex bool
	// Links are absolute, crawlable outbound URLs resolved against the
	// final fetch URL. Not yet normalized.
	Links []string
	// IconURL is the resolved favicon link, or "" when the page declares
	// none.
	IconURL string
}

// Parse extracts metadata from an HTML body. baseURL must be the final URL
// the body was fetched from; relative references are resolved against it.
func Parse(body []byte, baseURL string) (*PageData, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	data := &PageData{
		Title:       strings.TrimSpace(doc.Find("title").First().Text()),
		Description: metaContent(doc, "description"),
		Keywords:    metaContent(doc, "keywords"),
	}

	if strings.Contains(strings.ToLower(metaContent(doc, "robots")), "noindex") {
		data.NoIndex = true
	}
	if strings.Contains(data.Title, "404") {
		data.NoIndex = true
	}

	if data.Description == "" {
		data.Description = bodyTextFallback(doc)
	}

	data.Links = collectLinks(doc, base)
	data.IconURL = iconLink(doc, base)
	return data, nil
}

func metaContent(doc *goquery.Document, name string) string {
	var content string
	doc.Find("meta").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !strings.EqualFold(s.AttrOr("name", ""), name) {
			return true
		}
		content = strings.TrimSpace(s.AttrOr("content", ""))
		return false
	})
	return content
}

// bodyTextFallback builds a description from the first paragraph-like text
// on the page when no meta description exists.
func bodyTextFallback(doc *goquery.Document) string {
	var sb strings.Builder
	doc.Find("p, pre").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := strings.Join(strings.Fields(s.Text()), " ")
		if text == "" {
			return true
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(text)
		return sb.Len() < descriptionFallbackLen
	})
	out := sb.String()
	if len(out) > descriptionFallbackLen {
		out = out[:descriptionFallbackLen]
	}
	return strings.TrimSpace(out)
}

func collectLinks(doc *goquery.Document, base *url.URL) []string {
	seen := make(map[string]struct{})
	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref).String()
		if !crawler.IsCrawlableLink(abs) {
			return
		}
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		links = append(links, abs)
	})
	return links
}

// iconLink finds the first <link> whose rel mentions "icon" and resolves
// its href. Callers fall back to /favicon.ico when this returns "".
func iconLink(doc *goquery.Document, base *url.URL) string {
	var icon string
	doc.Find("link[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		rel := strings.ToLower(s.AttrOr("rel", ""))
		if !strings.Contains(rel, "icon") {
			return true
		}
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" {
			return true
		}
		ref, err := url.Parse(href)
		if err != nil {
			return true
		}
		icon = base.ResolveReference(ref).String()
		return false
	})
	return icon
}
