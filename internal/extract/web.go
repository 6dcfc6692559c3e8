package extract

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	colly "github.com/gocolly/colly/v2"

	"knowledge-platform/internal/logger"
	"knowledge-platform/internal/pipeline"
	"knowledge-platform/models"
)

// WebOptions configures the crawler.
type WebOptions struct {
	UserAgent string
	Delay     time.Duration
	Timeout   time.Duration
	MaxPages  int
	MaxDepth  int
}

// WebExtractor crawls a site starting at the source URI and yields one raw
// document per page. Feed sources reuse it with depth 1.
type WebExtractor struct {
	opts WebOptions
}

func NewWebExtractor(opts WebOptions) *WebExtractor {
	if opts.MaxPages <= 0 {
		opts.MaxPages = 50
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 2
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &WebExtractor{opts: opts}
}

// NewFeedExtractor is a single-page crawler for feed-style sources.
func NewFeedExtractor(opts WebOptions) *WebExtractor {
	opts.MaxDepth = 1
	opts.MaxPages = 1
	return NewWebExtractor(opts)
}

func (e *WebExtractor) Extract(ctx context.Context, source *models.Source) ([]pipeline.RawDocument, error) {
	start, err := url.Parse(source.URI)
	if err != nil || start.Host == "" {
		return nil, fmt.Errorf("source %s has an invalid uri %q", source.Name, source.URI)
	}

	c := colly.NewCollector(
		colly.Async(false),
		colly.MaxDepth(e.opts.MaxDepth),
		colly.AllowedDomains(start.Host),
	)
	c.SetRequestTimeout(e.opts.Timeout)
	if e.opts.UserAgent != "" {
		c.UserAgent = e.opts.UserAgent
	}
	if err := c.Limit(&colly.LimitRule{
		DomainGlob: "*",
		Delay:      e.opts.Delay,
	}); err != nil {
		return nil, fmt.Errorf("failed to configure crawl limits: %w", err)
	}

	var (
		mu   sync.Mutex
		docs []pipeline.RawDocument
		seen = make(map[string]bool)
	)

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
		}
	})

	c.OnHTML("html", func(el *colly.HTMLElement) {
		mu.Lock()
		defer mu.Unlock()
		if len(docs) >= e.opts.MaxPages {
			return
		}
		pageURL := normalizeURL(el.Request.URL)
		if seen[pageURL] {
			return
		}
		seen[pageURL] = true

		title, text, err := ParseHTML(bytes.NewReader(el.Response.Body))
		if err != nil || strings.TrimSpace(text) == "" {
			return
		}
		now := time.Now()
		docs = append(docs, pipeline.RawDocument{
			Title:       title,
			Text:        text,
			URI:         pageURL,
			PublishedAt: &now,
		})
	})

	c.OnHTML("a[href]", func(el *colly.HTMLElement) {
		mu.Lock()
		full := len(docs) >= e.opts.MaxPages
		mu.Unlock()
		if full || ctx.Err() != nil {
			return
		}
		link := el.Request.AbsoluteURL(el.Attr("href"))
		if link != "" {
			_ = el.Request.Visit(link)
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		logger.Debug("Crawl request failed", "url", r.Request.URL.String(), "error", err)
	})

	if err := c.Visit(source.URI); err != nil {
		return nil, fmt.Errorf("crawl of %s failed: %w", source.URI, err)
	}
	c.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("crawl of %s yielded no readable pages", source.URI)
	}
	return docs, nil
}

// normalizeURL strips fragments and trailing slashes so the same page is
// never extracted twice.
func normalizeURL(u *url.URL) string {
	cp := *u
	cp.Fragment = ""
	cp.Scheme = strings.ToLower(cp.Scheme)
	cp.Host = strings.ToLower(cp.Host)
	if cp.Path != "/" {
		cp.Path = strings.TrimSuffix(cp.Path, "/")
	}
	return cp.String()
}
