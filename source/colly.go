package source

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/gocolly/colly/v2"
)

// CollySource fetches listing pages with a colly collector. Each Fetch runs
// on a fresh clone of the base collector so callbacks and parsed documents
// never outlive the page.
type CollySource struct {
	profile   *config.Profile
	collector *colly.Collector
}

// NewCollySource builds the base collector from cfg.
func NewCollySource(profile *config.Profile, cfg *config.Config) (*CollySource, error) {
	parsed, err := url.Parse(profile.URLFor(1))
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("page url must include a host")
	}

	collector := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)
	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        16,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	return &CollySource{
		profile:   profile,
		collector: collector,
	}, nil
}

// WithTransport swaps the HTTP transport, mainly for tests.
func (s *CollySource) WithTransport(rt http.RoundTripper) {
	s.collector.WithTransport(rt)
}

// Fetch loads one listing page and returns its item elements.
func (s *CollySource) Fetch(ctx context.Context, index int) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	target := s.profile.URLFor(index)
	c := s.collector.Clone()

	page := &Page{Index: index}
	var fetchErr error

	c.OnResponse(func(r *colly.Response) {
		page.URL = r.Request.URL
	})
	c.OnHTML("html", func(e *colly.HTMLElement) {
		page.Elements = selectionsOf(e.DOM.Find(s.profile.ItemSelector))
	})
	c.OnError(func(r *colly.Response, err error) {
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = Classify(err, status)
	})

	slog.Debug("fetching page", slog.Int("page", index), slog.String("url", target))
	if err := c.Visit(target); err != nil && fetchErr == nil {
		fetchErr = Classify(err, 0)
	}
	if fetchErr != nil {
		return nil, fmt.Errorf("fetch %s: %w", target, fetchErr)
	}

	if page.URL == nil {
		page.URL, _ = url.Parse(target)
	}
	if page.Elements == nil {
		page.Elements = []*goquery.Selection{}
	}
	return page, nil
}
