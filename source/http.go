package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-scrape-catalog/config"
	"golang.org/x/net/html/charset"
)

const maxBodyBytes = 16 << 20

// HTTPSource fetches listing pages with a plain HTTP client and parses them
// with goquery. Response bodies are decoded to UTF-8 based on the
// Content-Type header and any <meta charset> in the document.
type HTTPSource struct {
	profile   *config.Profile
	client    *http.Client
	userAgent string
}

// NewHTTPSource builds an HTTP source with the configured per-page timeout.
func NewHTTPSource(profile *config.Profile, cfg *config.Config) *HTTPSource {
	return &HTTPSource{
		profile:   profile,
		client:    &http.Client{Timeout: cfg.Timeout},
		userAgent: cfg.UserAgent,
	}
}

// Client exposes the underlying client so tests can mock its transport.
func (s *HTTPSource) Client() *http.Client {
	return s.client
}

// Fetch loads one listing page and returns its item elements.
func (s *HTTPSource) Fetch(ctx context.Context, index int) (*Page, error) {
	target := s.profile.URLFor(index)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", target, err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	slog.Debug("fetching page", slog.Int("page", index), slog.String("url", target))
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", target, Classify(err, 0))
	}
	defer resp.Body.Close()

	if classified := Classify(nil, resp.StatusCode); classified != nil {
		return nil, fmt.Errorf("fetch %s: %w", target, classified)
	}

	reader, err := charset.NewReader(io.LimitReader(resp.Body, maxBodyBytes), resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", target, err)
	}
	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", target, Classify(err, 0))
	}

	pageURL := req.URL
	if resp.Request != nil && resp.Request.URL != nil {
		pageURL = resp.Request.URL
	}
	return &Page{
		Index:    index,
		URL:      pageURL,
		Elements: selectionsOf(doc.Find(s.profile.ItemSelector)),
	}, nil
}
