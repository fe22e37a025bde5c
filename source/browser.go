package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/playwright-community/playwright-go"
)

// BrowserSource renders listing pages in headless Chromium. The browser
// process lives for the whole run; every Fetch opens its own
// BrowserContext and closes it before returning.
type BrowserSource struct {
	profile   *config.Profile
	pw        *playwright.Playwright
	browser   playwright.Browser
	userAgent string
	timeoutMs float64
	logger    *slog.Logger
}

// NewBrowserSource starts playwright and launches Chromium.
func NewBrowserSource(profile *config.Profile, cfg *config.Config) (*BrowserSource, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(cfg.Headless),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
		},
	})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	return &BrowserSource{
		profile:   profile,
		pw:        pw,
		browser:   browser,
		userAgent: cfg.UserAgent,
		timeoutMs: float64(cfg.Timeout.Milliseconds()),
		logger:    slog.Default().With("component", "browser"),
	}, nil
}

// Fetch navigates to one listing page and returns its item elements.
func (s *BrowserSource) Fetch(ctx context.Context, index int) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	target := s.profile.URLFor(index)

	bctx, err := s.browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent:       playwright.String(s.userAgent),
		AcceptDownloads: playwright.Bool(false),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}
	defer func() {
		if err := bctx.Close(); err != nil {
			s.logger.Debug("close browser context", slog.Any("error", err))
		}
	}()

	page, err := bctx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}
	page.SetDefaultTimeout(s.timeoutMs)

	s.logger.Debug("navigating", slog.Int("page", index), slog.String("url", target))
	resp, err := page.Goto(target, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(s.timeoutMs),
	})
	if err != nil {
		return nil, fmt.Errorf("navigate %s: %w", target, Classify(err, 0))
	}
	if resp != nil {
		if classified := Classify(nil, resp.Status()); classified != nil {
			return nil, fmt.Errorf("navigate %s: %w", target, classified)
		}
	}

	if err := page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateDomcontentloaded,
		Timeout: playwright.Float(s.timeoutMs),
	}); err != nil {
		return nil, fmt.Errorf("load %s: %w", target, Classify(err, 0))
	}

	// A missing ready selector usually means the listing is empty; let
	// the item query decide instead of failing the page.
	if s.profile.ReadySelector != "" {
		err := page.Locator(s.profile.ReadySelector).First().WaitFor(playwright.LocatorWaitForOptions{
			Timeout: playwright.Float(s.timeoutMs),
		})
		if err != nil && !errors.Is(err, playwright.ErrTimeout) {
			return nil, fmt.Errorf("wait for %q: %w", s.profile.ReadySelector, err)
		}
		if err != nil {
			s.logger.Debug("ready selector not found", slog.Int("page", index), slog.String("selector", s.profile.ReadySelector))
		}
	}

	content, err := page.Content()
	if err != nil {
		return nil, fmt.Errorf("read content %s: %w", target, err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", target, err)
	}

	pageURL, err := url.Parse(page.URL())
	if err != nil || pageURL.Host == "" {
		pageURL, _ = url.Parse(target)
	}

	return &Page{
		Index:    index,
		URL:      pageURL,
		Elements: selectionsOf(doc.Find(s.profile.ItemSelector)),
	}, nil
}

// Close shuts down the browser and the playwright driver.
func (s *BrowserSource) Close() error {
	var errs []error
	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}
	if s.pw != nil {
		if err := s.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}
	return errors.Join(errs...)
}
