package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/dedupe"
	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/aluiziolira/go-scrape-catalog/source"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// PageSource returns the item elements of one listing page. An empty page
// means there are no further pages.
type PageSource interface {
	Fetch(ctx context.Context, index int) (*source.Page, error)
}

// Scraper walks listing pages 1, 2, 3, ... until the source runs dry.
type Scraper struct {
	cfg       *config.Config
	profile   *config.Profile
	src       PageSource
	extractor *Extractor
	limiter   *rate.Limiter
	seen      *dedupe.Filter // reset by every Run
	Metrics   *Metrics
}

// NewScraper builds a scraper that reads pages from src and extracts
// records according to profile.
func NewScraper(cfg *config.Config, profile *config.Profile, src PageSource) *Scraper {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.Delay > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.Delay), 1)
	}
	return &Scraper{
		cfg:       cfg,
		profile:   profile,
		src:       src,
		extractor: NewExtractor(profile),
		limiter:   limiter,
		Metrics:   NewMetrics(),
	}
}

type fetchResult struct {
	index   int
	page    *source.Page
	err     error
	retried []error
}

// Run paginates until an empty page, a fatal fetch error, cancellation or
// MaxPages. The result always carries the records collected so far; the
// returned error is the fetch error or context error that ended the run.
//
// With Parallelism > 1 pages are fetched in windows but consumed strictly
// in index order, so the output matches a sequential run.
func (s *Scraper) Run(ctx context.Context) (*models.RunResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	result := &models.RunResult{
		StartTime:    time.Now(),
		ErrorsByType: make(map[string]int),
	}
	seen, err := dedupe.NewFilter(s.cfg.DedupeMaxSize)
	if err != nil {
		slog.Warn("duplicate tracking disabled", slog.Any("error", err))
	}
	s.seen = seen
	defer func() {
		result.EndTime = time.Now()
	}()

	next := 1
	for {
		if next > s.cfg.MaxPages {
			result.StopReason = models.StopMaxPages
			slog.Warn("max pages reached before the source ran out",
				slog.Int("max_pages", s.cfg.MaxPages),
				slog.Int("records", len(result.Records)),
			)
			return result, nil
		}

		width := s.cfg.Parallelism
		if remaining := s.cfg.MaxPages - next + 1; width > remaining {
			width = remaining
		}

		window := s.fetchWindow(ctx, next, width)
		for i, fr := range window {
			stop, err := s.consume(ctx, fr, result)
			if !stop {
				continue
			}
			for _, skipped := range window[i+1:] {
				s.Metrics.IncPage("discarded")
				slog.Debug("discarding page fetched past the end", slog.Int("page", skipped.index))
			}
			return result, err
		}
		next += width
	}
}

func (s *Scraper) fetchWindow(ctx context.Context, first, width int) []fetchResult {
	window := make([]fetchResult, width)
	if width == 1 {
		window[0] = s.fetchWithRetry(ctx, first)
		return window
	}

	var g errgroup.Group
	for i := 0; i < width; i++ {
		i := i
		g.Go(func() error {
			window[i] = s.fetchWithRetry(ctx, first+i)
			return nil
		})
	}
	_ = g.Wait()
	return window
}

func (s *Scraper) fetchWithRetry(ctx context.Context, index int) fetchResult {
	fr := fetchResult{index: index}
	for attempt := 0; ; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			fr.err = err
			return fr
		}

		start := time.Now()
		page, err := s.src.Fetch(ctx, index)
		s.Metrics.ObserveFetch(time.Since(start))
		if err == nil {
			fr.page = page
			return fr
		}

		if ctx.Err() != nil || attempt >= s.cfg.MaxRetries || !source.Retryable(err) {
			fr.err = err
			return fr
		}

		fr.retried = append(fr.retried, err)
		s.Metrics.IncRetries()
		delay := s.backoff(attempt + 1)
		slog.Warn("page fetch failed, retrying",
			slog.Int("page", index),
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay),
			slog.Any("error", err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			fr.err = ctx.Err()
			return fr
		case <-timer.C:
		}
	}
}

// consume folds one fetched page into result and reports whether the run
// ends here.
func (s *Scraper) consume(ctx context.Context, fr fetchResult, result *models.RunResult) (bool, error) {
	result.RetryCount += len(fr.retried)
	for _, err := range fr.retried {
		s.recordError(result, err)
	}

	if fr.err != nil {
		if ctx.Err() != nil || errors.Is(fr.err, context.Canceled) {
			result.StopReason = models.StopCanceled
			slog.Info("run canceled", slog.Int("page", fr.index), slog.Int("records", len(result.Records)))
			return true, fr.err
		}
		if s.profile.EndOnNotFound && source.IsNotFound(fr.err) {
			result.PageCount++
			result.LastPage = fr.index
			result.StopReason = models.StopExhausted
			s.Metrics.IncPage("empty")
			slog.Info("page not found, treating as end of listing", slog.Int("page", fr.index))
			return true, nil
		}

		s.recordError(result, fr.err)
		s.Metrics.IncPage("error")
		result.StopReason = models.StopFetchError
		slog.Error("page fetch failed, stopping",
			slog.Int("page", fr.index),
			slog.String("category", source.ErrorType(fr.err)),
			slog.Int("records_kept", len(result.Records)),
			slog.Any("error", fr.err),
		)
		return true, fmt.Errorf("page %d: %w", fr.index, fr.err)
	}

	result.PageCount++
	result.LastPage = fr.index

	if fr.page.Empty() {
		result.StopReason = models.StopExhausted
		s.Metrics.IncPage("empty")
		slog.Info("no more items found, stopping", slog.Int("page", fr.index))
		return true, nil
	}

	s.Metrics.IncPage("items")
	s.collect(fr.page, result)
	return false, nil
}

// collect keeps duplicates; they are only counted here so repeats show up
// while pages arrive. dedupe.Records removes them after the run.
func (s *Scraper) collect(page *source.Page, result *models.RunResult) {
	kept, duplicates := 0, 0
	for i, item := range page.Elements {
		rec, err := s.extractor.Extract(item, page.URL)
		if err != nil {
			result.DroppedCount++
			if errors.Is(err, ErrMissingName) {
				s.Metrics.IncDropped("missing_name")
				slog.Debug("skipping item without name", slog.Int("page", page.Index), slog.Int("item", i))
				continue
			}
			s.Metrics.IncDropped("extract_error")
			slog.Warn("failed to extract item",
				slog.Int("page", page.Index),
				slog.Int("item", i),
				slog.Any("error", err),
			)
			continue
		}

		rec.Page = page.Index
		for _, field := range s.extractor.Missing(rec) {
			s.Metrics.IncMissing(field)
		}
		if s.seen != nil && s.seen.Seen(rec) {
			duplicates++
			result.DuplicateCount++
			s.Metrics.IncDuplicate()
			slog.Debug("duplicate item",
				slog.Int("page", page.Index),
				slog.Int("item", i),
				slog.String("name", rec.Name),
				slog.String("link", rec.Link),
			)
		}
		s.Metrics.IncRecords()
		result.Records = append(result.Records, rec)
		kept++
	}

	slog.Info("page scraped",
		slog.Int("page", page.Index),
		slog.Int("items", len(page.Elements)),
		slog.Int("records", kept),
		slog.Int("duplicates", duplicates),
		slog.Int("total", len(result.Records)),
	)
}

func (s *Scraper) recordError(result *models.RunResult, err error) {
	category := source.ErrorType(err)
	result.ErrorCount++
	result.ErrorsByType[category]++
	s.Metrics.IncError(category)
}

func (s *Scraper) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := s.cfg.RetryBackoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	max := s.cfg.RetryBackoffMax
	delay := base
	for i := 1; i < attempt; i++ {
		if max > 0 && delay >= max {
			break
		}
		if delay > math.MaxInt64/2 {
			delay = math.MaxInt64
			break
		}
		delay *= 2
	}
	if max > 0 && delay > max {
		delay = max
	}
	return delay
}
