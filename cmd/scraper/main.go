package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/dedupe"
	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/aluiziolira/go-scrape-catalog/pipeline"
	"github.com/aluiziolira/go-scrape-catalog/scraper"
	"github.com/aluiziolira/go-scrape-catalog/source"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	os.Exit(run())
}

func run() int {
	defaultCfg := config.DefaultConfig()
	envCfg, err := applyEnv(defaultCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	profileName := flag.String("profile", envCfg.Profile, "Site profile to scrape (books, lulu, quotes, or one from -profiles)")
	profilesFile := flag.String("profiles", envCfg.ProfilesFile, "YAML, JSON or TOML file with extra site profiles")
	pageURL := flag.String("url", "", "Override the profile's page URL template (use {page} for the index)")
	envEngine, _ := config.EnvString("SCRAPER_ENGINE")
	engine := flag.String("engine", envEngine, "Page source engine: colly, http, or browser (default: the profile's engine, else colly)")
	maxPages := flag.Int("pages", envCfg.MaxPages, "Maximum listing pages to visit")
	parallelism := flag.Int("parallel", envCfg.Parallelism, "Pages fetched per window (1 = sequential)")
	delay := flag.Duration("delay", envCfg.Delay, "Minimum delay between page fetches")
	timeout := flag.Duration("timeout", envCfg.Timeout, "Per-page fetch timeout")
	maxRetries := flag.Int("max-retries", envCfg.MaxRetries, "Retry attempts for timeouts, connection errors and 429s (0 stops on first failure)")
	retryBackoffMs := flag.Int("retry-backoff", int(envCfg.RetryBackoff/time.Millisecond), "Initial retry backoff (milliseconds)")
	retryBackoffMaxMs := flag.Int("retry-backoff-max", int(envCfg.RetryBackoffMax/time.Millisecond), "Maximum retry backoff (milliseconds)")
	respectRobots := flag.Bool("respect-robots", false, "Respect robots.txt directives")
	outputFile := flag.String("output", envCfg.OutputFile, "Output file path")
	outputFormat := flag.String("format", envCfg.OutputFormat, "Comma-separated output formats: csv, json, jsonl, html, or dual (csv,jsonl); extra formats are written next to -output")
	noBOM := flag.Bool("no-bom", false, "Do not prefix CSV output with a UTF-8 byte order mark")
	headless := flag.Bool("headless", envCfg.Headless, "Run the browser engine headless")
	verbose := flag.Bool("v", false, "Enable verbose logging")
	metricsAddr := flag.String("metrics-addr", envCfg.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")

	flag.Parse()

	logger, level := newLogger(*verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	cfg := config.DefaultConfig()
	cfg.Profile = *profileName
	cfg.ProfilesFile = *profilesFile
	cfg.PageURL = *pageURL
	cfg.MaxPages = *maxPages
	cfg.Parallelism = *parallelism
	cfg.Delay = *delay
	cfg.Timeout = *timeout
	cfg.MaxRetries = *maxRetries
	cfg.RetryBackoff = time.Duration(*retryBackoffMs) * time.Millisecond
	cfg.RetryBackoffMax = time.Duration(*retryBackoffMaxMs) * time.Millisecond
	cfg.RespectRobotsTxt = *respectRobots
	cfg.OutputFile = *outputFile
	cfg.OutputFormat = strings.ToLower(*outputFormat)
	cfg.CSVBOM = !*noBOM
	cfg.Headless = *headless
	cfg.Verbose = *verbose
	cfg.MetricsAddr = *metricsAddr

	profile, err := config.ResolveProfile(cfg.Profile, cfg.ProfilesFile)
	if err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		return 1
	}
	cfg.Engine = config.ResolveEngine(*engine, profile)
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		return 1
	}
	if cfg.PageURL != "" {
		profile.PageURL = cfg.PageURL
		if err := profile.Validate(); err != nil {
			slog.Error("invalid configuration", slog.Any("error", err))
			return 1
		}
	}

	slog.Info("starting scrape",
		slog.String("profile", profile.Name),
		slog.String("url", profile.URLFor(1)),
		slog.String("engine", cfg.Engine),
		slog.Int("max_pages", cfg.MaxPages),
		slog.Int("parallel", cfg.Parallelism),
	)

	src, closeSource, err := newSource(profile, cfg)
	if err != nil {
		slog.Error("initialising page source", slog.Any("error", err))
		return 1
	}
	defer closeSource()

	s := scraper.NewScraper(cfg, profile, src)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, keeping records scraped so far")
	}()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" && s.Metrics != nil {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(s.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
		defer shutdownMetrics(metricsServer)
	}

	result, runErr := s.Run(ctx)
	if runErr != nil {
		slog.Error("scraping stopped early", slog.Any("error", runErr), slog.Int("records", len(result.Records)))
	}

	records := dedupe.Records(result.Records)
	if removed := len(result.Records) - len(records); removed > 0 {
		slog.Info("duplicates removed", slog.Int("removed", removed), slog.Int("unique", len(records)))
	}

	if len(records) == 0 {
		slog.Warn("no records scraped, nothing written")
		printSummary(result, pipeline.Stats{}, cfg.OutputFile)
		return 0
	}

	stats, err := persist(cfg, profile, records)
	if err != nil {
		slog.Error("writing output failed", slog.Any("error", err))
		return 1
	}
	printSummary(result, stats, cfg.OutputFile)
	return 0
}

// persist writes records through the pipeline in scrape order.
func persist(cfg *config.Config, profile *config.Profile, records []*models.Record) (pipeline.Stats, error) {
	writer, err := pipeline.NewWriter(cfg.OutputFormat, cfg.OutputFile, pipeline.WriterOptions{
		ExtraColumns: profile.ExtraNames(),
		BOM:          cfg.CSVBOM,
		Title:        profile.Name + " catalog",
	})
	if err != nil {
		return pipeline.Stats{}, fmt.Errorf("create writer: %w", err)
	}

	p := pipeline.NewPipeline(context.Background(), writer, cfg)
	if err := p.Process(records...); err != nil {
		_ = p.Close()
		_ = writer.Close()
		return p.Stats(), fmt.Errorf("process records: %w", err)
	}
	if err := p.Close(); err != nil {
		_ = writer.Close()
		return p.Stats(), fmt.Errorf("pipeline shutdown: %w", err)
	}
	stats := p.Stats()
	slog.Debug("pipeline finished",
		slog.Int("written", stats.Written),
		slog.Int("invalid", stats.Invalid),
		slog.Int("duplicates", stats.Duplicates),
	)
	if err := writer.Validate(); err != nil {
		_ = writer.Close()
		return stats, fmt.Errorf("output validation: %w", err)
	}
	if err := writer.Close(); err != nil {
		return stats, fmt.Errorf("close writer: %w", err)
	}
	return stats, nil
}

func newSource(profile *config.Profile, cfg *config.Config) (scraper.PageSource, func(), error) {
	noop := func() {}
	switch cfg.Engine {
	case config.EngineHTTP:
		return source.NewHTTPSource(profile, cfg), noop, nil
	case config.EngineBrowser:
		src, err := source.NewBrowserSource(profile, cfg)
		if err != nil {
			return nil, noop, err
		}
		return src, func() {
			if err := src.Close(); err != nil {
				slog.Error("close browser", slog.Any("error", err))
			}
		}, nil
	default:
		src, err := source.NewCollySource(profile, cfg)
		if err != nil {
			return nil, noop, err
		}
		return src, noop, nil
	}
}

func shutdownMetrics(server *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("metrics server shutdown failed", slog.Any("error", err))
	}
}

func applyEnv(cfg *config.Config) (*config.Config, error) {
	if value, ok := config.EnvString("SCRAPER_PROFILE"); ok {
		cfg.Profile = value
	}
	if value, ok := config.EnvString("SCRAPER_PROFILES_FILE"); ok {
		cfg.ProfilesFile = value
	}
	if value, ok := config.EnvString("SCRAPER_OUTPUT"); ok {
		cfg.OutputFile = value
	}
	if value, ok := config.EnvString("SCRAPER_FORMAT"); ok {
		cfg.OutputFormat = value
	}
	if value, ok := config.EnvString("SCRAPER_METRICS_ADDR"); ok {
		cfg.MetricsAddr = value
	}
	if value, ok, err := config.EnvInt("SCRAPER_PAGES"); err != nil {
		return nil, fmt.Errorf("invalid SCRAPER_PAGES: %w", err)
	} else if ok {
		cfg.MaxPages = value
	}
	if value, ok, err := config.EnvInt("SCRAPER_PARALLEL"); err != nil {
		return nil, fmt.Errorf("invalid SCRAPER_PARALLEL: %w", err)
	} else if ok {
		cfg.Parallelism = value
	}
	if value, ok, err := config.EnvInt("SCRAPER_MAX_RETRIES"); err != nil {
		return nil, fmt.Errorf("invalid SCRAPER_MAX_RETRIES: %w", err)
	} else if ok {
		cfg.MaxRetries = value
	}
	if value, ok, err := config.EnvDuration("SCRAPER_DELAY"); err != nil {
		return nil, fmt.Errorf("invalid SCRAPER_DELAY: %w", err)
	} else if ok {
		cfg.Delay = value
	}
	if value, ok, err := config.EnvDuration("SCRAPER_TIMEOUT"); err != nil {
		return nil, fmt.Errorf("invalid SCRAPER_TIMEOUT: %w", err)
	} else if ok {
		cfg.Timeout = value
	}
	if value, ok, err := config.EnvBool("SCRAPER_HEADLESS"); err != nil {
		return nil, fmt.Errorf("invalid SCRAPER_HEADLESS: %w", err)
	} else if ok {
		cfg.Headless = value
	}
	return cfg, nil
}

func printSummary(result *models.RunResult, stats pipeline.Stats, outputFile string) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Scrape complete")

	fmt.Printf("  Stop reason:   %s\n", result.StopReason)
	fmt.Printf("  Pages:         %d (last %d)\n", result.PageCount, result.LastPage)
	fmt.Printf("  Scraped:       %d\n", len(result.Records))
	fmt.Printf("  Written:       %d\n", stats.Written)
	fmt.Printf("  Dropped items: %d\n", result.DroppedCount)
	fmt.Printf("  Duplicates:    %d\n", result.DuplicateCount)
	fmt.Printf("  Errors:        %d\n", result.ErrorCount)
	fmt.Printf("  Retries:       %d\n", result.RetryCount)
	if len(result.ErrorsByType) > 0 {
		fmt.Printf("  Error types:   %v\n", result.ErrorsByType)
	}
	if stats.Invalid > 0 {
		fmt.Printf("  Invalid:       %d\n", stats.Invalid)
	}
	duration := result.Duration()
	fmt.Printf("  Duration:      %v\n", duration)
	if duration.Seconds() > 0 {
		fmt.Printf("  Items/sec:     %.2f\n", float64(len(result.Records))/duration.Seconds())
	}
	if stats.Written > 0 {
		fmt.Printf("  Output file:   %s\n", outputFile)
	}
	fmt.Println(separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
