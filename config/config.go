package config

import (
	"fmt"
	"strings"
	"time"
)

// Supported page source engines.
const (
	EngineColly   = "colly"
	EngineHTTP    = "http"
	EngineBrowser = "browser"
)

// Config holds scraper configuration.
type Config struct {
	Profile            string
	ProfilesFile       string
	PageURL            string // overrides the profile's page URL template
	Engine             string // colly, http, or browser
	MaxPages           int
	Parallelism        int
	Delay              time.Duration
	Timeout            time.Duration
	MaxRetries         int
	RetryBackoff       time.Duration
	RetryBackoffMax    time.Duration
	OutputFile         string
	OutputFormat       string // comma separated: csv, json, jsonl, html; dual is csv,jsonl
	CSVBOM             bool
	UserAgent          string
	Headless           bool
	Verbose            bool
	RespectRobotsTxt   bool
	MetricsAddr        string
	PipelineBufferSize int
	BatchSize          int
	DedupeMaxSize      int
}

// DefaultConfig returns conservative defaults for the demo target.
func DefaultConfig() *Config {
	return &Config{
		Profile:            "books",
		Engine:             EngineColly,
		MaxPages:           50,
		Parallelism:        1,
		Delay:              0,
		Timeout:            15 * time.Second,
		MaxRetries:         0,
		RetryBackoff:       200 * time.Millisecond,
		RetryBackoffMax:    2 * time.Second,
		OutputFile:         "output/products.csv",
		OutputFormat:       "csv",
		CSVBOM:             true,
		UserAgent:          "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		Headless:           true,
		Verbose:            false,
		RespectRobotsTxt:   false,
		PipelineBufferSize: 512,
		BatchSize:          64,
		DedupeMaxSize:      100000,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.Profile == "" {
		return fmt.Errorf("profile cannot be empty")
	}
	switch c.Engine {
	case EngineColly, EngineHTTP, EngineBrowser:
	default:
		return fmt.Errorf("engine must be colly, http, or browser")
	}
	if c.MaxPages <= 0 {
		return fmt.Errorf("max pages must be positive")
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive")
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	if _, err := ParseFormats(c.OutputFormat); err != nil {
		return err
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.PipelineBufferSize <= 0 {
		return fmt.Errorf("pipeline buffer size must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}

	return nil
}

// ParseFormats splits a comma separated output format list, lower-cases it,
// expands "dual" to csv and jsonl, and drops repeats. Order is kept; the
// first format is the primary output.
func ParseFormats(list string) ([]string, error) {
	var formats []string
	seen := make(map[string]bool)
	add := func(f string) {
		if !seen[f] {
			seen[f] = true
			formats = append(formats, f)
		}
	}
	for _, raw := range strings.Split(list, ",") {
		f := strings.ToLower(strings.TrimSpace(raw))
		switch f {
		case "":
			continue
		case "csv", "json", "jsonl", "html":
			add(f)
		case "dual":
			add("csv")
			add("jsonl")
		default:
			return nil, fmt.Errorf("output format %q must be csv, json, jsonl, dual, or html", f)
		}
	}
	if len(formats) == 0 {
		return nil, fmt.Errorf("output format cannot be empty")
	}
	return formats, nil
}
