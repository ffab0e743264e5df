// Package extractor implements the media-resolution pipeline: given an
// arbitrary URL, three strategies are tried in a fixed priority order and
// the first one to produce media wins.
//
//  1. Direct fetch, attempted only when the URL looks like a media file
//     (extension or probed content type).
//  2. yt-dlp platform extraction, best effort: any failure here means
//     "this strategy found nothing" and the chain moves on.
//  3. HTML scraping, which discovers candidate media URLs in the page and
//     feeds each one back through the direct fetcher.
//
// The ordering is a cost/precision trade-off: cheapest and most precise
// check first, most expensive and heuristic last.
package extractor

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// Config carries the pipeline's tunables. Zero values fall back to the
// reference policy.
type Config struct {
	DocumentMaxBytes int64         // hard byte ceiling for any single download
	FetchTimeout     time.Duration // per-request bound for fetches and probes
	FetchRetries     int           // bounded retry budget for transport failures
	FetchRetryDelay  time.Duration
	UserAgent        string
	MaxCandidates    int // scraper cap, applied before any download
	MinDimension     int // scraper skips images declared smaller than this
	YTDLPPath        string
	YTDLPTimeout     time.Duration
	TempDir          string // defaults to os.TempDir()
}

func (c Config) withDefaults() Config {
	if c.DocumentMaxBytes <= 0 {
		c.DocumentMaxBytes = 3 << 30
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 30 * time.Second
	}
	if c.FetchRetries <= 0 {
		c.FetchRetries = 3
	}
	if c.FetchRetryDelay <= 0 {
		c.FetchRetryDelay = 2 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	if c.MaxCandidates <= 0 {
		c.MaxCandidates = 5
	}
	if c.MinDimension <= 0 {
		c.MinDimension = 100
	}
	if c.YTDLPPath == "" {
		c.YTDLPPath = "yt-dlp"
	}
	if c.YTDLPTimeout <= 0 {
		c.YTDLPTimeout = 5 * time.Minute
	}
	return c
}

// Extractor resolves URLs into downloadable media descriptors.
type Extractor struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Extractor{
		cfg:    cfg,
		logger: logger,
		http:   &http.Client{Timeout: cfg.FetchTimeout},
	}
}

func (x *Extractor) tempDir() string {
	if x.cfg.TempDir != "" {
		return x.cfg.TempDir
	}
	return os.TempDir()
}

// Extract runs the strategy chain for one URL. It returns ErrInvalidURL
// without touching the network for malformed input, the first non-empty
// strategy result otherwise, and ErrNoMediaFound once the chain is
// exhausted. A failure on the direct path (when the URL itself looked like
// media) is surfaced as-is; yt-dlp failures only demote to the next
// strategy.
func (x *Extractor) Extract(ctx context.Context, rawURL string) ([]*Media, error) {
	if !ValidURL(rawURL) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	x.logger.Info("extract_start", "url", rawURL)

	if x.LooksLikeMedia(ctx, rawURL) {
		return x.FetchDirect(ctx, rawURL)
	}

	media, err := x.FetchYTDLP(ctx, rawURL)
	switch {
	case err != nil:
		// Strategy errored (unsupported site, no formats, binary missing):
		// explicit policy is to treat that the same as "found nothing".
		x.logger.Debug("ytdlp_strategy_failed", "url", rawURL, "error", err.Error())
	case len(media) > 0:
		return media, nil
	}

	media, err = x.ScrapePage(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if len(media) > 0 {
		return media, nil
	}
	return nil, fmt.Errorf("%w at %s", ErrNoMediaFound, rawURL)
}
