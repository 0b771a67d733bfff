package serp

import (
	"context"
	"log/slog"
	"time"

	"github.com/FranksOps/serpdiff/internal/metrics"
	"github.com/FranksOps/serpdiff/pkg/ratelimit"
)

// CollectorConfig controls how many pages are fetched per query and how the
// collector paces itself.
type CollectorConfig struct {
	Engine          Engine
	ResultsPerQuery int
	MaxPages        int
	// PreFetchDelay is slept before the first request of every query.
	PreFetchDelay ratelimit.Range
	// InterPageDelay is slept before each follow-up page of a query.
	InterPageDelay ratelimit.Range
	// Robots, when set, is consulted before every page request.
	Robots RobotsChecker
}

// DefaultCollectorConfig returns the DuckDuckGo settings: ten results from at
// most two pages with randomized pauses.
func DefaultCollectorConfig() CollectorConfig {
	return CollectorConfig{
		Engine:          DuckDuckGo(),
		ResultsPerQuery: 10,
		MaxPages:        2,
		PreFetchDelay:   ratelimit.Range{Min: 10 * time.Second, Max: 100 * time.Second},
		InterPageDelay:  ratelimit.Range{Min: 5 * time.Second, Max: 15 * time.Second},
	}
}

// Collector gathers the ranked organic URLs for one query at a time. It is
// safe for concurrent use when its PageFetcher is.
type Collector struct {
	cfg       CollectorConfig
	fetcher   PageFetcher
	extractor *Extractor
	logger    *slog.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewCollector creates a Collector fetching pages through fetcher.
func NewCollector(cfg CollectorConfig, fetcher PageFetcher, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ResultsPerQuery <= 0 {
		cfg.ResultsPerQuery = 10
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 2
	}
	if cfg.Engine.BaseURL == "" {
		cfg.Engine = DuckDuckGo()
	}
	return &Collector{
		cfg:       cfg,
		fetcher:   fetcher,
		extractor: NewExtractor(cfg.Engine.Extractor),
		logger:    logger.With("engine", cfg.Engine.Name),
		sleep:     ratelimit.Sleep,
	}
}

// Name returns the engine name the collector queries.
func (c *Collector) Name() string {
	return c.cfg.Engine.Name
}

// Collect returns up to ResultsPerQuery distinct URLs for query.
func (c *Collector) Collect(ctx context.Context, query string) ([]string, error) {
	return c.Search(ctx, query, c.cfg.ResultsPerQuery)
}

// Search returns up to limit distinct URLs for query, in rank order. Failed
// or blocked pages contribute nothing. The error is non-nil only when ctx
// ends, in which case the URLs gathered so far are returned with it.
func (c *Collector) Search(ctx context.Context, query string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = c.cfg.ResultsPerQuery
	}

	if err := c.pause(ctx, c.cfg.PreFetchDelay); err != nil {
		return nil, err
	}

	results := make([]string, 0, limit)
	seen := make(map[string]struct{}, limit)

	for page := 0; page < c.cfg.MaxPages && len(results) < limit; page++ {
		if page > 0 {
			if err := c.pause(ctx, c.cfg.InterPageDelay); err != nil {
				return results, err
			}
		}

		urls, err := c.fetchPage(ctx, query, page)
		if err != nil {
			return results, err
		}
		for _, u := range urls {
			if _, dup := seen[u]; dup {
				continue
			}
			seen[u] = struct{}{}
			results = append(results, u)
		}
	}

	if len(results) > limit {
		results = results[:limit]
	}
	metrics.RecordQuery(c.cfg.Engine.Name, len(results), limit)
	return results, nil
}

func (c *Collector) pause(ctx context.Context, r ratelimit.Range) error {
	if !r.Enabled() {
		return ctx.Err()
	}
	return c.sleep(ctx, r.Pick())
}

func (c *Collector) fetchPage(ctx context.Context, query string, page int) ([]string, error) {
	target := c.cfg.Engine.URL(query, page)

	if c.cfg.Robots != nil {
		allowed, err := c.cfg.Robots.Allowed(ctx, target)
		if err != nil {
			c.logger.Warn("robots.txt check failed", "url", target, "err", err)
		} else if !allowed {
			c.logger.Warn("result page disallowed by robots.txt", "url", target)
			return nil, nil
		}
	}

	p, err := c.fetcher.Fetch(ctx, target)
	if err != nil {
		return nil, err
	}
	if p.Failed() {
		c.logger.Warn("result page fetch failed",
			"query", query,
			"page", page,
			"status", p.StatusCode,
			"blocked_by", p.BlockedBy,
			"err", p.Error,
		)
		return nil, nil
	}

	urls := c.extractor.ExtractBytes(p.Body)
	c.logger.Debug("result page extracted", "query", query, "page", page, "found", len(urls))
	return urls, nil
}
