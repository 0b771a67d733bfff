package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/temoto/robotstxt"
)

// RobotsTxtAuditor fetches, caches and enforces robots.txt per host.
type RobotsTxtAuditor struct {
	fetcher   *Fetcher
	userAgent string
	logger    *slog.Logger
	mu        sync.RWMutex
	cache     map[string]*robotstxt.RobotsData
}

// NewRobotsTxtAuditor creates an auditor that fetches robots.txt files with
// fetcher. userAgent selects the robots group Allowed checks against; empty
// means the fetcher's own User-Agent.
func NewRobotsTxtAuditor(fetcher *Fetcher, userAgent string, logger *slog.Logger) *RobotsTxtAuditor {
	if logger == nil {
		logger = slog.Default()
	}
	if userAgent == "" {
		userAgent = fetcher.UserAgent()
	}
	return &RobotsTxtAuditor{
		fetcher:   fetcher,
		userAgent: userAgent,
		logger:    logger,
		cache:     make(map[string]*robotstxt.RobotsData),
	}
}

// Allowed reports whether targetURL may be fetched by the auditor's User-Agent.
func (r *RobotsTxtAuditor) Allowed(ctx context.Context, targetURL string) (bool, error) {
	return r.IsAllowed(ctx, targetURL, r.userAgent)
}

// IsAllowed determines if the given URL is allowed by the host's robots.txt
// for the provided User-Agent. An unreachable or unparseable robots.txt
// allows everything.
func (r *RobotsTxtAuditor) IsAllowed(ctx context.Context, targetURL string, userAgent string) (bool, error) {
	u, err := url.Parse(targetURL)
	if err != nil {
		return false, fmt.Errorf("invalid url %q: %w", targetURL, err)
	}

	host := u.Scheme + "://" + u.Host

	data, err := r.getOrFetch(ctx, host)
	if err != nil {
		r.logger.Debug("robots.txt unavailable, defaulting to allow", "host", host, "err", err)
		return true, nil
	}
	if data == nil {
		return true, nil
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return data.FindGroup(userAgent).Test(path), nil
}

func (r *RobotsTxtAuditor) getOrFetch(ctx context.Context, host string) (*robotstxt.RobotsData, error) {
	r.mu.RLock()
	data, exists := r.cache[host]
	r.mu.RUnlock()
	if exists {
		return data, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if data, exists = r.cache[host]; exists {
		return data, nil
	}

	page, err := r.fetcher.Fetch(ctx, host+"/robots.txt")
	if err != nil {
		// Cancellation is not cached; the next run may succeed.
		return nil, fmt.Errorf("fetch robots.txt: %w", err)
	}
	if page.Error != "" {
		r.cache[host] = nil
		return nil, fmt.Errorf("fetch robots.txt: %s", page.Error)
	}
	if page.StatusCode >= 400 {
		r.cache[host] = nil
		return nil, nil
	}

	parsed, err := robotstxt.FromBytes(page.Body)
	if err != nil {
		r.cache[host] = nil
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}

	r.cache[host] = parsed
	return parsed, nil
}
