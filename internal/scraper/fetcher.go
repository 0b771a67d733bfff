// Package scraper fetches search result pages through the rotating,
// fingerprinted HTTP stack and audits robots.txt before collection.
package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/FranksOps/serpdiff/internal/bypass"
	"github.com/FranksOps/serpdiff/internal/fingerprint"
	"github.com/FranksOps/serpdiff/internal/metrics"
	"github.com/FranksOps/serpdiff/internal/storage"
	"github.com/FranksOps/serpdiff/pkg/httpclient"
	"github.com/FranksOps/serpdiff/pkg/proxy"
	"github.com/FranksOps/serpdiff/pkg/ratelimit"
	"github.com/FranksOps/serpdiff/pkg/useragent"
	"github.com/google/uuid"
)

// maxBodyBytes caps how much of a result page is read into memory.
const maxBodyBytes = 8 << 20

// FetchConfig configures the HTTP side of page collection.
type FetchConfig struct {
	// Provider labels metrics, e.g. "duckduckgo".
	Provider     string
	Timeout      time.Duration
	MaxRedirects int
	UseCookieJar bool
	ProxyPool    *proxy.Pool
	UAPool       *useragent.Pool
	Rotation     useragent.Rotation
	Fingerprint  fingerprint.Profile
	Limiter      *ratelimit.Limiter
	// Detectors defaults to bypass.DefaultDetectors.
	Detectors []bypass.Detector
}

// Fetcher performs single URL fetches using the configured transport stack.
type Fetcher struct {
	config FetchConfig
	client *httpclient.Client
}

// NewFetcher initializes a new Fetcher with the given configuration.
// A single client is held across requests so cookie jars (if configured)
// persist for the lifetime of the Fetcher.
func NewFetcher(cfg FetchConfig) (*Fetcher, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UAPool == nil {
		cfg.UAPool = useragent.NewPool(nil)
	}
	if cfg.Fingerprint == "" {
		cfg.Fingerprint = fingerprint.ProfileChrome
	}
	if cfg.Detectors == nil {
		cfg.Detectors = bypass.DefaultDetectors()
	}

	// One transport per fetcher keeps connection pooling; the proxy is chosen
	// per request and travels in the request context.
	transport, err := fingerprint.Transport(cfg.Fingerprint, proxy.RequestFunc)
	if err != nil {
		return nil, fmt.Errorf("setup transport: %w", err)
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.Timeout,
		MaxRedirects: cfg.MaxRedirects,
		UseCookieJar: cfg.UseCookieJar,
		Transport:    transport,
	})
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	return &Fetcher{
		config: cfg,
		client: client,
	}, nil
}

// UserAgent returns the User-Agent the fetcher would send next without
// consuming a sequential slot. It is used for robots.txt group matching.
func (f *Fetcher) UserAgent() string {
	all := f.config.UAPool.GetAll()
	if len(all) == 0 {
		return "*"
	}
	return all[0]
}

// ProxyPool returns the pool requests rotate over, or nil.
func (f *Fetcher) ProxyPool() *proxy.Pool {
	return f.config.ProxyPool
}

// Fetch executes a GET request to targetURL. Transport failures, non-2xx
// statuses and block pages are reported on the returned Page, never as an
// error; the error is non-nil only when ctx ends before the fetch completes.
func (f *Fetcher) Fetch(ctx context.Context, targetURL string) (*storage.Page, error) {
	page := &storage.Page{
		ID:        uuid.NewString(),
		URL:       targetURL,
		Method:    http.MethodGet,
		CreatedAt: time.Now().UTC(),
	}

	if f.config.Limiter != nil {
		if err := f.config.Limiter.Wait(ctx); err != nil {
			page.Error = fmt.Sprintf("rate limiter: %v", err)
			return page, err
		}
	}

	start := time.Now()
	defer func() {
		page.Duration = time.Since(start)
		metrics.RecordPage(f.config.Provider, page)
	}()

	activeProxy := f.config.ProxyPool.Next()
	if activeProxy != nil {
		ctx = proxy.WithURL(ctx, activeProxy)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		page.Error = fmt.Sprintf("build request: %v", err)
		return page, nil
	}
	req.Header.Set("User-Agent", f.config.UAPool.Get(f.config.Rotation))

	resp, err := f.client.Do(ctx, req)
	if err != nil {
		if activeProxy != nil {
			_ = f.config.ProxyPool.MarkFailure(activeProxy)
			metrics.ProxyFailures.WithLabelValues(activeProxy.Redacted()).Inc()
		}
		page.Error = fmt.Sprintf("request failed: %v", err)
		return page, ctx.Err()
	}
	defer resp.Body.Close()

	if activeProxy != nil {
		_ = f.config.ProxyPool.MarkSuccess(activeProxy)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		page.Error = fmt.Sprintf("read body: %v", err)
	}

	page.StatusCode = resp.StatusCode
	page.Headers = resp.Header
	page.Body = body
	if resp.Request != nil && resp.Request.URL != nil {
		page.URL = resp.Request.URL.String()
	}

	bypass.Analyze(page, f.config.Detectors)

	return page, nil
}
