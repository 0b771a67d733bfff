// Package proxy rotates outbound requests over a pool of HTTP proxies and
// benches proxies that keep failing.
package proxy

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

// ErrNotFound is returned when marking a proxy the pool does not hold.
var ErrNotFound = errors.New("proxy not found in pool")

// Proxy represents a single proxy endpoint with health tracking.
type Proxy struct {
	URL           *url.URL
	Failures      int
	Successes     int
	LastUsed      time.Time
	Disabled      bool
	DisabledUntil time.Time
}

// Pool manages a collection of proxies.
type Pool struct {
	mu           sync.Mutex
	proxies      []*Proxy
	currentIndex int
	maxFailures  int
	cooldown     time.Duration
}

// Config defines settings for the Proxy Pool.
type Config struct {
	// MaxFailures before disabling a proxy temporarily.
	MaxFailures int `mapstructure:"max_failures"`
	// Cooldown is how long a proxy remains disabled after hitting MaxFailures.
	Cooldown time.Duration `mapstructure:"cooldown"`
}

// NewPool creates a new proxy pool. If config values are zero, reasonable defaults are used.
func NewPool(cfg Config) *Pool {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	return &Pool{
		maxFailures: cfg.MaxFailures,
		cooldown:    cfg.Cooldown,
	}
}

// FromList builds a pool holding rawURLs. An empty list yields a nil pool,
// which callers treat as "no proxying".
func FromList(cfg Config, rawURLs []string) (*Pool, error) {
	if len(rawURLs) == 0 {
		return nil, nil
	}
	p := NewPool(cfg)
	if err := p.Add(rawURLs...); err != nil {
		return nil, err
	}
	return p, nil
}

// LoadFile reads proxies from a file, expecting one URL per line.
// Lines starting with '#' or empty lines are ignored.
func (p *Pool) LoadFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open proxy list: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	var urls []string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read proxy list %s: %w", path, err)
	}

	return p.Add(urls...)
}

// Add parses raw URL strings and adds them to the pool. A URL without a
// scheme is taken as http; duplicates are ignored.
func (p *Pool) Add(rawURLs ...string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, raw := range rawURLs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !strings.Contains(raw, "://") {
			raw = "http://" + raw
		}
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("parse proxy %q: %w", raw, err)
		}
		if u.Host == "" {
			return fmt.Errorf("parse proxy %q: missing host", raw)
		}
		if p.find(u.String()) != nil {
			continue
		}
		p.proxies = append(p.proxies, &Proxy{URL: u})
	}
	return nil
}

// Len reports how many proxies the pool holds, healthy or not.
func (p *Pool) Len() int {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.proxies)
}

// Next returns the next healthy proxy URL in the pool. It returns nil if no proxies
// are available or if all proxies are currently cooling down.
func (p *Pool) Next() *url.URL {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.proxies) == 0 {
		return nil
	}

	now := time.Now()
	startIndex := p.currentIndex

	for {
		prx := p.proxies[p.currentIndex]
		p.currentIndex = (p.currentIndex + 1) % len(p.proxies)

		if prx.Disabled && now.After(prx.DisabledUntil) {
			prx.Disabled = false
			prx.Failures = 0
		}

		if !prx.Disabled {
			prx.LastUsed = now
			return prx.URL
		}

		if p.currentIndex == startIndex {
			return nil
		}
	}
}

// MarkSuccess records a successful request through proxyURL and forgives one
// earlier failure.
func (p *Pool) MarkSuccess(proxyURL *url.URL) error {
	return p.mark(proxyURL, func(prx *Proxy) {
		prx.Successes++
		if prx.Failures > 0 {
			prx.Failures--
		}
	})
}

// MarkFailure records a failed request through proxyURL. Reaching the
// configured maximum benches the proxy for the cooldown period.
func (p *Pool) MarkFailure(proxyURL *url.URL) error {
	return p.mark(proxyURL, func(prx *Proxy) {
		prx.Failures++
		if prx.Failures >= p.maxFailures {
			prx.Disabled = true
			prx.DisabledUntil = time.Now().Add(p.cooldown)
		}
	})
}

func (p *Pool) mark(proxyURL *url.URL, update func(*Proxy)) error {
	if proxyURL == nil {
		return errors.New("nil proxy url")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	prx := p.find(proxyURL.String())
	if prx == nil {
		return ErrNotFound
	}
	update(prx)
	return nil
}

// Snapshot returns a copy of every proxy's health record in pool order.
func (p *Pool) Snapshot() []Proxy {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Proxy, 0, len(p.proxies))
	for _, prx := range p.proxies {
		c := *prx
		u := *prx.URL
		c.URL = &u
		out = append(out, c)
	}
	return out
}

// find locates a proxy by its URL string. Must be called with lock held.
func (p *Pool) find(target string) *Proxy {
	for _, prx := range p.proxies {
		if prx.URL.String() == target {
			return prx
		}
	}
	return nil
}

type contextKey struct{}

// WithURL attaches the proxy chosen for one request to its context.
func WithURL(ctx context.Context, u *url.URL) context.Context {
	return context.WithValue(ctx, contextKey{}, u)
}

// FromContext returns the proxy attached by WithURL, if any.
func FromContext(ctx context.Context) *url.URL {
	u, _ := ctx.Value(contextKey{}).(*url.URL)
	return u
}

// RequestFunc is an http.Transport Proxy func that routes each request
// through the proxy stored in its context. Requests without one go direct;
// the environment proxy is deliberately ignored so rotation is the only
// source of proxies.
func RequestFunc(req *http.Request) (*url.URL, error) {
	return FromContext(req.Context()), nil
}
