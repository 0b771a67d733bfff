//go:build integration

package test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/FranksOps/serpdiff/internal/fingerprint"
	"github.com/FranksOps/serpdiff/internal/pipeline"
	"github.com/FranksOps/serpdiff/internal/scraper"
	"github.com/FranksOps/serpdiff/internal/serp"
	"github.com/FranksOps/serpdiff/internal/storage/jsonbackend"
	"github.com/FranksOps/serpdiff/internal/storage/sqlite"
	"github.com/FranksOps/serpdiff/pkg/proxy"
	"github.com/FranksOps/serpdiff/pkg/ratelimit"
	"github.com/FranksOps/serpdiff/pkg/useragent"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// listing renders a DuckDuckGo html page with one organic result per id
// plus an ad and a carousel entry that must be skipped.
func listing(ids ...int) string {
	var b strings.Builder
	b.WriteString(`<html><body>`)
	b.WriteString(`<div class="result result--ad"><a class="result__a" href="https://ads.example/?ad_provider=x">ad</a></div>`)
	for _, id := range ids {
		fmt.Fprintf(&b, `<div class="result results_links"><a class="result__a" href="https://site.com/%d">r%d</a></div>`, id, id)
	}
	b.WriteString(`<div class="result result--carousel"><a class="result__a" href="https://carousel.example">c</a></div>`)
	b.WriteString(`</body></html>`)
	return b.String()
}

func newCollector(t *testing.T, baseURL string, fc scraper.FetchConfig) *serp.Collector {
	t.Helper()
	if fc.Fingerprint == "" {
		fc.Fingerprint = fingerprint.ProfileGo
	}
	if fc.Timeout == 0 {
		fc.Timeout = 5 * time.Second
	}
	fetcher, err := scraper.NewFetcher(fc)
	if err != nil {
		t.Fatalf("failed to create fetcher: %v", err)
	}

	engine := serp.DuckDuckGo()
	engine.BaseURL = baseURL
	return serp.NewCollector(serp.CollectorConfig{
		Engine:          engine,
		ResultsPerQuery: 10,
		MaxPages:        2,
		PreFetchDelay:   ratelimit.Range{},
		InterPageDelay:  ratelimit.Range{},
	}, fetcher, quietLogger())
}

func TestIntegration_CollectAndCompare(t *testing.T) {
	var fetches atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		w.Header().Set("Content-Type", "text/html")
		switch q := r.URL.Query(); {
		case q.Get("q") == "bread recipe":
			w.WriteHeader(http.StatusAccepted)
			fmt.Fprint(w, `<div class="anomaly-modal__title">Unfortunately, bots use DuckDuckGo too.</div>`)
		case q.Get("s") == "30":
			fmt.Fprint(w, listing(4, 5, 6, 7, 8, 9, 10, 11))
		default:
			fmt.Fprint(w, listing(0, 1, 2, 3, 4, 5))
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	backend, err := sqlite.New(filepath.Join(dir, "rankings.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer backend.Close()

	collector := newCollector(t, srv.URL+"/html/", scraper.FetchConfig{Provider: "duckduckgo"})
	p := pipeline.New(collector, backend, pipeline.Config{Concurrency: 2}, quietLogger())

	ctx := context.Background()
	store, err := p.Collect(ctx, []string{"golang tutorial", "bread recipe"})
	if err != nil {
		t.Fatalf("collect failed: %v", err)
	}

	// Both queries need a second page: the first is short, the second blocked.
	if got := fetches.Load(); got != 4 {
		t.Errorf("expected 4 page fetches, got %d", got)
	}

	urls, _ := store.Get("golang tutorial")
	if len(urls) != 10 || urls[0] != "https://site.com/0" || urls[9] != "https://site.com/9" {
		t.Fatalf("unexpected ranking: %v", urls)
	}
	if blocked, ok := store.Get("bread recipe"); !ok || len(blocked) != 0 {
		t.Fatalf("expected empty ranking for blocked query, got %v (present=%v)", blocked, ok)
	}

	refPath := filepath.Join(dir, "google.json")
	if err := os.WriteFile(refPath, []byte(`{
  "golang tutorial": ["http://site.com/1/", "http://site.com/0", "https://other.com"],
  "bread recipe": ["https://bread.com"]
}`), 0o644); err != nil {
		t.Fatal(err)
	}
	reference, err := jsonbackend.New(refPath, "google")
	if err != nil {
		t.Fatalf("open reference: %v", err)
	}

	r, err := pipeline.Compare(ctx,
		pipeline.Input{Backend: backend, Source: "duckduckgo"},
		pipeline.Input{Backend: reference, Source: "google"},
	)
	if err != nil {
		t.Fatalf("compare failed: %v", err)
	}

	if len(r.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(r.Rows))
	}
	first := r.Rows[0]
	if first.Query != "golang tutorial" || first.OverlapCount != 2 || first.OverlapPercent != 20 || first.Correlation != -1 {
		t.Errorf("unexpected first row: %+v", first)
	}
	second := r.Rows[1]
	if second.OverlapCount != 0 || second.OverlapPercent != 0 || second.Correlation != 0 {
		t.Errorf("unexpected second row: %+v", second)
	}
	if r.Averages.OverlapCount != 1 || r.Averages.OverlapPercent != 10 || r.Averages.Correlation != -0.5 {
		t.Errorf("unexpected averages: %+v", r.Averages)
	}
}

func TestIntegration_ProxyRotation(t *testing.T) {
	var proxyHits atomic.Int32
	var sawUA atomic.Bool
	proxySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		proxyHits.Add(1)
		if r.Header.Get("User-Agent") == "IntegrationTest-UA" {
			sawUA.Store(true)
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, listing(0, 1, 2, 3, 4, 5, 6, 7, 8, 9))
	}))
	defer proxySrv.Close()

	pool := proxy.NewPool(proxy.Config{})
	if err := pool.Add(proxySrv.URL); err != nil {
		t.Fatal(err)
	}

	// The engine host does not resolve; only the proxy can answer.
	collector := newCollector(t, "http://duckduckgo.invalid/html/", scraper.FetchConfig{
		ProxyPool: pool,
		UAPool:    useragent.NewPool([]string{"IntegrationTest-UA"}),
	})

	urls, err := collector.Collect(context.Background(), "golang tutorial")
	if err != nil {
		t.Fatalf("collect failed: %v", err)
	}
	if proxyHits.Load() != 1 {
		t.Errorf("expected exactly one proxied request, got %d", proxyHits.Load())
	}
	if !sawUA.Load() {
		t.Errorf("expected configured User-Agent at the proxy")
	}
	if len(urls) != 10 {
		t.Errorf("expected 10 urls through the proxy, got %d", len(urls))
	}
}

func TestIntegration_CookieJarAcrossPages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if r.URL.Query().Get("s") == "30" {
			if c, err := r.Cookie("session_id"); err != nil || c.Value != "123456" {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			fmt.Fprint(w, listing(5, 6, 7))
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "session_id", Value: "123456", Path: "/"})
		fmt.Fprint(w, listing(0, 1, 2, 3, 4))
	}))
	defer srv.Close()

	collector := newCollector(t, srv.URL+"/html/", scraper.FetchConfig{UseCookieJar: true})

	urls, err := collector.Collect(context.Background(), "golang tutorial")
	if err != nil {
		t.Fatalf("collect failed: %v", err)
	}
	if len(urls) != 8 {
		t.Fatalf("expected 8 urls (second page needs the session cookie), got %d: %v", len(urls), urls)
	}
}
