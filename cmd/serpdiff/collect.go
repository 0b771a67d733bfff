package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/FranksOps/serpdiff/internal/config"
	"github.com/FranksOps/serpdiff/internal/fingerprint"
	"github.com/FranksOps/serpdiff/internal/metrics"
	"github.com/FranksOps/serpdiff/internal/pipeline"
	"github.com/FranksOps/serpdiff/internal/scraper"
	"github.com/FranksOps/serpdiff/internal/serp"
	"github.com/FranksOps/serpdiff/pkg/proxy"
	"github.com/FranksOps/serpdiff/pkg/ratelimit"
	"github.com/FranksOps/serpdiff/pkg/useragent"
	"github.com/spf13/cobra"
)

// collectBindings maps config keys to collect flags.
var collectBindings = map[string]string{
	"provider.engine":         "engine",
	"provider.base_url":       "base-url",
	"provider.respect_robots": "respect-robots",
	"fetch.fingerprint":       "fingerprint",
	"fetch.proxy_file":        "proxy-file",
	"collect.concurrency":     "concurrency",
	"collect.resume":          "resume",
	"storage.backend":         "backend",
	"storage.dsn":             "out",
	"metrics.port":            "metrics-port",
}

// NewCollectCmd creates the collect command.
func NewCollectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collect <queries-file>",
		Short: "Collect ranked result URLs for every query in a file",
		Long: `Collect reads one query per line, fetches up to two result pages per query
from the configured search engine and stores the ranked organic result URLs.

Each query is saved as soon as it finishes, so an interrupted run can be
continued with --resume.

Examples:
  # Collect DuckDuckGo rankings into result.json
  serpdiff collect queries.txt

  # Four queries at a time into SQLite, without politeness pauses
  serpdiff collect -j 4 --backend sqlite --out rankings.db --no-delay queries.txt`,
		Args: cobra.ExactArgs(1),
		RunE: runCollectCmd,
	}

	cmd.Flags().String("engine", "", "Search engine preset (duckduckgo, google)")
	cmd.Flags().String("base-url", "", "Override the engine's result page URL")
	cmd.Flags().Bool("respect-robots", false, "Skip result pages disallowed by robots.txt")
	cmd.Flags().String("fingerprint", "", "TLS fingerprint profile (chrome, firefox, safari, go, random)")
	cmd.Flags().String("proxy-file", "", "File with one proxy URL per line")
	cmd.Flags().IntP("concurrency", "j", 1, "Number of queries collected at once")
	cmd.Flags().Bool("resume", false, "Skip queries already present in the backend")
	cmd.Flags().String("backend", "", "Storage backend (json, csv, sqlite, postgres)")
	cmd.Flags().StringP("out", "o", "", "Backend DSN or output file (default result.json)")
	cmd.Flags().Int("metrics-port", 0, "Serve Prometheus metrics on this port (0 = off)")
	cmd.Flags().Bool("no-delay", false, "Disable the random pauses before and between result pages")

	return cmd
}

func runCollectCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, collectBindings)
	if err != nil {
		return err
	}
	if noDelay, _ := cmd.Flags().GetBool("no-delay"); noDelay {
		cfg.Provider.PreFetchDelay = ratelimit.Range{}
		cfg.Provider.InterPageDelay = ratelimit.Range{}
	}
	logger := newLogger(cmd, cfg, cmd.ErrOrStderr())

	queries, err := pipeline.ReadQueriesFile(args[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Port > 0 {
		srv := metrics.Start(cfg.Metrics.Port, logger)
		defer func() { _ = srv.Stop(context.Background()) }()
		logger.Info("serving metrics", "port", cfg.Metrics.Port)
	}

	cc, err := cfg.Provider.CollectorConfig()
	if err != nil {
		return err
	}

	fetcher, limiter, err := newFetcher(cfg, cc.Engine.Name)
	if err != nil {
		return err
	}
	if limiter != nil {
		defer limiter.Stop()
	}

	if cfg.Provider.RespectRobots {
		cc.Robots = scraper.NewRobotsTxtAuditor(fetcher, fetcher.UserAgent(), logger)
	}
	collector := serp.NewCollector(cc, fetcher, logger)

	backend, err := openBackend(ctx, cfg.Storage.Backend, cfg.Storage.DSN, collector.Name())
	if err != nil {
		return fmt.Errorf("open %s backend: %w", cfg.Storage.Backend, err)
	}
	defer backend.Close()

	p := pipeline.New(collector, backend, pipeline.Config{
		Concurrency: cfg.Collect.Concurrency,
		Limit:       cfg.Provider.ResultsPerQuery,
		Resume:      cfg.Collect.Resume,
	}, logger)

	logger.Info("collecting", "queries", len(queries), "engine", collector.Name(), "backend", cfg.Storage.Backend)
	store, err := p.Collect(ctx, queries)
	for _, prx := range fetcher.ProxyPool().Snapshot() {
		logger.Info("proxy health",
			"proxy", prx.URL.Redacted(),
			"successes", prx.Successes,
			"failures", prx.Failures,
			"disabled", prx.Disabled,
		)
	}
	if err != nil {
		return fmt.Errorf("collect: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "collected %d queries into %s (run %s)\n", store.Len(), cfg.Storage.DSN, p.RunID())
	return nil
}

// newFetcher builds the HTTP stack from cfg. The returned limiter, if any,
// must be stopped by the caller.
func newFetcher(cfg *config.Config, provider string) (*scraper.Fetcher, *ratelimit.Limiter, error) {
	profile, err := fingerprint.ParseProfile(cfg.Fetch.Fingerprint)
	if err != nil {
		return nil, nil, err
	}

	rotation, err := useragent.ParseRotation(cfg.Fetch.UARotation)
	if err != nil {
		return nil, nil, err
	}

	pool, err := proxy.FromList(cfg.Fetch.Proxy, cfg.Fetch.Proxies)
	if err != nil {
		return nil, nil, fmt.Errorf("proxies: %w", err)
	}
	if cfg.Fetch.ProxyFile != "" {
		if pool == nil {
			pool = proxy.NewPool(cfg.Fetch.Proxy)
		}
		if err := pool.LoadFile(cfg.Fetch.ProxyFile); err != nil {
			return nil, nil, fmt.Errorf("proxy file: %w", err)
		}
	}

	var limiter *ratelimit.Limiter
	if cfg.Fetch.RequestsPerSecond > 0 {
		limiter = ratelimit.NewLimiter(cfg.Fetch.RequestsPerSecond, cfg.Fetch.Jitter)
	}

	fetcher, err := scraper.NewFetcher(scraper.FetchConfig{
		Provider:     provider,
		Timeout:      cfg.Fetch.Timeout,
		MaxRedirects: cfg.Fetch.MaxRedirects,
		UseCookieJar: cfg.Fetch.CookieJar,
		ProxyPool:    pool,
		UAPool:       useragent.NewPool(cfg.Fetch.UserAgents),
		Rotation:     rotation,
		Fingerprint:  profile,
		Limiter:      limiter,
	})
	if err != nil {
		if limiter != nil {
			limiter.Stop()
		}
		return nil, nil, err
	}
	return fetcher, limiter, nil
}
