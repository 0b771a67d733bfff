package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/FranksOps/serpdiff/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PageFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serpdiff_page_fetches_total",
			Help: "Total number of result pages fetched",
		},
		[]string{"provider", "status", "blocked", "blocked_by"},
	)

	PageFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "serpdiff_page_fetch_duration_seconds",
			Help:    "Duration of result page fetches in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"provider"},
	)

	ResultsPerQuery = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "serpdiff_results_per_query",
			Help:    "Number of organic URLs collected per query",
			Buckets: []float64{0, 1, 2, 4, 6, 8, 10},
		},
		[]string{"provider"},
	)

	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serpdiff_queries_total",
			Help: "Total number of queries collected, by outcome (full, short, empty)",
		},
		[]string{"provider", "outcome"},
	)

	ProxyFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serpdiff_proxy_failures_total",
			Help: "Total number of proxy failures during fetches",
		},
		[]string{"proxy_url"},
	)
)

// RecordPage updates the fetch metrics for one result page.
func RecordPage(provider string, page *storage.Page) {
	if page == nil {
		return
	}

	blocked := strconv.FormatBool(page.Blocked)

	status := strconv.Itoa(page.StatusCode)
	if page.Error != "" {
		status = "error"
	}

	PageFetchesTotal.WithLabelValues(provider, status, blocked, page.BlockedBy).Inc()
	PageFetchDuration.WithLabelValues(provider).Observe(page.Duration.Seconds())
}

// RecordQuery updates the per-query metrics once a query's list is final.
func RecordQuery(provider string, found, want int) {
	outcome := "full"
	switch {
	case found == 0:
		outcome = "empty"
	case found < want:
		outcome = "short"
	}
	QueriesTotal.WithLabelValues(provider, outcome).Inc()
	ResultsPerQuery.WithLabelValues(provider).Observe(float64(found))
}

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv *http.Server
}

// Start begins listening on the specified port and exposes /metrics.
func Start(port int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "port", port, "err", err)
		}
	}()

	return &Server{srv: srv}
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil || s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
