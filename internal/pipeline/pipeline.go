// Package pipeline runs the two batch stages: collecting a ranked result
// list for every query, and comparing two collected stores into a report.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/FranksOps/serpdiff/internal/rank"
	"github.com/FranksOps/serpdiff/internal/report"
	"github.com/FranksOps/serpdiff/internal/serp"
	"github.com/FranksOps/serpdiff/internal/storage"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Config tunes a collection run.
type Config struct {
	// Concurrency is the number of queries collected at once. Each worker
	// applies its own politeness pauses. Defaults to 1.
	Concurrency int
	// Limit caps results per query; 0 uses the provider's default.
	Limit int
	// Resume skips queries the backend already holds for this provider.
	// Without it the provider's stored rankings are cleared before the run.
	Resume bool
	// RunID tags saved rankings; a random UUID when empty.
	RunID string
}

// Pipeline collects rankings from a provider into a backend.
type Pipeline struct {
	provider serp.Provider
	backend  storage.Backend
	cfg      Config
	logger   *slog.Logger
}

// New creates a Pipeline. backend may be nil, in which case results are
// only returned.
func New(provider serp.Provider, backend storage.Backend, cfg Config, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	return &Pipeline{
		provider: provider,
		backend:  backend,
		cfg:      cfg,
		logger:   logger.With("run_id", cfg.RunID, "source", provider.Name()),
	}
}

// RunID returns the identifier attached to rankings saved by this pipeline.
func (p *Pipeline) RunID() string {
	return p.cfg.RunID
}

type job struct {
	pos   int
	query string
}

// Collect gathers the ranked list of every query and saves each one to the
// backend as soon as it completes. The returned store follows the query
// list's order regardless of completion order. Repeated queries are
// collected once.
//
// A save failure or cancellation stops the run; the store then holds the
// queries finished so far, still in list order.
func (p *Pipeline) Collect(ctx context.Context, queries []string) (*rank.Store, error) {
	queries, dropped := dedupe(queries)
	for _, q := range dropped {
		p.logger.Warn("duplicate query ignored", "query", q)
	}

	// A fresh run replaces whatever an earlier run stored for this provider.
	if !p.cfg.Resume && p.backend != nil {
		if err := p.backend.Clear(ctx, p.provider.Name()); err != nil {
			return nil, fmt.Errorf("clear previous rankings: %w", err)
		}
	}

	total := len(queries)
	slots := make([][]string, total)
	filled := make([]bool, total)

	pending, err := p.resume(ctx, queries, slots, filled)
	if err != nil {
		return nil, err
	}

	queue := make(chan job)
	var finished atomic.Int64
	finished.Store(int64(total - len(pending)))
	var mu sync.Mutex

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(queue)
		for _, j := range pending {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			case queue <- j:
			}
		}
		return nil
	})

	for i := 0; i < p.cfg.Concurrency; i++ {
		g.Go(func() error {
			for j := range queue {
				urls, err := p.provider.Search(gCtx, j.query, p.cfg.Limit)
				if err != nil {
					return fmt.Errorf("collect %q: %w", j.query, err)
				}

				if err := p.save(gCtx, j, urls); err != nil {
					return err
				}

				mu.Lock()
				slots[j.pos] = urls
				filled[j.pos] = true
				mu.Unlock()

				n := finished.Add(1)
				p.logger.Info(fmt.Sprintf("finished query %d/%d", n, total), "query", j.query, "found", len(urls))
			}
			return nil
		})
	}

	err = g.Wait()

	store := rank.NewStore()
	for i, q := range queries {
		if filled[i] {
			store.Set(q, slots[i])
		}
	}
	return store, err
}

// resume fills slots for queries the backend already holds and returns the
// jobs still to run.
func (p *Pipeline) resume(ctx context.Context, queries []string, slots [][]string, filled []bool) ([]job, error) {
	have := map[string][]string{}
	if p.cfg.Resume && p.backend != nil {
		saved, err := p.backend.Query(ctx, storage.Filter{Source: p.provider.Name()})
		if err != nil {
			return nil, fmt.Errorf("load saved rankings: %w", err)
		}
		for _, r := range saved {
			have[r.Query] = r.URLs
		}
	}

	var pending []job
	for i, q := range queries {
		if urls, ok := have[q]; ok {
			slots[i] = urls
			filled[i] = true
			p.logger.Debug("query already collected", "query", q, "found", len(urls))
			continue
		}
		pending = append(pending, job{pos: i, query: q})
	}
	if skipped := len(queries) - len(pending); skipped > 0 {
		p.logger.Info("resuming run", "skipped", skipped, "remaining", len(pending))
	}
	return pending, nil
}

func (p *Pipeline) save(ctx context.Context, j job, urls []string) error {
	if p.backend == nil {
		return nil
	}
	err := p.backend.Save(ctx, &storage.Ranking{
		RunID:     p.cfg.RunID,
		Source:    p.provider.Name(),
		Query:     j.query,
		Position:  j.pos,
		URLs:      urls,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("save ranking for %q: %w", j.query, err)
	}
	return nil
}

// Input names one side of a comparison. An empty Source reads every
// ranking in the backend.
type Input struct {
	Backend storage.Backend
	Source  string
}

// LoadStore reads the rankings of source from b into a query-ordered Store.
func LoadStore(ctx context.Context, b storage.Backend, source string) (*rank.Store, error) {
	rs, err := b.Query(ctx, storage.Filter{Source: source})
	if err != nil {
		return nil, fmt.Errorf("load rankings: %w", err)
	}
	return rank.FromRankings(rs)
}

// Compare loads both stores and builds the report, iterating the
// candidate's queries in order.
func Compare(ctx context.Context, candidate, reference Input) (*report.Report, error) {
	cand, err := LoadStore(ctx, candidate.Backend, candidate.Source)
	if err != nil {
		return nil, fmt.Errorf("candidate: %w", err)
	}
	ref, err := LoadStore(ctx, reference.Backend, reference.Source)
	if err != nil {
		return nil, fmt.Errorf("reference: %w", err)
	}

	r, err := report.Build(cand, ref)
	if err != nil {
		return nil, err
	}
	r.Candidate = candidate.Source
	r.Reference = reference.Source
	return r, nil
}
