package storage

import (
	"context"
	"sort"
	"time"
)

// Page represents the outcome of fetching a single result page.
type Page struct {
	ID         string
	URL        string
	Method     string
	StatusCode int
	Headers    map[string][]string
	Body       []byte
	Duration   time.Duration
	Blocked    bool
	BlockedBy  string // e.g. "DuckDuckGo", "Cloudflare", "DataDome"
	CreatedAt  time.Time
	Error      string // non-empty if the fetch failed before an HTTP response
}

// Failed reports whether the page carries no usable listing markup.
func (p *Page) Failed() bool {
	return p == nil || p.Error != "" || p.StatusCode >= 400 || p.Blocked
}

// Ranking is the persisted ranked result list of one query from one source.
type Ranking struct {
	RunID     string    `json:"run_id"`
	Source    string    `json:"source"`
	Query     string    `json:"query"`
	Position  int       `json:"position"` // index of Query in the original query list
	URLs      []string  `json:"urls"`
	CreatedAt time.Time `json:"created_at"`
}

// Filter allows querying for specific Rankings.
type Filter struct {
	Source string
	Query  string
	RunID  string
	Limit  int
	Offset int
}

// Match reports whether r satisfies the equality constraints of the filter.
func (f Filter) Match(r *Ranking) bool {
	if f.Source != "" && r.Source != f.Source {
		return false
	}
	if f.Query != "" && r.Query != f.Query {
		return false
	}
	if f.RunID != "" && r.RunID != f.RunID {
		return false
	}
	return true
}

// Window applies Offset and Limit to an already ordered slice.
func (f Filter) Window(rs []*Ranking) []*Ranking {
	if f.Offset > 0 {
		if f.Offset >= len(rs) {
			return []*Ranking{}
		}
		rs = rs[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(rs) {
		rs = rs[:f.Limit]
	}
	return rs
}

// SortByPosition orders rankings by query-list position; ties keep their
// insertion order.
func SortByPosition(rs []*Ranking) {
	sort.SliceStable(rs, func(i, j int) bool {
		return rs[i].Position < rs[j].Position
	})
}

// Backend stores rankings keyed by (source, query). Save replaces an existing
// ranking for the same key. Query returns rankings ordered by Position.
// Clear removes every ranking of source, or every ranking when source is
// empty. Implementations must be safe for concurrent Save calls.
type Backend interface {
	Save(ctx context.Context, ranking *Ranking) error
	Query(ctx context.Context, filter Filter) ([]*Ranking, error)
	Clear(ctx context.Context, source string) error
	Close() error
}
