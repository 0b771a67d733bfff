package rank

import (
	"errors"
	"fmt"
	"slices"

	"github.com/FranksOps/serpdiff/internal/storage"
)

// ErrDuplicateQuery is returned by FromRankings when a query appears twice,
// usually because the rankings of several sources were read together.
var ErrDuplicateQuery = errors.New("duplicate ranking for query")

// Store maps queries to ranked URL lists and iterates in insertion order.
// The zero value is ready to use. A Store is not safe for concurrent writes.
type Store struct {
	order []string
	lists map[string][]string
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{lists: make(map[string][]string)}
}

// Set stores urls under query. A new query is appended to the iteration
// order; an existing one keeps its place and has its list replaced.
func (s *Store) Set(query string, urls []string) {
	if s.lists == nil {
		s.lists = make(map[string][]string)
	}
	if _, ok := s.lists[query]; !ok {
		s.order = append(s.order, query)
	}
	if urls == nil {
		urls = []string{}
	}
	s.lists[query] = slices.Clone(urls)
}

// Get returns the list stored under query.
func (s *Store) Get(query string) ([]string, bool) {
	urls, ok := s.lists[query]
	return urls, ok
}

// Queries returns the stored queries in insertion order.
func (s *Store) Queries() []string {
	return slices.Clone(s.order)
}

// Len reports the number of stored queries.
func (s *Store) Len() int {
	return len(s.order)
}

// Rankings converts the store into persistable rankings for source, with
// Position set to the insertion index.
func (s *Store) Rankings(runID, source string) []*storage.Ranking {
	out := make([]*storage.Ranking, 0, len(s.order))
	for i, q := range s.order {
		out = append(out, &storage.Ranking{
			RunID:    runID,
			Source:   source,
			Query:    q,
			Position: i,
			URLs:     slices.Clone(s.lists[q]),
		})
	}
	return out
}

// FromRankings builds a Store from rankings already ordered by position.
// Two rankings for the same query are an error.
func FromRankings(rs []*storage.Ranking) (*Store, error) {
	s := NewStore()
	for _, r := range rs {
		if _, dup := s.lists[r.Query]; dup {
			return nil, fmt.Errorf("%w %q from source %q", ErrDuplicateQuery, r.Query, r.Source)
		}
		s.Set(r.Query, r.URLs)
	}
	return s, nil
}
