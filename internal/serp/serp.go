// Package serp turns search result pages into ranked URL lists.
//
// An Engine describes where a provider's listing lives and how to read it,
// an Extractor pulls organic links out of one page, and a Collector drives
// the paged, throttled fetches for a single query.
package serp

import (
	"context"

	"github.com/FranksOps/serpdiff/internal/storage"
)

// Provider abstracts a search engine that returns ranked result URLs for a
// query. The limit parameter caps the number of results returned.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, limit int) ([]string, error)
}

// PageFetcher retrieves one result page. Implementations report transport
// failures on the Page and return an error only when ctx ends.
type PageFetcher interface {
	Fetch(ctx context.Context, targetURL string) (*storage.Page, error)
}

// RobotsChecker reports whether a URL may be fetched.
type RobotsChecker interface {
	Allowed(ctx context.Context, targetURL string) (bool, error)
}
