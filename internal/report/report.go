// Package report turns per-query ranking comparisons into the batch report
// and writes it as CSV, JSON, text, Markdown or HTML.
package report

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/FranksOps/serpdiff/internal/rank"
)

// ErrMissingReference is returned when a candidate query has no reference
// ranking to compare against.
var ErrMissingReference = errors.New("missing reference ranking")

// Header is the fixed column header of the tabular report.
var Header = []string{"Queries", "Number of Overlapping Results", "Percent Overlap", "Spearman Coefficient"}

// Row is the comparison of one query, rounded for presentation.
type Row struct {
	Label          string  `json:"label"`
	Query          string  `json:"query"`
	OverlapCount   int     `json:"overlap_count"`
	OverlapPercent float64 `json:"overlap_percent"`
	Correlation    float64 `json:"correlation"`
}

// Averages holds the column means over every query, computed from unrounded
// values and then rounded like the rows.
type Averages struct {
	OverlapCount   float64 `json:"overlap_count"`
	OverlapPercent float64 `json:"overlap_percent"`
	Correlation    float64 `json:"correlation"`
}

// Report is the ordered comparison of a candidate store against a reference.
type Report struct {
	Candidate   string    `json:"candidate,omitempty"`
	Reference   string    `json:"reference,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
	Rows        []Row     `json:"rows"`
	Averages    Averages  `json:"averages"`
}

// Build compares every candidate query, in the candidate store's order,
// against the reference list for the same query. A query absent from the
// reference is an error wrapping ErrMissingReference.
func Build(candidate, reference *rank.Store) (*Report, error) {
	r := &Report{
		GeneratedAt: time.Now().UTC(),
		Rows:        make([]Row, 0, candidate.Len()),
	}

	var sumCount, sumPercent, sumCorr float64
	for i, q := range candidate.Queries() {
		ref, ok := reference.Get(q)
		if !ok {
			return nil, fmt.Errorf("query %d %q: %w", i+1, q, ErrMissingReference)
		}
		cand, _ := candidate.Get(q)
		c := rank.Compare(cand, ref)

		sumCount += float64(c.OverlapCount)
		sumPercent += c.OverlapPercent
		sumCorr += c.Correlation

		r.Rows = append(r.Rows, Row{
			Label:          fmt.Sprintf("Query %d", i+1),
			Query:          q,
			OverlapCount:   c.OverlapCount,
			OverlapPercent: round(c.OverlapPercent, 1),
			Correlation:    round(c.Correlation, 2),
		})
	}

	if n := float64(len(r.Rows)); n > 0 {
		r.Averages = Averages{
			OverlapCount:   round(sumCount/n, 1),
			OverlapPercent: round(sumPercent/n, 1),
			Correlation:    round(sumCorr/n, 2),
		}
	}
	return r, nil
}

// round rounds x half away from zero to the given number of decimals.
func round(x float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	v := math.Round(x*p) / p
	if v == 0 {
		return 0 // drop negative zero
	}
	return v
}
