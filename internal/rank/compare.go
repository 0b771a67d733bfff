package rank

import "slices"

// Comparison is the agreement between a candidate and a reference ranking.
type Comparison struct {
	OverlapCount   int     `json:"overlap_count"`
	OverlapPercent float64 `json:"overlap_percent"`
	Correlation    float64 `json:"correlation"`
}

// Compare normalizes both lists and measures their overlap and rank
// correlation.
func Compare(candidate, reference []string) Comparison {
	count, percent := Overlap(candidate, reference)
	return Comparison{
		OverlapCount:   count,
		OverlapPercent: percent,
		Correlation:    Spearman(candidate, reference),
	}
}

// Overlap counts the distinct normalized URLs present in both lists. The
// percentage is relative to the raw candidate length; an empty candidate
// yields 0.
func Overlap(candidate, reference []string) (count int, percent float64) {
	count = len(common(firstIndex(NormalizeAll(candidate)), firstIndex(NormalizeAll(reference))))
	if len(candidate) == 0 {
		return count, 0
	}
	return count, float64(count) / float64(len(candidate)) * 100
}

// Spearman returns the rank correlation of the URLs common to both lists,
// using each URL's first position in the normalized lists as its rank.
//
// With no common URL the result is 0. With exactly one it is 1 when that URL
// sits at the same index in both lists and 0 otherwise. Otherwise it is
// 1 - 6*sum(d^2) / (n*(n^2-1)).
func Spearman(candidate, reference []string) float64 {
	ci := firstIndex(NormalizeAll(candidate))
	ri := firstIndex(NormalizeAll(reference))
	shared := common(ci, ri)

	n := len(shared)
	switch n {
	case 0:
		return 0
	case 1:
		if ci[shared[0]] == ri[shared[0]] {
			return 1
		}
		return 0
	}

	var sum float64
	for _, u := range shared {
		d := float64(ci[u] - ri[u])
		sum += d * d
	}
	nf := float64(n)
	return 1 - 6*sum/(nf*(nf*nf-1))
}

// firstIndex maps every URL of list to the index of its first occurrence.
func firstIndex(list []string) map[string]int {
	idx := make(map[string]int, len(list))
	for i, u := range list {
		if _, ok := idx[u]; !ok {
			idx[u] = i
		}
	}
	return idx
}

// common returns the keys present in both index maps, ordered by their
// index in a.
func common(a, b map[string]int) []string {
	out := make([]string, 0, len(a))
	for u := range a {
		if _, ok := b[u]; ok {
			out = append(out, u)
		}
	}
	slices.SortFunc(out, func(x, y string) int { return a[x] - a[y] })
	return out
}
