package rank

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"testing"
)

func urls(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("https://site%d.example.com/page", i)
	}
	return out
}

func reversed(list []string) []string {
	out := make([]string, len(list))
	for i, u := range list {
		out[len(list)-1-i] = u
	}
	return out
}

func near(a, b, delta float64) bool {
	return math.Abs(a-b) <= delta
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"http://A.com/x", "a.com/x"},
		{"https://b.com/y/", "b.com/y"},
		{"a.com/x/", "a.com/x"},
		{"B.COM/y", "b.com/y"},
		{"HTTPS://Example.com", "example.com"},
		{"ftp://example.com/", "ftp://example.com"},
		{"//duckduckgo.com/l/?uddg=x", "//duckduckgo.com/l/?uddg=x"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"http://http://x.com",
		"https://http://x.com//",
		"a//",
		"HTTP://HTTPS://Mixed.Case/Path///",
		"/",
		"http://",
		"https://example.com/?q=a/",
	}
	for _, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Errorf("Normalize not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestCompare_Identity(t *testing.T) {
	for _, n := range []int{1, 2, 5, 10} {
		l := urls(n)
		got := Compare(l, l)
		if got.OverlapCount != n {
			t.Errorf("n=%d: expected overlap %d, got %d", n, n, got.OverlapCount)
		}
		if !near(got.OverlapPercent, 100, 1e-9) {
			t.Errorf("n=%d: expected 100%%, got %v", n, got.OverlapPercent)
		}
		if !near(got.Correlation, 1, 1e-9) {
			t.Errorf("n=%d: expected correlation 1, got %v", n, got.Correlation)
		}
	}
}

func TestCompare_Reversal(t *testing.T) {
	for _, n := range []int{2, 3, 4, 10} {
		l := urls(n)

		var sum float64
		for i := 0; i < n; i++ {
			d := float64(n - 1 - 2*i)
			sum += d * d
		}
		nf := float64(n)
		want := 1 - 6*sum/(nf*(nf*nf-1))

		got := Compare(l, reversed(l))
		if got.OverlapCount != n {
			t.Errorf("n=%d: expected overlap %d, got %d", n, n, got.OverlapCount)
		}
		if !near(got.Correlation, want, 1e-9) {
			t.Errorf("n=%d: expected correlation %v, got %v", n, want, got.Correlation)
		}
	}

	for _, n := range []int{2, 4} {
		if rho := Spearman(urls(n), reversed(urls(n))); !near(rho, -1, 1e-9) {
			t.Errorf("n=%d: expected -1 for a reversed list, got %v", n, rho)
		}
	}
}

func TestCompare_Disjoint(t *testing.T) {
	got := Compare([]string{"https://a.com", "https://b.com"}, []string{"https://c.com", "https://d.com"})
	if got != (Comparison{}) {
		t.Errorf("expected zero comparison, got %+v", got)
	}
}

func TestCompare_NormalizedEquality(t *testing.T) {
	candidate := []string{"http://A.com/x", "https://b.com/y/"}
	reference := []string{"a.com/x/", "B.COM/y"}

	got := Compare(candidate, reference)
	if got.OverlapCount != 2 || !near(got.OverlapPercent, 100, 1e-9) || !near(got.Correlation, 1, 1e-9) {
		t.Errorf("expected full agreement, got %+v", got)
	}
}

func TestCompare_EmptyCandidate(t *testing.T) {
	if got := Compare(nil, []string{"https://a.com"}); got != (Comparison{}) {
		t.Errorf("expected zero comparison for nil candidate, got %+v", got)
	}
	if got := Compare([]string{}, []string{}); got != (Comparison{}) {
		t.Errorf("expected zero comparison for empty lists, got %+v", got)
	}
}

func TestSpearman_SingleCommon(t *testing.T) {
	// Same index in both lists.
	if rho := Spearman([]string{"https://a.com", "https://b.com"}, []string{"a.com", "https://z.com"}); rho != 1 {
		t.Errorf("expected 1, got %v", rho)
	}
	// Different index.
	if rho := Spearman([]string{"https://a.com", "https://b.com"}, []string{"https://z.com", "a.com"}); rho != 0 {
		t.Errorf("expected 0, got %v", rho)
	}
}

func TestSpearman_PartialOverlap(t *testing.T) {
	candidate := []string{"a.com", "b.com", "c.com", "d.com"}
	reference := []string{"x.com", "c.com", "a.com", "y.com"}

	// common {a, c}: a at 0 vs 2, c at 2 vs 1 -> sum d^2 = 4 + 1 = 5
	want := 1 - 6*5.0/(2*3)
	if rho := Spearman(candidate, reference); !near(rho, want, 1e-9) {
		t.Errorf("expected %v, got %v", want, rho)
	}

	count, percent := Overlap(candidate, reference)
	if count != 2 || !near(percent, 50, 1e-9) {
		t.Errorf("expected 2 overlaps at 50%%, got %d at %v", count, percent)
	}
}

func TestOverlap_RawCandidateLength(t *testing.T) {
	candidate := []string{"http://a.com", "https://a.com/", "b.com"}
	reference := []string{"b.com", "a.com"}

	count, percent := Overlap(candidate, reference)
	if count != 2 || !near(percent, 200.0/3, 1e-9) {
		t.Errorf("expected 2 overlaps at 66.67%%, got %d at %v", count, percent)
	}

	// First-occurrence indices: a 0 vs 1, b 2 vs 0 -> sum d^2 = 1 + 4
	if rho := Spearman(candidate, reference); !near(rho, 1-6*5.0/6, 1e-9) {
		t.Errorf("expected %v, got %v", 1-6*5.0/6, rho)
	}
}

func TestSpearman_Symmetric(t *testing.T) {
	a := []string{"a.com", "b.com", "c.com", "d.com", "e.com"}
	b := []string{"c.com", "a.com", "e.com", "q.com", "b.com"}
	if ab, ba := Spearman(a, b), Spearman(b, a); !near(ab, ba, 1e-12) {
		t.Errorf("Spearman not symmetric: %v vs %v", ab, ba)
	}
}

func TestStore(t *testing.T) {
	s := NewStore()
	s.Set("zebra", []string{"https://z.com"})
	s.Set("apple", nil)
	s.Set("mango", []string{"https://m.com", "https://m2.com"})
	s.Set("zebra", []string{"https://z2.com"})

	if want := []string{"zebra", "apple", "mango"}; !slices.Equal(s.Queries(), want) {
		t.Errorf("expected queries %v, got %v", want, s.Queries())
	}
	if s.Len() != 3 {
		t.Errorf("expected 3 queries, got %d", s.Len())
	}

	got, ok := s.Get("zebra")
	if !ok || !slices.Equal(got, []string{"https://z2.com"}) {
		t.Errorf("expected replaced zebra list, got %v (ok=%v)", got, ok)
	}

	got, ok = s.Get("apple")
	if !ok || got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil apple list, got %#v (ok=%v)", got, ok)
	}

	if _, ok := s.Get("kiwi"); ok {
		t.Error("expected kiwi to be missing")
	}

	rs := s.Rankings("run1", "duckduckgo")
	if len(rs) != 3 {
		t.Fatalf("expected 3 rankings, got %d", len(rs))
	}
	if rs[2].Query != "mango" || rs[2].Position != 2 || rs[2].Source != "duckduckgo" {
		t.Errorf("unexpected third ranking: %+v", rs[2])
	}

	back, err := FromRankings(rs)
	if err != nil {
		t.Fatalf("FromRankings: %v", err)
	}
	if !slices.Equal(back.Queries(), s.Queries()) {
		t.Errorf("expected %v, got %v", s.Queries(), back.Queries())
	}

	if _, err := FromRankings(append(rs, rs[0])); !errors.Is(err, ErrDuplicateQuery) {
		t.Errorf("expected ErrDuplicateQuery, got %v", err)
	}
}

func TestStore_ZeroValue(t *testing.T) {
	var s Store
	s.Set("q", []string{"https://a.com"})
	got, ok := s.Get("q")
	if !ok || !slices.Equal(got, []string{"https://a.com"}) {
		t.Errorf("expected stored list, got %v (ok=%v)", got, ok)
	}
}
