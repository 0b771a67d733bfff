package csvbackend

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/FranksOps/serpdiff/internal/storage"
)

func TestCSVBackend(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "rankings.csv")

	b, err := New(filePath)
	if err != nil {
		t.Fatalf("Failed to create CSV backend: %v", err)
	}
	defer b.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	rankings := []*storage.Ranking{
		{RunID: "run1", Source: "duckduckgo", Query: "second", Position: 1, URLs: []string{"https://b.com/", "https://c.com/x,y"}, CreatedAt: now},
		{RunID: "run1", Source: "duckduckgo", Query: "first", Position: 0, URLs: nil, CreatedAt: now},
		{RunID: "run0", Source: "google", Query: "first", Position: 0, URLs: []string{"https://a.com/"}, CreatedAt: now.Add(-time.Hour)},
	}
	for _, r := range rankings {
		if err := b.Save(ctx, r); err != nil {
			t.Fatalf("Failed to save %q: %v", r.Query, err)
		}
	}

	ddg, err := b.Query(ctx, storage.Filter{Source: "duckduckgo"})
	if err != nil {
		t.Fatalf("Failed to query by source: %v", err)
	}
	if len(ddg) != 2 {
		t.Fatalf("Expected 2 duckduckgo rankings, got %d", len(ddg))
	}
	if ddg[0].Query != "first" || len(ddg[0].URLs) != 0 {
		t.Errorf("Expected empty ranking for first, got %+v", ddg[0])
	}
	if ddg[1].Query != "second" || len(ddg[1].URLs) != 2 || ddg[1].URLs[1] != "https://c.com/x,y" {
		t.Errorf("Expected two URLs for second, got %+v", ddg[1])
	}
	if ddg[1].RunID != "run1" || !ddg[1].CreatedAt.Equal(now) {
		t.Errorf("Expected run metadata to round trip, got %+v", ddg[1])
	}

	// Re-saving a key supersedes the earlier rows.
	if err := b.Save(ctx, &storage.Ranking{RunID: "run2", Source: "duckduckgo", Query: "first", Position: 0, URLs: []string{"https://z.com/"}, CreatedAt: now.Add(time.Minute)}); err != nil {
		t.Fatalf("Failed to re-save: %v", err)
	}

	first, err := b.Query(ctx, storage.Filter{Source: "duckduckgo", Query: "first"})
	if err != nil {
		t.Fatalf("Failed to query by query: %v", err)
	}
	if len(first) != 1 || first[0].RunID != "run2" || len(first[0].URLs) != 1 {
		t.Errorf("Expected superseding ranking from run2, got %+v", first)
	}

	all, err := b.Query(ctx, storage.Filter{})
	if err != nil {
		t.Fatalf("Failed to query all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Expected 3 rankings, got %d", len(all))
	}

	limited, err := b.Query(ctx, storage.Filter{Limit: 1})
	if err != nil {
		t.Fatalf("Failed to query limit: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("Expected 1 result, got %d", len(limited))
	}
}

func TestCSVBackend_ReopenKeepsHeader(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "rankings.csv")

	b, err := New(filePath)
	if err != nil {
		t.Fatalf("Failed to create CSV backend: %v", err)
	}
	_ = b.Save(context.Background(), &storage.Ranking{Source: "duckduckgo", Query: "q", URLs: []string{"u"}})
	_ = b.Close()

	b2, err := New(filePath)
	if err != nil {
		t.Fatalf("Failed to reopen CSV backend: %v", err)
	}
	defer b2.Close()

	rs, err := b2.Query(context.Background(), storage.Filter{})
	if err != nil {
		t.Fatalf("Failed to query: %v", err)
	}
	if len(rs) != 1 || rs[0].URLs[0] != "u" {
		t.Errorf("Expected previously saved ranking, got %+v", rs)
	}
}

func TestCSVBackend_Clear(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "rankings.csv")
	b, err := New(filePath)
	if err != nil {
		t.Fatalf("Failed to create CSV backend: %v", err)
	}
	defer b.Close()

	ctx := context.Background()
	for _, r := range []*storage.Ranking{
		{RunID: "run1", Source: "duckduckgo", Query: "old", Position: 0, URLs: []string{"https://a.com/", "https://b.com/"}},
		{RunID: "run0", Source: "google", Query: "old", Position: 0, URLs: []string{"https://c.com/"}},
	} {
		if err := b.Save(ctx, r); err != nil {
			t.Fatalf("Failed to save: %v", err)
		}
	}

	if err := b.Clear(ctx, "duckduckgo"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if got, _ := b.Query(ctx, storage.Filter{Source: "duckduckgo"}); len(got) != 0 {
		t.Errorf("Expected duckduckgo rankings cleared, got %d", len(got))
	}
	google, _ := b.Query(ctx, storage.Filter{Source: "google"})
	if len(google) != 1 || len(google[0].URLs) != 1 {
		t.Fatalf("Expected google ranking kept, got %+v", google)
	}

	// Saves after a clear still land in the file.
	if err := b.Save(ctx, &storage.Ranking{RunID: "run2", Source: "duckduckgo", Query: "new", URLs: []string{"https://d.com/"}}); err != nil {
		t.Fatalf("Failed to save after clear: %v", err)
	}
	all, _ := b.Query(ctx, storage.Filter{})
	if len(all) != 2 {
		t.Errorf("Expected 2 rankings after clear and save, got %d", len(all))
	}

	if err := b.Clear(ctx, ""); err != nil {
		t.Fatalf("Clear all: %v", err)
	}
	if all, _ := b.Query(ctx, storage.Filter{}); len(all) != 0 {
		t.Errorf("Expected empty store, got %d", len(all))
	}
}
