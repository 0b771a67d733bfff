package csvbackend

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/FranksOps/serpdiff/internal/storage"
)

// ensure csvBackend implements storage.Backend
var _ storage.Backend = (*csvBackend)(nil)

type csvBackend struct {
	mu   sync.Mutex
	file *os.File
}

// headers defines the CSV column order. One row per ranked URL; a ranking
// with no URLs is a single row with empty rank and url.
var headers = []string{
	"run_id",
	"source",
	"query",
	"position",
	"rank",
	"url",
	"created_at",
}

// New creates a new append-only CSV-backed storage.Backend. A later ranking
// for the same (source, query) supersedes earlier rows when queried.
func New(filePath string) (storage.Backend, error) {
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open csv store: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat csv store: %w", err)
	}

	if info.Size() == 0 {
		w := csv.NewWriter(f)
		if err := w.Write(headers); err != nil {
			f.Close()
			return nil, fmt.Errorf("write csv header: %w", err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("write csv header: %w", err)
		}
	}

	return &csvBackend{
		file: f,
	}, nil
}

func (b *csvBackend) Save(ctx context.Context, ranking *storage.Ranking) error {
	if ranking == nil {
		return errors.New("save: nil ranking")
	}

	createdAt := ranking.CreatedAt.UTC().Format(time.RFC3339Nano)
	position := strconv.Itoa(ranking.Position)

	var records [][]string
	for i, u := range ranking.URLs {
		records = append(records, []string{
			ranking.RunID, ranking.Source, ranking.Query, position, strconv.Itoa(i), u, createdAt,
		})
	}
	if len(records) == 0 {
		records = append(records, []string{
			ranking.RunID, ranking.Source, ranking.Query, position, "", "", createdAt,
		})
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("seek csv store: %w", err)
	}

	w := csv.NewWriter(b.file)
	if err := w.WriteAll(records); err != nil {
		return fmt.Errorf("write csv rows: %w", err)
	}

	return nil
}

type rankingKey struct {
	source string
	query  string
}

func (b *csvBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Ranking, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek csv store: %w", err)
	}
	defer func() {
		_, _ = b.file.Seek(0, io.SeekEnd)
	}()

	r := csv.NewReader(b.file)

	if _, err := r.Read(); err != nil {
		if err == io.EOF {
			return []*storage.Ranking{}, nil
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	var (
		order   []rankingKey
		byKey   = make(map[rankingKey]*storage.Ranking)
		current *storage.Ranking
		lastRow []string
	)

	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}
		if len(record) != len(headers) {
			continue // skip malformed rows
		}

		// Rows of one Save are contiguous, start at rank 0 (or are a lone
		// empty row) and share run, source, query and time.
		if current == nil || record[4] == "" || record[4] == "0" || !sameRanking(lastRow, record) {
			position, _ := strconv.Atoi(record[3])
			createdAt, _ := time.Parse(time.RFC3339Nano, record[6])
			current = &storage.Ranking{
				RunID:     record[0],
				Source:    record[1],
				Query:     record[2],
				Position:  position,
				URLs:      []string{},
				CreatedAt: createdAt,
			}
			key := rankingKey{source: current.Source, query: current.Query}
			if _, exists := byKey[key]; !exists {
				order = append(order, key)
			}
			byKey[key] = current
		}
		lastRow = record

		if record[4] != "" {
			current.URLs = append(current.URLs, record[5])
		}
	}

	var matched []*storage.Ranking
	for _, key := range order {
		rk := byKey[key]
		if filter.Match(rk) {
			matched = append(matched, rk)
		}
	}
	storage.SortByPosition(matched)

	return filter.Window(matched), nil
}

// Clear rewrites the file without the rows of source. The header is kept.
func (b *csvBackend) Clear(ctx context.Context, source string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek csv store: %w", err)
	}
	r := csv.NewReader(b.file)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return fmt.Errorf("read csv store: %w", err)
	}

	kept := [][]string{headers}
	if source != "" {
		for i, record := range records {
			if i == 0 || len(record) != len(headers) || record[1] == source {
				continue
			}
			kept = append(kept, record)
		}
	}

	if err := b.file.Truncate(0); err != nil {
		return fmt.Errorf("truncate csv store: %w", err)
	}
	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek csv store: %w", err)
	}
	if err := csv.NewWriter(b.file).WriteAll(kept); err != nil {
		return fmt.Errorf("rewrite csv store: %w", err)
	}
	return nil
}

func sameRanking(a, b []string) bool {
	return a[0] == b[0] && a[1] == b[1] && a[2] == b[2] && a[6] == b[6]
}

func (b *csvBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file.Close()
}
