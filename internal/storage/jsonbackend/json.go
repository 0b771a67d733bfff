// Package jsonbackend stores rankings as a single indented JSON object that
// maps each query to its ordered URL list. Key order follows query-list
// position and survives a read/write round trip.
package jsonbackend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/FranksOps/serpdiff/internal/storage"
)

// ensure jsonBackend implements storage.Backend
var _ storage.Backend = (*jsonBackend)(nil)

type jsonBackend struct {
	mu      sync.Mutex
	path    string
	source  string
	entries []*storage.Ranking
}

// New opens (or prepares) the JSON artifact at filePath. Existing content is
// loaded so the same file can serve as input and output. Every ranking read
// from the file is attributed to source.
func New(filePath, source string) (storage.Backend, error) {
	b := &jsonBackend{
		path:   filePath,
		source: source,
	}

	f, err := os.Open(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return b, nil
		}
		return nil, fmt.Errorf("open json store: %w", err)
	}
	defer f.Close()

	entries, err := decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filePath, err)
	}
	for _, e := range entries {
		e.Source = source
	}
	b.entries = entries

	return b, nil
}

// decode reads a JSON object of string arrays, keeping key order.
func decode(r io.Reader) ([]*storage.Ranking, error) {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected JSON object, got %v", tok)
	}

	var entries []*storage.Ranking
	seen := make(map[string]int)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		query, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected query key, got %v", tok)
		}

		var urls []string
		if err := dec.Decode(&urls); err != nil {
			return nil, fmt.Errorf("query %q: %w", query, err)
		}
		if urls == nil {
			urls = []string{}
		}

		// Later duplicates win, like any JSON object decoder.
		if i, dup := seen[query]; dup {
			entries[i].URLs = urls
			continue
		}
		seen[query] = len(entries)
		entries = append(entries, &storage.Ranking{
			Query:    query,
			Position: len(entries),
			URLs:     urls,
		})
	}

	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (b *jsonBackend) Save(ctx context.Context, ranking *storage.Ranking) error {
	if ranking == nil {
		return errors.New("save: nil ranking")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	stored := *ranking
	stored.URLs = append([]string{}, ranking.URLs...)

	replaced := false
	for i, e := range b.entries {
		if e.Query == ranking.Query {
			b.entries[i] = &stored
			replaced = true
			break
		}
	}
	if !replaced {
		b.entries = append(b.entries, &stored)
	}
	storage.SortByPosition(b.entries)

	return b.flush()
}

// flush rewrites the whole artifact through a temp file and rename. Must be
// called with the lock held.
func (b *jsonBackend) flush() error {
	data, err := encode(b.entries)
	if err != nil {
		return fmt.Errorf("encode json store: %w", err)
	}

	dir := filepath.Dir(b.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(b.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write json store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close json store: %w", err)
	}
	if err := os.Rename(tmpName, b.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace json store: %w", err)
	}
	return nil
}

func encode(entries []*storage.Ranking) ([]byte, error) {
	var buf bytes.Buffer
	if len(entries) == 0 {
		buf.WriteString("{}\n")
		return buf.Bytes(), nil
	}

	buf.WriteString("{\n")
	for i, e := range entries {
		key, err := marshal(e.Query, "")
		if err != nil {
			return nil, err
		}
		urls := e.URLs
		if urls == nil {
			urls = []string{}
		}
		val, err := marshal(urls, "  ")
		if err != nil {
			return nil, err
		}

		buf.WriteString("  ")
		buf.Write(key)
		buf.WriteString(": ")
		buf.Write(val)
		if i < len(entries)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}
	buf.WriteString("}\n")
	return buf.Bytes(), nil
}

// marshal encodes v indented under prefix without HTML escaping, so URLs
// keep their literal '&'.
func marshal(v any, prefix string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent(prefix, "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func (b *jsonBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Ranking, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var matched []*storage.Ranking
	for _, e := range b.entries {
		r := *e
		if r.Source == "" {
			r.Source = b.source
		}
		if !filter.Match(&r) {
			continue
		}
		r.URLs = append([]string{}, e.URLs...)
		matched = append(matched, &r)
	}

	return filter.Window(matched), nil
}

// Clear drops the rankings of source and rewrites the artifact, leaving an
// empty object when nothing else remains.
func (b *jsonBackend) Clear(ctx context.Context, source string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	kept := b.entries[:0]
	for _, e := range b.entries {
		s := e.Source
		if s == "" {
			s = b.source
		}
		if source == "" || s == source {
			continue
		}
		kept = append(kept, e)
	}
	b.entries = kept

	return b.flush()
}

func (b *jsonBackend) Close() error {
	return nil
}
