package pipeline

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// ReadQueries reads one query per line. Lines are trimmed and blank lines
// skipped; order is preserved and duplicates are kept for Collect to report.
func ReadQueries(r io.Reader) ([]string, error) {
	var queries []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		queries = append(queries, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read queries: %w", err)
	}
	return queries, nil
}

// ReadQueriesFile is ReadQueries over the file at path.
func ReadQueriesFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open query list: %w", err)
	}
	defer f.Close()
	return ReadQueries(f)
}

// dedupe drops repeated queries, keeping the first occurrence, and returns
// the dropped ones.
func dedupe(queries []string) (unique, dropped []string) {
	seen := make(map[string]struct{}, len(queries))
	for _, q := range queries {
		if _, ok := seen[q]; ok {
			dropped = append(dropped, q)
			continue
		}
		seen[q] = struct{}{}
		unique = append(unique, q)
	}
	return unique, dropped
}
