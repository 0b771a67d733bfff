package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/FranksOps/serpdiff/internal/config"
	"github.com/FranksOps/serpdiff/internal/storage"
	"github.com/FranksOps/serpdiff/internal/storage/csvbackend"
	"github.com/FranksOps/serpdiff/internal/storage/jsonbackend"
	"github.com/FranksOps/serpdiff/internal/storage/postgres"
	"github.com/FranksOps/serpdiff/internal/storage/sqlite"
)

// openBackend opens the named storage backend. source labels rankings read
// from a JSON artifact, which does not record it.
func openBackend(ctx context.Context, kind, dsn, source string) (storage.Backend, error) {
	switch kind {
	case "json":
		return jsonbackend.New(dsn, source)
	case "csv":
		return csvbackend.New(dsn)
	case "sqlite":
		return sqlite.New(dsn)
	case "postgres":
		return postgres.New(ctx, dsn)
	}
	return nil, fmt.Errorf("%q: %w", kind, config.ErrUnknownBackend)
}

// backendForPath guesses the backend of a ranking file from its extension.
func backendForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return "csv"
	case ".db", ".sqlite", ".sqlite3":
		return "sqlite"
	}
	return "json"
}
