package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/FranksOps/serpdiff/internal/storage"
	_ "modernc.org/sqlite"
)

// ensure sqliteBackend implements storage.Backend
var _ storage.Backend = (*sqliteBackend)(nil)

type sqliteBackend struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS rankings (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	source TEXT NOT NULL,
	query TEXT NOT NULL,
	position INTEGER NOT NULL,
	urls TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	UNIQUE (source, query)
);
`

// New creates a new SQLite-backed storage.Backend.
func New(dsn string) (storage.Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite serializes writers; a single connection avoids SQLITE_BUSY
	// under concurrent collection workers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}

	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) Save(ctx context.Context, ranking *storage.Ranking) error {
	if ranking == nil {
		return errors.New("save: nil ranking")
	}

	urls := ranking.URLs
	if urls == nil {
		urls = []string{}
	}
	urlsJSON, err := json.Marshal(urls)
	if err != nil {
		return fmt.Errorf("encode urls: %w", err)
	}

	query := `
	INSERT INTO rankings (run_id, source, query, position, urls, created_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT (source, query) DO UPDATE SET
		run_id = excluded.run_id,
		position = excluded.position,
		urls = excluded.urls,
		created_at = excluded.created_at
	`

	_, err = b.db.ExecContext(ctx, query,
		ranking.RunID,
		ranking.Source,
		ranking.Query,
		ranking.Position,
		string(urlsJSON),
		ranking.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save ranking %q: %w", ranking.Query, err)
	}

	return nil
}

func (b *sqliteBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Ranking, error) {
	query := `SELECT run_id, source, query, position, urls, created_at FROM rankings WHERE 1=1`
	args := []any{}

	if filter.Source != "" {
		query += ` AND source = ?`
		args = append(args, filter.Source)
	}
	if filter.Query != "" {
		query += ` AND query = ?`
		args = append(args, filter.Query)
	}
	if filter.RunID != "" {
		query += ` AND run_id = ?`
		args = append(args, filter.RunID)
	}

	query += ` ORDER BY position ASC, seq ASC`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	} else if filter.Offset > 0 {
		query += ` LIMIT -1`
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query rankings: %w", err)
	}
	defer rows.Close()

	var results []*storage.Ranking
	for rows.Next() {
		var r storage.Ranking
		var urlsJSON string

		if err := rows.Scan(&r.RunID, &r.Source, &r.Query, &r.Position, &urlsJSON, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ranking: %w", err)
		}
		if err := json.Unmarshal([]byte(urlsJSON), &r.URLs); err != nil {
			return nil, fmt.Errorf("decode urls for %q: %w", r.Query, err)
		}

		results = append(results, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rankings: %w", err)
	}

	return results, nil
}

func (b *sqliteBackend) Clear(ctx context.Context, source string) error {
	var err error
	if source == "" {
		_, err = b.db.ExecContext(ctx, `DELETE FROM rankings`)
	} else {
		_, err = b.db.ExecContext(ctx, `DELETE FROM rankings WHERE source = ?`, source)
	}
	if err != nil {
		return fmt.Errorf("clear rankings: %w", err)
	}
	return nil
}

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}
