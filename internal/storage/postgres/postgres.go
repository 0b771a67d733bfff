package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/FranksOps/serpdiff/internal/storage"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ensure postgresBackend implements storage.Backend
var _ storage.Backend = (*postgresBackend)(nil)

type postgresBackend struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS rankings (
	seq BIGSERIAL PRIMARY KEY,
	run_id TEXT NOT NULL,
	source TEXT NOT NULL,
	query TEXT NOT NULL,
	position INTEGER NOT NULL,
	urls JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE (source, query)
);
`

// New creates a new Postgres-backed storage.Backend.
func New(ctx context.Context, dsn string) (storage.Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create postgres schema: %w", err)
	}

	return &postgresBackend{pool: pool}, nil
}

func (b *postgresBackend) Save(ctx context.Context, ranking *storage.Ranking) error {
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
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (source, query) DO UPDATE SET
		run_id = EXCLUDED.run_id,
		position = EXCLUDED.position,
		urls = EXCLUDED.urls,
		created_at = EXCLUDED.created_at
	`

	_, err = b.pool.Exec(ctx, query,
		ranking.RunID,
		ranking.Source,
		ranking.Query,
		ranking.Position,
		urlsJSON,
		ranking.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save ranking %q: %w", ranking.Query, err)
	}

	return nil
}

func (b *postgresBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Ranking, error) {
	query := `SELECT run_id, source, query, position, urls, created_at FROM rankings WHERE 1=1`
	args := []any{}
	paramCount := 1

	if filter.Source != "" {
		query += fmt.Sprintf(` AND source = $%d`, paramCount)
		args = append(args, filter.Source)
		paramCount++
	}
	if filter.Query != "" {
		query += fmt.Sprintf(` AND query = $%d`, paramCount)
		args = append(args, filter.Query)
		paramCount++
	}
	if filter.RunID != "" {
		query += fmt.Sprintf(` AND run_id = $%d`, paramCount)
		args = append(args, filter.RunID)
		paramCount++
	}

	query += ` ORDER BY position ASC, seq ASC`

	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, paramCount)
		args = append(args, filter.Limit)
		paramCount++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, paramCount)
		args = append(args, filter.Offset)
	}

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query rankings: %w", err)
	}
	defer rows.Close()

	var results []*storage.Ranking
	for rows.Next() {
		var r storage.Ranking
		var urlsJSON []byte

		if err := rows.Scan(&r.RunID, &r.Source, &r.Query, &r.Position, &urlsJSON, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ranking: %w", err)
		}
		if err := json.Unmarshal(urlsJSON, &r.URLs); err != nil {
			return nil, fmt.Errorf("decode urls for %q: %w", r.Query, err)
		}

		results = append(results, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rankings: %w", err)
	}

	return results, nil
}

func (b *postgresBackend) Clear(ctx context.Context, source string) error {
	var err error
	if source == "" {
		_, err = b.pool.Exec(ctx, `DELETE FROM rankings`)
	} else {
		_, err = b.pool.Exec(ctx, `DELETE FROM rankings WHERE source = $1`, source)
	}
	if err != nil {
		return fmt.Errorf("clear rankings: %w", err)
	}
	return nil
}

func (b *postgresBackend) Close() error {
	b.pool.Close()
	return nil
}
