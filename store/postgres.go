package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresBackend keeps the document as a single JSONB row keyed by store
// name, for deployments that already run the hub against postgres.
type PostgresBackend struct {
	pool *pgxpool.Pool
	key  string
}

// NewPostgresBackend creates a backend over an existing pool. The documents
// table is created on demand.
func NewPostgresBackend(ctx context.Context, pool *pgxpool.Pool, key string) (*PostgresBackend, error) {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS hub_documents (
			key        TEXT PRIMARY KEY,
			data       JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return nil, err
	}
	return &PostgresBackend{pool: pool, key: key}, nil
}

func (b *PostgresBackend) Load(ctx context.Context) ([]byte, error) {
	var raw []byte
	err := b.pool.QueryRow(ctx,
		`SELECT data FROM hub_documents WHERE key = $1`, b.key).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func (b *PostgresBackend) Save(ctx context.Context, data []byte) error {
	_, err := b.pool.Exec(ctx, `
		INSERT INTO hub_documents (key, data, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		b.key, data)
	return err
}

var _ Backend = (*PostgresBackend)(nil)
