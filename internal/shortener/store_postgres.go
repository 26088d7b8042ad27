package shortener

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	selectURLBySlug = `SELECT slug, url FROM urls WHERE slug = $1`
	insertURL       = `INSERT INTO urls (slug, url) VALUES ($1, $2)`
)

// querier is the subset of *pgxpool.Pool used by PostgresStore.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
}

// PostgresStore persists records in the urls table.
// Slug uniqueness is enforced by the table's primary key.
type PostgresStore struct {
	db querier
}

// NewPostgresStore returns a store backed by db, usually a *pgxpool.Pool.
func NewPostgresStore(db querier) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, slug string) (Record, error) {
	const op = "shortener.PostgresStore.Get"

	var rec Record
	if err := s.db.QueryRow(ctx, selectURLBySlug, slug).Scan(&rec.Slug, &rec.URL); err != nil {
		return Record{}, mapStoreError(op, err)
	}
	return rec, nil
}

func (s *PostgresStore) Put(ctx context.Context, rec Record) error {
	const op = "shortener.PostgresStore.Put"

	if _, err := s.db.Exec(ctx, insertURL, rec.Slug, rec.URL); err != nil {
		return mapStoreError(op, err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	const op = "shortener.PostgresStore.Ping"

	if err := s.db.Ping(ctx); err != nil {
		return mapStoreError(op, err)
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
