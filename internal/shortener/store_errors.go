package shortener

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"

	"github.com/sundayezeilo/digestlink/internal/errx"
)

// urlsPrimaryKey is the constraint created by the urls migration.
const urlsPrimaryKey = "urls_pkey"

func isSlugUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" &&
		pgErr.ConstraintName == urlsPrimaryKey
}

// mapStoreError translates driver errors into errx kinds the Resolver understands.
func mapStoreError(op string, err error) error {
	switch {
	case errors.Is(err, pgx.ErrNoRows), errors.Is(err, redis.Nil):
		return errx.E(op, errx.NotFound, errors.Join(ErrNotFound, err))

	case isSlugUniqueViolation(err):
		return errx.E(op, errx.Conflict, errors.Join(ErrSlugTaken, err))

	default:
		return errx.E(op, errx.Unavailable, err)
	}
}
