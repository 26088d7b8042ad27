package shortener

import (
	"context"
	"errors"
)

var (
	// ErrNotFound means the slug has no mapping.
	ErrNotFound = errors.New("slug not found")
	// ErrSlugTaken is returned by Store.Put when the slug already exists.
	ErrSlugTaken = errors.New("slug already exists")
	// ErrSlugConflict means a caller-chosen slug is bound to a different URL.
	ErrSlugConflict = errors.New("slug is bound to a different url")
	// ErrSlugSpaceExhausted means every candidate window of the digest is taken by other URLs.
	ErrSlugSpaceExhausted = errors.New("no free slug left in digest")
)

// Store is the persistence port used by the Resolver.
// Implementations must be safe for concurrent use.
//
// Get returns an errx.NotFound error wrapping ErrNotFound when the slug is absent.
// Put inserts only if the slug is absent; when it exists Put returns an
// errx.Conflict error wrapping ErrSlugTaken and leaves the stored record untouched.
// Any other failure is reported as errx.Unavailable.
type Store interface {
	Get(ctx context.Context, slug string) (Record, error)
	Put(ctx context.Context, rec Record) error
	Ping(ctx context.Context) error
}
