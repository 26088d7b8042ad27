package shortener

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sundayezeilo/digestlink/fingerprint"
	"github.com/sundayezeilo/digestlink/internal/errx"
)

// SlugLength is the width of every candidate window cut from a digest.
const SlugLength = 8

// sharedReadTimeout bounds a shared Lookup read when no StoreTimeout is set.
const sharedReadTimeout = 10 * time.Second

// errCollision marks a slug that is already bound to another URL.
var errCollision = errors.New("slug bound to another url")

// Resolver assigns slugs to URLs and looks them up again.
// It keeps no record state of its own; every call reads the Store.
type Resolver struct {
	store        Store
	hasher       fingerprint.Hasher
	storeTimeout time.Duration
	readTimeout  time.Duration
	logger       *slog.Logger
	lookups      singleflight.Group
}

// ResolverConfig holds optional Resolver settings.
type ResolverConfig struct {
	// Hasher derives candidate slugs. Defaults to MD5.
	Hasher fingerprint.Hasher
	// StoreTimeout bounds each store call. Zero leaves only the caller's deadline.
	StoreTimeout time.Duration
	Logger       *slog.Logger
}

// NewResolver creates a Resolver on top of store.
func NewResolver(store Store, config *ResolverConfig) *Resolver {
	if config == nil {
		config = &ResolverConfig{}
	}

	hasher := config.Hasher
	if hasher == nil {
		hasher = fingerprint.HasherFunc(fingerprint.Digest)
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Resolver{
		store:        store,
		hasher:       hasher,
		storeTimeout: max(config.StoreTimeout, 0),
		readTimeout:  sharedReadTimeout,
		logger:       logger,
	}
}

// Resolve returns the slug for rawURL.
//
// With an empty requestedSlug the slug is derived from the URL digest: windows
// of SlugLength characters are probed from offset 0 and the first one that is
// free or already maps to rawURL wins. With a requestedSlug only that slug is
// considered and a different stored URL yields ErrSlugConflict.
//
// Result.Existed reports an idempotent hit, in which case nothing was written.
func (r *Resolver) Resolve(ctx context.Context, rawURL, requestedSlug string) (Result, error) {
	const op = "shortener.Resolver.Resolve"

	if err := validateURL(rawURL); err != nil {
		return Result{}, errx.E(op, errx.Invalid, err)
	}

	if requestedSlug == "" {
		res, err := r.generate(ctx, rawURL)
		if err != nil {
			return Result{}, errx.Wrap(op, err)
		}
		return res, nil
	}

	if err := validateSlug(requestedSlug); err != nil {
		return Result{}, errx.E(op, errx.Invalid, err)
	}

	existed, err := r.claim(ctx, requestedSlug, rawURL)
	switch {
	case errors.Is(err, errCollision):
		return Result{}, errx.E(op, errx.Conflict, fmt.Errorf("%w: %q", ErrSlugConflict, requestedSlug))
	case err != nil:
		return Result{}, errx.Wrap(op, err)
	}
	return Result{Slug: requestedSlug, URL: rawURL, Existed: existed}, nil
}

func (r *Resolver) generate(ctx context.Context, rawURL string) (Result, error) {
	const op = "shortener.Resolver.generate"

	digest := r.hasher.Digest(rawURL)
	for offset := 0; offset+SlugLength <= len(digest); offset++ {
		candidate := digest[offset : offset+SlugLength]

		existed, err := r.claim(ctx, candidate, rawURL)
		if errors.Is(err, errCollision) {
			r.logger.DebugContext(ctx, "slug collision", "slug", candidate, "offset", offset)
			continue
		}
		if err != nil {
			return Result{}, err
		}
		return Result{Slug: candidate, URL: rawURL, Existed: existed}, nil
	}

	r.logger.WarnContext(ctx, "slug space exhausted", "url", rawURL, "digest", digest)
	return Result{}, errx.E(op, errx.Exhausted, ErrSlugSpaceExhausted)
}

// claim binds slug to rawURL unless it is taken. It reports existed=true when
// slug already maps to rawURL and errCollision when it maps to anything else.
func (r *Resolver) claim(ctx context.Context, slug, rawURL string) (bool, error) {
	const op = "shortener.Resolver.claim"

	rec, err := r.get(ctx, slug)
	switch {
	case errx.Is(err, errx.NotFound):
	case err != nil:
		return false, err
	case rec.URL == rawURL:
		return true, nil
	default:
		return false, errCollision
	}

	err = r.put(ctx, Record{Slug: slug, URL: rawURL})
	if err == nil {
		// Lookups already in flight may have read before this write.
		r.lookups.Forget(slug)
		return false, nil
	}
	if !errx.Is(err, errx.Conflict) {
		return false, err
	}

	// Another writer inserted slug between our read and write.
	rec, err = r.get(ctx, slug)
	switch {
	case errx.Is(err, errx.NotFound):
		return false, errx.E(op, errx.Unavailable, fmt.Errorf("slug %q reported taken but is not readable", slug))
	case err != nil:
		return false, err
	case rec.URL == rawURL:
		r.logger.DebugContext(ctx, "insert race reconciled", "slug", slug)
		r.lookups.Forget(slug)
		return true, nil
	default:
		return false, errCollision
	}
}

// Lookup returns the URL stored for slug.
// Concurrent lookups of the same slug share one store read. A read that
// started before a successful Resolve of slug is never shared with callers
// arriving after it.
func (r *Resolver) Lookup(ctx context.Context, slug string) (string, error) {
	const op = "shortener.Resolver.Lookup"

	// Slugs that could never have been stored are not looked up.
	if validateSlug(slug) != nil {
		return "", errx.E(op, errx.NotFound, ErrNotFound)
	}

	ch := r.lookups.DoChan(slug, func() (any, error) {
		shared := context.WithoutCancel(ctx)
		if r.storeTimeout == 0 {
			var cancel context.CancelFunc
			shared, cancel = context.WithTimeout(shared, r.readTimeout)
			defer cancel()
		}
		rec, err := r.get(shared, slug)
		return rec.URL, err
	})

	select {
	case <-ctx.Done():
		return "", errx.E(op, errx.Unavailable, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return "", errx.Wrap(op, res.Err)
		}
		return res.Val.(string), nil
	}
}

func (r *Resolver) get(ctx context.Context, slug string) (Record, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	return r.store.Get(ctx, slug)
}

func (r *Resolver) put(ctx context.Context, rec Record) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	return r.store.Put(ctx, rec)
}

func (r *Resolver) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.storeTimeout == 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.storeTimeout)
}
