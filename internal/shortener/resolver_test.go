package shortener

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sundayezeilo/digestlink/fingerprint"
	"github.com/sundayezeilo/digestlink/internal/errx"
)

const (
	urlA    = "https://example.com/a"
	digestA = "cd69b81ea00cc2798797293cbc92d643"
	other   = "https://other.example/x"
)

/***************
 * Mocks
 ***************/

// mockStore implements Store with overridable behaviour.
type mockStore struct {
	getFunc  func(ctx context.Context, slug string) (Record, error)
	putFunc  func(ctx context.Context, rec Record) error
	pingFunc func(ctx context.Context) error

	gets atomic.Int32
	puts atomic.Int32
}

func (m *mockStore) Get(ctx context.Context, slug string) (Record, error) {
	m.gets.Add(1)
	if m.getFunc != nil {
		return m.getFunc(ctx, slug)
	}
	return Record{}, errx.E("mockStore.Get", errx.NotFound, ErrNotFound)
}

func (m *mockStore) Put(ctx context.Context, rec Record) error {
	m.puts.Add(1)
	if m.putFunc != nil {
		return m.putFunc(ctx, rec)
	}
	return nil
}

func (m *mockStore) Ping(ctx context.Context) error {
	if m.pingFunc != nil {
		return m.pingFunc(ctx)
	}
	return nil
}

// countingStore counts writes that reach the underlying store.
type countingStore struct {
	Store
	puts atomic.Int32
}

func (s *countingStore) Put(ctx context.Context, rec Record) error {
	s.puts.Add(1)
	return s.Store.Put(ctx, rec)
}

// racingStore lets a rival writer claim rival.Slug right before the first Put for that slug.
type racingStore struct {
	*MemoryStore
	rival Record
	once  sync.Once
}

func (s *racingStore) Put(ctx context.Context, rec Record) error {
	if rec.Slug == s.rival.Slug {
		s.once.Do(func() {
			_ = s.MemoryStore.Put(ctx, s.rival)
		})
	}
	return s.MemoryStore.Put(ctx, rec)
}

// stallingStore snapshots the first Get, then holds it until release is closed.
type stallingStore struct {
	*MemoryStore
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *stallingStore) Get(ctx context.Context, slug string) (Record, error) {
	first := false
	s.once.Do(func() { first = true })

	rec, err := s.MemoryStore.Get(ctx, slug)
	if first {
		close(s.started)
		<-s.release
	}
	return rec, err
}

/***************
 * Helpers
 ***************/

func windows(digest string) []string {
	var out []string
	for offset := 0; offset+SlugLength <= len(digest); offset++ {
		out = append(out, digest[offset:offset+SlugLength])
	}
	return out
}

func seedOther(slugs ...string) []Record {
	recs := make([]Record, 0, len(slugs))
	for _, s := range slugs {
		recs = append(recs, Record{Slug: s, URL: other})
	}
	return recs
}

func constantHasher(digest string) fingerprint.Hasher {
	return fingerprint.HasherFunc(func(string) string { return digest })
}

/***************
 * Auto mode
 ***************/

func TestResolve_AutoNew(t *testing.T) {
	store := NewMemoryStore()
	r := NewResolver(store, nil)

	res, err := r.Resolve(context.Background(), urlA, "")
	require.NoError(t, err)

	assert.Equal(t, Result{Slug: "cd69b81e", URL: urlA, Existed: false}, res)
	assert.Equal(t, 1, store.Len())

	got, err := r.Lookup(context.Background(), "cd69b81e")
	require.NoError(t, err)
	assert.Equal(t, urlA, got)
}

func TestResolve_AutoIdempotent(t *testing.T) {
	store := &countingStore{Store: NewMemoryStore()}
	r := NewResolver(store, nil)
	ctx := context.Background()

	first, err := r.Resolve(ctx, urlA, "")
	require.NoError(t, err)

	second, err := r.Resolve(ctx, urlA, "")
	require.NoError(t, err)

	assert.False(t, first.Existed)
	assert.True(t, second.Existed)
	assert.Equal(t, first.Slug, second.Slug)
	assert.EqualValues(t, 1, store.puts.Load(), "idempotent hit must not write")
}

func TestResolve_AutoCollisionWalksWindows(t *testing.T) {
	w := windows(digestA)
	require.Len(t, w, 25)

	for k := 0; k < 4; k++ {
		t.Run(fmt.Sprintf("%d taken", k), func(t *testing.T) {
			store := NewMemoryStore(seedOther(w[:k]...)...)
			r := NewResolver(store, nil)

			res, err := r.Resolve(context.Background(), urlA, "")
			require.NoError(t, err)
			assert.Equal(t, digestA[k:k+SlugLength], res.Slug)
			assert.False(t, res.Existed)

			for _, s := range w[:k] {
				rec, err := store.Get(context.Background(), s)
				require.NoError(t, err)
				assert.Equal(t, other, rec.URL, "existing mapping %s changed", s)
			}
		})
	}
}

func TestResolve_AutoHitOnLaterWindow(t *testing.T) {
	store := &countingStore{Store: NewMemoryStore(
		Record{Slug: "cd69b81e", URL: other},
		Record{Slug: "d69b81ea", URL: urlA},
	)}
	r := NewResolver(store, nil)

	res, err := r.Resolve(context.Background(), urlA, "")
	require.NoError(t, err)
	assert.Equal(t, Result{Slug: "d69b81ea", URL: urlA, Existed: true}, res)
	assert.Zero(t, store.puts.Load())
}

func TestResolve_AutoExhausted(t *testing.T) {
	store := NewMemoryStore(seedOther(windows(digestA)...)...)
	before := store.Len()
	r := NewResolver(store, nil)

	_, err := r.Resolve(context.Background(), urlA, "")
	require.Error(t, err)
	assert.True(t, errx.Is(err, errx.Exhausted))
	assert.ErrorIs(t, err, ErrSlugSpaceExhausted)
	assert.Equal(t, before, store.Len())

	// Explicit slugs still work after exhaustion.
	res, err := r.Resolve(context.Background(), urlA, "my-slug")
	require.NoError(t, err)
	assert.Equal(t, "my-slug", res.Slug)
}

func TestResolve_AutoExhaustedDegenerateDigest(t *testing.T) {
	store := &mockStore{
		getFunc: func(_ context.Context, slug string) (Record, error) {
			return Record{Slug: slug, URL: other}, nil
		},
	}
	r := NewResolver(store, &ResolverConfig{Hasher: constantHasher(strings.Repeat("a", fingerprint.Size))})

	_, err := r.Resolve(context.Background(), urlA, "")
	assert.ErrorIs(t, err, ErrSlugSpaceExhausted)
	assert.EqualValues(t, 25, store.gets.Load())
	assert.Zero(t, store.puts.Load())
}

func TestResolve_Murmur3Hasher(t *testing.T) {
	h, err := fingerprint.New(fingerprint.Murmur3)
	require.NoError(t, err)

	r := NewResolver(NewMemoryStore(), &ResolverConfig{Hasher: h})

	res, err := r.Resolve(context.Background(), urlA, "")
	require.NoError(t, err)
	assert.Equal(t, h.Digest(urlA)[:SlugLength], res.Slug)
}

/***************
 * Explicit mode
 ***************/

func TestResolve_Explicit(t *testing.T) {
	ctx := context.Background()

	t.Run("new slug", func(t *testing.T) {
		r := NewResolver(NewMemoryStore(), nil)

		res, err := r.Resolve(ctx, urlA, "promo")
		require.NoError(t, err)
		assert.Equal(t, Result{Slug: "promo", URL: urlA, Existed: false}, res)
	})

	t.Run("same url is a hit", func(t *testing.T) {
		store := &countingStore{Store: NewMemoryStore(Record{Slug: "promo", URL: urlA})}
		r := NewResolver(store, nil)

		res, err := r.Resolve(ctx, urlA, "promo")
		require.NoError(t, err)
		assert.True(t, res.Existed)
		assert.Zero(t, store.puts.Load())
	})

	t.Run("different url conflicts", func(t *testing.T) {
		store := NewMemoryStore(Record{Slug: "promo", URL: urlA})
		r := NewResolver(store, nil)

		_, err := r.Resolve(ctx, "https://example.com/b", "promo")
		require.Error(t, err)
		assert.True(t, errx.Is(err, errx.Conflict))
		assert.ErrorIs(t, err, ErrSlugConflict)

		rec, err := store.Get(ctx, "promo")
		require.NoError(t, err)
		assert.Equal(t, urlA, rec.URL, "conflict must not change the mapping")
	})

	t.Run("does not fall through to digest windows", func(t *testing.T) {
		store := &countingStore{Store: NewMemoryStore(Record{Slug: "promo", URL: other})}
		r := NewResolver(store, nil)

		_, err := r.Resolve(ctx, urlA, "promo")
		assert.ErrorIs(t, err, ErrSlugConflict)
		assert.Zero(t, store.puts.Load())
	})

	t.Run("explicit slug equal to a digest window", func(t *testing.T) {
		r := NewResolver(NewMemoryStore(), nil)

		res, err := r.Resolve(ctx, "https://example.com/b", "cd69b81e")
		require.NoError(t, err)
		require.False(t, res.Existed)

		// urlA now collides on its first window and moves on.
		res, err = r.Resolve(ctx, urlA, "")
		require.NoError(t, err)
		assert.Equal(t, "d69b81ea", res.Slug)
	})
}

/***************
 * Validation
 ***************/

func TestResolve_Validation(t *testing.T) {
	tests := []struct {
		name string
		url  string
		slug string
	}{
		{"empty url", "", ""},
		{"no scheme", "example.com/a", ""},
		{"ftp scheme", "ftp://example.com/a", ""},
		{"no host", "https:///path", ""},
		{"url too long", "https://example.com/" + strings.Repeat("a", MaxURLLength), ""},
		{"slug too short", urlA, "ab"},
		{"slug too long", urlA, strings.Repeat("a", MaxSlugLength+1)},
		{"slug leading dash", urlA, "-abc"},
		{"slug trailing underscore", urlA, "abc_"},
		{"slug with space", urlA, "ab cd"},
		{"slug with slash", urlA, "ab/cd"},
		{"slug with unicode", urlA, "añb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mockStore{}
			r := NewResolver(store, nil)

			_, err := r.Resolve(context.Background(), tt.url, tt.slug)
			require.Error(t, err)
			assert.True(t, errx.Is(err, errx.Invalid), "kind = %v", errx.KindOf(err))
			assert.Zero(t, store.gets.Load(), "invalid input must not reach the store")
		})
	}
}

func TestResolve_ValidSlugs(t *testing.T) {
	for _, slug := range []string{"abc", "a-b", "a_b", "ABC123", strings.Repeat("z", MaxSlugLength)} {
		t.Run(slug, func(t *testing.T) {
			r := NewResolver(NewMemoryStore(), nil)
			_, err := r.Resolve(context.Background(), urlA, slug)
			assert.NoError(t, err)
		})
	}
}

/***************
 * Races
 ***************/

func TestResolve_RaceSameURL(t *testing.T) {
	store := &racingStore{MemoryStore: NewMemoryStore(), rival: Record{Slug: "cd69b81e", URL: urlA}}
	r := NewResolver(store, nil)

	res, err := r.Resolve(context.Background(), urlA, "")
	require.NoError(t, err)
	assert.Equal(t, Result{Slug: "cd69b81e", URL: urlA, Existed: true}, res)
}

func TestResolve_RaceDifferentURL(t *testing.T) {
	t.Run("auto mode moves to next window", func(t *testing.T) {
		store := &racingStore{MemoryStore: NewMemoryStore(), rival: Record{Slug: "cd69b81e", URL: other}}
		r := NewResolver(store, nil)

		res, err := r.Resolve(context.Background(), urlA, "")
		require.NoError(t, err)
		assert.Equal(t, "d69b81ea", res.Slug)
		assert.False(t, res.Existed)
	})

	t.Run("explicit mode conflicts", func(t *testing.T) {
		store := &racingStore{MemoryStore: NewMemoryStore(), rival: Record{Slug: "promo", URL: other}}
		r := NewResolver(store, nil)

		_, err := r.Resolve(context.Background(), urlA, "promo")
		assert.ErrorIs(t, err, ErrSlugConflict)
	})
}

func TestResolve_RaceUnreadableAfterConflict(t *testing.T) {
	store := &mockStore{
		putFunc: func(context.Context, Record) error {
			return errx.E("mockStore.Put", errx.Conflict, ErrSlugTaken)
		},
	}
	r := NewResolver(store, nil)

	_, err := r.Resolve(context.Background(), urlA, "")
	require.Error(t, err)
	assert.True(t, errx.Is(err, errx.Unavailable))
	assert.EqualValues(t, 2, store.gets.Load())
}

func TestResolve_ConcurrentSameURL(t *testing.T) {
	store := NewMemoryStore()
	r := NewResolver(store, nil)

	const goroutines = 20
	results := make([]Result, goroutines)
	var wg sync.WaitGroup
	for i := range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := r.Resolve(context.Background(), urlA, "")
			assert.NoError(t, err)
			results[i] = res
		}()
	}
	wg.Wait()

	created := 0
	for _, res := range results {
		assert.Equal(t, "cd69b81e", res.Slug)
		if !res.Existed {
			created++
		}
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, store.Len())
}

func TestResolve_ConcurrentSharedDigest(t *testing.T) {
	store := NewMemoryStore()
	r := NewResolver(store, &ResolverConfig{Hasher: constantHasher(digestA)})

	const goroutines = 10
	slugs := make([]string, goroutines)
	var wg sync.WaitGroup
	for i := range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := r.Resolve(context.Background(), fmt.Sprintf("https://example.com/%d", i), "")
			assert.NoError(t, err)
			slugs[i] = res.Slug
		}()
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, s := range slugs {
		assert.False(t, seen[s], "slug %s assigned twice", s)
		seen[s] = true
	}
	assert.Len(t, seen, goroutines)
	assert.Equal(t, goroutines, store.Len())
}

/***************
 * Store failures
 ***************/

func TestResolve_StoreErrors(t *testing.T) {
	refused := errors.New("connection refused")

	t.Run("get failure", func(t *testing.T) {
		store := &mockStore{
			getFunc: func(context.Context, string) (Record, error) {
				return Record{}, errx.E("mockStore.Get", errx.Unavailable, refused)
			},
		}
		r := NewResolver(store, nil)

		_, err := r.Resolve(context.Background(), urlA, "")
		require.Error(t, err)
		assert.True(t, errx.Is(err, errx.Unavailable))
		assert.ErrorIs(t, err, refused)
		assert.EqualValues(t, 1, store.gets.Load(), "store errors must not advance to the next window")
	})

	t.Run("put failure", func(t *testing.T) {
		store := &mockStore{
			putFunc: func(context.Context, Record) error {
				return errx.E("mockStore.Put", errx.Unavailable, refused)
			},
		}
		r := NewResolver(store, nil)

		_, err := r.Resolve(context.Background(), urlA, "promo")
		require.Error(t, err)
		assert.True(t, errx.Is(err, errx.Unavailable))
		assert.EqualValues(t, 1, store.puts.Load())
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		r := NewResolver(NewMemoryStore(), nil)
		_, err := r.Resolve(ctx, urlA, "")
		assert.True(t, errx.Is(err, errx.Unavailable))
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("store timeout", func(t *testing.T) {
		store := &mockStore{
			getFunc: func(ctx context.Context, _ string) (Record, error) {
				<-ctx.Done()
				return Record{}, errx.E("mockStore.Get", errx.Unavailable, ctx.Err())
			},
		}
		r := NewResolver(store, &ResolverConfig{StoreTimeout: 10 * time.Millisecond})

		_, err := r.Resolve(context.Background(), urlA, "")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

/***************
 * Lookup
 ***************/

func TestLookup(t *testing.T) {
	ctx := context.Background()

	t.Run("known slug", func(t *testing.T) {
		r := NewResolver(NewMemoryStore(Record{Slug: "promo", URL: urlA}), nil)

		got, err := r.Lookup(ctx, "promo")
		require.NoError(t, err)
		assert.Equal(t, urlA, got)
	})

	t.Run("unknown slug", func(t *testing.T) {
		r := NewResolver(NewMemoryStore(), nil)

		_, err := r.Lookup(ctx, "missing")
		assert.True(t, errx.Is(err, errx.NotFound))
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("malformed slug skips store", func(t *testing.T) {
		store := &mockStore{}
		r := NewResolver(store, nil)

		for _, slug := range []string{"", "a", "bad slug", "-abc"} {
			_, err := r.Lookup(ctx, slug)
			assert.True(t, errx.Is(err, errx.NotFound), "slug %q", slug)
		}
		assert.Zero(t, store.gets.Load())
	})

	t.Run("store failure", func(t *testing.T) {
		store := &mockStore{
			getFunc: func(context.Context, string) (Record, error) {
				return Record{}, errx.E("mockStore.Get", errx.Unavailable, errors.New("timeout"))
			},
		}
		r := NewResolver(store, nil)

		_, err := r.Lookup(ctx, "promo")
		assert.True(t, errx.Is(err, errx.Unavailable))
	})

	t.Run("caller cancellation", func(t *testing.T) {
		release := make(chan struct{})
		defer close(release)

		store := &mockStore{
			getFunc: func(context.Context, string) (Record, error) {
				<-release
				return Record{Slug: "promo", URL: urlA}, nil
			},
		}
		r := NewResolver(store, nil)

		cctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()

		_, err := r.Lookup(cctx, "promo")
		assert.True(t, errx.Is(err, errx.Unavailable))
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestLookup_SharesConcurrentReads(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)

	store := &mockStore{
		getFunc: func(context.Context, string) (Record, error) {
			select {
			case started <- struct{}{}:
			default:
			}
			<-release
			return Record{Slug: "promo", URL: urlA}, nil
		},
	}
	r := NewResolver(store, nil)

	const goroutines = 10
	var wg sync.WaitGroup
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := r.Lookup(context.Background(), "promo")
			assert.NoError(t, err)
			assert.Equal(t, urlA, got)
		}()
	}

	<-started
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Less(t, store.gets.Load(), int32(goroutines))
}

func TestLookup_SeesOwnWriteDespiteInFlightRead(t *testing.T) {
	store := &stallingStore{
		MemoryStore: NewMemoryStore(),
		started:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	r := NewResolver(store, nil)
	ctx := context.Background()

	stale := make(chan error, 1)
	go func() {
		_, err := r.Lookup(ctx, "cd69b81e")
		stale <- err
	}()
	<-store.started

	res, err := r.Resolve(ctx, urlA, "")
	require.NoError(t, err)
	require.Equal(t, "cd69b81e", res.Slug)

	got, err := r.Lookup(ctx, res.Slug)
	close(store.release)
	require.NoError(t, err)
	assert.Equal(t, urlA, got)

	// The read that began before the write still reports what it saw.
	assert.True(t, errx.Is(<-stale, errx.NotFound))
}

func TestLookup_SharedReadBoundedWithoutStoreTimeout(t *testing.T) {
	readErr := make(chan error, 1)
	store := &mockStore{
		getFunc: func(ctx context.Context, _ string) (Record, error) {
			<-ctx.Done()
			readErr <- ctx.Err()
			return Record{}, errx.E("mockStore.Get", errx.Unavailable, ctx.Err())
		},
	}
	r := NewResolver(store, nil)
	r.readTimeout = 20 * time.Millisecond

	cctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Lookup(cctx, "promo")
	assert.True(t, errx.Is(err, errx.Unavailable))

	select {
	case err := <-readErr:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("shared read was never cancelled")
	}
}

func TestNewResolver_Defaults(t *testing.T) {
	r := NewResolver(NewMemoryStore(), &ResolverConfig{StoreTimeout: -time.Second})

	assert.NotNil(t, r.hasher)
	assert.NotNil(t, r.logger)
	assert.Zero(t, r.storeTimeout)
	assert.Equal(t, sharedReadTimeout, r.readTimeout)
}
