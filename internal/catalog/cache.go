package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

const defaultFetchTimeout = 10 * time.Second

// Observer receives cache events. Implementations must be safe for
// concurrent use.
type Observer interface {
	ObserveCatalogFetch(d time.Duration, err error)
	SetCatalogSize(n int)
	IncStaleServed()
}

type nopObserver struct{}

func (nopObserver) ObserveCatalogFetch(time.Duration, error) {}
func (nopObserver) SetCatalogSize(int)                       {}
func (nopObserver) IncStaleServed()                          {}

// Option configures a Cache.
type Option func(*Cache)

// WithFetchTimeout bounds each upstream fetch. The timeout applies to the
// shared fetch, independent of any single waiter's context.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.fetchTimeout = d
		}
	}
}

// WithLogger sets the logger used for refresh warnings.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithObserver registers an Observer for fetch outcomes.
func WithObserver(o Observer) Option {
	return func(c *Cache) {
		if o != nil {
			c.observer = o
		}
	}
}

// WithOnRefresh registers fn to run with every newly published snapshot.
// It is not called when a stale snapshot is served. fn runs inside the
// shared fetch, so waiters see the snapshot only after it returns.
func WithOnRefresh(fn func(*Snapshot)) Option {
	return func(c *Cache) {
		if fn != nil {
			c.onRefresh = append(c.onRefresh, fn)
		}
	}
}

// Cache holds the current catalog snapshot. Refreshes are single-flight:
// concurrent callers share one upstream fetch and its outcome. The snapshot
// is replaced wholesale, so readers never see a partial catalog.
type Cache struct {
	client       Client
	fetchTimeout time.Duration
	logger       *slog.Logger
	observer     Observer
	onRefresh    []func(*Snapshot)

	current atomic.Pointer[Snapshot]
	version atomic.Uint64
	group   singleflight.Group
}

// NewCache creates an empty cache over client. Nothing is fetched until the
// first Get.
func NewCache(client Client, opts ...Option) *Cache {
	c := &Cache{
		client:       client,
		fetchTimeout: defaultFetchTimeout,
		logger:       slog.Default(),
		observer:     nopObserver{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Current returns the published snapshot, or nil before the first
// successful load. It never fetches.
func (c *Cache) Current() *Snapshot {
	return c.current.Load()
}

// Get returns the current snapshot, fetching it when force is set or when
// nothing has loaded yet. A failed forced refresh returns the previous
// snapshot and logs a warning; with no previous snapshot the error wraps
// ErrUpstreamUnavailable.
func (c *Cache) Get(ctx context.Context, force bool) (*Snapshot, error) {
	if !force {
		if snap := c.current.Load(); snap != nil {
			return snap, nil
		}
	}

	ch := c.group.DoChan("refresh", func() (any, error) {
		return c.refresh(ctx)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Snapshot), nil
	}
}

// refresh runs once per flight. Its context is detached from the caller
// that started the flight so that caller's cancellation does not fail the
// other waiters.
func (c *Cache) refresh(ctx context.Context) (*Snapshot, error) {
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
	defer cancel()

	start := time.Now()
	snap, err := c.client.Fetch(fetchCtx)
	c.observer.ObserveCatalogFetch(time.Since(start), err)

	if err == nil && snap == nil {
		err = fmt.Errorf("%w: client returned no snapshot", ErrMalformedCatalog)
	}
	if err != nil {
		if prev := c.current.Load(); prev != nil {
			c.logger.Warn("catalog: refresh failed, serving stale snapshot",
				"error", err, "version", prev.Version(), "fetched_at", prev.FetchedAt())
			c.observer.IncStaleServed()
			return prev, nil
		}
		if errors.Is(err, ErrUpstreamUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}

	// The version is assigned before publication; the snapshot is immutable
	// once stored.
	snap.version = c.version.Add(1)
	c.current.Store(snap)
	c.observer.SetCatalogSize(snap.Len())
	c.logger.Debug("catalog: refreshed", "version", snap.Version(), "assistants", snap.Len())
	for _, fn := range c.onRefresh {
		fn(snap)
	}
	return snap, nil
}
