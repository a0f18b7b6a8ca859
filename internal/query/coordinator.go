// Package query is the console's process-wide cache of resource collections.
//
// A Coordinator keeps one entry per Key. Reads return whatever is cached and
// revalidate stale entries in the background; concurrent reads of the same
// key share one outstanding fetch. Mutations elsewhere in the console call
// Invalidate and Refetch so the next render shows the server's state.
package query

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	defaultGCTime       = 5 * time.Minute
	defaultFetchTimeout = 15 * time.Second
)

// Cache event names reported to an Observer.
const (
	EventHit        = "hit"
	EventMiss       = "miss"
	EventFetch      = "fetch"
	EventFetchError = "fetch_error"
	EventDiscarded  = "discarded"
)

// ErrNoFetcher is recorded on an entry whose resource has no registered Fetcher.
var ErrNoFetcher = errors.New("no fetcher registered")

// errSuperseded cancels a fetch whose key was invalidated while it ran.
var errSuperseded = errors.New("superseded by invalidation")

// Key identifies one cached collection.
type Key struct {
	Resource string
	Params   string
}

// ResourceKey returns the key of a resource's unfiltered collection.
func ResourceKey(resource string) Key {
	return Key{Resource: resource}
}

func (k Key) String() string {
	if k.Params == "" {
		return k.Resource
	}
	return k.Resource + "?" + k.Params
}

// Fetcher loads the collection for key.
type Fetcher func(ctx context.Context, key Key) (any, error)

// Observer receives cache events, typically to count them.
type Observer interface {
	CacheEvent(resource, event string)
}

// Result is a point-in-time view of one entry.
type Result struct {
	Data      any
	HasData   bool
	IsLoading bool
	IsError   bool
	Error     error
	IsStale   bool
	UpdatedAt time.Time
}

// Options configures a Coordinator.
type Options struct {
	// StaleTime is how long loaded data counts as fresh. Zero means stale
	// immediately after load.
	StaleTime time.Duration
	// GCTime evicts entries that have not been read for this long.
	GCTime time.Duration
	// FetchTimeout bounds every fetch.
	FetchTimeout time.Duration

	Logger   zerolog.Logger
	Observer Observer
	Now      func() time.Time
}

// Coordinator caches resource collections.
type Coordinator struct {
	opts Options

	mu       sync.Mutex
	fetchers map[string]Fetcher
	entries  *ttlcache.Cache[Key, *entry]
	group    singleflight.Group
}

type entry struct {
	data      any
	hasData   bool
	err       error
	updatedAt time.Time

	invalidated bool
	// dispatched is the sequence number of the most recent request.
	dispatched uint64
	// applied is the sequence number of the request whose outcome is stored.
	applied uint64
	// invalidSeq marks requests dispatched before the last invalidation.
	invalidSeq uint64
	inflight   int

	// running is closed when the fetcher call in progress returns.
	running chan struct{}
	cancel  context.CancelCauseFunc
}

// New returns a started Coordinator. Call Close to stop its eviction loop.
func New(opts Options) *Coordinator {
	if opts.GCTime <= 0 {
		opts.GCTime = defaultGCTime
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = defaultFetchTimeout
	}
	if opts.StaleTime < 0 {
		opts.StaleTime = 0
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	entries := ttlcache.New(
		ttlcache.WithTTL[Key, *entry](opts.GCTime),
	)
	go entries.Start()

	return &Coordinator{
		opts:     opts,
		fetchers: make(map[string]Fetcher),
		entries:  entries,
	}
}

// Close stops background eviction.
func (c *Coordinator) Close() {
	c.entries.Stop()
}

// Register binds a Fetcher to a resource name. Registering again replaces it.
func (c *Coordinator) Register(resource string, fetcher Fetcher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetchers[resource] = fetcher
}

// Query returns the cached value for key without blocking. A fetch starts in
// the background when the entry is absent or stale.
func (c *Coordinator) Query(ctx context.Context, key Key) Result {
	res, _ := c.read(ctx, key)
	return res
}

// Await is Query for server rendering: when nothing has been loaded yet it
// waits for the fetch, bounded by ctx. Stale data is returned immediately
// while the refresh runs in the background.
func (c *Coordinator) Await(ctx context.Context, key Key) (Result, error) {
	for {
		res, flight := c.read(ctx, key)
		if res.HasData || flight == nil {
			return res, nil
		}

		select {
		case out := <-flight:
			if errors.Is(out.Err, errSuperseded) && ctx.Err() == nil {
				continue
			}
			return c.Peek(key), nil
		case <-ctx.Done():
			res = c.Peek(key)
			res.IsLoading = true
			return res, ctx.Err()
		}
	}
}

// Peek returns the current view of key without fetching or extending its life.
func (c *Coordinator) Peek(key Key) Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.lookup(key, false)
	if e == nil {
		return Result{IsStale: true}
	}
	return c.snapshot(e)
}

// Invalidate marks key stale. Cached data stays readable. A fetch already in
// flight is cancelled and no longer joined by later reads; the next fetch of
// key starts once it has returned.
func (c *Coordinator) Invalidate(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidateLocked(key)
}

// InvalidateResource marks every cached key of resource stale.
func (c *Coordinator) InvalidateResource(resource string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range c.keysLocked(resource) {
		c.invalidateLocked(key)
	}
}

// Refetch fetches key now regardless of staleness and waits for the outcome.
// On failure the previous data is kept and the error is recorded with it.
func (c *Coordinator) Refetch(ctx context.Context, key Key) (Result, error) {
	for {
		select {
		case out := <-c.start(ctx, key):
			if errors.Is(out.Err, errSuperseded) && ctx.Err() == nil {
				continue
			}
			return c.Peek(key), out.Err
		case <-ctx.Done():
			return c.Peek(key), ctx.Err()
		}
	}
}

// RefetchResource refetches every cached key of resource concurrently.
func (c *Coordinator) RefetchResource(ctx context.Context, resource string) error {
	c.mu.Lock()
	keys := c.keysLocked(resource)
	c.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, key := range keys {
		g.Go(func() error {
			_, err := c.Refetch(gctx, key)
			if err != nil {
				return fmt.Errorf("refetching %s: %w", key, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// read snapshots key and starts a fetch when the entry is absent or stale.
// The returned channel is nil when no fetch was needed.
func (c *Coordinator) read(ctx context.Context, key Key) (Result, <-chan singleflight.Result) {
	c.mu.Lock()
	e := c.lookup(key, true)
	res := c.snapshot(e)
	c.mu.Unlock()

	if res.HasData && !res.IsStale {
		c.observe(key, EventHit)
		return res, nil
	}

	c.observe(key, EventMiss)
	flight := c.start(ctx, key)
	res.IsLoading = true
	return res, flight
}

func (c *Coordinator) start(ctx context.Context, key Key) <-chan singleflight.Result {
	// Shared fetches outlive the caller that started them but keep its values.
	detached := context.WithoutCancel(ctx)
	return c.group.DoChan(key.String(), func() (any, error) {
		return c.fetch(detached, key)
	})
}

func (c *Coordinator) fetch(ctx context.Context, key Key) (data any, err error) {
	c.mu.Lock()
	fetcher, ok := c.fetchers[key.Resource]
	e := c.lookup(key, true)
	e.inflight++
	// One fetcher call per key at a time.
	for e.running != nil {
		running := e.running
		c.mu.Unlock()
		<-running
		c.mu.Lock()
	}
	done := make(chan struct{})
	fetchCtx, cancel := context.WithCancelCause(ctx)
	e.running, e.cancel = done, cancel
	e.dispatched++
	seq := e.dispatched
	c.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			data, err = nil, fmt.Errorf("fetching %s: panic: %v", key, r)
		}
		cancel(nil)
		c.apply(key, e, done, seq, data, err)
	}()

	if !ok {
		return nil, fmt.Errorf("fetching %s: %w", key, ErrNoFetcher)
	}

	c.observe(key, EventFetch)
	timeoutCtx, cancelTimeout := context.WithTimeout(fetchCtx, c.opts.FetchTimeout)
	defer cancelTimeout()

	data, err = fetcher(timeoutCtx, key)
	if err != nil {
		if errors.Is(context.Cause(fetchCtx), errSuperseded) {
			return nil, fmt.Errorf("fetching %s: %w", key, errSuperseded)
		}
		return nil, fmt.Errorf("fetching %s: %w", key, err)
	}
	return data, nil
}

// apply stores the outcome of request seq and releases owner for the next
// fetch of key.
func (c *Coordinator) apply(key Key, owner *entry, done chan struct{}, seq uint64, data any, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer close(done)

	if owner.running == done {
		owner.running, owner.cancel = nil, nil
	}

	if owner.inflight > 0 {
		owner.inflight--
	}
	e := c.lookup(key, true)

	if errors.Is(err, errSuperseded) {
		c.observe(key, EventDiscarded)
		c.opts.Logger.Debug().Str("key", key.String()).Uint64("seq", seq).Msg("discarding superseded fetch")
		return
	}

	if seq <= e.applied {
		c.observe(key, EventDiscarded)
		c.opts.Logger.Debug().
			Str("key", key.String()).
			Uint64("seq", seq).
			Uint64("applied_seq", e.applied).
			Msg("discarding out-of-order response")
		return
	}
	e.applied = seq

	if err != nil {
		e.err = err
		c.observe(key, EventFetchError)
		c.opts.Logger.Warn().Err(err).Str("key", key.String()).Bool("has_data", e.hasData).Msg("fetch failed")
		return
	}

	e.data = data
	e.hasData = true
	e.err = nil
	e.updatedAt = c.opts.Now()
	e.invalidated = seq <= e.invalidSeq
}

func (c *Coordinator) invalidateLocked(key Key) {
	e := c.lookup(key, false)
	if e == nil {
		return
	}
	e.invalidated = true
	e.invalidSeq = e.dispatched
	if e.cancel != nil {
		e.cancel(errSuperseded)
	}
	c.group.Forget(key.String())
}

// lookup must be called with c.mu held.
func (c *Coordinator) lookup(key Key, create bool) *entry {
	if create {
		if item := c.entries.Get(key); item != nil {
			return item.Value()
		}
		e := &entry{}
		c.entries.Set(key, e, ttlcache.DefaultTTL)
		return e
	}

	item := c.entries.Get(key, ttlcache.WithDisableTouchOnHit[Key, *entry]())
	if item == nil {
		return nil
	}
	return item.Value()
}

func (c *Coordinator) keysLocked(resource string) []Key {
	var keys []Key
	for _, key := range c.entries.Keys() {
		if key.Resource == resource {
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Params < keys[j].Params })
	return keys
}

func (c *Coordinator) snapshot(e *entry) Result {
	stale := !e.hasData || e.invalidated || c.opts.Now().Sub(e.updatedAt) >= c.opts.StaleTime
	return Result{
		Data:      e.data,
		HasData:   e.hasData,
		IsLoading: e.inflight > 0,
		IsError:   e.err != nil,
		Error:     e.err,
		IsStale:   stale,
		UpdatedAt: e.updatedAt,
	}
}

func (c *Coordinator) observe(key Key, event string) {
	if c.opts.Observer != nil {
		c.opts.Observer.CacheEvent(key.Resource, event)
	}
}

// Data returns r.Data as T, or the zero value when absent or of another type.
func Data[T any](r Result) T {
	v, _ := r.Data.(T)
	return v
}
