package forms

import (
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/singleflight"
)

const defaultIdleTTL = 30 * time.Minute

// Registry hands out one value per browser session, created on first use and
// dropped after the session has been idle for the configured TTL.
type Registry[C any] struct {
	items  *ttlcache.Cache[string, C]
	loader ttlcache.Loader[string, C]
}

// NewRegistry returns a started registry. Call Close to stop its eviction loop.
func NewRegistry[C any](idleTTL time.Duration, factory func() C) *Registry[C] {
	if idleTTL <= 0 {
		idleTTL = defaultIdleTTL
	}

	items := ttlcache.New(
		ttlcache.WithTTL[string, C](idleTTL),
	)
	go items.Start()

	loader := ttlcache.LoaderFunc[string, C](
		func(cache *ttlcache.Cache[string, C], sessionID string) *ttlcache.Item[string, C] {
			// A flight that finished between our miss and this load already set it.
			if item := cache.Get(sessionID); item != nil {
				return item
			}
			return cache.Set(sessionID, factory(), ttlcache.DefaultTTL)
		},
	)

	return &Registry[C]{
		items: items,
		// Concurrent first requests of one session must share a single value.
		loader: ttlcache.NewSuppressedLoader[string, C](loader, new(singleflight.Group)),
	}
}

// Get returns the session's value, creating it when absent.
func (r *Registry[C]) Get(sessionID string) C {
	return r.items.Get(sessionID, ttlcache.WithLoader[string, C](r.loader)).Value()
}

// Drop forgets the session's value.
func (r *Registry[C]) Drop(sessionID string) {
	r.items.Delete(sessionID)
}

// Len returns the number of live sessions.
func (r *Registry[C]) Len() int {
	return r.items.Len()
}

// Close stops background eviction.
func (r *Registry[C]) Close() {
	r.items.Stop()
}
