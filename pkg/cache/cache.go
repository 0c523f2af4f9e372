package cache

import (
	"time"

	cache_pkg "github.com/patrickmn/go-cache"
)

// Never keeps an item until it is deleted.
const Never = cache_pkg.NoExpiration

// Handler is a typed view over an in-process expiring cache.
type Handler[V any] struct {
	client *cache_pkg.Cache
	ttl    time.Duration
}

// New creates a cache whose items expire after ttl of inactivity and are swept
// every cleanup interval. A ttl of Never disables expiry.
func New[V any](ttl, cleanup time.Duration) *Handler[V] {
	return &Handler[V]{
		client: cache_pkg.New(ttl, cleanup),
		ttl:    ttl,
	}
}

// OnEvicted registers fn for expired and deleted items.
func (h *Handler[V]) OnEvicted(fn func(key string, value V)) {
	h.client.OnEvicted(func(key string, value interface{}) {
		if v, ok := value.(V); ok {
			fn(key, v)
		}
	})
}

// Set stores value with the default ttl.
func (h *Handler[V]) Set(key string, value V) {
	h.client.Set(key, value, cache_pkg.DefaultExpiration)
}

// Get returns the value for key.
func (h *Handler[V]) Get(key string) (V, bool) {
	var zero V
	raw, ok := h.client.Get(key)
	if !ok {
		return zero, false
	}
	v, ok := raw.(V)
	if !ok {
		return zero, false
	}
	return v, true
}

// Touch resets the ttl of key. It reports whether the key existed.
func (h *Handler[V]) Touch(key string) bool {
	v, ok := h.Get(key)
	if !ok {
		return false
	}
	h.Set(key, v)
	return true
}

// Delete removes key, running the eviction callback.
func (h *Handler[V]) Delete(key string) {
	h.client.Delete(key)
}

// Keys lists unexpired keys.
func (h *Handler[V]) Keys() []string {
	items := h.client.Items()
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	return keys
}

// Len counts stored items, including expired ones not yet swept.
func (h *Handler[V]) Len() int {
	return h.client.ItemCount()
}

// DeleteExpired sweeps expired items now.
func (h *Handler[V]) DeleteExpired() {
	h.client.DeleteExpired()
}

func (h *Handler[V]) Ping() (bool, error) {
	return true, nil
}
