package gate

import (
	"context"
	"sync"
	"time"
)

// CachedResolver caches profiles for ttl. Entries are keyed by key(subject)
// so subjects sharing a profile, such as users of one role, share an entry.
type CachedResolver[U any, K comparable] struct {
	inner ProfileResolver[U]
	key   func(U) K
	ttl   time.Duration
	now   func() time.Time

	mu    sync.RWMutex
	cache map[K]cacheEntry
}

type cacheEntry struct {
	profile   Profile
	expiresAt time.Time
}

func NewCachedResolver[U any, K comparable](inner ProfileResolver[U], ttl time.Duration, key func(U) K) *CachedResolver[U, K] {
	return &CachedResolver[U, K]{
		inner: inner,
		key:   key,
		ttl:   ttl,
		now:   time.Now,
		cache: make(map[K]cacheEntry),
	}
}

// Resolve returns the cached profile or asks the inner resolver. Errors are
// not cached.
func (r *CachedResolver[U, K]) Resolve(ctx context.Context, subject U) (Profile, error) {
	k := r.key(subject)
	r.mu.RLock()
	entry, ok := r.cache[k]
	r.mu.RUnlock()
	if ok && r.now().Before(entry.expiresAt) {
		return entry.profile, nil
	}

	profile, err := r.inner.Resolve(ctx, subject)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.cache[k] = cacheEntry{profile: profile, expiresAt: r.now().Add(r.ttl)}
	r.mu.Unlock()
	return profile, nil
}

// Invalidate drops one entry, e.g. after the permissions of a role changed.
func (r *CachedResolver[U, K]) Invalidate(key K) {
	r.mu.Lock()
	delete(r.cache, key)
	r.mu.Unlock()
}

func (r *CachedResolver[U, K]) InvalidateAll() {
	r.mu.Lock()
	clear(r.cache)
	r.mu.Unlock()
}
