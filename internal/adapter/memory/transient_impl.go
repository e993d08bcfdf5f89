package memory

import (
	"context"
	"strconv"
	"sync"
	"time"
)

type item struct {
	value     string
	expiresAt time.Time
}

// TransientRepoImpl is an in-process TransientRepository used when no Redis
// address is configured and in tests. It is safe for concurrent use.
type TransientRepoImpl struct {
	mu    sync.Mutex
	items map[string]item
	now   func() time.Time
}

// NewTransientRepo creates a new instance of TransientRepoImpl.
func NewTransientRepo() *TransientRepoImpl {
	return &TransientRepoImpl{items: make(map[string]item), now: time.Now}
}

// WithClock overrides the time source (useful for tests).
func (r *TransientRepoImpl) WithClock(now func() time.Time) *TransientRepoImpl {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
	return r
}

// lookup must be called with mu held.
func (r *TransientRepoImpl) lookup(key string) (item, bool) {
	it, ok := r.items[key]
	if !ok {
		return item{}, false
	}
	if !it.expiresAt.IsZero() && !r.now().Before(it.expiresAt) {
		delete(r.items, key)
		return item{}, false
	}
	return it, true
}

func (r *TransientRepoImpl) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return r.now().Add(ttl)
}

func (r *TransientRepoImpl) Get(ctx context.Context, key string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.lookup(key)
	return it.value, ok, nil
}

func (r *TransientRepoImpl) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[key] = item{value: value, expiresAt: r.expiry(ttl)}
	return nil
}

func (r *TransientRepoImpl) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.lookup(key); ok {
		return false, nil
	}
	r.items[key] = item{value: value, expiresAt: r.expiry(ttl)}
	return true, nil
}

func (r *TransientRepoImpl) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	if it, ok := r.lookup(key); ok {
		parsed, err := strconv.ParseInt(it.value, 10, 64)
		if err != nil {
			return 0, err
		}
		n = parsed
	}
	n++
	r.items[key] = item{value: strconv.FormatInt(n, 10), expiresAt: r.expiry(ttl)}
	return n, nil
}

func (r *TransientRepoImpl) Delete(ctx context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, key)
	return nil
}

func (r *TransientRepoImpl) Ping(ctx context.Context) error {
	return nil
}
