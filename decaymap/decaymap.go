// Package decaymap is a concurrency-safe map whose entries decay after a
// per-entry lifetime. Expiry is checked lazily on read; Cleanup sweeps the
// map so that dead entries do not accumulate forever.
package decaymap

import (
	"sync"
	"time"
)

// Zilch returns the zero value of any type.
func Zilch[T any]() T {
	var zero T
	return zero
}

type entry[V any] struct {
	value  V
	expiry time.Time
}

type Impl[K comparable, V any] struct {
	data map[K]entry[V]
	lock sync.RWMutex
	now  func() time.Time
}

func New[K comparable, V any]() *Impl[K, V] {
	return &Impl[K, V]{
		data: map[K]entry[V]{},
		now:  time.Now,
	}
}

// WithNow overrides the source of time, mainly so tests can fake expiry.
func (m *Impl[K, V]) WithNow(now func() time.Time) *Impl[K, V] {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.now = now
	return m
}

// Get fetches a value if it exists and has not expired. Expired entries are
// deleted on the spot.
func (m *Impl[K, V]) Get(key K) (V, bool) {
	m.lock.RLock()
	e, ok := m.data[key]
	now := m.now()
	m.lock.RUnlock()

	if !ok {
		return Zilch[V](), false
	}

	if now.After(e.expiry) {
		m.lock.Lock()
		// recheck: another goroutine may have replaced the entry
		if cur, ok := m.data[key]; ok && now.After(cur.expiry) {
			delete(m.data, key)
		}
		m.lock.Unlock()
		return Zilch[V](), false
	}

	return e.value, true
}

// Set stores a value that expires ttl from now.
func (m *Impl[K, V]) Set(key K, value V, ttl time.Duration) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.data[key] = entry[V]{
		value:  value,
		expiry: m.now().Add(ttl),
	}
}

// Delete removes a key, reporting whether it was present.
func (m *Impl[K, V]) Delete(key K) bool {
	m.lock.Lock()
	defer m.lock.Unlock()

	_, ok := m.data[key]
	delete(m.data, key)
	return ok
}

// Cleanup removes every expired entry. Callers are expected to run this
// periodically from a background goroutine.
func (m *Impl[K, V]) Cleanup() {
	m.lock.Lock()
	defer m.lock.Unlock()

	now := m.now()
	for key, e := range m.data {
		if now.After(e.expiry) {
			delete(m.data, key)
		}
	}
}

// Len counts the live and dead entries currently held.
func (m *Impl[K, V]) Len() int {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return len(m.data)
}
