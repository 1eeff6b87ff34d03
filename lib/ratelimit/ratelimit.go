// Package ratelimit bounds per-origin request volume.
//
// The default limiter is a fixed resetting window, matching the behavior the
// rest of the service was tuned against: when a window elapses the counter
// restarts from zero, so an origin can burst up to twice the ceiling across
// a window boundary. That boundary burst is an accepted property of the
// design. SlidingWindow exists for deployments that want smoother limiting,
// but it is deliberately not the default.
package ratelimit

import (
	"sync"
	"time"

	"github.com/uvensys/captchify/decaymap"
)

// Result describes one admission decision.
type Result struct {
	// Allowed is whether the request may proceed.
	Allowed bool

	// Remaining is how many more requests fit in the current window.
	Remaining int

	// ResetAfter is how long until the current window ends.
	ResetAfter time.Duration
}

// Limiter admits or rejects requests by origin key. Admission mutates the
// per-origin state even when the request is rejected.
type Limiter interface {
	Admit(key string) Result
}

type window struct {
	start time.Time
	count int
}

// FixedWindow is the default resetting-window limiter.
type FixedWindow struct {
	lock    sync.Mutex
	windows *decaymap.Impl[string, window]
	limit   int
	length  time.Duration
	now     func() time.Time
}

func NewFixedWindow(limit int, length time.Duration) *FixedWindow {
	return &FixedWindow{
		windows: decaymap.New[string, window](),
		limit:   limit,
		length:  length,
		now:     time.Now,
	}
}

// WithNow overrides the limiter clock for tests.
func (fw *FixedWindow) WithNow(now func() time.Time) *FixedWindow {
	fw.now = now
	fw.windows.WithNow(now)
	return fw
}

func (fw *FixedWindow) Admit(key string) Result {
	fw.lock.Lock()
	defer fw.lock.Unlock()

	now := fw.now()

	w, ok := fw.windows.Get(key)
	if !ok || now.Sub(w.start) > fw.length {
		w = window{start: now}
	}

	w.count++

	// A window whose entry decayed has necessarily elapsed, so eviction
	// never resets a live counter early.
	fw.windows.Set(key, w, fw.length)

	remaining := fw.limit - w.count
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Allowed:    w.count <= fw.limit,
		Remaining:  remaining,
		ResetAfter: fw.length - now.Sub(w.start),
	}
}

// Cleanup evicts windows for origins that have gone quiet.
func (fw *FixedWindow) Cleanup() {
	fw.windows.Cleanup()
}

// SlidingWindow admits a request iff fewer than limit requests were admitted
// in the trailing window. No boundary burst, at the cost of keeping one
// timestamp per recent request.
type SlidingWindow struct {
	lock   sync.Mutex
	hits   map[string][]time.Time
	limit  int
	length time.Duration
	now    func() time.Time
}

func NewSlidingWindow(limit int, length time.Duration) *SlidingWindow {
	return &SlidingWindow{
		hits:   map[string][]time.Time{},
		limit:  limit,
		length: length,
		now:    time.Now,
	}
}

func (sw *SlidingWindow) WithNow(now func() time.Time) *SlidingWindow {
	sw.now = now
	return sw
}

func (sw *SlidingWindow) Admit(key string) Result {
	sw.lock.Lock()
	defer sw.lock.Unlock()

	now := sw.now()
	cutoff := now.Add(-sw.length)

	kept := sw.hits[key][:0]
	for _, at := range sw.hits[key] {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}

	kept = append(kept, now)
	sw.hits[key] = kept

	remaining := sw.limit - len(kept)
	if remaining < 0 {
		remaining = 0
	}

	resetAfter := sw.length
	if len(kept) > 0 {
		resetAfter = kept[0].Add(sw.length).Sub(now)
	}

	return Result{
		Allowed:    len(kept) <= sw.limit,
		Remaining:  remaining,
		ResetAfter: resetAfter,
	}
}

// Cleanup drops origins whose every hit has aged out.
func (sw *SlidingWindow) Cleanup() {
	sw.lock.Lock()
	defer sw.lock.Unlock()

	cutoff := sw.now().Add(-sw.length)
	for key, hits := range sw.hits {
		if len(hits) == 0 || !hits[len(hits)-1].After(cutoff) {
			delete(sw.hits, key)
		}
	}
}
