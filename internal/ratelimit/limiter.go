// Package ratelimit implements the per-sender fixed-window limiter that bounds
// successful message writes.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	count   int
	resetAt time.Time
}

// Limiter counts successful writes per key inside a fixed window.
//
// A key's window starts on its first call, or on the first call after the
// previous window expired. Safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string]*entry
	now     func() time.Time
}

// Option customises a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// New builds a limiter allowing max calls per window for each key.
func New(max int, window time.Duration, opts ...Option) *Limiter {
	if max < 1 {
		max = 1
	}
	l := &Limiter{
		max:     max,
		window:  window,
		entries: make(map[string]*entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Max reports the configured number of calls per window.
func (l *Limiter) Max() int {
	return l.max
}

// Allow consumes one slot for key. When the window is full it returns false
// and the time left until the window resets.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	e := l.entries[key]
	if e == nil || now.After(e.resetAt) {
		e = &entry{resetAt: now.Add(l.window)}
		l.entries[key] = e
	}
	if e.count >= l.max {
		return false, e.resetAt.Sub(now)
	}
	e.count++
	return true, 0
}

// Refund gives back a slot consumed by Allow when the write it guarded failed.
func (l *Limiter) Refund(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e := l.entries[key]; e != nil && e.count > 0 {
		e.count--
	}
}

// Sweep drops every entry whose window has expired and returns how many were removed.
func (l *Limiter) Sweep() int {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for key, e := range l.entries {
		if now.After(e.resetAt) {
			delete(l.entries, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Run sweeps expired entries every interval until ctx is cancelled.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.Sweep()
		case <-ctx.Done():
			return
		}
	}
}
