// Package ratelimit implements sliding-window request limiting for the
// interaction gate, with one window per actor plus a single global window.
//
// Windows hold explicit event timestamps and are pruned lazily on every
// check, so admission decisions are exact at window boundaries (no bucket
// interpolation).
package ratelimit

import (
	"sort"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// Scope indicates which limit rejected an event.
type Scope string

const (
	ScopeUser   Scope = "user"
	ScopeGlobal Scope = "global"
)

type Config struct {
	Enabled      bool
	UserLimit    int
	UserWindow   time.Duration
	GlobalLimit  int
	GlobalWindow time.Duration
}

func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		UserLimit:    10,
		UserWindow:   60 * time.Second,
		GlobalLimit:  120,
		GlobalWindow: 60 * time.Second,
	}
}

// Verdict is the outcome of a single RecordAndCheck call. Scope is only
// meaningful when Allowed is false.
type Verdict struct {
	Allowed bool
	Scope   Scope
}

// window is an ordered sequence of event timestamps. Timestamps are appended
// in increasing order, so pruning is always a prefix trim.
type window struct {
	mu    sync.Mutex
	times []time.Time
}

// prune drops timestamps older than now-span and returns the remaining count.
// Caller must hold mu.
func (w *window) prune(now time.Time, span time.Duration) int {
	cutoff := now.Add(-span)
	i := sort.Search(len(w.times), func(i int) bool {
		return w.times[i].After(cutoff)
	})
	if i > 0 {
		w.times = append(w.times[:0], w.times[i:]...)
	}
	return len(w.times)
}

// Limiter owns all sliding-window state for one process. Explicit lifecycle
// (New, RecordAndCheck, Reset); no package-level mutable state.
type Limiter struct {
	cfg    Config
	global *window
	actors *xsync.MapOf[string, *window]
}

func New(cfg Config) *Limiter {
	return &Limiter{
		cfg:    cfg,
		global: &window{},
		actors: xsync.NewMapOf[string, *window](),
	}
}

// RecordAndCheck admits or rejects one event at time `now`. The global window
// is consulted first, then the actor's window; only an admitted event is
// recorded (in both windows). Rejected events leave all state untouched.
func (l *Limiter) RecordAndCheck(actorID string, now time.Time) Verdict {
	if !l.cfg.Enabled {
		return Verdict{Allowed: true}
	}

	l.global.mu.Lock()
	defer l.global.mu.Unlock()

	if n := l.global.prune(now, l.cfg.GlobalWindow); n >= l.cfg.GlobalLimit {
		return Verdict{Allowed: false, Scope: ScopeGlobal}
	}

	w, _ := l.actors.LoadOrStore(actorID, &window{})
	w.mu.Lock()
	defer w.mu.Unlock()

	if n := w.prune(now, l.cfg.UserWindow); n >= l.cfg.UserLimit {
		return Verdict{Allowed: false, Scope: ScopeUser}
	}

	w.times = append(w.times, now)
	l.global.times = append(l.global.times, now)
	return Verdict{Allowed: true}
}

// Reset clears all windows, global and per-actor.
func (l *Limiter) Reset() {
	l.global.mu.Lock()
	l.global.times = nil
	l.global.mu.Unlock()
	l.actors.Clear()
}

func (l *Limiter) Config() Config {
	return l.cfg
}
