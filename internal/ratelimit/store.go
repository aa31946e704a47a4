package ratelimit

import (
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// SessionWindow is the per-session, per-tool counter state.
type SessionWindow struct {
	WindowStart time.Time
	LastTs      time.Time
	Total       int
	PerKey      map[string]int
}

func (w *SessionWindow) reset(now time.Time) {
	w.WindowStart = now
	w.LastTs = now
	w.Total = 0
	w.PerKey = make(map[string]int)
}

func (w *SessionWindow) clone() SessionWindow {
	c := *w
	c.PerKey = make(map[string]int, len(w.PerKey))
	for k, v := range w.PerKey {
		c.PerKey[k] = v
	}
	return c
}

type windowEntry struct {
	mu     sync.Mutex
	window *SessionWindow
}

// StoreOptions bounds the memory a Store may hold.
type StoreOptions struct {
	// MaxSessions caps tracked session windows; the least recently used
	// one is dropped first. Default 10000.
	MaxSessions int
	// SessionIdleTTL drops windows that saw no call for this long.
	// Dropping is equivalent to a reset; NewLimiter raises it to twice the
	// policy window when it is shorter. Default 1h.
	SessionIdleTTL time.Duration
	// MaxRuns caps the per-run date-sweep counters. Default 10000.
	MaxRuns int
	// MaxReadPaths caps the per run::path repeat counters. It is kept
	// apart from MaxRuns so many distinct paths cannot evict a run's
	// sweep counter. Default 100000.
	MaxReadPaths int
	// RunIdleTTL drops read counters of runs idle this long. Default 24h.
	RunIdleTTL time.Duration
}

// Store holds session windows and per-run read counters for one process.
// It is owned by a Limiter; nothing else mutates it. State is not
// persisted, so a restart starts every session from zero.
type Store struct {
	mu         sync.Mutex
	maxWindows int
	idleTTL    time.Duration
	windows    *expirable.LRU[string, *windowEntry]
	sweeps     *expirable.LRU[string, int]
	reads      *expirable.LRU[string, int]
}

// NewStore returns an empty store.
func NewStore(opts StoreOptions) *Store {
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = 10000
	}
	if opts.SessionIdleTTL <= 0 {
		opts.SessionIdleTTL = time.Hour
	}
	if opts.MaxRuns <= 0 {
		opts.MaxRuns = 10000
	}
	if opts.MaxReadPaths <= 0 {
		opts.MaxReadPaths = 100000
	}
	if opts.RunIdleTTL <= 0 {
		opts.RunIdleTTL = 24 * time.Hour
	}
	return &Store{
		maxWindows: opts.MaxSessions,
		idleTTL:    opts.SessionIdleTTL,
		windows:    expirable.NewLRU[string, *windowEntry](opts.MaxSessions, nil, opts.SessionIdleTTL),
		sweeps:     expirable.NewLRU[string, int](opts.MaxRuns, nil, opts.RunIdleTTL),
		reads:      expirable.NewLRU[string, int](opts.MaxReadPaths, nil, opts.RunIdleTTL),
	}
}

// IdleTTL reports how long an idle session window is kept.
func (s *Store) IdleTTL() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idleTTL
}

// ensureIdleTTL keeps idle windows strictly longer than window, so a
// window is only ever reset by the limiter's own expiry rule. Tracked
// windows move to the new cache with their state.
func (s *Store) ensureIdleTTL(window time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idleTTL > window {
		return
	}
	s.idleTTL = 2 * window
	grown := expirable.NewLRU[string, *windowEntry](s.maxWindows, nil, s.idleTTL)
	for _, key := range s.windows.Keys() {
		if e, ok := s.windows.Peek(key); ok {
			grown.Add(key, e)
		}
	}
	s.windows = grown
}

func (s *Store) countersFor(key string) *expirable.LRU[string, int] {
	if strings.HasPrefix(key, sweepPrefix) {
		return s.sweeps
	}
	return s.reads
}

// update runs fn on the window for key with that window's lock held, so
// concurrent calls for the same session never lose an increment. Calls
// for different sessions proceed in parallel.
func (s *Store) update(key string, fn func(w *SessionWindow)) {
	s.mu.Lock()
	e, ok := s.windows.Get(key)
	if !ok {
		e = &windowEntry{}
	}
	s.windows.Add(key, e) // refreshes the idle TTL
	s.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.window == nil {
		e.window = &SessionWindow{PerKey: make(map[string]int)}
	}
	fn(e.window)
}

// incr bumps a per-run counter and returns its new value.
func (s *Store) incr(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	counters := s.countersFor(key)
	n, _ := counters.Get(key)
	n++
	counters.Add(key, n)
	return n
}

// Snapshot returns a copy of the window stored under key.
func (s *Store) Snapshot(key string) (SessionWindow, bool) {
	s.mu.Lock()
	e, ok := s.windows.Peek(key)
	s.mu.Unlock()
	if !ok {
		return SessionWindow{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.window == nil {
		return SessionWindow{}, false
	}
	return e.window.clone(), true
}

// Counter returns the current value of a per-run counter.
func (s *Store) Counter(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, _ := s.countersFor(key).Peek(key)
	return n
}

// Sessions reports how many windows are tracked.
func (s *Store) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.windows.Len()
}

// Reset drops all state, as a process restart would.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windows.Purge()
	s.sweeps.Purge()
	s.reads.Purge()
}

// WindowKey is the store key for a tool's window in a session.
func WindowKey(tool, session string) string {
	if session == "" {
		session = GlobalSession
	}
	return tool + "|" + session
}

const sweepPrefix = "sweep|"

func sweepKey(run string) string {
	return sweepPrefix + run
}

func readKey(run, path string) string {
	return "read|" + run + "::" + path
}
