// package ratelimit implements a fixed-window request throttle for the
// inbound request boundary.
//
// This is a courtesy throttle: the map is process-local, so each instance in
// a multi-instance deployment enforces its own limits independently. Bursts
// at window boundaries are a known, accepted imprecision of fixed windows.
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

const (
	DefaultLimit  = 60
	DefaultWindow = time.Minute

	// How often the sweep goroutine drops expired windows.
	sweepInterval = 5 * time.Minute
)

// Result reports the outcome of a single limiter check.
type Result struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// record tracks request accounting for one (identifier, limit, window) key.
// Count never decreases within a window.
type record struct {
	count   int
	resetAt time.Time
}

// Limiter is a fixed-window counter keyed by an arbitrary identifier.
//
// Limiters are explicitly owned, injectable values so tests can instantiate
// isolated instances; there is no package-level singleton.
type Limiter struct {
	mu      sync.Mutex
	records map[string]*record
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

// NewLimiter creates a Limiter and starts its background sweep.
// Call Close to stop the sweep goroutine.
func NewLimiter() *Limiter {
	l := &Limiter{
		records: make(map[string]*record),
		now:     time.Now,
		stop:    make(chan struct{}),
	}

	go l.sweepLoop()
	return l
}

// Check records a request for identifier and reports whether it is within
// limit for the current window. Zero or negative limit/window fall back to
// the defaults.
//
// A rejected caller still consumes an accounting slot: the counter is
// incremented before the limit comparison, so there is no refund for
// rejected attempts.
func (l *Limiter) Check(identifier string, limit int, window time.Duration) Result {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}

	key := fmt.Sprintf("%s|%d|%d", identifier, limit, int64(window/time.Millisecond))
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[key]
	if !ok || !rec.resetAt.After(now) {
		rec = &record{count: 0, resetAt: now.Add(window)}
		l.records[key] = rec
	}
	rec.count++

	remaining := limit - rec.count
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Allowed:   rec.count <= limit,
		Remaining: remaining,
		ResetAt:   rec.resetAt,
	}
}

// Sweep removes records whose window has expired and returns how many were
// dropped. Exposed for tests; the background loop calls it periodically to
// bound memory.
func (l *Limiter) Sweep() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	dropped := 0
	for key, rec := range l.records {
		if !rec.resetAt.After(now) {
			delete(l.records, key)
			dropped++
		}
	}
	return dropped
}

// Close stops the background sweep. Safe to call more than once.
func (l *Limiter) Close() {
	l.once.Do(func() { close(l.stop) })
}

func (l *Limiter) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}
