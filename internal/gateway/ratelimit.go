package gateway

import (
	"context"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultWindow is the trailing duration attempts are counted over.
	DefaultWindow = 15 * time.Minute
	// DefaultMaxAttempts is the attempt budget per identifier per window.
	DefaultMaxAttempts = 10
	// idleRetention is how long an identifier with no fresh attempts is kept
	// before the sweep drops it.
	idleRetention = time.Hour
)

// AttemptLimiter bounds authentication attempts per identifier within a
// sliding window. Implementations must be safe for concurrent use.
type AttemptLimiter interface {
	// Allow records an attempt for identifier and reports whether it is
	// admitted. The returned count is the number of attempts currently inside
	// the window, including this one when admitted.
	Allow(ctx context.Context, identifier string) (bool, int, error)
}

// SlidingWindowLimiter is the in-process AttemptLimiter. Each identifier owns
// its ordered attempt timestamps behind its own lock, so unrelated
// identifiers never serialize against each other.
type SlidingWindowLimiter struct {
	mu      sync.Mutex
	entries map[string]*windowEntry

	window      time.Duration
	maxAttempts int
	now         func() time.Time
}

type windowEntry struct {
	mu         sync.Mutex
	timestamps []time.Time
}

// NewSlidingWindowLimiter builds a limiter. A nil now func defaults to
// time.Now; tests inject a fake clock.
func NewSlidingWindowLimiter(window time.Duration, maxAttempts int, now func() time.Time) *SlidingWindowLimiter {
	if window <= 0 {
		window = DefaultWindow
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if now == nil {
		now = time.Now
	}
	return &SlidingWindowLimiter{
		entries:     make(map[string]*windowEntry),
		window:      window,
		maxAttempts: maxAttempts,
		now:         now,
	}
}

// Allow implements AttemptLimiter. It recomputes the eligible count from the
// timestamps inside the trailing window on every call; bursts are permitted
// up to the cap.
func (l *SlidingWindowLimiter) Allow(_ context.Context, identifier string) (bool, int, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		identifier = "unknown"
	}

	l.mu.Lock()
	entry, ok := l.entries[identifier]
	if !ok {
		entry = &windowEntry{}
		l.entries[identifier] = entry
	}
	l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	kept := entry.timestamps[:0]
	for _, ts := range entry.timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	entry.timestamps = kept

	if len(entry.timestamps) >= l.maxAttempts {
		return false, len(entry.timestamps), nil
	}

	entry.timestamps = append(entry.timestamps, now)
	return true, len(entry.timestamps), nil
}

// Sweep drops identifiers whose attempts are all older than the retention
// horizon, bounding memory growth. The table lock is held only to snapshot
// the key set, never across the per-entry scans.
func (l *SlidingWindowLimiter) Sweep() int {
	now := l.now()
	horizon := now.Add(-idleRetention)

	l.mu.Lock()
	keys := make([]string, 0, len(l.entries))
	for k := range l.entries {
		keys = append(keys, k)
	}
	l.mu.Unlock()

	removed := 0
	for _, k := range keys {
		l.mu.Lock()
		entry, ok := l.entries[k]
		l.mu.Unlock()
		if !ok {
			continue
		}

		entry.mu.Lock()
		stale := true
		for _, ts := range entry.timestamps {
			if ts.After(horizon) {
				stale = false
				break
			}
		}
		entry.mu.Unlock()

		if stale {
			l.mu.Lock()
			delete(l.entries, k)
			l.mu.Unlock()
			removed++
		}
	}
	return removed
}

// Size returns the number of tracked identifiers.
func (l *SlidingWindowLimiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
