// Package fetch drives paginated location retrieval from plugins under
// rate limiting, with progress reporting and cooperative cancellation.
package fetch

import (
	"context"
	"sync"
	"time"

	"github.com/geosift/geosift/errors"
	"github.com/geosift/geosift/plugin"
)

// Default request budget for plugins that declare none.
const (
	DefaultMaxCalls = 60
	DefaultWindow   = time.Minute
)

// Limiter enforces max calls per trailing window using a sliding window
// over recorded call times. Safe for concurrent use; one limiter per
// plugin gives a provider-wide quota shared across fetch loops.
type Limiter struct {
	maxCalls  int
	window    time.Duration
	mu        sync.Mutex
	callTimes []time.Time
	timeNow   func() time.Time
}

// NewLimiter creates a limiter allowing maxCalls per trailing window.
func NewLimiter(maxCalls int, window time.Duration) *Limiter {
	return NewLimiterWithClock(maxCalls, window, time.Now)
}

// NewLimiterWithClock creates a limiter with an injectable clock for
// tests. Out-of-range inputs fall back to the defaults.
func NewLimiterWithClock(maxCalls int, window time.Duration, timeNow func() time.Time) *Limiter {
	if maxCalls < 1 {
		maxCalls = DefaultMaxCalls
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if timeNow == nil {
		timeNow = time.Now
	}
	return &Limiter{
		maxCalls:  maxCalls,
		window:    window,
		callTimes: make([]time.Time, 0, maxCalls),
		timeNow:   timeNow,
	}
}

// LimiterFromManifest builds a limiter from a plugin's declared request
// budget. A nil declaration gets the default budget.
func LimiterFromManifest(decl *plugin.RateLimit) *Limiter {
	if decl == nil {
		return NewLimiter(DefaultMaxCalls, DefaultWindow)
	}
	return NewLimiter(decl.MaxCalls, time.Duration(decl.WindowSeconds*float64(time.Second)))
}

// Allow records a call if one fits in the window right now, or returns
// ErrRateLimited without blocking.
func (l *Limiter) Allow() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.timeNow()
	l.removeExpiredCalls(now)

	if len(l.callTimes) >= l.maxCalls {
		return errors.Wrapf(errors.ErrRateLimited, "%d calls in the last %s (limit %d)",
			len(l.callTimes), l.window, l.maxCalls)
	}

	l.callTimes = append(l.callTimes, now)
	return nil
}

// Wait blocks until a call slot opens, then records the call. The sleep
// lasts exactly until the oldest recorded call leaves the window;
// waiters re-check afterwards because a concurrent caller may have taken
// the freed slot.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.timeNow()
		l.removeExpiredCalls(now)
		if len(l.callTimes) < l.maxCalls {
			l.callTimes = append(l.callTimes, now)
			l.mu.Unlock()
			return nil
		}
		wait := l.callTimes[0].Add(l.window).Sub(now)
		l.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// removeExpiredCalls removes call timestamps outside the sliding window.
// Must be called with the lock held; timestamps are ordered, so expired
// entries form a prefix.
func (l *Limiter) removeExpiredCalls(now time.Time) {
	cutoff := now.Add(-l.window)

	expired := 0
	for _, callTime := range l.callTimes {
		if !callTime.After(cutoff) {
			expired++
		} else {
			break
		}
	}

	l.callTimes = l.callTimes[expired:]
}

// Reset clears the recorded calls.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.callTimes = l.callTimes[:0]
}

// Stats returns how many calls sit in the current window and how many
// remain before Wait would block.
func (l *Limiter) Stats() (callsInWindow int, remaining int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.removeExpiredCalls(l.timeNow())

	callsInWindow = len(l.callTimes)
	remaining = l.maxCalls - callsInWindow
	if remaining < 0 {
		remaining = 0
	}

	return callsInWindow, remaining
}
