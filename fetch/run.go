package fetch

import (
	"context"
	"sync"
	"time"

	"github.com/geosift/geosift/errors"
	"github.com/geosift/geosift/geo"
)

// RunStatus is the current state of a fetch run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Run is a handle to one background fetch for a (plugin, target) pair.
// The producing goroutine reports through the progress channel and the
// done channel; everything else is safe to read from any goroutine.
type Run struct {
	PluginName string
	Target     geo.Target
	StartedAt  time.Time

	cancel context.CancelFunc
	sink   *progressSink
	done   chan struct{}

	mu          sync.Mutex
	status      RunStatus
	locations   []geo.StandardizedLocation
	err         error
	completedAt *time.Time
}

func newRun(pluginName string, target geo.Target, cancel context.CancelFunc) *Run {
	return &Run{
		PluginName: pluginName,
		Target:     target,
		StartedAt:  time.Now(),
		cancel:     cancel,
		sink:       newProgressSink(),
		done:       make(chan struct{}),
		status:     RunStatusRunning,
	}
}

// Progress returns the run's report stream. The channel closes when the
// run ends; a consumer that falls behind misses intermediate reports.
func (r *Run) Progress() <-chan Progress {
	return r.sink.ch
}

// Done returns a channel that closes when the run ends.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Cancel asks the run to stop. Cancellation is cooperative: the fetch
// loop notices within one page. Whatever accumulated stays retrievable
// through Result.
func (r *Run) Cancel() {
	r.cancel()
}

// Status returns the run's current state.
func (r *Run) Status() RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Result returns what the run produced. On failure or cancellation the
// locations hold whatever standardized before the interruption. Only
// meaningful once Done has closed.
func (r *Run) Result() ([]geo.StandardizedLocation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.locations, r.err
}

// CompletedAt returns when the run ended, if it has.
func (r *Run) CompletedAt() (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.completedAt == nil {
		return time.Time{}, false
	}
	return *r.completedAt, true
}

// Wait blocks until the run ends or ctx expires, then returns the
// result. The run keeps going if only the wait is abandoned.
func (r *Run) Wait(ctx context.Context) ([]geo.StandardizedLocation, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-r.done:
		return r.Result()
	}
}

// finish records the outcome and releases waiters. Called exactly once,
// by the producing goroutine.
func (r *Run) finish(locations []geo.StandardizedLocation, err error) {
	r.mu.Lock()
	r.locations = locations
	r.err = err
	now := time.Now()
	r.completedAt = &now
	switch {
	case err == nil:
		r.status = RunStatusCompleted
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		r.status = RunStatusCancelled
	default:
		r.status = RunStatusFailed
	}
	r.mu.Unlock()

	r.sink.close()
	close(r.done)
}
