package fetch

import "sync"

// ProgressBufferSize is the capacity of a run's progress channel.
// Reports beyond it are dropped rather than stall the fetch loop.
const ProgressBufferSize = 100

// Progress is one report from a running fetch.
type Progress struct {
	// Percent is monotonic within a run and saturates at 100 on
	// completion. It stays at 0 when no item cap bounds the run.
	Percent int `json:"percent"`

	// Message is a human-readable status line
	Message string `json:"message"`

	// Records is the count accumulated so far
	Records int `json:"records"`

	// Page is the page number just fetched, starting at 1
	Page int `json:"page"`
}

// progressSink delivers progress reports to a bounded channel. Sends
// never block: a consumer that falls behind misses intermediate reports
// but the fetch keeps moving.
type progressSink struct {
	mu      sync.Mutex
	ch      chan Progress
	percent int
	closed  bool
}

func newProgressSink() *progressSink {
	return &progressSink{ch: make(chan Progress, ProgressBufferSize)}
}

// emit sends a report, clamping percent to never regress and never pass
// 100.
func (s *progressSink) emit(percent int, message string, records, page int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	if percent > 100 {
		percent = 100
	}
	if percent < s.percent {
		percent = s.percent
	}
	s.percent = percent

	select {
	case s.ch <- Progress{Percent: percent, Message: message, Records: records, Page: page}:
	default:
		// Channel full, drop (non-blocking)
	}
}

// close ends the report stream. Safe to call more than once.
func (s *progressSink) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// percentFor maps accumulated records onto a 0-99 scale against the item
// cap; 100 is reserved for the completion report. Returns 0 when no cap
// is set, matching an indeterminate total.
func percentFor(fetched, maxItems int) int {
	if maxItems <= 0 {
		return 0
	}
	percent := fetched * 100 / maxItems
	if percent > 99 {
		percent = 99
	}
	return percent
}
