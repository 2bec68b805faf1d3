package fetch

import (
	"context"
	"sync"
	"time"

	"github.com/geosift/geosift/errors"
	"github.com/geosift/geosift/geo"
	"github.com/geosift/geosift/logger"
)

const (
	// taskBufferSize bounds how many tasks can wait in the pool
	taskBufferSize = 256

	// stopTimeout is how long Stop waits for workers to finish their
	// current task
	stopTimeout = 10 * time.Second
)

// Task names one (plugin, target) collection for the pool.
type Task struct {
	PluginName string
	Target     geo.Target
	Options    Options
}

// TaskResult pairs a task with its outcome. A failed task still carries
// whatever standardized before the failure.
type TaskResult struct {
	Task      Task
	Locations []geo.StandardizedLocation
	Err       error
}

// Pool fans tasks out to a fixed set of workers sharing one
// orchestrator. Usage: Start, Submit each task, Close, then drain
// Results until it closes. One task failing never stops the rest.
type Pool struct {
	orchestrator *Orchestrator
	workers      int

	tasks   chan Task
	results chan TaskResult

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	started   bool
	closed    bool
	active    int
	processed int
}

// NewPool creates a pool with the given worker count. A count below one
// sizes the pool from available memory via RecommendedWorkers.
func NewPool(orchestrator *Orchestrator, workers int) *Pool {
	if workers < 1 {
		workers = RecommendedWorkers()
	}
	return &Pool{
		orchestrator: orchestrator,
		workers:      workers,
		tasks:        make(chan Task, taskBufferSize),
		results:      make(chan TaskResult, taskBufferSize),
	}
}

// Start spawns the workers. Calling it twice is a no-op.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()

	if m := p.Metrics(); m.MemoryPercent > 90 {
		logger.Warnw("High memory utilization at pool start",
			"memory_percent", m.MemoryPercent,
			"workers", p.workers)
	}

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	go func() {
		p.wg.Wait()
		close(p.results)
	}()
}

// Submit queues a task. Fails after Close or when the queue is full.
func (p *Pool) Submit(task Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return errors.Wrap(errors.ErrInvalidInput, "pool is closed")
	}

	select {
	case p.tasks <- task:
		return nil
	default:
		return errors.Newf("task queue full (%d pending)", len(p.tasks))
	}
}

// Close marks the task stream complete. Workers finish what is queued,
// then Results closes. Safe to call more than once.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.tasks)
}

// Results returns the outcome stream. It closes once Close (or Stop)
// was called and the workers have drained.
func (p *Pool) Results() <-chan TaskResult {
	return p.results
}

// Stop cancels in-flight work and waits for the workers to exit, up to
// a timeout.
func (p *Pool) Stop() {
	p.Close()

	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Debugw("Fetch pool stopped, all workers exited")
	case <-time.After(stopTimeout):
		logger.Warnw("Fetch pool stop timed out, workers may still be finishing",
			"timeout", stopTimeout)
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case task, ok := <-p.tasks:
			if !ok {
				return
			}

			p.mu.Lock()
			p.active++
			p.mu.Unlock()

			locations, err := p.orchestrator.Collect(p.ctx, task.PluginName, task.Target, task.Options)

			p.mu.Lock()
			p.active--
			p.processed++
			p.mu.Unlock()

			if err != nil {
				logger.Warnw("Fetch task failed",
					"worker_id", id,
					"plugin", task.PluginName,
					"target", task.Target.ExternalID,
					"error", err)
			}

			select {
			case p.results <- TaskResult{Task: task, Locations: locations, Err: err}:
			case <-p.ctx.Done():
				return
			}
		}
	}
}
