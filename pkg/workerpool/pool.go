package workerpool

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/quiverdb/quiver/pkg/log"
)

// Pool is a bounded worker pool with a fixed-size queue. When the queue is
// full, Submit runs the task on the calling goroutine instead of dropping
// it, which backpressures the hot path when downstream consumers are slow.
type Pool struct {
	tasks  chan func()
	logger zerolog.Logger
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool

	// OnDepthChange, if set, is called with the queue depth after every
	// enqueue and dequeue. Used to export a gauge.
	OnDepthChange func(depth int)
}

// New creates a pool with the given number of workers and queue capacity
func New(workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}

	p := &Pool{
		tasks:  make(chan func(), queueSize),
		logger: log.WithComponent("workerpool"),
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		p.notifyDepth()
		p.run(task)
	}
}

func (p *Pool) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().
				Interface("panic", r).
				Msg("task panicked")
		}
	}()
	task()
}

// Submit enqueues a task. If the queue is full the task runs synchronously
// on the caller's goroutine (caller-runs overflow policy). Submitting to a
// closed pool also runs the task inline.
func (p *Pool) Submit(task func()) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.run(task)
		return
	}

	select {
	case p.tasks <- task:
		p.mu.Unlock()
		p.notifyDepth()
	default:
		p.mu.Unlock()
		p.run(task)
	}
}

func (p *Pool) notifyDepth() {
	if p.OnDepthChange != nil {
		p.OnDepthChange(len(p.tasks))
	}
}

// Close stops accepting work and waits for queued tasks to drain
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	p.wg.Wait()
}
