// Package worker provides the bounded pool that runs session initialization
// off the request path.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/Strob0t/Weaver/internal/config"
)

var (
	// ErrQueueFull is returned by Submit when the queue is full and no
	// overflow worker can be started.
	ErrQueueFull = errors.New("worker pool queue is full")
	// ErrClosed is returned by Submit after Shutdown.
	ErrClosed = errors.New("worker pool is closed")
)

// Task is a unit of work. ctx is never cancelled while the task runs.
type Task func(ctx context.Context)

// Pool runs tasks on a fixed set of core workers fed by a bounded queue.
// When the queue is full, up to max-core overflow workers are started; each
// runs its task, drains whatever is queued and then exits.
type Pool struct {
	prefix   string
	queue    chan Task
	overflow *semaphore.Weighted
	seq      atomic.Int64

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewPool creates a Pool sized by cfg and starts its core workers.
func NewPool(cfg config.Executor) *Pool {
	core := max(cfg.CorePoolSize, 1)
	maxWorkers := max(cfg.MaxPoolSize, core)
	p := &Pool{
		prefix:   cfg.ThreadNamePrefix,
		queue:    make(chan Task, max(cfg.QueueCapacity, 0)),
		overflow: semaphore.NewWeighted(int64(maxWorkers - core)),
	}
	for range core {
		p.wg.Add(1)
		go p.coreWorker(p.nextName())
	}
	return p
}

func (p *Pool) nextName() string {
	return fmt.Sprintf("%s%d", p.prefix, p.seq.Add(1))
}

// Submit queues task without blocking.
func (p *Pool) Submit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	select {
	case p.queue <- task:
		return nil
	default:
	}

	if !p.overflow.TryAcquire(1) {
		return ErrQueueFull
	}
	p.wg.Add(1)
	go p.overflowWorker(p.nextName(), task)
	return nil
}

// Shutdown stops accepting tasks and waits for queued and running tasks to
// finish, or for ctx to expire.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker pool shutdown: %w", ctx.Err())
	}
}

func (p *Pool) coreWorker(name string) {
	defer p.wg.Done()
	for task := range p.queue {
		p.run(name, task)
	}
}

func (p *Pool) overflowWorker(name string, first Task) {
	defer p.wg.Done()
	defer p.overflow.Release(1)

	p.run(name, first)
	for {
		select {
		case task, ok := <-p.queue:
			if !ok {
				return
			}
			p.run(name, task)
		default:
			return
		}
	}
}

func (p *Pool) run(name string, task Task) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("worker task panicked", "worker", name, "panic", r)
		}
	}()
	task(context.Background())
	slog.Debug("worker task finished", "worker", name, "duration", time.Since(start))
}
