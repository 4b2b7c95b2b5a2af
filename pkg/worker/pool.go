// Package worker provides an asynchronous worker pool that persists answered
// turns to the transcript store and publishes them as events.
//
// The pool keeps storage and broker round-trips off the reply path so a slow
// database or Kafka cluster never delays an answer.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/nontawat9304/mali-chat/pkg/eventstream"
	"github.com/nontawat9304/mali-chat/pkg/history"
	"github.com/nontawat9304/mali-chat/pkg/memory"
	"github.com/nontawat9304/mali-chat/pkg/storage"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256

	// jobTimeout bounds the storage and publish work for one job.
	jobTimeout = 30 * time.Second
)

// Job is a unit of work for the worker pool to execute against.
type Job struct {
	Identity memory.Identity

	// Turns are appended to the transcript in order.
	Turns []history.Turn

	// Event is published after the turns are stored. Optional.
	Event *eventstream.TurnEvent
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Driver is the transcript store. Optional.
	Driver storage.Driver

	// Publisher receives turn events. Optional.
	Publisher eventstream.Publisher

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	Logger *slog.Logger
}

// Pool processes storage jobs asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *slog.Logger

	// mu guards closed so Enqueue never sends on a closed queue.
	mu     sync.RWMutex
	closed bool
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full or the pool is closed,
// resulting in the job being dropped.
func (p *Pool) Enqueue(job Job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.logger.Warn("job not queued, pool closed", "identity", job.Identity)
		return false
	}

	select {
	case p.queue <- job:
		p.logger.Debug("job queued", "identity", job.Identity, "turns", len(job.Turns))
		return true
	default:
		p.logger.Error("job not queued, queue full, job dropped", "identity", job.Identity)
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call this during graceful shutdown after the HTTP server has stopped.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", "worker_id", id)

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("worker stopped", "worker_id", id)
}

// processJob stores the job's turns, then publishes its event. Failures are
// logged; a failed store does not stop the event.
func (p *Pool) processJob(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if p.config.Driver != nil {
		for _, t := range job.Turns {
			if err := p.config.Driver.AppendTurn(ctx, job.Identity, t); err != nil {
				p.logger.Error("async transcript storage failed",
					"identity", job.Identity,
					"role", t.Role,
					"error", err,
				)
				break
			}
		}
		p.logger.Debug("transcript stored", "identity", job.Identity, "turns", len(job.Turns))
	}

	if p.config.Publisher != nil && job.Event != nil {
		if err := p.config.Publisher.PublishTurn(ctx, job.Event); err != nil {
			p.logger.Warn("failed to publish turn event",
				"identity", job.Identity,
				"event_id", job.Event.ID,
				"error", err,
			)
			return
		}
		p.logger.Debug("turn event published", "event_id", job.Event.ID)
	}
}
