package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrQueueFull is returned when the buffer has no room for another job.
	ErrQueueFull = errors.New("job queue full")
	// ErrQueueStopped is returned when enqueueing on a queue that is not running.
	ErrQueueStopped = errors.New("job queue not running")
)

// Job represents a queued background task.
type Job struct {
	ID       string
	Type     string
	Payload  interface{}
	Attempt  int
	Enqueued time.Time
}

// Handler processes a job.
type Handler func(context.Context, Job) error

// QueueConfig configures worker pool behaviour.
type QueueConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	// RetryDelay is the base delay; the n-th retry waits n*RetryDelay.
	RetryDelay time.Duration
	Logger     *zap.Logger
	// OnResult, when set, is called after every handler run.
	OnResult func(job Job, err error)
}

// Queue is a lightweight in-memory job dispatcher backed by goroutines.
type Queue struct {
	name    string
	handler Handler

	workers    int
	maxRetries int
	retryDelay time.Duration
	logger     *zap.Logger
	onResult   func(Job, error)

	jobs   chan Job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	// pending counts accepted jobs until they succeed, exhaust their retries or
	// are abandoned, so it covers buffered, running and waiting-to-retry work.
	pending     sync.WaitGroup
	outstanding atomic.Int64
	mu          sync.RWMutex
	started     bool
}

// NewQueue builds a new queue with the provided handler.
func NewQueue(name string, handler Handler, cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 64
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Queue{
		name:       name,
		handler:    handler,
		workers:    cfg.Workers,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		logger:     cfg.Logger,
		onResult:   cfg.OnResult,
		jobs:       make(chan Job, cfg.BufferSize),
	}
}

// Start begins worker consumption. Safe to call once. Handlers run on a context
// detached from ctx's cancellation; only Shutdown cancels it.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.ctx, q.cancel = context.WithCancel(context.WithoutCancel(ctx))
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	q.started = true
	q.logger.Info("queue started", zap.String("queue", q.name), zap.Int("workers", q.workers))
}

// Shutdown stops accepting jobs and waits for every accepted job, including
// running handlers and scheduled retries, to finish. When ctx expires first the
// remaining work is cancelled and reported in the returned error.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return nil
	}
	q.started = false
	q.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		q.pending.Wait()
		close(finished)
	}()

	var err error
	select {
	case <-finished:
	case <-ctx.Done():
		err = fmt.Errorf("queue %s: %d jobs abandoned: %w", q.name, q.outstanding.Load(), ctx.Err())
	}
	q.cancel()
	q.wg.Wait()
	q.drop()
	q.logger.Info("queue stopped", zap.String("queue", q.name))
	return err
}

// drop settles jobs still buffered after the workers exited.
func (q *Queue) drop() {
	for {
		select {
		case job := <-q.jobs:
			q.logger.Warn("job dropped on shutdown", zap.String("queue", q.name), zap.String("job_id", job.ID), zap.String("type", job.Type))
			q.settle()
		default:
			return
		}
	}
}

// Enqueue pushes a job without blocking.
func (q *Queue) Enqueue(job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if !q.started {
		return fmt.Errorf("queue %s: %w", q.name, ErrQueueStopped)
	}
	q.track()
	if err := q.push(job); err != nil {
		q.settle()
		return err
	}
	return nil
}

func (q *Queue) track() {
	q.outstanding.Add(1)
	q.pending.Add(1)
}

func (q *Queue) settle() {
	q.outstanding.Add(-1)
	q.pending.Done()
}

func (q *Queue) push(job Job) error {
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}
	select {
	case q.jobs <- job:
		return nil
	default:
		return fmt.Errorf("queue %s: %w", q.name, ErrQueueFull)
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.jobs:
			err := q.handler(q.ctx, job)
			if q.onResult != nil {
				q.onResult(job, err)
			}
			if err != nil {
				q.handleFailure(job, err)
				continue
			}
			q.settle()
		}
	}
}

// handleFailure schedules a retry or settles the job; the job stays pending
// while its retry timer runs.
func (q *Queue) handleFailure(job Job, err error) {
	job.Attempt++
	if job.Attempt > q.maxRetries {
		q.logger.Error("job exceeded retries",
			zap.String("queue", q.name), zap.String("job_id", job.ID), zap.String("type", job.Type), zap.Error(err))
		q.settle()
		return
	}
	q.logger.Warn("job failed, retrying",
		zap.String("queue", q.name), zap.String("job_id", job.ID), zap.String("type", job.Type), zap.Int("attempt", job.Attempt), zap.Error(err))

	go func(j Job) {
		timer := time.NewTimer(time.Duration(j.Attempt) * q.retryDelay)
		defer timer.Stop()
		select {
		case <-q.ctx.Done():
			q.logger.Warn("retry abandoned on shutdown", zap.String("queue", q.name), zap.String("job_id", j.ID))
			q.settle()
		case <-timer.C:
			if err := q.push(j); err != nil {
				q.logger.Error("failed to requeue job", zap.String("queue", q.name), zap.String("job_id", j.ID), zap.Error(err))
				q.settle()
			}
		}
	}(job)
}
