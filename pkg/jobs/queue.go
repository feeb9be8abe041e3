// Package jobs provides an in-memory worker pool for best-effort background
// tasks. Failed tasks are retried with a fixed delay until the retry budget
// is spent, then dropped. Nothing here survives a process restart.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is a unit of background work.
type Task struct {
	ID   string
	Name string
	Run  func(context.Context) error

	attempt  int
	enqueued time.Time
}

// Config configures worker pool behaviour.
type Config struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
	Logger     *zap.Logger
}

// Queue runs tasks on a fixed pool of goroutines.
type Queue struct {
	name string

	workers    int
	maxRetries int
	retryDelay time.Duration
	logger     *zap.Logger

	tasks   chan Task
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// NewQueue builds a queue. Zero config values fall back to safe defaults.
func NewQueue(name string, cfg Config) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 4
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Queue{
		name:       name,
		workers:    cfg.Workers,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		logger:     cfg.Logger,
		tasks:      make(chan Task, cfg.BufferSize),
	}
}

// Start begins worker consumption. Safe to call once.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	q.started = true
	q.logger.Info("queue started", zap.String("queue", q.name), zap.Int("workers", q.workers))
}

// Stop cancels workers and waits for them to exit.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.cancel()
	q.mu.Unlock()
	q.wg.Wait()
	q.logger.Info("queue stopped", zap.String("queue", q.name))
}

// Enqueue pushes a task without blocking. A full buffer or a stopped queue
// returns an error; the caller decides whether that matters.
func (q *Queue) Enqueue(t Task) error {
	q.mu.Lock()
	ctx := q.ctx
	started := q.started
	q.mu.Unlock()

	if !started {
		return fmt.Errorf("queue %s not started", q.name)
	}
	if ctx.Err() != nil {
		return fmt.Errorf("queue %s stopped: %w", q.name, ctx.Err())
	}
	if t.Run == nil {
		return fmt.Errorf("queue %s: task %s has no work", q.name, t.Name)
	}
	if t.enqueued.IsZero() {
		t.enqueued = time.Now().UTC()
	}

	select {
	case q.tasks <- t:
		return nil
	default:
		return fmt.Errorf("queue %s full", q.name)
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case t := <-q.tasks:
			if err := t.Run(q.ctx); err != nil {
				q.retry(t, err)
			}
		}
	}
}

func (q *Queue) retry(t Task, err error) {
	t.attempt++
	if t.attempt > q.maxRetries {
		q.logger.Error("task exceeded retries",
			zap.String("queue", q.name), zap.String("task_id", t.ID),
			zap.String("task", t.Name), zap.Error(err))
		return
	}
	q.logger.Warn("task failed, retrying",
		zap.String("queue", q.name), zap.String("task_id", t.ID),
		zap.String("task", t.Name), zap.Int("attempt", t.attempt), zap.Error(err))

	go func(t Task) {
		timer := time.NewTimer(q.retryDelay)
		defer timer.Stop()
		select {
		case <-q.ctx.Done():
			return
		case <-timer.C:
			if err := q.Enqueue(t); err != nil {
				q.logger.Error("failed to requeue task",
					zap.String("queue", q.name), zap.String("task_id", t.ID), zap.Error(err))
			}
		}
	}(t)
}
