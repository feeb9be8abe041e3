package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clatprep/clat-prep-api/pkg/config"
	"github.com/clatprep/clat-prep-api/pkg/jobs"
)

// SideEffects routes best-effort work (activity writes, notification fan-out,
// auto-assignment, AI generation) through a background worker pool so the
// primary request never waits on it.
type SideEffects struct {
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewSideEffects builds the dispatcher and its queue. Call Start before use.
func NewSideEffects(cfg config.JobsConfig, logger *zap.Logger) *SideEffects {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SideEffects{
		logger: logger,
		queue: jobs.NewQueue("side-effects", jobs.Config{
			Workers:    cfg.Workers,
			BufferSize: cfg.BufferSize,
			MaxRetries: cfg.MaxRetries,
			RetryDelay: cfg.RetryDelay,
			Logger:     logger,
		}),
	}
}

// Start launches the worker pool.
func (s *SideEffects) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the workers.
func (s *SideEffects) Stop() {
	s.queue.Stop()
}

// Dispatch enqueues fn for background execution. A full or stopped queue is
// logged and dropped; callers must not depend on completion.
func (s *SideEffects) Dispatch(name string, fn func(context.Context) error) {
	err := s.queue.Enqueue(jobs.Task{
		ID:   uuid.NewString(),
		Name: name,
		Run:  fn,
	})
	if err != nil {
		s.logger.Warn("side effect dropped", zap.String("task", name), zap.Error(err))
	}
}
