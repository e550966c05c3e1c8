package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Service runs background jobs on a single worker fed by a buffered queue.
// Jobs that do not fit in the queue are dropped with a warning.
type Service struct {
	queue   chan job
	pending sync.WaitGroup
}

type job struct {
	Type string
	Run  func(context.Context) (any, error)
}

func New(size int) *Service {
	if size <= 0 {
		size = 128
	}
	return &Service{queue: make(chan job, size)}
}

func (s *Service) Start(ctx context.Context) {
	go s.worker(ctx)
}

func (s *Service) Enqueue(jobType string, run func(context.Context) (any, error)) {
	s.pending.Add(1)
	select {
	case s.queue <- job{Type: jobType, Run: run}:
	default:
		s.pending.Done()
		slog.Warn("job queue full", "jobType", jobType)
	}
}

func (s *Service) RunNow(ctx context.Context, jobType string, run func(context.Context) (any, error)) (any, error) {
	return s.runJob(ctx, job{Type: jobType, Run: run})
}

// Wait blocks until every queued job has finished.
func (s *Service) Wait() {
	s.pending.Wait()
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.drain()
			return
		case j := <-s.queue:
			if _, err := s.runJob(ctx, j); err != nil {
				slog.Warn("job run failed", "jobType", j.Type, "err", err)
			}
			s.pending.Done()
		}
	}
}

func (s *Service) drain() {
	for {
		select {
		case j := <-s.queue:
			slog.Warn("job dropped at shutdown", "jobType", j.Type)
			s.pending.Done()
		default:
			return
		}
	}
}

func (s *Service) runJob(ctx context.Context, j job) (any, error) {
	started := time.Now()
	details, err := j.Run(ctx)
	status := "completed"
	if err != nil {
		status = "failed"
	}
	slog.Info("job finished", "jobType", j.Type, "status", status, "durationMs", time.Since(started).Milliseconds(), "details", details)
	return details, err
}
