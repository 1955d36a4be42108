// Package queue hands reading job ids from the API to pipeline executors.
package queue

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"palmreader/internal/domain"
	"palmreader/internal/infra"
)

// ErrQueueFull is returned when the in-process buffer cannot take another id.
var ErrQueueFull = errors.New("queue: buffer full")

// Consumer drains a queue into an executor until ctx is cancelled.
type Consumer interface {
	Run(ctx context.Context, exec domain.Executor) error
}

// MemoryQueue is a buffered channel drained by a fixed set of goroutines in
// the same process.
type MemoryQueue struct {
	jobs    chan string
	workers int
	logger  zerolog.Logger
}

func NewMemoryQueue(buffer, workers int, logger *infra.Logger) *MemoryQueue {
	if buffer < 1 {
		buffer = 1
	}
	if workers < 1 {
		workers = 1
	}
	q := &MemoryQueue{jobs: make(chan string, buffer), workers: workers, logger: zerolog.Nop()}
	if logger != nil {
		q.logger = *logger
	}
	return q
}

// Enqueue never blocks; a full buffer reports ErrQueueFull.
func (q *MemoryQueue) Enqueue(ctx context.Context, jobID string) error {
	select {
	case q.jobs <- jobID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

func (q *MemoryQueue) Run(ctx context.Context, exec domain.Executor) error {
	q.logger.Info().Int("workers", q.workers).Msg("queue: memory consumers started")
	group, gctx := errgroup.WithContext(ctx)
	for range q.workers {
		group.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case id := <-q.jobs:
					dispatch(gctx, exec, id, q.logger)
				}
			}
		})
	}
	return group.Wait()
}

// dispatch runs one job. Executor errors are logged and never stop the
// consumer loop.
func dispatch(ctx context.Context, exec domain.Executor, jobID string, logger zerolog.Logger) {
	if err := exec.Execute(ctx, jobID); err != nil {
		logger.Error().Err(err).Str("job_id", jobID).Msg("queue: execute job")
	}
}

var (
	_ domain.Enqueuer = (*MemoryQueue)(nil)
	_ Consumer        = (*MemoryQueue)(nil)
)
