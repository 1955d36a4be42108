package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lthibault/jitterbug/v2"
	"github.com/rs/zerolog"

	"palmreader/internal/domain"
	"palmreader/internal/infra"
)

const defaultSweepBatch = 200

// StaleJobMessage is stored on jobs failed because their worker never
// finished them.
const StaleJobMessage = "The reading took too long to finish. Please try again."

type SweeperOptions struct {
	Repo  domain.JobRepository
	Blobs domain.BlobStore
	// MaxAge removes jobs older than this regardless of their expiry. Zero
	// disables the age bound.
	MaxAge time.Duration
	// StaleAfter fails PROCESSING jobs not updated for this long. Zero
	// leaves them alone.
	StaleAfter time.Duration
	BatchSize  int
	Metrics    *infra.Metrics
	Logger     *infra.Logger
	Now        func() time.Time
}

// Sweeper deletes expired jobs and any image they still reference.
type Sweeper struct {
	repo       domain.JobRepository
	blobs      domain.BlobStore
	maxAge     time.Duration
	staleAfter time.Duration
	batch      int
	metrics    *infra.Metrics
	logger     zerolog.Logger
	now        func() time.Time
}

func NewSweeper(opts SweeperOptions) (*Sweeper, error) {
	if opts.Repo == nil {
		return nil, errors.New("service: sweeper repository is required")
	}
	s := &Sweeper{
		repo:       opts.Repo,
		blobs:      opts.Blobs,
		maxAge:     opts.MaxAge,
		staleAfter: opts.StaleAfter,
		batch:      opts.BatchSize,
		metrics:    opts.Metrics,
		logger:     zerolog.Nop(),
		now:        opts.Now,
	}
	if s.batch <= 0 {
		s.batch = defaultSweepBatch
	}
	if opts.Logger != nil {
		s.logger = *opts.Logger
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s, nil
}

// RunOnce fails stale PROCESSING jobs, then deletes expired jobs in batches
// until none remain and returns how many were removed.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	now := s.now()
	if err := s.failStale(ctx, now); err != nil {
		return 0, err
	}
	var createdBefore time.Time
	if s.maxAge > 0 {
		createdBefore = now.Add(-s.maxAge)
	}
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		expired, err := s.repo.DeleteExpired(ctx, now, createdBefore, s.batch)
		if err != nil {
			return total, fmt.Errorf("service: delete expired: %w", err)
		}
		for _, job := range expired {
			s.deleteImage(ctx, job)
		}
		total += len(expired)
		s.metrics.Swept(len(expired))
		if len(expired) < s.batch {
			break
		}
	}
	if total > 0 {
		s.logger.Info().Int("deleted", total).Msg("sweeper: expired readings removed")
	}
	return total, nil
}

// Run sweeps once immediately and then on a jittered ticker around interval
// until ctx is cancelled. Sweep errors are logged and do not stop the loop.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return errors.New("service: sweep interval must be positive")
	}
	s.sweep(ctx)
	ticker := jitterbug.New(interval, &jitterbug.Norm{Stdev: interval / 10})
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error().Err(err).Msg("sweeper: run failed")
	}
}

func (s *Sweeper) failStale(ctx context.Context, now time.Time) error {
	if s.staleAfter <= 0 {
		return nil
	}
	cutoff := now.Add(-s.staleAfter)
	for {
		ids, err := s.repo.FailStale(ctx, cutoff, StaleJobMessage, now, s.batch)
		if err != nil {
			return fmt.Errorf("service: fail stale: %w", err)
		}
		for _, id := range ids {
			s.logger.Error().Str("job_id", id).Dur("stale_after", s.staleAfter).Msg("sweeper: stale processing job failed")
		}
		s.metrics.Stale(len(ids))
		if len(ids) < s.batch {
			return nil
		}
	}
}

func (s *Sweeper) deleteImage(ctx context.Context, job domain.ExpiredJob) {
	if job.ImageKey == "" || s.blobs == nil {
		return
	}
	if err := s.blobs.Delete(ctx, job.ImageKey); err != nil && !errors.Is(err, domain.ErrNotFound) {
		s.logger.Warn().Err(err).Str("job_id", job.ID).Str("image_key", job.ImageKey).Msg("sweeper: delete image")
	}
}
