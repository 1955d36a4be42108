// Package service implements the inbound side of readings: job creation,
// status and result reads, and the retention sweep.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"palmreader/internal/divination"
	"palmreader/internal/domain"
	"palmreader/internal/infra"
	"palmreader/internal/storage"
)

var imageTypes = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

// SubmitRequest is one reading request as received from a client.
type SubmitRequest struct {
	Kind           domain.ReadingKind
	Input          domain.InputAttributes
	Image          []byte
	ConsentToStore bool
	ClientKey      string
	OriginCountry  string
}

type ReadingsOptions struct {
	Repo      domain.JobRepository
	Blobs     domain.BlobStore
	Queue     domain.Enqueuer
	Retention domain.Retention
	Metrics   *infra.Metrics
	Logger    *infra.Logger
	Now       func() time.Time
}

// Readings creates reading jobs and serves their status and results.
type Readings struct {
	repo      domain.JobRepository
	blobs     domain.BlobStore
	queue     domain.Enqueuer
	retention domain.Retention
	metrics   *infra.Metrics
	logger    zerolog.Logger
	now       func() time.Time
}

func NewReadings(opts ReadingsOptions) (*Readings, error) {
	if opts.Repo == nil || opts.Queue == nil {
		return nil, errors.New("service: repository and queue are required")
	}
	s := &Readings{
		repo:      opts.Repo,
		blobs:     opts.Blobs,
		queue:     opts.Queue,
		retention: opts.Retention,
		metrics:   opts.Metrics,
		logger:    zerolog.Nop(),
		now:       opts.Now,
	}
	if opts.Logger != nil {
		s.logger = *opts.Logger
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s, nil
}

// Submit validates req, stores any uploaded image, records a PENDING job and
// hands its id to the queue.
func (s *Readings) Submit(ctx context.Context, req SubmitRequest) (*domain.Job, error) {
	if err := validate(&req); err != nil {
		return nil, err
	}
	now := s.now()
	job := &domain.Job{
		ID:             uuid.NewString(),
		Kind:           req.Kind,
		Input:          req.Input,
		ConsentToStore: req.ConsentToStore,
		ClientKey:      req.ClientKey,
		OriginCountry:  req.OriginCountry,
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.retention.For(req.Kind)),
	}

	if req.Kind == domain.KindPalm {
		if s.blobs == nil {
			return nil, errors.New("service: no blob store configured for palm uploads")
		}
		mime := http.DetectContentType(req.Image)
		ext, ok := imageTypes[mime]
		if !ok {
			return nil, fmt.Errorf("%w: unsupported image type %s", domain.ErrInvalidInput, mime)
		}
		key, err := s.blobs.Write(ctx, storage.NewUploadKey(now, ext), req.Image)
		if err != nil {
			return nil, fmt.Errorf("service: store image: %w", err)
		}
		job.Input.ImageKey = key
		job.Input.ImageMIME = mime
	}

	if err := s.repo.Create(ctx, job); err != nil {
		s.discardImage(ctx, job)
		return nil, fmt.Errorf("service: create job: %w", err)
	}
	logger := s.logger.With().Str("job_id", job.ID).Str("kind", string(job.Kind)).Logger()
	if err := s.queue.Enqueue(ctx, job.ID); err != nil {
		logger.Error().Err(err).Msg("service: enqueue job")
		if ferr := s.repo.Fail(ctx, job.ID, "The reading could not be queued. Please try again.", s.now()); ferr != nil {
			logger.Error().Err(ferr).Msg("service: fail unqueued job")
		}
		s.discardImage(ctx, job)
		return nil, fmt.Errorf("service: enqueue job: %w", err)
	}
	s.metrics.Submitted(string(job.Kind))
	logger.Info().Bool("consent", job.ConsentToStore).Msg("service: job submitted")
	return job, nil
}

// Status returns the job record for jobID.
func (s *Readings) Status(ctx context.Context, jobID string) (*domain.Job, error) {
	if _, err := uuid.Parse(jobID); err != nil {
		return nil, domain.ErrNotFound
	}
	return s.repo.GetByID(ctx, jobID)
}

// Result returns the canonical result of a DONE job. A job still in flight
// yields domain.ErrNotReady; a FAILED job yields a *domain.Failure of kind
// domain.ErrJobFailed carrying the stored message.
func (s *Readings) Result(ctx context.Context, jobID string) (*domain.Result, error) {
	job, err := s.Status(ctx, jobID)
	if err != nil {
		return nil, err
	}
	switch job.Status {
	case domain.JobStatusDone:
		return job.Result, nil
	case domain.JobStatusFailed:
		return nil, domain.NewFailure(domain.ErrJobFailed, job.ErrorMessage, nil)
	default:
		return nil, domain.ErrNotReady
	}
}

func (s *Readings) discardImage(ctx context.Context, job *domain.Job) {
	if job.Input.ImageKey == "" || s.blobs == nil {
		return
	}
	if err := s.blobs.Delete(context.WithoutCancel(ctx), job.Input.ImageKey); err != nil {
		s.logger.Warn().Err(err).Str("image_key", job.Input.ImageKey).Msg("service: discard image")
	}
}

func validate(req *SubmitRequest) error {
	in := &req.Input
	in.FullName = strings.TrimSpace(in.FullName)
	in.BirthDate = strings.TrimSpace(in.BirthDate)
	in.BirthTime = strings.TrimSpace(in.BirthTime)
	in.BirthPlace = strings.TrimSpace(in.BirthPlace)
	in.Gender = strings.TrimSpace(in.Gender)

	switch req.Kind {
	case domain.KindPalm:
		if len(req.Image) == 0 {
			return fmt.Errorf("%w: image is required", domain.ErrInvalidInput)
		}
	case domain.KindNumerology:
		if in.FullName == "" {
			return fmt.Errorf("%w: full_name is required", domain.ErrInvalidInput)
		}
		if _, err := divination.ParseBirthDate(in.BirthDate); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
	case domain.KindAstrology:
		if _, err := divination.ParseBirthDate(in.BirthDate); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
		if _, _, err := divination.ParseBirthTime(in.BirthTime); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
	default:
		return fmt.Errorf("%w: unknown reading kind %q", domain.ErrInvalidInput, req.Kind)
	}
	return nil
}
