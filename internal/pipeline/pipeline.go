// Package pipeline drives a reading job from PENDING to a terminal state:
// helpers, prompt, completion, extraction, canonicalization and persistence.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"palmreader/internal/canonical"
	"palmreader/internal/divination"
	"palmreader/internal/domain"
	"palmreader/internal/extract"
	"palmreader/internal/infra"
	"palmreader/internal/providers/completion"
)

const (
	// MaxErrorMessage caps the stored failure message, in runes.
	MaxErrorMessage = 2000
	logExcerpt      = 300
	modelVersionTag = "2.0/"
)

// Config is the immutable pipeline configuration built once at startup.
type Config struct {
	Model               string
	Retention           domain.Retention
	MockFallbackEnabled bool
	ForceMock           bool
}

// KeyFunc resolves the provider API key for one call. An empty key leaves
// the completer's own key in place.
type KeyFunc func(ctx context.Context) (string, error)

type Options struct {
	Config    Config
	Repo      domain.JobRepository
	Blobs     domain.BlobStore
	Completer completion.Completer
	Engine    *canonical.Engine
	APIKey    KeyFunc
	Metrics   *infra.Metrics
	Logger    *infra.Logger
	Now       func() time.Time
}

// Pipeline executes reading jobs. It is safe for concurrent use.
type Pipeline struct {
	cfg       Config
	repo      domain.JobRepository
	blobs     domain.BlobStore
	completer completion.Completer
	engine    *canonical.Engine
	apiKey    KeyFunc
	metrics   *infra.Metrics
	logger    zerolog.Logger
	now       func() time.Time
}

func New(opts Options) (*Pipeline, error) {
	if opts.Repo == nil {
		return nil, errors.New("pipeline: repository is required")
	}
	if opts.Completer == nil {
		return nil, errors.New("pipeline: completer is required")
	}
	if opts.Config.Retention.NoConsent <= 0 {
		return nil, errors.New("pipeline: no-consent ttl must be positive")
	}
	p := &Pipeline{
		cfg:       opts.Config,
		repo:      opts.Repo,
		blobs:     opts.Blobs,
		completer: opts.Completer,
		engine:    opts.Engine,
		apiKey:    opts.APIKey,
		metrics:   opts.Metrics,
		logger:    zerolog.Nop(),
		now:       opts.Now,
	}
	if opts.Logger != nil {
		p.logger = *opts.Logger
	}
	if p.engine == nil {
		p.engine = canonical.New()
	}
	if p.now == nil {
		p.now = func() time.Time { return time.Now().UTC() }
	}
	return p, nil
}

// outcome is what a successful run persists.
type outcome struct {
	result       *domain.Result
	raw          string
	modelVersion string
}

// Execute runs the pipeline for jobID. A job that is not PENDING is left
// untouched. Errors from the stages are recorded on the job, not returned;
// the returned error only reports storage failures.
func (p *Pipeline) Execute(ctx context.Context, jobID string) (err error) {
	started := p.now()
	job, err := p.repo.Claim(ctx, jobID, started)
	if errors.Is(err, domain.ErrNotClaimable) {
		p.logger.Debug().Str("job_id", jobID).Msg("pipeline: job not claimable, skipping")
		return nil
	}
	if err != nil {
		return fmt.Errorf("pipeline: claim %s: %w", jobID, err)
	}
	logger := p.logger.With().Str("job_id", job.ID).Str("kind", string(job.Kind)).Logger()
	logger.Info().Msg("pipeline: picked job")

	defer p.cleanup(ctx, job, logger)
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("pipeline: recovered panic")
			err = p.fail(ctx, job, started, fmt.Errorf("pipeline: panic: %v", r), logger)
		}
	}()

	out, runErr := p.run(ctx, job, logger)
	if runErr != nil {
		return p.fail(ctx, job, started, runErr, logger)
	}
	return p.complete(ctx, job, started, out, logger)
}

func (p *Pipeline) run(ctx context.Context, job *domain.Job, logger zerolog.Logger) (outcome, error) {
	hints, err := helperHints(job)
	if err != nil {
		return outcome{}, err
	}
	if p.cfg.ForceMock {
		return p.fallback(job, hints, "forced", logger)
	}

	var image []byte
	if job.Kind == domain.KindPalm {
		if image, err = p.readImage(ctx, job); err != nil {
			return outcome{}, err
		}
	}
	req := buildRequest(job, hints, image, p.cfg.Model)

	callCtx := ctx
	if p.apiKey != nil {
		key, kerr := p.apiKey(ctx)
		if kerr != nil {
			logger.Warn().Err(kerr).Msg("pipeline: resolve api key")
		}
		if key != "" {
			callCtx = completion.WithAPIKey(ctx, key)
		}
	}

	raw, err := p.completer.Complete(callCtx, req)
	if err != nil {
		if errors.Is(err, domain.ErrQuotaExhausted) && p.cfg.MockFallbackEnabled {
			logger.Warn().Str("error", completion.Truncate(err.Error(), logExcerpt)).Msg("pipeline: quota exhausted, using fallback")
			return p.fallback(job, hints, domain.Reason(err), logger)
		}
		return outcome{}, err
	}

	obj, err := extract.Extract(raw)
	if err != nil {
		logger.Warn().Str("raw", completion.Truncate(raw, logExcerpt)).Msg("pipeline: extraction failed")
		return outcome{}, err
	}
	result, err := p.engine.Canonicalize(job.Kind, obj, hints)
	if err != nil {
		return outcome{}, domain.NewFailure(domain.ErrUnparseable, "", err)
	}
	result.ModelVersion = modelVersionTag + p.cfg.Model
	return outcome{result: result, raw: raw, modelVersion: result.ModelVersion}, nil
}

// fallback produces a reading from helper values through the same engine,
// with jitter seeded by the job id.
func (p *Pipeline) fallback(job *domain.Job, hints canonical.Hints, reason string, logger zerolog.Logger) (outcome, error) {
	raw, err := mockPayload(job, hints)
	if err != nil {
		return outcome{}, err
	}
	obj, err := extract.Extract(raw)
	if err != nil {
		return outcome{}, err
	}
	engine := p.engine.WithJitterFunc(canonical.SeededJitter(mockSeed(job.ID)))
	result, err := engine.Canonicalize(job.Kind, obj, hints)
	if err != nil {
		return outcome{}, err
	}
	result.ModelVersion = MockModelVersion
	p.metrics.Fallback(string(job.Kind), reason)
	logger.Info().Str("reason", reason).Msg("pipeline: fallback reading generated")
	return outcome{result: result, raw: raw, modelVersion: MockModelVersion}, nil
}

func (p *Pipeline) complete(ctx context.Context, job *domain.Job, started time.Time, out outcome, logger zerolog.Logger) error {
	completedAt := p.now()
	c := domain.Completion{
		Result:         out.result,
		RawModelOutput: out.raw,
		CompletedAt:    completedAt,
	}
	if !job.ConsentToStore {
		expires := completedAt.Add(p.cfg.Retention.NoConsent)
		c.ExpiresAt = &expires
	}
	if err := p.repo.Complete(ctx, job.ID, c); err != nil {
		if errors.Is(err, domain.ErrAlreadyTerminal) {
			logger.Warn().Msg("pipeline: job reached a terminal state elsewhere")
			return nil
		}
		logger.Error().Err(err).Msg("pipeline: persist result")
		return p.fail(ctx, job, started, err, logger)
	}
	p.metrics.JobCompleted(string(job.Kind), out.modelVersion, completedAt.Sub(started))
	logger.Info().Str("model_version", out.modelVersion).Msg("pipeline: job done")
	return nil
}

func (p *Pipeline) fail(ctx context.Context, job *domain.Job, started time.Time, cause error, logger zerolog.Logger) error {
	at := p.now()
	reason := domain.Reason(cause)
	logger.Error().
		Str("reason", reason).
		Str("error", completion.Truncate(cause.Error(), logExcerpt)).
		Msg("pipeline: job failed")
	message := truncateMessage(domain.UserMessage(cause), MaxErrorMessage)
	if err := p.repo.Fail(context.WithoutCancel(ctx), job.ID, message, at); err != nil {
		if errors.Is(err, domain.ErrAlreadyTerminal) {
			return nil
		}
		logger.Error().Err(err).Msg("pipeline: job left in PROCESSING, the sweep will fail it once stale")
		return fmt.Errorf("pipeline: mark %s failed: %w", job.ID, err)
	}
	p.metrics.JobFailed(string(job.Kind), reason, at.Sub(started))
	return nil
}

// cleanup removes the transient upload on every exit path.
func (p *Pipeline) cleanup(ctx context.Context, job *domain.Job, logger zerolog.Logger) {
	if job.Input.ImageKey == "" {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if p.blobs != nil {
		if err := p.blobs.Delete(ctx, job.Input.ImageKey); err != nil && !errors.Is(err, domain.ErrNotFound) {
			logger.Warn().Err(err).Str("image_key", job.Input.ImageKey).Msg("pipeline: delete image")
		}
	}
	if err := p.repo.ClearImage(ctx, job.ID); err != nil {
		logger.Warn().Err(err).Msg("pipeline: clear image key")
	}
}

func (p *Pipeline) readImage(ctx context.Context, job *domain.Job) ([]byte, error) {
	if job.Input.ImageKey == "" || p.blobs == nil {
		return nil, domain.NewFailure(domain.ErrInvalidInput, "No palm image was attached to this reading. Please upload one and try again.", nil)
	}
	data, err := p.blobs.Read(ctx, job.Input.ImageKey)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NewFailure(domain.ErrInvalidInput, "The uploaded image is no longer available. Please upload it again.", err)
		}
		return nil, domain.NewFailure(domain.ErrTransport, "", fmt.Errorf("read image: %w", err))
	}
	if len(data) == 0 {
		return nil, domain.NewFailure(domain.ErrInvalidInput, "The uploaded image is empty. Please upload a clear photo of your palm.", nil)
	}
	return data, nil
}

// helperHints computes the deterministic helper values for job.
func helperHints(job *domain.Job) (canonical.Hints, error) {
	in := job.Input
	switch job.Kind {
	case domain.KindNumerology:
		if strings.TrimSpace(in.FullName) == "" {
			return canonical.Hints{}, domain.NewFailure(domain.ErrInvalidInput, "A full name is required for a numerology reading.", nil)
		}
		birth, err := divination.ParseBirthDate(in.BirthDate)
		if err != nil {
			return canonical.Hints{}, domain.NewFailure(domain.ErrInvalidInput, "The birth date could not be read. Please use YYYY-MM-DD.", err)
		}
		chart := divination.ComputeNumerology(in.FullName, birth)
		return canonical.Hints{Numerology: &chart}, nil
	case domain.KindAstrology:
		birth, err := divination.ParseBirthDate(in.BirthDate)
		if err != nil {
			return canonical.Hints{}, domain.NewFailure(domain.ErrInvalidInput, "The birth date could not be read. Please use YYYY-MM-DD.", err)
		}
		chart, err := divination.ComputeChart(birth, in.BirthTime, in.BirthPlace)
		if err != nil {
			return canonical.Hints{}, domain.NewFailure(domain.ErrInvalidInput, "The birth time could not be read. Please use HH:MM.", err)
		}
		return canonical.Hints{Chart: &chart}, nil
	}
	return canonical.Hints{}, nil
}

// truncateMessage cuts s to at most limit runes.
func truncateMessage(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

var _ domain.Executor = (*Pipeline)(nil)
