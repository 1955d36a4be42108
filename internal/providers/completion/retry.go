package completion

import (
	"context"
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"palmreader/internal/domain"
	"palmreader/internal/infra"
)

const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 2 * time.Second
	suggestionBuffer  = time.Second
	maxBackoff        = 5 * time.Minute
)

var retryAfterPattern = regexp.MustCompile(`(?i)try again in\s+(\d+(?:\.\d+)?)\s*(ms|s|sec|secs|seconds)?\b`)

type RetryOptions struct {
	MaxRetries int
	BaseDelay  time.Duration
	// Sleep waits for d or until ctx is done. Defaults to a timer.
	Sleep   func(ctx context.Context, d time.Duration) error
	Logger  *infra.Logger
	OnRetry func(attempt int, delay time.Duration)
}

// Retrier retries rate-limited calls with backoff. Quota exhaustion and
// transport failures are returned immediately.
type Retrier struct {
	next       Completer
	maxRetries int
	baseDelay  time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
	logger     zerolog.Logger
	onRetry    func(attempt int, delay time.Duration)
}

func NewRetrier(next Completer, opts RetryOptions) *Retrier {
	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Retrier{
		next:       next,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		sleep:      sleep,
		logger:     logger,
		onRetry:    opts.OnRetry,
	}
}

func (r *Retrier) Complete(ctx context.Context, req Request) (string, error) {
	for attempt := 0; ; attempt++ {
		text, err := r.next.Complete(ctx, req)
		if err == nil {
			return text, nil
		}
		err = Normalize(err)
		if !errors.Is(err, domain.ErrRateLimited) || errors.Is(err, domain.ErrQuotaExhausted) {
			return "", err
		}
		if attempt >= r.maxRetries {
			r.logger.Warn().Int("attempt", attempt+1).Msg("completion: rate limit retries exhausted")
			return "", err
		}
		delay := RetryDelay(err.Error(), r.baseDelay, attempt)
		r.logger.Warn().
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Str("error", Truncate(err.Error(), 300)).
			Msg("completion: rate limited, backing off")
		if r.onRetry != nil {
			r.onRetry(attempt+1, delay)
		}
		if serr := r.sleep(ctx, delay); serr != nil {
			return "", domain.NewFailure(domain.ErrTransport, "", serr)
		}
	}
}

// RetryDelay returns the server suggested delay plus one second when the
// message carries "try again in N", otherwise base * 2^attempt.
func RetryDelay(message string, base time.Duration, attempt int) time.Duration {
	if d, ok := SuggestedDelay(message); ok {
		return d + suggestionBuffer
	}
	if attempt < 0 {
		attempt = 0
	}
	backoff := float64(base) * math.Pow(2, float64(attempt))
	if backoff > float64(maxBackoff) {
		return maxBackoff
	}
	return time.Duration(backoff)
}

// SuggestedDelay parses a "try again in Ns" or "try again in Nms" hint.
func SuggestedDelay(message string) (time.Duration, bool) {
	m := retryAfterPattern.FindStringSubmatch(message)
	if m == nil {
		return 0, false
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	if strings.EqualFold(m[2], "ms") {
		return time.Duration(value * float64(time.Millisecond)), true
	}
	return time.Duration(value * float64(time.Second)), true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ Completer = (*Retrier)(nil)
