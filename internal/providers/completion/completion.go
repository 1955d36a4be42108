// Package completion calls external generative models and classifies their
// failures into the pipeline taxonomy.
package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"palmreader/internal/domain"
)

// Request is a single completion call.
type Request struct {
	System       string
	Prompt       string
	ImageDataURL string
	Model        string
	Temperature  float64
	MaxTokens    int
	JSONMode     bool
}

// Completer returns raw model text or a *domain.Failure of kind
// ErrRateLimited, ErrQuotaExhausted or ErrTransport.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, req Request) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// ErrMissingAPIKey is reported as quota exhaustion so callers fall back.
var ErrMissingAPIKey = errors.New("completion: api key is not configured")

var quotaMarkers = []string{"insufficient_quota", "billing", "quota", "payment", "subscription"}

var rateLimitMarkers = []string{"rate limit", "rate_limit", "ratelimit", "too many requests", "try again in"}

type apiKeyCtxKey struct{}

// WithAPIKey returns a context carrying a per-call API key override.
func WithAPIKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, apiKeyCtxKey{}, strings.TrimSpace(key))
}

// APIKeyFromContext returns the per-call API key, if any.
func APIKeyFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(apiKeyCtxKey{}).(string); ok {
		return v
	}
	return ""
}

// IsQuotaMessage reports whether text carries a billing or quota marker.
func IsQuotaMessage(text string) bool {
	return containsAny(strings.ToLower(text), quotaMarkers)
}

// Classify maps an HTTP status and provider message to a taxonomy kind.
func Classify(status int, message string) error {
	lower := strings.ToLower(message)
	switch {
	case containsAny(lower, quotaMarkers):
		return domain.ErrQuotaExhausted
	case status == 429 || containsAny(lower, rateLimitMarkers):
		return domain.ErrRateLimited
	default:
		return domain.ErrTransport
	}
}

// Normalize wraps any error into the taxonomy. Quota markers always win so a
// rate-limit response that mentions billing is never retried.
func Normalize(err error) error {
	if err == nil {
		return nil
	}
	if IsQuotaMessage(err.Error()) || errors.Is(err, ErrMissingAPIKey) {
		if errors.Is(err, domain.ErrQuotaExhausted) {
			return err
		}
		return domain.NewFailure(domain.ErrQuotaExhausted, "", err)
	}
	if errors.Is(err, domain.ErrRateLimited) || errors.Is(err, domain.ErrTransport) {
		return err
	}
	if errors.Is(err, domain.ErrQuotaExhausted) {
		return err
	}
	return domain.NewFailure(domain.ErrTransport, "", err)
}

func newCallError(status int, message string) error {
	kind := Classify(status, message)
	return domain.NewFailure(kind, "", fmt.Errorf("status %d: %s", status, message))
}

func containsAny(text string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

// Truncate shortens provider text for logs.
func Truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}
