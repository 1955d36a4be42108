package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrNotReady        = errors.New("reading not ready")
	ErrNotClaimable    = errors.New("job is not pending")
	ErrAlreadyTerminal = errors.New("job already in terminal state")
	ErrDuplicate       = errors.New("duplicate job")
	ErrInvalidInput    = errors.New("invalid input")
	ErrJobFailed       = errors.New("reading failed")
)

// Pipeline failure taxonomy.
var (
	ErrRateLimited    = errors.New("rate limited")
	ErrQuotaExhausted = errors.New("quota exhausted")
	ErrTransport      = errors.New("transport error")
	ErrModelRejected  = errors.New("model rejected input")
	ErrUnparseable    = errors.New("unparseable model output")
)

// Failure attaches a taxonomy kind and a user-facing message to a cause.
type Failure struct {
	Kind    error
	Message string
	Err     error
}

// NewFailure builds a Failure of the given kind.
func NewFailure(kind error, message string, cause error) *Failure {
	return &Failure{Kind: kind, Message: message, Err: cause}
}

func (f *Failure) Error() string {
	switch {
	case f.Err != nil && f.Message != "":
		return f.Message + ": " + f.Err.Error()
	case f.Err != nil:
		return f.Kind.Error() + ": " + f.Err.Error()
	case f.Message != "":
		return f.Message
	default:
		return f.Kind.Error()
	}
}

func (f *Failure) Unwrap() []error {
	if f.Err == nil {
		return []error{f.Kind}
	}
	return []error{f.Kind, f.Err}
}

// UserMessage returns the message safe to show to end users for err.
func UserMessage(err error) string {
	var f *Failure
	if errors.As(err, &f) && f.Message != "" {
		return f.Message
	}
	switch {
	case errors.Is(err, ErrModelRejected):
		return "The reading could not be produced from this input. Please check it and try again."
	case errors.Is(err, ErrUnparseable):
		return "The reading could not be interpreted. Please try again."
	case errors.Is(err, ErrRateLimited):
		return "The reading service is busy right now. Please try again in a few minutes."
	case errors.Is(err, ErrQuotaExhausted):
		return "The reading service is temporarily unavailable. Please try again later."
	}
	return "The reading failed unexpectedly. Please try again."
}

// Reason returns a short label for the taxonomy kind of err.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrQuotaExhausted):
		return "quota_exhausted"
	case errors.Is(err, ErrModelRejected):
		return "model_rejected"
	case errors.Is(err, ErrUnparseable):
		return "unparseable"
	case errors.Is(err, ErrTransport):
		return "transport"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	}
	return "internal"
}
