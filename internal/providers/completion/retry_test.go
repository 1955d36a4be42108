package completion

import (
	"context"
	"errors"
	"testing"
	"time"

	"palmreader/internal/domain"
)

func TestRetryDelayUsesServerSuggestion(t *testing.T) {
	t.Parallel()
	msg := "Rate limit reached for requests. Please try again in 5s. Visit the docs."
	for _, base := range []time.Duration{time.Millisecond, 2 * time.Second, time.Minute} {
		for attempt := 0; attempt < 5; attempt++ {
			if got := RetryDelay(msg, base, attempt); got != 6*time.Second {
				t.Fatalf("RetryDelay(base=%s, attempt=%d) = %s, want 6s", base, attempt, got)
			}
		}
	}
}

func TestRetryDelayExponential(t *testing.T) {
	t.Parallel()
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 2 * time.Second},
		{1, 4 * time.Second},
		{2, 8 * time.Second},
		{20, maxBackoff},
	}
	for _, tc := range cases {
		if got := RetryDelay("rate limited", 2*time.Second, tc.attempt); got != tc.want {
			t.Fatalf("RetryDelay(attempt=%d) = %s, want %s", tc.attempt, got, tc.want)
		}
	}
}

func TestSuggestedDelayUnits(t *testing.T) {
	t.Parallel()
	cases := []struct {
		msg  string
		want time.Duration
		ok   bool
	}{
		{"try again in 20ms", 20 * time.Millisecond, true},
		{"Please TRY AGAIN IN 1.5s.", 1500 * time.Millisecond, true},
		{"try again in 3 seconds", 3 * time.Second, true},
		{"try again later", 0, false},
	}
	for _, tc := range cases {
		got, ok := SuggestedDelay(tc.msg)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("SuggestedDelay(%q) = %s/%v, want %s/%v", tc.msg, got, ok, tc.want, tc.ok)
		}
	}
}

func rateLimitErr(msg string) error {
	return domain.NewFailure(domain.ErrRateLimited, "", errors.New(msg))
}

func TestRetrierRetriesRateLimitsThenSucceeds(t *testing.T) {
	calls := 0
	var slept []time.Duration
	var retried []int
	next := CompleterFunc(func(ctx context.Context, req Request) (string, error) {
		calls++
		if calls < 3 {
			return "", rateLimitErr("slow down")
		}
		return "ok", nil
	})
	r := NewRetrier(next, RetryOptions{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		Sleep: func(ctx context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		},
		OnRetry: func(attempt int, delay time.Duration) { retried = append(retried, attempt) },
	})
	text, err := r.Complete(context.Background(), Request{})
	if err != nil || text != "ok" {
		t.Fatalf("Complete = %q, %v", text, err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
	if len(slept) != 2 || slept[0] != time.Second || slept[1] != 2*time.Second {
		t.Fatalf("slept = %v", slept)
	}
	if len(retried) != 2 || retried[1] != 2 {
		t.Fatalf("retried = %v", retried)
	}
}

func TestRetrierPropagatesRateLimitAfterExhaustion(t *testing.T) {
	calls := 0
	next := CompleterFunc(func(ctx context.Context, req Request) (string, error) {
		calls++
		return "", rateLimitErr("try again in 1s")
	})
	r := NewRetrier(next, RetryOptions{
		MaxRetries: 3,
		Sleep:      func(ctx context.Context, d time.Duration) error { return nil },
	})
	_, err := r.Complete(context.Background(), Request{})
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected rate limited, got %v", err)
	}
	if calls != 4 {
		t.Fatalf("calls = %d, want 4", calls)
	}
}

func TestRetrierNeverRetriesQuotaOrTransport(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		err  error
		want error
	}{
		{name: "quota", err: domain.NewFailure(domain.ErrQuotaExhausted, "", errors.New("insufficient_quota")), want: domain.ErrQuotaExhausted},
		{name: "rate limit mentioning billing", err: rateLimitErr("check your billing details"), want: domain.ErrQuotaExhausted},
		{name: "plain error", err: errors.New("dial tcp: refused"), want: domain.ErrTransport},
		{name: "untyped quota text", err: errors.New("subscription expired"), want: domain.ErrQuotaExhausted},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			calls := 0
			next := CompleterFunc(func(ctx context.Context, req Request) (string, error) {
				calls++
				return "", tc.err
			})
			r := NewRetrier(next, RetryOptions{
				Sleep: func(ctx context.Context, d time.Duration) error {
					t.Fatalf("unexpected sleep %s", d)
					return nil
				},
			})
			_, err := r.Complete(context.Background(), Request{})
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if calls != 1 {
				t.Fatalf("calls = %d, want 1", calls)
			}
		})
	}
}

func TestRetrierStopsWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	next := CompleterFunc(func(ctx context.Context, req Request) (string, error) {
		return "", rateLimitErr("busy")
	})
	r := NewRetrier(next, RetryOptions{MaxRetries: 3, BaseDelay: time.Hour})
	_, err := r.Complete(ctx, Request{})
	if !errors.Is(err, domain.ErrTransport) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled transport error, got %v", err)
	}
}
