package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

type bucket struct {
	count int
	until time.Time
}

// KeyFunc names the bucket a request is counted against.
type KeyFunc func(r *http.Request) string

// RateLimit allows limit requests per window for each key. Rejected requests
// get 429 with Retry-After in seconds. A non-positive limit disables it.
func RateLimit(limit int, per time.Duration, key KeyFunc) func(http.Handler) http.Handler {
	if key == nil {
		key = ClientKey
	}
	var mu sync.Mutex
	buckets := make(map[string]*bucket)
	return func(next http.Handler) http.Handler {
		if limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			now := time.Now()
			mu.Lock()
			b, ok := buckets[k]
			if !ok || now.After(b.until) {
				b = &bucket{until: now.Add(per)}
				buckets[k] = b
				sweepBuckets(buckets, now)
			}
			if b.count >= limit {
				retry := int(b.until.Sub(now).Seconds()) + 1
				mu.Unlock()
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate_limited","message":"Too many readings requested. Please try again later."}`))
				return
			}
			b.count++
			mu.Unlock()
			next.ServeHTTP(w, r)
		})
	}
}

// sweepBuckets drops expired windows so idle clients do not accumulate.
func sweepBuckets(buckets map[string]*bucket, now time.Time) {
	if len(buckets) < 1024 {
		return
	}
	for k, b := range buckets {
		if now.After(b.until) {
			delete(buckets, k)
		}
	}
}
