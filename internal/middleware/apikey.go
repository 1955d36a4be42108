package middleware

import (
	"context"
	"net/http"
	"strings"
)

type apiKeyContextKey struct{}

// APIKeyHeader carries the client's API key.
const APIKeyHeader = "X-API-Key"

const maxAPIKeyLen = 200

// APIKey copies the client API key header into the request context.
func APIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(APIKeyHeader))
		if key != "" && len(key) <= maxAPIKeyLen {
			r = r.WithContext(context.WithValue(r.Context(), apiKeyContextKey{}, key))
		}
		next.ServeHTTP(w, r)
	})
}

func APIKeyFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(apiKeyContextKey{}).(string); ok {
		return v
	}
	return ""
}

// ClientKey identifies the caller for throttling: the API key when present,
// otherwise the client IP.
func ClientKey(r *http.Request) string {
	if key := APIKeyFromContext(r.Context()); key != "" {
		return "key:" + key
	}
	return "ip:" + ClientIP(r)
}
