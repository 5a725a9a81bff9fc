package quota

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/fruitsalade/cloudstore/internal/metrics"
)

// UserIDFromContext extracts the user ID from the request context.
// This function type allows decoupling from the auth package.
type UserIDFromContext func(ctx context.Context) (userID int64, ok bool)

// RateLimitMiddleware returns middleware that enforces per-user rate limits.
func RateLimitMiddleware(limiter *RateLimiter, getUserID UserIDFromContext) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := getUserID(r.Context())
			if !ok || !limiter.Enabled() {
				next.ServeHTTP(w, r)
				return
			}

			if !limiter.Allow(userID) {
				metrics.RecordRateLimited()
				retryAfter := limiter.RetryAfter(userID)
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]interface{}{
					"message":   "rate limit exceeded",
					"error":     http.StatusText(http.StatusTooManyRequests),
					"status":    http.StatusTooManyRequests,
					"path":      r.URL.Path,
					"timestamp": time.Now().UTC(),
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
