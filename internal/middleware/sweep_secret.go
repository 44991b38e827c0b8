package middleware

import (
	"crypto/subtle"
	"net/http"
)

// SweepSecretHeader carries the shared secret for internal scheduler endpoints.
const SweepSecretHeader = "X-Sweep-Secret"

// SweepSecret gates the internal auto-release endpoint behind a shared secret
// so only the scheduler (or an operator who knows it) can trigger a sweep.
// The comparison is constant-time.
func SweepSecret(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				http.Error(w, `{"error":"sweep endpoint disabled"}`, http.StatusForbidden)
				return
			}
			got := r.Header.Get(SweepSecretHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				http.Error(w, `{"error":"invalid sweep secret"}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
