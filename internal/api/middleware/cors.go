package middleware

import (
	"net/http"
	"strings"

	"bidding-core/pkg/logger"
)

const (
	allowMethods = "GET, POST, OPTIONS"
	allowHeaders = "Accept, Content-Type, Content-Length, Authorization, X-Requested-With, X-Bidder-ID, Idempotency-Key"
)

// CORS answers preflight requests and tags responses for the plain net/http
// routers. An empty allowlist admits every origin.
func CORS(allowedOrigins []string, log logger.Logger) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[strings.TrimSpace(origin)] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if origin != "" {
				if len(allowed) > 0 && !allowed[origin] {
					log.Debug("CORS origin rejected", "origin", origin, "path", r.URL.Path)
					if r.Method == http.MethodOptions {
						w.WriteHeader(http.StatusForbidden)
						return
					}
					next.ServeHTTP(w, r)
					return
				}

				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
				w.Header().Set("Access-Control-Allow-Methods", allowMethods)
				w.Header().Set("Access-Control-Allow-Headers", allowHeaders)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Access-Control-Max-Age", "86400")
			}

			if r.Method == http.MethodOptions {
				log.Debug("Handling CORS preflight", "path", r.URL.Path, "origin", origin)
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
