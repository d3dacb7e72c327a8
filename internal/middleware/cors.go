package middleware

import (
	"net/http"
	"strings"
)

const (
	allowedMethods  = "GET, POST, OPTIONS"
	allowedHeaders  = "Content-Type"
	preflightMaxAge = "600"
)

// OriginPolicy matches request origins against exact origins or patterns
// with a single "*" standing for one or more characters other than "/",
// e.g. "https://*.ext-twitch.tv".
type OriginPolicy struct {
	patterns []string
}

func NewOriginPolicy(patterns []string) *OriginPolicy {
	return &OriginPolicy{patterns: patterns}
}

// Allows reports whether origin matches any configured pattern.
func (p *OriginPolicy) Allows(origin string) bool {
	if origin == "" {
		return false
	}
	for _, pattern := range p.patterns {
		if matchOrigin(pattern, origin) {
			return true
		}
	}
	return false
}

func matchOrigin(pattern, origin string) bool {
	if pattern == "*" {
		return true
	}

	prefix, suffix, wildcard := strings.Cut(pattern, "*")
	if !wildcard {
		return strings.EqualFold(pattern, origin)
	}

	if len(origin) <= len(prefix)+len(suffix) {
		return false
	}
	if !strings.HasPrefix(origin, prefix) || !strings.HasSuffix(origin, suffix) {
		return false
	}
	middle := origin[len(prefix) : len(origin)-len(suffix)]
	return !strings.Contains(middle, "/")
}

// CORSMiddleware answers preflight requests and adds credentialed CORS
// headers for allowed origins. Other origins get no CORS headers.
func CORSMiddleware(policy *OriginPolicy, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		w.Header().Add("Vary", "Origin")

		allowed := policy.Allows(origin)
		if allowed {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			if allowed {
				headers := r.Header.Get("Access-Control-Request-Headers")
				if headers == "" {
					headers = allowedHeaders
				}
				w.Header().Set("Access-Control-Allow-Methods", allowedMethods)
				w.Header().Set("Access-Control-Allow-Headers", headers)
				w.Header().Set("Access-Control-Max-Age", preflightMaxAge)
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
