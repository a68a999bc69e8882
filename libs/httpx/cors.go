package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CORSPolicy defines the CORS headers to emit for matching origins.
type CORSPolicy struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// corsHeaders is the policy rendered once into header values.
type corsHeaders struct {
	origins     []string
	methods     string
	headers     string
	exposed     string
	maxAge      string
	credentials bool
}

func (p CORSPolicy) compile() corsHeaders {
	c := corsHeaders{
		origins:     normalizeList(p.AllowedOrigins),
		methods:     strings.Join(normalizeList(p.AllowedMethods), ", "),
		headers:     strings.Join(normalizeList(p.AllowedHeaders), ", "),
		exposed:     strings.Join(normalizeList(p.ExposedHeaders), ", "),
		credentials: p.AllowCredentials,
	}
	if secs := int(p.MaxAge.Seconds()); secs > 0 {
		c.maxAge = strconv.Itoa(secs)
	}
	return c
}

// WithCORS answers preflight requests and decorates responses for allowed origins.
// Requests from other origins pass through untouched. An empty origin list disables it.
func WithCORS(cfg CORSPolicy) Middleware {
	c := cfg.compile()
	if len(c.origins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			h := w.Header()
			h.Add("Vary", "Origin")

			allowOrigin, ok := matchOrigin(origin, c.origins, c.credentials)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			h.Set("Access-Control-Allow-Origin", allowOrigin)
			if c.credentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Add("Vary", "Access-Control-Request-Method")
				h.Add("Vary", "Access-Control-Request-Headers")
				setIfNotEmpty(h, "Access-Control-Allow-Methods", c.methods)
				setIfNotEmpty(h, "Access-Control-Allow-Headers", c.headers)
				setIfNotEmpty(h, "Access-Control-Max-Age", c.maxAge)
				w.WriteHeader(http.StatusNoContent)
				return
			}

			setIfNotEmpty(h, "Access-Control-Expose-Headers", c.exposed)
			next.ServeHTTP(w, r)
		})
	}
}

func setIfNotEmpty(h http.Header, key, value string) {
	if value != "" {
		h.Set(key, value)
	}
}

func normalizeList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}

func matchOrigin(origin string, allowed []string, allowCredentials bool) (string, bool) {
	for _, candidate := range allowed {
		if candidate == "*" {
			if allowCredentials {
				return origin, true
			}
			return "*", true
		}
		if strings.EqualFold(candidate, origin) {
			return origin, true
		}
	}
	return "", false
}
