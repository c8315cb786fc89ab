package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CORS lets the clinic's browser frontends (patient portal, staff dashboard)
// call the API cross-origin. Origins is an explicit allow-list; when it is
// empty the middleware is a no-op, which is the right default for
// server-to-server deployments behind the gateway.
type CORS struct {
	Origins          []string
	Methods          []string
	Headers          []string
	AllowCredentials bool
	MaxAge           time.Duration
}

func WithCORS(c CORS) Middleware {
	origins := nonEmpty(c.Origins)
	if len(origins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	methods := strings.Join(nonEmpty(c.Methods), ", ")
	headers := strings.Join(nonEmpty(c.Headers), ", ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			allowed := matchOrigin(origin, origins, c.AllowCredentials)
			if allowed == "" {
				// Same-origin or unknown origin: let the handler answer and
				// the browser enforce.
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", allowed)
			h.Add("Vary", "Origin")
			if c.AllowCredentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}

			// Preflights are answered here; the mux never sees them.
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				if methods != "" {
					h.Set("Access-Control-Allow-Methods", methods)
				}
				if headers != "" {
					h.Set("Access-Control-Allow-Headers", headers)
				}
				if c.MaxAge > 0 {
					h.Set("Access-Control-Max-Age", strconv.Itoa(int(c.MaxAge.Seconds())))
				}
				h.Add("Vary", "Access-Control-Request-Method")
				h.Add("Vary", "Access-Control-Request-Headers")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// matchOrigin returns the Allow-Origin value to emit, or "" when the origin
// is not on the list. A wildcard entry echoes the caller's origin when
// credentials are allowed, since browsers reject "*" with credentials.
func matchOrigin(origin string, allowed []string, credentials bool) string {
	if origin == "" {
		return ""
	}
	for _, a := range allowed {
		if a == "*" {
			if credentials {
				return origin
			}
			return "*"
		}
		if strings.EqualFold(a, origin) {
			return origin
		}
	}
	return ""
}

func nonEmpty(values []string) []string {
	out := values[:0:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
