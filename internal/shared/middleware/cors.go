package middleware

import (
	"net/http"
	"net/url"
)

// Redirect targets of external providers. Browsers arrive here from a
// foreign origin, so the allowed-host check does not apply.
var corsExemptPaths = map[string]bool{
	"/api/auth/oauth/callback": true,
	"/api/mp/callback":         true,
	"/api/mp/return":           true,
}

// CORS applies Cross-Origin Resource Sharing headers. With no allowed hosts
// configured every origin is accepted; otherwise requests from other
// origins are rejected with 403.
func CORS(allowedHosts []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			switch {
			case len(allowedHosts) == 0 || corsExemptPaths[r.URL.Path]:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case origin == "":
				// Same-origin or non-browser request
			case isOriginAllowed(origin, allowedHosts):
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Add("Vary", "Origin")
			default:
				http.Error(w, "Origin not allowed", http.StatusForbidden)
				return
			}

			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "3600")

			// Handle preflight requests
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func isOriginAllowed(origin string, allowedHosts []string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	return hostInList(u.Host, allowedHosts)
}
