package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
)

// HSTS sets Strict-Transport-Security and the headers that keep browsers
// from sniffing uploaded receipts and avatars into executable types.
func HSTS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		h.Set("X-Content-Type-Options", "nosniff")
		// Checkout and group URLs carry ids; keep them off the processor's logs.
		h.Set("Referrer-Policy", "same-origin")
		next.ServeHTTP(w, r)
	})
}

// SecureCookies rewrites every Set-Cookie header on the way out so it is
// Secure and HttpOnly. Cookies without a SameSite policy get Lax: the
// session and state cookies must survive the top-level redirects back
// from Google and Mercado Pago, which Strict would drop.
func SecureCookies(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(&secureCookieWriter{ResponseWriter: w}, r)
	})
}

type secureCookieWriter struct {
	http.ResponseWriter
	wroteHeader bool
}

// Unwrap lets http.ResponseController reach the underlying writer (SSE flushes).
func (w *secureCookieWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *secureCookieWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func (w *secureCookieWriter) WriteHeader(statusCode int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true

	h := w.ResponseWriter.Header()
	if raw := h.Values("Set-Cookie"); len(raw) > 0 {
		h.Del("Set-Cookie")
		for _, line := range raw {
			h.Add("Set-Cookie", hardenCookie(line))
		}
	}

	w.ResponseWriter.WriteHeader(statusCode)
}

func hardenCookie(line string) string {
	c, err := http.ParseSetCookie(line)
	if err != nil {
		// Pass through rather than drop a cookie a handler meant to set.
		slog.Warn("unparseable Set-Cookie header", "error", err)
		return line
	}
	c.Secure = true
	c.HttpOnly = true
	// ParseSetCookie leaves SameSite zero when the attribute is absent.
	if c.SameSite == 0 || c.SameSite == http.SameSiteDefaultMode {
		c.SameSite = http.SameSiteLaxMode
	}
	return c.String()
}

// IsHostAllowed reports whether host (as sent in Host or X-Forwarded-Host)
// matches the allowed list. An empty list allows everything. Ports are
// ignored on either side.
func IsHostAllowed(host string, allowedHosts []string) bool {
	if len(allowedHosts) == 0 {
		return true
	}
	return hostInList(strings.TrimSpace(host), allowedHosts)
}

func hostInList(host string, allowedHosts []string) bool {
	host = strings.ToLower(host)
	bare := StripPort(host)
	for _, allowed := range allowedHosts {
		allowed = strings.ToLower(strings.TrimSpace(allowed))
		if host == allowed || bare == StripPort(allowed) {
			return true
		}
	}
	return false
}

// StripPort removes an optional port and IPv6 brackets from a host.
func StripPort(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
}
