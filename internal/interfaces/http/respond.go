package http

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"splitpay/internal/shared/auth"
	"splitpay/internal/shared/middleware"
)

const maxJSONBodySize = 1 << 20 // 1 MiB

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// serverError logs err and answers 500 without leaking details.
func serverError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	slog.ErrorContext(r.Context(), msg, "error", err, "path", r.URL.Path)
	writeError(w, http.StatusInternalServerError, msg)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// requireSession returns the caller's session or answers 401.
func requireSession(w http.ResponseWriter, r *http.Request) (auth.Session, bool) {
	session, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return auth.Session{}, false
	}
	return session, true
}

// pathID reads a UUID path value. Malformed ids answer 404 so they are
// indistinguishable from missing rows.
func pathID(w http.ResponseWriter, r *http.Request, name, notFound string) (string, bool) {
	id := r.PathValue(name)
	if !isUUID(id) {
		writeError(w, http.StatusNotFound, notFound)
		return "", false
	}
	return id, true
}

func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// safeNext accepts only site-relative redirect targets. Control
// characters are refused because browsers strip them before resolving,
// which can turn "/\t/host" into "//host".
func safeNext(next string) string {
	const fallback = "/dashboard"
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, `\`) {
		return fallback
	}
	if strings.ContainsFunc(next, func(r rune) bool { return r < 0x20 || r == 0x7f }) {
		return fallback
	}
	if u, err := url.Parse(next); err != nil || u.Host != "" || u.Scheme != "" {
		return fallback
	}
	return next
}

func isSecure(r *http.Request) bool {
	return r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https"
}

// setAuthCookie sets the JWT as an HttpOnly cookie
func setAuthCookie(w http.ResponseWriter, r *http.Request, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AccessTokenCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   isSecure(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   86400, // 24 hours (matches JWT expiration)
	})
}

func clearCookie(w http.ResponseWriter, r *http.Request, name, path string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		HttpOnly: true,
		Secure:   isSecure(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// setStateCookie stores an OAuth state, plus an optional payload, for the
// round trip to a provider.
func setStateCookie(w http.ResponseWriter, r *http.Request, name, path, state, payload string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    state + "|" + url.QueryEscape(payload),
		Path:     path,
		HttpOnly: true,
		Secure:   isSecure(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   600,
	})
}

// checkState compares the state query parameter with the cookie, clears the
// cookie either way and returns the stored payload.
func checkState(w http.ResponseWriter, r *http.Request, name, path string) (string, bool) {
	cookie, err := r.Cookie(name)
	clearCookie(w, r, name, path)
	if err != nil {
		return "", false
	}
	state, rawPayload, _ := strings.Cut(cookie.Value, "|")
	if state == "" || r.URL.Query().Get("state") != state {
		return "", false
	}
	payload, err := url.QueryUnescape(rawPayload)
	if err != nil {
		return "", false
	}
	return payload, true
}
