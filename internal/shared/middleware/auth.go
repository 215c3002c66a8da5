package middleware

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"splitpay/internal/shared/auth"
)

// AccessTokenCookie is the HttpOnly cookie carrying the session JWT.
const AccessTokenCookie = "access_token"

// TokenValidator validates a session token. *auth.JWT satisfies it.
type TokenValidator interface {
	Validate(token string) (*auth.JWTClaims, error)
}

// bearerToken reads the session JWT from the cookie browsers send, then
// from an Authorization header for the mobile app. The scheme name is
// case-insensitive.
func bearerToken(r *http.Request) string {
	if cookie, err := r.Cookie(AccessTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func sessionFromRequest(jwt TokenValidator, r *http.Request) (auth.Session, error) {
	token := bearerToken(r)
	if token == "" {
		return auth.Session{}, errNoToken
	}
	claims, err := jwt.Validate(token)
	if err != nil {
		return auth.Session{}, err
	}
	return claims.Session(), nil
}

var errNoToken = errors.New("no session token")

// Auth rejects requests without a valid session and stores the
// auth.Session in the request context.
func Auth(jwt TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, err := sessionFromRequest(jwt, r)
			switch {
			case errors.Is(err, errNoToken):
				w.Header().Set("WWW-Authenticate", `Bearer realm="splitpay"`)
				http.Error(w, "Authentication required", http.StatusUnauthorized)
				return
			case errors.Is(err, auth.ErrTokenExpired):
				w.Header().Set("WWW-Authenticate", `Bearer realm="splitpay", error="invalid_token", error_description="expired"`)
				http.Error(w, "Session expired", http.StatusUnauthorized)
				return
			case err != nil:
				w.Header().Set("WWW-Authenticate", `Bearer realm="splitpay", error="invalid_token"`)
				http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithSession(r.Context(), session)))
		})
	}
}

// AuthPage is Auth for browser pages: unauthenticated visitors are sent to
// /login with the current path as the next target.
func AuthPage(jwt TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, err := sessionFromRequest(jwt, r)
			if err != nil {
				http.Redirect(w, r, "/login?next="+url.QueryEscape(r.URL.RequestURI()), http.StatusFound)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithSession(r.Context(), session)))
		})
	}
}
