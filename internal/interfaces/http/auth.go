package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"splitpay/internal/domain/profile"
	"splitpay/internal/shared/auth"
	"splitpay/internal/shared/middleware"
)

const oauthStateCookie = "oauth_state"

// Identity is the part of profile.Service the auth endpoints use.
type Identity interface {
	Register(ctx context.Context, email, name, password string) (*profile.Profile, error)
	Authenticate(ctx context.Context, email, password string) (*profile.Profile, error)
	LoginWithOAuth(ctx context.Context, provider string, info *auth.OAuthUserInfo) (*profile.Profile, error)
}

// TokenIssuer issues session tokens. *auth.JWT satisfies it.
type TokenIssuer interface {
	Generate(userID, email string) (string, error)
}

type AuthHandler struct {
	identity      Identity
	oauthProvider auth.OAuthProvider
	jwt           TokenIssuer
}

// NewAuthHandler builds the auth endpoints. oauthProvider may be nil when
// Google sign-in is not configured.
func NewAuthHandler(identity Identity, oauthProvider auth.OAuthProvider, jwt TokenIssuer) *AuthHandler {
	return &AuthHandler{identity: identity, oauthProvider: oauthProvider, jwt: jwt}
}

type AuthURLResponse struct {
	URL string `json:"url"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token   string           `json:"token"`
	Profile *profile.Profile `json:"profile"`
}

// HandleAuthURL returns the Google authorization URL and remembers the
// post-login target with the state.
func (h *AuthHandler) HandleAuthURL(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.oauthProvider == nil {
		writeError(w, http.StatusServiceUnavailable, "Google sign-in is not configured")
		return
	}

	state, err := generateState()
	if err != nil {
		serverError(w, r, "Failed to generate state", err)
		return
	}

	// The PKCE verifier travels with the state cookie and never reaches
	// the browser's address bar.
	verifier := auth.NewOAuthVerifier()
	payload := url.Values{"next": {safeNext(r.URL.Query().Get("next"))}, "verifier": {verifier}}
	setStateCookie(w, r, oauthStateCookie, "/api/auth", state, payload.Encode())
	writeJSON(w, http.StatusOK, AuthURLResponse{URL: h.oauthProvider.AuthURL(state, verifier)})
}

// HandleCallback finishes Google sign-in, issues a session cookie and
// redirects to the stored target.
func (h *AuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.oauthProvider == nil {
		writeError(w, http.StatusServiceUnavailable, "Google sign-in is not configured")
		return
	}

	rawPayload, ok := checkState(w, r, oauthStateCookie, "/api/auth")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid OAuth state")
		return
	}
	payload, err := url.ParseQuery(rawPayload)
	if err != nil || payload.Get("verifier") == "" {
		writeError(w, http.StatusBadRequest, "Invalid OAuth state")
		return
	}

	if oauthError := r.URL.Query().Get("error"); oauthError != "" {
		http.Redirect(w, r, "/login?error=oauth", http.StatusFound)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "Code is required")
		return
	}

	ctx := r.Context()

	token, err := h.oauthProvider.Exchange(ctx, code, payload.Get("verifier"))
	if err != nil {
		slog.WarnContext(ctx, "google code exchange failed", "error", err)
		writeError(w, http.StatusBadGateway, "Failed to exchange code")
		return
	}

	info, err := h.oauthProvider.UserInfo(ctx, token)
	if errors.Is(err, auth.ErrUnverifiedEmail) {
		http.Redirect(w, r, "/login?error=unverified", http.StatusFound)
		return
	}
	if err != nil {
		slog.WarnContext(ctx, "google user info failed", "error", err)
		writeError(w, http.StatusBadGateway, "Failed to get user info")
		return
	}

	p, err := h.identity.LoginWithOAuth(ctx, h.oauthProvider.Name(), info)
	if err != nil {
		serverError(w, r, "Failed to sign in", err)
		return
	}

	if _, ok := h.issue(w, r, p); !ok {
		return
	}
	http.Redirect(w, r, safeNext(payload.Get("next")), http.StatusFound)
}

// HandleRegister creates a password account and signs it in.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.identity.Register(r.Context(), req.Email, strings.TrimSpace(req.Name), req.Password)
	switch {
	case errors.Is(err, profile.ErrInvalidEmail), errors.Is(err, auth.ErrWeakPassword), errors.Is(err, auth.ErrPasswordTooLong):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, profile.ErrEmailTaken):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		serverError(w, r, "Failed to register", err)
		return
	}

	token, ok := h.issue(w, r, p)
	if !ok {
		return
	}
	writeJSON(w, http.StatusCreated, AuthResponse{Token: token, Profile: p})
}

// HandleLogin authenticates with email and password
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	p, err := h.identity.Authenticate(r.Context(), req.Email, req.Password)
	if errors.Is(err, profile.ErrInvalidCredentials) {
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	if err != nil {
		serverError(w, r, "Failed to sign in", err)
		return
	}

	token, ok := h.issue(w, r, p)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, AuthResponse{Token: token, Profile: p})
}

// HandleLogout clears the auth cookie
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	clearCookie(w, r, middleware.AccessTokenCookie, "/")
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) issue(w http.ResponseWriter, r *http.Request, p *profile.Profile) (string, bool) {
	token, err := h.jwt.Generate(p.ID, p.Email)
	if err != nil {
		serverError(w, r, "Failed to generate token", err)
		return "", false
	}
	setAuthCookie(w, r, token)
	return token, true
}
