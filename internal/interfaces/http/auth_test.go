package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"golang.org/x/oauth2"

	"splitpay/internal/domain/profile"
	"splitpay/internal/shared/auth"
	"splitpay/internal/shared/middleware"
)

// MockIdentity implements Identity for testing
type MockIdentity struct {
	RegisterFunc       func(ctx context.Context, email, name, password string) (*profile.Profile, error)
	AuthenticateFunc   func(ctx context.Context, email, password string) (*profile.Profile, error)
	LoginWithOAuthFunc func(ctx context.Context, provider string, info *auth.OAuthUserInfo) (*profile.Profile, error)
}

func (m *MockIdentity) Register(ctx context.Context, email, name, password string) (*profile.Profile, error) {
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, email, name, password)
	}
	return nil, nil
}

func (m *MockIdentity) Authenticate(ctx context.Context, email, password string) (*profile.Profile, error) {
	if m.AuthenticateFunc != nil {
		return m.AuthenticateFunc(ctx, email, password)
	}
	return nil, nil
}

func (m *MockIdentity) LoginWithOAuth(ctx context.Context, provider string, info *auth.OAuthUserInfo) (*profile.Profile, error) {
	if m.LoginWithOAuthFunc != nil {
		return m.LoginWithOAuthFunc(ctx, provider, info)
	}
	return nil, nil
}

// MockOAuthProvider implements auth.OAuthProvider for testing. AuthURL
// echoes the verifier so tests can check it comes back on Exchange.
type MockOAuthProvider struct {
	ExchangeFunc func(ctx context.Context, code, verifier string) (*oauth2.Token, error)
	UserInfoFunc func(ctx context.Context, token *oauth2.Token) (*auth.OAuthUserInfo, error)
}

func (m *MockOAuthProvider) Name() string { return "google" }

func (m *MockOAuthProvider) AuthURL(state, verifier string) string {
	return "https://accounts.example/auth?" + url.Values{"state": {state}, "verifier": {verifier}}.Encode()
}

func (m *MockOAuthProvider) Exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	if m.ExchangeFunc != nil {
		return m.ExchangeFunc(ctx, code, verifier)
	}
	return &oauth2.Token{AccessToken: "at"}, nil
}

func (m *MockOAuthProvider) UserInfo(ctx context.Context, token *oauth2.Token) (*auth.OAuthUserInfo, error) {
	if m.UserInfoFunc != nil {
		return m.UserInfoFunc(ctx, token)
	}
	return &auth.OAuthUserInfo{ID: "g-1", Email: "ana@example.com", Name: "Ana"}, nil
}

type stubIssuer struct{ err error }

func (s stubIssuer) Generate(userID, email string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "token-" + userID, nil
}

func authCookie(rr *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == middleware.AccessTokenCookie {
			return c
		}
	}
	return nil
}

func TestHandleRegister(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		registerErr    error
		expectedStatus int
	}{
		{"Success", `{"email":"ana@example.com","name":"Ana","password":"longenough1"}`, nil, http.StatusCreated},
		{"Invalid Email", `{"email":"nope","password":"longenough1"}`, profile.ErrInvalidEmail, http.StatusBadRequest},
		{"Weak Password", `{"email":"ana@example.com","password":"x"}`, auth.ErrWeakPassword, http.StatusBadRequest},
		{"Email Taken", `{"email":"ana@example.com","password":"longenough1"}`, profile.ErrEmailTaken, http.StatusConflict},
		{"Repository Error", `{"email":"ana@example.com","password":"longenough1"}`, errors.New("db error"), http.StatusInternalServerError},
		{"Malformed Body", `{`, nil, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			identity := &MockIdentity{
				RegisterFunc: func(ctx context.Context, email, name, password string) (*profile.Profile, error) {
					if tt.registerErr != nil {
						return nil, tt.registerErr
					}
					return &profile.Profile{ID: "u1", Email: email, Name: name}, nil
				},
			}
			handler := NewAuthHandler(identity, nil, stubIssuer{})

			req := httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewBufferString(tt.body))
			rr := httptest.NewRecorder()
			handler.HandleRegister(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Fatalf("status = %d, want %d (body %s)", rr.Code, tt.expectedStatus, rr.Body.String())
			}
			if tt.expectedStatus != http.StatusCreated {
				return
			}

			var resp AuthResponse
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Token != "token-u1" || resp.Profile.Email != "ana@example.com" {
				t.Errorf("response = %+v", resp)
			}
			if c := authCookie(rr); c == nil || c.Value != "token-u1" || !c.HttpOnly {
				t.Errorf("auth cookie = %+v", c)
			}
		})
	}
}

func TestHandleLogin(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		authErr        error
		expectedStatus int
	}{
		{"Success", `{"email":"ana@example.com","password":"pw"}`, nil, http.StatusOK},
		{"Wrong Password", `{"email":"ana@example.com","password":"bad"}`, profile.ErrInvalidCredentials, http.StatusUnauthorized},
		{"Missing Fields", `{"email":"ana@example.com"}`, nil, http.StatusBadRequest},
		{"Repository Error", `{"email":"ana@example.com","password":"pw"}`, errors.New("db error"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			identity := &MockIdentity{
				AuthenticateFunc: func(ctx context.Context, email, password string) (*profile.Profile, error) {
					if tt.authErr != nil {
						return nil, tt.authErr
					}
					return &profile.Profile{ID: "u1", Email: email}, nil
				},
			}
			handler := NewAuthHandler(identity, nil, stubIssuer{})

			req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBufferString(tt.body))
			rr := httptest.NewRecorder()
			handler.HandleLogin(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.expectedStatus)
			}
		})
	}
}

func TestHandleLogin_TokenFailure(t *testing.T) {
	identity := &MockIdentity{
		AuthenticateFunc: func(ctx context.Context, email, password string) (*profile.Profile, error) {
			return &profile.Profile{ID: "u1", Email: email}, nil
		},
	}
	handler := NewAuthHandler(identity, nil, stubIssuer{err: errors.New("sign")})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"a@example.com","password":"pw"}`))
	rr := httptest.NewRecorder()
	handler.HandleLogin(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rr.Code)
	}
	if authCookie(rr) != nil {
		t.Error("cookie set despite token failure")
	}
}

func TestHandleLogout(t *testing.T) {
	handler := NewAuthHandler(&MockIdentity{}, nil, stubIssuer{})

	rr := httptest.NewRecorder()
	handler.HandleLogout(rr, httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil))

	if rr.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rr.Code)
	}
	if c := authCookie(rr); c == nil || c.MaxAge >= 0 {
		t.Errorf("auth cookie not cleared: %+v", c)
	}
}

func TestHandleAuthURL_NotConfigured(t *testing.T) {
	handler := NewAuthHandler(&MockIdentity{}, nil, stubIssuer{})

	rr := httptest.NewRecorder()
	handler.HandleAuthURL(rr, httptest.NewRequest(http.MethodGet, "/api/auth/oauth/url", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rr.Code)
	}
}

// startGoogleLogin runs HandleAuthURL and returns the issued state cookie,
// the state value and the PKCE verifier from the authorization URL.
func startGoogleLogin(t *testing.T, handler *AuthHandler, next string) (*http.Cookie, string, string) {
	t.Helper()

	rr := httptest.NewRecorder()
	handler.HandleAuthURL(rr, httptest.NewRequest(http.MethodGet, "/api/auth/oauth/url?next="+url.QueryEscape(next), nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("auth url status = %d", rr.Code)
	}

	var resp AuthURLResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	u, err := url.Parse(resp.URL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}

	for _, c := range rr.Result().Cookies() {
		if c.Name == oauthStateCookie {
			return c, u.Query().Get("state"), u.Query().Get("verifier")
		}
	}
	t.Fatal("no state cookie")
	return nil, "", ""
}

func TestHandleCallback(t *testing.T) {
	tests := []struct {
		name             string
		next             string
		tamperState      bool
		exchangeErr      error
		infoErr          error
		loginErr         error
		expectedStatus   int
		expectedLocation string
	}{
		{
			name:             "Success Redirects To Next",
			next:             "/groups/42",
			expectedStatus:   http.StatusFound,
			expectedLocation: "/groups/42",
		},
		{
			name:             "Open Redirect Rejected",
			next:             "//evil.example",
			expectedStatus:   http.StatusFound,
			expectedLocation: "/dashboard",
		},
		{
			name:           "State Mismatch",
			tamperState:    true,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Exchange Failure",
			exchangeErr:    errors.New("upstream"),
			expectedStatus: http.StatusBadGateway,
		},
		{
			name:             "Unverified Email",
			infoErr:          auth.ErrUnverifiedEmail,
			expectedStatus:   http.StatusFound,
			expectedLocation: "/login?error=unverified",
		},
		{
			name:           "Login Failure",
			loginErr:       errors.New("db error"),
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var issuedVerifier string
			provider := &MockOAuthProvider{
				ExchangeFunc: func(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
					if verifier == "" || verifier != issuedVerifier {
						t.Errorf("Exchange verifier = %q, want %q", verifier, issuedVerifier)
					}
					if tt.exchangeErr != nil {
						return nil, tt.exchangeErr
					}
					return &oauth2.Token{AccessToken: "at"}, nil
				},
				UserInfoFunc: func(ctx context.Context, token *oauth2.Token) (*auth.OAuthUserInfo, error) {
					if tt.infoErr != nil {
						return nil, tt.infoErr
					}
					return &auth.OAuthUserInfo{ID: "g-1", Email: "ana@example.com", Name: "Ana"}, nil
				},
			}
			identity := &MockIdentity{
				LoginWithOAuthFunc: func(ctx context.Context, p string, info *auth.OAuthUserInfo) (*profile.Profile, error) {
					if tt.loginErr != nil {
						return nil, tt.loginErr
					}
					return &profile.Profile{ID: "u1", Email: info.Email}, nil
				},
			}
			handler := NewAuthHandler(identity, provider, stubIssuer{})

			cookie, state, verifier := startGoogleLogin(t, handler, tt.next)
			issuedVerifier = verifier
			if tt.tamperState {
				state = "forged"
			}

			req := httptest.NewRequest(http.MethodGet, "/api/auth/oauth/callback?code=c&state="+state, nil)
			req.AddCookie(cookie)
			rr := httptest.NewRecorder()
			handler.HandleCallback(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Fatalf("status = %d, want %d (body %s)", rr.Code, tt.expectedStatus, rr.Body.String())
			}
			if tt.expectedLocation != "" {
				if loc := rr.Header().Get("Location"); loc != tt.expectedLocation {
					t.Errorf("Location = %q, want %q", loc, tt.expectedLocation)
				}
				if tt.infoErr == nil && authCookie(rr) == nil {
					t.Error("no auth cookie after sign-in")
				}
			}
		})
	}
}
