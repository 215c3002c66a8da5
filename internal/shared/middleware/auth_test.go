package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"splitpay/internal/shared/auth"
)

// MockTokenValidator implements TokenValidator for testing
type MockTokenValidator struct {
	ValidateFunc func(token string) (*auth.JWTClaims, error)
}

func (m *MockTokenValidator) Validate(token string) (*auth.JWTClaims, error) {
	return m.ValidateFunc(token)
}

// fixedTokens accepts "good" and reports "old" as expired.
var fixedTokens = &MockTokenValidator{
	ValidateFunc: func(token string) (*auth.JWTClaims, error) {
		switch token {
		case "good":
			return &auth.JWTClaims{UserID: "user-1", Email: "test@example.com"}, nil
		case "old":
			return nil, auth.ErrTokenExpired
		}
		return nil, auth.ErrInvalidToken
	},
}

func TestAuth(t *testing.T) {
	tests := []struct {
		name          string
		cookie        string
		header        string
		wantStatus    int
		wantChallenge string
	}{
		{name: "Cookie", cookie: "good", wantStatus: http.StatusOK},
		{name: "Bearer Header", header: "Bearer good", wantStatus: http.StatusOK},
		{name: "Lowercase Scheme", header: "bearer good", wantStatus: http.StatusOK},
		{name: "Cookie Wins Over Header", cookie: "good", header: "Bearer junk", wantStatus: http.StatusOK},
		{name: "No Token", wantStatus: http.StatusUnauthorized, wantChallenge: `Bearer realm="splitpay"`},
		{name: "Wrong Scheme", header: "Token good", wantStatus: http.StatusUnauthorized, wantChallenge: `Bearer realm="splitpay"`},
		{name: "Empty Bearer", header: "Bearer ", wantStatus: http.StatusUnauthorized, wantChallenge: `Bearer realm="splitpay"`},
		{name: "Invalid", header: "Bearer junk", wantStatus: http.StatusUnauthorized, wantChallenge: `error="invalid_token"`},
		{name: "Expired", cookie: "old", wantStatus: http.StatusUnauthorized, wantChallenge: `error_description="expired"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				session, ok := auth.SessionFromContext(r.Context())
				if !ok || session.UserID != "user-1" || session.Email != "test@example.com" {
					t.Errorf("session = %+v, %v", session, ok)
				}
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/api/expenses", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: tt.cookie})
			}
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			Auth(fixedTokens)(next).ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if got := rr.Header().Get("WWW-Authenticate"); !strings.Contains(got, tt.wantChallenge) || (tt.wantChallenge == "") != (got == "") {
				t.Errorf("WWW-Authenticate = %q, want it to contain %q", got, tt.wantChallenge)
			}
		})
	}
}

func TestAuth_RealJWT(t *testing.T) {
	jwt := auth.NewJWT("test-secret")
	token, _ := jwt.Generate("user-1", "test@example.com")

	req := httptest.NewRequest(http.MethodGet, "/api/groups", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	Auth(jwt)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rr.Code)
	}
}

func TestAuthPage(t *testing.T) {
	tests := []struct {
		name         string
		target       string
		cookie       string
		wantStatus   int
		wantLocation string
	}{
		{"No Session", "/groups/abc", "", http.StatusFound, "/login?next=%2Fgroups%2Fabc"},
		{"Keeps Query", "/dashboard?tab=owed", "", http.StatusFound, "/login?next=%2Fdashboard%3Ftab%3Dowed"},
		{"Expired Session", "/dashboard", "old", http.StatusFound, "/login?next=%2Fdashboard"},
		{"With Session", "/dashboard", "good", http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := AuthPage(fixedTokens)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if _, ok := auth.SessionFromContext(r.Context()); !ok {
					t.Error("page handler ran without a session")
				}
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: tt.cookie})
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if got := rr.Header().Get("Location"); got != tt.wantLocation {
				t.Errorf("Location = %q, want %q", got, tt.wantLocation)
			}
		})
	}
}
