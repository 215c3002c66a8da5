package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"splitpay/internal/shared/auth"
)

// withSession attaches a signed-in user to req.
func withSession(req *http.Request, s auth.Session) *http.Request {
	return req.WithContext(auth.WithSession(req.Context(), s))
}

func TestSafeNext(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "/dashboard"},
		{"/groups/abc", "/groups/abc"},
		{"/dashboard?tab=owed", "/dashboard?tab=owed"},
		{"//evil.example", "/dashboard"},
		{"https://evil.example", "/dashboard"},
		{`/\evil.example`, "/dashboard"},
		{"dashboard", "/dashboard"},
		{"/\t/evil.example", "/dashboard"},
		{"/\n/evil.example", "/dashboard"},
		{"/\r\n/evil.example", "/dashboard"},
		{"/\x7f/evil.example", "/dashboard"},
		{"/groups/%2F%2Fevil", "/groups/%2F%2Fevil"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := safeNext(tt.in); got != tt.want {
				t.Errorf("safeNext(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCheckState(t *testing.T) {
	tests := []struct {
		name        string
		cookie      *http.Cookie
		query       string
		wantOK      bool
		wantPayload string
	}{
		{
			name:        "Match",
			cookie:      &http.Cookie{Name: "s", Value: "abc|%2Fgroups%2F1"},
			query:       "abc",
			wantOK:      true,
			wantPayload: "/groups/1",
		},
		{
			name:   "Mismatch",
			cookie: &http.Cookie{Name: "s", Value: "abc|x"},
			query:  "other",
		},
		{
			name:  "No Cookie",
			query: "abc",
		},
		{
			name:   "Empty State",
			cookie: &http.Cookie{Name: "s", Value: "|x"},
			query:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/cb?state="+tt.query, nil)
			if tt.cookie != nil {
				req.AddCookie(tt.cookie)
			}
			rr := httptest.NewRecorder()

			payload, ok := checkState(rr, req, "s", "/")
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if payload != tt.wantPayload {
				t.Errorf("payload = %q, want %q", payload, tt.wantPayload)
			}

			cleared := false
			for _, c := range rr.Result().Cookies() {
				if c.Name == "s" && c.MaxAge < 0 {
					cleared = true
				}
			}
			if !cleared {
				t.Error("state cookie was not cleared")
			}
		})
	}
}

func TestSetStateCookie_RoundTrip(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	setStateCookie(rr, req, "s", "/api", "tok", "/groups/1?x=a|b")

	cookies := rr.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("cookies = %d, want 1", len(cookies))
	}
	if !cookies[0].HttpOnly || cookies[0].MaxAge != 600 {
		t.Errorf("cookie attrs = %+v", cookies[0])
	}

	cb := httptest.NewRequest(http.MethodGet, "/api/cb?state=tok", nil)
	cb.AddCookie(cookies[0])
	payload, ok := checkState(httptest.NewRecorder(), cb, "s", "/api")
	if !ok || payload != "/groups/1?x=a|b" {
		t.Errorf("checkState = %q, %v", payload, ok)
	}
}

func TestPathID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x/not-a-uuid", nil)
	req.SetPathValue("id", "not-a-uuid")
	rr := httptest.NewRecorder()

	if _, ok := pathID(rr, req, "id", "Thing not found"); ok {
		t.Fatal("pathID accepted a malformed id")
	}
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Thing not found") {
		t.Errorf("body = %s", rr.Body.String())
	}
}

func TestRequireSession(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, ok := requireSession(rr, req); ok {
		t.Fatal("requireSession succeeded without a session")
	}
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rr.Code)
	}

	req = withSession(req, auth.Session{UserID: "u1", Email: "a@example.com"})
	s, ok := requireSession(httptest.NewRecorder(), req)
	if !ok || s.UserID != "u1" {
		t.Errorf("session = %+v, %v", s, ok)
	}
}
