package http

import (
	"net/http"

	"splitpay/internal/shared/middleware"
	"splitpay/internal/web"
)

// HandleHealth returns a simple health check response.
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// HandleIndex sends signed-in visitors to the dashboard and everyone else
// to the login page.
func HandleIndex(validator middleware.TokenValidator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		if c, err := r.Cookie(middleware.AccessTokenCookie); err == nil {
			if _, err := validator.Validate(c.Value); err == nil {
				http.Redirect(w, r, "/dashboard", http.StatusFound)
				return
			}
		}
		http.Redirect(w, r, "/login", http.StatusFound)
	}
}

// HandleLoginPage serves the login page.
func HandleLoginPage(w http.ResponseWriter, r *http.Request) {
	http.ServeFileFS(w, r, web.FS, "login.html")
}

// HandleDashboard serves the dashboard page.
func HandleDashboard(w http.ResponseWriter, r *http.Request) {
	http.ServeFileFS(w, r, web.FS, "dashboard.html")
}

// HandleGroupPage serves the group page. The page loads the group named in
// its path through the API.
func HandleGroupPage(w http.ResponseWriter, r *http.Request) {
	if !isUUID(r.PathValue("id")) {
		http.NotFound(w, r)
		return
	}
	http.ServeFileFS(w, r, web.FS, "group.html")
}
