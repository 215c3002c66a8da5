package main

import (
	"log/slog"
	"net/http"

	httphandlers "splitpay/internal/interfaces/http"
	"splitpay/internal/shared/config"
	"splitpay/internal/shared/middleware"
	"splitpay/internal/web"
)

// SetupRoutes configures all HTTP routes and returns the final handler with middleware.
func SetupRoutes(deps *Dependencies, cfg *config.Config) http.Handler {
	mux := http.NewServeMux()

	authMiddleware := middleware.Auth(deps.JWT)
	pageMiddleware := middleware.AuthPage(deps.JWT)
	protect := func(h http.HandlerFunc) http.Handler { return authMiddleware(h) }

	// Public callbacks are rate limited per client IP
	limiter := middleware.NewRateLimiter(30, 10)
	limit := func(h http.HandlerFunc) http.Handler { return limiter.Middleware(h) }

	// Pages
	mux.HandleFunc("/{$}", httphandlers.HandleIndex(deps.JWT))
	mux.HandleFunc("/login", httphandlers.HandleLoginPage)
	mux.Handle("/dashboard", pageMiddleware(http.HandlerFunc(httphandlers.HandleDashboard)))
	mux.Handle("/groups/{id}", pageMiddleware(http.HandlerFunc(httphandlers.HandleGroupPage)))
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServerFS(web.Static())))

	// Health check
	mux.HandleFunc("/health", httphandlers.HandleHealth)

	// Public auth routes
	mux.Handle("/api/auth/register", limit(deps.AuthHandler.HandleRegister))
	mux.Handle("/api/auth/login", limit(deps.AuthHandler.HandleLogin))
	mux.HandleFunc("/api/auth/logout", deps.AuthHandler.HandleLogout)
	mux.HandleFunc("/api/auth/oauth/url", deps.AuthHandler.HandleAuthURL)
	mux.Handle("/api/auth/oauth/callback", limit(deps.AuthHandler.HandleCallback))

	// Profile
	mux.Handle("/api/profile", protect(deps.ProfileHandler.HandleProfile))
	mux.Handle("/api/profile/username", protect(deps.ProfileHandler.HandleUsername))
	mux.Handle("/api/profile/avatar", protect(deps.ProfileHandler.HandleAvatarUpload))
	mux.Handle("/api/profile/avatar/{id}", protect(deps.ProfileHandler.HandleAvatar))

	// Friends
	mux.Handle("/api/friends", protect(deps.FriendHandler.HandleFriends))
	mux.Handle("/api/friends/{id}", protect(deps.FriendHandler.HandleRemove))
	mux.Handle("/api/friends/{id}/accept", protect(deps.FriendHandler.HandleAccept))

	// Groups
	mux.Handle("/api/groups", protect(deps.GroupHandler.HandleGroups))
	mux.Handle("/api/groups/{id}", protect(deps.GroupHandler.HandleGroupByID))
	mux.Handle("/api/groups/{id}/members", protect(deps.GroupHandler.HandleAddMember))
	mux.Handle("/api/groups/{id}/members/{email}", protect(deps.GroupHandler.HandleRemoveMember))
	mux.Handle("/api/groups/{id}/expenses", protect(deps.GroupHandler.HandleGroupExpenses))

	// Expenses
	mux.Handle("/api/expenses", protect(deps.ExpenseHandler.HandleExpenses))
	mux.Handle("/api/expenses/summary", protect(deps.ExpenseHandler.HandleSummary))
	mux.Handle("/api/expenses/{id}", protect(deps.ExpenseHandler.HandleExpenseByID))
	mux.Handle("/api/expenses/{id}/receipt", protect(deps.ExpenseHandler.HandleReceipt))
	mux.Handle("/api/expenses/{id}/{action}", protect(deps.ExpenseHandler.HandleAction))

	// Payment methods
	mux.Handle("/api/payment-methods", protect(deps.PaymentMethodHandler.HandlePaymentMethods))
	mux.Handle("/api/payment-methods/{id}", protect(deps.PaymentMethodHandler.HandlePaymentMethodByID))

	// Notifications
	mux.Handle("/api/notifications", protect(deps.NotificationHandler.HandleNotifications))
	mux.Handle("/api/notifications/devices", protect(deps.NotificationHandler.HandleDevices))
	mux.Handle("/api/notifications/open-all", protect(deps.NotificationHandler.HandleOpenAll))
	mux.Handle("/api/notifications/{id}/open", protect(deps.NotificationHandler.HandleOpen))

	// Mercado Pago
	if mp := deps.MercadoPagoHandler; mp != nil {
		mux.Handle("/api/mp/connect", protect(mp.HandleConnect))
		mux.Handle("/api/mp/callback", protect(mp.HandleCallback))
		mux.Handle("/api/mp/checkout", protect(mp.HandleCheckout))
		mux.Handle("/api/mp/disconnect", protect(mp.HandleDisconnect))
		mux.Handle("/api/mp/return", limit(mp.HandleReturn))
	} else {
		mux.HandleFunc("/api/mp/", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "Mercado Pago is not configured", http.StatusServiceUnavailable)
		})
	}

	// The event stream bypasses otelhttp so flushes and the cleared write
	// deadline reach the connection.
	root := http.NewServeMux()
	root.Handle("/api/expenses/events", middleware.StreamTracing(protect(deps.EventsHandler.HandleEvents)))
	root.Handle("/", middleware.Telemetry("splitpay-api", "/health", "/static/")(mux))

	// Apply global middleware
	handler := middleware.Logging(slog.Default())(middleware.CORS(cfg.Server.AllowedHosts)(root))

	// Apply security middleware when TLS is enabled
	if cfg.TLS.Enabled {
		handler = middleware.HSTS(middleware.SecureCookies(handler))
		slog.Info("TLS security middleware enabled (HSTS + SecureCookies)")
	}

	return handler
}
