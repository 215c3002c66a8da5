package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"splitpay/internal/shared/config"
	"splitpay/internal/shared/middleware"
)

// server owns the API listener and, with TLS, the port-80 redirector.
type server struct {
	api      *http.Server
	redirect *http.Server
	tls      bool
	certPath string
	keyPath  string
}

func newHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Event streams clear this deadline per request.
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func newServer(handler http.Handler, cfg *config.Config) *server {
	s := &server{tls: cfg.TLS.Enabled, certPath: cfg.TLS.CertPath, keyPath: cfg.TLS.KeyPath}
	addr := cfg.Server.Host + ":" + cfg.Server.Port

	if !cfg.TLS.Enabled {
		// h2c lets a TLS-terminating proxy multiplex event streams over one
		// upstream connection.
		s.api = newHTTPServer(addr, h2c.NewHandler(handler, &http2.Server{}))
		return s
	}

	s.api = newHTTPServer(addr, handler)
	if cfg.TLS.RedirectHTTP {
		s.redirect = newHTTPServer(":80", redirectToHTTPS(cfg.Server.AllowedHosts))
	}
	return s
}

// OnShutdown registers f to run when shutdown begins. Handlers that only
// return when their source closes, such as event streams, need a hook here:
// Shutdown waits for them but does not cancel their request contexts.
func (s *server) OnShutdown(f func()) {
	s.api.RegisterOnShutdown(f)
}

// Run serves until ctx is cancelled or a listener fails, then shuts every
// listener down within timeout.
func (s *server) Run(ctx context.Context, timeout time.Duration) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		if s.tls {
			slog.Info("HTTPS server starting", "addr", s.api.Addr)
			err = s.api.ListenAndServeTLS(s.certPath, s.keyPath)
		} else {
			slog.Info("HTTP server starting", "addr", s.api.Addr)
			err = s.api.ListenAndServe()
		}
		return listenErr(s.api, err)
	})
	if s.redirect != nil {
		g.Go(func() error {
			slog.Info("HTTP redirect server starting", "addr", s.redirect.Addr)
			return listenErr(s.redirect, s.redirect.ListenAndServe())
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("server shutting down")

		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()

		var errs []error
		for _, srv := range []*http.Server{s.redirect, s.api} {
			if srv == nil {
				continue
			}
			if err := srv.Shutdown(sctx); err != nil {
				errs = append(errs, fmt.Errorf("shutdown %s: %w", srv.Addr, err))
			}
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}

func listenErr(srv *http.Server, err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("listen %s: %w", srv.Addr, err)
}

// redirectToHTTPS answers plain HTTP with a permanent redirect to the same
// path over HTTPS, for allowed hosts only.
func redirectToHTTPS(allowedHosts []string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host := r.Header.Get("X-Forwarded-Host")
		if host == "" {
			host = r.Host
		}
		if !middleware.IsHostAllowed(host, allowedHosts) {
			http.Error(w, "Invalid host", http.StatusBadRequest)
			return
		}
		http.Redirect(w, r, "https://"+middleware.StripPort(host)+r.URL.RequestURI(), http.StatusMovedPermanently)
	})
}
