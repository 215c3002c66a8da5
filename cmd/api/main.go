package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"splitpay/internal/interfaces/scheduler"
	"splitpay/internal/shared/config"
	"splitpay/internal/shared/logging"
	"splitpay/internal/shared/telemetry"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logging.Setup()

	if err := run(); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if cfg.Telemetry.Enabled {
		shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName:  cfg.Telemetry.ServiceName,
			Environment:  cfg.Telemetry.Environment,
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
			MetricsPort:  cfg.Telemetry.MetricsPort,
			SampleRatio:  cfg.Telemetry.SampleRatio,
		})
		if err != nil {
			return err
		}
		defer func() {
			tctx, tcancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer tcancel()
			if err := shutdownTelemetry(tctx); err != nil {
				slog.Error("telemetry shutdown", "error", err)
			}
		}()
	}

	deps, err := NewDependencies(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	deps.Listener.Start(ctx)

	// Initialize scheduler (if enabled)
	var sched *scheduler.Scheduler
	switch {
	case !cfg.Scheduler.Enabled:
		slog.Info("scheduler is disabled")
	case deps.PaymentService == nil:
		slog.Info("scheduler skipped: payment processor not configured")
	default:
		sched, err = scheduler.NewScheduler(scheduler.SchedulerConfig{
			ScheduleTimes: cfg.Scheduler.ScheduleTimes,
			WorkerCount:   cfg.Scheduler.WorkerCount,
			JobDelay:      cfg.Scheduler.JobDelay,
			QueueSize:     cfg.Scheduler.QueueSize,
			RunOnStartup:  cfg.Scheduler.RunOnStartup,
			JobProvider:   scheduler.TokenRefreshJobs(deps.PaymentService, cfg.MercadoPago.RefreshWindow),
		})
		if err != nil {
			return err
		}
		sched.Start()
		slog.Info("scheduler started", "times", cfg.Scheduler.ScheduleTimes)
	}

	srv := newServer(SetupRoutes(deps, cfg), cfg)
	srv.OnShutdown(deps.Hub.Close)
	err = srv.Run(ctx, shutdownTimeout)

	deps.Listener.Stop()
	if sched != nil {
		sched.Shutdown(shutdownTimeout)
	}
	slog.Info("server stopped")
	return err
}
