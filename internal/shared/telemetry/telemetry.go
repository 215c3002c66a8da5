package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

type Config struct {
	ServiceName string
	Environment string
	// OTLPEndpoint is the gRPC collector address. Empty disables trace
	// export; metrics are still served.
	OTLPEndpoint string
	MetricsPort  string
	// SampleRatio is the share of root traces kept, in [0, 1].
	SampleRatio float64
}

// Init installs the global meter and tracer providers and starts the
// /metrics server. The returned function flushes and stops all of them.
func Init(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	var shutdownFuncs []func(context.Context) error
	shutdown := func(ctx context.Context) error {
		var errs []error
		// Stop in reverse start order so the metrics server goes first.
		for i := len(shutdownFuncs) - 1; i >= 0; i-- {
			errs = append(errs, shutdownFuncs[i](ctx))
		}
		return errors.Join(errs...)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return shutdown, fmt.Errorf("failed to create resource: %w", err)
	}

	// Metrics: OTel instruments read through the default Prometheus registry.
	promExporter, err := prometheus.New()
	if err != nil {
		return shutdown, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promExporter),
	)
	otel.SetMeterProvider(meterProvider)
	shutdownFuncs = append(shutdownFuncs, meterProvider.Shutdown)

	// Traces: the processor callbacks arrive with no parent, so the ratio
	// applies to them; requests carrying a sampled parent are always kept.
	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	}
	if cfg.OTLPEndpoint != "" {
		traceExporter, err := otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return shutdown, fmt.Errorf("failed to create trace exporter: %w", err)
		}
		tpOpts = append(tpOpts, sdktrace.WithBatcher(traceExporter, sdktrace.WithBatchTimeout(5*time.Second)))
	}
	tracerProvider := sdktrace.NewTracerProvider(tpOpts...)
	otel.SetTracerProvider(tracerProvider)
	shutdownFuncs = append(shutdownFuncs, tracerProvider.Shutdown)

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	metricsSrv := newMetricsServer(cfg.MetricsPort)
	shutdownFuncs = append(shutdownFuncs, metricsSrv.Shutdown)
	go func() {
		slog.Info("metrics server listening", "addr", metricsSrv.Addr, "path", "/metrics")
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server error", "error", err)
		}
	}()

	slog.Info("telemetry initialized",
		"service", cfg.ServiceName,
		"metrics_port", cfg.MetricsPort,
		"otlp_endpoint", cfg.OTLPEndpoint,
		"sample_ratio", cfg.SampleRatio,
	)
	return shutdown, nil
}

func newMetricsServer(port string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}
