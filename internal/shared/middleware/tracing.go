package middleware

import (
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	streamTracer = otel.Tracer("splitpay/events")
	streamMeter  = otel.Meter("splitpay/events")

	streamsActive, _ = streamMeter.Int64UpDownCounter("events.streams.active",
		metric.WithDescription("Open expense event streams"),
	)
	streamDuration, _ = streamMeter.Float64Histogram("events.stream.duration",
		metric.WithDescription("How long clients stay subscribed to the event stream"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 10, 60, 300, 900, 3600, 14400),
	)
)

// Telemetry records an otelhttp span and the HTTP server metrics for each
// request whose path does not start with one of the skip prefixes.
func Telemetry(service string, skip ...string) func(http.Handler) http.Handler {
	return otelhttp.NewMiddleware(service,
		otelhttp.WithFilter(func(r *http.Request) bool {
			for _, prefix := range skip {
				if strings.HasPrefix(r.URL.Path, prefix) {
					return false
				}
			}
			return true
		}),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

// StreamTracing instruments long-lived event streams. otelhttp wraps the
// ResponseWriter in a way that hides the flusher, so streams get their own
// span plus an open-stream gauge and a lifetime histogram instead.
func StreamTracing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := streamTracer.Start(r.Context(), "stream "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attribute.String("http.route", r.URL.Path)),
		)
		defer span.End()

		start := time.Now()
		wrapped := wrapResponseWriter(w)

		streamsActive.Add(ctx, 1)
		next.ServeHTTP(wrapped, r.WithContext(ctx))
		streamsActive.Add(ctx, -1)

		status := wrapped.status
		if status == 0 {
			status = http.StatusOK
		}
		span.SetAttributes(attribute.Int("http.status_code", status))

		// Rejected subscriptions are not streams.
		if status == http.StatusOK {
			streamDuration.Record(ctx, time.Since(start).Seconds())
		}
	})
}
