package cmd

import (
	"context"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/roddutra/mcp-gateway/internal/gateway"
)

// setupTelemetry installs the gateway's OpenTelemetry tracer and meter
// providers. The middleware pipeline (internal/gateway) and each downstream
// proxy call (internal/proxy) already create spans via otel.Tracer; outside
// debug mode we leave no TracerProvider/MeterProvider installed, so those
// calls resolve to the package's built-in no-op implementations rather than
// paying span/metric construction cost for data nobody reads.
//
// In debug mode, spans are batched to stderr as they complete (stdout
// carries the MCP stream), and a periodic reader exports to stderr the gateway's reload success/failure counters
// (distinct from the hot-path Prometheus counters in internal/audit, which
// exist regardless of debug mode).
func setupTelemetry(debug bool, logger *slog.Logger, reloadStatus func() gateway.ReloadStatus) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }
	if !debug {
		return noop, nil
	}

	traceExp, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr), stdouttrace.WithPrettyPrint())
	if err != nil {
		return noop, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExp))
	otel.SetTracerProvider(tp)

	metricExp, err := stdoutmetric.New(stdoutmetric.WithWriter(os.Stderr))
	if err != nil {
		return noop, err
	}
	reader := sdkmetric.NewPeriodicReader(metricExp, sdkmetric.WithInterval(30*time.Second))
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(mp)

	meter := mp.Meter("github.com/roddutra/mcp-gateway/cmd/mcp-gateway")
	if err := registerReloadCounters(meter, reloadStatus); err != nil {
		return noop, err
	}

	logger.Debug("otel tracing and metrics exporters installed (stderr)")

	return func(ctx context.Context) error {
		if err := tp.Shutdown(ctx); err != nil {
			return err
		}
		return mp.Shutdown(ctx)
	}, nil
}

func registerReloadCounters(meter metric.Meter, reloadStatus func() gateway.ReloadStatus) error {
	_, err := meter.Int64ObservableCounter("gateway.reload.success_count",
		metric.WithDescription("cumulative successful configuration reloads"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(reloadStatus().SuccessCount))
			return nil
		}),
	)
	if err != nil {
		return err
	}
	_, err = meter.Int64ObservableCounter("gateway.reload.failure_count",
		metric.WithDescription("cumulative failed configuration reloads"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(reloadStatus().FailureCount))
			return nil
		}),
	)
	return err
}
