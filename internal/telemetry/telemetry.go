// Package telemetry wires the broker's login/session events to
// OpenTelemetry metrics and logs. Recording is safe to call whether or
// not Init has been run — the OTel SDK's default providers are no-ops,
// so an authbroker instance with no collector configured simply drops
// every event instead of erroring.
package telemetry

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Environment variables that point the broker at an OTLP-HTTP collector.
// Set by the deployment, not by authbroker itself.
const (
	EnvMetricsURL = "AUTHBROKER_OTEL_METRICS_URL"
	EnvLogsURL    = "AUTHBROKER_OTEL_LOGS_URL"
)

// shutdownFuncs are the flush/close hooks for whatever Init wired up.
var shutdownFuncs []func(context.Context) error

// Init configures the global meter and logger providers from the
// AUTHBROKER_OTEL_METRICS_URL / AUTHBROKER_OTEL_LOGS_URL environment
// variables. Either may be unset, in which case that signal stays on
// its SDK no-op default. Returns a shutdown func the daemon should
// defer-call to flush pending records before exit.
func Init(ctx context.Context) (shutdown func(context.Context) error, err error) {
	if url := os.Getenv(EnvMetricsURL); url != "" {
		exp, err := otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpointURL(url))
		if err != nil {
			return noopShutdown, fmt.Errorf("telemetry: metrics exporter: %w", err)
		}
		provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)))
		otel.SetMeterProvider(provider)
		shutdownFuncs = append(shutdownFuncs, provider.Shutdown)
	}
	if url := os.Getenv(EnvLogsURL); url != "" {
		exp, err := otlploghttp.New(ctx, otlploghttp.WithEndpointURL(url))
		if err != nil {
			return noopShutdown, fmt.Errorf("telemetry: logs exporter: %w", err)
		}
		provider := sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewBatchProcessor(exp)))
		global.SetLoggerProvider(provider)
		shutdownFuncs = append(shutdownFuncs, provider.Shutdown)
	}
	return Shutdown, nil
}

// Shutdown flushes and closes every provider Init configured.
func Shutdown(ctx context.Context) error {
	var firstErr error
	for _, fn := range shutdownFuncs {
		if err := fn(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	shutdownFuncs = nil
	return firstErr
}

func noopShutdown(context.Context) error { return nil }
