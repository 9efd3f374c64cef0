// Package observability sets up the portal's telemetry: the slog logger every
// component receives, OpenTelemetry tracing exported over OTLP when an
// endpoint is configured, and the metric instruments read by /metrics.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otelprometheus "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
)

const shutdownTimeout = 10 * time.Second

// Provider owns the global tracer and meter providers installed by New.
type Provider struct {
	traces      *sdktrace.TracerProvider
	metrics     *sdkmetric.MeterProvider
	instruments *Instruments
	log         *slog.Logger
}

// Config names the service and selects log output and trace export.
type Config struct {
	ServiceName    string
	ServiceVersion string
	LogLevel       string // debug|info|warn|error
	LogFormat      string // json|text
	OTLPEndpoint   string // host:port; empty keeps spans in process
}

// New builds the logger, installs the global providers and registers the
// portal's instruments. Call Shutdown before exit so batched spans flush.
func New(ctx context.Context, cfg *Config) (*Provider, *slog.Logger, error) {
	log := NewLogger(cfg.LogLevel, cfg.LogFormat)

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	))
	if err != nil {
		return nil, nil, fmt.Errorf("otel resource: %w", err)
	}

	traces, err := newTracerProvider(ctx, res, cfg.OTLPEndpoint)
	if err != nil {
		return nil, nil, err
	}
	if cfg.OTLPEndpoint == "" {
		log.Debug("no OTLP endpoint; spans are not exported")
	}
	otel.SetTracerProvider(traces)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	// The Prometheus reader registers on the default registry that
	// promhttp.Handler serves.
	reader, err := otelprometheus.New()
	if err != nil {
		_ = traces.Shutdown(ctx)
		return nil, nil, fmt.Errorf("prometheus exporter: %w", err)
	}
	metrics := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(reader))
	otel.SetMeterProvider(metrics)

	inst, err := NewInstruments(metrics.Meter(cfg.ServiceName))
	if err != nil {
		_ = traces.Shutdown(ctx)
		_ = metrics.Shutdown(ctx)
		return nil, nil, fmt.Errorf("portal instruments: %w", err)
	}

	return &Provider{traces: traces, metrics: metrics, instruments: inst, log: log}, log, nil
}

func newTracerProvider(ctx context.Context, res *resource.Resource, endpoint string) (*sdktrace.TracerProvider, error) {
	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if endpoint != "" {
		exp, err := otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("otlp trace exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	}
	return sdktrace.NewTracerProvider(opts...), nil
}

// Instruments returns the business counters registered on the meter
// provider.
func (p *Provider) Instruments() *Instruments { return p.instruments }

// Shutdown flushes both providers, giving up after shutdownTimeout.
func (p *Provider) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := p.traces.Shutdown(ctx); err != nil {
		p.log.Error("tracer provider shutdown", "err", err)
	}
	if err := p.metrics.Shutdown(ctx); err != nil {
		p.log.Error("meter provider shutdown", "err", err)
	}
}

// NewLogger builds the process logger on stdout. Unknown levels mean info;
// any format other than "text" means JSON.
func NewLogger(level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// ParseLevel maps LOG_LEVEL onto a slog level.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
