package tracing

import (
	"context"
	"io"

	"github.com/flynnfc/clocksync/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Config enables span export to a rotated file.
type Config struct {
	Enabled bool   `yaml:"enabled"`
	File    string `yaml:"file"`
}

// Provider owns the tracer provider and its exporter.
type Provider struct {
	tp       trace.TracerProvider
	shutdown func(context.Context) error
}

// Init builds a provider from c. When tracing is disabled the provider is a
// noop and Shutdown does nothing.
func Init(c Config) (*Provider, error) {
	if !c.Enabled {
		return &Provider{
			tp:       noop.NewTracerProvider(),
			shutdown: func(context.Context) error { return nil },
		}, nil
	}
	file := c.File
	if file == "" {
		file = "logs/traces.log"
	}
	return NewWithWriter(logger.RotatingFile(file))
}

// NewWithWriter exports spans as JSON lines to w and installs the provider
// as the global one.
func NewWithWriter(w io.Writer) (*Provider, error) {
	exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp))
	otel.SetTracerProvider(tp)
	return &Provider{tp: tp, shutdown: tp.Shutdown}, nil
}

// Tracer returns a named tracer.
func (p *Provider) Tracer(name string) trace.Tracer {
	return p.tp.Tracer(name)
}

// Shutdown flushes pending spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.shutdown(ctx)
}
