// Package telemetry installs the OpenTelemetry meter provider used by the
// run driver.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"

	serviceName = "stepflow"
)

// Options selects the exporter. Writer receives stdout exports; a nil
// Writer discards them.
type Options struct {
	Exporter string
	Interval time.Duration
	Writer   io.Writer
	Version  string
}

// Provider owns the process meter provider. A Provider built with the
// "none" exporter hands out no-op meters.
type Provider struct {
	mp *sdkmetric.MeterProvider
}

// New builds a Provider and, when metrics are exported, installs it as the
// global meter provider.
func New(opts Options) (*Provider, error) {
	switch opts.Exporter {
	case "", ExporterNone:
		return &Provider{}, nil
	case ExporterStdout:
	default:
		return nil, fmt.Errorf("unknown metrics exporter %q", opts.Exporter)
	}

	w := opts.Writer
	if w == nil {
		w = io.Discard
	}
	exp, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("create stdout metric exporter: %w", err)
	}

	readerOpts := []sdkmetric.PeriodicReaderOption{}
	if opts.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(opts.Interval))
	}
	res := resource.NewSchemaless(
		attribute.String("service.name", serviceName),
		attribute.String("service.version", opts.Version),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, readerOpts...)),
	)
	otel.SetMeterProvider(mp)
	return &Provider{mp: mp}, nil
}

// Enabled reports whether measurements leave the process.
func (p *Provider) Enabled() bool { return p.mp != nil }

// Meter returns a named meter from the provider.
func (p *Provider) Meter(name string) metric.Meter {
	if p.mp == nil {
		return noop.NewMeterProvider().Meter(name)
	}
	return p.mp.Meter(name)
}

// Shutdown flushes pending measurements and stops the exporter.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.mp == nil {
		return nil
	}
	return p.mp.Shutdown(ctx)
}
