package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes payroll domain instruments exported over OTLP.
type Metrics struct {
	employeeRuns     metric.Int64Counter
	cycleTransitions metric.Int64Counter
	extracts         metric.Int64Counter
	previews         metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the payroll metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "payrollengine"
	}
	meter := provider.Meter(name)

	employeeRuns, err := meter.Int64Counter("payroll_runs_total")
	if err != nil {
		return nil, err
	}
	cycleTransitions, err := meter.Int64Counter("payroll_cycle_transitions_total")
	if err != nil {
		return nil, err
	}
	extracts, err := meter.Int64Counter("payroll_extracts_total")
	if err != nil {
		return nil, err
	}
	previews, err := meter.Int64Counter("payroll_previews_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		employeeRuns:     employeeRuns,
		cycleTransitions: cycleTransitions,
		extracts:         extracts,
		previews:         previews,
	}, nil
}

// RecordRun counts one employee run. failureCode is empty for successful runs.
func (m *Metrics) RecordRun(ctx context.Context, failureCode string) {
	if m == nil {
		return
	}
	outcome := OutcomeSucceeded
	if failureCode != "" {
		outcome = OutcomeFailed
	}
	attrs := FilterAttributes(
		attribute.String("outcome", outcome),
		attribute.String("failure_code", strings.TrimSpace(failureCode)),
	)
	m.employeeRuns.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordCycleTransition(ctx context.Context, from, to string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	)
	m.cycleTransitions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordExtract(ctx context.Context, format string, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeSucceeded
	if err != nil {
		outcome = OutcomeFailed
	}
	attrs := FilterAttributes(
		attribute.String("format", strings.TrimSpace(format)),
		attribute.String("outcome", outcome),
	)
	m.extracts.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordPreview(ctx context.Context, failureCode string) {
	if m == nil {
		return
	}
	outcome := OutcomeSucceeded
	if failureCode != "" {
		outcome = OutcomeFailed
	}
	attrs := FilterAttributes(
		attribute.String("outcome", outcome),
		attribute.String("failure_code", failureCode),
	)
	m.previews.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"outcome":      {},
	"failure_code": {},
	"from":         {},
	"to":           {},
	"format":       {},
	"endpoint":     {},
	"status_code":  {},
	"reason":       {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
