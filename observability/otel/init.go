package otel

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

const (
	defaultEndpoint       = "localhost:4318"
	traceBatchTimeout     = 2 * time.Second
	metricExportInterval  = 15 * time.Second
	attributeNamespace    = "portfolium."
	ComponentDaemon       = "daemon"
	ComponentWorker       = "worker"
	componentAttributeKey = attributeNamespace + "component"
)

// Config selects the exporters of one portfolium process. Attributes are
// added to the resource under the portfolium. namespace.
type Config struct {
	ServiceName string
	Component   string
	Environment string
	Endpoint    string
	Insecure    bool
	Headers     map[string]string
	Attributes  map[string]string
	SampleRatio float64
	Metrics     bool
	Traces      bool
}

// Enabled reports whether any signal is exported.
func (c Config) Enabled() bool { return c.Traces || c.Metrics }

// WithAttribute returns a copy of c carrying portfolium.<key>=value. Empty
// values are skipped.
func (c Config) WithAttribute(key, value string) Config {
	key = strings.TrimPrefix(strings.TrimSpace(key), attributeNamespace)
	if key == "" || strings.TrimSpace(value) == "" {
		return c
	}
	attrs := make(map[string]string, len(c.Attributes)+1)
	for k, v := range c.Attributes {
		attrs[k] = v
	}
	attrs[key] = strings.TrimSpace(value)
	c.Attributes = attrs
	return c
}

// Init installs the global tracer and meter providers and the W3C
// propagators. The returned function flushes and stops every exporter.
func Init(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	if strings.TrimSpace(cfg.ServiceName) == "" {
		return nil, fmt.Errorf("service name required for telemetry")
	}
	if !cfg.Enabled() {
		return func(context.Context) error { return nil }, nil
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(cfg.resourceAttributes()...))
	if err != nil {
		return nil, fmt.Errorf("build resource: %w", err)
	}

	var stops []func(context.Context) error
	if cfg.Traces {
		tp, err := newTracerProvider(ctx, cfg, res)
		if err != nil {
			return nil, err
		}
		otel.SetTracerProvider(tp)
		stops = append(stops, tp.Shutdown)
	}
	if cfg.Metrics {
		mp, err := newMeterProvider(ctx, cfg, res)
		if err != nil {
			for _, stop := range stops {
				_ = stop(ctx)
			}
			return nil, err
		}
		otel.SetMeterProvider(mp)
		stops = append(stops, mp.Shutdown)
	}
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) error {
		var errs []error
		for i := len(stops) - 1; i >= 0; i-- {
			errs = append(errs, stops[i](ctx))
		}
		return errors.Join(errs...)
	}, nil
}

func (c Config) resourceAttributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{semconv.ServiceNameKey.String(c.ServiceName)}
	if c.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironmentKey.String(c.Environment))
	}
	if c.Component != "" {
		attrs = append(attrs, attribute.String(componentAttributeKey, c.Component))
	}
	keys := make([]string, 0, len(c.Attributes))
	for key := range c.Attributes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		attrs = append(attrs, attribute.String(attributeNamespace+key, c.Attributes[key]))
	}
	return attrs
}

func (c Config) sampler() sdktrace.Sampler {
	if c.SampleRatio <= 0 || c.SampleRatio >= 1 {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(c.SampleRatio))
}

func newTracerProvider(ctx context.Context, cfg Config, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(cfg.sampler()),
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(traceBatchTimeout)),
	), nil
}

func newMeterProvider(ctx context.Context, cfg Config, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlpmetrichttp.WithHeaders(cfg.Headers))
	}
	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(metricExportInterval))),
	), nil
}

// ConfigFromEnv reads the OTEL_* variables for one portfolium component.
// OTEL_SDK_DISABLED=true turns both signals off and OTEL_TRACES_SAMPLER_ARG
// sets the trace sampling ratio.
func ConfigFromEnv(service, component, env string, getenv func(string) string) Config {
	cfg := Config{
		ServiceName: service,
		Component:   component,
		Environment: env,
		Endpoint:    strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		Insecure:    true,
		Headers:     ParseHeaders(getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		Metrics:     true,
		Traces:      true,
	}
	if insecure, err := strconv.ParseBool(strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_INSECURE"))); err == nil {
		cfg.Insecure = insecure
	}
	if ratio, err := strconv.ParseFloat(strings.TrimSpace(getenv("OTEL_TRACES_SAMPLER_ARG")), 64); err == nil {
		cfg.SampleRatio = ratio
	}
	if disabled, err := strconv.ParseBool(strings.TrimSpace(getenv("OTEL_SDK_DISABLED"))); err == nil && disabled {
		cfg.Metrics = false
		cfg.Traces = false
	}
	return cfg
}

// ParseHeaders reads OTEL_EXPORTER_OTLP_HEADERS (key=value pairs separated by
// commas). Pairs without a key are dropped.
func ParseHeaders(raw string) map[string]string {
	headers := map[string]string{}
	for _, pair := range strings.Split(raw, ",") {
		key, value, found := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !found || key == "" {
			continue
		}
		headers[key] = strings.TrimSpace(value)
	}
	return headers
}
