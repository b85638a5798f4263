// Package telemetry configures OpenTelemetry tracing for the aggregation service.
package telemetry

import (
	"context"
	"strings"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Mode selects which spans the service records.
type Mode string

const (
	// ModeOff records nothing.
	ModeOff Mode = "off"
	// ModeErrors samples sparsely; a build or request is traced mostly to
	// catch failures.
	ModeErrors Mode = "errors"
	// ModeSampled records aggregation builds and requests at the configured ratio.
	ModeSampled Mode = "sampled"
	// ModeDetailed records everything, including per-call GitHub and redis spans.
	ModeDetailed Mode = "detailed"
)

const (
	// DefaultSampleRatio applies in sampled mode when no ratio is configured.
	// A refresh cycle produces a handful of build spans, so a high ratio is cheap.
	DefaultSampleRatio = 0.5
	errorsSampleRatio  = 0.01
	defaultServiceName = "devcoins"
)

// Modes lists the accepted mode names.
var Modes = []Mode{ModeOff, ModeErrors, ModeSampled, ModeDetailed}

// ParseMode resolves a configured mode name. Empty means sampled.
func ParseMode(raw string) (Mode, bool) {
	mode := Mode(strings.ToLower(strings.TrimSpace(raw)))
	if mode == "" {
		return ModeSampled, true
	}
	for _, known := range Modes {
		if mode == known {
			return mode, true
		}
	}
	return ModeSampled, false
}

var currentMode atomic.Value

// Config configures OpenTelemetry tracing setup.
type Config struct {
	Enabled          bool
	ServiceName      string
	TraceMode        string
	TraceSampleRatio float64
	// Org is recorded on the resource so traces from several deployments
	// can be told apart.
	Org string
}

// Runtime contains initialized telemetry providers and lifecycle hooks.
type Runtime struct {
	TracerProvider *sdktrace.TracerProvider
	Shutdown       func(ctx context.Context) error
}

// Setup installs the global tracer provider and trace mode.
func Setup(cfg Config) (Runtime, error) {
	mode := ModeOff
	if cfg.Enabled {
		mode, _ = ParseMode(cfg.TraceMode)
	}
	setMode(mode)

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = defaultServiceName
	}
	attrs := []attribute.KeyValue{semconv.ServiceNameKey.String(serviceName)}
	if org := strings.TrimSpace(cfg.Org); org != "" {
		attrs = append(attrs, attribute.String("github.org", org))
	}
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(attrs...))
	if err != nil {
		return Runtime{}, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(samplerFor(mode, cfg.TraceSampleRatio)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	return Runtime{TracerProvider: provider, Shutdown: provider.Shutdown}, nil
}

func samplerFor(mode Mode, ratio float64) sdktrace.Sampler {
	ratio = min(max(ratio, 0), 1)
	switch mode {
	case ModeOff:
		return sdktrace.NeverSample()
	case ModeDetailed:
		return sdktrace.AlwaysSample()
	case ModeErrors:
		if ratio == 0 {
			ratio = errorsSampleRatio
		}
	default:
		if ratio == 0 {
			ratio = DefaultSampleRatio
		}
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

// TraceMode reports the mode installed by Setup, or off before Setup runs.
func TraceMode() Mode {
	if mode, ok := currentMode.Load().(Mode); ok {
		return mode
	}
	return ModeOff
}

// ShouldTraceDependencies reports if per-call dependency spans should be emitted.
func ShouldTraceDependencies() bool {
	return TraceMode() == ModeDetailed
}

func setMode(mode Mode) {
	currentMode.Store(mode)
}

// StartDependencySpan starts a span for an outbound dependency call in
// detailed mode. The returned finish func records err and ends the span; it
// is a no-op when no span was started.
func StartDependencySpan(
	ctx context.Context,
	tracerName string,
	spanName string,
	attrs ...attribute.KeyValue,
) (context.Context, func(err error)) {
	if !ShouldTraceDependencies() {
		return ctx, func(error) {}
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, spanName, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		setStatus(span, err)
		span.End()
	}
}

// OperationSpan traces one aggregation build: a leaderboard, the member
// directory, a repository listing or a per-user view.
type OperationSpan struct {
	span trace.Span
}

// StartOperationSpan starts a span for an aggregation build unless tracing
// is off. The sampler decides whether it is recorded.
func StartOperationSpan(
	ctx context.Context,
	tracerName string,
	operation string,
	attrs ...attribute.KeyValue,
) (context.Context, *OperationSpan) {
	if TraceMode() == ModeOff {
		return ctx, nil
	}
	attrs = append(attrs, attribute.String("devcoins.operation", operation))
	ctx, span := otel.Tracer(tracerName).Start(ctx, "contrib."+operation, trace.WithAttributes(attrs...))
	return ctx, &OperationSpan{span: span}
}

// End records the skipped item counts by reason and err, then ends the span.
// It is a no-op on a nil span.
func (s *OperationSpan) End(err error, skipped map[string]int) {
	if s == nil {
		return
	}
	total := 0
	for reason, count := range skipped {
		total += count
		s.span.SetAttributes(attribute.Int("devcoins.skipped."+reason, count))
	}
	s.span.SetAttributes(attribute.Int("devcoins.skipped_total", total))
	setStatus(s.span, err)
	s.span.End()
}

func setStatus(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}
