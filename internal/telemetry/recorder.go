package telemetry

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/felixgeelhaar/toolgate"

// Metric names.
const (
	MetricRuns         = "toolgate.runs"
	MetricSteps        = "toolgate.steps"
	MetricStepDuration = "toolgate.step.duration"
)

// Recorder holds the spans and instruments the orchestrator reports to.
// A nil *Recorder is not valid; use Noop.
type Recorder struct {
	tracer       trace.Tracer
	runs         metric.Int64Counter
	steps        metric.Int64Counter
	stepDuration metric.Float64Histogram
}

// NewRecorder creates instruments on the given providers.
func NewRecorder(tp trace.TracerProvider, mp metric.MeterProvider) (*Recorder, error) {
	meter := mp.Meter(instrumentationName)
	r := &Recorder{tracer: tp.Tracer(instrumentationName)}

	var err error
	r.runs, err = meter.Int64Counter(MetricRuns,
		metric.WithDescription("Completed orchestrator runs by final status"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}
	r.steps, err = meter.Int64Counter(MetricSteps,
		metric.WithDescription("Considered plan steps by outcome"),
		metric.WithUnit("{step}"),
	)
	if err != nil {
		return nil, err
	}
	r.stepDuration, err = meter.Float64Histogram(MetricStepDuration,
		metric.WithDescription("Wall time spent on one plan step"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Noop returns a recorder that drops everything.
func Noop() *Recorder {
	r, err := NewRecorder(tracenoop.NewTracerProvider(), metricnoop.NewMeterProvider())
	if err != nil {
		// Noop instruments never fail to register.
		panic(err)
	}
	return r
}

// StartRun opens the span covering a whole run.
func (r *Recorder) StartRun(ctx context.Context, traceID string, steps int) (context.Context, trace.Span) {
	return r.tracer.Start(ctx, "toolgate.run", trace.WithAttributes(
		attribute.String("toolgate.trace", traceID),
		attribute.Int("toolgate.plan.len", steps),
	))
}

// EndRun closes span and counts the run. A halted run is marked as an error.
func (r *Recorder) EndRun(ctx context.Context, span trace.Span, status string, done int, halted string) {
	attrs := []attribute.KeyValue{attribute.String("status", status)}
	if halted != "" {
		attrs = append(attrs, attribute.String("halted", halted))
		span.SetStatus(codes.Error, halted)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	r.runs.Add(ctx, 1, metric.WithAttributes(attrs...))

	span.SetAttributes(append(attrs, attribute.Int("toolgate.done", done))...)
	span.End()
}

// StartStep opens a child span for one plan entry.
func (r *Recorder) StartStep(ctx context.Context, index int) (context.Context, trace.Span) {
	return r.tracer.Start(ctx, "toolgate.step", trace.WithAttributes(
		attribute.Int("toolgate.step.index", index),
	))
}

// OtherTask is the metric label for steps whose task is not a known tool.
const OtherTask = "other"

// reasonClasses are the reason prefixes toolgate itself produces. Anything
// after a class is payload (tool output, stderr, response bodies) and is
// never exported.
var reasonClasses = []string{
	"bad_json", "http_error", "network_error", "http_status",
	"subprocess_error", "nonzero_exit", "timeout",
	"missing evidence", "missing op", "missing text", "empty msg",
	"params must be a mapping", "coverage", "sources", "bad summary shape",
	"deadline", "canceled", "panic", "audit write failed",
}

// ReasonClass maps a step reason to its class, or OtherTask when the reason
// is not one toolgate produces.
func ReasonClass(reason string) string {
	for _, c := range reasonClasses {
		if reason == c || strings.HasPrefix(reason, c+":") || strings.HasPrefix(reason, c+" ") {
			return c
		}
	}
	return OtherTask
}

// EndStep closes span and records the step outcome and duration. Metrics
// label unknown tasks as OtherTask; the span keeps the task name. Only
// reason classes reach the span.
func (r *Recorder) EndStep(ctx context.Context, span trace.Span, task string, known bool, outcome string, reasons []string, elapsed time.Duration) {
	label := task
	if !known {
		label = OtherTask
	}
	attrs := []attribute.KeyValue{
		attribute.String("task", label),
		attribute.String("outcome", outcome),
	}
	r.steps.Add(ctx, 1, metric.WithAttributes(attrs...))
	r.stepDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attrs...))

	span.SetAttributes(
		attribute.String("task", task),
		attribute.String("outcome", outcome),
	)
	if classes := reasonClassSet(reasons); len(classes) > 0 {
		span.SetAttributes(attribute.StringSlice("reasons", classes))
	}
	span.End()
}

func reasonClassSet(reasons []string) []string {
	var out []string
	seen := make(map[string]bool, len(reasons))
	for _, reason := range reasons {
		c := ReasonClass(reason)
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}
