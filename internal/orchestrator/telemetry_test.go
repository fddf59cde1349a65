package orchestrator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/felixgeelhaar/toolgate/internal/adapter"
	"github.com/felixgeelhaar/toolgate/internal/audit"
	"github.com/felixgeelhaar/toolgate/internal/log"
	"github.com/felixgeelhaar/toolgate/internal/policy"
	"github.com/felixgeelhaar/toolgate/internal/telemetry"
	"github.com/felixgeelhaar/toolgate/internal/tool"
	"github.com/felixgeelhaar/toolgate/internal/verify"
)

func TestRunReportsSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	recorder, err := telemetry.NewRecorder(tp, mp)
	require.NoError(t, err)

	logger, err := audit.New(audit.Config{Path: filepath.Join(t.TempDir(), "audit.jsonl")})
	require.NoError(t, err)
	registry := tool.NewRegistry()
	require.NoError(t, tool.RegisterBuiltins(registry))

	orch, err := New(Config{
		Gate:      policy.NewGate(echoPolicy()),
		Verifier:  verify.New(),
		Registry:  registry,
		Audit:     logger,
		Logger:    log.Discard(),
		Telemetry: recorder,
	})
	require.NoError(t, err)

	res, err := orch.Run(context.Background(), []any{
		step("echo", map[string]any{"msg": "hi"}),
		step("shell", map[string]any{"cmd": "ls"}),
	})
	require.NoError(t, err)
	assert.Equal(t, StatusOK, res.Status)

	spans := exporter.GetSpans()
	names := make([]string, 0, len(spans))
	for _, s := range spans {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"toolgate.step", "toolgate.step", "toolgate.run"}, names)
}

func TestTelemetryOmitsToolOutput(t *testing.T) {
	const body = "customer SSN 123-45-6789 not json"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	recorder, err := telemetry.NewRecorder(tp, mp)
	require.NoError(t, err)

	auditPath := filepath.Join(t.TempDir(), "audit.jsonl")
	logger, err := audit.New(audit.Config{Path: auditPath})
	require.NoError(t, err)
	registry := tool.NewRegistry()
	require.NoError(t, registry.Register("crm", adapter.AsHandler(adapter.NewHTTP("crm", adapter.HTTPConfig{
		Endpoint: srv.URL,
		Timeout:  time.Second,
		Logger:   log.Discard(),
	}))))

	orch, err := New(Config{
		Gate:      policy.NewGate(policy.Config{Allowlist: []string{"crm"}, MaxSteps: 10, MaxSeconds: 10}),
		Verifier:  verify.New(),
		Registry:  registry,
		Audit:     logger,
		Logger:    log.Discard(),
		Telemetry: recorder,
	})
	require.NoError(t, err)

	res, err := orch.Run(context.Background(), []any{
		step("crm", map[string]any{"op": "lookup"}),
		step("crm-4471-acme", map[string]any{}),
	})
	require.NoError(t, err)
	require.Len(t, res.Steps, 2)
	assert.Contains(t, strings.Join(res.Steps[0].Reasons, " "), "123-45-6789", "the audit trail keeps the detail")

	for _, s := range exporter.GetSpans() {
		for _, kv := range s.Attributes {
			assert.NotContains(t, kv.Value.Emit(), "123-45-6789", "span %s attribute %s", s.Name, kv.Key)
		}
	}

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	var tasks []string
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != telemetry.MetricSteps {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				v, _ := dp.Attributes.Value("task")
				tasks = append(tasks, v.AsString())
			}
		}
	}
	assert.ElementsMatch(t, []string{"crm", telemetry.OtherTask}, tasks)
}
