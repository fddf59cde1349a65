package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "toolgate", cfg.ServiceName)
	assert.Empty(t, cfg.Endpoint)
	assert.InDelta(t, 1.0, cfg.SampleRate, 1e-9)
}

func TestNewProviderDisabled(t *testing.T) {
	p, err := NewProvider(context.Background(), DefaultConfig())
	require.NoError(t, err)

	r, err := p.Recorder()
	require.NoError(t, err)
	_, span := r.StartRun(context.Background(), "x", 1)
	assert.False(t, span.IsRecording())

	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProviderEnabledWithoutEndpoint(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true

	p, err := NewProvider(context.Background(), cfg)
	require.NoError(t, err)

	r, err := p.Recorder()
	require.NoError(t, err)
	_, span := r.StartRun(context.Background(), "x", 1)
	assert.True(t, span.IsRecording())
	span.End()

	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestSampler(t *testing.T) {
	assert.Equal(t, sdktrace.AlwaysSample().Description(), sampler(1.0).Description())
	assert.Equal(t, sdktrace.AlwaysSample().Description(), sampler(0).Description())
	assert.Contains(t, sampler(0.5).Description(), "TraceIDRatioBased")
}
