package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestNewMetricsWithMeter(t *testing.T) {
	m, err := NewMetricsWithMeter(noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)
	require.NotNil(t, m)

	ctx := context.Background()
	assert.NotPanics(t, func() {
		m.RecordAcquisition(ctx, "success")
		m.RecordCacheLookup(ctx, "valid")
		m.RecordProcessEvent(ctx, "spawn", "managed")
		m.RecordHealthPoll(ctx, "http://localhost/health", true)
		m.RecordReady(ctx, 750*time.Millisecond)
	})
}

func TestNilMetricsRecordNothing(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	assert.NotPanics(t, func() {
		m.RecordAcquisition(ctx, "success")
		m.RecordCacheLookup(ctx, "absent")
		m.RecordProcessEvent(ctx, "exit", "unmanaged")
		m.RecordHealthPoll(ctx, "http://localhost/health", false)
		m.RecordReady(ctx, time.Second)
	})
}

func TestNewMetricsUsesGlobalProvider(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)
	assert.NotNil(t, m.ProcessEvents)
}
