package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// TestPurpose: Validates that authorization instruments register on a disabled meter and that a nil set is inert.
// Scope: Unit Test
// Expected: Instruments are created without error; nil receivers never panic.
// Test Case ID: MET-01
func TestMetrics_AuthzInstruments(t *testing.T) {
	ctx := context.Background()
	m, err := New(ctx, Config{Enabled: false}, "lendcore-test")
	require.NoError(t, err)

	inst, err := NewAuthzInstruments(m)
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		inst.RecordDecision(ctx, "has_permission", true)
		inst.RecordMutation(ctx, "grant_permission", "ok")
		inst.RecordSecurityViolation(ctx, "bulk_replace_permissions")
		inst.RecordCacheLookup(ctx, "hit")
		inst.RecordResolution(ctx, 0.002)
	})

	var none *AuthzInstruments
	assert.NotPanics(t, func() {
		none.RecordDecision(ctx, "has_permission", false)
		none.RecordMutation(ctx, "grant_permission", "error")
		none.RecordSecurityViolation(ctx, "grant_permission")
		none.RecordCacheLookup(ctx, "miss")
		none.RecordResolution(ctx, 0)
	})
}

// TestPurpose: Validates that a dedicated provider exports authz instruments with the resolution buckets.
// Scope: Unit Test
// Expected: Decisions are counted by operation and resolution latency lands in the authz bucket layout.
// Test Case ID: MET-02
func TestMetrics_ResolutionBuckets(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	m, err := New(ctx, Config{Enabled: true, Reader: reader}, "lendcore-test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })

	inst, err := NewAuthzInstruments(m)
	require.NoError(t, err)
	inst.RecordDecision(ctx, "has_permission", true)
	inst.RecordResolution(ctx, 0.0007)
	inst.RecordResolution(ctx, 0.03)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	found := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, metric := range sm.Metrics {
			found[metric.Name] = metric
		}
	}

	require.Contains(t, found, "authz_decisions_total")
	require.Contains(t, found, ResolutionHistogram)
	hist, ok := found[ResolutionHistogram].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, ResolutionBuckets, hist.DataPoints[0].Bounds)
	assert.Equal(t, uint64(2), hist.DataPoints[0].Count)
	assert.Equal(t, uint64(1), hist.DataPoints[0].BucketCounts[1])
}
