package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRecordCounter verifies lazy creation, accumulation, and labeling.
func TestRecordCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := New("sentinel", reg)

	p.RecordCounter("payouts_total", 1, map[string]string{"mode": "first_valid"})
	p.RecordCounter("payouts_total", 2, map[string]string{"mode": "first_valid"})
	p.RecordCounter("payouts_total", 1, map[string]string{"mode": "ai_judged"})

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	assert.Equal(t, "sentinel_payouts_total", families[0].GetName())

	vec := p.counters["payouts_total"]
	assert.Equal(t, 3.0, testutil.ToFloat64(vec.WithLabelValues("first_valid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(vec.WithLabelValues("ai_judged")))
}

// TestRecordGauge verifies gauges keep the latest value.
func TestRecordGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := New("sentinel", reg)

	p.RecordGauge("watched_bounties", 5, nil)
	p.RecordGauge("watched_bounties", 3, nil)

	assert.Equal(t, 3.0, testutil.ToFloat64(p.gauges["watched_bounties"].WithLabelValues()))
}

// TestRecordLatency verifies histogram registration and observation count.
func TestRecordLatency(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := New("sentinel", reg)

	p.RecordLatency("proof_resolve", 120*time.Millisecond, map[string]string{"source": "cache"})
	p.RecordLatency("proof_resolve", 80*time.Millisecond, map[string]string{"source": "cache"})

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	assert.Equal(t, "sentinel_proof_resolve_duration_seconds", families[0].GetName())
	assert.Equal(t, uint64(2), families[0].GetMetric()[0].GetHistogram().GetSampleCount())
}

// TestMismatchedLabelsDropped verifies a second observation with different
// label keys is dropped instead of panicking.
func TestMismatchedLabelsDropped(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := New("sentinel", reg)

	p.RecordCounter("events_total", 1, map[string]string{"kind": "a"})
	assert.NotPanics(t, func() {
		p.RecordCounter("events_total", 1, map[string]string{"other": "b"})
	})
}
