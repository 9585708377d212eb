package signet

import (
	"testing"
	"time"
)

func TestMetricsDisabledIsNoOp(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})

	m.Inc(MetricSigninSuccess)
	m.Observe(MetricSigninLatency, 10*time.Millisecond)

	if m.Enabled() {
		t.Fatal("expected metrics to report disabled")
	}
	if got := m.Value(MetricSigninSuccess); got != 0 {
		t.Fatalf("expected no counting while disabled, got %d", got)
	}

	snap := m.Snapshot()
	if len(snap.Counters) != 0 || len(snap.Histograms) != 0 {
		t.Fatalf("expected empty snapshot while disabled, got %+v", snap)
	}
}

func TestMetricsNilReceiverIsSafe(t *testing.T) {
	var m *Metrics

	m.Inc(MetricSigninSuccess)
	m.Observe(MetricSigninLatency, time.Millisecond)

	if m.Enabled() || m.LatencyEnabled() {
		t.Fatal("expected nil metrics to report disabled")
	}
	if got := m.Value(MetricSigninSuccess); got != 0 {
		t.Fatalf("expected zero from nil metrics, got %d", got)
	}
}

func TestMetricsCountersAndSnapshot(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	m.Inc(MetricSigninSuccess)
	m.Inc(MetricSigninSuccess)
	m.Inc(MetricAccountLocked)

	if got := m.Value(MetricSigninSuccess); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}

	snap := m.Snapshot()
	if snap.Counters[MetricSigninSuccess] != 2 || snap.Counters[MetricAccountLocked] != 1 {
		t.Fatalf("unexpected snapshot counters: %+v", snap.Counters)
	}

	// The snapshot is a copy: later increments do not leak into it.
	m.Inc(MetricSigninSuccess)
	if snap.Counters[MetricSigninSuccess] != 2 {
		t.Fatal("expected snapshot to be detached from live counters")
	}
}

func TestMetricsLatencyHistogramRequiresOptIn(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: false})

	m.Observe(MetricSigninLatency, 10*time.Millisecond)
	if buckets := m.Snapshot().Histograms[MetricSigninLatency]; buckets != nil {
		t.Fatalf("expected no histogram without opt-in, got %v", buckets)
	}

	m = NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	m.Observe(MetricSigninLatency, 3*time.Millisecond)
	m.Observe(MetricSigninLatency, 40*time.Millisecond)
	m.Observe(MetricSigninLatency, time.Second)

	buckets := m.Snapshot().Histograms[MetricSigninLatency]
	if len(buckets) != histBucketCount {
		t.Fatalf("expected %d buckets, got %d", histBucketCount, len(buckets))
	}
	if buckets[0] != 1 || buckets[3] != 1 || buckets[7] != 1 {
		t.Fatalf("unexpected bucket distribution: %v", buckets)
	}
}

func TestBucketIndexBoundaries(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want int
	}{
		{time.Millisecond, 0},
		{5 * time.Millisecond, 0},
		{6 * time.Millisecond, 1},
		{10 * time.Millisecond, 1},
		{25 * time.Millisecond, 2},
		{50 * time.Millisecond, 3},
		{100 * time.Millisecond, 4},
		{250 * time.Millisecond, 5},
		{500 * time.Millisecond, 6},
		{time.Second, 7},
		{time.Minute, 7},
	}

	for _, tc := range cases {
		if got := bucketIndex(tc.d); got != tc.want {
			t.Fatalf("bucketIndex(%v) = %d, want %d", tc.d, got, tc.want)
		}
	}
}

func TestEngineSnapshotSafeWhenMetricsDisabled(t *testing.T) {
	cfg := engineTestConfig()
	hasher := newTestHasher(t)
	up := newMemUserProvider(testUser(t, hasher, "u1", "alice@example.com", "correct-password-123"))

	mr, rdb := newTestRedis(t)
	defer mr.Close()

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserProvider(up).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	snap := engine.MetricsSnapshot()
	if snap.Counters == nil || snap.Histograms == nil {
		t.Fatal("expected non-nil empty snapshot maps")
	}
	if len(snap.Counters) != 0 {
		t.Fatalf("expected no counters with metrics disabled, got %d", len(snap.Counters))
	}
}
