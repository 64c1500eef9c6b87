package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upweb-network/monitor-engine/infrastructure/metrics"
)

var errBoom = errors.New("boom")

func TestCircuitBreakerOpensAfterMaxFailures(t *testing.T) {
	cb := New("test", Config{MaxFailures: 2, Timeout: time.Minute, HalfOpenMax: 1}, nil)

	_ = cb.Execute(context.Background(), func() error { return errBoom })
	assert.Equal(t, StateClosed, cb.State())

	_ = cb.Execute(context.Background(), func() error { return errBoom })
	assert.Equal(t, StateOpen, cb.State())

	err := cb.Execute(context.Background(), func() error { return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreakerHalfOpenClosesOnSuccess(t *testing.T) {
	cb := New("test", Config{MaxFailures: 1, Timeout: 10 * time.Millisecond, HalfOpenMax: 1}, nil)

	_ = cb.Execute(context.Background(), func() error { return errBoom })
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(20 * time.Millisecond)

	err := cb.Execute(context.Background(), func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())
}

// TestCircuitBreakerBacksOffHarderOnRepeatedTrips exercises the escalating
// open-state wait: a breaker that trips again right after a half-open probe
// fails waits roughly twice as long before allowing the next probe.
func TestCircuitBreakerBacksOffHarderOnRepeatedTrips(t *testing.T) {
	cb := New("test", Config{MaxFailures: 1, Timeout: 10 * time.Millisecond, HalfOpenMax: 1}, nil)

	_ = cb.Execute(context.Background(), func() error { return errBoom }) // trip #1
	require.Equal(t, StateOpen, cb.State())
	require.Equal(t, 1, cb.consecutiveTrips)

	time.Sleep(15 * time.Millisecond)
	_ = cb.Execute(context.Background(), func() error { return errBoom }) // half-open probe fails, trip #2
	require.Equal(t, StateOpen, cb.State())
	require.Equal(t, 2, cb.consecutiveTrips)

	assert.Greater(t, cb.openTimeout(), 10*time.Millisecond)

	// Not enough time has passed for the doubled backoff, so the circuit
	// should still refuse a half-open probe here.
	time.Sleep(15 * time.Millisecond)
	err := cb.Execute(context.Background(), func() error { return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreakerRecordsStateMetric(t *testing.T) {
	m := metrics.NewForTesting()
	cb := New("push", Config{MaxFailures: 1, Timeout: time.Minute, HalfOpenMax: 1}, m)

	_ = cb.Execute(context.Background(), func() error { return errBoom })
	require.Equal(t, StateOpen, cb.State())

	assert.Equal(t, float64(1), testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("push", "open")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("push", "closed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CircuitBreakerTrips.WithLabelValues("push")))
}
