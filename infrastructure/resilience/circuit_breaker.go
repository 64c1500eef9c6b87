package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/upweb-network/monitor-engine/infrastructure/metrics"
)

// State represents circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// maxOpenTimeout caps the exponential open-state backoff below: a channel
// that keeps tripping shouldn't lock itself out for longer than this no
// matter how many consecutive times it has failed.
const maxOpenTimeout = 10 * time.Minute

// Config configures a CircuitBreaker.
type Config struct {
	MaxFailures int
	Timeout     time.Duration // base open-state duration before the first half-open probe
	HalfOpenMax int
}

// DefaultConfig returns sensible defaults, used to guard email/push
// delivery from a persistently failing downstream (notifier.go).
func DefaultConfig() Config {
	return Config{MaxFailures: 5, Timeout: 30 * time.Second, HalfOpenMax: 3}
}

// CircuitBreaker guards one named notification/payment channel. Unlike a
// general-purpose breaker that reopens for a fixed Timeout every time, the
// open-state wait doubles with each consecutive trip (capped at
// maxOpenTimeout) and resets once the channel closes again — the same
// escalating-backoff shape the Notifier's own delivery retry ladder uses
// (1s/4s/16s/60s in notifier.go), applied here to how eagerly a flapping
// channel gets re-probed instead of to how eagerly a single delivery
// retries. A breaker's state is also exported as
// monitor_circuit_breaker_state{name=...} so a channel stuck open shows up
// on the same dashboards as everything else in this package.
type CircuitBreaker struct {
	mu               sync.RWMutex
	name             string
	config           Config
	metrics          *metrics.Metrics
	state            State
	failures         int
	successes        int
	halfOpenReqs     int
	consecutiveTrips int
	lastFailure      time.Time
}

// New constructs a CircuitBreaker identified by name, used both for the
// escalating open-state backoff's "how many times has this one tripped"
// bookkeeping and for the exported metric labels. m may be nil in tests.
func New(name string, cfg Config, m *metrics.Metrics) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	cb := &CircuitBreaker{name: name, config: cfg, metrics: m, state: StateClosed}
	cb.recordState(StateClosed)
	return cb
}

func (cb *CircuitBreaker) State() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Execute runs fn with circuit breaker protection.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}
	err := fn()
	cb.afterRequest(err == nil)
	return err
}

// openTimeout returns how long the circuit stays open before allowing a
// half-open probe: config.Timeout doubled once per consecutive trip, so a
// channel that keeps failing right after recovery backs off harder each
// time instead of hammering a downstream that just came back up.
func (cb *CircuitBreaker) openTimeout() time.Duration {
	d := cb.config.Timeout
	for i := 1; i < cb.consecutiveTrips && d < maxOpenTimeout; i++ {
		d *= 2
	}
	if d > maxOpenTimeout {
		d = maxOpenTimeout
	}
	return d
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.lastFailure) > cb.openTimeout() {
			cb.setState(StateHalfOpen)
			cb.halfOpenReqs = 1
			return nil
		}
		return ErrCircuitOpen
	case StateHalfOpen:
		if cb.halfOpenReqs >= cb.config.HalfOpenMax {
			return ErrTooManyRequests
		}
		cb.halfOpenReqs++
	}
	return nil
}

func (cb *CircuitBreaker) afterRequest(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if success {
		cb.onSuccess()
	} else {
		cb.onFailure()
	}
}

func (cb *CircuitBreaker) onSuccess() {
	switch cb.state {
	case StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.HalfOpenMax {
			cb.consecutiveTrips = 0
			cb.setState(StateClosed)
		}
	case StateClosed:
		cb.failures = 0
	}
}

func (cb *CircuitBreaker) onFailure() {
	cb.failures++
	cb.lastFailure = time.Now()

	switch cb.state {
	case StateHalfOpen:
		cb.setState(StateOpen)
	case StateClosed:
		if cb.failures >= cb.config.MaxFailures {
			cb.setState(StateOpen)
		}
	}
}

func (cb *CircuitBreaker) setState(newState State) {
	if cb.state == newState {
		return
	}
	cb.state = newState
	cb.failures = 0
	cb.successes = 0
	cb.halfOpenReqs = 0
	if newState == StateOpen {
		cb.consecutiveTrips++
		if cb.metrics != nil {
			cb.metrics.CircuitBreakerTrips.WithLabelValues(cb.name).Inc()
		}
	}
	cb.recordState(newState)
}

// recordState pushes the exclusive-state gauge: the new state reads 1,
// every other named state for this breaker reads 0.
func (cb *CircuitBreaker) recordState(active State) {
	if cb.metrics == nil {
		return
	}
	for _, s := range []State{StateClosed, StateOpen, StateHalfOpen} {
		v := 0.0
		if s == active {
			v = 1.0
		}
		cb.metrics.CircuitBreakerState.WithLabelValues(cb.name, s.String()).Set(v)
	}
}
