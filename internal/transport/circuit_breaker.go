package transport

import (
	"sync"
	"time"

	"github.com/themis-db/shardcore/internal/metrics"
	"github.com/themis-db/shardcore/internal/shardcoreerr"
)

// CircuitState is the state of a CircuitBreaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

// CircuitBreakerConfig configures a CircuitBreaker.
type CircuitBreakerConfig struct {
	Threshold int
	Timeout   time.Duration
}

// DefaultCircuitBreakerConfig matches the teacher's defaults for outbound
// shard-to-shard calls.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Threshold: 5,
		Timeout:   30 * time.Second,
	}
}

// CircuitBreaker wraps an outbound operation, tripping open after Threshold
// consecutive failures and cooling down for Timeout before a half-open
// probe. Ported from the teacher's core/endorser/circuit_breaker.go
// (generalized from Fabric leader connectivity to any endpoint call, and
// from the teacher's own *Metrics type to internal/metrics' prometheus
// counters).
type CircuitBreaker struct {
	endpoint        string
	failures        int
	lastFailureTime time.Time
	config          CircuitBreakerConfig
	state           CircuitState
	mu              sync.RWMutex
}

// NewCircuitBreaker builds a breaker labeled by endpoint for metrics.
func NewCircuitBreaker(endpoint string, config CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{endpoint: endpoint, config: config, state: CircuitClosed}
}

// Execute runs operation, short-circuiting with a TlsError(Closed)-shaped
// error when the breaker is open.
func (cb *CircuitBreaker) Execute(operation func() error) error {
	cb.mu.RLock()
	if cb.state == CircuitOpen {
		if time.Since(cb.lastFailureTime) < cb.config.Timeout {
			cb.mu.RUnlock()
			return shardcoreerr.New(shardcoreerr.KindTLS, shardcoreerr.ReasonClosed, cb.endpoint)
		}
		cb.mu.RUnlock()
		cb.mu.Lock()
		cb.state = CircuitHalfOpen
		cb.mu.Unlock()
	} else {
		cb.mu.RUnlock()
	}

	err := operation()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil {
		cb.failures++
		if cb.state == CircuitHalfOpen || cb.failures >= cb.config.Threshold {
			cb.state = CircuitOpen
			cb.lastFailureTime = time.Now()
			metrics.CircuitBreakerOpen.WithLabelValues(cb.endpoint).Inc()
		}
		return err
	}

	cb.failures = 0
	cb.state = CircuitClosed
	return nil
}

// GetState reports the current breaker state.
func (cb *CircuitBreaker) GetState() CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}
