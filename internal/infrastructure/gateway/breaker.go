// Package gateway implements the payment rail providers over HTTP. Every call
// runs through a circuit breaker so a failing provider is shed quickly.
package gateway

import (
	"errors"
	"time"

	"go-clinic-appointment/internal/domain/provider"
	"go-clinic-appointment/internal/infrastructure/metrics"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// BreakerConfig holds circuit breaker configuration
type BreakerConfig struct {
	Name string
	// MaxRequests is max requests allowed in half-open state
	MaxRequests uint32
	// Interval is the cyclic period for clearing counts in closed state
	Interval time.Duration
	// Timeout is how long the breaker stays open before probing again
	Timeout time.Duration
	// FailureThreshold is the consecutive failures that open the breaker
	FailureThreshold uint32
}

func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		MaxRequests:      1,
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

// Breaker wraps gobreaker with logging and a state gauge
type Breaker struct {
	cb      *gobreaker.CircuitBreaker
	name    string
	log     *logrus.Logger
	metrics *metrics.Metrics
}

func NewBreaker(cfg BreakerConfig, log *logrus.Logger, m *metrics.Metrics) *Breaker {
	b := &Breaker{name: cfg.Name, log: log, metrics: m}

	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.log.Warnf("Circuit breaker %s changed from %s to %s", name, from, to)
			if b.metrics != nil {
				b.metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
		// A provider rejecting the request is a healthy provider
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrRejected)
		},
	})

	return b
}

// Execute runs fn through the breaker. An open breaker surfaces as
// provider.ErrProviderUnavailable.
func (b *Breaker) Execute(fn func() (interface{}, error)) (interface{}, error) {
	result, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, provider.ErrProviderUnavailable
	}
	return result, err
}

// State returns the current breaker state
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}
