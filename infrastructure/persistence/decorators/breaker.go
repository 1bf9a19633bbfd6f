package decorators

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	pkgerrors "graphboard/pkg/errors"
)

// CodeCircuitOpen is attached to the PersistenceError returned while the
// breaker rejects calls.
const CodeCircuitOpen = "CIRCUIT_OPEN"

// BreakerConfig tunes the store circuit breaker.
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerConfig returns the breaker settings used in production.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:             "store",
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          60 * time.Second,
		FailureThreshold: 0.8,
		MinRequests:      5,
	}
}

// CircuitBreaker stops calling the store after repeated backend failures
// and fails fast with a PersistenceError until the timeout has passed.
func CircuitBreaker(cfg BreakerConfig, logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool { return !isBackendFailure(err) },
	})

	return func(ctx context.Context, kind, op string, next func(context.Context) error) error {
		_, err := cb.Execute(func() (interface{}, error) {
			return nil, next(ctx)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return pkgerrors.NewPersistenceError(op+" "+kind, err).
				WithCode(CodeCircuitOpen).
				WithDetail("breaker", cfg.Name)
		}
		return err
	}
}

// isBackendFailure reports whether err means the backend could not be
// reached or did not answer. Errors the backend itself reports (missing
// rows, policy violations, constraint violations) carry a code and show
// the backend is healthy.
func isBackendFailure(err error) bool {
	if err == nil {
		return false
	}
	appErr := pkgerrors.GetAppError(err)
	if appErr == nil {
		return true
	}
	return appErr.Type == pkgerrors.ErrorTypePersistence && appErr.Code == ""
}
