package resilience

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel/trace"
)

// ErrOpenCircuit is returned when the breaker refuses a request.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// BreakerSettings configures NewBreaker.
type BreakerSettings struct {
	Target string
	// MinRequests is the number of requests observed before the failure
	// ratio is evaluated.
	MinRequests uint32
	// FailureRatio opens the breaker once reached.
	FailureRatio float64
	// OpenFor is how long the breaker rejects requests before probing.
	OpenFor time.Duration
	Logger  zerolog.Logger
}

// Breaker guards calls to a single downstream dependency.
type Breaker struct {
	cb     *gobreaker.CircuitBreaker[*http.Response]
	target string
}

// NewBreaker builds a failure-ratio breaker that publishes its state to the
// breaker metrics.
func NewBreaker(s BreakerSettings) *Breaker {
	if s.MinRequests == 0 {
		s.MinRequests = 1
	}
	if s.FailureRatio <= 0 || s.FailureRatio > 1 {
		s.FailureRatio = 0.5
	}
	if s.OpenFor <= 0 {
		s.OpenFor = 30 * time.Second
	}
	target := strings.TrimSpace(s.Target)
	if target == "" {
		target = "default"
	}
	logger := s.Logger
	b := &Breaker{target: target}
	b.cb = gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        target,
		MaxRequests: 1,
		Timeout:     s.OpenFor,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			if c.Requests < s.MinRequests {
				return false
			}
			return float64(c.TotalFailures)/float64(c.Requests) >= s.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			BreakerState.WithLabelValues(name).Set(stateGaugeValue(to))
			BreakerTransitions.WithLabelValues(name, stateLabel(from), stateLabel(to)).Inc()
			if to == gobreaker.StateOpen {
				BreakerOpenedTotal.WithLabelValues(name).Inc()
			}
			logger.Info().Str("target", name).Str("from_state", stateLabel(from)).Str("to_state", stateLabel(to)).Msg("breaker_transition")
		},
	})
	BreakerState.WithLabelValues(target).Set(stateGaugeValue(gobreaker.StateClosed))
	return b
}

// State reports the current breaker state: closed, open or half_open.
func (b *Breaker) State() string {
	return stateLabel(b.cb.State())
}

// Execute runs fn unless the breaker is open. Transport errors and 5xx
// responses count as failures; the response is still returned to the caller.
func (b *Breaker) Execute(ctx context.Context, fn func() (*http.Response, error)) (*http.Response, error) {
	var serverErr *http.Response
	resp, err := b.cb.Execute(func() (*http.Response, error) {
		resp, err := fn()
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			serverErr = resp
			return nil, errors.New(resp.Status)
		}
		return resp, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		traceLog(ctx, b.target)
		return nil, ErrOpenCircuit
	}
	if serverErr != nil {
		return serverErr, nil
	}
	return resp, err
}

func traceLog(ctx context.Context, target string) {
	evt := zerolog.Ctx(ctx).Warn().Str("target", target)
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		evt = evt.Str("trace_id", sc.TraceID().String())
	}
	evt.Msg("breaker_rejected")
}

func stateLabel(s gobreaker.State) string {
	switch s {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

func stateGaugeValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return -1
	}
}
