package http

import (
	"net/http"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	gobreaker "github.com/sony/gobreaker/v2"
)

// BreakerConfig configures NewCircuitBreakerRoundTripper.
type BreakerConfig struct {
	Name string
	// FailureThreshold is the number of consecutive failures that open the
	// breaker.
	FailureThreshold uint32
	// Timeout is how long the breaker stays open before letting a probe
	// request through.
	Timeout time.Duration
}

var errServerFailure = errors.New("server error")

type breakerRoundTripper struct {
	cb   *gobreaker.CircuitBreaker[*http.Response]
	next http.RoundTripper
}

// NewCircuitBreakerRoundTripper fails requests fast once the upstream has
// failed cfg.FailureThreshold times in a row. Transport errors and 5xx
// responses count as failures.
func NewCircuitBreakerRoundTripper(logger log.Logger, cfg BreakerConfig, next http.RoundTripper) http.RoundTripper {
	logger = log.With(logger, "component", "breaker", "breaker", cfg.Name)

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			level.Warn(logger).Log("msg", "circuit breaker changed state", "from", from.String(), "to", to.String())
		},
	}

	return &breakerRoundTripper{
		cb:   gobreaker.NewCircuitBreaker[*http.Response](settings),
		next: next,
	}
}

func (rt *breakerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := rt.cb.Execute(func() (*http.Response, error) {
		resp, err := rt.next.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			return resp, errServerFailure
		}
		return resp, nil
	})
	if errors.Is(err, errServerFailure) {
		return resp, nil
	}
	return resp, err
}

// CloseIdleConnections forwards to the wrapped transport.
func (rt *breakerRoundTripper) CloseIdleConnections() {
	if ic, ok := rt.next.(idleConnectionCloser); ok {
		ic.CloseIdleConnections()
	}
}
