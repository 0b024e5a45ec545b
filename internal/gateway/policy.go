// internal/gateway/policy.go
package gateway

import (
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// Policy is the gateway's resiliency layer: it wraps the forward call with a
// bounded retry and a circuit breaker and propagates the final outcome. The
// proxy itself stays policy-free; swapping this round tripper swaps the
// resiliency behavior.
type Policy struct {
	next       http.RoundTripper
	breaker    *gobreaker.CircuitBreaker
	maxRetries int
}

// NewPolicy creates a forward policy with the given retry budget. A nil next
// transport falls back to http.DefaultTransport.
func NewPolicy(next http.RoundTripper, maxRetries int) *Policy {
	if next == nil {
		next = http.DefaultTransport
	}
	return &Policy{
		next:       next,
		maxRetries: maxRetries,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "gateway-forward",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

// RoundTrip forwards the request, retrying transport-level failures up to the
// retry budget. Requests whose body cannot be replayed are never retried.
func (p *Policy) RoundTrip(req *http.Request) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		attemptReq := req
		if attempt > 0 {
			attemptReq = req.Clone(req.Context())
			if req.Body != nil && req.Body != http.NoBody {
				if req.GetBody == nil {
					return nil, lastErr
				}
				body, err := req.GetBody()
				if err != nil {
					return nil, lastErr
				}
				attemptReq.Body = body
			}
		}

		result, err := p.breaker.Execute(func() (interface{}, error) {
			return p.next.RoundTrip(attemptReq)
		})
		if err == nil {
			return result.(*http.Response), nil
		}
		lastErr = err

		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		default:
		}
	}

	return nil, lastErr
}
