package dispatcher

import (
	"context"
	"time"

	"github.com/djlord-it/easy-trigger/internal/circuitbreaker"
)

// BreakerSender wraps a WebhookSender with a per-URL circuit breaker so a
// persistently failing destination stops consuming delivery attempts.
type BreakerSender struct {
	inner   WebhookSender
	breaker *circuitbreaker.CircuitBreaker
}

func NewBreakerSender(inner WebhookSender, breaker *circuitbreaker.CircuitBreaker) *BreakerSender {
	return &BreakerSender{inner: inner, breaker: breaker}
}

func (s *BreakerSender) Send(ctx context.Context, req WebhookRequest) WebhookResult {
	start := time.Now()
	if err := s.breaker.Allow(req.URL); err != nil {
		return WebhookResult{Error: err, Duration: time.Since(start)}
	}

	result := s.inner.Send(ctx, req)
	if result.IsSuccess() {
		s.breaker.RecordSuccess(req.URL)
	} else {
		s.breaker.RecordFailure(req.URL)
	}
	return result
}
