package ai

import (
	"context"
	"time"

	"instaflow/internal/metrics"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

type breakerProvider struct {
	inner Provider
	cb    *gobreaker.CircuitBreaker
}

// WithBreaker guards a provider with a circuit breaker that opens after
// repeated provider failures, and counts every generation attempt. Missing
// keys and rejected credentials belong to one account and never trip it.
func WithBreaker(p Provider) Provider {
	settings := gobreaker.Settings{
		Name:        "ai-" + p.Name(),
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			return err == nil || callerFault(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state change")
		},
	}
	return &breakerProvider{inner: p, cb: gobreaker.NewCircuitBreaker(settings)}
}

func (b *breakerProvider) Name() string { return b.inner.Name() }

func (b *breakerProvider) GenerateReply(ctx context.Context, req Request) (string, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.GenerateReply(ctx, req)
	})
	metrics.AIGenerationsTotal.WithLabelValues(b.inner.Name(), metrics.StatusLabel(err == nil)).Inc()
	if err != nil {
		return "", err
	}
	return out.(string), nil
}
