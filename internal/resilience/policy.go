package resilience

import (
	"context"

	"github.com/sells-group/invoice-cli/internal/config"
)

// Policy bundles the retry policy and per-service breakers applied to calls
// of one kind, such as AI completions.
type Policy struct {
	Backoff  Backoff
	Breakers *ServiceBreakers
}

// NewPolicy builds a Policy from configuration.
func NewPolicy(retry config.RetryConfig, circuit config.CircuitConfig) *Policy {
	return &Policy{
		Backoff:  FromRetryConfig(retry),
		Breakers: NewServiceBreakers(FromCircuitConfig(circuit)),
	}
}

// Call runs fn for service with retries, sending every attempt through the
// service's breaker. An open circuit is not transient, so it ends the retry
// loop at once. A nil Policy calls fn once.
func Call[T any](ctx context.Context, p *Policy, service, operation string, fn func(ctx context.Context) (T, error)) (T, error) {
	if p == nil {
		return fn(ctx)
	}
	cb := p.Breakers.Get(service)

	onRetry := logRetry(service, operation, p.Backoff.withDefaults().Attempts)
	return Retry(ctx, p.Backoff, onRetry, func(ctx context.Context) (T, error) {
		return ExecuteVal(ctx, cb, fn)
	})
}
