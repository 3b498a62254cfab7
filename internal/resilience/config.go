package resilience

import (
	"time"

	"github.com/sells-group/invoice-cli/internal/config"
)

// FromRetryConfig converts configured values to a Backoff, keeping
// defaults for unset fields.
func FromRetryConfig(c config.RetryConfig) Backoff {
	b := DefaultBackoff()
	if c.MaxAttempts > 0 {
		b.Attempts = c.MaxAttempts
	}
	if c.InitialBackoffMs > 0 {
		b.Base = time.Duration(c.InitialBackoffMs) * time.Millisecond
	}
	if c.MaxBackoffMs > 0 {
		b.Cap = time.Duration(c.MaxBackoffMs) * time.Millisecond
	}
	if c.Multiplier > 0 {
		b.Factor = c.Multiplier
	}
	if c.JitterFraction >= 0 {
		b.Jitter = c.JitterFraction
	}
	return b
}

// FromCircuitConfig converts configured values to a CircuitBreakerConfig.
func FromCircuitConfig(c config.CircuitConfig) CircuitBreakerConfig {
	cfg := DefaultCircuitBreakerConfig()
	if c.FailureThreshold > 0 {
		cfg.FailureThreshold = c.FailureThreshold
	}
	if c.ResetTimeoutSecs > 0 {
		cfg.ResetTimeout = time.Duration(c.ResetTimeoutSecs) * time.Second
	}
	return cfg
}
