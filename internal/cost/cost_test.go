package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokens(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(Rates{
		"mini":  {Input: 0.15, Output: 0.60},
		"flash": {Input: 0.10, Output: 0.40},
	})

	tests := []struct {
		name   string
		model  string
		input  int
		output int
		want   float64
	}{
		{"mini one million each", "mini", 1_000_000, 1_000_000, 0.75},
		{"flash typical invoice", "flash", 2_000, 300, 0.0002 + 0.00012},
		{"zero tokens", "mini", 0, 0, 0},
		{"unknown model", "nope", 1_000_000, 1_000_000, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, calc.Tokens(tt.model, tt.input, tt.output), 1e-9)
		})
	}
}

func TestDefaultRates_CoverDefaultModels(t *testing.T) {
	t.Parallel()
	for _, m := range []string{"gpt-4o-mini", "gemini-2.0-flash", "claude-haiku-4-5-20251001"} {
		assert.Greater(t, Default().Tokens(m, 1_000_000, 0), 0.0, m)
	}
}

func TestDefaultRates_Claude(t *testing.T) {
	t.Parallel()
	assert.InDelta(t, 6.00, Default().Tokens("claude-haiku-4-5-20251001", 1_000_000, 1_000_000), 1e-9)
	assert.InDelta(t, 18.00, Default().Tokens("claude-sonnet-4-5-20250929", 1_000_000, 1_000_000), 1e-9)
}

func TestLog_DoesNotPanic(t *testing.T) {
	t.Parallel()
	assert.NotPanics(t, func() {
		Default().Log("openai", "gpt-4o-mini", "reconcile", 1200, 200)
	})
}
