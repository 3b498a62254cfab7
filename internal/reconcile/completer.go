// Package reconcile asks an LLM for a structured reading of an invoice and
// merges its answer over the heuristic record.
package reconcile

import (
	"context"
	"net/http"

	"github.com/rotisserie/eris"

	"github.com/sells-group/invoice-cli/internal/config"
)

// Completer sends a single prompt to an AI provider and returns the raw
// completion text.
type Completer interface {
	Name() string
	Complete(ctx context.Context, prompt, apiKey string) (string, error)
}

// NewCompleter returns the Completer for cfg.Provider.
func NewCompleter(cfg config.AIConfig) (Completer, error) {
	switch cfg.Provider {
	case "openai", "":
		return NewOpenAI(cfg.Model, cfg.BaseURL, cfg.MaxTokens, &http.Client{Timeout: cfg.Timeout()}), nil
	case "anthropic":
		return NewAnthropic(cfg.Model, cfg.BaseURL, cfg.MaxTokens), nil
	case "gemini":
		return NewGemini(cfg.Model), nil
	default:
		return nil, eris.Errorf("reconcile: unknown provider %q", cfg.Provider)
	}
}
