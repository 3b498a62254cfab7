package reconcile

import (
	"context"
	"errors"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/invoice-cli/internal/cost"
	"github.com/sells-group/invoice-cli/internal/resilience"
	"github.com/sells-group/invoice-cli/pkg/anthropic"
)

const defaultAnthropicModel = "claude-haiku-4-5-20251001"

// Anthropic completes prompts with Claude. A client is built per call since
// the key travels with the request.
type Anthropic struct {
	model     string
	maxTokens int64
	newClient func(apiKey string) anthropic.Client
}

// NewAnthropic creates an Anthropic completer. An empty baseURL uses the
// public API.
func NewAnthropic(model, baseURL string, maxTokens int) *Anthropic {
	if model == "" {
		model = defaultAnthropicModel
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Anthropic{
		model:     model,
		maxTokens: int64(maxTokens),
		newClient: func(apiKey string) anthropic.Client {
			if baseURL != "" {
				return anthropic.NewClient(apiKey, option.WithBaseURL(baseURL))
			}
			return anthropic.NewClient(apiKey)
		},
	}
}

// Name implements Completer.
func (a *Anthropic) Name() string { return "anthropic" }

// Complete implements Completer.
func (a *Anthropic) Complete(ctx context.Context, prompt, apiKey string) (string, error) {
	resp, err := a.newClient(apiKey).Complete(ctx, anthropic.Prompt{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		System:    systemPrompt,
		User:      prompt,
	})
	if err != nil {
		var apiErr *sdk.Error
		if errors.As(err, &apiErr) {
			return "", resilience.StatusError("anthropic", apiErr.StatusCode, apiErr.Error())
		}
		return "", eris.Wrap(err, "anthropic: create message")
	}
	if resp.Truncated() {
		zap.L().Warn("reconcile: anthropic answer truncated",
			zap.String("model", a.model), zap.Int64("max_tokens", a.maxTokens))
	}
	cost.Default().Log("anthropic", a.model, "reconcile", resp.InputTokens, resp.OutputTokens)
	return resp.Text, nil
}
