package reconcile

import (
	"context"
	"net/http"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/sells-group/invoice-cli/internal/cost"
	"github.com/sells-group/invoice-cli/internal/resilience"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAI completes prompts through an OpenAI-compatible chat endpoint.
type OpenAI struct {
	model     string
	baseURL   string
	maxTokens int
	client    *http.Client
}

// NewOpenAI creates an OpenAI completer. An empty baseURL uses the
// client library's default endpoint.
func NewOpenAI(model, baseURL string, maxTokens int, client *http.Client) *OpenAI {
	if model == "" {
		model = defaultOpenAIModel
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &OpenAI{
		model:     model,
		baseURL:   strings.TrimRight(baseURL, "/"),
		maxTokens: maxTokens,
		client:    client,
	}
}

// Name implements Completer.
func (o *OpenAI) Name() string { return "openai" }

// statusDoer records the status of the last response so library errors can
// be classified as transient or permanent.
type statusDoer struct {
	client *http.Client
	status int
}

func (d *statusDoer) Do(req *http.Request) (*http.Response, error) {
	resp, err := d.client.Do(req)
	if resp != nil {
		d.status = resp.StatusCode
	}
	return resp, err
}

// Complete implements Completer.
func (o *OpenAI) Complete(ctx context.Context, prompt, apiKey string) (string, error) {
	doer := &statusDoer{client: o.client}
	opts := []openai.Option{
		openai.WithModel(o.model),
		openai.WithToken(apiKey),
		openai.WithHTTPClient(doer),
	}
	if o.baseURL != "" {
		opts = append(opts, openai.WithBaseURL(o.baseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return "", eris.Wrap(err, "openai: create client")
	}

	callOpts := []llms.CallOption{llms.WithTemperature(0), llms.WithJSONMode()}
	if o.maxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(o.maxTokens))
	}

	resp, err := llm.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}, callOpts...)
	if err != nil {
		if doer.status != 0 && doer.status != http.StatusOK {
			return "", resilience.StatusError("openai", doer.status, err.Error())
		}
		return "", eris.Wrap(err, "openai: generate content")
	}
	if len(resp.Choices) == 0 {
		return "", eris.New("openai: no choices in response")
	}

	choice := resp.Choices[0]
	cost.Default().Log("openai", o.model, "reconcile",
		intInfo(choice.GenerationInfo, "PromptTokens"), intInfo(choice.GenerationInfo, "CompletionTokens"))
	return choice.Content, nil
}

func intInfo(info map[string]any, key string) int {
	if v, ok := info[key].(int); ok {
		return v
	}
	return 0
}
