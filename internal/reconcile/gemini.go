package reconcile

import (
	"context"
	"errors"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/rotisserie/eris"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/sells-group/invoice-cli/internal/cost"
	"github.com/sells-group/invoice-cli/internal/resilience"
)

const defaultGeminiModel = "gemini-2.0-flash"

// Gemini completes prompts with Google's Gemini models.
type Gemini struct {
	model    string
	opts     []option.ClientOption
	generate func(ctx context.Context, prompt, apiKey string) (*genai.GenerateContentResponse, error)
}

// NewGemini creates a Gemini completer. Extra client options are appended
// after the API key.
func NewGemini(model string, opts ...option.ClientOption) *Gemini {
	if model == "" {
		model = defaultGeminiModel
	}
	g := &Gemini{model: model, opts: opts}
	g.generate = g.generateContent
	return g
}

// Name implements Completer.
func (g *Gemini) Name() string { return "gemini" }

// Complete implements Completer.
func (g *Gemini) Complete(ctx context.Context, prompt, apiKey string) (string, error) {
	resp, err := g.generate(ctx, prompt, apiKey)
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) {
			return "", resilience.StatusError("gemini", gerr.Code, gerr.Message)
		}
		return "", eris.Wrap(err, "gemini: generate content")
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", eris.New("gemini: empty response")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}

	if resp.UsageMetadata != nil {
		cost.Default().Log("gemini", g.model, "reconcile",
			int(resp.UsageMetadata.PromptTokenCount), int(resp.UsageMetadata.CandidatesTokenCount))
	}
	return sb.String(), nil
}

func (g *Gemini) generateContent(ctx context.Context, prompt, apiKey string) (*genai.GenerateContentResponse, error) {
	opts := append([]option.ClientOption{option.WithAPIKey(apiKey)}, g.opts...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, eris.Wrap(err, "gemini: create client")
	}
	defer client.Close() //nolint:errcheck

	model := client.GenerativeModel(g.model)
	model.SetTemperature(0)
	model.SystemInstruction = genai.NewUserContent(genai.Text(systemPrompt))
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = answerSchema()
	return model.GenerateContent(ctx, genai.Text(prompt))
}

func answerSchema() *genai.Schema {
	str := func() *genai.Schema { return &genai.Schema{Type: genai.TypeString, Nullable: true} }
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"invoiceNumber": str(),
			"date":          str(),
			"vendor":        str(),
			"beforeVat":     str(),
			"total":         str(),
			"lineItems": {
				Type:  genai.TypeArray,
				Items: &genai.Schema{Type: genai.TypeString},
			},
		},
	}
}
