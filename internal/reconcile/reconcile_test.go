package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/sells-group/invoice-cli/internal/config"
	"github.com/sells-group/invoice-cli/internal/extract"
	"github.com/sells-group/invoice-cli/internal/model"
	"github.com/sells-group/invoice-cli/internal/resilience"
)

const testKey = "sk-test-12345678"

type mockCompleter struct {
	mock.Mock
}

func (m *mockCompleter) Name() string { return "mock" }

func (m *mockCompleter) Complete(ctx context.Context, prompt, apiKey string) (string, error) {
	args := m.Called(ctx, prompt, apiKey)
	return args.String(0), args.Error(1)
}

func heuristicRecord() model.InvoiceRecord {
	return extract.New().Extract("ספק: חברת אלפא\nחשבונית 10023\nלתשלום: 540.00\n2 x מחברת 15.00")
}

func testPolicy() *resilience.Policy {
	return &resilience.Policy{
		Backoff: resilience.Backoff{
			Attempts: 3,
			Base:     time.Millisecond,
			Cap:      2 * time.Millisecond,
		},
		Breakers: resilience.NewServiceBreakers(resilience.DefaultCircuitBreakerConfig()),
	}
}

func TestReconcile_AIPrecedence(t *testing.T) {
	mc := &mockCompleter{}
	mc.On("Complete", mock.Anything, mock.Anything, testKey).
		Return("```json\n{\"invoiceNumber\": \"10024\", \"date\": \"16/07/2025\", \"vendor\": null, "+
			"\"beforeVat\": \"₪ 461.54\", \"total\": 540, \"lineItems\": [\"מחברת x2\"]}\n```", nil)

	rec := heuristicRecord()
	got, err := New(mc, nil, time.Second).Reconcile(context.Background(), "raw text", rec, testKey)
	require.NoError(t, err)

	assert.True(t, got.IsAIEnhanced)
	assert.Equal(t, "10024", got.InvoiceNumber.String())
	assert.Equal(t, 98, got.InvoiceNumber.Confidence)
	assert.Equal(t, "16/07/2025", got.Date.String())
	assert.Equal(t, 96, got.Date.Confidence)
	assert.Equal(t, "461.54", got.BeforeVAT.String())
	assert.Equal(t, 94, got.BeforeVAT.Confidence)
	assert.Equal(t, "540", got.Total.String())
	assert.Equal(t, 93, got.Total.Confidence)
	// Null AI value keeps the heuristic field untouched.
	assert.Equal(t, rec.Vendor, got.Vendor)
	assert.Equal(t, []model.LineItem{{Description: "מחברת x2"}}, got.LineItems)

	// Input record is not mutated.
	assert.False(t, rec.IsAIEnhanced)
	assert.Equal(t, "10023", rec.InvoiceNumber.String())
	mc.AssertExpectations(t)
}

func TestReconcile_PromptEmbedsText(t *testing.T) {
	mc := &mockCompleter{}
	mc.On("Complete", mock.Anything, mock.MatchedBy(func(p string) bool {
		return p == BuildPrompt("חשבונית 1")
	}), testKey).Return(`{}`, nil)

	_, err := New(mc, nil, 0).Reconcile(context.Background(), "חשבונית 1", heuristicRecord(), testKey)
	require.NoError(t, err)
	mc.AssertExpectations(t)

	assert.Contains(t, BuildPrompt("abc"), "\"\"\"abc\"\"\"")
}

func TestReconcile_EmptyLineItemsKeepHeuristic(t *testing.T) {
	mc := &mockCompleter{}
	mc.On("Complete", mock.Anything, mock.Anything, testKey).Return(`{"lineItems": []}`, nil)

	rec := heuristicRecord()
	got, err := New(mc, nil, 0).Reconcile(context.Background(), "raw", rec, testKey)
	require.NoError(t, err)
	assert.Equal(t, rec.LineItems, got.LineItems)
	assert.True(t, got.IsAIEnhanced)
}

func TestReconcile_ProseAnswerIsSkipped(t *testing.T) {
	mc := &mockCompleter{}
	mc.On("Complete", mock.Anything, mock.Anything, testKey).Return("I could not find an invoice here.", nil)

	rec := heuristicRecord()
	got, err := New(mc, nil, 0).Reconcile(context.Background(), "raw", rec, testKey)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnparseable))
	assert.Equal(t, rec, got)
}

func TestReconcile_KeyValidation(t *testing.T) {
	mc := &mockCompleter{}
	r := New(mc, nil, 0)
	rec := heuristicRecord()

	got, err := r.Reconcile(context.Background(), "raw", rec, "")
	assert.ErrorIs(t, err, ErrNoKey)
	assert.Equal(t, rec, got)

	_, err = r.Reconcile(context.Background(), "raw", rec, "short")
	assert.ErrorIs(t, err, ErrMalformedKey)

	_, err = r.Reconcile(context.Background(), "   ", rec, testKey)
	assert.ErrorIs(t, err, ErrNoText)

	mc.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything)
}

func TestReconcile_RetriesTransientErrors(t *testing.T) {
	mc := &mockCompleter{}
	mc.On("Complete", mock.Anything, mock.Anything, testKey).
		Return("", resilience.StatusError("mock", 503, "busy")).Once()
	mc.On("Complete", mock.Anything, mock.Anything, testKey).
		Return(`{"total": "99.90"}`, nil).Once()

	got, err := New(mc, testPolicy(), time.Second).Reconcile(context.Background(), "raw", heuristicRecord(), testKey)
	require.NoError(t, err)
	assert.Equal(t, "99.90", got.Total.String())
	mc.AssertNumberOfCalls(t, "Complete", 2)
}

func TestReconcile_PermanentErrorNotRetried(t *testing.T) {
	mc := &mockCompleter{}
	mc.On("Complete", mock.Anything, mock.Anything, testKey).
		Return("", resilience.StatusError("mock", 401, "bad key"))

	rec := heuristicRecord()
	got, err := New(mc, testPolicy(), time.Second).Reconcile(context.Background(), "raw", rec, testKey)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Equal(t, rec, got)
	mc.AssertNumberOfCalls(t, "Complete", 1)
}

func TestValidateKey(t *testing.T) {
	assert.ErrorIs(t, ValidateKey(""), ErrNoKey)
	assert.ErrorIs(t, ValidateKey("   "), ErrNoKey)
	assert.ErrorIs(t, ValidateKey("1234567"), ErrMalformedKey)
	assert.NoError(t, ValidateKey("12345678"))
}

func TestParseAnswer(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Answer
		wantErr bool
	}{
		{
			name: "plain object",
			in:   `{"invoiceNumber": "A-1", "vendor": "ACME"}`,
			want: Answer{InvoiceNumber: "A-1", Vendor: "ACME"},
		},
		{
			name: "prose around object",
			in:   "Sure! Here it is: {\"total\": \"12.00\"} Hope this helps.",
			want: Answer{Total: "12.00"},
		},
		{
			name: "numbers without exponent",
			in:   `{"total": 1234567.5, "invoiceNumber": 10023}`,
			want: Answer{Total: "1234567.5", InvoiceNumber: "10023"},
		},
		{
			name: "numbers keep their literal digits",
			in:   `{"invoiceNumber": 12345678901234567891, "total": 540.00}`,
			want: Answer{InvoiceNumber: "12345678901234567891", Total: "540.00"},
		},
		{
			name: "object line items",
			in:   `{"lineItems": [{"description": "Widget"}, "Gadget", "  "]}`,
			want: Answer{LineItems: []string{"Widget", "Gadget"}},
		},
		{name: "no object", in: "nothing", wantErr: true},
		{name: "broken json", in: `{"total": }`, wantErr: true},
		{name: "schema violation", in: `{"total": {"amount": 5}}`, wantErr: true},
		{name: "array line items wrong type", in: `{"lineItems": "one"}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAnswer(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrUnparseable)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMerge_AmountNormalizedToEmptyIsIgnored(t *testing.T) {
	rec := heuristicRecord()
	got := Merge(rec, Answer{Total: "₪"})
	assert.Equal(t, rec.Total, got.Total)
	assert.True(t, got.IsAIEnhanced)
}

type openAIRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	MaxTokens      int `json:"max_tokens"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

func TestOpenAI_Complete(t *testing.T) {
	var gotReq openAIRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer "+testKey, r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotReq)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","model":"gpt-4o-mini","choices":[{"index":0,"message":{"role":"assistant","content":"{\"total\":\"5\"}"},"finish_reason":"stop"}],"usage":{"prompt_tokens":10,"completion_tokens":3,"total_tokens":13}}`))
	}))
	defer srv.Close()

	c := NewOpenAI("", srv.URL+"/", 256, srv.Client())
	out, err := c.Complete(context.Background(), "prompt", testKey)
	require.NoError(t, err)
	assert.Equal(t, `{"total":"5"}`, out)
	assert.Equal(t, defaultOpenAIModel, gotReq.Model)
	assert.Equal(t, "json_object", gotReq.ResponseFormat.Type)
	require.Len(t, gotReq.Messages, 2)
	assert.Equal(t, "system", gotReq.Messages[0].Role)
	assert.Equal(t, "prompt", gotReq.Messages[1].Content)
}

func TestOpenAI_StatusErrors(t *testing.T) {
	tests := []struct {
		status    int
		transient bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusUnauthorized, false},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(tt.status)
			_, _ = w.Write([]byte(`{"error":{"message":"nope","type":"server_error"}}`))
		}))
		_, err := NewOpenAI("m", srv.URL, 0, srv.Client()).Complete(context.Background(), "p", testKey)
		srv.Close()
		require.Error(t, err)
		assert.Equal(t, tt.transient, resilience.IsTransient(err), tt.status)
		assert.Contains(t, err.Error(), "openai")
	}
}

func TestOpenAI_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[]}`))
	}))
	defer srv.Close()

	_, err := NewOpenAI("m", srv.URL, 0, srv.Client()).Complete(context.Background(), "p", testKey)
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
}

func TestAnthropic_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, testKey, r.Header.Get("X-Api-Key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1", "type": "message", "role": "assistant",
			"model": "claude-haiku-4-5-20251001",
			"content": [{"type": "text", "text": "{\"vendor\": \"ACME\"}"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 12, "output_tokens": 4}
		}`))
	}))
	defer srv.Close()

	out, err := NewAnthropic("", srv.URL, 0).Complete(context.Background(), "prompt", testKey)
	require.NoError(t, err)
	assert.Equal(t, `{"vendor": "ACME"}`, out)
}

func TestAnthropic_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"busy"}}`))
	}))
	defer srv.Close()

	_, err := NewAnthropic("", srv.URL, 0).Complete(context.Background(), "prompt", testKey)
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestNewCompleter(t *testing.T) {
	tests := []struct {
		provider string
		name     string
	}{
		{"", "openai"},
		{"openai", "openai"},
		{"anthropic", "anthropic"},
		{"gemini", "gemini"},
	}
	for _, tt := range tests {
		c, err := NewCompleter(config.AIConfig{Provider: tt.provider})
		require.NoError(t, err)
		assert.Equal(t, tt.name, c.Name())
	}

	_, err := NewCompleter(config.AIConfig{Provider: "cohere"})
	assert.Error(t, err)
}

func TestGemini_Complete(t *testing.T) {
	g := NewGemini("")
	var gotKey string
	g.generate = func(_ context.Context, prompt, apiKey string) (*genai.GenerateContentResponse, error) {
		gotKey = apiKey
		assert.Equal(t, "prompt", prompt)
		return &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{
				Content: &genai.Content{Parts: []genai.Part{genai.Text(`{"vendor":`), genai.Text(`"ACME"}`)}},
			}},
			UsageMetadata: &genai.UsageMetadata{PromptTokenCount: 20, CandidatesTokenCount: 5},
		}, nil
	}

	out, err := g.Complete(context.Background(), "prompt", testKey)
	require.NoError(t, err)
	assert.Equal(t, `{"vendor":"ACME"}`, out)
	assert.Equal(t, testKey, gotKey)
}

func TestGemini_CompleteErrors(t *testing.T) {
	tests := []struct {
		name      string
		resp      *genai.GenerateContentResponse
		err       error
		transient bool
	}{
		{"rate limited", nil, &googleapi.Error{Code: http.StatusTooManyRequests, Message: "quota"}, true},
		{"bad key", nil, &googleapi.Error{Code: http.StatusForbidden, Message: "denied"}, false},
		{"no candidates", &genai.GenerateContentResponse{}, nil, false},
		{"nil content", &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{}}}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGemini("m")
			g.generate = func(context.Context, string, string) (*genai.GenerateContentResponse, error) {
				return tt.resp, tt.err
			}
			_, err := g.Complete(context.Background(), "p", testKey)
			require.Error(t, err)
			assert.Equal(t, tt.transient, resilience.IsTransient(err))
		})
	}
}

func TestGeminiAnswerSchema(t *testing.T) {
	s := answerSchema()
	for _, name := range model.ScalarFields {
		require.Contains(t, s.Properties, name)
		assert.True(t, s.Properties[name].Nullable, name)
	}
	require.Contains(t, s.Properties, "lineItems")
	assert.NotNil(t, s.Properties["lineItems"].Items)
}
