package reconcile

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/invoice-cli/internal/model"
	"github.com/sells-group/invoice-cli/internal/resilience"
)

// MinKeyLength is the shortest API key accepted as well formed.
const MinKeyLength = 8

var (
	// ErrNoKey means no API key is configured; reconciliation is not attempted.
	ErrNoKey = eris.New("reconcile: no API key")
	// ErrMalformedKey means the configured key cannot be valid.
	ErrMalformedKey = eris.New("reconcile: malformed API key")
	// ErrNoText means there is no document text to send.
	ErrNoText = eris.New("reconcile: no document text")
)

// ValidateKey checks that apiKey is present and plausibly formed.
func ValidateKey(apiKey string) error {
	apiKey = strings.TrimSpace(apiKey)
	switch {
	case apiKey == "":
		return ErrNoKey
	case len(apiKey) < MinKeyLength:
		return ErrMalformedKey
	default:
		return nil
	}
}

// Reconciler runs the AI pass for one provider.
type Reconciler struct {
	completer Completer
	policy    *resilience.Policy
	timeout   time.Duration
}

// New creates a Reconciler. A nil policy calls the provider once; a zero
// timeout leaves the caller's deadline in charge.
func New(completer Completer, policy *resilience.Policy, timeout time.Duration) *Reconciler {
	return &Reconciler{completer: completer, policy: policy, timeout: timeout}
}

// Provider returns the completer's name.
func (r *Reconciler) Provider() string { return r.completer.Name() }

// Reconcile asks the provider for a structured reading of raw and merges it
// over rec. On any failure rec is returned unchanged with the error.
func (r *Reconciler) Reconcile(ctx context.Context, raw string, rec model.InvoiceRecord, apiKey string) (model.InvoiceRecord, error) {
	if err := ValidateKey(apiKey); err != nil {
		return rec, err
	}
	if strings.TrimSpace(raw) == "" {
		return rec, ErrNoText
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	prompt := BuildPrompt(raw)
	start := time.Now()
	completion, err := resilience.Call(ctx, r.policy, r.completer.Name(), "complete",
		func(ctx context.Context) (string, error) {
			return r.completer.Complete(ctx, prompt, strings.TrimSpace(apiKey))
		})
	if err != nil {
		return rec, eris.Wrapf(err, "reconcile: %s completion", r.completer.Name())
	}

	answer, err := ParseAnswer(completion)
	if err != nil {
		zap.L().Warn("reconcile: discarding AI answer",
			zap.String("provider", r.completer.Name()),
			zap.Error(err),
		)
		return rec, err
	}

	merged := Merge(rec, answer)
	zap.L().Debug("reconcile: merged AI answer",
		zap.String("provider", r.completer.Name()),
		zap.Duration("duration", time.Since(start)),
		zap.Int("fields_found", merged.FoundCount()),
	)
	return merged, nil
}
