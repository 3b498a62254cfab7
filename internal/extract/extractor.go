// Package extract derives invoice fields from raw document text using
// ordered, per-field pattern tables with fixed confidence tiers.
package extract

import (
	"github.com/sells-group/invoice-cli/internal/model"
)

// Extractor applies rule tables to raw text. It is stateless and safe for
// concurrent use.
type Extractor struct {
	fields             []FieldRules
	notFoundConfidence int
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithRules replaces the built-in rule tables.
func WithRules(fields []FieldRules) Option {
	return func(e *Extractor) { e.fields = fields }
}

// WithNotFoundConfidence sets the confidence assigned to unmatched fields.
func WithNotFoundConfidence(c int) Option {
	return func(e *Extractor) {
		if c > 0 {
			e.notFoundConfidence = c
		}
	}
}

// New creates an Extractor with the default rule tables.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		fields:             DefaultRules(),
		notFoundConfidence: model.NotFoundConfidence,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract builds an InvoiceRecord from raw text. It never fails: fields no
// rule matches are left as "not found".
//
// For each field, rules are tried in priority order and, within a rule,
// lines in document order. The first matching line decides the field.
func (e *Extractor) Extract(raw string) model.InvoiceRecord {
	lines := Lines(raw)
	rec := model.NewInvoiceRecord(e.notFoundConfidence)

	for _, fr := range e.fields {
		if f, ok := findField(fr, lines); ok {
			rec.Set(fr.Field, f)
		}
	}

	for _, line := range lines {
		if IsLineItem(line) {
			rec.LineItems = append(rec.LineItems, model.LineItem{Description: line})
		}
	}
	return rec
}

func findField(fr FieldRules, lines []string) (model.ExtractedField, bool) {
	for _, rule := range fr.Rules {
		for _, line := range lines {
			v, ok := rule.match(line)
			if !ok {
				continue
			}
			if fr.Amount {
				if v = NormalizeAmount(v); v == "" {
					continue
				}
			}
			return model.Found(v, rule.Confidence), true
		}
	}
	return model.ExtractedField{}, false
}
