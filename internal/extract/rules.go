package extract

import (
	"regexp"
	"strings"

	"github.com/sells-group/invoice-cli/internal/model"
)

// Rule is one (pattern, confidence) entry of a field's rule table. The first
// capture group of Pattern is the extracted value. Lines matching Exclude, or
// for which Skip returns true, are never considered by this rule.
type Rule struct {
	Pattern    *regexp.Regexp
	Confidence int
	Exclude    *regexp.Regexp
	Skip       func(line string) bool
}

// match applies the rule to one line.
func (r Rule) match(line string) (string, bool) {
	if r.Exclude != nil && r.Exclude.MatchString(line) {
		return "", false
	}
	if r.Skip != nil && r.Skip(line) {
		return "", false
	}
	m := r.Pattern.FindStringSubmatch(line)
	if len(m) < 2 {
		return "", false
	}
	v := strings.TrimSpace(m[1])
	if v == "" {
		return "", false
	}
	return v, true
}

// FieldRules is the ordered rule table for one scalar field.
type FieldRules struct {
	Field  string
	Rules  []Rule
	Amount bool
}

const amount = `(\d[\d,.]*)`

var (
	// "Invoice date" and "Invoice total" lines carry no invoice number.
	notInvoiceNumbers = regexp.MustCompile(`(?i)תאריך|date|total|amount|סה"כ|סכום|לתשלום`)
	nonTotalAmounts   = regexp.MustCompile(`(?i)לפני|ללא|before|sub-?\s?total|\bnet\b`)
	taxMention        = regexp.MustCompile(`(?i)\b(?:vat|tax)\b|מע"מ`)
	taxIncluded       = regexp.MustCompile(`(?i)\bincl|כולל`)
)

// taxOnly reports whether a line states a tax amount rather than a
// tax-inclusive total.
func taxOnly(line string) bool {
	return taxMention.MatchString(line) && !taxIncluded.MatchString(line)
}

// DefaultRules returns the built-in Hebrew/English rule tables in priority order.
func DefaultRules() []FieldRules {
	return []FieldRules{
		{
			Field: model.FieldInvoiceNumber,
			Rules: []Rule{
				{Pattern: regexp.MustCompile(`(?i)(?:חשבונית|invoice)[^\d]*(\d+)`), Confidence: 95, Exclude: notInvoiceNumbers},
				{Pattern: regexp.MustCompile(`מס['"]?\s*(\d+)`), Confidence: 85},
				{Pattern: regexp.MustCompile(`^(\d{5,})`), Confidence: 70},
			},
		},
		{
			Field: model.FieldDate,
			Rules: []Rule{
				{Pattern: regexp.MustCompile(`(?i)(?:תאריך|date)[^\d]*(\d{4}-\d{2}-\d{2}|\d{1,2}[./-]\d{1,2}[./-]\d{2,4})`), Confidence: 95},
				{Pattern: regexp.MustCompile(`\b(\d{1,2}[./-]\d{1,2}[./-]\d{2,4})\b`), Confidence: 85},
				{Pattern: regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`), Confidence: 70},
			},
		},
		{
			Field: model.FieldVendor,
			Rules: []Rule{
				{Pattern: regexp.MustCompile(`(?:ספק|שם העסק)[\s:]*([א-ת\s"']+)`), Confidence: 90},
				{Pattern: regexp.MustCompile(`(?i)\b(?:vendor|supplier|sold by)\s*:\s*(\S.*)$`), Confidence: 90},
				{Pattern: regexp.MustCompile(`^([א-ת][א-ת\s]{3,20})$`), Confidence: 70},
			},
		},
		{
			Field:  model.FieldBeforeVAT,
			Amount: true,
			Rules: []Rule{
				{Pattern: regexp.MustCompile(`(?i)(?:לפני מע"מ|ללא מע"מ|before vat|before tax|sub-?\s?total)[^\d]*` + amount), Confidence: 95},
				{Pattern: regexp.MustCompile(`(?i)(?:סה"כ ביניים|net amount|net total|amount before)[^\d]*` + amount), Confidence: 85},
			},
		},
		{
			Field:  model.FieldTotal,
			Amount: true,
			Rules: []Rule{
				{Pattern: regexp.MustCompile(`(?i)(?:סכום|סה"כ|לתשלום|total)[^\d]*` + amount), Confidence: 95, Exclude: nonTotalAmounts, Skip: taxOnly},
				{Pattern: regexp.MustCompile(`₪\s*` + amount), Confidence: 85, Exclude: nonTotalAmounts, Skip: taxOnly},
				{Pattern: regexp.MustCompile(amount + `\s*(?:₪|ש"ח)`), Confidence: 70, Exclude: nonTotalAmounts, Skip: taxOnly},
			},
		},
	}
}

var (
	quantityShape = regexp.MustCompile(`\d+(?:[.,]\d+)?\s*[xX×*]\s*\S`)
	currencyMark  = regexp.MustCompile(`[₪$€£]|ש"ח`)
	decimalAmount = regexp.MustCompile(`\d[.,]\d{1,2}(?:\s|$)`)
)

// IsLineItem reports whether a line looks like a priced row: it has a
// quantity shape, a currency marker or a decimal amount, and at least three
// whitespace-separated tokens.
func IsLineItem(line string) bool {
	if len(strings.Fields(line)) < 3 {
		return false
	}
	return quantityShape.MatchString(line) ||
		currencyMark.MatchString(line) ||
		decimalAmount.MatchString(line)
}
