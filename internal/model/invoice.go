package model

import (
	"encoding/json"
	"time"
)

// NotFoundConfidence is the confidence assigned to a field no rule matched.
const NotFoundConfidence = 35

// ExtractedField is a single extracted value with its confidence (0-100).
// A nil Value means the field was not found.
type ExtractedField struct {
	Value      *string `json:"value"`
	Confidence int     `json:"confidence"`
}

// Found creates a field holding value at the given confidence.
func Found(value string, confidence int) ExtractedField {
	return ExtractedField{Value: &value, Confidence: clampConfidence(confidence)}
}

// NotFound creates the "not found" sentinel field at the given confidence.
func NotFound(confidence int) ExtractedField {
	return ExtractedField{Confidence: clampConfidence(confidence)}
}

// IsFound reports whether the field carries a value.
func (f ExtractedField) IsFound() bool {
	return f.Value != nil
}

// String returns the value, or the empty string when not found.
func (f ExtractedField) String() string {
	if f.Value == nil {
		return ""
	}
	return *f.Value
}

// Level returns the presentation band for the field's confidence.
func (f ExtractedField) Level() ConfidenceLevel {
	return LevelFor(f.Confidence)
}

func clampConfidence(c int) int {
	switch {
	case c < 0:
		return 0
	case c > 100:
		return 100
	default:
		return c
	}
}

// LineItem is a single priced row of the invoice.
type LineItem struct {
	Description string `json:"description"`
}

// Field names used in serialized records and AI answers.
const (
	FieldInvoiceNumber = "invoiceNumber"
	FieldDate          = "date"
	FieldVendor        = "vendor"
	FieldBeforeVAT     = "beforeVat"
	FieldTotal         = "total"
)

// ScalarFields lists the five scalar fields in canonical order.
var ScalarFields = []string{
	FieldInvoiceNumber,
	FieldDate,
	FieldVendor,
	FieldBeforeVAT,
	FieldTotal,
}

// InvoiceRecord is the structured result of processing one document.
type InvoiceRecord struct {
	InvoiceNumber ExtractedField `json:"invoiceNumber"`
	Date          ExtractedField `json:"date"`
	Vendor        ExtractedField `json:"vendor"`
	BeforeVAT     ExtractedField `json:"beforeVat"`
	Total         ExtractedField `json:"total"`
	LineItems     []LineItem     `json:"lineItems"`
	IsAIEnhanced  bool           `json:"isAIEnhanced"`
	OCRConfidence *float64       `json:"ocrConfidence"`
}

// NewInvoiceRecord returns a record with every scalar field set to "not found".
func NewInvoiceRecord(notFoundConfidence int) InvoiceRecord {
	nf := NotFound(notFoundConfidence)
	return InvoiceRecord{
		InvoiceNumber: nf,
		Date:          nf,
		Vendor:        nf,
		BeforeVAT:     nf,
		Total:         nf,
		LineItems:     []LineItem{},
	}
}

// Field returns the scalar field with the given name.
func (r *InvoiceRecord) Field(name string) (ExtractedField, bool) {
	p := r.fieldPtr(name)
	if p == nil {
		return ExtractedField{}, false
	}
	return *p, true
}

// Set replaces the named scalar field as a unit. Unknown names are ignored
// and reported as false.
func (r *InvoiceRecord) Set(name string, f ExtractedField) bool {
	p := r.fieldPtr(name)
	if p == nil {
		return false
	}
	*p = f
	return true
}

// Fields returns the scalar fields in canonical order.
func (r *InvoiceRecord) Fields() []NamedField {
	out := make([]NamedField, 0, len(ScalarFields))
	for _, name := range ScalarFields {
		f, _ := r.Field(name)
		out = append(out, NamedField{Name: name, Field: f})
	}
	return out
}

// FoundCount returns how many scalar fields carry a value.
func (r *InvoiceRecord) FoundCount() int {
	n := 0
	for _, nf := range r.Fields() {
		if nf.Field.IsFound() {
			n++
		}
	}
	return n
}

// Clone returns a deep copy of the record.
func (r InvoiceRecord) Clone() InvoiceRecord {
	out := r
	for _, name := range ScalarFields {
		f, _ := r.Field(name)
		if f.Value != nil {
			v := *f.Value
			f.Value = &v
		}
		out.Set(name, f)
	}
	out.LineItems = append([]LineItem{}, r.LineItems...)
	if r.OCRConfidence != nil {
		c := *r.OCRConfidence
		out.OCRConfidence = &c
	}
	return out
}

// MarshalJSON keeps lineItems an array even when the slice is nil.
func (r InvoiceRecord) MarshalJSON() ([]byte, error) {
	type alias InvoiceRecord
	a := alias(r)
	if a.LineItems == nil {
		a.LineItems = []LineItem{}
	}
	return json.Marshal(a)
}

func (r *InvoiceRecord) fieldPtr(name string) *ExtractedField {
	switch name {
	case FieldInvoiceNumber:
		return &r.InvoiceNumber
	case FieldDate:
		return &r.Date
	case FieldVendor:
		return &r.Vendor
	case FieldBeforeVAT:
		return &r.BeforeVAT
	case FieldTotal:
		return &r.Total
	default:
		return nil
	}
}

// NamedField pairs a scalar field with its serialized name.
type NamedField struct {
	Name  string
	Field ExtractedField
}

// TextSource identifies where a document's raw text came from.
type TextSource string

const (
	SourceTextLayer TextSource = "text_layer"
	SourceOCR       TextSource = "ocr"
	SourceNone      TextSource = "none"
)

// Invoice is a processed document as persisted by the store.
type Invoice struct {
	ID        string        `json:"id"`
	FileName  string        `json:"file_name"`
	Source    TextSource    `json:"source"`
	Record    InvoiceRecord `json:"record"`
	RawText   string        `json:"raw_text,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}
