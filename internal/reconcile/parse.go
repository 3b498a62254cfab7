package reconcile

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/sells-group/invoice-cli/internal/model"
)

// ErrUnparseable is returned when a completion holds no usable JSON answer.
var ErrUnparseable = eris.New("reconcile: unparseable AI answer")

const answerSchemaJSON = `{
  "type": "object",
  "properties": {
    "invoiceNumber": {"type": ["string", "number", "null"]},
    "date": {"type": ["string", "number", "null"]},
    "vendor": {"type": ["string", "number", "null"]},
    "beforeVat": {"type": ["string", "number", "null"]},
    "total": {"type": ["string", "number", "null"]},
    "lineItems": {
      "type": ["array", "null"],
      "items": {
        "anyOf": [
          {"type": "string"},
          {"type": "object", "properties": {"description": {"type": "string"}}}
        ]
      }
    }
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func answerValidator() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource("answer.json", strings.NewReader(answerSchemaJSON)); err != nil {
			schemaErr = eris.Wrap(err, "reconcile: add schema")
			return
		}
		compiledSchema, schemaErr = c.Compile("answer.json")
		if schemaErr != nil {
			schemaErr = eris.Wrap(schemaErr, "reconcile: compile schema")
		}
	})
	return compiledSchema, schemaErr
}

// Answer is the AI's structured reading of an invoice. Absent scalars are
// empty strings.
type Answer struct {
	InvoiceNumber string
	Date          string
	Vendor        string
	BeforeVAT     string
	Total         string
	LineItems     []string
}

// Scalar returns the answer value for a record field name.
func (a Answer) Scalar(name string) string {
	switch name {
	case model.FieldInvoiceNumber:
		return a.InvoiceNumber
	case model.FieldDate:
		return a.Date
	case model.FieldVendor:
		return a.Vendor
	case model.FieldBeforeVAT:
		return a.BeforeVAT
	case model.FieldTotal:
		return a.Total
	default:
		return ""
	}
}

// cleanJSON strips markdown fences and any prose around the outermost
// object.
func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

// ParseAnswer decodes and validates a completion. Any failure wraps
// ErrUnparseable.
func ParseAnswer(completion string) (Answer, error) {
	body := cleanJSON(completion)
	if body == "" {
		return Answer{}, eris.Wrap(ErrUnparseable, "no JSON object in completion")
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return Answer{}, eris.Wrapf(ErrUnparseable, "decode: %v", err)
	}

	schema, err := answerValidator()
	if err != nil {
		return Answer{}, err
	}
	if err := schema.Validate(doc); err != nil {
		return Answer{}, eris.Wrapf(ErrUnparseable, "schema: %v", err)
	}

	obj := doc.(map[string]any)
	a := Answer{
		InvoiceNumber: scalarString(obj[model.FieldInvoiceNumber]),
		Date:          scalarString(obj[model.FieldDate]),
		Vendor:        scalarString(obj[model.FieldVendor]),
		BeforeVAT:     scalarString(obj[model.FieldBeforeVAT]),
		Total:         scalarString(obj[model.FieldTotal]),
	}
	if items, ok := obj["lineItems"].([]any); ok {
		for _, it := range items {
			var desc string
			switch v := it.(type) {
			case string:
				desc = v
			case map[string]any:
				desc, _ = v["description"].(string)
			}
			if desc = strings.TrimSpace(desc); desc != "" {
				a.LineItems = append(a.LineItems, desc)
			}
		}
	}
	return a, nil
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}
