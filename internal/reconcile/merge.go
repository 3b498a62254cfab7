package reconcile

import (
	"github.com/sells-group/invoice-cli/internal/extract"
	"github.com/sells-group/invoice-cli/internal/model"
)

// aiConfidence is the fixed confidence of each field the AI supplies.
var aiConfidence = map[string]int{
	model.FieldInvoiceNumber: 98,
	model.FieldDate:          96,
	model.FieldVendor:        95,
	model.FieldBeforeVAT:     94,
	model.FieldTotal:         93,
}

var amountFields = map[string]bool{
	model.FieldBeforeVAT: true,
	model.FieldTotal:     true,
}

// Merge overlays an AI answer on the heuristic record. Each non-empty AI
// scalar replaces the heuristic field whole; a non-empty line item list
// replaces the heuristic list. The input record is not modified.
func Merge(rec model.InvoiceRecord, a Answer) model.InvoiceRecord {
	out := rec.Clone()
	for _, name := range model.ScalarFields {
		v := a.Scalar(name)
		if amountFields[name] {
			v = extract.NormalizeAmount(v)
		}
		if v == "" {
			continue
		}
		out.Set(name, model.Found(v, aiConfidence[name]))
	}
	if len(a.LineItems) > 0 {
		items := make([]model.LineItem, 0, len(a.LineItems))
		for _, d := range a.LineItems {
			items = append(items, model.LineItem{Description: d})
		}
		out.LineItems = items
	}
	out.IsAIEnhanced = true
	return out
}
