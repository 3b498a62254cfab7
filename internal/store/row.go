package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/invoice-cli/internal/model"
)

// prepareInsert fills the ID and timestamps of inv and encodes its record.
func prepareInsert(inv *model.Invoice) ([]byte, error) {
	if inv.ID == "" {
		inv.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = now
	}
	inv.UpdatedAt = now
	if inv.Source == "" {
		inv.Source = model.SourceNone
	}
	return encodeRecord(inv.Record)
}

func encodeRecord(rec model.InvoiceRecord) ([]byte, error) {
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, eris.Wrap(err, "marshal record")
	}
	return b, nil
}

func decodeRecord(b []byte, rec *model.InvoiceRecord) error {
	if err := json.Unmarshal(b, rec); err != nil {
		return eris.Wrap(err, "unmarshal record")
	}
	if rec.LineItems == nil {
		rec.LineItems = []model.LineItem{}
	}
	return nil
}

// nullable returns nil for fields that were not found so the summary
// columns stay NULL.
func nullable(f model.ExtractedField) any {
	if f.Value == nil {
		return nil
	}
	return *f.Value
}
