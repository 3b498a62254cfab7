package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/invoice-cli/internal/config"
	"github.com/sells-group/invoice-cli/internal/model"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func sampleInvoice(name string, source model.TextSource) *model.Invoice {
	rec := model.NewInvoiceRecord(model.NotFoundConfidence)
	rec.InvoiceNumber = model.Found("10023", 95)
	rec.Vendor = model.Found("חברת אלפא", 90)
	rec.Total = model.Found("540.00", 95)
	rec.LineItems = []model.LineItem{{Description: "2 x מחברת 15.00"}}
	if source == model.SourceOCR {
		c := 88.5
		rec.OCRConfidence = &c
	}
	return &model.Invoice{
		FileName: name,
		Source:   source,
		Record:   rec,
		RawText:  "חשבונית 10023\nלתשלום: 540.00",
	}
}

func TestSQLite_SaveAndGet(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	inv := sampleInvoice("a.pdf", model.SourceOCR)
	require.NoError(t, s.SaveInvoice(ctx, inv))
	assert.NotEmpty(t, inv.ID)
	assert.False(t, inv.CreatedAt.IsZero())

	got, err := s.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "a.pdf", got.FileName)
	assert.Equal(t, model.SourceOCR, got.Source)
	assert.Equal(t, inv.RawText, got.RawText)
	assert.Equal(t, inv.Record, got.Record)
	assert.Nil(t, got.Record.Date.Value)
	assert.Equal(t, model.NotFoundConfidence, got.Record.Date.Confidence)
}

func TestSQLite_GetNotFound(t *testing.T) {
	s := newTestSQLite(t)

	_, err := s.GetInvoice(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_UpdateRecord(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	inv := sampleInvoice("a.pdf", model.SourceTextLayer)
	require.NoError(t, s.SaveInvoice(ctx, inv))

	rec := inv.Record.Clone()
	rec.Total = model.Found("541.00", 93)
	rec.IsAIEnhanced = true
	require.NoError(t, s.UpdateRecord(ctx, inv.ID, rec))

	got, err := s.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "541.00", got.Record.Total.String())
	assert.True(t, got.Record.IsAIEnhanced)

	err = s.UpdateRecord(ctx, "missing", rec)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_ListInvoices(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	for i, src := range []model.TextSource{model.SourceOCR, model.SourceTextLayer, model.SourceOCR} {
		inv := sampleInvoice("f.pdf", src)
		inv.CreatedAt = time.Now().UTC().Add(time.Duration(i) * time.Second)
		require.NoError(t, s.SaveInvoice(ctx, inv))
	}

	all, err := s.ListInvoices(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.True(t, !all[0].CreatedAt.Before(all[1].CreatedAt))

	ocr, err := s.ListInvoices(ctx, ListFilter{Source: model.SourceOCR})
	require.NoError(t, err)
	assert.Len(t, ocr, 2)

	limited, err := s.ListInvoices(ctx, ListFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	byVendor, err := s.ListInvoices(ctx, ListFilter{Vendor: "אלפא"})
	require.NoError(t, err)
	assert.Len(t, byVendor, 3)

	none, err := s.ListInvoices(ctx, ListFilter{Vendor: "globex"})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestSQLite_Stats(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	enhanced := sampleInvoice("a.pdf", model.SourceOCR)
	enhanced.Record.IsAIEnhanced = true
	require.NoError(t, s.SaveInvoice(ctx, enhanced))
	require.NoError(t, s.SaveInvoice(ctx, sampleInvoice("b.pdf", model.SourceTextLayer)))
	require.NoError(t, s.SaveInvoice(ctx, sampleInvoice("c.pdf", model.SourceNone)))

	st, err := s.Stats(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, st.Total)
	assert.Equal(t, 1, st.AIEnhanced)
	assert.Equal(t, 1, st.BySource[model.SourceOCR])
	assert.Equal(t, 1, st.BySource[model.SourceTextLayer])
	assert.Equal(t, 1, st.BySource[model.SourceNone])
}

func TestOpen_SQLite(t *testing.T) {
	ctx := context.Background()
	st, err := Open(ctx, config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "open.db")})
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	require.NoError(t, st.SaveInvoice(ctx, sampleInvoice("x.pdf", model.SourceNone)))
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.StoreConfig{Driver: "mysql"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")
}
