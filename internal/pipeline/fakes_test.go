package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/invoice-cli/internal/ingest"
	"github.com/sells-group/invoice-cli/internal/model"
	"github.com/sells-group/invoice-cli/internal/pdf"
	"github.com/sells-group/invoice-cli/internal/store"
)

type fakeIngester struct {
	fn func(ctx context.Context, doc *pdf.Document) (*ingest.Result, error)
}

func (f *fakeIngester) Ingest(ctx context.Context, doc *pdf.Document) (*ingest.Result, error) {
	return f.fn(ctx, doc)
}

func textIngester(text string, source model.TextSource) *fakeIngester {
	return &fakeIngester{fn: func(context.Context, *pdf.Document) (*ingest.Result, error) {
		return &ingest.Result{Text: text, Source: source, Pages: 1}, nil
	}}
}

type mockReconciler struct {
	mock.Mock
}

func (m *mockReconciler) Reconcile(ctx context.Context, raw string, rec model.InvoiceRecord, apiKey string) (model.InvoiceRecord, error) {
	args := m.Called(ctx, raw, rec, apiKey)
	return args.Get(0).(model.InvoiceRecord), args.Error(1)
}

// memStore is an in-memory store.Store.
type memStore struct {
	mu        sync.Mutex
	invoices  map[string]model.Invoice
	saveErr   error
	updateErr error
	saves     int
	updates   int
}

func newMemStore() *memStore {
	return &memStore{invoices: make(map[string]model.Invoice)}
}

func (m *memStore) SaveInvoice(_ context.Context, inv *model.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	inv.CreatedAt = time.Now().UTC()
	inv.UpdatedAt = inv.CreatedAt
	m.invoices[inv.ID] = *inv
	return nil
}

func (m *memStore) UpdateRecord(_ context.Context, id string, rec model.InvoiceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++
	if m.updateErr != nil {
		return m.updateErr
	}
	inv, ok := m.invoices[id]
	if !ok {
		return store.ErrNotFound
	}
	inv.Record = rec
	m.invoices[id] = inv
	return nil
}

func (m *memStore) GetInvoice(_ context.Context, id string) (*model.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &inv, nil
}

func (m *memStore) ListInvoices(context.Context, store.ListFilter) ([]model.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Invoice, 0, len(m.invoices))
	for _, inv := range m.invoices {
		out = append(out, inv)
	}
	return out, nil
}

func (m *memStore) Stats(context.Context, time.Time) (*store.Stats, error) {
	return &store.Stats{BySource: map[model.TextSource]int{}}, nil
}

func (m *memStore) Migrate(context.Context) error { return nil }
func (m *memStore) Close() error                  { return nil }

type transition struct {
	from, to model.DocumentState
}

type recordingReporter struct {
	mu          sync.Mutex
	transitions []transition
	failures    []*Failure
}

func (r *recordingReporter) Transition(_ string, from, to model.DocumentState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, transition{from, to})
}

func (r *recordingReporter) Failure(_ string, f *Failure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, f)
}
