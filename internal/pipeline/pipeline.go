// Package pipeline runs a document through ingestion, field extraction and
// the optional AI pass, and persists the result.
package pipeline

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/invoice-cli/internal/ingest"
	"github.com/sells-group/invoice-cli/internal/model"
	"github.com/sells-group/invoice-cli/internal/pdf"
	"github.com/sells-group/invoice-cli/internal/store"
)

// Ingester obtains raw text for a document.
type Ingester interface {
	Ingest(ctx context.Context, doc *pdf.Document) (*ingest.Result, error)
}

// FieldExtractor builds a heuristic record from raw text.
type FieldExtractor interface {
	Extract(raw string) model.InvoiceRecord
}

// Reconciler overlays an AI reading on a heuristic record.
type Reconciler interface {
	Reconcile(ctx context.Context, raw string, rec model.InvoiceRecord, apiKey string) (model.InvoiceRecord, error)
}

// Outcome is the result of processing one document.
type Outcome struct {
	DocumentID string                `json:"document_id"`
	Invoice    model.Invoice         `json:"invoice"`
	Stored     bool                  `json:"stored"`
	Trail      []model.DocumentState `json:"trail"`
	Failures   []*Failure            `json:"-"`
	Duration   time.Duration         `json:"duration"`
}

// Record returns the final invoice record.
func (o *Outcome) Record() model.InvoiceRecord {
	return o.Invoice.Record
}

// Failed reports whether a failure of kind was recorded.
func (o *Outcome) Failed(kind FailureKind) bool {
	for _, f := range o.Failures {
		if f.Kind == kind {
			return true
		}
	}
	return false
}

// Processor drives documents through the state machine. It is safe for
// concurrent use.
type Processor struct {
	ingester   Ingester
	extractor  FieldExtractor
	reconciler Reconciler
	store      store.Store
	reporter   Reporter
	seq        *Sequencer
	apiKey     string
}

// Option configures a Processor.
type Option func(*Processor)

// WithReconciler enables the AI pass using apiKey. An empty key leaves the
// pass disabled.
func WithReconciler(r Reconciler, apiKey string) Option {
	return func(p *Processor) {
		p.reconciler = r
		p.apiKey = strings.TrimSpace(apiKey)
	}
}

// WithStore persists processed invoices.
func WithStore(st store.Store) Option {
	return func(p *Processor) { p.store = st }
}

// WithReporter sets the observer of transitions and failures.
func WithReporter(r Reporter) Option {
	return func(p *Processor) { p.reporter = r }
}

// WithSequencer shares a Sequencer across processors.
func WithSequencer(s *Sequencer) Option {
	return func(p *Processor) { p.seq = s }
}

// New creates a Processor.
func New(ing Ingester, ext FieldExtractor, opts ...Option) *Processor {
	p := &Processor{
		ingester:  ing,
		extractor: ext,
		reporter:  LogReporter{},
		seq:       NewSequencer(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.reporter == nil {
		p.reporter = LogReporter{}
	}
	if p.seq == nil {
		p.seq = NewSequencer()
	}
	return p
}

// AIEnabled reports whether documents go through the AI pass.
func (p *Processor) AIEnabled() bool {
	return p.reconciler != nil && p.apiKey != ""
}

// Process runs doc for session. A document started later for the same
// session supersedes this one: its context is cancelled and Process returns
// ErrSuperseded without persisting or reporting a result.
//
// Only ingestion failures are returned as errors (as *Failure); other
// failures are attached to the outcome.
func (p *Processor) Process(ctx context.Context, session string, doc *pdf.Document) (*Outcome, error) {
	ticket := p.seq.Begin(ctx, session)
	defer ticket.Release()
	ctx = ticket.Context()

	start := time.Now()
	r := &run{p: p, ticket: ticket, out: &Outcome{DocumentID: doc.ID}}
	log := zap.L().With(zap.String("document_id", doc.ID), zap.String("file", doc.Name))

	if err := r.advance(model.StateIngesting); err != nil {
		return nil, err
	}
	res, err := p.ingester.Ingest(ctx, doc)
	if cerr := ticket.Check(); cerr != nil {
		return nil, cerr
	}
	if err != nil {
		f := NewFailure(KindIngestion, model.StateIngesting, eris.Wrap(err, "pipeline: ingest"))
		r.fail(f)
		if aerr := r.advance(model.StateFailed); aerr != nil {
			return nil, aerr
		}
		r.out.Duration = time.Since(start)
		return r.out, f
	}

	if err := r.advance(model.StateExtracting); err != nil {
		return nil, err
	}
	rec := p.extractor.Extract(res.Text)
	rec.OCRConfidence = res.OCRConfidence
	if rec.FoundCount() == 0 {
		r.fail(NewFailure(KindExtractionDegraded, model.StateExtracting, eris.New("pipeline: no fields matched")))
	}

	r.out.Invoice = model.Invoice{
		ID:       doc.ID,
		FileName: doc.Name,
		Source:   res.Source,
		Record:   rec,
		RawText:  res.Text,
	}

	final := rec
	if p.AIEnabled() {
		if err := r.advance(model.StateReconcilingAI); err != nil {
			return nil, err
		}
		final = r.reconcileAndSave(ctx, res.Text, rec)
	} else {
		r.save(ctx)
	}
	if err := ticket.Check(); err != nil {
		return nil, err
	}

	r.out.Invoice.Record = final
	if r.out.Stored && final.IsAIEnhanced {
		if err := p.store.UpdateRecord(ctx, r.out.Invoice.ID, final); err != nil {
			r.fail(NewFailure(KindPersistence, model.StateReconcilingAI, err))
		}
	}

	if err := r.advance(model.StateDone); err != nil {
		return nil, err
	}
	r.out.Duration = time.Since(start)
	log.Info("pipeline: document processed",
		zap.String("source", string(res.Source)),
		zap.Int("fields_found", final.FoundCount()),
		zap.Bool("ai_enhanced", final.IsAIEnhanced),
		zap.Bool("stored", r.out.Stored),
		zap.Duration("duration", r.out.Duration),
	)
	return r.out, nil
}

// run is the per-document state carried through Process.
type run struct {
	p      *Processor
	ticket *Ticket
	out    *Outcome

	mu    sync.Mutex
	state model.DocumentState
}

// advance moves to the next state and reports it, unless the document was
// superseded.
func (r *run) advance(to model.DocumentState) error {
	if err := r.ticket.Check(); err != nil {
		return err
	}
	r.mu.Lock()
	from := r.state
	if from != "" && !from.CanTransition(to) {
		r.mu.Unlock()
		return eris.Errorf("pipeline: illegal transition %s -> %s", from, to)
	}
	r.state = to
	r.out.Trail = append(r.out.Trail, to)
	r.mu.Unlock()

	r.p.reporter.Transition(r.out.DocumentID, from, to)
	return nil
}

func (r *run) fail(f *Failure) {
	r.mu.Lock()
	r.out.Failures = append(r.out.Failures, f)
	r.mu.Unlock()
	r.p.reporter.Failure(r.out.DocumentID, f)
}

// save stores the extracted invoice. Failures are recorded, never returned.
func (r *run) save(ctx context.Context) {
	if r.p.store == nil || !r.ticket.Current() {
		return
	}
	inv := r.out.Invoice
	inv.Record = inv.Record.Clone()
	if err := r.p.store.SaveInvoice(ctx, &inv); err != nil {
		if r.ticket.Current() {
			r.fail(NewFailure(KindPersistence, r.currentState(), err))
		}
		return
	}
	r.mu.Lock()
	r.out.Invoice.ID = inv.ID
	r.out.Invoice.CreatedAt = inv.CreatedAt
	r.out.Invoice.UpdatedAt = inv.UpdatedAt
	r.out.Stored = true
	r.mu.Unlock()
}

// reconcileAndSave runs the AI pass and the initial save concurrently and
// returns the final record once both have finished.
func (r *run) reconcileAndSave(ctx context.Context, raw string, rec model.InvoiceRecord) model.InvoiceRecord {
	final := rec
	var g errgroup.Group
	g.Go(func() error {
		merged, err := r.p.reconciler.Reconcile(ctx, raw, rec.Clone(), r.p.apiKey)
		if err != nil {
			if r.ticket.Current() {
				r.fail(NewFailure(KindReconciliationSkipped, model.StateReconcilingAI, err))
			}
			return nil
		}
		final = merged
		return nil
	})
	g.Go(func() error {
		r.save(ctx)
		return nil
	})
	_ = g.Wait()
	return final
}

func (r *run) currentState() model.DocumentState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}
