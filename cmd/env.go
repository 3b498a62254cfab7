package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/invoice-cli/internal/extract"
	"github.com/sells-group/invoice-cli/internal/fetcher"
	"github.com/sells-group/invoice-cli/internal/ingest"
	"github.com/sells-group/invoice-cli/internal/monitoring"
	"github.com/sells-group/invoice-cli/internal/ocr"
	"github.com/sells-group/invoice-cli/internal/pdf"
	"github.com/sells-group/invoice-cli/internal/pipeline"
	"github.com/sells-group/invoice-cli/internal/reconcile"
	"github.com/sells-group/invoice-cli/internal/resilience"
	"github.com/sells-group/invoice-cli/internal/store"
)

// envOptions selects which optional stages are wired.
type envOptions struct {
	Mode    string
	NoAI    bool
	NoStore bool
}

// appEnv holds the initialized collaborators shared by the commands.
type appEnv struct {
	Store     store.Store // nil with --no-store
	Processor *pipeline.Processor
	Recorder  *monitoring.Recorder
	Policy    *resilience.Policy // nil when AI is disabled
	Loader    *fetcher.Loader
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// Collector builds a metrics collector over the environment's sources.
func (e *appEnv) Collector() *monitoring.Collector {
	var breakers monitoring.BreakerStater
	if e.Policy != nil {
		breakers = e.Policy.Breakers
	}
	return monitoring.NewCollector(e.Store, e.Recorder, breakers)
}

// initEnv validates config and builds the document processor. Callers should
// defer env.Close().
func initEnv(ctx context.Context, opts envOptions) (*appEnv, error) {
	if err := cfg.Validate(opts.Mode); err != nil {
		return nil, err
	}

	runner := pdf.ExecRunner{}
	provider, err := ocr.NewProvider(cfg.OCR, runner)
	if err != nil {
		return nil, eris.Wrap(err, "init ocr")
	}
	if provider == nil {
		zap.L().Warn("ocr disabled, documents without a text layer yield no text")
	}

	ing := ingest.New(
		pdf.NewTextLayer(),
		pdf.NewRasterizer(cfg.OCR.PdfToPPMPath, runner),
		provider,
		nil,
		ingest.Options{
			Language:    cfg.OCR.Language,
			Scale:       cfg.OCR.Scale,
			Concurrency: cfg.OCR.Concurrency,
		},
	)
	ext := extract.New(extract.WithNotFoundConfidence(cfg.Pipeline.NotFoundConfidence))

	env := &appEnv{
		Recorder: monitoring.NewRecorder(),
		Loader:   fetcher.NewLoader(cfg.Fetch),
	}
	popts := []pipeline.Option{
		pipeline.WithReporter(pipeline.MultiReporter(pipeline.LogReporter{}, env.Recorder)),
	}

	if !opts.NoStore {
		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return nil, eris.Wrap(err, "open store")
		}
		env.Store = st
		popts = append(popts, pipeline.WithStore(st))
	}

	if !opts.NoAI && cfg.AI.Key != "" {
		completer, err := reconcile.NewCompleter(cfg.AI)
		if err != nil {
			env.Close()
			return nil, eris.Wrap(err, "init ai completer")
		}
		env.Policy = resilience.NewPolicy(cfg.AI.Retry, cfg.AI.Circuit)
		rec := reconcile.New(completer, env.Policy, cfg.AI.Timeout())
		popts = append(popts, pipeline.WithReconciler(rec, cfg.AI.Key))
		zap.L().Info("ai reconciliation enabled", zap.String("provider", rec.Provider()))
	} else {
		zap.L().Debug("ai reconciliation disabled")
	}

	env.Processor = pipeline.New(ing, ext, popts...)
	return env, nil
}

// openStore opens the configured store for commands that only read it.
func openStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate("store"); err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	return st, nil
}
