// Package ingest turns a PDF document into raw text, preferring the embedded
// text layer and falling back to OCR of rendered pages.
package ingest

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/invoice-cli/internal/model"
	"github.com/sells-group/invoice-cli/internal/ocr"
	"github.com/sells-group/invoice-cli/internal/pdf"
)

// TextLayer reads embedded page text.
type TextLayer interface {
	PageText(ctx context.Context, doc *pdf.Document, pageIndex int) (string, error)
}

// Rasterizer counts and renders pages.
type Rasterizer interface {
	PageCount(ctx context.Context, doc *pdf.Document) (int, error)
	RenderPage(ctx context.Context, doc *pdf.Document, pageIndex int, scale float64) ([]byte, error)
}

// PreprocessFunc prepares a rendered page for recognition.
type PreprocessFunc func(png []byte) ([]byte, error)

// Result is the raw text of a document and where it came from.
type Result struct {
	Text          string
	Source        model.TextSource
	Pages         int
	OCRConfidence *float64
	Duration      time.Duration
}

// Options tunes OCR fallback.
type Options struct {
	Language    string
	Scale       float64
	Concurrency int
}

// Orchestrator runs text-layer extraction and OCR fallback for one document
// at a time. It holds no per-document state and may be shared.
type Orchestrator struct {
	text       TextLayer
	raster     Rasterizer
	ocr        ocr.Provider
	preprocess PreprocessFunc
	opts       Options
}

// New creates an Orchestrator. A nil provider disables OCR; a nil preprocess
// function selects pdf.Preprocess.
func New(text TextLayer, raster Rasterizer, provider ocr.Provider, preprocess PreprocessFunc, opts Options) *Orchestrator {
	if preprocess == nil {
		preprocess = pdf.Preprocess
	}
	if opts.Language == "" {
		opts.Language = ocr.DefaultLanguage
	}
	opts.Scale = pdf.ClampScale(opts.Scale)
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Orchestrator{
		text:       text,
		raster:     raster,
		ocr:        provider,
		preprocess: preprocess,
		opts:       opts,
	}
}

// OCREnabled reports whether scanned documents can be recognized.
func (o *Orchestrator) OCREnabled() bool { return o.ocr != nil }

// Ingest produces the raw text of doc. When the text layer is non-blank OCR
// is never invoked. Any collaborator error aborts the document and no partial
// text is returned.
func (o *Orchestrator) Ingest(ctx context.Context, doc *pdf.Document) (*Result, error) {
	start := time.Now()
	log := zap.L().With(zap.String("document_id", doc.ID), zap.String("file", doc.Name))

	pages, err := o.raster.PageCount(ctx, doc)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: page count")
	}
	if pages == 0 {
		return nil, eris.Errorf("ingest: %s has no pages", doc.Name)
	}

	text, err := o.textLayer(ctx, doc, pages)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) != "" {
		log.Debug("ingest: using text layer", zap.Int("pages", pages))
		return &Result{
			Text:     text,
			Source:   model.SourceTextLayer,
			Pages:    pages,
			Duration: time.Since(start),
		}, nil
	}

	if o.ocr == nil {
		log.Warn("ingest: no text layer and OCR disabled")
		return &Result{Source: model.SourceNone, Pages: pages, Duration: time.Since(start)}, nil
	}

	text, conf, err := o.recognize(ctx, doc, pages)
	if err != nil {
		return nil, err
	}
	log.Info("ingest: OCR complete",
		zap.Int("pages", pages),
		zap.Float64("ocr_confidence", conf),
		zap.Duration("elapsed", time.Since(start)),
	)
	return &Result{
		Text:          text,
		Source:        model.SourceOCR,
		Pages:         pages,
		OCRConfidence: &conf,
		Duration:      time.Since(start),
	}, nil
}

func (o *Orchestrator) textLayer(ctx context.Context, doc *pdf.Document, pages int) (string, error) {
	parts := make([]string, pages)
	for i := range pages {
		t, err := o.text.PageText(ctx, doc, i)
		if err != nil {
			return "", eris.Wrapf(err, "ingest: text layer page %d", i)
		}
		parts[i] = t
	}
	return strings.Join(parts, "\n"), nil
}

// recognize OCRs every page exactly once with a single engine scoped to this
// call. Page texts land in an index-addressed slice so the joined text
// follows page order regardless of completion order.
func (o *Orchestrator) recognize(ctx context.Context, doc *pdf.Document, pages int) (_ string, _ float64, err error) {
	engine, err := o.ocr.Open(ctx)
	if err != nil {
		return "", 0, eris.Wrap(err, "ingest: open OCR engine")
	}
	defer func() {
		if cerr := engine.Close(); cerr != nil {
			zap.L().Warn("ingest: close OCR engine", zap.String("document_id", doc.ID), zap.Error(cerr))
		}
	}()

	texts := make([]string, pages)
	confs := make([]float64, pages)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Concurrency)
	for i := range pages {
		g.Go(func() error {
			png, err := o.raster.RenderPage(gctx, doc, i, o.opts.Scale)
			if err != nil {
				return eris.Wrapf(err, "ingest: render page %d", i)
			}
			png, err = o.preprocess(png)
			if err != nil {
				return eris.Wrapf(err, "ingest: preprocess page %d", i)
			}
			res, err := engine.Recognize(gctx, png, o.opts.Language)
			if err != nil {
				return eris.Wrapf(err, "ingest: recognize page %d", i)
			}
			texts[i] = res.Text
			confs[i] = res.Confidence
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", 0, err
	}

	var sum float64
	for _, c := range confs {
		sum += c
	}
	return strings.Join(texts, "\n"), sum / float64(pages), nil
}
