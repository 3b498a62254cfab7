// Package ocr recognizes text in rendered page images.
//
// An Engine is acquired from a Provider once per document and closed when
// the document is done, whatever the outcome.
package ocr

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/invoice-cli/internal/config"
	"github.com/sells-group/invoice-cli/internal/pdf"
)

// DefaultLanguage is the tesseract language hint for Hebrew and English invoices.
const DefaultLanguage = "heb+eng"

// ErrClosed is returned by Recognize after Close.
var ErrClosed = eris.New("ocr: engine closed")

// Result is the recognized text of one page and its mean confidence (0-100).
type Result struct {
	Text       string
	Confidence float64
}

// Engine recognizes text in PNG images.
type Engine interface {
	Recognize(ctx context.Context, png []byte, lang string) (Result, error)
	Close() error
}

// Provider opens document-scoped engines.
type Provider interface {
	Open(ctx context.Context) (Engine, error)
}

// NewProvider creates a Provider based on config. It returns nil, nil when
// OCR is disabled.
func NewProvider(cfg config.OCRConfig, runner pdf.Runner) (Provider, error) {
	switch cfg.Engine {
	case "tesseract", "":
		return NewTesseract(cfg.TesseractPath, cfg.TessdataDir, cfg.PSM, runner), nil
	case "gosseract":
		return NewGosseract(cfg.TessdataDir)
	case "mistral":
		if cfg.MistralKey == "" {
			return nil, eris.New("ocr: mistral engine requires mistral_api_key")
		}
		return NewMistralOCR(cfg.MistralKey, cfg.MistralModel), nil
	case "none":
		return nil, nil
	default:
		return nil, eris.Errorf("ocr: unknown engine %q", cfg.Engine)
	}
}
