//go:build ocr

package ocr

import (
	"context"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"
	"github.com/rotisserie/eris"
)

// Gosseract recognizes text in-process through libtesseract. It requires the
// "ocr" build tag and the tesseract development libraries.
type Gosseract struct {
	tessdataDir string
}

// NewGosseract creates a Gosseract provider.
func NewGosseract(tessdataDir string) (Provider, error) {
	return &Gosseract{tessdataDir: tessdataDir}, nil
}

// Open creates a libtesseract client owned by the returned engine.
func (g *Gosseract) Open(ctx context.Context) (Engine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	client := gosseract.NewClient()
	if g.tessdataDir != "" {
		if err := client.SetTessdataPrefix(g.tessdataDir); err != nil {
			client.Close()
			return nil, eris.Wrap(err, "ocr: gosseract tessdata prefix")
		}
	}
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_BLOCK); err != nil {
		client.Close()
		return nil, eris.Wrap(err, "ocr: gosseract page segmentation")
	}
	return &gosseractEngine{client: client}, nil
}

// gosseractEngine serializes calls; a libtesseract client is not safe for
// concurrent use.
type gosseractEngine struct {
	mu     sync.Mutex
	client *gosseract.Client
}

func (e *gosseractEngine) Recognize(ctx context.Context, png []byte, lang string) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.client == nil {
		return Result{}, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if lang == "" {
		lang = DefaultLanguage
	}
	if err := e.client.SetLanguage(strings.Split(lang, "+")...); err != nil {
		return Result{}, eris.Wrap(err, "ocr: gosseract language")
	}
	if err := e.client.SetImageFromBytes(png); err != nil {
		return Result{}, eris.Wrap(err, "ocr: gosseract set image")
	}
	text, err := e.client.Text()
	if err != nil {
		return Result{}, eris.Wrap(err, "ocr: gosseract recognize")
	}

	res := Result{Text: strings.TrimSpace(text)}
	boxes, err := e.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err == nil && len(boxes) > 0 {
		var sum float64
		for _, b := range boxes {
			sum += b.Confidence
		}
		res.Confidence = sum / float64(len(boxes))
	} else {
		res.Confidence = heuristicConfidence(res.Text)
	}
	return res, nil
}

func (e *gosseractEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.client == nil {
		return nil
	}
	err := e.client.Close()
	e.client = nil
	return eris.Wrap(err, "ocr: gosseract close")
}
