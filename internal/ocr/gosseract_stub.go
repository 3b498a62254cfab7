//go:build !ocr

package ocr

import "github.com/rotisserie/eris"

// ErrOCRNotEnabled is returned when the gosseract engine is requested from a
// binary built without the "ocr" tag.
var ErrOCRNotEnabled = eris.New("ocr: gosseract engine requires building with -tags ocr")

// NewGosseract reports that in-process OCR is not compiled in.
func NewGosseract(string) (Provider, error) {
	return nil, ErrOCRNotEnabled
}
