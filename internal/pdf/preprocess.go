package pdf

import (
	"bytes"

	"github.com/disintegration/imaging"
	"github.com/rotisserie/eris"
)

// Preprocessing parameters applied to rendered pages before OCR.
const (
	sharpenSigma  = 1.0
	contrastBoost = 20
)

// Preprocess converts a rendered page to grayscale, lifts contrast and
// sharpens it, returning PNG bytes.
func Preprocess(png []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(png))
	if err != nil {
		return nil, eris.Wrap(err, "pdf: decode rendered page")
	}

	gray := imaging.Grayscale(img)
	gray = imaging.AdjustContrast(gray, contrastBoost)
	gray = imaging.Sharpen(gray, sharpenSigma)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, gray, imaging.PNG); err != nil {
		return nil, eris.Wrap(err, "pdf: encode preprocessed page")
	}
	return buf.Bytes(), nil
}
