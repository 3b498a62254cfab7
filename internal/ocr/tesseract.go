package ocr

import (
	"context"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/rotisserie/eris"

	"github.com/sells-group/invoice-cli/internal/pdf"
)

// Tesseract runs the tesseract CLI, feeding page images on stdin and reading
// TSV output so word confidences come back with the text.
type Tesseract struct {
	binPath     string
	tessdataDir string
	psm         int
	runner      pdf.Runner
}

// NewTesseract creates a Tesseract provider. If binPath is empty, "tesseract"
// is used. A nil runner selects pdf.ExecRunner.
func NewTesseract(binPath, tessdataDir string, psm int, runner pdf.Runner) *Tesseract {
	if binPath == "" {
		binPath = "tesseract"
	}
	if runner == nil {
		runner = pdf.ExecRunner{}
	}
	return &Tesseract{binPath: binPath, tessdataDir: tessdataDir, psm: psm, runner: runner}
}

// Open verifies the binary is runnable and returns a document-scoped engine.
func (t *Tesseract) Open(ctx context.Context) (Engine, error) {
	if _, stderr, err := t.runner.Run(ctx, nil, t.binPath, "--version"); err != nil {
		return nil, eris.Wrapf(err, "ocr: tesseract unavailable: %s", strings.TrimSpace(string(stderr)))
	}
	return &tesseractEngine{t: t}, nil
}

type tesseractEngine struct {
	t      *Tesseract
	closed atomic.Bool
}

func (e *tesseractEngine) Recognize(ctx context.Context, png []byte, lang string) (Result, error) {
	if e.closed.Load() {
		return Result{}, ErrClosed
	}
	if lang == "" {
		lang = DefaultLanguage
	}

	args := []string{"stdin", "stdout", "-l", lang}
	if e.t.tessdataDir != "" {
		args = append(args, "--tessdata-dir", e.t.tessdataDir)
	}
	if e.t.psm > 0 {
		args = append(args, "--psm", strconv.Itoa(e.t.psm))
	}
	args = append(args, "tsv")

	out, stderr, err := e.t.runner.Run(ctx, png, e.t.binPath, args...)
	if err != nil {
		return Result{}, eris.Wrapf(err, "ocr: tesseract: %s", strings.TrimSpace(string(stderr)))
	}
	return parseTSV(string(out)), nil
}

func (e *tesseractEngine) Close() error {
	e.closed.Store(true)
	return nil
}

// TSV columns: level page_num block_num par_num line_num word_num left top
// width height conf text.
const (
	tsvColumns = 12
	tsvConf    = 10
	tsvText    = 11
	wordLevel  = "5"
)

// parseTSV rebuilds line-structured text from tesseract TSV output and
// returns the mean confidence of the recognized words.
func parseTSV(tsv string) Result {
	var (
		lines   []string
		current []string
		lineKey string
		sum     float64
		words   int
	)
	flush := func() {
		if len(current) > 0 {
			lines = append(lines, strings.Join(current, " "))
			current = nil
		}
	}

	for i, row := range strings.Split(tsv, "\n") {
		if i == 0 && strings.HasPrefix(row, "level") {
			continue
		}
		cols := strings.Split(strings.TrimRight(row, "\r"), "\t")
		if len(cols) < tsvColumns || cols[0] != wordLevel {
			continue
		}
		conf, err := strconv.ParseFloat(cols[tsvConf], 64)
		text := strings.TrimSpace(cols[tsvText])
		if err != nil || conf < 0 || text == "" {
			continue
		}

		key := strings.Join(cols[1:5], ".")
		if key != lineKey {
			flush()
			lineKey = key
		}
		current = append(current, text)
		sum += conf
		words++
	}
	flush()

	res := Result{Text: strings.Join(lines, "\n")}
	if words > 0 {
		res.Confidence = sum / float64(words)
	}
	return res
}
