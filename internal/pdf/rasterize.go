package pdf

import (
	"bytes"
	"context"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rotisserie/eris"
)

// Render scale bounds. The scale multiplies the 72 DPI PDF user space.
const (
	DefaultScale = 3.5
	MinScale     = 2.0
	MaxScale     = 6.0
)

// ClampScale keeps a render scale inside [MinScale, MaxScale]; zero or
// negative values select DefaultScale.
func ClampScale(scale float64) float64 {
	switch {
	case scale <= 0:
		return DefaultScale
	case scale < MinScale:
		return MinScale
	case scale > MaxScale:
		return MaxScale
	default:
		return scale
	}
}

// Rasterizer counts pages and renders them to PNG with poppler's pdftoppm.
type Rasterizer struct {
	binPath string
	runner  Runner
}

// NewRasterizer creates a Rasterizer. If binPath is empty, "pdftoppm" is used.
// A nil runner selects ExecRunner.
func NewRasterizer(binPath string, runner Runner) *Rasterizer {
	if binPath == "" {
		binPath = "pdftoppm"
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Rasterizer{binPath: binPath, runner: runner}
}

// PageCount returns the number of pages. pdfcpu is tried first; documents it
// rejects fall back to the text-layer reader.
func (r *Rasterizer) PageCount(ctx context.Context, doc *Document) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if n, err := pdfcpuPageCount(doc); err == nil {
		return n, nil
	}
	tr, err := doc.textReader()
	if err != nil {
		return 0, eris.Wrap(err, "pdf: page count")
	}
	return tr.NumPage(), nil
}

func pdfcpuPageCount(doc *Document) (n int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = eris.Errorf("pdf: pdfcpu: %v", rec)
		}
	}()
	conf := model.NewDefaultConfiguration()
	pctx, err := api.ReadValidateAndOptimize(bytes.NewReader(doc.Bytes()), conf)
	if err != nil {
		return 0, eris.Wrap(err, "pdf: pdfcpu read")
	}
	return pctx.PageCount, nil
}

// RenderPage renders the zero-based page to PNG at 72*scale DPI.
func (r *Rasterizer) RenderPage(ctx context.Context, doc *Document, pageIndex int, scale float64) ([]byte, error) {
	if pageIndex < 0 {
		return nil, eris.Errorf("pdf: invalid page index %d", pageIndex)
	}
	page := strconv.Itoa(pageIndex + 1)
	dpi := strconv.Itoa(int(72 * ClampScale(scale)))

	out, stderr, err := r.runner.Run(ctx, doc.Bytes(), r.binPath,
		"-f", page, "-l", page,
		"-r", dpi,
		"-png", "-singlefile",
		"-", "-",
	)
	if err != nil {
		return nil, eris.Wrapf(err, "pdf: render page %d of %s: %s", pageIndex, doc.Name, strings.TrimSpace(string(stderr)))
	}
	if len(out) == 0 {
		return nil, eris.Errorf("pdf: render page %d of %s: empty output", pageIndex, doc.Name)
	}
	return out, nil
}
