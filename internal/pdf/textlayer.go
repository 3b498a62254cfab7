package pdf

import (
	"context"
	"strings"

	lpdf "github.com/ledongthuc/pdf"
	"github.com/rotisserie/eris"
)

// TextLayer reads embedded (selectable) text from PDF pages.
type TextLayer struct{}

// NewTextLayer creates a TextLayer.
func NewTextLayer() *TextLayer { return &TextLayer{} }

// PageText returns the text layer of the zero-based page, one line per text
// row. Pages without a text layer yield "".
func (t *TextLayer) PageText(ctx context.Context, doc *Document, pageIndex int) (text string, err error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	r, err := doc.textReader()
	if err != nil {
		return "", err
	}
	if pageIndex < 0 || pageIndex >= r.NumPage() {
		return "", eris.Errorf("pdf: page %d out of range (%d pages)", pageIndex, r.NumPage())
	}

	// The reader panics on some malformed content streams.
	defer func() {
		if rec := recover(); rec != nil {
			text, err = "", eris.Errorf("pdf: read text of page %d: %v", pageIndex, rec)
		}
	}()

	page := r.Page(pageIndex + 1)
	if page.V.IsNull() {
		return "", nil
	}

	rows, rowErr := page.GetTextByRow()
	if rowErr != nil {
		plain, plainErr := page.GetPlainText(nil)
		if plainErr != nil {
			return "", eris.Wrapf(plainErr, "pdf: read text of page %d", pageIndex)
		}
		return plain, nil
	}
	return joinRows(rows), nil
}

func joinRows(rows lpdf.Rows) string {
	var b strings.Builder
	for _, row := range rows {
		words := make([]string, 0, len(row.Content))
		for _, w := range row.Content {
			if s := strings.TrimSpace(w.S); s != "" {
				words = append(words, s)
			}
		}
		if len(words) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(strings.Join(words, " "))
	}
	return b.String()
}
