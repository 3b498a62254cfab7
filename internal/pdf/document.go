// Package pdf wraps a PDF byte buffer with the text-layer reader, page
// counter, rasterizer and image preprocessing used by ingestion.
package pdf

import (
	"bytes"
	"sync"

	"github.com/google/uuid"
	lpdf "github.com/ledongthuc/pdf"
	"github.com/rotisserie/eris"
)

// Document is an in-memory PDF. It is safe for concurrent use; the parsed
// reader is created on first use and shared.
type Document struct {
	ID   string
	Name string

	data []byte

	once   sync.Once
	reader *lpdf.Reader
	err    error
}

// NewDocument wraps raw PDF bytes. A random ID is assigned.
func NewDocument(name string, data []byte) (*Document, error) {
	if len(data) == 0 {
		return nil, eris.New("pdf: empty document")
	}
	if !bytes.HasPrefix(bytes.TrimLeft(data[:min(len(data), 1024)], "\x00\t\r\n "), []byte("%PDF-")) {
		return nil, eris.Errorf("pdf: %q is not a PDF", name)
	}
	return &Document{
		ID:   uuid.NewString(),
		Name: name,
		data: data,
	}, nil
}

// Bytes returns the raw document. Callers must not modify it.
func (d *Document) Bytes() []byte { return d.data }

// Size returns the document size in bytes.
func (d *Document) Size() int { return len(d.data) }

func (d *Document) textReader() (*lpdf.Reader, error) {
	d.once.Do(func() {
		defer func() {
			if r := recover(); r != nil {
				d.err = eris.Errorf("pdf: parse %s: %v", d.Name, r)
			}
		}()
		d.reader, d.err = lpdf.NewReader(bytes.NewReader(d.data), int64(len(d.data)))
		if d.err != nil {
			d.err = eris.Wrapf(d.err, "pdf: parse %s", d.Name)
		}
	})
	return d.reader, d.err
}
