// Package export writes stored invoices to spreadsheet files.
package export

import (
	"io"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/invoice-cli/internal/model"
)

// SheetName is the name of the worksheet holding the invoice rows.
const SheetName = "Invoices"

// Header returns the column titles in output order.
func Header() []string {
	cols := []string{"ID", "File", "Source"}
	for _, name := range model.ScalarFields {
		cols = append(cols, name, name+" confidence", name+" level")
	}
	return append(cols, "Line items", "AI enhanced", "OCR confidence", "Created at")
}

// Build assembles a workbook with one row per invoice.
func Build(invoices []model.Invoice) (*xlsx.File, error) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(SheetName)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range Header() {
		header.AddCell().SetString(h)
	}

	for i := range invoices {
		writeRow(sheet.AddRow(), &invoices[i])
	}
	return f, nil
}

// Write encodes invoices as an xlsx workbook to w.
func Write(w io.Writer, invoices []model.Invoice) error {
	f, err := Build(invoices)
	if err != nil {
		return err
	}
	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "xlsx: write")
	}
	return nil
}

// Save writes invoices to an xlsx file at path.
func Save(path string, invoices []model.Invoice) error {
	f, err := Build(invoices)
	if err != nil {
		return err
	}
	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "xlsx: save %s", path)
	}
	return nil
}

func writeRow(row *xlsx.Row, inv *model.Invoice) {
	row.AddCell().SetString(inv.ID)
	row.AddCell().SetString(inv.FileName)
	row.AddCell().SetString(string(inv.Source))

	for _, name := range model.ScalarFields {
		f, _ := inv.Record.Field(name)
		row.AddCell().SetString(f.String())
		row.AddCell().SetInt(f.Confidence)
		row.AddCell().SetString(string(f.Level()))
	}

	row.AddCell().SetInt(len(inv.Record.LineItems))
	if inv.Record.IsAIEnhanced {
		row.AddCell().SetString("yes")
	} else {
		row.AddCell().SetString("no")
	}
	if oc := inv.Record.OCRConfidence; oc != nil {
		row.AddCell().SetFloat(*oc)
	} else {
		row.AddCell().SetString("")
	}
	row.AddCell().SetString(inv.CreatedAt.UTC().Format(time.RFC3339))
}

// ReadRows returns every row of the invoice sheet as strings, header first.
func ReadRows(path string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}
	sheet, ok := f.Sheet[SheetName]
	if !ok {
		return nil, eris.Errorf("xlsx: sheet %q not found", SheetName)
	}

	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return rows, nil
}
