package fetcher

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// XLSXOptions selects the worksheet to stream. Catalog workbooks carry the
// data on a named sheet; the first streamed row is the header.
type XLSXOptions struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
}

// StreamXLSX sends a worksheet's rows down a channel, mirroring StreamCSV so
// the import loop handles both formats the same way. The caller must drain
// the row channel; both channels close when the sheet ends.
func StreamXLSX(ctx context.Context, path string, opts XLSXOptions) (<-chan []string, <-chan error) {
	rows := make(chan []string, streamRowBuffer)
	errs := make(chan error, 1)

	go func() {
		defer close(rows)
		defer close(errs)

		f, err := xlsx.OpenFile(path)
		if err != nil {
			errs <- eris.Wrap(err, "fetcher: open xlsx")
			return
		}

		sheet, err := pickSheet(f, opts)
		if err != nil {
			errs <- err
			return
		}

		for _, row := range sheet.Rows {
			select {
			case rows <- cellValues(row):
			case <-ctx.Done():
				errs <- eris.Wrap(ctx.Err(), "fetcher: xlsx stream cancelled")
				return
			}
		}
	}()

	return rows, errs
}

func pickSheet(f *xlsx.File, opts XLSXOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("fetcher: xlsx sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}
	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("fetcher: xlsx sheet index %d out of range (%d sheets)", opts.SheetIndex, len(f.Sheets))
	}
	return f.Sheets[opts.SheetIndex], nil
}

func cellValues(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for i, cell := range row.Cells {
		cells[i] = cell.String()
	}
	return cells
}
