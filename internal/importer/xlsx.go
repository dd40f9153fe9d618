package importer

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// ImportXLSX loads the first sheet of an XLSX workbook into site siteID.
// Row one is the header; the column semantics match ImportCSV.
func (im *Importer) ImportXLSX(ctx context.Context, siteID, path string) (*Report, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "importer: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("importer: workbook has no sheets")
	}
	sheet := f.Sheets[0]
	if len(sheet.Rows) == 0 {
		return nil, eris.New("importer: sheet is empty")
	}

	header := rowToStrings(sheet.Rows[0])
	report := &Report{}
	for i, row := range sheet.Rows[1:] {
		if ctx.Err() != nil {
			return report, eris.Wrap(ctx.Err(), "importer: context cancelled")
		}
		im.importRow(ctx, siteID, header, rowToStrings(row), i+2, report)
	}
	return report, nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for i, cell := range row.Cells {
		cells[i] = cell.String()
	}
	return cells
}
