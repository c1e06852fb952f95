package export

import (
	"io"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/ctrise/grantmatch/internal/model"
	"github.com/ctrise/grantmatch/internal/table"
)

// XLSX writes rows as a single-sheet workbook with a bold header row.
// Match% is written as a numeric cell so spreadsheet sorting works.
func XLSX(w io.Writer, rows []model.RankedGrant) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Grants")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	bold := xlsx.NewStyle()
	bold.Font.Bold = true
	bold.ApplyFont = true

	header := sheet.AddRow()
	for _, name := range table.Columns {
		cell := header.AddCell()
		cell.Value = name
		cell.SetStyle(bold)
	}

	for _, g := range rows {
		row := sheet.AddRow()
		row.AddCell().Value = g.Title
		row.AddCell().SetFloatWithFormat(g.MatchScore, "0.0")
		row.AddCell().Value = string(g.Feasibility)
		row.AddCell().Value = g.Amount
		row.AddCell().Value = g.Deadline
		row.AddCell().Value = g.Sponsor
		row.AddCell().Value = g.Summary
		row.AddCell().Value = g.SourceURL
		row.AddCell().Value = g.Rationale
		row.AddCell().Value = strconv.FormatBool(g.Verified)
		row.AddCell().Value = g.AddedAt.UTC().Format(time.RFC3339)
	}

	if err := file.Write(w); err != nil {
		return eris.Wrap(err, "export: write workbook")
	}
	return nil
}
