package export

import (
	"io"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/rotisserie/eris"

	"github.com/ctrise/grantmatch/internal/model"
	"github.com/ctrise/grantmatch/internal/table"
)

// pdfColumn pairs a header with its width in millimetres. Widths sum to
// the printable span of a landscape A4 page.
type pdfColumn struct {
	name  string
	width float64
}

var pdfColumns = []pdfColumn{
	{"Title", 48},
	{"Match%", 16},
	{"Feasibility", 20},
	{"Amount", 24},
	{"Deadline", 22},
	{"Sponsor", 38},
	{"Summary", 68},
	{"Rationale", 41},
}

// PDF writes rows as a landscape table. The header row repeats on every
// page; long cell text is truncated with an ellipsis rather than wrapped,
// to keep one grant per line.
func PDF(w io.Writer, rows []model.RankedGrant) error {
	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 12, 10)
	pdf.SetAutoPageBreak(false, 12)

	writeHeader := func() {
		pdf.SetFont("Helvetica", "B", 8)
		pdf.SetFillColor(230, 230, 230)
		for _, col := range pdfColumns {
			pdf.CellFormat(col.width, 7, col.name, "1", 0, "L", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", 8)
	}

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 8, "Grant Opportunities", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 8)
	pdf.CellFormat(0, 5, "Generated "+time.Now().UTC().Format("2006-01-02 15:04 MST"), "", 1, "L", false, 0, "")
	pdf.Ln(2)
	writeHeader()

	_, pageH := pdf.GetPageSize()
	for _, g := range rows {
		if pdf.GetY()+6 > pageH-12 {
			pdf.AddPage()
			writeHeader()
		}
		cells := []string{
			g.Title,
			table.FormatScore(g.MatchScore),
			string(g.Feasibility),
			g.Amount,
			g.Deadline,
			g.Sponsor,
			g.Summary,
			g.Rationale,
		}
		for i, col := range pdfColumns {
			pdf.CellFormat(col.width, 6, truncateToWidth(pdf, cells[i], col.width-2), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	if err := pdf.Output(w); err != nil {
		return eris.Wrap(err, "export: render pdf")
	}
	return nil
}

func truncateToWidth(pdf *fpdf.Fpdf, s string, width float64) string {
	if pdf.GetStringWidth(s) <= width {
		return s
	}
	for len(s) > 0 && pdf.GetStringWidth(s+"...") > width {
		s = s[:len(s)-1]
	}
	return s + "..."
}
