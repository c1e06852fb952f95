// Package export renders the ranked table into the downloadable formats:
// CSV, XLSX, PDF, and a plain-text report for a single grant.
package export

import (
	"io"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/ctrise/grantmatch/internal/model"
	"github.com/ctrise/grantmatch/internal/table"
)

// Format names an export encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
)

// Formats lists the supported encodings in display order.
var Formats = []Format{FormatCSV, FormatXLSX, FormatPDF}

// ParseFormat validates a user-supplied format name against Formats.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	names := make([]string, len(Formats))
	for i, known := range Formats {
		names[i] = string(known)
	}
	return "", eris.Errorf("export: unsupported format %q (supported: %s)", s, strings.Join(names, ", "))
}

// Write renders rows to w in the given format.
func Write(w io.Writer, format Format, rows []model.RankedGrant) error {
	switch format {
	case FormatCSV:
		return CSV(w, rows)
	case FormatXLSX:
		return XLSX(w, rows)
	case FormatPDF:
		return PDF(w, rows)
	default:
		return eris.Errorf("export: unsupported format %q", format)
	}
}

// CSV writes rows using the same encoding the table persists with, so an
// export of an untouched table is byte-identical to the stored file.
func CSV(w io.Writer, rows []model.RankedGrant) error {
	return table.WriteCSV(w, rows)
}
