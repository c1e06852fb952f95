// Package table maintains the persisted collection of ranked grants.
//
// Storage is a flat CSV file read back by column name, not position, so a
// column added or reordered between versions does not corrupt old files.
// Every mutation is written through to disk before it reports success;
// writes go to a temp file renamed into place so an abort mid-write leaves
// the previous file intact.
package table

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/ctrise/grantmatch/internal/filter"
	"github.com/ctrise/grantmatch/internal/model"
	"github.com/ctrise/grantmatch/internal/rank"
)

// Columns defines the storage and export column order.
var Columns = []string{
	"Title",
	"Match%",
	"Feasibility",
	"Amount",
	"Deadline",
	"Sponsor",
	"Summary",
	"URL",
	"Rationale",
	"Verified",
	"AddedAt",
}

// Table is the ordered collection of ranked grants. Rows keep insertion
// order internally for audit; Ranked returns the display order. Not safe
// for concurrent use; one action runs at a time.
type Table struct {
	path string
	rows []model.RankedGrant
}

// Load reads the table from path. A missing file yields an empty table.
func Load(path string) (*Table, error) {
	t := &Table{path: path}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return t, nil
	}
	if err != nil {
		return nil, eris.Wrapf(model.ErrPersistence, "table: open %s: %v", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err == io.EOF {
		return t, nil
	}
	if err != nil {
		return nil, eris.Wrapf(model.ErrPersistence, "table: read header: %v", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}

	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(model.ErrPersistence, "table: read row: %v", err)
		}
		t.rows = append(t.rows, fromRecord(record, col))
	}
	return t, nil
}

// Path returns the storage file path.
func (t *Table) Path() string { return t.path }

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Rows returns the rows in insertion order.
func (t *Table) Rows() []model.RankedGrant {
	out := make([]model.RankedGrant, len(t.rows))
	copy(out, t.rows)
	return out
}

// Ranked returns the rows in display order: score descending, stable,
// Unknown rows last.
func (t *Table) Ranked() []model.RankedGrant {
	out := t.Rows()
	rank.Sort(out)
	return out
}

// Find returns the row whose normalized title matches.
func (t *Table) Find(title string) (model.RankedGrant, bool) {
	key := filter.TitleKey(title)
	for _, g := range t.rows {
		if filter.TitleKey(g.Title) == key {
			return g, true
		}
	}
	return model.RankedGrant{}, false
}

// Append adds a row and persists. AddedAt is stamped when unset.
func (t *Table) Append(g model.RankedGrant) error {
	if g.AddedAt.IsZero() {
		g.AddedAt = time.Now().UTC()
	}
	t.rows = append(t.rows, g)
	if err := t.persist(); err != nil {
		t.rows = t.rows[:len(t.rows)-1]
		return err
	}
	return nil
}

// EditableFields lists the row fields Edit accepts.
var EditableFields = []string{"title", "sponsor", "amount", "deadline", "summary", "url", "rationale"}

// Edit updates one field of the row matching title and persists. Moving a
// row onto another row's normalized title or URL is rejected to keep the
// uniqueness invariant.
func (t *Table) Edit(title, fieldName, value string) error {
	idx := t.indexOf(title)
	if idx < 0 {
		return eris.Errorf("table: no row titled %q", title)
	}

	prev := t.rows[idx]
	row := &t.rows[idx]
	switch fieldName {
	case "title":
		for i, g := range t.rows {
			if i != idx && filter.TitleKey(g.Title) == filter.TitleKey(value) {
				return eris.Wrapf(model.ErrDuplicate, "table: title %q", value)
			}
		}
		row.Title = value
	case "sponsor":
		row.Sponsor = value
	case "amount":
		row.Amount = value
	case "deadline":
		row.Deadline = value
	case "summary":
		row.Summary = value
	case "url":
		if key := filter.URLKey(value); key != "" {
			for i, g := range t.rows {
				if i != idx && filter.URLKey(g.SourceURL) == key {
					return eris.Wrapf(model.ErrDuplicate, "table: url %q", value)
				}
			}
		}
		row.SourceURL = value
	case "rationale":
		row.Rationale = value
	default:
		return eris.Errorf("table: unknown field %q", fieldName)
	}

	if err := t.persist(); err != nil {
		t.rows[idx] = prev
		return err
	}
	return nil
}

// Delete removes the row matching title and persists.
func (t *Table) Delete(title string) error {
	idx := t.indexOf(title)
	if idx < 0 {
		return eris.Errorf("table: no row titled %q", title)
	}

	removed := t.rows[idx]
	t.rows = append(t.rows[:idx], t.rows[idx+1:]...)
	if err := t.persist(); err != nil {
		t.rows = append(t.rows[:idx], append([]model.RankedGrant{removed}, t.rows[idx:]...)...)
		return err
	}
	return nil
}

func (t *Table) indexOf(title string) int {
	key := filter.TitleKey(title)
	for i, g := range t.rows {
		if filter.TitleKey(g.Title) == key {
			return i
		}
	}
	return -1
}

// persist writes all rows through to disk via temp file + rename.
func (t *Table) persist() error {
	if dir := filepath.Dir(t.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(model.ErrPersistence, "table: mkdir %s: %v", dir, err)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(t.path), ".grants-*.csv")
	if err != nil {
		return eris.Wrapf(model.ErrPersistence, "table: create temp: %v", err)
	}
	tmpName := tmp.Name()

	if err := WriteCSV(tmp, t.rows); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return eris.Wrapf(model.ErrPersistence, "table: close temp: %v", err)
	}
	if err := os.Rename(tmpName, t.path); err != nil {
		os.Remove(tmpName)
		return eris.Wrapf(model.ErrPersistence, "table: rename: %v", err)
	}
	return nil
}

// WriteCSV writes rows (in the given order) to w with the canonical header.
// Used both for storage and for full-fidelity CSV export.
func WriteCSV(w io.Writer, rows []model.RankedGrant) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return eris.Wrapf(model.ErrPersistence, "table: write header: %v", err)
	}
	for _, g := range rows {
		if err := cw.Write(toRecord(g)); err != nil {
			return eris.Wrapf(model.ErrPersistence, "table: write row: %v", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return eris.Wrapf(model.ErrPersistence, "table: flush: %v", err)
	}
	return nil
}

// FormatScore renders a match score the way the table stores it.
func FormatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', 1, 64)
}

func toRecord(g model.RankedGrant) []string {
	return []string{
		g.Title,
		FormatScore(g.MatchScore),
		string(g.Feasibility),
		g.Amount,
		g.Deadline,
		g.Sponsor,
		g.Summary,
		g.SourceURL,
		g.Rationale,
		strconv.FormatBool(g.Verified),
		g.AddedAt.UTC().Format(time.RFC3339),
	}
}

func fromRecord(record []string, col map[string]int) model.RankedGrant {
	get := func(name string) string {
		i, ok := col[name]
		if !ok || i >= len(record) {
			return ""
		}
		return record[i]
	}

	score, _ := strconv.ParseFloat(get("Match%"), 64)
	verified, _ := strconv.ParseBool(get("Verified"))
	addedAt, _ := time.Parse(time.RFC3339, get("AddedAt"))

	feas := model.Feasibility(get("Feasibility"))
	switch feas {
	case model.FeasibilityHigh, model.FeasibilityMedium, model.FeasibilityLow, model.FeasibilityUnknown:
	default:
		feas = model.FeasibilityUnknown
	}

	return model.RankedGrant{
		GrantCandidate: model.GrantCandidate{
			Title:     get("Title"),
			Sponsor:   get("Sponsor"),
			Amount:    get("Amount"),
			Deadline:  get("Deadline"),
			Summary:   get("Summary"),
			SourceURL: get("URL"),
			Verified:  verified,
		},
		MatchScore:  score,
		Feasibility: feas,
		Rationale:   get("Rationale"),
		AddedAt:     addedAt,
	}
}
