package document

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/witanlabs/witan-assist/internal"
	"github.com/xuri/excelize/v2"
)

// structuredRefRe matches "[@Col]" and "[@[Col Name]]" this-row references.
var structuredRefRe = regexp.MustCompile(`\[@\[?([^\[\]]+)\]?\]`)

// Workbook is a Document over an .xlsx file. The primary table is the first
// table defined on the active sheet (or the sheet chosen with WithSheet).
type Workbook struct {
	f      *excelize.File
	path   string
	sheet  string
	logger *slog.Logger
	charts []*workbookChart
}

// Option configures a Workbook.
type Option func(*Workbook)

// WithSheet pins the sheet that hosts the primary table.
func WithSheet(name string) Option {
	return func(w *Workbook) { w.sheet = name }
}

// WithLogger sets the logger used for document operations.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Workbook) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// Open opens an .xlsx file. Sync saves back to the same path.
func Open(path string, opts ...Option) (*Workbook, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	return NewWorkbook(f, path, opts...), nil
}

// NewWorkbook wraps an open excelize file. An empty path makes Sync commit
// staged changes without saving.
func NewWorkbook(f *excelize.File, path string, opts ...Option) *Workbook {
	w := &Workbook{f: f, path: path, logger: slog.Default()}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// File exposes the underlying excelize file.
func (w *Workbook) File() *excelize.File { return w.f }

// Close releases the underlying file.
func (w *Workbook) Close() error { return w.f.Close() }

// tableInfo locates the primary table.
type tableInfo struct {
	sheet  string
	table  excelize.Table
	header int // header row
	first  int // first data row
	last   int // last data row
	col0   int
	colN   int
}

func (w *Workbook) tableSheet() string {
	if w.sheet != "" {
		return w.sheet
	}
	return w.f.GetSheetName(w.f.GetActiveSheetIndex())
}

func (w *Workbook) primaryTable() (*tableInfo, error) {
	sheet := w.tableSheet()
	tables, err := w.f.GetTables(sheet)
	if err != nil {
		return nil, fmt.Errorf("listing tables on %q: %w", sheet, err)
	}
	if len(tables) == 0 {
		return nil, fmt.Errorf("%w (sheet %q)", ErrNoTable, sheet)
	}
	t := tables[0]
	_, sr, sc, er, ec, err := internal.ParseRange(t.Range)
	if err != nil {
		return nil, fmt.Errorf("table %q: %w", t.Name, err)
	}
	return &tableInfo{sheet: sheet, table: t, header: sr, first: sr + 1, last: er, col0: sc, colN: ec}, nil
}

func (w *Workbook) rawValue(sheet string, col, row int) (string, error) {
	return w.f.GetCellValue(sheet, internal.CellName(col, row), excelize.Options{RawCellValue: true})
}

func (w *Workbook) headerOf(t *tableInfo) ([]string, error) {
	header := make([]string, 0, t.colN-t.col0+1)
	for c := t.col0; c <= t.colN; c++ {
		v, err := w.rawValue(t.sheet, c, t.header)
		if err != nil {
			return nil, err
		}
		header = append(header, v)
	}
	return header, nil
}

// Snapshot implements Document.
func (w *Workbook) Snapshot(ctx context.Context) (*TableSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := w.primaryTable()
	if err != nil {
		return nil, err
	}
	header, err := w.headerOf(t)
	if err != nil {
		return nil, err
	}
	snap := &TableSnapshot{Header: header}
	for r := t.first; r <= t.last; r++ {
		row := make([]any, 0, len(header))
		for c := t.col0; c <= t.colN; c++ {
			v, err := w.rawValue(t.sheet, c, r)
			if err != nil {
				return nil, err
			}
			row = append(row, v)
		}
		snap.Rows = append(snap.Rows, row)
	}
	return snap, nil
}

// Columns implements Document.
func (w *Workbook) Columns(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := w.primaryTable()
	if err != nil {
		return nil, err
	}
	return w.headerOf(t)
}

// ColumnValues implements Document.
func (w *Workbook) ColumnValues(ctx context.Context, name string) ([]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := w.primaryTable()
	if err != nil {
		return nil, err
	}
	header, err := w.headerOf(t)
	if err != nil {
		return nil, err
	}
	idx := FindColumn(header, name, false)
	if idx < 0 {
		return nil, &MissingColumnError{Names: []string{name}}
	}
	values := make([]any, 0, t.last-t.first+1)
	for r := t.first; r <= t.last; r++ {
		v, err := w.rawValue(t.sheet, t.col0+idx, r)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

// storedCell is a cell lifted out of the sheet so rows can be reordered.
type storedCell struct {
	raw     string
	typ     excelize.CellType
	formula string
}

func (c storedCell) isText() bool {
	return c.typ == excelize.CellTypeSharedString || c.typ == excelize.CellTypeInlineString
}

func (c storedCell) key() any {
	if c.isText() {
		return c.raw
	}
	if f, ok := internal.ToNumber(c.raw); ok {
		return f
	}
	return c.raw
}

// SortTable implements Document. Values keep their type and formulas move
// with their row.
func (w *Workbook) SortTable(ctx context.Context, column int, ascending bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t, err := w.primaryTable()
	if err != nil {
		return err
	}
	width := t.colN - t.col0 + 1
	if column < 0 || column >= width {
		return fmt.Errorf("sort column %d out of range (table has %d columns)", column, width)
	}

	var rows [][]storedCell
	for r := t.first; r <= t.last; r++ {
		row := make([]storedCell, width)
		for i := 0; i < width; i++ {
			cell := internal.CellName(t.col0+i, r)
			raw, err := w.f.GetCellValue(t.sheet, cell, excelize.Options{RawCellValue: true})
			if err != nil {
				return err
			}
			typ, err := w.f.GetCellType(t.sheet, cell)
			if err != nil {
				return err
			}
			formula, err := w.f.GetCellFormula(t.sheet, cell)
			if err != nil {
				return err
			}
			row[i] = storedCell{raw: raw, typ: typ, formula: formula}
		}
		rows = append(rows, row)
	}

	SortRows(rows, func(row []storedCell) any { return row[column].key() }, ascending)

	for i, row := range rows {
		r := t.first + i
		for j, c := range row {
			if err := w.writeStored(t.sheet, internal.CellName(t.col0+j, r), c); err != nil {
				return err
			}
		}
	}
	w.logger.Debug("Sorted table", slog.String("table", t.table.Name), slog.Int("column", column), slog.Bool("ascending", ascending))
	return nil
}

func (w *Workbook) writeStored(sheet, cell string, c storedCell) error {
	if c.formula != "" {
		return w.f.SetCellFormula(sheet, cell, c.formula)
	}
	// Clear any formula left by the row that used to live here.
	if err := w.f.SetCellFormula(sheet, cell, ""); err != nil {
		return err
	}
	if c.raw == "" {
		return w.f.SetCellValue(sheet, cell, nil)
	}
	switch {
	case c.typ == excelize.CellTypeBool:
		return w.f.SetCellBool(sheet, cell, c.raw == "1" || strings.EqualFold(c.raw, "true"))
	case c.isText():
		return w.f.SetCellStr(sheet, cell, c.raw)
	}
	if f, ok := internal.ToNumber(c.raw); ok {
		return w.f.SetCellFloat(sheet, cell, f, -1, 64)
	}
	return w.f.SetCellStr(sheet, cell, c.raw)
}

// SheetExists implements Document.
func (w *Workbook) SheetExists(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	idx, err := w.f.GetSheetIndex(name)
	if err != nil {
		return false, err
	}
	return idx >= 0, nil
}

// AddSheet implements Document.
func (w *Workbook) AddSheet(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := w.f.NewSheet(name); err != nil {
		return fmt.Errorf("adding sheet %q: %w", name, err)
	}
	return nil
}

// DeleteSheet implements Document.
func (w *Workbook) DeleteSheet(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := w.f.DeleteSheet(name); err != nil {
		return fmt.Errorf("deleting sheet %q: %w", name, err)
	}
	return nil
}

// HideSheet implements Document.
func (w *Workbook) HideSheet(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := w.f.SetSheetVisible(name, false); err != nil {
		return fmt.Errorf("hiding sheet %q: %w", name, err)
	}
	return nil
}

// WriteRange implements Document.
func (w *Workbook) WriteRange(ctx context.Context, sheet, topLeft string, rows [][]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	col, row, err := internal.ParseCell(topLeft)
	if err != nil {
		return err
	}
	for i, values := range rows {
		line := make([]interface{}, len(values))
		copy(line, values)
		if err := w.f.SetSheetRow(sheet, internal.CellName(col, row+i), &line); err != nil {
			return fmt.Errorf("writing row %d of %q: %w", row+i, sheet, err)
		}
	}
	return nil
}

// AddColumn implements Document by widening the table one column to the right.
func (w *Workbook) AddColumn(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t, err := w.primaryTable()
	if err != nil {
		return err
	}
	newCol := t.colN + 1
	if err := w.f.SetCellStr(t.sheet, internal.CellName(newCol, t.header), name); err != nil {
		return err
	}
	if err := w.f.DeleteTable(t.table.Name); err != nil {
		return fmt.Errorf("resizing table %q: %w", t.table.Name, err)
	}
	resized := t.table
	resized.Range = internal.FormatAddress("", t.header, t.col0, t.last, newCol)
	if err := w.f.AddTable(t.sheet, &resized); err != nil {
		return fmt.Errorf("resizing table %q: %w", t.table.Name, err)
	}
	return nil
}

// SetColumnFormula implements Document. Excel stores this-row references in
// their long form, so "[@Sales]" is written as "Table1[[#This Row],[Sales]]"
// on every data row.
func (w *Workbook) SetColumnFormula(ctx context.Context, column, formula string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t, err := w.primaryTable()
	if err != nil {
		return err
	}
	header, err := w.headerOf(t)
	if err != nil {
		return err
	}
	idx := FindColumn(header, column, false)
	if idx < 0 {
		return &MissingColumnError{Names: []string{column}}
	}
	expanded := ExpandStructuredRefs(t.table.Name, formula)
	for r := t.first; r <= t.last; r++ {
		if err := w.f.SetCellFormula(t.sheet, internal.CellName(t.col0+idx, r), expanded); err != nil {
			return fmt.Errorf("setting formula in row %d: %w", r, err)
		}
	}
	return nil
}

// ExpandStructuredRefs rewrites this-row references against table and
// strips the leading '='.
func ExpandStructuredRefs(table, formula string) string {
	f := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(formula), "="))
	return structuredRefRe.ReplaceAllStringFunc(f, func(m string) string {
		name := structuredRefRe.FindStringSubmatch(m)[1]
		return table + "[[#This Row],[" + strings.TrimSpace(name) + "]]"
	})
}

// Sync implements Document: staged charts are materialised and the file is
// saved when it has a path.
func (w *Workbook) Sync(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, c := range w.charts {
		if c.committed || c.deleted {
			continue
		}
		if err := c.commit(); err != nil {
			return err
		}
	}
	if w.path == "" {
		return nil
	}
	if err := w.f.SaveAs(w.path); err != nil {
		return fmt.Errorf("saving workbook: %w", err)
	}
	return nil
}
