// Package document defines the spreadsheet surface the assistant reads and
// mutates, and provides an .xlsx implementation backed by excelize.
//
// A Document is a single shared mutable resource. It is passed explicitly
// into every preview and execution call and is never safe for overlapping
// use; callers serialize access.
package document

import (
	"context"
	"strings"

	"github.com/witanlabs/witan-assist/internal"
)

// TableSnapshot is a read-only copy of the primary table. It is rebuilt on
// every read and never cached.
type TableSnapshot struct {
	Header []string `json:"header"`
	Rows   [][]any  `json:"rows"`
}

// ColumnIndex returns the index of the header equal to name, or -1.
func (s *TableSnapshot) ColumnIndex(name string) int {
	return FindColumn(s.Header, name, false)
}

// FindColumn locates name in header. With fold set the comparison is
// case-insensitive and ignores surrounding whitespace.
func FindColumn(header []string, name string, fold bool) int {
	for i, h := range header {
		if fold {
			if strings.EqualFold(strings.TrimSpace(h), strings.TrimSpace(name)) {
				return i
			}
			continue
		}
		if h == name {
			return i
		}
	}
	return -1
}

// ChartType selects the chart kind created by AddChart.
type ChartType string

const (
	ChartScatter ChartType = "xyscatter"
)

// LegendPosition places a chart legend.
type LegendPosition string

const (
	LegendRight  LegendPosition = "right"
	LegendLeft   LegendPosition = "left"
	LegendTop    LegendPosition = "top"
	LegendBottom LegendPosition = "bottom"
	LegendNone   LegendPosition = "none"
)

// Range is a rectangular block of cells on a named sheet, 1-indexed.
type Range struct {
	Sheet    string
	StartRow int
	StartCol int
	EndRow   int
	EndCol   int
}

// ParseRange parses "Sheet!A1:B2" into a Range.
func ParseRange(address string) (Range, error) {
	sheet, sr, sc, er, ec, err := internal.ParseRange(address)
	if err != nil {
		return Range{}, err
	}
	return Range{Sheet: sheet, StartRow: sr, StartCol: sc, EndRow: er, EndCol: ec}, nil
}

// ColumnRange returns rows first..last of a single column.
func ColumnRange(sheet string, col, first, last int) Range {
	return Range{Sheet: sheet, StartRow: first, StartCol: col, EndRow: last, EndCol: col}
}

// String formats r as "Sheet!A1:B2".
func (r Range) String() string {
	return internal.FormatAddress(r.Sheet, r.StartRow, r.StartCol, r.EndRow, r.EndCol)
}

// Absolute formats r as "Sheet!$A$1:$B$2".
func (r Range) Absolute() string {
	return internal.FormatAbsolute(r.Sheet, r.StartRow, r.StartCol, r.EndRow, r.EndCol)
}

// RowCount is the number of rows r spans.
func (r Range) RowCount() int { return r.EndRow - r.StartRow + 1 }

// Document is the live spreadsheet. Every method is a suspension point.
// Mutations may be staged until Sync.
type Document interface {
	// Snapshot reads the primary table's header and data rows.
	Snapshot(ctx context.Context) (*TableSnapshot, error)
	// Columns reads the primary table's column names in order.
	Columns(ctx context.Context) ([]string, error)
	// ColumnValues reads the data body of the column whose name is exactly name.
	ColumnValues(ctx context.Context, name string) ([]any, error)
	// SortTable sorts the primary table's data rows in place, stably, keyed
	// on the column at index column.
	SortTable(ctx context.Context, column int, ascending bool) error

	SheetExists(ctx context.Context, name string) (bool, error)
	AddSheet(ctx context.Context, name string) error
	DeleteSheet(ctx context.Context, name string) error
	HideSheet(ctx context.Context, name string) error
	// WriteRange writes rows starting at the topLeft cell of sheet.
	WriteRange(ctx context.Context, sheet, topLeft string, rows [][]any) error

	// AddChart creates a chart on the primary table's sheet, initially bound
	// to placeholder.
	AddChart(ctx context.Context, typ ChartType, placeholder Range) (Chart, error)

	// AddColumn appends a named column to the primary table.
	AddColumn(ctx context.Context, name string) error
	// SetColumnFormula assigns one structured formula to the whole data body
	// of a column; the host fills it down every row.
	SetColumnFormula(ctx context.Context, column, formula string) error

	// Sync commits staged changes.
	Sync(ctx context.Context) error
}

// Chart is a chart created by Document.AddChart.
type Chart interface {
	// AddSeries adds a series with x values and y values.
	AddSeries(ctx context.Context, name string, x, y Range) error
	SeriesCount(ctx context.Context) (int, error)
	// DeleteSeries removes the series at index. ErrNoSeries when absent.
	DeleteSeries(ctx context.Context, index int) error
	SetTitle(ctx context.Context, title string) error
	SetLegendPosition(ctx context.Context, pos LegendPosition) error
	// SetPosition anchors the chart between two cells of its sheet.
	SetPosition(ctx context.Context, from, to string) error
	// Delete removes the chart from the document.
	Delete(ctx context.Context) error
}
