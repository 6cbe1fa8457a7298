// Package preview renders a non-destructive view of what an action would do.
//
// Every function here is read-only. Build reads a fresh snapshot of the
// document for each call; nothing is cached between previews.
package preview

import (
	"context"
	"fmt"

	"github.com/witanlabs/witan-assist/action"
	"github.com/witanlabs/witan-assist/document"
	"github.com/witanlabs/witan-assist/internal"
)

// Payload is one of TablePreview, ScatterPreview or FormulaPreview.
type Payload interface {
	// Kind names the payload for JSON output.
	Kind() string
	isPayload()
}

// TablePreview shows table rows as they are.
type TablePreview struct {
	Header []string `json:"header"`
	Rows   [][]any  `json:"rows"`
}

// Point is one scatter point.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ScatterPreview lists the points a scatter chart would plot.
type ScatterPreview struct {
	XLabel string  `json:"x_label"`
	YLabel string  `json:"y_label"`
	Points []Point `json:"points"`
}

// FormulaPreview describes a computed column.
type FormulaPreview struct {
	Column     string `json:"column"`
	Expression string `json:"expression"`
	Formula    string `json:"formula"`
}

func (TablePreview) Kind() string   { return "table" }
func (ScatterPreview) Kind() string { return "scatter" }
func (FormulaPreview) Kind() string { return "formula" }

func (TablePreview) isPayload()   {}
func (ScatterPreview) isPayload() {}
func (FormulaPreview) isPayload() {}

// Sort previews a sort by showing the table unsorted. The order the sort
// would produce is not simulated.
func Sort(snap *document.TableSnapshot, a action.SortBySales) (*TablePreview, error) {
	if err := document.RequireColumns(snap.Header, false, a.Column); err != nil {
		return nil, err
	}
	rows := make([][]any, len(snap.Rows))
	for i, r := range snap.Rows {
		rows[i] = append([]any(nil), r...)
	}
	return &TablePreview{Header: append([]string(nil), snap.Header...), Rows: rows}, nil
}

// Scatter pairs the x and y column of every row. Cells that are not numbers
// plot as 0; no row is dropped.
func Scatter(snap *document.TableSnapshot, a action.ScatterPlot) (*ScatterPreview, error) {
	if err := document.RequireColumns(snap.Header, false, a.XColumn, a.YColumn); err != nil {
		return nil, err
	}
	xi, yi := snap.ColumnIndex(a.XColumn), snap.ColumnIndex(a.YColumn)
	points := make([]Point, 0, len(snap.Rows))
	for _, r := range snap.Rows {
		points = append(points, Point{X: internal.ParseNumber(cell(r, xi)), Y: internal.ParseNumber(cell(r, yi))})
	}
	return &ScatterPreview{XLabel: a.XColumn, YLabel: a.YColumn, Points: points}, nil
}

// ComputedColumn describes the column an insert would add. It does not
// depend on document content.
func ComputedColumn(a action.InsertComputedColumn) *FormulaPreview {
	return &FormulaPreview{
		Column:     a.Name,
		Expression: a.Formula,
		Formula:    a.Structured,
	}
}

// Build reads what the action needs from doc and renders its preview.
// Unsupported actions have no preview and return nil.
func Build(ctx context.Context, doc document.Document, a action.Action) (Payload, error) {
	switch a := a.(type) {
	case action.SortBySales:
		snap, err := doc.Snapshot(ctx)
		if err != nil {
			return nil, fmt.Errorf("reading table: %w", err)
		}
		p, err := Sort(snap, a)
		if err != nil {
			return nil, err
		}
		return p, nil
	case action.ScatterPlot:
		snap, err := doc.Snapshot(ctx)
		if err != nil {
			return nil, fmt.Errorf("reading table: %w", err)
		}
		p, err := Scatter(snap, a)
		if err != nil {
			return nil, err
		}
		return p, nil
	case action.InsertComputedColumn:
		return ComputedColumn(a), nil
	}
	return nil, nil
}

func cell(row []any, i int) any {
	if i < len(row) {
		return row[i]
	}
	return nil
}
