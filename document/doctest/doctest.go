// Package doctest provides an in-memory document.Document for tests.
package doctest

import (
	"context"
	"fmt"
	"sync"

	"github.com/witanlabs/witan-assist/document"
	"github.com/witanlabs/witan-assist/internal"
)

// Sheet is an extra worksheet created through the document API.
type Sheet struct {
	Name   string
	Hidden bool
	Cells  map[string]any
}

// Series is a chart series as bound by AddSeries.
type Series struct {
	Name string
	X    document.Range
	Y    document.Range
}

// Chart records every call made against a chart.
type Chart struct {
	doc         *Document
	Type        document.ChartType
	Placeholder document.Range
	Series      []Series
	Title       string
	Legend      document.LegendPosition
	From, To    string
	Deleted     bool
}

// Document is a single-table in-memory spreadsheet. Set Errors[op] to make
// the named operation fail.
type Document struct {
	mu sync.Mutex

	Header []string
	Rows   [][]any

	Sheets   map[string]*Sheet
	Charts   []*Chart
	Formulas map[string]string
	Syncs    int
	Calls    []string

	// Errors maps an operation name ("AddSeries", "HideSheet", ...) to the
	// error it returns.
	Errors map[string]error
	// Overrides replaces ColumnValues results by column name.
	Overrides map[string][]any
}

// New returns a document holding one table.
func New(header []string, rows ...[]any) *Document {
	return &Document{
		Header:   header,
		Rows:     rows,
		Sheets:   make(map[string]*Sheet),
		Formulas: make(map[string]string),
		Errors:   make(map[string]error),
	}
}

// Fail makes op return err from now on.
func (d *Document) Fail(op string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Errors[op] = err
}

// Mutations returns the calls that changed the document.
func (d *Document) Mutations() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for _, c := range d.Calls {
		switch c {
		case "Snapshot", "Columns", "ColumnValues", "SheetExists", "SeriesCount", "Sync":
			continue
		}
		out = append(out, c)
	}
	return out
}

// LiveCharts returns charts that were not deleted.
func (d *Document) LiveCharts() []*Chart {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*Chart
	for _, c := range d.Charts {
		if !c.Deleted {
			out = append(out, c)
		}
	}
	return out
}

func (d *Document) call(ctx context.Context, op string) error {
	d.Calls = append(d.Calls, op)
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.Errors[op]
}

func (d *Document) Snapshot(ctx context.Context) (*document.TableSnapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call(ctx, "Snapshot"); err != nil {
		return nil, err
	}
	snap := &document.TableSnapshot{Header: append([]string(nil), d.Header...)}
	for _, r := range d.Rows {
		snap.Rows = append(snap.Rows, append([]any(nil), r...))
	}
	return snap, nil
}

func (d *Document) Columns(ctx context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call(ctx, "Columns"); err != nil {
		return nil, err
	}
	return append([]string(nil), d.Header...), nil
}

func (d *Document) ColumnValues(ctx context.Context, name string) ([]any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call(ctx, "ColumnValues"); err != nil {
		return nil, err
	}
	if v, ok := d.Overrides[name]; ok {
		return append([]any(nil), v...), nil
	}
	idx := document.FindColumn(d.Header, name, false)
	if idx < 0 {
		return nil, &document.MissingColumnError{Names: []string{name}}
	}
	out := make([]any, len(d.Rows))
	for i, r := range d.Rows {
		if idx < len(r) {
			out[i] = r[idx]
		}
	}
	return out, nil
}

func (d *Document) SortTable(ctx context.Context, column int, ascending bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call(ctx, "SortTable"); err != nil {
		return err
	}
	if column < 0 || column >= len(d.Header) {
		return fmt.Errorf("sort column %d out of range", column)
	}
	document.SortRows(d.Rows, func(r []any) any {
		if column < len(r) {
			return r[column]
		}
		return nil
	}, ascending)
	return nil
}

func (d *Document) SheetExists(ctx context.Context, name string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call(ctx, "SheetExists"); err != nil {
		return false, err
	}
	_, ok := d.Sheets[name]
	return ok, nil
}

func (d *Document) AddSheet(ctx context.Context, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call(ctx, "AddSheet"); err != nil {
		return err
	}
	if _, ok := d.Sheets[name]; ok {
		return fmt.Errorf("sheet %q already exists", name)
	}
	d.Sheets[name] = &Sheet{Name: name, Cells: make(map[string]any)}
	return nil
}

func (d *Document) DeleteSheet(ctx context.Context, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call(ctx, "DeleteSheet"); err != nil {
		return err
	}
	if _, ok := d.Sheets[name]; !ok {
		return fmt.Errorf("sheet %q does not exist", name)
	}
	delete(d.Sheets, name)
	return nil
}

func (d *Document) HideSheet(ctx context.Context, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call(ctx, "HideSheet"); err != nil {
		return err
	}
	s, ok := d.Sheets[name]
	if !ok {
		return fmt.Errorf("sheet %q does not exist", name)
	}
	s.Hidden = true
	return nil
}

func (d *Document) WriteRange(ctx context.Context, sheet, topLeft string, rows [][]any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call(ctx, "WriteRange"); err != nil {
		return err
	}
	s, ok := d.Sheets[sheet]
	if !ok {
		return fmt.Errorf("sheet %q does not exist", sheet)
	}
	col, row, err := internal.ParseCell(topLeft)
	if err != nil {
		return err
	}
	for i, values := range rows {
		for j, v := range values {
			s.Cells[internal.CellName(col+j, row+i)] = v
		}
	}
	return nil
}

func (d *Document) AddChart(ctx context.Context, typ document.ChartType, placeholder document.Range) (document.Chart, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call(ctx, "AddChart"); err != nil {
		return nil, err
	}
	c := &Chart{
		doc:         d,
		Type:        typ,
		Placeholder: placeholder,
		Series:      []Series{{Y: placeholder}},
	}
	d.Charts = append(d.Charts, c)
	return c, nil
}

func (d *Document) AddColumn(ctx context.Context, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call(ctx, "AddColumn"); err != nil {
		return err
	}
	d.Header = append(d.Header, name)
	for i := range d.Rows {
		d.Rows[i] = append(d.Rows[i], nil)
	}
	return nil
}

func (d *Document) SetColumnFormula(ctx context.Context, column, formula string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call(ctx, "SetColumnFormula"); err != nil {
		return err
	}
	if document.FindColumn(d.Header, column, false) < 0 {
		return &document.MissingColumnError{Names: []string{column}}
	}
	d.Formulas[column] = formula
	return nil
}

func (d *Document) Sync(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call(ctx, "Sync"); err != nil {
		return err
	}
	d.Syncs++
	return nil
}

// Cell returns a value written to an extra sheet.
func (d *Document) Cell(sheet, cell string) any {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.Sheets[sheet]; ok {
		return s.Cells[cell]
	}
	return nil
}

func (c *Chart) op(ctx context.Context, name string) error {
	return c.doc.call(ctx, name)
}

func (c *Chart) AddSeries(ctx context.Context, name string, x, y document.Range) error {
	c.doc.mu.Lock()
	defer c.doc.mu.Unlock()
	if err := c.op(ctx, "AddSeries"); err != nil {
		return err
	}
	c.Series = append(c.Series, Series{Name: name, X: x, Y: y})
	return nil
}

func (c *Chart) SeriesCount(ctx context.Context) (int, error) {
	c.doc.mu.Lock()
	defer c.doc.mu.Unlock()
	if err := c.op(ctx, "SeriesCount"); err != nil {
		return 0, err
	}
	return len(c.Series), nil
}

func (c *Chart) DeleteSeries(ctx context.Context, index int) error {
	c.doc.mu.Lock()
	defer c.doc.mu.Unlock()
	if err := c.op(ctx, "DeleteSeries"); err != nil {
		return err
	}
	if index < 0 || index >= len(c.Series) {
		return fmt.Errorf("%w: index %d", document.ErrNoSeries, index)
	}
	c.Series = append(c.Series[:index], c.Series[index+1:]...)
	return nil
}

func (c *Chart) SetTitle(ctx context.Context, title string) error {
	c.doc.mu.Lock()
	defer c.doc.mu.Unlock()
	if err := c.op(ctx, "SetTitle"); err != nil {
		return err
	}
	c.Title = title
	return nil
}

func (c *Chart) SetLegendPosition(ctx context.Context, pos document.LegendPosition) error {
	c.doc.mu.Lock()
	defer c.doc.mu.Unlock()
	if err := c.op(ctx, "SetLegendPosition"); err != nil {
		return err
	}
	c.Legend = pos
	return nil
}

func (c *Chart) SetPosition(ctx context.Context, from, to string) error {
	c.doc.mu.Lock()
	defer c.doc.mu.Unlock()
	if err := c.op(ctx, "SetPosition"); err != nil {
		return err
	}
	c.From, c.To = from, to
	return nil
}

func (c *Chart) Delete(ctx context.Context) error {
	c.doc.mu.Lock()
	defer c.doc.mu.Unlock()
	if err := c.op(ctx, "DeleteChart"); err != nil {
		return err
	}
	c.Deleted = true
	return nil
}
