package document

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/witanlabs/witan-assist/internal"
	"github.com/xuri/excelize/v2"
)

const (
	defaultChartAnchor = "H5"
	defaultChartWidth  = 480
	defaultChartHeight = 290
	// Pixel size of a default-width column and default-height row.
	columnPixels = 64
	rowPixels    = 20
)

type chartSeries struct {
	name string
	x    string // absolute reference, empty for the placeholder
	y    string
}

// workbookChart stages a chart until Sync: excelize builds a chart in one
// call and cannot rebind series afterwards.
type workbookChart struct {
	id        string // log correlation only
	w         *Workbook
	typ       ChartType
	series    []chartSeries
	title     string
	legend    LegendPosition
	anchor    string
	width     uint
	height    uint
	committed bool
	deleted   bool
}

// AddChart implements Document.
func (w *Workbook) AddChart(ctx context.Context, typ ChartType, placeholder Range) (Chart, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if typ != ChartScatter {
		return nil, fmt.Errorf("unsupported chart type %q", typ)
	}
	ok, err := w.SheetExists(ctx, placeholder.Sheet)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("chart source sheet %q does not exist", placeholder.Sheet)
	}
	c := &workbookChart{
		id:     uuid.NewString(),
		w:      w,
		typ:    typ,
		series: []chartSeries{{y: placeholder.Absolute()}},
		legend: LegendRight,
		anchor: defaultChartAnchor,
		width:  defaultChartWidth,
		height: defaultChartHeight,
	}
	w.charts = append(w.charts, c)
	return c, nil
}

func (c *workbookChart) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.deleted {
		return errors.New("chart was deleted")
	}
	if c.committed {
		return errors.New("chart is already committed")
	}
	return nil
}

func (c *workbookChart) AddSeries(ctx context.Context, name string, x, y Range) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	if x.RowCount() != y.RowCount() {
		return fmt.Errorf("series %q: x has %d values, y has %d", name, x.RowCount(), y.RowCount())
	}
	c.series = append(c.series, chartSeries{name: name, x: x.Absolute(), y: y.Absolute()})
	return nil
}

func (c *workbookChart) SeriesCount(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return len(c.series), nil
}

func (c *workbookChart) DeleteSeries(ctx context.Context, index int) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	if index < 0 || index >= len(c.series) {
		return fmt.Errorf("%w: index %d", ErrNoSeries, index)
	}
	c.series = append(c.series[:index], c.series[index+1:]...)
	return nil
}

func (c *workbookChart) SetTitle(ctx context.Context, title string) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	c.title = title
	return nil
}

func (c *workbookChart) SetLegendPosition(ctx context.Context, pos LegendPosition) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	c.legend = pos
	return nil
}

func (c *workbookChart) SetPosition(ctx context.Context, from, to string) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	c1, r1, err := internal.ParseCell(from)
	if err != nil {
		return err
	}
	c2, r2, err := internal.ParseCell(to)
	if err != nil {
		return err
	}
	if c2 < c1 {
		c1, c2 = c2, c1
	}
	if r2 < r1 {
		r1, r2 = r2, r1
	}
	c.anchor = internal.CellName(c1, r1)
	c.width = uint((c2 - c1 + 1) * columnPixels)
	c.height = uint((r2 - r1 + 1) * rowPixels)
	return nil
}

func (c *workbookChart) Delete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.deleted {
		return nil
	}
	if c.committed {
		if err := c.w.f.DeleteChart(c.w.tableSheet(), c.anchor); err != nil {
			return fmt.Errorf("deleting chart: %w", err)
		}
		// DeleteChart drops every chart anchored at the cell. Charts this
		// workbook committed there are drawn again.
		for _, other := range c.w.charts {
			if other == c || !other.committed || other.deleted || other.anchor != c.anchor {
				continue
			}
			if err := other.commit(); err != nil {
				return fmt.Errorf("restoring chart at %s: %w", c.anchor, err)
			}
		}
	}
	c.deleted = true
	c.w.logger.Debug("Deleted chart", slog.String("chart", c.id), slog.Bool("committed", c.committed))
	return nil
}

func (c *workbookChart) commit() error {
	if len(c.series) == 0 {
		return errors.New("chart has no series")
	}
	chart := &excelize.Chart{
		Type:      excelize.Scatter,
		Dimension: excelize.ChartDimension{Width: c.width, Height: c.height},
		Legend:    excelize.ChartLegend{Position: string(c.legend)},
	}
	if c.title != "" {
		chart.Title = []excelize.RichTextRun{{Text: c.title}}
	}
	for _, s := range c.series {
		chart.Series = append(chart.Series, excelize.ChartSeries{
			Name:       s.name,
			Categories: s.x,
			Values:     s.y,
		})
	}
	sheet := c.w.tableSheet()
	if err := c.w.f.AddChart(sheet, c.anchor, chart); err != nil {
		return fmt.Errorf("adding chart: %w", err)
	}
	c.committed = true
	c.w.logger.Debug("Committed chart", slog.String("chart", c.id), slog.String("sheet", sheet), slog.String("anchor", c.anchor), slog.Int("series", len(c.series)))
	return nil
}
