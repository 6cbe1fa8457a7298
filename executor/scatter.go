package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/witanlabs/witan-assist/action"
	"github.com/witanlabs/witan-assist/document"
	"github.com/witanlabs/witan-assist/internal"
)

// ScratchSheet is the hidden sheet holding coerced chart data. At most one
// exists; each scatter replaces it.
const ScratchSheet = "__chart_data_temp"

const (
	seriesName  = "Sales vs Costs"
	chartFrom   = "H5"
	chartTo     = "M25"
	chartLegend = document.LegendRight
)

func (e *Executor) scatter(ctx context.Context, doc document.Document, a action.ScatterPlot) (Result, error) {
	kind := a.Kind()
	cols, err := doc.Columns(ctx)
	if err != nil {
		return Result{}, fail(kind, "read columns", err)
	}
	if err := document.RequireColumns(cols, true, a.XColumn, a.YColumn); err != nil {
		return Result{}, err
	}
	xName := cols[document.FindColumn(cols, a.XColumn, true)]
	yName := cols[document.FindColumn(cols, a.YColumn, true)]

	xs, err := doc.ColumnValues(ctx, xName)
	if err != nil {
		return Result{}, fail(kind, "read "+xName, err)
	}
	ys, err := doc.ColumnValues(ctx, yName)
	if err != nil {
		return Result{}, fail(kind, "read "+yName, err)
	}
	if len(xs) != len(ys) {
		return Result{}, &InconsistentColumnLengthError{XColumn: xName, XLen: len(xs), YColumn: yName, YLen: len(ys)}
	}
	n := len(xs)
	if n == 0 {
		return Result{}, ErrEmptyTable
	}

	rows := make([][]any, 0, n+1)
	rows = append(rows, []any{a.XColumn, a.YColumn})
	for i := 0; i < n; i++ {
		rows = append(rows, []any{internal.ParseNumber(xs[i]), internal.ParseNumber(ys[i])})
	}

	if err := resetScratch(ctx, doc); err != nil {
		return Result{}, fail(kind, "reset scratch sheet", err)
	}

	// The scratch sheet now exists. Until the hidden sheet and chart are
	// synced, any failure removes both.
	var chart document.Chart
	step, err := func() (string, error) {
		if err := doc.WriteRange(ctx, ScratchSheet, "A1", rows); err != nil {
			return "write chart data", err
		}
		placeholder := document.ColumnRange(ScratchSheet, 1, 1, 2)
		c, err := doc.AddChart(ctx, document.ChartScatter, placeholder)
		if err != nil {
			return "add chart", err
		}
		chart = c
		x := document.ColumnRange(ScratchSheet, 1, 2, n+1)
		y := document.ColumnRange(ScratchSheet, 2, 2, n+1)
		if err := chart.AddSeries(ctx, seriesName, x, y); err != nil {
			return "add series", err
		}
		// The placeholder series is dropped when the host created one.
		if err := chart.DeleteSeries(ctx, 0); err != nil {
			e.logger.Debug("Placeholder series not removed", slog.String("error", err.Error()))
		}
		if err := chart.SetTitle(ctx, a.XColumn+" (X) vs "+a.YColumn+" (Y)"); err != nil {
			return "set title", err
		}
		if err := chart.SetLegendPosition(ctx, chartLegend); err != nil {
			return "set legend", err
		}
		if err := chart.SetPosition(ctx, chartFrom, chartTo); err != nil {
			return "position chart", err
		}
		if err := doc.HideSheet(ctx, ScratchSheet); err != nil {
			return "hide scratch sheet", err
		}
		if err := doc.Sync(ctx); err != nil {
			return "sync", err
		}
		return "", nil
	}()
	if err != nil {
		e.discardScratch(ctx, doc, chart)
		return Result{}, fail(kind, step, err)
	}

	return Result{
		Kind:    kind,
		Changed: true,
		Detail:  fmt.Sprintf("Inserted scatter chart %s (X) vs %s (Y) from %d rows", a.XColumn, a.YColumn, n),
	}, nil
}

// resetScratch leaves an empty scratch sheet in place of any earlier one.
func resetScratch(ctx context.Context, doc document.Document) error {
	exists, err := doc.SheetExists(ctx, ScratchSheet)
	if err != nil {
		return err
	}
	if exists {
		if err := doc.DeleteSheet(ctx, ScratchSheet); err != nil {
			return err
		}
		if err := doc.Sync(ctx); err != nil {
			return err
		}
	}
	return doc.AddSheet(ctx, ScratchSheet)
}

// discardScratch removes a partially built chart and its scratch sheet. It
// runs even when ctx is cancelled; failures are logged only.
func (e *Executor) discardScratch(ctx context.Context, doc document.Document, chart document.Chart) {
	ctx = context.WithoutCancel(ctx)
	if chart != nil {
		if err := chart.Delete(ctx); err != nil {
			e.logger.Warn("Chart cleanup failed", slog.String("error", err.Error()))
		}
	}
	if err := doc.DeleteSheet(ctx, ScratchSheet); err != nil {
		e.logger.Warn("Scratch sheet cleanup failed", slog.String("sheet", ScratchSheet), slog.String("error", err.Error()))
	}
	if err := doc.Sync(ctx); err != nil {
		e.logger.Warn("Sync after cleanup failed", slog.String("error", err.Error()))
	}
}
