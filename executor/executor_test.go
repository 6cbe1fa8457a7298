package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/witanlabs/witan-assist/action"
	"github.com/witanlabs/witan-assist/document"
	"github.com/witanlabs/witan-assist/document/doctest"
)

func quietExecutor() *Executor {
	return New(WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func salesDoc() *doctest.Document {
	return doctest.New([]string{"Region", "Sales", "Costs"},
		[]any{"North", 120.0, 80.0},
		[]any{"South", 300.0, "$210"},
		[]any{"East", nil, 15.0},
		[]any{"West", "n/a", 60.0},
	)
}

func TestExecute_SortDescending(t *testing.T) {
	doc := salesDoc()
	res, err := quietExecutor().Execute(context.Background(), doc, action.NewSortBySales())
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, action.KindSortBySales, res.Kind)

	var regions []any
	for _, r := range doc.Rows {
		regions = append(regions, r[0])
	}
	// text sorts above numbers when descending, blanks last
	assert.Equal(t, []any{"West", "South", "North", "East"}, regions)
	assert.Equal(t, []string{"SortTable"}, doc.Mutations())
	assert.Equal(t, 1, doc.Syncs)
}

func TestExecute_SortIsIdempotent(t *testing.T) {
	doc := salesDoc()
	ex := quietExecutor()
	_, err := ex.Execute(context.Background(), doc, action.NewSortBySales())
	require.NoError(t, err)
	first := append([][]any(nil), doc.Rows...)

	_, err = ex.Execute(context.Background(), doc, action.NewSortBySales())
	require.NoError(t, err)
	assert.Equal(t, first, doc.Rows)
}

func TestExecute_SortMissingColumnIsExact(t *testing.T) {
	doc := doctest.New([]string{"Region", "sales"}, []any{"A", 1.0})
	_, err := quietExecutor().Execute(context.Background(), doc, action.NewSortBySales())

	var missing *document.MissingColumnError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"Sales"}, missing.Names)
	assert.Empty(t, doc.Mutations())
}

func TestExecute_Scatter(t *testing.T) {
	doc := salesDoc()
	res, err := quietExecutor().Execute(context.Background(), doc, action.NewScatterPlot())
	require.NoError(t, err)
	assert.True(t, res.Changed)

	sheet, ok := doc.Sheets[ScratchSheet]
	require.True(t, ok, "scratch sheet exists")
	assert.True(t, sheet.Hidden)
	assert.Equal(t, "Sales", doc.Cell(ScratchSheet, "A1"))
	assert.Equal(t, "Costs", doc.Cell(ScratchSheet, "B1"))
	assert.Equal(t, 300.0, doc.Cell(ScratchSheet, "A3"))
	assert.Equal(t, 210.0, doc.Cell(ScratchSheet, "B3"))
	assert.Equal(t, 0.0, doc.Cell(ScratchSheet, "A4"))
	assert.Equal(t, 0.0, doc.Cell(ScratchSheet, "A5"))

	charts := doc.LiveCharts()
	require.Len(t, charts, 1)
	c := charts[0]
	assert.Equal(t, document.ChartScatter, c.Type)
	assert.Equal(t, "Sales (X) vs Costs (Y)", c.Title)
	assert.Equal(t, document.LegendRight, c.Legend)
	assert.Equal(t, "H5", c.From)
	assert.Equal(t, "M25", c.To)
	assert.Equal(t, "__chart_data_temp!A1:A2", c.Placeholder.String())
	require.Len(t, c.Series, 1)
	assert.Equal(t, "Sales vs Costs", c.Series[0].Name)
	assert.Equal(t, "__chart_data_temp!A2:A5", c.Series[0].X.String())
	assert.Equal(t, "__chart_data_temp!B2:B5", c.Series[0].Y.String())
	assert.Equal(t, "Sync", doc.Calls[len(doc.Calls)-1])
}

func TestExecute_ScatterReplacesScratchSheet(t *testing.T) {
	doc := salesDoc()
	doc.Sheets[ScratchSheet] = &doctest.Sheet{Name: ScratchSheet, Cells: map[string]any{"Z9": "stale"}}

	_, err := quietExecutor().Execute(context.Background(), doc, action.NewScatterPlot())
	require.NoError(t, err)
	assert.Nil(t, doc.Cell(ScratchSheet, "Z9"))

	muts := doc.Mutations()
	require.GreaterOrEqual(t, len(muts), 2)
	assert.Equal(t, []string{"DeleteSheet", "AddSheet"}, muts[:2])
}

func TestExecute_ScatterColumnLookupIgnoresCase(t *testing.T) {
	doc := doctest.New([]string{"SALES", " costs "}, []any{1.0, 2.0})
	_, err := quietExecutor().Execute(context.Background(), doc, action.NewScatterPlot())
	require.NoError(t, err)
	assert.Equal(t, 1.0, doc.Cell(ScratchSheet, "A2"))
	assert.Equal(t, 2.0, doc.Cell(ScratchSheet, "B2"))
}

func TestExecute_ScatterValidationMutatesNothing(t *testing.T) {
	t.Run("missing columns", func(t *testing.T) {
		doc := doctest.New([]string{"Region"}, []any{"A"})
		_, err := quietExecutor().Execute(context.Background(), doc, action.NewScatterPlot())
		var missing *document.MissingColumnError
		require.ErrorAs(t, err, &missing)
		assert.Equal(t, []string{"Sales", "Costs"}, missing.Names)
		assert.Empty(t, doc.Mutations())
	})

	t.Run("empty table", func(t *testing.T) {
		doc := doctest.New([]string{"Sales", "Costs"})
		_, err := quietExecutor().Execute(context.Background(), doc, action.NewScatterPlot())
		assert.ErrorIs(t, err, ErrEmptyTable)
		assert.Empty(t, doc.Mutations())
	})

	t.Run("inconsistent lengths", func(t *testing.T) {
		doc := salesDoc()
		doc.Overrides = map[string][]any{"Costs": {1.0}}
		_, err := quietExecutor().Execute(context.Background(), doc, action.NewScatterPlot())
		var lengthErr *InconsistentColumnLengthError
		require.ErrorAs(t, err, &lengthErr)
		assert.Equal(t, 4, lengthErr.XLen)
		assert.Equal(t, 1, lengthErr.YLen)
		assert.Empty(t, doc.Mutations())
	})
}

func TestExecute_ScatterCleansUpOnFailure(t *testing.T) {
	for _, op := range []string{"WriteRange", "AddChart", "AddSeries", "SetTitle", "SetPosition", "HideSheet"} {
		t.Run(op, func(t *testing.T) {
			doc := salesDoc()
			boom := errors.New("host rejected " + op)
			doc.Fail(op, boom)

			_, err := quietExecutor().Execute(context.Background(), doc, action.NewScatterPlot())
			require.ErrorIs(t, err, ErrExecutionFailed)
			require.ErrorIs(t, err, boom)

			var ee *ExecutionError
			require.ErrorAs(t, err, &ee)
			assert.Equal(t, action.KindScatterPlot, ee.Kind)
			assert.NotEmpty(t, ee.Step)

			assert.NotContains(t, doc.Sheets, ScratchSheet)
			assert.Empty(t, doc.LiveCharts())
		})
	}
}

func TestExecute_ScatterPlaceholderDeleteIsBestEffort(t *testing.T) {
	doc := salesDoc()
	doc.Fail("DeleteSeries", errors.New("not supported"))

	_, err := quietExecutor().Execute(context.Background(), doc, action.NewScatterPlot())
	require.NoError(t, err)
	require.Len(t, doc.LiveCharts(), 1)
	assert.Len(t, doc.LiveCharts()[0].Series, 2)
}

func TestExecute_InsertProfits(t *testing.T) {
	doc := salesDoc()
	ex := quietExecutor()

	res, err := ex.Execute(context.Background(), doc, action.NewInsertComputedColumn())
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, []string{"Region", "Sales", "Costs", "Profits"}, doc.Header)
	assert.Equal(t, "=[@Sales]-[@Costs]", doc.Formulas["Profits"])
	assert.Equal(t, []string{"AddColumn", "SetColumnFormula"}, doc.Mutations())
	assert.Equal(t, 2, doc.Syncs)

	res, err = ex.Execute(context.Background(), doc, action.NewInsertComputedColumn())
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, []string{"AddColumn", "SetColumnFormula"}, doc.Mutations(), "second insert is a no-op")
}

func TestExecute_InsertProfitsTrimsHeader(t *testing.T) {
	doc := doctest.New([]string{"Sales", "Costs", " Profits "})
	res, err := quietExecutor().Execute(context.Background(), doc, action.NewInsertComputedColumn())
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Empty(t, doc.Mutations())
}

func TestExecute_InsertFormulaFailureKeepsColumn(t *testing.T) {
	doc := salesDoc()
	doc.Fail("SetColumnFormula", errors.New("formula rejected"))

	_, err := quietExecutor().Execute(context.Background(), doc, action.NewInsertComputedColumn())
	require.ErrorIs(t, err, ErrExecutionFailed)
	assert.Contains(t, doc.Header, "Profits")
}

func TestExecute_Unsupported(t *testing.T) {
	doc := salesDoc()
	_, err := quietExecutor().Execute(context.Background(), doc, action.Unsupported{})
	assert.ErrorIs(t, err, ErrNotExecutable)
	_, err = quietExecutor().Execute(context.Background(), doc, nil)
	assert.ErrorIs(t, err, ErrNotExecutable)
	assert.Empty(t, doc.Calls)
}

func TestExecute_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	doc := salesDoc()
	_, err := quietExecutor().Execute(ctx, doc, action.NewSortBySales())
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, ErrExecutionFailed)
}
