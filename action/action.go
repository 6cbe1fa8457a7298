// Package action defines the closed vocabulary of spreadsheet actions a user
// can request, and the classifiers that map free text onto it.
package action

// Kind is the wire name of an action variant.
type Kind string

const (
	KindSortBySales          Kind = "sort_sales_desc"
	KindScatterPlot          Kind = "scatter_sales_costs"
	KindInsertComputedColumn Kind = "insert_profits"
	KindUnsupported          Kind = "unsupported"
)

// Kinds lists every variant in classification priority order.
var Kinds = []Kind{KindSortBySales, KindScatterPlot, KindInsertComputedColumn, KindUnsupported}

// Direction is a sort direction.
type Direction string

const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

// Action is one user-requested spreadsheet operation. The set of
// implementations is closed to this package.
type Action interface {
	Kind() Kind
	isAction()
}

// SortBySales sorts the primary table by a column.
type SortBySales struct {
	Column    string
	Direction Direction
}

// ScatterPlot inserts a scatter chart of two numeric columns.
type ScatterPlot struct {
	XColumn string
	YColumn string
}

// InsertComputedColumn appends a column whose body is a structured formula.
type InsertComputedColumn struct {
	Name       string
	Formula    string // human-readable expression, e.g. "Sales - Costs"
	Structured string // this-row formula filled down the column
	DependsOn  []string
}

// Unsupported is the terminal result for text outside the vocabulary.
type Unsupported struct{}

func (SortBySales) Kind() Kind          { return KindSortBySales }
func (ScatterPlot) Kind() Kind          { return KindScatterPlot }
func (InsertComputedColumn) Kind() Kind { return KindInsertComputedColumn }
func (Unsupported) Kind() Kind          { return KindUnsupported }

func (SortBySales) isAction()          {}
func (ScatterPlot) isAction()          {}
func (InsertComputedColumn) isAction() {}
func (Unsupported) isAction()          {}

// NewSortBySales returns the descending Sales sort.
func NewSortBySales() SortBySales {
	return SortBySales{Column: "Sales", Direction: Descending}
}

// NewScatterPlot returns the Sales (X) vs Costs (Y) scatter.
func NewScatterPlot() ScatterPlot {
	return ScatterPlot{XColumn: "Sales", YColumn: "Costs"}
}

// NewInsertComputedColumn returns the Profits = Sales - Costs column.
func NewInsertComputedColumn() InsertComputedColumn {
	return InsertComputedColumn{
		Name:       "Profits",
		Formula:    "Sales - Costs",
		Structured: "=[@Sales]-[@Costs]",
		DependsOn:  []string{"Sales", "Costs"},
	}
}

// FromKind returns the default action for a wire name. Unknown names map to
// Unsupported so a remote classifier can never produce an invalid action.
func FromKind(name string) Action {
	switch Kind(name) {
	case KindSortBySales:
		return NewSortBySales()
	case KindScatterPlot:
		return NewScatterPlot()
	case KindInsertComputedColumn:
		return NewInsertComputedColumn()
	default:
		return Unsupported{}
	}
}

// IsSupported reports whether a can be previewed and executed.
func IsSupported(a Action) bool {
	if a == nil {
		return false
	}
	return a.Kind() != KindUnsupported
}
