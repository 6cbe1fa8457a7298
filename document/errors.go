package document

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoTable indicates the active sheet has no table to operate on.
var ErrNoTable = errors.New("no table found on the active sheet")

// ErrNoSeries indicates a chart series index does not exist.
var ErrNoSeries = errors.New("chart series not found")

// MissingColumnError reports required columns absent from a table header.
type MissingColumnError struct {
	Names []string
}

func (e *MissingColumnError) Error() string {
	if len(e.Names) == 1 {
		return fmt.Sprintf("table has no %q column", e.Names[0])
	}
	quoted := make([]string, len(e.Names))
	for i, n := range e.Names {
		quoted[i] = fmt.Sprintf("%q", n)
	}
	return "table is missing columns " + strings.Join(quoted, ", ")
}

// RequireColumns returns a MissingColumnError naming every entry of names
// not found in header, or nil.
func RequireColumns(header []string, fold bool, names ...string) error {
	var missing []string
	for _, n := range names {
		if FindColumn(header, n, fold) < 0 {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return &MissingColumnError{Names: missing}
	}
	return nil
}
