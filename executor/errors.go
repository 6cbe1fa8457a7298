package executor

import (
	"errors"
	"fmt"

	"github.com/witanlabs/witan-assist/action"
)

// ErrExecutionFailed matches every *ExecutionError.
var ErrExecutionFailed = errors.New("execution failed")

// ErrEmptyTable indicates the chart columns have no data rows.
var ErrEmptyTable = errors.New("table has no data rows")

// ErrNotExecutable is returned for actions that have no operation.
var ErrNotExecutable = errors.New("action is not executable")

// ExecutionError wraps a document failure with the step that raised it.
type ExecutionError struct {
	Kind action.Kind
	Step string
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Step, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Is reports ErrExecutionFailed as a match.
func (e *ExecutionError) Is(target error) bool {
	return target == ErrExecutionFailed
}

// InconsistentColumnLengthError reports chart columns of different lengths.
type InconsistentColumnLengthError struct {
	XColumn string
	XLen    int
	YColumn string
	YLen    int
}

func (e *InconsistentColumnLengthError) Error() string {
	return fmt.Sprintf("column %q has %d values but %q has %d", e.XColumn, e.XLen, e.YColumn, e.YLen)
}

func fail(kind action.Kind, step string, err error) error {
	return &ExecutionError{Kind: kind, Step: step, Err: err}
}
