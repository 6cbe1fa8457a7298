// Package executor applies confirmed actions to a document.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/witanlabs/witan-assist/action"
	"github.com/witanlabs/witan-assist/document"
)

// Result describes a completed execution.
type Result struct {
	Kind    action.Kind `json:"action"`
	Changed bool        `json:"changed"`
	Detail  string      `json:"detail"`
}

// Executor runs actions against a document. It holds no per-document state;
// every execution reads the document afresh.
type Executor struct {
	logger *slog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger for execution events.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an Executor.
func New(opts ...Option) *Executor {
	e := &Executor{logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute applies a to doc. Document failures come back as *ExecutionError;
// missing columns and bad chart data come back as their own error types
// before anything is mutated.
func (e *Executor) Execute(ctx context.Context, doc document.Document, a action.Action) (Result, error) {
	if !action.IsSupported(a) {
		return Result{}, ErrNotExecutable
	}
	start := time.Now()

	var (
		res Result
		err error
	)
	switch a := a.(type) {
	case action.SortBySales:
		res, err = e.sort(ctx, doc, a)
	case action.ScatterPlot:
		res, err = e.scatter(ctx, doc, a)
	case action.InsertComputedColumn:
		res, err = e.insertColumn(ctx, doc, a)
	default:
		return Result{}, ErrNotExecutable
	}

	attrs := []any{
		slog.String("action", string(a.Kind())),
		slog.Duration("duration", time.Since(start)),
	}
	if err != nil {
		var ee *ExecutionError
		if errors.As(err, &ee) {
			attrs = append(attrs, slog.String("step", ee.Step))
		}
		e.logger.Warn("Action failed", append(attrs, slog.String("error", err.Error()))...)
		return Result{}, err
	}
	e.logger.Info("Action applied", append(attrs, slog.Bool("changed", res.Changed))...)
	return res, nil
}

func (e *Executor) sort(ctx context.Context, doc document.Document, a action.SortBySales) (Result, error) {
	kind := a.Kind()
	cols, err := doc.Columns(ctx)
	if err != nil {
		return Result{}, fail(kind, "read columns", err)
	}
	idx := document.FindColumn(cols, a.Column, false)
	if idx < 0 {
		return Result{}, &document.MissingColumnError{Names: []string{a.Column}}
	}
	if err := doc.SortTable(ctx, idx, a.Direction == action.Ascending); err != nil {
		return Result{}, fail(kind, "sort table", err)
	}
	if err := doc.Sync(ctx); err != nil {
		return Result{}, fail(kind, "sync", err)
	}
	order := "descending"
	if a.Direction == action.Ascending {
		order = "ascending"
	}
	return Result{Kind: kind, Changed: true, Detail: fmt.Sprintf("Sorted by %s (%s)", a.Column, order)}, nil
}

func (e *Executor) insertColumn(ctx context.Context, doc document.Document, a action.InsertComputedColumn) (Result, error) {
	kind := a.Kind()
	cols, err := doc.Columns(ctx)
	if err != nil {
		return Result{}, fail(kind, "read columns", err)
	}
	for _, c := range cols {
		if strings.TrimSpace(c) == a.Name {
			return Result{Kind: kind, Detail: fmt.Sprintf("Column %s already exists", a.Name)}, nil
		}
	}

	// A failure after AddColumn leaves the empty column in place.
	if err := doc.AddColumn(ctx, a.Name); err != nil {
		return Result{}, fail(kind, "add column", err)
	}
	if err := doc.Sync(ctx); err != nil {
		return Result{}, fail(kind, "sync", err)
	}
	if err := doc.SetColumnFormula(ctx, a.Name, a.Structured); err != nil {
		return Result{}, fail(kind, "set formula", err)
	}
	if err := doc.Sync(ctx); err != nil {
		return Result{}, fail(kind, "sync", err)
	}
	return Result{Kind: kind, Changed: true, Detail: fmt.Sprintf("Inserted %s = %s", a.Name, a.Formula)}, nil
}
