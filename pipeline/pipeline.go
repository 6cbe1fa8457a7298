// Package pipeline drives the two-phase flow: text is classified and
// previewed, and only an explicit confirmation applies the action.
//
// A Controller holds at most one pending action and runs at most one
// execution at a time. Every submit takes a new sequence number; a result
// that returns after a newer submit or a cancel is dropped. Preview reads and
// executions take turns on the document, so a stale preview still reading
// never overlaps a mutation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/witanlabs/witan-assist/action"
	"github.com/witanlabs/witan-assist/document"
	"github.com/witanlabs/witan-assist/executor"
	"github.com/witanlabs/witan-assist/preview"
)

var (
	// ErrEmptyInput is returned for blank submissions.
	ErrEmptyInput = errors.New("input is empty")
	// ErrBusy is returned while an action is being applied.
	ErrBusy = errors.New("an action is being applied")
	// ErrNoPending is returned by Confirm when no preview is ready.
	ErrNoPending = errors.New("no pending action to apply")
	// ErrSuperseded is returned when a newer submit or a cancel replaced
	// the request.
	ErrSuperseded = errors.New("request superseded")
)

// State is the controller's position in the flow.
type State int

const (
	Idle State = iota
	Classifying
	PreviewReady
	Executing
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Classifying:
		return "classifying"
	case PreviewReady:
		return "preview_ready"
	case Executing:
		return "executing"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Proposal is what Submit hands back for display.
type Proposal struct {
	Seq         uint64          `json:"seq"`
	Action      action.Action   `json:"-"`
	Description string          `json:"description"`
	Preview     preview.Payload `json:"preview,omitempty"`
}

// Outcome reports an applied action.
type Outcome struct {
	Seq     uint64        `json:"seq"`
	Action  action.Action `json:"-"`
	Changed bool          `json:"changed"`
	Detail  string        `json:"detail"`
}

// Controller owns the pending action for one document.
type Controller struct {
	classifier action.Classifier
	doc        document.Document
	exec       *executor.Executor
	logger     *slog.Logger

	// docSem serialises document access between previews and executions.
	docSem chan struct{}

	mu           sync.Mutex
	state        State
	seq          uint64
	pending      *Proposal
	onTransition func(from, to State)
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithExecutor replaces the default executor.
func WithExecutor(e *executor.Executor) Option {
	return func(c *Controller) {
		if e != nil {
			c.exec = e
		}
	}
}

// OnTransition registers fn to be called after every state change. fn runs
// with the controller locked and must not call back into it.
func OnTransition(fn func(from, to State)) Option {
	return func(c *Controller) { c.onTransition = fn }
}

// New creates a Controller over doc.
func New(classifier action.Classifier, doc document.Document, opts ...Option) *Controller {
	c := &Controller{
		classifier: classifier,
		doc:        doc,
		logger:     slog.Default(),
		docSem:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.exec == nil {
		c.exec = executor.New(executor.WithLogger(c.logger))
	}
	return c
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Pending returns the proposal awaiting confirmation, or nil.
func (c *Controller) Pending() *Proposal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// setState must be called with mu held.
func (c *Controller) setState(to State) {
	from := c.state
	if from == to {
		return
	}
	c.state = to
	c.logger.Debug("Pipeline transition", slog.String("from", from.String()), slog.String("to", to.String()), slog.Uint64("seq", c.seq))
	if c.onTransition != nil {
		c.onTransition(from, to)
	}
}

// fail records a failure for the current request and returns to Idle.
// Must be called with mu held.
func (c *Controller) fail() {
	c.setState(Failed)
	c.setState(Idle)
}

// Submit classifies text and, for supported actions, builds a preview. Any
// earlier pending action is discarded. Unsupported text returns a proposal
// with no preview and leaves the controller Idle.
func (c *Controller) Submit(ctx context.Context, text string) (*Proposal, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyInput
	}

	c.mu.Lock()
	if c.state == Executing {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	c.seq++
	seq := c.seq
	c.pending = nil
	c.setState(Classifying)
	c.mu.Unlock()

	cls, err := c.classifier.Classify(ctx, text)

	c.mu.Lock()
	if c.seq != seq {
		c.mu.Unlock()
		return nil, ErrSuperseded
	}
	if err != nil {
		c.fail()
		c.mu.Unlock()
		return nil, fmt.Errorf("classifying: %w", err)
	}
	prop := &Proposal{Seq: seq, Action: cls.Action, Description: cls.Description}
	if !action.IsSupported(cls.Action) {
		c.setState(Idle)
		c.mu.Unlock()
		return prop, nil
	}
	c.mu.Unlock()

	if err := c.acquireDoc(ctx); err != nil {
		return nil, c.abandon(seq, err)
	}
	if !c.current(seq) {
		c.releaseDoc()
		return nil, ErrSuperseded
	}
	payload, err := preview.Build(ctx, c.doc, cls.Action)
	c.releaseDoc()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seq != seq {
		return nil, ErrSuperseded
	}
	if err != nil {
		c.fail()
		return nil, fmt.Errorf("building preview: %w", err)
	}
	prop.Preview = payload
	c.pending = prop
	c.setState(PreviewReady)
	return prop, nil
}

// Confirm applies the pending action. The pending action is consumed
// whether or not execution succeeds.
func (c *Controller) Confirm(ctx context.Context) (*Outcome, error) {
	c.mu.Lock()
	switch c.state {
	case Executing:
		c.mu.Unlock()
		return nil, ErrBusy
	case PreviewReady:
	default:
		c.mu.Unlock()
		return nil, ErrNoPending
	}
	prop := c.pending
	c.pending = nil
	c.setState(Executing)
	c.mu.Unlock()

	if err := c.acquireDoc(ctx); err != nil {
		c.mu.Lock()
		c.fail()
		c.mu.Unlock()
		return nil, err
	}
	res, err := c.exec.Execute(ctx, c.doc, prop.Action)
	c.releaseDoc()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.fail()
		return nil, err
	}
	c.setState(Idle)
	return &Outcome{Seq: prop.Seq, Action: prop.Action, Changed: res.Changed, Detail: res.Detail}, nil
}

// acquireDoc waits for exclusive use of the document or for ctx.
func (c *Controller) acquireDoc(ctx context.Context) error {
	select {
	case c.docSem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) releaseDoc() { <-c.docSem }

// current reports whether seq is still the latest request.
func (c *Controller) current(seq uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq == seq
}

// abandon ends request seq after err. A superseded request leaves the state
// to its successor.
func (c *Controller) abandon(seq uint64, err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seq != seq {
		return ErrSuperseded
	}
	c.fail()
	return fmt.Errorf("building preview: %w", err)
}

// Cancel discards the pending action and invalidates in-flight submits. It
// does not interrupt an execution.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Executing {
		return
	}
	c.seq++
	c.pending = nil
	c.setState(Idle)
}
