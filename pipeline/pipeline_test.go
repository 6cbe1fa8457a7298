package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/witanlabs/witan-assist/action"
	"github.com/witanlabs/witan-assist/document"
	"github.com/witanlabs/witan-assist/document/doctest"
	"github.com/witanlabs/witan-assist/executor"
	"github.com/witanlabs/witan-assist/preview"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func salesDoc() *doctest.Document {
	return doctest.New([]string{"Region", "Sales", "Costs"},
		[]any{"North", 120.0, 80.0},
		[]any{"South", 300.0, 210.0},
	)
}

// gatedClassifier blocks each call until its text is released.
type gatedClassifier struct {
	mu      sync.Mutex
	gates   map[string]chan struct{}
	entered chan string
}

func newGated(texts ...string) *gatedClassifier {
	g := &gatedClassifier{gates: make(map[string]chan struct{}), entered: make(chan string, len(texts))}
	for _, t := range texts {
		g.gates[t] = make(chan struct{})
	}
	return g
}

func (g *gatedClassifier) release(text string) { close(g.gates[text]) }

func (g *gatedClassifier) Classify(ctx context.Context, text string) (action.Classification, error) {
	g.mu.Lock()
	gate, ok := g.gates[text]
	g.mu.Unlock()
	g.entered <- text
	if ok {
		select {
		case <-gate:
		case <-ctx.Done():
			return action.Classification{}, ctx.Err()
		}
	}
	return action.NewRules("en").Classify(ctx, text)
}

type failingClassifier struct{ err error }

func (f failingClassifier) Classify(context.Context, string) (action.Classification, error) {
	return action.Classification{}, f.err
}

func newController(cls action.Classifier, doc *doctest.Document, opts ...Option) *Controller {
	return New(cls, doc, append([]Option{WithLogger(quiet)}, opts...)...)
}

func TestSubmit_EmptyInput(t *testing.T) {
	c := newController(action.NewRules("en"), salesDoc())
	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := c.Submit(context.Background(), text)
		assert.ErrorIs(t, err, ErrEmptyInput)
	}
	assert.Equal(t, Idle, c.State())
}

func TestSubmit_PreviewThenConfirm(t *testing.T) {
	doc := salesDoc()
	var transitions []string
	c := newController(action.NewRules("en"), doc, OnTransition(func(from, to State) {
		transitions = append(transitions, from.String()+">"+to.String())
	}))

	prop, err := c.Submit(context.Background(), "Please sort by sales")
	require.NoError(t, err)
	assert.Equal(t, action.KindSortBySales, prop.Action.Kind())
	assert.Contains(t, prop.Description, "descending")
	require.IsType(t, &preview.TablePreview{}, prop.Preview)
	assert.Equal(t, PreviewReady, c.State())
	assert.Same(t, prop, c.Pending())
	assert.Empty(t, doc.Mutations(), "preview must not mutate")

	out, err := c.Confirm(context.Background())
	require.NoError(t, err)
	assert.True(t, out.Changed)
	assert.Equal(t, prop.Seq, out.Seq)
	assert.Equal(t, Idle, c.State())
	assert.Nil(t, c.Pending())
	assert.Equal(t, "South", doc.Rows[0][0])

	assert.Equal(t, []string{
		"idle>classifying",
		"classifying>preview_ready",
		"preview_ready>executing",
		"executing>idle",
	}, transitions)
}

func TestSubmit_UnsupportedReturnsToIdle(t *testing.T) {
	doc := salesDoc()
	c := newController(action.NewRules("en"), doc)

	prop, err := c.Submit(context.Background(), "what's the weather")
	require.NoError(t, err)
	assert.Equal(t, action.KindUnsupported, prop.Action.Kind())
	assert.Nil(t, prop.Preview)
	assert.Equal(t, Idle, c.State())
	assert.Nil(t, c.Pending())
	assert.Empty(t, doc.Calls)

	_, err = c.Confirm(context.Background())
	assert.ErrorIs(t, err, ErrNoPending)
}

func TestSubmit_ReplacesPending(t *testing.T) {
	c := newController(action.NewRules("en"), salesDoc())

	first, err := c.Submit(context.Background(), "sort by sales")
	require.NoError(t, err)
	second, err := c.Submit(context.Background(), "add a profit column")
	require.NoError(t, err)

	assert.Greater(t, second.Seq, first.Seq)
	assert.Same(t, second, c.Pending())
	assert.IsType(t, &preview.FormulaPreview{}, second.Preview)
}

func TestSubmit_SupersededResultIsDropped(t *testing.T) {
	cls := newGated("sort by sales", "scatter sales")
	c := newController(cls, salesDoc())

	type result struct {
		prop *Proposal
		err  error
	}
	slow := make(chan result, 1)
	go func() {
		p, err := c.Submit(context.Background(), "sort by sales")
		slow <- result{p, err}
	}()
	require.Equal(t, "sort by sales", <-cls.entered)

	fast := make(chan result, 1)
	go func() {
		p, err := c.Submit(context.Background(), "scatter sales")
		fast <- result{p, err}
	}()
	require.Equal(t, "scatter sales", <-cls.entered)

	cls.release("scatter sales")
	r := <-fast
	require.NoError(t, r.err)
	assert.Equal(t, action.KindScatterPlot, r.prop.Action.Kind())

	cls.release("sort by sales")
	r = <-slow
	assert.ErrorIs(t, r.err, ErrSuperseded)
	assert.Nil(t, r.prop)

	pending := c.Pending()
	require.NotNil(t, pending)
	assert.Equal(t, action.KindScatterPlot, pending.Action.Kind())
	assert.Equal(t, PreviewReady, c.State())
}

func TestCancel_InvalidatesInFlightSubmit(t *testing.T) {
	cls := newGated("sort by sales")
	c := newController(cls, salesDoc())

	done := make(chan error, 1)
	go func() {
		_, err := c.Submit(context.Background(), "sort by sales")
		done <- err
	}()
	<-cls.entered
	c.Cancel()
	assert.Equal(t, Idle, c.State())

	cls.release("sort by sales")
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrSuperseded)
	case <-time.After(5 * time.Second):
		t.Fatal("submit did not return")
	}
	assert.Nil(t, c.Pending())
	assert.Equal(t, Idle, c.State())
}

func TestCancel_DiscardsPending(t *testing.T) {
	c := newController(action.NewRules("en"), salesDoc())
	_, err := c.Submit(context.Background(), "sort by sales")
	require.NoError(t, err)

	c.Cancel()
	assert.Nil(t, c.Pending())
	_, err = c.Confirm(context.Background())
	assert.ErrorIs(t, err, ErrNoPending)
}

// blockingDoc stalls SortTable until released.
type blockingDoc struct {
	*doctest.Document
	entered chan struct{}
	release chan struct{}
}

func (b *blockingDoc) SortTable(ctx context.Context, column int, ascending bool) error {
	close(b.entered)
	<-b.release
	return b.Document.SortTable(ctx, column, ascending)
}

func TestConfirm_SingleFlight(t *testing.T) {
	doc := &blockingDoc{Document: salesDoc(), entered: make(chan struct{}), release: make(chan struct{})}
	c := New(action.NewRules("en"), doc, WithLogger(quiet))

	_, err := c.Submit(context.Background(), "sort by sales")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := c.Confirm(context.Background())
		done <- err
	}()
	<-doc.entered
	assert.Equal(t, Executing, c.State())

	_, err = c.Confirm(context.Background())
	assert.ErrorIs(t, err, ErrBusy)
	_, err = c.Submit(context.Background(), "scatter sales")
	assert.ErrorIs(t, err, ErrBusy)

	close(doc.release)
	require.NoError(t, <-done)
	assert.Equal(t, Idle, c.State())
}

func TestSubmit_ClassifierErrorFails(t *testing.T) {
	boom := errors.New("classifier unavailable")
	var states []State
	c := newController(failingClassifier{err: boom}, salesDoc(), OnTransition(func(_, to State) {
		states = append(states, to)
	}))

	_, err := c.Submit(context.Background(), "sort by sales")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []State{Classifying, Failed, Idle}, states)
	assert.Equal(t, Idle, c.State())
}

func TestSubmit_PreviewErrorFails(t *testing.T) {
	doc := doctest.New([]string{"Region"}, []any{"North"})
	c := newController(action.NewRules("en"), doc)

	_, err := c.Submit(context.Background(), "sort by sales")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"Sales"`)
	assert.Equal(t, Idle, c.State())
	assert.Nil(t, c.Pending())
}

func TestConfirm_ExecutionErrorConsumesPending(t *testing.T) {
	doc := salesDoc()
	doc.Fail("SortTable", errors.New("sheet is protected"))
	c := newController(action.NewRules("en"), doc)

	_, err := c.Submit(context.Background(), "sort by sales")
	require.NoError(t, err)

	_, err = c.Confirm(context.Background())
	assert.ErrorIs(t, err, executor.ErrExecutionFailed)
	assert.Equal(t, Idle, c.State())
	assert.Nil(t, c.Pending())

	_, err = c.Confirm(context.Background())
	assert.ErrorIs(t, err, ErrNoPending)
}

// slowReadDoc stalls Snapshot until released and records whether a mutation
// ran while a read was in progress.
type slowReadDoc struct {
	*doctest.Document
	entered  chan struct{}
	release  chan struct{}
	reading  atomic.Bool
	overlaps atomic.Int32
}

func (d *slowReadDoc) Snapshot(ctx context.Context) (*document.TableSnapshot, error) {
	d.reading.Store(true)
	close(d.entered)
	<-d.release
	d.reading.Store(false)
	return d.Document.Snapshot(ctx)
}

func (d *slowReadDoc) AddColumn(ctx context.Context, name string) error {
	if d.reading.Load() {
		d.overlaps.Add(1)
	}
	return d.Document.AddColumn(ctx, name)
}

func TestConfirm_WaitsForStalePreviewRead(t *testing.T) {
	doc := &slowReadDoc{Document: salesDoc(), entered: make(chan struct{}), release: make(chan struct{})}
	classifying := make(chan struct{}, 4)
	c := New(action.NewRules("en"), doc, WithLogger(quiet), OnTransition(func(_, to State) {
		if to == Classifying {
			classifying <- struct{}{}
		}
	}))

	stale := make(chan error, 1)
	go func() {
		_, err := c.Submit(context.Background(), "sort by sales")
		stale <- err
	}()
	<-doc.entered

	applied := make(chan error, 1)
	go func() {
		if _, err := c.Submit(context.Background(), "insert profits"); err != nil {
			applied <- err
			return
		}
		_, err := c.Confirm(context.Background())
		applied <- err
	}()
	<-classifying
	<-classifying

	select {
	case err := <-applied:
		t.Fatalf("insert finished while the stale read was still running (err=%v)", err)
	case <-time.After(50 * time.Millisecond):
	}
	assert.Empty(t, doc.Mutations())

	close(doc.release)
	assert.ErrorIs(t, <-stale, ErrSuperseded)
	require.NoError(t, <-applied)
	assert.Zero(t, doc.overlaps.Load())
	assert.Equal(t, "Profits", doc.Header[len(doc.Header)-1])
	assert.Equal(t, Idle, c.State())
}
