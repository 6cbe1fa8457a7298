package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/witanlabs/witan-assist/action"
	"github.com/witanlabs/witan-assist/pipeline"
	"github.com/witanlabs/witan-assist/preview"
)

// ExitError signals a non-zero exit code without printing an error message.
type ExitError struct{ Code int }

func (e *ExitError) Error() string { return "" }

// exitUnsupported is returned when the request maps to no action.
const exitUnsupported = 2

func jsonPrint(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// proposalJSON is the --json shape of a proposal.
type proposalJSON struct {
	Seq         uint64          `json:"seq"`
	Action      action.Kind     `json:"action"`
	Description string          `json:"description"`
	PreviewKind string          `json:"preview_kind,omitempty"`
	Preview     preview.Payload `json:"preview,omitempty"`
}

func toProposalJSON(p *pipeline.Proposal) proposalJSON {
	out := proposalJSON{
		Seq:         p.Seq,
		Action:      p.Action.Kind(),
		Description: p.Description,
		Preview:     p.Preview,
	}
	if p.Preview != nil {
		out.PreviewKind = p.Preview.Kind()
	}
	return out
}

// outcomeJSON is the --json shape of an applied action.
type outcomeJSON struct {
	Seq     uint64      `json:"seq"`
	Action  action.Kind `json:"action"`
	Changed bool        `json:"changed"`
	Detail  string      `json:"detail"`
}

func toOutcomeJSON(o *pipeline.Outcome) outcomeJSON {
	return outcomeJSON{Seq: o.Seq, Action: o.Action.Kind(), Changed: o.Changed, Detail: o.Detail}
}

func renderProposal(w io.Writer, p *pipeline.Proposal) {
	fmt.Fprintln(w, p.Description)
	if p.Preview == nil {
		return
	}
	fmt.Fprintln(w)
	renderPreview(w, p.Preview)
}

func renderPreview(w io.Writer, payload preview.Payload) {
	switch pv := payload.(type) {
	case *preview.TablePreview:
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, strings.Join(pv.Header, "\t"))
		for _, row := range pv.Rows {
			cells := make([]string, len(pv.Header))
			for i := range cells {
				if i < len(row) {
					cells[i] = formatCell(row[i])
				}
			}
			fmt.Fprintln(tw, strings.Join(cells, "\t"))
		}
		tw.Flush()
	case *preview.ScatterPreview:
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintf(tw, "%s\t%s\t\n", pv.XLabel, pv.YLabel)
		for _, pt := range pv.Points {
			fmt.Fprintf(tw, "%s\t%s\t\n", formatCell(pt.X), formatCell(pt.Y))
		}
		tw.Flush()
		fmt.Fprintf(w, "%d points\n", len(pv.Points))
	case *preview.FormulaPreview:
		fmt.Fprintf(w, "%s = %s\n", pv.Column, pv.Expression)
		fmt.Fprintf(w, "formula: %s\n", pv.Formula)
	}
}

func renderOutcome(w io.Writer, o *pipeline.Outcome) {
	if !o.Changed {
		fmt.Fprintf(w, "Nothing to do: %s\n", o.Detail)
		return
	}
	fmt.Fprintf(w, "Applied: %s\n", o.Detail)
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case string:
		return x
	}
	return fmt.Sprint(v)
}
