package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/witanlabs/witan-assist/action"
	"github.com/witanlabs/witan-assist/pipeline"
)

var (
	jsonOutput bool
	applyYes   bool
)

var xlsxCmd = &cobra.Command{
	Use:   "xlsx",
	Short: "Spreadsheet commands",
	Long: `Run a plain-language request against the first table of an .xlsx workbook.

Commands:
  preview  Show what the request would do. The workbook is not modified.
  apply    Preview, confirm, then change the workbook and save it in place.

Output:
  default  Human-friendly summaries
  --json   JSON for automation

Examples:
  witan-assist xlsx preview report.xlsx sort by sales
  witan-assist xlsx apply --yes report.xlsx insert profits
  witan-assist xlsx --json preview report.xlsx scatter sales vs costs`,
}

var xlsxPreviewCmd = &cobra.Command{
	Use:   "preview <file> <text...>",
	Short: "Preview a request without changing the workbook",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runXlsxPreview,
}

var xlsxApplyCmd = &cobra.Command{
	Use:   "apply <file> <text...>",
	Short: "Apply a request to the workbook",
	Long: `Classify the request, show its preview and ask for confirmation before
changing the workbook. --yes skips the prompt.

Examples:
  witan-assist xlsx apply report.xlsx sort by sales
  witan-assist xlsx apply -y report.xlsx scatter sales and costs`,
	Args: cobra.MinimumNArgs(2),
	RunE: runXlsxApply,
}

func init() {
	xlsxCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output JSON instead of human-formatted summaries")
	xlsxApplyCmd.Flags().BoolVarP(&applyYes, "yes", "y", false, "Apply without asking")
	xlsxCmd.AddCommand(xlsxPreviewCmd, xlsxApplyCmd)
	rootCmd.AddCommand(xlsxCmd)
}

// propose opens the workbook and submits text. The caller closes the
// returned closer.
func propose(ctx context.Context, args []string) (*pipeline.Controller, *pipeline.Proposal, func(), error) {
	s, err := resolveSettings()
	if err != nil {
		return nil, nil, nil, err
	}
	wb, err := openWorkbook(args[0], s)
	if err != nil {
		return nil, nil, nil, err
	}
	classifier, closeClassifier, err := newClassifier(s)
	if err != nil {
		_ = wb.Close()
		return nil, nil, nil, err
	}
	closer := func() {
		closeClassifier()
		_ = wb.Close()
	}

	ctrl := pipeline.New(classifier, wb)
	prop, err := ctrl.Submit(ctx, strings.Join(args[1:], " "))
	if err != nil {
		closer()
		return nil, nil, nil, err
	}
	return ctrl, prop, closer, nil
}

func runXlsxPreview(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	_, prop, closer, err := propose(cmd.Context(), args)
	if err != nil {
		return err
	}
	defer closer()

	out := cmd.OutOrStdout()
	if jsonOutput {
		if err := jsonPrint(out, toProposalJSON(prop)); err != nil {
			return err
		}
	} else {
		renderProposal(out, prop)
	}
	if !action.IsSupported(prop.Action) {
		return &ExitError{Code: exitUnsupported}
	}
	return nil
}

func runXlsxApply(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	ctrl, prop, closer, err := propose(cmd.Context(), args)
	if err != nil {
		return err
	}
	defer closer()

	out := cmd.OutOrStdout()
	if !action.IsSupported(prop.Action) {
		if jsonOutput {
			_ = jsonPrint(out, toProposalJSON(prop))
		} else {
			renderProposal(out, prop)
		}
		return &ExitError{Code: exitUnsupported}
	}

	if !jsonOutput {
		renderProposal(out, prop)
	}
	if !applyYes {
		ok, err := confirm(cmd.InOrStdin(), cmd.ErrOrStderr(), "Apply? [y/N] ")
		if err != nil {
			return err
		}
		if !ok {
			ctrl.Cancel()
			fmt.Fprintln(cmd.ErrOrStderr(), "Cancelled.")
			return nil
		}
	}

	outcome, err := ctrl.Confirm(cmd.Context())
	if err != nil {
		return err
	}
	if jsonOutput {
		return jsonPrint(out, struct {
			Proposal proposalJSON `json:"proposal"`
			Outcome  outcomeJSON  `json:"outcome"`
		}{toProposalJSON(prop), toOutcomeJSON(outcome)})
	}
	renderOutcome(out, outcome)
	return nil
}

// confirm asks a yes/no question. EOF counts as no.
func confirm(in io.Reader, prompt io.Writer, question string) (bool, error) {
	fmt.Fprint(prompt, question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	return isYes(line), nil
}

func isYes(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yes", "apply":
		return true
	}
	return false
}
