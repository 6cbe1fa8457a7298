package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/witanlabs/witan-assist/action"
	"github.com/witanlabs/witan-assist/pipeline"
)

var chatCmd = &cobra.Command{
	Use:   "chat <file>",
	Short: "Interactive preview and apply session on a workbook",
	Long: `Type requests one per line. Each request replaces the previous preview.

Commands:
  apply, y     apply the pending preview and save the workbook
  cancel, n    discard the pending preview
  help         list supported requests
  quit, exit   leave (also Ctrl-D)

Example:
  witan-assist chat report.xlsx`,
	Args: cobra.ExactArgs(1),
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	s, err := resolveSettings()
	if err != nil {
		return err
	}
	wb, err := openWorkbook(args[0], s)
	if err != nil {
		return err
	}
	defer wb.Close()
	classifier, closeClassifier, err := newClassifier(s)
	if err != nil {
		return err
	}
	defer closeClassifier()

	logger := slog.Default()
	ctrl := pipeline.New(classifier, wb,
		pipeline.WithLogger(logger),
		pipeline.OnTransition(func(from, to pipeline.State) {
			logger.Debug("State changed", slog.String("from", from.String()), slog.String("to", to.String()))
		}))

	return chatLoop(cmd, ctrl, s.Locale)
}

func chatLoop(cmd *cobra.Command, ctrl *pipeline.Controller, locale string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	catalog := action.DefaultCatalog()
	sc := bufio.NewScanner(cmd.InOrStdin())

	fmt.Fprintln(out, "Type a request, or 'help'.")
	for {
		fmt.Fprint(out, "> ")
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "quit", "exit":
			return nil
		case "help":
			for _, k := range action.Kinds {
				if k == action.KindUnsupported {
					continue
				}
				fmt.Fprintf(out, "  %s\n", catalog.Describe(locale, k))
			}
			continue
		case "cancel", "n", "no":
			ctrl.Cancel()
			fmt.Fprintln(out, "Cancelled.")
			continue
		}

		if isYes(line) {
			outcome, err := ctrl.Confirm(ctx)
			switch {
			case errors.Is(err, pipeline.ErrNoPending):
				fmt.Fprintln(out, "Nothing to apply.")
			case err != nil:
				fmt.Fprintf(out, "Error: %v\n", err)
			default:
				renderOutcome(out, outcome)
			}
			continue
		}

		prop, err := ctrl.Submit(ctx, line)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(out, "Error: %v\n", err)
			continue
		}
		renderProposal(out, prop)
		if action.IsSupported(prop.Action) {
			fmt.Fprintln(out, "Type 'apply' to make this change.")
		}
	}
}
