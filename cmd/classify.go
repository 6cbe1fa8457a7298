package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/witanlabs/witan-assist/action"
)

var classifyCmd = &cobra.Command{
	Use:   "classify <text...>",
	Short: "Show which action a request maps to",
	Long: `Classify a plain-language request without touching any workbook.

Prints the action name and its description. Exits with status 2 when the
request maps to no supported action.

Examples:
  witan-assist classify sort by sales
  witan-assist classify --locale zh-CN "insert profits"
  witan-assist classify --json scatter sales and costs`,
	Args: cobra.MinimumNArgs(1),
	RunE: runClassify,
}

func init() {
	classifyCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output JSON")
	rootCmd.AddCommand(classifyCmd)
}

func runClassify(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	s, err := resolveSettings()
	if err != nil {
		return err
	}
	classifier, closeFn, err := newClassifier(s)
	if err != nil {
		return err
	}
	defer closeFn()

	text := strings.TrimSpace(strings.Join(args, " "))
	if text == "" {
		return fmt.Errorf("nothing to classify")
	}
	res, err := classifier.Classify(cmd.Context(), text)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		if err := jsonPrint(out, map[string]string{
			"action":      string(res.Action.Kind()),
			"description": res.Description,
		}); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(out, "%s\t%s\n", res.Action.Kind(), res.Description)
	}
	if !action.IsSupported(res.Action) {
		return &ExitError{Code: exitUnsupported}
	}
	return nil
}
