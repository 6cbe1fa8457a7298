package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/witanlabs/witan-assist/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change saved defaults",
	Long: `Saved defaults apply when neither a flag nor a WITAN_ASSIST_* variable is set.

Keys: ` + strings.Join(config.Keys, ", ") + `

Examples:
  witan-assist config show
  witan-assist config set classifier-url http://localhost:3001
  witan-assist config set locale zh-CN
  witan-assist config reset`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the saved defaults",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> [value]",
	Short: "Save a default; omit the value to clear it",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runConfigSet,
}

var configResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete the config file",
	Args:  cobra.NoArgs,
	RunE:  runConfigReset,
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd, configResetCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	p, err := config.Path()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "# %s\n", p)
	for _, key := range config.Keys {
		v, _ := cfg.Get(key)
		if key == "api-key" {
			v = maskSecret(v)
		}
		fmt.Fprintf(out, "%s = %s\n", key, v)
	}
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	value := ""
	if len(args) == 2 {
		value = args[1]
	}
	if err := cfg.Set(args[0], value); err != nil {
		return err
	}
	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	if value == "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "✓ Cleared %s\n", args[0])
	} else {
		fmt.Fprintf(cmd.ErrOrStderr(), "✓ Saved %s\n", args[0])
	}
	return nil
}

func runConfigReset(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	if err := config.Delete(); err != nil {
		return fmt.Errorf("failed to delete config: %w", err)
	}
	fmt.Fprintln(cmd.ErrOrStderr(), "✓ Config reset")
	return nil
}

// maskSecret keeps the last four characters of s.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}
