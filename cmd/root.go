package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/witanlabs/witan-assist/action"
	"github.com/witanlabs/witan-assist/client"
	"github.com/witanlabs/witan-assist/config"
	"github.com/witanlabs/witan-assist/document"
)

// Version is set at build time via -ldflags.
var Version = "dev"

const envPrefix = "WITAN_ASSIST_"

var (
	classifierURL string
	apiKey        string
	locale        string
	sheetName     string
	timeout       time.Duration
	verbose       bool
)

var rootCmd = &cobra.Command{
	Use:   "witan-assist",
	Short: "Natural-language spreadsheet actions with preview and apply",
	Long: `Turn a plain-language request into one of a small set of spreadsheet
actions, preview what it would do, then apply it.

Supported requests:
  sort by sales                  sort the table by Sales, highest first
  scatter sales vs costs         chart Sales (X) against Costs (Y)
  insert profits                 add Profits = Sales - Costs

Without --classifier-url the keyword rules run locally.`,
	Version:           Version,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&classifierURL, "classifier-url", "", "Classifier endpoint, http(s):// or ws(s):// (env: WITAN_ASSIST_CLASSIFIER_URL)")
	pf.StringVar(&apiKey, "api-key", "", "Classifier API key (env: WITAN_ASSIST_API_KEY)")
	pf.StringVar(&locale, "locale", "", "Description language, en or zh-CN (env: WITAN_ASSIST_LOCALE)")
	pf.StringVar(&sheetName, "sheet", "", "Sheet holding the table; defaults to the active sheet (env: WITAN_ASSIST_SHEET)")
	pf.DurationVar(&timeout, "timeout", 0, "Per-request classifier timeout, 0 for none (env: WITAN_ASSIST_TIMEOUT)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Debug logging on stderr (env: WITAN_ASSIST_VERBOSE)")
}

func setup(cmd *cobra.Command, _ []string) error {
	if err := applyEnv(cmd.Flags()); err != nil {
		return err
	}
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

// envName maps a flag name to its environment variable.
func envName(flag string) string {
	return envPrefix + strings.ToUpper(strings.ReplaceAll(flag, "-", "_"))
}

// applyEnv fills every flag the user did not set from its WITAN_ASSIST_*
// variable, if present.
func applyEnv(fs *pflag.FlagSet) error {
	var firstErr error
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Changed || firstErr != nil {
			return
		}
		v, ok := os.LookupEnv(envName(f.Name))
		if !ok || v == "" {
			return
		}
		if err := fs.Set(f.Name, v); err != nil {
			firstErr = fmt.Errorf("invalid %s: %w", envName(f.Name), err)
		}
	})
	return firstErr
}

// settings is the resolved configuration for one command run.
type settings struct {
	ClassifierURL string
	APIKey        string
	Locale        string
	Sheet         string
	Timeout       time.Duration
}

// resolveSettings layers the config file under flags and environment.
func resolveSettings() (settings, error) {
	s := settings{
		ClassifierURL: classifierURL,
		APIKey:        apiKey,
		Locale:        locale,
		Sheet:         sheetName,
		Timeout:       timeout,
	}
	cfg, err := config.Load()
	if err != nil {
		return settings{}, fmt.Errorf("loading config: %w", err)
	}
	if s.ClassifierURL == "" {
		s.ClassifierURL = cfg.ClassifierURL
	}
	if s.APIKey == "" {
		s.APIKey = cfg.APIKey
	}
	if s.Locale == "" {
		s.Locale = cfg.Locale
	}
	if s.Locale == "" {
		s.Locale = action.DefaultLocale
	}
	if s.Sheet == "" {
		s.Sheet = cfg.Sheet
	}
	if s.Timeout == 0 && cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return settings{}, fmt.Errorf("config timeout %q: %w", cfg.Timeout, err)
		}
		s.Timeout = d
	}
	return s, nil
}

// newClassifier returns the local rules, or a remote classifier when a URL is
// configured. The returned func releases any connection it holds.
func newClassifier(s settings) (action.Classifier, func(), error) {
	if s.ClassifierURL == "" {
		return action.NewRules(s.Locale), func() {}, nil
	}
	c, err := client.NewRemote(s.ClassifierURL, s.APIKey, s.Locale)
	if err != nil {
		return nil, nil, err
	}
	switch c := c.(type) {
	case *client.Client:
		c.Timeout = s.Timeout
		c.UserAgent = "witan-assist/" + Version
		return c, func() {}, nil
	case *client.WSClassifier:
		return c, func() { _ = c.Close() }, nil
	}
	return c, func() {}, nil
}

func openWorkbook(path string, s settings) (*document.Workbook, error) {
	return document.Open(path, document.WithSheet(s.Sheet), document.WithLogger(slog.Default()))
}

func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}
