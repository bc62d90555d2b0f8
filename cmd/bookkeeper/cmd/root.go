// Package cmd provides the bookkeeper CLI commands.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tinoosan/bookkeeper/internal/config"
)

var (
	envFile   string
	logLevel  string
	logFormat string

	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "bookkeeper",
	Short: "Double-entry ledger with incrementally maintained trial balances",
	Long: `bookkeeper records journal entries against a four-level chart of accounts,
keeps per-period trial balances current as entries are posted, and turns
imported bank transactions into entries with keyword mapping rules.

The storage backend is chosen by DATABASE_URL: postgres://... for PostgreSQL,
sqlite://path for a local SQLite file, or unset for an in-memory store.

Example:
  bookkeeper create-schema
  bookkeeper populate-chart-of-accounts chart.csv
  bookkeeper import-transactions --source ofx --account "Chase Checking" checking.csv
  bookkeeper load-mappings rules.yaml
  bookkeeper apply-all-mappings
  bookkeeper income-statement --interval YYYY-MM`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(envFile)
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		if logFormat != "" {
			cfg.LogFormat = logFormat
		}
		slog.SetDefault(newLogger(cfg.LogLevel, cfg.LogFormat))
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
// Commands see a context that is cancelled on SIGINT or SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "env file to load (default is .env when present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error (overrides LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: json or text (overrides LOG_FORMAT)")

	rootCmd.AddCommand(createSchemaCmd)
	rootCmd.AddCommand(populateChartCmd)
	rootCmd.AddCommand(importTransactionsCmd)
	rootCmd.AddCommand(loadMappingsCmd)
	rootCmd.AddCommand(applyAllMappingsCmd)
	rootCmd.AddCommand(mappingOverlapsCmd)
	rootCmd.AddCommand(refreshTrialBalancesCmd)
	rootCmd.AddCommand(verifyTrialBalancesCmd)
	rootCmd.AddCommand(incomeStatementCmd)
	rootCmd.AddCommand(balanceSheetCmd)
	rootCmd.AddCommand(serveCmd)
}

// parseLogLevel maps config values to slog.Leveler
func parseLogLevel(s string) slog.Leveler {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "err":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newLogger writes to stderr so report output on stdout stays clean.
func newLogger(level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(level)}
	if strings.EqualFold(strings.TrimSpace(format), "text") {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

// Helper function to handle errors and exit.
func exitOnError(err error, msg string) {
	if err != nil {
		slog.Error(msg, "error", err)
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
		os.Exit(1)
	}
}
