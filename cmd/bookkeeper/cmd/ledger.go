package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tinoosan/bookkeeper/internal/errs"
	"github.com/tinoosan/bookkeeper/internal/importer"
	"github.com/tinoosan/bookkeeper/internal/ledger"
)

var createSchemaCmd = &cobra.Command{
	Use:   "create-schema",
	Short: "Create the database tables and indexes",
	Long: `Create the chart of accounts, journal, trial balance and mapping tables.
Every statement is idempotent, so running it against an existing database is safe.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpenApp(cmd.Context())
		defer a.Close()
		exitOnError(a.store.Migrate(cmd.Context()), "failed to create schema")
		fmt.Println("schema ready")
	},
}

var populateChartCmd = &cobra.Command{
	Use:   "populate-chart-of-accounts <csv>",
	Short: "Seed the chart of accounts from a CSV file",
	Long: `Seed elements, classifications, accounts and subaccounts from a CSV file with
the header Element,Classification,Account[,Cash Source][,Subaccount][,Tags].
Names that already exist are left untouched. If any row is invalid nothing is written.

Example:
  bookkeeper populate-chart-of-accounts chart.csv`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		f, err := os.Open(args[0])
		exitOnError(err, "failed to open chart of accounts")
		defer f.Close()

		a := mustOpenApp(cmd.Context())
		defer a.Close()
		res, itemErrs, err := a.taxonomy.SeedCSV(cmd.Context(), f)
		exitOnError(err, "failed to seed chart of accounts")
		if len(itemErrs) > 0 {
			for _, e := range itemErrs {
				fmt.Fprintln(os.Stderr, e.Error())
			}
			exitOnError(fmt.Errorf("%w: %d invalid rows", errs.ErrInvalid, len(itemErrs)), "chart of accounts rejected")
		}
		fmt.Printf("created %d elements, %d classifications, %d accounts, %d subaccounts\n",
			res.Elements, res.Classifications, res.Accounts, res.Subaccounts)
	},
}

var (
	importSource   string
	importAccount  string
	importCurrency string
	importApply    bool
)

var importTransactionsCmd = &cobra.Command{
	Use:   "import-transactions <csv>",
	Short: "Record downloaded bank transactions for categorisation",
	Long: `Record transactions from a CSV feed with the columns id, date, amount, description
and optionally account, source and currency. Rows already recorded for the same
source are skipped, so overlapping downloads can be imported repeatedly.

Example:
  bookkeeper import-transactions --source ofx --account "Chase Checking" checking.csv
  bookkeeper import-transactions --apply amazon.csv --source amazon --account "Amazon Card"`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		f, err := os.Open(args[0])
		exitOnError(err, "failed to open transactions file")
		defer f.Close()

		a := mustOpenApp(cmd.Context())
		defer a.Close()
		currency := importCurrency
		if currency == "" {
			currency = cfg.FunctionalCurrency
		}
		opts := importer.Options{Source: ledger.Source(importSource), Currency: currency, Account: importAccount}
		res, err := importer.Import(cmd.Context(), a.posting, f, opts, nil)
		exitOnError(err, "failed to import transactions")
		for _, e := range res.Errors {
			fmt.Fprintln(os.Stderr, e.Error())
		}
		fmt.Printf("read %d rows: %d new, %d already recorded, %d skipped\n",
			res.Read, res.Inserted, res.Existing, len(res.Errors))
		if importApply {
			applyAll(cmd, a)
		}
	},
}

func init() {
	importTransactionsCmd.Flags().StringVar(&importSource, "source", string(ledger.SourceOFX), "transaction source when the feed has no source column")
	importTransactionsCmd.Flags().StringVar(&importAccount, "account", "", "subaccount the transactions belong to when the feed has no account column")
	importTransactionsCmd.Flags().StringVar(&importCurrency, "currency", "", "currency of the amounts (default FUNCTIONAL_CURRENCY)")
	importTransactionsCmd.Flags().BoolVar(&importApply, "apply", false, "apply every mapping rule after importing")
}

var refreshTrialBalancesCmd = &cobra.Command{
	Use:   "refresh-trial-balances",
	Short: "Rebuild every trial balance row from the journal",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpenApp(cmd.Context())
		defer a.Close()
		res, err := a.balances.Refresh(cmd.Context())
		exitOnError(err, "failed to refresh trial balances")
		fmt.Printf("refreshed %d rows in %d steps (%s)\n", res.Rows, res.Steps, res.Duration.Round(time.Millisecond))
	},
}

var verifyTrialBalancesCmd = &cobra.Command{
	Use:   "verify-trial-balances",
	Short: "Check stored trial balances against a recomputation from the journal",
	Long: `Recompute every trial balance row from the journal and compare it with the stored
rows. Exits non-zero on drift; run refresh-trial-balances to repair it.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpenApp(cmd.Context())
		defer a.Close()
		err := a.balances.Verify(cmd.Context())
		if errors.Is(err, errs.ErrDrift) {
			exitOnError(err, "trial balances drifted from the journal")
		}
		exitOnError(err, "failed to verify trial balances")
		fmt.Println("trial balances match the journal")
	},
}
