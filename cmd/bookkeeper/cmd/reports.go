package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tinoosan/bookkeeper/internal/ledger"
	"github.com/tinoosan/bookkeeper/internal/service/report"
)

type statementFlags struct {
	interval    string
	period      string
	listPeriods bool
}

var (
	incomeFlags  statementFlags
	balanceFlags statementFlags
)

var incomeStatementCmd = &cobra.Command{
	Use:   "income-statement",
	Short: "Print revenues, expenses, gains and losses for a period",
	Long: `Print the non-zero income statement lines of a period and the net income.
Without --period the most recent period with activity is shown.

Example:
  bookkeeper income-statement --interval YYYY-Q --period 2024-1
  bookkeeper income-statement --list-periods`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpenApp(cmd.Context())
		defer a.Close()
		runStatement(cmd.Context(), incomeFlags, "Net income", a.reports.IncomeStatement, a.reports.IncomeStatementPeriods)
	},
}

var balanceSheetCmd = &cobra.Command{
	Use:   "balance-sheet",
	Short: "Print assets, liabilities and capital as of the end of a period",
	Long: `Print the non-zero balance sheet lines as of the end of a period and the net equity.
Without --period the most recent period in the journal is shown.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpenApp(cmd.Context())
		defer a.Close()
		runStatement(cmd.Context(), balanceFlags, "Net equity", a.reports.BalanceSheet, a.reports.BalanceSheetPeriods)
	},
}

func init() {
	for _, c := range []struct {
		cmd   *cobra.Command
		flags *statementFlags
	}{{incomeStatementCmd, &incomeFlags}, {balanceSheetCmd, &balanceFlags}} {
		c.cmd.Flags().StringVar(&c.flags.interval, "interval", string(ledger.IntervalMonth), "period interval: YYYY, YYYY-Q, YYYY-MM, YYYY-WW or YYYY-MM-DD")
		c.cmd.Flags().StringVar(&c.flags.period, "period", "", "period label, e.g. 2024-03 (default most recent)")
		c.cmd.Flags().BoolVar(&c.flags.listPeriods, "list-periods", false, "list the periods available instead of printing a statement")
	}
}

type statementFunc func(ctx context.Context, iv ledger.PeriodInterval, period string) (report.Statement, error)
type periodsFunc func(ctx context.Context, iv ledger.PeriodInterval) ([]string, error)

func runStatement(ctx context.Context, f statementFlags, totalLabel string, statement statementFunc, periods periodsFunc) {
	iv, err := ledger.ParseInterval(f.interval)
	exitOnError(err, "invalid --interval")
	if f.listPeriods {
		ps, err := periods(ctx, iv)
		exitOnError(err, "failed to list periods")
		for _, p := range ps {
			fmt.Println(p)
		}
		return
	}
	st, err := statement(ctx, iv, f.period)
	exitOnError(err, "failed to build statement")
	exitOnError(printStatement(os.Stdout, st, totalLabel), "failed to write output")
}

// printStatement renders lines grouped under their element, then the total.
func printStatement(w io.Writer, st report.Statement, totalLabel string) error {
	if st.Period == "" {
		_, err := fmt.Fprintln(w, "no activity")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "Period %s (%s)\t\t\n", st.Period, st.Interval)
	element := ""
	for _, l := range st.Lines {
		if l.Element != element {
			element = l.Element
			fmt.Fprintf(tw, "%s\t\t\n", element)
		}
		fmt.Fprintf(tw, "  %s / %s / %s\t%s\t\n", l.Classification, l.Account, l.Subaccount, l.Amount)
	}
	fmt.Fprintf(tw, "%s\t%s\t\n", totalLabel, st.Total)
	return tw.Flush()
}
