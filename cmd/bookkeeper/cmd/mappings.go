package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tinoosan/bookkeeper/internal/ledger"
	"github.com/tinoosan/bookkeeper/internal/service/mapping"
)

var loadApply bool

var loadMappingsCmd = &cobra.Command{
	Use:   "load-mappings <yaml>",
	Short: "Store keyword mapping rules from a YAML file",
	Long: `Store the rules listed in a YAML file. A rule whose source and keyword already
exist is left as it is.

Example rules.yaml:
  mappings:
    - source: ofx
      keyword: starbucks
      negative_debit: Coffee
    - source: ofx
      keyword: acme payroll
      positive_credit: Salary`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		rules, err := mapping.ReadFile(args[0])
		exitOnError(err, "failed to read mapping rules")

		a := mustOpenApp(cmd.Context())
		defer a.Close()
		res, err := a.mappings.Load(cmd.Context(), rules)
		exitOnError(err, "failed to store mapping rules")
		fmt.Printf("stored %d rules, %d already present\n", res.Created, res.Existing)
		if loadApply {
			applyAll(cmd, a)
		}
	},
}

var applyAllMappingsCmd = &cobra.Command{
	Use:   "apply-all-mappings",
	Short: "Post every unmatched transaction a mapping rule wins",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpenApp(cmd.Context())
		defer a.Close()
		applyAll(cmd, a)
	},
}

func applyAll(cmd *cobra.Command, a *app) {
	res, err := a.mappings.ApplyAll(cmd.Context())
	exitOnError(err, "failed to apply mappings")
	fmt.Printf("matched %d, posted %d, duplicates %d, zero amount %d, rejected %d, subaccounts created %d\n",
		res.Matched, res.Posted, res.Duplicates, res.ZeroAmount, res.Rejected, res.SubaccountsCreated)
}

var overlapSource string

var mappingOverlapsCmd = &cobra.Command{
	Use:   "mapping-overlaps",
	Short: "List descriptions matched by more than one rule",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpenApp(cmd.Context())
		defer a.Close()
		ovs, err := a.mappings.Overlaps(cmd.Context(), ledger.Source(overlapSource))
		exitOnError(err, "failed to list mapping overlaps")
		if len(ovs) == 0 {
			fmt.Println("no overlapping rules")
			return
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SOURCE\tDESCRIPTION\tKEYWORD 1\tKEYWORD 2")
		for _, o := range ovs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", o.Source, o.Description, o.Keyword1, o.Keyword2)
		}
		exitOnError(tw.Flush(), "failed to write output")
	},
}

func init() {
	loadMappingsCmd.Flags().BoolVar(&loadApply, "apply", false, "apply every mapping rule after loading")
	mappingOverlapsCmd.Flags().StringVar(&overlapSource, "source", "", "only check rules of this source")
}
