package app

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/distplan/internal/output"
	"github.com/blackwell-systems/distplan/internal/store"
)

var (
	historyLimit   int
	historyPackage string
	historyPrune   int

	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "List recorded plans",
		Long: `List the plans recorded with 'distplan plan --record' or 'distplan watch',
newest first. Failed runs are recorded too, with the reason they failed.`,
		Example: `  # Show the last 20 plans
  distplan history

  # Show plans that would remove or upgrade a package
  distplan history --package libc6

  # Delete plans older than 30 days
  distplan history --prune 30`,
		Args: cobra.NoArgs,
		RunE: runHistory,
	}
)

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of plans to show (0 for all)")
	historyCmd.Flags().StringVar(&historyPackage, "package", "", "only show plans that change this package")
	historyCmd.Flags().IntVar(&historyPrune, "prune", 0, "delete plans older than this many days")
}

func runHistory(cmd *cobra.Command, args []string) error {
	if historyPrune < 0 {
		return fmt.Errorf("invalid prune: %d (must be positive)", historyPrune)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if historyPrune > 0 {
		cutoff := time.Now().AddDate(0, 0, -historyPrune)
		n, err := st.DeletePlansBefore(cutoff)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d plans older than %d days.\n", n, historyPrune)
		return nil
	}

	plans, err := listHistory(st, historyLimit, historyPackage)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), output.RenderHistoryTable(plans))
	return nil
}

// listHistory returns up to limit plans, newest first, restricted to plans
// changing pkg when pkg is set.
func listHistory(st *store.Store, limit int, pkg string) ([]*store.Plan, error) {
	if pkg == "" {
		return st.ListPlans(limit)
	}

	ids, err := st.PlansChanging(pkg)
	if err != nil {
		return nil, err
	}
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	all, err := st.ListPlans(0)
	if err != nil {
		return nil, err
	}
	var plans []*store.Plan
	for _, p := range all {
		if !want[p.ID] {
			continue
		}
		plans = append(plans, p)
		if limit > 0 && len(plans) == limit {
			break
		}
	}
	return plans, nil
}
