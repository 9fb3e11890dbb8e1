package app

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/distplan/internal/cache"
	"github.com/blackwell-systems/distplan/internal/output"
	"github.com/blackwell-systems/distplan/internal/planner"
	"github.com/blackwell-systems/distplan/internal/space"
	"github.com/blackwell-systems/distplan/internal/store"
)

var showCmd = &cobra.Command{
	Use:   "show [id|latest]",
	Short: "Show a recorded plan",
	Long: `Show the changes, space requirements and notes of a recorded plan.
Without an argument the latest plan is shown.`,
	Example: `  distplan show
  distplan show 42`,
	Args: cobra.MaximumNArgs(1),
	RunE: runShow,
}

func runShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	var p *store.Plan
	if len(args) == 0 || args[0] == "latest" {
		p, err = st.LatestPlan()
		if err != nil {
			return err
		}
		if p == nil {
			return fmt.Errorf("no recorded plans")
		}
	} else {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid plan id %q", args[0])
		}
		p, err = st.GetPlan(id)
		if err != nil {
			return err
		}
	}

	renderRecord(cmd.OutOrStdout(), p)
	return nil
}

// renderRecord prints a recorded plan.
func renderRecord(w io.Writer, p *store.Plan) {
	fmt.Fprintf(w, "Plan #%d, %s: %s\n", p.ID, p.CreatedAt.Local().Format("2006-01-02 15:04:05"), p.Outcome)
	if p.Message != "" {
		fmt.Fprintf(w, "\n%s\n", p.Message)
	}

	if p.Outcome == planner.KindSuccess {
		mode := "desktop"
		if p.ServerMode {
			mode = "server"
		}
		fmt.Fprintf(w, "Mode: %s", mode)
		if p.MetaPackage != "" {
			fmt.Fprintf(w, ", meta-package %s", p.MetaPackage)
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w)
		fmt.Fprint(w, output.RenderChangeTable(recordedChanges(p.Changes)))
	}

	if len(p.Space) > 0 {
		required := make(map[string]int64, len(p.Space))
		var deficits []space.Deficit
		for _, sp := range p.Space {
			required[sp.MountPoint] = sp.RequiredBytes
			if sp.ShortBy > 0 {
				deficits = append(deficits, space.Deficit{
					MountPoint: sp.MountPoint,
					Required:   sp.RequiredBytes,
					ShortBy:    sp.ShortBy,
				})
			}
		}
		fmt.Fprintln(w)
		fmt.Fprint(w, output.RenderSpaceTable(required, deficits))
	}

	lists := []struct {
		title string
		kind  string
	}{
		{"Without a trusted origin", store.NoteUntrusted},
		{"Demoted from the supported set", store.NoteDemoted},
		{"From foreign archives", store.NoteForeign},
		{"Need to be reinstalled", store.NoteReqReinst},
	}
	for _, l := range lists {
		if s := output.RenderNameList(l.title, p.NoteValues(l.kind)); s != "" {
			fmt.Fprintln(w)
			fmt.Fprint(w, s)
		}
	}
	for _, warning := range p.NoteValues(store.NoteWarning) {
		fmt.Fprintf(w, "Warning: %s\n", warning)
	}
}

// recordedChanges converts stored changes back into plan changes.
// Unknown marks render as keep.
func recordedChanges(changes []store.Change) []planner.PackageChange {
	out := make([]planner.PackageChange, 0, len(changes))
	for _, ch := range changes {
		mark, _ := cache.ParseMark(ch.Mark)
		out = append(out, planner.PackageChange{
			Name:         ch.Package,
			Mark:         mark,
			Auto:         ch.Auto,
			From:         ch.FromVersion,
			To:           ch.ToVersion,
			DownloadSize: ch.DownloadBytes,
		})
	}
	return out
}
