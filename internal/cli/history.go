package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/dshills/revgate/internal/history"
	"github.com/dshills/revgate/internal/review"
)

var (
	historyLimit     int
	historyPruneDays int
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "List recorded runs, or the verdicts of one run",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := workDir(cmd.Context())
		cfg, err := loadConfig(root, cmd.Flags(), nil)
		if err != nil {
			return err
		}
		store, err := history.Open(resolve(root, cfg.History.Path))
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
			exitCode = ExitRuntimeError
			return nil
		}
		defer store.Close()

		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		if historyPruneDays > 0 {
			cutoff := time.Now().AddDate(0, 0, -historyPruneDays)
			n, err := store.Prune(ctx, cutoff)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
				exitCode = ExitRuntimeError
				return nil
			}
			fmt.Fprintf(out, "Pruned %d run(s) older than %d day(s).\n", n, historyPruneDays)
			return nil
		}

		if len(args) == 1 {
			verdicts, err := store.Verdicts(ctx, args[0])
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
				exitCode = ExitRuntimeError
				return nil
			}
			writeVerdictTable(out, verdicts)
			return nil
		}

		runs, err := store.Recent(ctx, historyLimit)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
			exitCode = ExitRuntimeError
			return nil
		}
		writeRunTable(out, runs)
		return nil
	},
}

func writeRunTable(w io.Writer, runs []history.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Run", "Started", "Stage", "Result", "Reviews", "Rejected", "Skipped", "Branch"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetAutoWrapText(false)
	for _, r := range runs {
		result := string(r.Overall)
		if r.Interrupted {
			result += " (interrupted)"
		}
		table.Append([]string{
			r.ID,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			string(r.Stage),
			result,
			fmt.Sprint(r.VerdictCount),
			fmt.Sprint(r.RejectCount),
			fmt.Sprint(r.SkippedCount),
			r.Branch,
		})
	}
	table.Render()
}

func writeVerdictTable(w io.Writer, verdicts []review.Verdict) {
	if len(verdicts) == 0 {
		fmt.Fprintln(w, "No verdicts recorded for this run.")
		return
	}
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Paths", "Decision", "Critical", "Rationale"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetColWidth(60)
	for _, v := range verdicts {
		critical := ""
		if v.Critical {
			critical = "yes"
		}
		table.Append([]string{
			strings.Join(v.SubjectPaths, "\n"),
			string(v.Decision),
			critical,
			firstLine(v.Rationale),
		})
	}
	table.Render()
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of runs to list")
	historyCmd.Flags().IntVar(&historyPruneDays, "prune", 0, "Delete runs older than this many days")
}
