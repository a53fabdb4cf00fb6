package cmd

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/scorecast/scorecast/internal/lock"
	"github.com/scorecast/scorecast/internal/state"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the last run, verification and prediction",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := state.Load("")
		if err != nil {
			return fmt.Errorf("loading state: %w", err)
		}

		title("Scorecast status")

		held, pid, err := lock.IsHeld("")
		if err != nil {
			return fmt.Errorf("checking lock: %w", err)
		}
		if held {
			fmt.Println(warnStyle.Render(fmt.Sprintf("An operation is in progress (PID %d).", pid)))
		}

		if st.LastRun == nil {
			fmt.Println("No load has run yet. Use `scorecast load`.")
		} else {
			r := st.LastRun
			fmt.Printf("Last run:    %s  %s\n", r.RunID, statusLabel(r.Status))
			fmt.Printf("  Started:   %s\n", r.StartedAt.Format("2006-01-02 15:04:05"))
			if !r.CompletedAt.IsZero() {
				fmt.Printf("  Finished:  %s (%s)\n", r.CompletedAt.Format("2006-01-02 15:04:05"), r.CompletedAt.Sub(r.StartedAt).Round(time.Millisecond))
			}
			sinks := make([]string, 0, len(r.Counts))
			for name := range r.Counts {
				sinks = append(sinks, name)
			}
			sort.Strings(sinks)
			for _, name := range sinks {
				fmt.Printf("  %-10s %d students\n", name+":", r.Counts[name])
			}
			if r.ReportPath != "" {
				fmt.Printf("  Report:    %s\n", r.ReportPath)
			}
			if st.Interrupted() && !held {
				fmt.Println(failStyle.Render("  The run was interrupted; reset the stores before loading again."))
			}
		}

		if v := st.LastVerification; v != nil {
			fmt.Printf("Verification: %s (%d issues, %d range violations) at %s\n",
				statusLabel(v.Status), v.Issues, v.RangeViolations, v.CheckedAt.Format("2006-01-02 15:04"))
		}
		if p := st.LastPrediction; p != nil {
			fmt.Printf("Predictions:  %d scored, %d failed with model %s at %s\n",
				p.Scored, p.Failed, p.ModelVersion, p.RanAt.Format("2006-01-02 15:04"))
		}
		if !st.LastReset.IsZero() {
			fmt.Println(dimStyle.Render("Last reset: " + st.LastReset.Format("2006-01-02 15:04")))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
