package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/scorecast/scorecast/internal/config"
	"github.com/scorecast/scorecast/internal/schema"
	"github.com/scorecast/scorecast/internal/state"
	"github.com/scorecast/scorecast/internal/verify"
)

var (
	verifyExpected int64
	verifyStore    string
	verifyJSON     bool
	verifySample   int
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check counts, foreign keys and value ranges",
	Long: `Verify a loaded store: row counts (optionally against an expected student
count), orphaned foreign keys, out-of-range values and missing required fields.
Verification is read-only; run it after a load has finished.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, err := setupLogger(cfg)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		var inspector verify.Inspector
		switch verifyStore {
		case config.SinkRelational:
			rel, err := openRelational(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer rel.Close()
			inspector = rel
		case config.SinkDocument:
			doc, err := openDocument(ctx, cfg, logger)
			if err != nil {
				return err
			}
			if doc == nil {
				return fmt.Errorf("document store is disabled")
			}
			defer doc.Close(context.Background())
			inspector = doc
		default:
			return fmt.Errorf("unknown store %q (relational or document)", verifyStore)
		}

		var expected *int64
		if cmd.Flags().Changed("expected") {
			expected = &verifyExpected
		}

		opts := verify.Options{SampleSize: verifySample, Logger: logger}
		if !verifyJSON {
			opts.Callback = func(check string, passed bool) {
				fmt.Printf("  [%s] %s\n", passFail(passed), check)
			}
			title("Verifying " + verifyStore + " store")
		}
		rep, err := verify.New(inspector, opts).Verify(ctx, expected)
		if err != nil {
			return err
		}

		st, err := state.Load("")
		if err == nil {
			st.LastVerification = &state.VerificationInfo{
				Status:          rep.Status,
				Issues:          len(rep.Issues),
				RangeViolations: len(rep.RangeViolations),
				CheckedAt:       time.Now(),
			}
			_ = st.Save("")
		}

		if verifyJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rep)
		}

		fmt.Println()
		fmt.Printf("Status: %s\n", statusLabel(rep.Status))
		for _, table := range schema.Normalized().TableNames() {
			fmt.Printf("  %-22s %d\n", table, rep.Counts[table])
		}
		if rep.AuditEntries != nil {
			fmt.Println(dimStyle.Render(fmt.Sprintf("  %-22s %d", schema.TableAuditLog, *rep.AuditEntries)))
		}
		for _, issue := range rep.Issues {
			fmt.Println(failStyle.Render("  ! ") + issue.Message)
		}
		for _, v := range rep.RangeViolations {
			fmt.Println(warnStyle.Render("  ~ ") + v.String())
		}
		for _, s := range rep.Samples {
			exam := "-"
			if s.Academic != nil && s.Academic.ExamScore != nil {
				exam = fmt.Sprint(*s.Academic.ExamScore)
			}
			fmt.Println(dimStyle.Render(fmt.Sprintf("  sample student %d: %s, exam %s", s.ID, s.Gender, exam)))
		}
		if !rep.Passed() {
			return fmt.Errorf("verification found %d issues and %d range violations", len(rep.Issues), len(rep.RangeViolations))
		}
		return nil
	},
}

func init() {
	verifyCmd.Flags().Int64Var(&verifyExpected, "expected", 0, "expected number of students")
	verifyCmd.Flags().StringVar(&verifyStore, "store", config.SinkRelational, "store to verify (relational or document)")
	verifyCmd.Flags().BoolVar(&verifyJSON, "json", false, "print the report as JSON")
	verifyCmd.Flags().IntVar(&verifySample, "sample", 3, "complete students to sample")
	rootCmd.AddCommand(verifyCmd)
}
