package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/scorecast/scorecast/internal/indexes"
	"github.com/scorecast/scorecast/internal/reset"
	"github.com/scorecast/scorecast/internal/state"
)

var (
	resetConfirm      bool
	resetDropOnly     bool
	resetSkipDocument bool
	resetIndexPlan    string
	resetPurgeRun     string
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Drop and recreate the stores",
	Long: `Drop every table and collection and recreate them empty, so the next load
starts from a clean store. Loading into a non-empty store is not supported.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !resetConfirm {
			fmt.Println("Reset requires --yes to proceed.")
			fmt.Println("This will DROP all students, records and predictions from the configured stores.")
			return nil
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, err := setupLogger(cfg)
		if err != nil {
			return err
		}

		return withLock("reset", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			targets := reset.Targets{}
			rel, err := openRelational(ctx, cfg, logger)
			if err != nil {
				fmt.Println(warnStyle.Render(fmt.Sprintf("Warning: could not connect to relational store: %v", err)))
			} else {
				targets.Relational = rel
				defer rel.Close()
			}

			if !resetSkipDocument {
				doc, err := openDocument(ctx, cfg, logger)
				switch {
				case err != nil:
					fmt.Println(warnStyle.Render(fmt.Sprintf("Warning: could not connect to document store: %v", err)))
				case doc != nil:
					targets.Document = doc
					defer doc.Close(context.Background())
				}
			}

			opts := reset.Options{
				SkipDocument: resetSkipDocument,
				DropOnly:     resetDropOnly,
				PurgeRunID:   resetPurgeRun,
			}
			if resetIndexPlan != "" {
				plan, err := indexes.LoadYAML(resetIndexPlan)
				if err != nil {
					return err
				}
				opts.Indexes = plan
			}
			if resetPurgeRun != "" {
				a, err := newArchiver(ctx, cfg)
				if err != nil {
					fmt.Println(warnStyle.Render(fmt.Sprintf("Warning: archive unavailable: %v", err)))
				} else {
					targets.Archive = a
				}
			}

			result := reset.Execute(ctx, targets, opts)

			if result.RelationalDropped {
				fmt.Println("Relational tables dropped.")
			}
			if result.RelationalRecreated {
				fmt.Println("Relational tables recreated.")
			}
			if len(result.DroppedCollections) > 0 {
				fmt.Printf("Dropped collections: %v\n", result.DroppedCollections)
			}
			if result.CollectionsCreated {
				fmt.Printf("Collections recreated with %d indexes.\n", result.IndexesBuilt)
			}
			if result.ArchivePurged {
				fmt.Printf("Archived reports of %s removed.\n", resetPurgeRun)
			}

			st, err := state.Load("")
			if err != nil {
				return fmt.Errorf("loading state: %w", err)
			}
			st.LastReset = time.Now()
			st.LastRun = nil
			st.LastVerification = nil
			if err := st.Save(""); err != nil {
				return fmt.Errorf("saving state: %w", err)
			}

			if len(result.Errors) > 0 {
				fmt.Println(failStyle.Render("Errors during reset:"))
				for _, e := range result.Errors {
					fmt.Printf("  - %s\n", e)
				}
				return fmt.Errorf("reset finished with %d errors", len(result.Errors))
			}
			return nil
		})
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetConfirm, "yes", false, "confirm dropping all data")
	resetCmd.Flags().BoolVar(&resetDropOnly, "drop-only", false, "leave the stores empty without recreating them")
	resetCmd.Flags().BoolVar(&resetSkipDocument, "skip-document", false, "leave the document store alone")
	resetCmd.Flags().StringVar(&resetIndexPlan, "index-plan", "", "index plan YAML to build instead of the derived plan")
	resetCmd.Flags().StringVar(&resetPurgeRun, "purge-archive", "", "also delete the archived reports of this run id")
	rootCmd.AddCommand(resetCmd)
}
