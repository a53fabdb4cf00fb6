package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/scorecast/scorecast/internal/indexes"
	"github.com/scorecast/scorecast/internal/schema"
)

var (
	indexesBuild bool
	indexesWrite string
	indexesPlan  string
)

var indexesCmd = &cobra.Command{
	Use:   "indexes",
	Short: "Show or build the document-store index plan",
	Long:  `Print the index plan derived from the normalized schema, write it to YAML for editing, or build it on the document store.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		plan := indexes.Plan(schema.Normalized())
		if indexesPlan != "" {
			var err error
			if plan, err = indexes.LoadYAML(indexesPlan); err != nil {
				return err
			}
		}

		title(fmt.Sprintf("Index plan: %d indexes", len(plan.Indexes)))
		for _, line := range plan.Lines() {
			fmt.Printf("  %s\n", line)
		}
		if len(plan.Explanations) > 0 {
			fmt.Println()
			for _, e := range plan.Explanations {
				fmt.Println(dimStyle.Render("  - " + e))
			}
		}

		if indexesWrite != "" {
			if err := plan.WriteYAML(indexesWrite); err != nil {
				return err
			}
			fmt.Printf("\nPlan written to %s\n", indexesWrite)
		}

		if !indexesBuild {
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
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		doc, err := openDocument(ctx, cfg, logger)
		if err != nil {
			return err
		}
		if doc == nil {
			return fmt.Errorf("document store is disabled")
		}
		defer doc.Close(context.Background())

		if err := doc.CreateIndexes(ctx, plan.Indexes); err != nil {
			return fmt.Errorf("building indexes: %w", err)
		}
		fmt.Println(passStyle.Render(fmt.Sprintf("\nBuilt %d indexes.", len(plan.Indexes))))
		return nil
	},
}

func init() {
	indexesCmd.Flags().BoolVar(&indexesBuild, "build", false, "create the indexes on the document store")
	indexesCmd.Flags().StringVar(&indexesWrite, "write", "", "write the plan to this YAML file")
	indexesCmd.Flags().StringVar(&indexesPlan, "plan", "", "use an edited plan YAML instead of the derived plan")
	rootCmd.AddCommand(indexesCmd)
}
