package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	statsBy    []string
	statsWidth int
	statsTop   int
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize exam scores from the document store",
	Long:  `Run reporting aggregations on the document store: mean exam score per group, the score distribution, and the top students.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, err := setupLogger(cfg)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		doc, err := openDocument(ctx, cfg, logger)
		if err != nil {
			return err
		}
		if doc == nil {
			return fmt.Errorf("stats needs the document store; set document.enabled in the config")
		}
		defer doc.Close(context.Background())

		for _, field := range statsBy {
			groups, err := doc.AverageExamScoreBy(ctx, field)
			if err != nil {
				return err
			}
			title("Average exam score by " + field)
			for _, g := range groups {
				fmt.Printf("  %-14s %6.2f  (%d students)\n", g.Group, g.Average, g.Count)
			}
			fmt.Println()
		}

		buckets, err := doc.ScoreDistribution(ctx, statsWidth)
		if err != nil {
			return err
		}
		title("Score distribution")
		var peak int64
		for _, b := range buckets {
			if b.Count > peak {
				peak = b.Count
			}
		}
		for _, b := range buckets {
			bar := 0
			if peak > 0 {
				bar = int(b.Count * 40 / peak)
			}
			fmt.Printf("  %3d-%-3d %s %d\n", b.Lower, b.Lower+statsWidth-1, passStyle.Render(strings.Repeat("█", bar)), b.Count)
		}
		fmt.Println()

		top, err := doc.TopStudents(ctx, statsTop)
		if err != nil {
			return err
		}
		title(fmt.Sprintf("Top %d students", statsTop))
		for i, s := range top {
			fmt.Printf("  %2d. student %-6d %-7s %d\n", i+1, s.StudentID, s.Gender, s.ExamScore)
		}
		return nil
	},
}

func init() {
	statsCmd.Flags().StringSliceVar(&statsBy, "by", []string{"gender", "parental_involvement"}, "fields to group average scores by")
	statsCmd.Flags().IntVar(&statsWidth, "bucket", 10, "score distribution bucket width")
	statsCmd.Flags().IntVar(&statsTop, "top", 10, "number of top students to list")
	rootCmd.AddCommand(statsCmd)
}
