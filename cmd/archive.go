package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/scorecast/scorecast/internal/archive"
	"github.com/scorecast/scorecast/internal/config"
	"github.com/scorecast/scorecast/internal/report"
)

var archiveList bool

var archiveCmd = &cobra.Command{
	Use:   "archive [report.json]",
	Short: "Upload a run report to S3",
	Long:  `Upload a run report (JSON and text) to s3://<archive.s3_bucket>/<archive.prefix>/<run id>/, or list archived runs.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		if archiveList {
			a, err := newArchiver(ctx, cfg)
			if err != nil {
				return err
			}
			runs, err := a.Runs(ctx)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("No archived runs.")
				return nil
			}
			for _, r := range runs {
				fmt.Println(r)
			}
			return nil
		}

		if len(args) == 0 {
			return fmt.Errorf("a report path is required (or use --list)")
		}
		rep, err := report.ReadJSON(args[0])
		if err != nil {
			return err
		}
		return archiveReport(ctx, cfg, rep)
	},
}

func newArchiver(ctx context.Context, cfg *config.Config) (*archive.Archiver, error) {
	if cfg.Archive.S3Bucket == "" {
		return nil, archive.ErrNoBucket
	}
	client, err := archive.NewS3Client(ctx, cfg.Archive.Profile, cfg.Archive.Region)
	if err != nil {
		return nil, err
	}
	return archive.New(client, cfg.Archive.S3Bucket, cfg.Archive.Prefix), nil
}

func archiveReport(ctx context.Context, cfg *config.Config, rep *report.RunReport) error {
	a, err := newArchiver(ctx, cfg)
	if err != nil {
		return err
	}
	res, err := a.Upload(ctx, rep)
	if err != nil {
		return err
	}
	fmt.Printf("Archived %s\n  %s\n  %s\n", rep.RunID, res.JSONURI, res.TextURI)
	return nil
}

func init() {
	archiveCmd.Flags().BoolVar(&archiveList, "list", false, "list archived run ids")
	rootCmd.AddCommand(archiveCmd)
}
