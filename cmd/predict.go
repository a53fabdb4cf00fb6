package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/scorecast/scorecast/internal/pipeline"
	"github.com/scorecast/scorecast/internal/predict"
	"github.com/scorecast/scorecast/internal/state"
)

var (
	predictLimit  int
	predictDryRun bool
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Score loaded students with the exam-score model",
	Long: `Predict an exam score for every complete student in the relational store and
append the predictions to the predictions table. A student whose prediction
fails is reported and skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, err := setupLogger(cfg)
		if err != nil {
			return err
		}

		return withLock("predict", func() error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			model := predict.NewLinearModel(cfg.Model.Path)
			if err := model.Load(ctx); err != nil {
				return err
			}

			rel, err := openRelational(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer rel.Close()

			p := &pipeline.Pipeline{
				Adapter: predict.NewAdapter(model, predict.Options{
					ModelVersion:       cfg.Model.Version,
					FallbackConfidence: cfg.Model.FallbackConfidence,
					Logger:             logger,
				}),
				Source:    rel,
				BatchSize: cfg.Loader.BatchSize,
				Logger:    logger,
			}
			if !predictDryRun {
				p.PredictionSink = rel
			}

			sum, err := p.Predict(ctx, predictLimit)
			if sum != nil {
				st, serr := state.Load("")
				if serr == nil {
					st.LastPrediction = &state.PredictionInfo{
						ModelVersion: sum.ModelVersion,
						Scored:       sum.Scored,
						Failed:       len(sum.Failures),
						RanAt:        time.Now(),
					}
					_ = st.Save("")
				}

				title("Predictions (" + sum.ModelVersion + ")")
				fmt.Printf("  Students: %d\n  Scored:   %d\n  Stored:   %d\n", sum.Students, sum.Scored, sum.Stored)
				for _, f := range sum.Failures {
					fmt.Println(warnStyle.Render("  ~ ") + f.Error())
				}
			}
			return err
		})
	},
}

func init() {
	predictCmd.Flags().IntVar(&predictLimit, "limit", 0, "score at most this many students (0 = all)")
	predictCmd.Flags().BoolVar(&predictDryRun, "dry-run", false, "score without storing predictions")
	rootCmd.AddCommand(predictCmd)
}
