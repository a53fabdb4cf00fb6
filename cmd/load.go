package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/scorecast/scorecast/internal/config"
	"github.com/scorecast/scorecast/internal/dataset"
	"github.com/scorecast/scorecast/internal/indexes"
	"github.com/scorecast/scorecast/internal/loader"
	"github.com/scorecast/scorecast/internal/pipeline"
	"github.com/scorecast/scorecast/internal/report"
	"github.com/scorecast/scorecast/internal/reset"
	"github.com/scorecast/scorecast/internal/schema"
	"github.com/scorecast/scorecast/internal/state"
	"github.com/scorecast/scorecast/internal/verify"
)

const reportDir = "~/.scorecast/reports"

var (
	loadCSV         string
	loadBatchSize   int
	loadReset       bool
	loadReportPath  string
	loadMetricsAddr string
	loadMaxErrors   int
	loadArchive     bool
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load the dataset into the configured stores",
	Long: `Transform the flat dataset into students, academic records and environmental
factors, load them into every configured sink, and verify the relational store.

The stores must be empty; use --reset to clear them first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if loadCSV != "" {
			cfg.Dataset.Path = loadCSV
		}
		if loadBatchSize > 0 {
			cfg.Loader.BatchSize = loadBatchSize
		}
		logger, err := setupLogger(cfg)
		if err != nil {
			return err
		}

		return withLock("load", func() error {
			return runLoad(cmd.Context(), cfg, logger)
		})
	},
}

func runLoad(parent context.Context, cfg *config.Config, logger *slog.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rows, err := dataset.NewReader(cfg.Dataset.NullTokens).ReadFile(cfg.Dataset.Path)
	if err != nil {
		return err
	}
	fmt.Printf("Read %d rows from %s\n", len(rows), cfg.Dataset.Path)

	rel, err := openRelational(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("connecting to relational store: %w", err)
	}
	defer rel.Close()

	doc, err := openDocument(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("connecting to document store: %w", err)
	}
	if doc != nil {
		defer doc.Close(context.Background())
	}

	targets := reset.Targets{Relational: rel}
	if doc != nil {
		targets.Document = doc
	}
	if loadReset {
		res := reset.Execute(ctx, targets, reset.Options{})
		if !res.OK() {
			return fmt.Errorf("reset failed: %v", res.Errors)
		}
		fmt.Println(dimStyle.Render("Stores reset."))
	} else {
		if err := rel.EnsureSchema(ctx); err != nil {
			return err
		}
		if doc != nil {
			if err := doc.EnsureCollections(ctx); err != nil {
				return err
			}
			if err := doc.CreateIndexes(ctx, indexes.Plan(schema.Normalized()).Indexes); err != nil {
				return err
			}
		}
	}

	reg := prometheus.NewRegistry()
	if loadMetricsAddr != "" {
		srv := &http.Server{Addr: loadMetricsAddr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer srv.Close()
		fmt.Printf("Metrics: http://%s/metrics\n", loadMetricsAddr)
	}

	p := &pipeline.Pipeline{
		Primary:       config.SinkRelational,
		Inspector:     rel,
		BatchSize:     cfg.Loader.BatchSize,
		MaxErrors:     loadMaxErrors,
		Metrics:       loader.NewMetrics(reg),
		VerifyOptions: verify.Options{Logger: logger},
		Logger:        logger,
	}
	if cfg.HasSink(config.SinkRelational) {
		p.Sinks = append(p.Sinks, rel)
	}
	if cfg.HasSink(config.SinkDocument) && doc != nil {
		p.Sinks = append(p.Sinks, doc)
	}

	st, err := state.Load("")
	if err != nil {
		return fmt.Errorf("loading state: %w", err)
	}
	if st.Interrupted() {
		fmt.Println(warnStyle.Render(fmt.Sprintf("Previous run %s did not finish; the stores may hold a partial prefix.", st.LastRun.RunID)))
	}
	runID := uuid.NewString()
	st.StartRun(runID)
	if err := st.Save(""); err != nil {
		return fmt.Errorf("saving state: %w", err)
	}

	rep, err := p.Run(ctx, runID, rows)
	if err != nil {
		st.FinishRun(state.RunFailed, "", nil)
		_ = st.Save("")
		return err
	}

	jsonPath := loadReportPath
	if jsonPath == "" {
		jsonPath = filepath.Join(config.ExpandHome(reportDir), runID+".json")
	}
	if err := report.WriteJSON(rep, jsonPath); err != nil {
		return err
	}
	textPath := jsonPath[:len(jsonPath)-len(filepath.Ext(jsonPath))] + ".txt"
	if err := report.WriteText(rep, textPath); err != nil {
		return err
	}

	st.FinishRun(rep.Status, jsonPath, rep.Counts())
	if v := rep.Verification; v != nil {
		st.LastVerification = &state.VerificationInfo{
			Status:          v.Status,
			Issues:          len(v.Issues),
			RangeViolations: len(v.RangeViolations),
			CheckedAt:       time.Now(),
		}
	}
	if err := st.Save(""); err != nil {
		return fmt.Errorf("saving state: %w", err)
	}

	printRunReport(rep)
	fmt.Printf("\nReport: %s\n", jsonPath)

	if loadArchive {
		if err := archiveReport(ctx, cfg, rep); err != nil {
			fmt.Println(warnStyle.Render("Archive failed: " + err.Error()))
		}
	}

	if rep.Status == report.StatusFailed {
		return fmt.Errorf("run %s failed", runID)
	}
	return nil
}

func printRunReport(rep *report.RunReport) {
	fmt.Println()
	title("Run " + rep.RunID)
	fmt.Printf("Status: %s\n\n", statusLabel(rep.Status))
	for _, name := range rep.Sinks() {
		lr := rep.Load[name]
		fmt.Printf("  %-12s students %d, academic %d, environmental %d, rejected %d\n",
			name, lr.StudentsInserted, lr.AcademicInserted, lr.EnvironmentalInserted, lr.ErrorCount())
	}
	fmt.Println()
	for _, c := range rep.Checks {
		fmt.Printf("  [%s] %-16s %s\n", passFail(c.Passed), c.Name, c.Message)
	}
}

func init() {
	loadCmd.Flags().StringVar(&loadCSV, "csv", "", "dataset CSV (overrides dataset.path)")
	loadCmd.Flags().IntVar(&loadBatchSize, "batch-size", 0, "records per batch (overrides loader.batch_size)")
	loadCmd.Flags().BoolVar(&loadReset, "reset", false, "drop and recreate the stores before loading")
	loadCmd.Flags().StringVar(&loadReportPath, "report", "", "JSON report path (default: ~/.scorecast/reports/<run>.json)")
	loadCmd.Flags().StringVar(&loadMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address during the load")
	loadCmd.Flags().IntVar(&loadMaxErrors, "max-errors", 0, "rejected records tolerated before the run is marked partial")
	loadCmd.Flags().BoolVar(&loadArchive, "archive", false, "upload the report to the configured S3 bucket")
	rootCmd.AddCommand(loadCmd)
}
