package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/scorecast/scorecast/internal/api"
	"github.com/scorecast/scorecast/internal/predict"
	"github.com/scorecast/scorecast/internal/repository"
)

var (
	servePort    int
	serveDevMode bool
	serveNoModel bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API",
	Long: `Serve the student CRUD and prediction API under /api. Every write is recorded
in the audit log. Requires the postgres relational driver.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, err := setupLogger(cfg)
		if err != nil {
			return err
		}
		if cfg.Relational.Driver != "postgres" {
			return fmt.Errorf("serve requires the postgres relational driver, got %q", cfg.Relational.Driver)
		}
		if cmd.Flags().Changed("port") {
			cfg.API.Port = servePort
		}
		gin.SetMode(cfg.API.Mode)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		repo, err := repository.Open(cfg.RelationalDSN(), logger)
		if err != nil {
			return err
		}
		defer repo.Close()

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		opts := []api.Option{api.WithMetrics(reg), api.WithDevMode(serveDevMode)}
		if !serveNoModel {
			model := predict.NewLinearModel(cfg.Model.Path)
			if err := model.Load(ctx); err != nil {
				return err
			}
			opts = append(opts, api.WithPredictor(predict.NewAdapter(model, predict.Options{
				ModelVersion:       cfg.Model.Version,
				FallbackConfidence: cfg.Model.FallbackConfidence,
				Registerer:         reg,
				Logger:             logger,
			})))
		}

		srv := api.New(repo, logger, cfg.API.Port, opts...)

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start()
		}()

		fmt.Fprintf(os.Stderr, "Scorecast API: http://localhost:%d/api/health\n", cfg.API.Port)

		select {
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
		case <-ctx.Done():
			logger.Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server shutdown: %w", err)
			}
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 8000, "port for the API server (overrides api.port)")
	serveCmd.Flags().BoolVar(&serveDevMode, "dev", false, "enable CORS for development mode")
	serveCmd.Flags().BoolVar(&serveNoModel, "no-model", false, "serve without the prediction endpoints")
	rootCmd.AddCommand(serveCmd)
}
