package cmd

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current config (secrets masked)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Println("Current configuration:")
		fmt.Println()
		fmt.Printf("  Dataset:          %s\n", cfg.Dataset.Path)
		fmt.Printf("  Null tokens:      %q\n", cfg.Dataset.NullTokens)
		fmt.Println()
		fmt.Printf("  Relational:\n")
		fmt.Printf("    Driver:         %s\n", cfg.Relational.Driver)
		fmt.Printf("    DSN:            %s\n", redact(cfg.RelationalDSN()))
		fmt.Printf("    Max Conns:      %d\n", cfg.Relational.MaxOpenConns)
		fmt.Println()
		fmt.Printf("  Document:\n")
		fmt.Printf("    Enabled:        %t\n", cfg.Document.Enabled)
		if cfg.Document.Enabled {
			fmt.Printf("    Connection:     %s\n", redact(cfg.Document.ConnectionString))
			fmt.Printf("    Database:       %s\n", cfg.Document.Database)
		}
		fmt.Println()
		fmt.Printf("  Loader:           batch size %d, sinks %s\n", cfg.Loader.BatchSize, strings.Join(cfg.Loader.Sinks, ", "))
		fmt.Printf("  Model:            %s (fallback confidence %.2f)\n", modelSource(cfg.Model.Path), cfg.Model.FallbackConfidence)
		fmt.Printf("  API:              port %d, %s mode\n", cfg.API.Port, cfg.API.Mode)
		if cfg.Archive.S3Bucket != "" {
			fmt.Printf("  Archive:          s3://%s/%s\n", cfg.Archive.S3Bucket, cfg.Archive.Prefix)
		}
		fmt.Printf("  Logging:          %s → %s\n", cfg.Logging.Level, cfg.Logging.Directory)
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("config invalid: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("config invalid: %w", err)
		}
		fmt.Println("Configuration is valid.")
		return nil
	},
}

func modelSource(path string) string {
	if path == "" {
		return "built-in coefficients"
	}
	return path
}

// redact hides the password of a connection URL.
func redact(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	return u.Redacted()
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(configCmd)
}
