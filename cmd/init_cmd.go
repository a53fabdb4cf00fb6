package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/scorecast/scorecast/internal/config"
)

var initDefaults bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a config file interactively",
	Long:  `Walk through prompts to create a Scorecast configuration file at ~/.scorecast/scorecast.yaml.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Default()

		if !initDefaults {
			reader := bufio.NewReader(os.Stdin)

			title("Scorecast Configuration Setup")
			fmt.Println()

			cfg.Dataset.Path = prompt(reader, "Dataset CSV path", cfg.Dataset.Path)
			fmt.Println()

			fmt.Println("Relational Store")
			fmt.Println("----------------")
			cfg.Relational.Driver = prompt(reader, "Driver (postgres/sqlite)", cfg.Relational.Driver)
			if cfg.Relational.Driver == "postgres" {
				cfg.Relational.DSN = ""
				cfg.Relational.Host = prompt(reader, "Host", "localhost")
				portStr := prompt(reader, "Port", "5432")
				port, err := strconv.Atoi(portStr)
				if err != nil {
					return fmt.Errorf("invalid port: %s", portStr)
				}
				cfg.Relational.Port = port
				cfg.Relational.Database = prompt(reader, "Database name", "student_performance_db")
				cfg.Relational.Username = prompt(reader, "Username", "postgres")
				cfg.Relational.Password = prompt(reader, "Password (or ${ENV:NAME})", "${ENV:SCORECAST_DB_PASSWORD}")
			} else {
				cfg.Relational.DSN = prompt(reader, "Database file", cfg.Relational.DSN)
			}
			fmt.Println()

			fmt.Println("Document Store")
			fmt.Println("--------------")
			cfg.Document.Enabled = strings.HasPrefix(strings.ToLower(prompt(reader, "Load into MongoDB too? (y/n)", "n")), "y")
			if cfg.Document.Enabled {
				cfg.Document.ConnectionString = prompt(reader, "Connection string", cfg.Document.ConnectionString)
				cfg.Document.Database = prompt(reader, "Database name", "student_performance_db")
				cfg.Loader.Sinks = []string{config.SinkRelational, config.SinkDocument}
			}
			fmt.Println()
		}

		if err := cfg.Validate(); err != nil {
			return err
		}

		cfgPath := config.ExpandHome(config.DefaultPath)
		if cfgFile != "" {
			cfgPath = cfgFile
		}
		if err := cfg.Save(cfgPath); err != nil {
			return fmt.Errorf("saving config: %w", err)
		}

		fmt.Printf("Config written to %s\n", cfgPath)
		fmt.Println()
		fmt.Println("Next steps:")
		fmt.Println("  scorecast load      — Load the dataset into the configured stores")
		fmt.Println("  scorecast predict   — Score every loaded student")
		fmt.Println("  scorecast serve     — Start the REST API")
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&initDefaults, "defaults", false, "write the default local SQLite config without prompting")
	rootCmd.AddCommand(initCmd)
}

func prompt(reader *bufio.Reader, label, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("  %s [%s]: ", label, defaultVal)
	} else {
		fmt.Printf("  %s: ", label)
	}
	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultVal
	}
	return input
}
