package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/usagedash/internal/common"
)

var (
	// Command-line flags
	configFiles  []string // Multiple --config flags supported
	serverPort   int
	serverHost   string
	accountCount int
	showVersion  bool

	// Global state
	config *common.Config
	logger arbor.ILogger
)

var rootCmd = &cobra.Command{
	Use:               "usagedash",
	Short:             "Claude usage dashboard",
	Long:              "usagedash scrapes the Claude usage page for several logged-in accounts on a schedule and serves the results over HTTP.",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	RunE: func(cmd *cobra.Command, args []string) error {
		if showVersion {
			printVersion()
			return nil
		}
		return runServe(cmd, args)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringArrayVarP(&configFiles, "config", "c", nil, "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flags.IntVarP(&serverPort, "port", "p", 0, "Server port (overrides config)")
	flags.StringVar(&serverHost, "host", "", "Server host (overrides config)")
	flags.IntVar(&accountCount, "accounts", 0, "Number of accounts to scrape (overrides config)")
	rootCmd.Flags().BoolVarP(&showVersion, "version", "v", false, "Print version information")

	rootCmd.AddCommand(serveCmd, scrapeCmd, showCmd, versionCmd)
}

func main() {
	defer common.RecoverWithCrashFile()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads configuration and the logger for every command except version.
// Order: defaults -> config files -> .env/env -> CLI flags.
func setup(cmd *cobra.Command, args []string) error {
	if cmd == versionCmd || showVersion {
		return nil
	}

	// Auto-discover config file if not specified
	if len(configFiles) == 0 {
		for _, candidate := range []string{"usagedash.toml", "deployments/local/usagedash.toml"} {
			if _, err := os.Stat(candidate); err == nil {
				configFiles = append(configFiles, candidate)
				break
			}
		}
	}

	var err error
	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	common.ApplyFlagOverrides(config, serverPort, serverHost, accountCount)
	if err := config.Validate(); err != nil {
		return err
	}

	common.InstallCrashHandler(filepath.Join(config.Storage.DataDir, "logs"))
	logger = common.InitLogger(config)

	logger.Debug().
		Strs("config_files", configFiles).
		Int("accounts", config.Accounts.Count).
		Str("sessions_dir", config.Storage.SessionsDir).
		Str("log_level", config.Logging.Level).
		Msg("Resolved configuration")

	return nil
}
