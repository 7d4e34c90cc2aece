package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lucasnoah/secretguard/internal/config"
	"github.com/lucasnoah/secretguard/internal/logging"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var (
	configPath string
	debug      bool

	// Populated by the root PersistentPreRunE for every subcommand.
	appConfig     *config.Config
	appConfigPath string
	logger        = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "secretguard",
	Short: "secretguard: run the secret scanner and report what it finds",
	Long: `secretguard locates (or downloads and verifies) the secret_scanner binary,
runs it against a workspace, and turns its output into findings you can
read in the terminal, feed to an editor as diagnostics, or upload as SARIF.

State lives in ~/.secretguard/ (cached binary, SQLite scan history, artifacts).
Exit status: 0 clean, 2 secrets found, 1 error.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig()
		if err != nil {
			return err
		}
		l, err := logging.New(cfg.Log.Level, debug)
		if err != nil {
			// config validate reports the bad level; keep the CLI usable.
			if l, err = logging.New(config.DefaultLogLevel, debug); err != nil {
				return fmt.Errorf("configure logging: %w", err)
			}
		}
		appConfig, appConfigPath, logger = cfg, path, l
		logger.Debug("configuration loaded", zap.String("path", path))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

// Execute runs the command tree with a background context.
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the command tree; cancelling ctx stops a running scan.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func loadConfig() (*config.Config, string, error) {
	if configPath != "" {
		cfg, err := config.Load(configPath)
		return cfg, configPath, err
	}
	return config.LoadDefault()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to secretguard config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(binaryCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dbCmd)
}
