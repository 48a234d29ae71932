package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vulnzap/vulnzap-client/internal/config"
	"github.com/vulnzap/vulnzap-client/internal/logger"
	"github.com/vulnzap/vulnzap-client/internal/output"
	"github.com/vulnzap/vulnzap-client/pkg/vulnzap"
)

// Shared state, initialized in PersistentPreRunE.
var (
	ui        *output.UI
	cfgMgr    *config.ConfigManager
	appLogger zerolog.Logger

	configPath string
	logLevel   string
	cacheDir   string
	envFile    string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "vulnzap",
	Short: "Submit vulnerability scans and follow their results",
	Long: `vulnzap submits commit and repository scans to the VulnZap backend,
follows their progress as it streams in and keeps completed results in a
local cache. The watch command runs an incremental scan session over a
working directory.`,
	Version:           version + " (" + commit + ")",
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initDeps(cmd)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if cfgMgr != nil {
			_ = cfgMgr.Close()
		}
	},
}

// Execute is the main entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ./config.yaml or ~/.vulnzap/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&cacheDir, "cache-dir", "", "Cache root override (default ~/.vulnzap/client)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Dotenv file loaded before reading the environment")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Print full event payloads")
}

func initDeps(cmd *cobra.Command) error {
	ui = output.New()
	ui.Verbose = verbose

	// A missing .env file is normal
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			ui.Warning("could not load %s: %v", envFile, err)
		}
	}

	opts := config.DefaultConfigManagerOptions()
	opts.HotReloadEnabled = cmd.Name() == "watch"
	mgr, err := config.NewConfigManager(configPath, opts)
	if err != nil {
		return err
	}
	cfgMgr = mgr

	cfg := cfgMgr.GetConfig()
	applyFlagOverrides(cfg)
	appLogger, err = logger.New(cfg.LogConfig)
	if err != nil {
		return err
	}
	return nil
}

func applyFlagOverrides(cfg *config.GlobalConfig) {
	if logLevel != "" {
		cfg.LogConfig.LogLevel = logLevel
	}
	if cacheDir != "" {
		cfg.CacheConfig.RootDir = cacheDir
	}
}

// newClient builds a client from the current configuration
func newClient() (*vulnzap.Client, error) {
	cfg := cfgMgr.GetConfig()
	applyFlagOverrides(cfg)
	return vulnzap.New(cfg, appLogger)
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
