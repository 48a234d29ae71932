package main

import (
	"github.com/spf13/cobra"

	"github.com/vulnzap/vulnzap-client/internal/common"
	"github.com/vulnzap/vulnzap-client/internal/config"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a configuration file with default values",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.DefaultConfigFileName
		if len(args) == 1 {
			path = args[0]
		}
		fm := common.NewFileManager(appLogger)
		if fm.FileExists(path) && !configForce {
			return common.NewValidationError("path", path, "file exists, use --force to overwrite")
		}
		if err := config.SaveGlobalConfig(config.NewDefaultGlobalConfig(), path); err != nil {
			return err
		}
		ui.Success("Wrote %s", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := cfgMgr.GetConfig()
		applyFlagOverrides(cfg)
		if cfg.ClientConfig.APIKey != "" {
			cfg.ClientConfig.APIKey = "********"
		}
		if p := cfgMgr.GetConfigPath(); p != "" {
			ui.Info("Loaded from %s", p)
		}
		return ui.JSON(cfg)
	},
}

func init() {
	configInitCmd.Flags().BoolVarP(&configForce, "force", "f", false, "Overwrite an existing file")
	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
