package main

import (
	"github.com/spf13/cobra"

	"github.com/vulnzap/vulnzap-client/internal/common"
	"github.com/vulnzap/vulnzap-client/pkg/vulnzap"
)

var (
	cacheMode string
	cacheRepo string
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and prune the local scan cache",
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached scans of a repository",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := parseMode(cacheMode)
		if err != nil {
			return err
		}
		client, err := newClient()
		if err != nil {
			return err
		}
		defer client.Close()

		entries, err := client.ListCachedScans(mode, cacheRepo)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			ui.Info("No cached %s scans for %s", mode, cacheRepo)
			return nil
		}
		return ui.CacheTable(entries)
	},
}

var cacheShowCmd = &cobra.Command{
	Use:   "show <identifier>",
	Short: "Print one cache entry (commit hash in commit mode, job id in repo mode)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := parseMode(cacheMode)
		if err != nil {
			return err
		}
		client, err := newClient()
		if err != nil {
			return err
		}
		defer client.Close()

		entry, ok := client.GetCachedScan(mode, cacheRepo, args[0])
		if !ok {
			return common.WrapErrorf(common.ErrNotFound, "no cached %s scan %s for %s", mode, args[0], cacheRepo)
		}
		return ui.JSON(entry)
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear <identifier>",
	Short: "Remove one cache entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := parseMode(cacheMode)
		if err != nil {
			return err
		}
		client, err := newClient()
		if err != nil {
			return err
		}
		defer client.Close()

		if err := client.ClearCachedScan(mode, cacheRepo, args[0]); err != nil {
			if isNotFound(err) {
				ui.Info("Nothing cached for %s", args[0])
				return nil
			}
			return err
		}
		ui.Success("Cleared %s scan %s of %s", mode, args[0], cacheRepo)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{cacheListCmd, cacheShowCmd, cacheClearCmd} {
		c.Flags().StringVar(&cacheMode, "mode", string(vulnzap.ScanModeCommit), "Scan mode: commit or repo")
		c.Flags().StringVar(&cacheRepo, "repo", "", "Repository identifier")
		_ = c.MarkFlagRequired("repo")
		cacheCmd.AddCommand(c)
	}
	rootCmd.AddCommand(cacheCmd)
}

func parseMode(s string) (vulnzap.ScanMode, error) {
	mode := vulnzap.ScanMode(s)
	if !mode.IsValid() {
		return "", common.NewValidationError("mode", s, "must be commit or repo")
	}
	return mode, nil
}
