package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/vulnzap/vulnzap-client/internal/common"
	"github.com/vulnzap/vulnzap-client/internal/output"
	"github.com/vulnzap/vulnzap-client/pkg/vulnzap"
)

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Fetch the authoritative state of a job from the backend",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		result, err := client.GetCompletedScan(ctx, args[0])
		if err != nil {
			return err
		}
		ui.Info("Job %s %s (progress %.0f%%)", result.JobID, output.StatusColor(result.Status), result.Progress)
		return ui.JSON(result)
	},
}

var latestCmd = &cobra.Command{
	Use:   "latest <repository>",
	Short: "Show the most recent cached commit scan of a repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		defer client.Close()

		entry, ok := client.GetLatestCachedScan(args[0])
		if !ok {
			return common.WrapErrorf(common.ErrNotFound, "no cached commit scan for %s", args[0])
		}
		if err := ui.CacheTable([]vulnzap.CacheEntry{*entry}); err != nil {
			return err
		}
		if verbose {
			return ui.JSON(entry)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd, latestCmd)
}

// isNotFound reports whether err means a missing cache entry or job
func isNotFound(err error) bool {
	return errors.Is(err, common.ErrNotFound)
}
