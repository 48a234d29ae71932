package main

import (
	"context"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vulnzap/vulnzap-client/internal/common"
	"github.com/vulnzap/vulnzap-client/internal/output"
	"github.com/vulnzap/vulnzap-client/pkg/vulnzap"
)

const maxScanFileSize = 2 * 1024 * 1024

var (
	scanRepo   string
	scanCommit string
	scanBranch string
	scanUser   string
	scanWait   bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Submit a scan job",
}

var scanCommitCmd = &cobra.Command{
	Use:   "commit [file...]",
	Short: "Scan one commit, sending the given files along",
	Args:  cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := readScanFiles(args)
		if err != nil {
			return err
		}
		return runScan(func(ctx context.Context, c *vulnzap.Client) (*vulnzap.ScanResponse, error) {
			return c.ScanCommit(ctx, vulnzap.CommitScanRequest{
				CommitHash:     scanCommit,
				Repository:     scanRepo,
				Branch:         scanBranch,
				Files:          files,
				UserIdentifier: scanUser,
			})
		})
	},
}

var scanRepoCmd = &cobra.Command{
	Use:   "repo",
	Short: "Scan a full repository snapshot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScan(func(ctx context.Context, c *vulnzap.Client) (*vulnzap.ScanResponse, error) {
			return c.ScanRepository(ctx, vulnzap.RepositoryScanRequest{
				Repository:     scanRepo,
				Branch:         scanBranch,
				UserIdentifier: scanUser,
			})
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{scanCommitCmd, scanRepoCmd} {
		c.Flags().StringVar(&scanRepo, "repo", "", "Repository identifier, e.g. owner/name")
		c.Flags().StringVar(&scanBranch, "branch", "", "Branch name")
		c.Flags().StringVar(&scanUser, "user", "", "User identifier (defaults to client_config.user_identifier)")
		c.Flags().BoolVarP(&scanWait, "wait", "w", false, "Follow the job until it completes")
		_ = c.MarkFlagRequired("repo")
		scanCmd.AddCommand(c)
	}
	scanCommitCmd.Flags().StringVar(&scanCommit, "commit", "", "Commit hash")
	_ = scanCommitCmd.MarkFlagRequired("commit")

	rootCmd.AddCommand(scanCmd)
}

func readScanFiles(paths []string) ([]vulnzap.FileContent, error) {
	fm := common.NewFileManager(appLogger)
	files := make([]vulnzap.FileContent, 0, len(paths))
	for _, p := range paths {
		data, err := fm.ReadFile(p, common.FileReadOptions{MaxSize: maxScanFileSize})
		if err != nil {
			return nil, err
		}
		files = append(files, vulnzap.FileContent{Name: filepath.ToSlash(filepath.Clean(p)), Content: string(data)})
	}
	return files, nil
}

func runScan(initiate func(context.Context, *vulnzap.Client) (*vulnzap.ScanResponse, error)) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, stop := signalContext()
	defer stop()

	if scanWait {
		unsubscribe := client.Subscribe(ui.Event)
		defer unsubscribe()
	}

	resp, err := initiate(ctx, client)
	if err != nil {
		return err
	}
	ui.Success("Job %s %s", resp.Data.JobID, output.StatusColor(resp.Data.Status))

	if !scanWait {
		return nil
	}
	if err := client.Wait(ctx, resp.Data.JobID); err != nil {
		if ctx.Err() != nil {
			ui.Warning("Stopped following job %s", resp.Data.JobID)
			return nil
		}
		return err
	}
	ui.Success("Job %s completed", resp.Data.JobID)
	return nil
}
