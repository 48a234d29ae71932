package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/vulnzap/vulnzap-client/internal/common"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export <repository>",
	Short: "Export the cached scan history of a repository to parquet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		defer client.Close()

		f, err := os.Create(exportOut)
		if err != nil {
			return common.NewIOError("create", exportOut, err)
		}

		n, err := client.ExportHistory(context.Background(), args[0], f)
		if closeErr := f.Close(); err == nil && closeErr != nil {
			err = common.NewIOError("close", exportOut, closeErr)
		}
		if err != nil {
			_ = os.Remove(exportOut)
			return err
		}
		ui.Success("Exported %d scans of %s to %s", n, args[0], exportOut)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "history.parquet", "Output file")
	rootCmd.AddCommand(exportCmd)
}
