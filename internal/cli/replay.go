package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"vital-signs-monitor/internal/app"
)

var (
	replayFile    string
	replayOffline bool
	replayDryRun  bool
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay measurements from an NDJSON file through the pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		if replayFile == "" {
			return fmt.Errorf("--file must be provided")
		}

		opts := app.ReplayOptions{
			Path:    replayFile,
			Offline: replayOffline,
			DryRun:  replayDryRun,
		}

		return getApp().Replay(cmd.Context(), opts)
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayFile, "file", "", "NDJSON file with one measurement per line")
	replayCmd.Flags().BoolVar(&replayOffline, "offline", false, "Process with connectivity down, flushing at the end")
	replayCmd.Flags().BoolVar(&replayDryRun, "dry-run", false, "Run without writing to storage")
}
