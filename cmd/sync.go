package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/riverwalks/rw/internal/output"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	Short:   "Push queued field data to the server",
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		layer, err := openLayer(cmd.Context())
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer layer.Close()

		before := layer.SyncStatus()
		if before.PendingCount == 0 && before.FailedCount == 0 {
			fmt.Println("Nothing to sync")
			return nil
		}
		if !before.IsOnline {
			output.Warning("offline: %d operation(s) waiting", before.PendingCount+before.FailedCount)
			return nil
		}

		// Dependent operations unlock as their parents drain, so keep
		// draining until a pass makes no progress.
		prev := before.PendingCount
		for {
			if err := layer.ForceSync(cmd.Context()); err != nil {
				output.Error("sync failed: %v", err)
				return err
			}
			st := layer.SyncStatus()
			if st.PendingCount == 0 || st.PendingCount >= prev {
				break
			}
			prev = st.PendingCount
		}

		after := layer.SyncStatus()
		drained := before.PendingCount - after.PendingCount
		if drained > 0 {
			output.Success("Synced %d operation(s)", drained)
		}
		if after.PendingCount > 0 {
			output.Info("%d operation(s) still pending (waiting on dependencies)", after.PendingCount)
		}
		if after.FailedCount > 0 {
			output.Warning("%d operation(s) failed, see: rw queue list", after.FailedCount)
		}
		if after.PendingCount == 0 && after.FailedCount == 0 {
			output.Success("All field data synced")
		}
		return nil
	},
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show connectivity and queue state",
	RunE: func(cmd *cobra.Command, args []string) error {
		layer, err := openLayer(cmd.Context())
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer layer.Close()

		st := layer.SyncStatus()
		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			return output.JSON(st)
		}

		fmt.Println(output.FormatSyncStatus(st))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.AddCommand(syncStatusCmd)

	syncStatusCmd.Flags().Bool("json", false, "Output as JSON")
}
