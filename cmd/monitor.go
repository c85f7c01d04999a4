package cmd

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/riverwalks/rw/internal/output"
	"github.com/riverwalks/rw/internal/tui/monitor"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Live dashboard for connectivity and sync state",
	Long: `Launch a live-updating dashboard showing:
- Connectivity: online/offline as the health probe sees it
- Queue: pending and failed operations waiting to sync
- Last sync outcome and timing

Key bindings:
  j/k  Scroll the queue
  s    Sync now
  r    Force refresh
  ?    Toggle help
  q    Quit`,
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		layer, err := openLayer(cmd.Context())
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer layer.Close()

		interval, _ := cmd.Flags().GetDuration("interval")
		if interval < 500*time.Millisecond {
			interval = time.Second
		}

		model := monitor.NewModel(layer, interval)

		p := tea.NewProgram(model, tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("error running monitor: %w", err)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().Duration("interval", time.Second, "Refresh interval")
}
