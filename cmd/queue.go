package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/riverwalks/rw/internal/output"
	"github.com/riverwalks/rw/internal/queue"
)

var queueCmd = &cobra.Command{
	Use:     "queue",
	Short:   "Inspect and manage the pending-operation queue",
	GroupID: "sync",
}

var queueListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List queued operations",
	RunE: func(cmd *cobra.Command, args []string) error {
		layer, err := openLayer(cmd.Context())
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer layer.Close()

		filter := queue.Filter{}
		if failedOnly, _ := cmd.Flags().GetBool("failed"); failedOnly {
			filter.Status = queue.StatusFailed
		}

		ops, err := layer.Queue.List(filter)
		if err != nil {
			output.Error("%v", err)
			return err
		}

		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			return output.JSON(ops)
		}

		if len(ops) == 0 {
			fmt.Println("Queue is empty")
			return nil
		}
		for i := range ops {
			fmt.Println(output.FormatOpLine(&ops[i]))
		}
		return nil
	},
}

var queueRetryCmd = &cobra.Command{
	Use:   "retry <op-id>",
	Short: "Requeue a failed operation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		layer, err := openLayer(cmd.Context())
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer layer.Close()

		if err := layer.Queue.Requeue(args[0]); err != nil {
			output.Error("%v", err)
			return err
		}
		output.Success("Operation %s requeued", args[0])
		autoSync(layer)
		return nil
	},
}

var queueDiscardCmd = &cobra.Command{
	Use:     "discard <op-id>",
	Aliases: []string{"rm"},
	Short:   "Discard a queued operation",
	Long:    `Removes the operation from the queue without sending it. The local mirror keeps whatever was recorded; only the server write is abandoned.`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		layer, err := openLayer(cmd.Context())
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer layer.Close()

		if err := layer.Queue.Remove(args[0]); err != nil {
			output.Error("%v", err)
			return err
		}
		output.Success("Operation %s discarded", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(queueCmd)
	queueCmd.AddCommand(queueListCmd, queueRetryCmd, queueDiscardCmd)

	queueListCmd.Flags().Bool("failed", false, "Show only failed operations")
	queueListCmd.Flags().Bool("json", false, "Output as JSON")
}
