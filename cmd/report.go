package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/riverwalks/rw/internal/output"
	"github.com/riverwalks/rw/internal/report"
)

var reportCmd = &cobra.Command{
	Use:     "report <walk-id>",
	Short:   "Render the hydrology report for a walk",
	Long:    `Computes cross-section area, mean depth, velocity, discharge and sediment statistics per site, and renders the walk as a markdown report. Works entirely from local data, so it is available offline.`,
	GroupID: "fieldwork",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		layer, err := openLayer(cmd.Context())
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer layer.Close()

		if layer.DB == nil {
			output.Error("reports need the local database, run 'rw init' first")
			return fmt.Errorf("no local database")
		}

		walk, err := layer.DB.GetWalk(args[0])
		if err != nil {
			output.Error("%v", err)
			return err
		}
		if walk == nil {
			output.Error("walk %s not found", args[0])
			return fmt.Errorf("walk not found")
		}

		sites, err := layer.DB.ListSites(walk.ID)
		if err != nil {
			output.Error("%v", err)
			return err
		}

		var summaries []report.SiteSummary
		for _, site := range sites {
			points, perr := layer.DB.ListPoints(site.ID)
			if perr != nil {
				output.Error("%v", perr)
				return perr
			}
			samples, serr := layer.DB.ListSamples(site.ID)
			if serr != nil {
				output.Error("%v", serr)
				return serr
			}
			summaries = append(summaries, report.Summarize(site, points, samples))
		}

		md := report.Markdown(*walk, summaries)

		if raw, _ := cmd.Flags().GetBool("raw"); raw {
			fmt.Print(md)
			return nil
		}

		rendered, err := output.RenderMarkdown(md)
		if err != nil {
			// Fall back to the raw markdown rather than failing the report.
			fmt.Print(md)
			return nil
		}
		fmt.Print(rendered)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().Bool("raw", false, "Print raw markdown without terminal rendering")
}
