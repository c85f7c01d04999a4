package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/riverwalks/rw/internal/dispatch"
	"github.com/riverwalks/rw/internal/models"
	"github.com/riverwalks/rw/internal/offline"
	"github.com/riverwalks/rw/internal/output"
	"github.com/riverwalks/rw/internal/queue"
	"github.com/riverwalks/rw/internal/report"
)

var sedimentCmd = &cobra.Command{
	Use:     "sediment",
	Short:   "Record sediment samples",
	GroupID: "readings",
}

var sedimentAddCmd = &cobra.Command{
	Use:     "add <site-id>",
	Aliases: []string{"create"},
	Short:   "Record a sediment sample",
	Long:    `Record one sediment measurement: the long-axis size in millimetres and the Powers roundness index (1 very angular .. 6 well rounded).`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		siteID := args[0]

		size, _ := cmd.Flags().GetFloat64("size")
		roundness, _ := cmd.Flags().GetInt("roundness")
		if !cmd.Flags().Changed("size") || !cmd.Flags().Changed("roundness") {
			output.Error("--size and --roundness are required")
			return fmt.Errorf("size and roundness are required")
		}
		if size <= 0 {
			output.Error("size must be positive")
			return fmt.Errorf("invalid size")
		}
		if roundness < 1 || roundness > 6 {
			output.Error("roundness must be 1-6 (Powers index)")
			return fmt.Errorf("invalid roundness")
		}

		layer, err := openLayer(cmd.Context())
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer layer.Close()

		sample := models.SedimentSample{
			SiteID:         siteID,
			SizeMM:         size,
			RoundnessIndex: roundness,
		}
		sample.SampleNumber, _ = cmd.Flags().GetInt("number")
		if sample.SampleNumber <= 0 {
			sample.SampleNumber = nextSampleNumber(layer, siteID)
		}

		payload := mustJSON(map[string]any{
			"site_id":         siteID,
			"sample_number":   sample.SampleNumber,
			"size_mm":         size,
			"roundness_index": roundness,
		})

		res, err := sendWrite(cmd.Context(), layer, dispatch.Request{
			Method:        "POST",
			URL:           layer.Client.SedimentPath(siteID),
			Body:          payload,
			EntityType:    models.EntitySedimentSample,
			Kind:          queue.KindCreate,
			LocalEntityID: queue.TempID(),
			DependsOn:     pendingCreateOp(layer, siteID),
		})
		if err != nil {
			return err
		}

		sample.ID = res.CreatedID()
		if layer.DB != nil {
			if cerr := layer.DB.CreateSample(&sample); cerr != nil {
				output.Warning("saved remotely but local mirror failed: %v", cerr)
			}
		}

		label := report.RoundnessLabel(float64(roundness))
		if res.Queued != nil {
			output.Queued("sample #%d (%.1fmm, %s) will sync when you are back online", sample.SampleNumber, size, label)
		} else {
			output.Success("Recorded sample #%d: %.1fmm, %s", sample.SampleNumber, size, label)
		}
		autoSync(layer)
		return nil
	},
}

func nextSampleNumber(layer *offline.Layer, siteID string) int {
	if layer.DB == nil {
		return 1
	}
	samples, err := layer.DB.ListSamples(siteID)
	if err != nil {
		return 1
	}
	max := 0
	for _, s := range samples {
		if s.SampleNumber > max {
			max = s.SampleNumber
		}
	}
	return max + 1
}

var sedimentListCmd = &cobra.Command{
	Use:     "list <site-id>",
	Aliases: []string{"ls"},
	Short:   "List sediment samples for a site",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		siteID := args[0]

		layer, err := openLayer(cmd.Context())
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer layer.Close()

		samples, fromCache, err := listSamples(cmd, layer, siteID)
		if err != nil {
			output.Error("%v", err)
			return err
		}

		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			return output.JSON(samples)
		}

		if fromCache {
			output.Info("offline, showing last synced data")
		}
		if len(samples) == 0 {
			fmt.Println("No sediment samples for this site.")
			return nil
		}
		for _, s := range samples {
			fmt.Printf("#%d  %.1fmm  %s\n", s.SampleNumber, s.SizeMM, report.RoundnessLabel(float64(s.RoundnessIndex)))
		}
		return nil
	},
}

func listSamples(cmd *cobra.Command, layer *offline.Layer, siteID string) ([]models.SedimentSample, bool, error) {
	if isLocalOnly(siteID) {
		if layer.DB == nil {
			return nil, false, fmt.Errorf("site %s not available offline", siteID)
		}
		samples, err := layer.DB.ListSamples(siteID)
		return samples, false, err
	}

	var remote []models.SedimentSample
	fromCache, err := readList(cmd.Context(), layer, layer.Client.SedimentPath(siteID), &remote)
	if err != nil {
		var offErr *dispatch.OfflineError
		if errors.As(err, &offErr) && layer.DB != nil {
			local, lerr := layer.DB.ListSamples(siteID)
			return local, true, lerr
		}
		return nil, false, err
	}
	return remote, fromCache, nil
}

var sedimentDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Delete a sediment sample",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]

		layer, err := openLayer(cmd.Context())
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer layer.Close()

		queued, err := submitWrite(cmd.Context(), layer, dispatch.Request{
			Method:        "DELETE",
			URL:           layer.Client.SamplePath(id),
			EntityType:    models.EntitySedimentSample,
			Kind:          queue.KindDelete,
			LocalEntityID: id,
		})
		if err != nil {
			return err
		}

		if layer.DB != nil {
			if derr := layer.DB.DeleteSample(id); derr != nil {
				output.Warning("local mirror not updated: %v", derr)
			}
		}

		if queued {
			output.Queued("sample deletion will sync when you are back online")
		} else {
			output.Success("Deleted sample %s", id)
		}
		autoSync(layer)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sedimentCmd)
	sedimentCmd.AddCommand(sedimentAddCmd, sedimentListCmd, sedimentDeleteCmd)

	sedimentAddCmd.Flags().Float64("size", 0, "Long-axis size in millimetres")
	sedimentAddCmd.Flags().Int("roundness", 0, "Powers roundness index (1-6)")
	sedimentAddCmd.Flags().Int("number", 0, "Sample number (default: next in sequence)")

	sedimentListCmd.Flags().Bool("json", false, "Output as JSON")
}
