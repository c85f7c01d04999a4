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
)

var pointCmd = &cobra.Command{
	Use:     "point",
	Short:   "Record depth and velocity readings",
	GroupID: "readings",
}

var pointAddCmd = &cobra.Command{
	Use:     "add <site-id>",
	Aliases: []string{"create"},
	Short:   "Record a measurement point",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		siteID := args[0]

		distance, _ := cmd.Flags().GetFloat64("distance")
		depth, _ := cmd.Flags().GetFloat64("depth")
		if !cmd.Flags().Changed("distance") || !cmd.Flags().Changed("depth") {
			output.Error("--distance and --depth are required")
			return fmt.Errorf("distance and depth are required")
		}
		if distance < 0 || depth < 0 {
			output.Error("readings cannot be negative")
			return fmt.Errorf("negative reading")
		}

		layer, err := openLayer(cmd.Context())
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer layer.Close()

		point := models.MeasurementPoint{
			SiteID:           siteID,
			DistanceFromBank: distance,
			Depth:            depth,
		}
		if cmd.Flags().Changed("velocity") {
			v, _ := cmd.Flags().GetFloat64("velocity")
			point.Velocity = &v
		}
		point.PointNumber, _ = cmd.Flags().GetInt("number")
		if point.PointNumber <= 0 {
			point.PointNumber = nextPointNumber(layer, siteID)
		}

		payload := mustJSON(map[string]any{
			"site_id":            siteID,
			"point_number":       point.PointNumber,
			"distance_from_bank": distance,
			"depth":              depth,
			"velocity":           point.Velocity,
		})

		res, err := sendWrite(cmd.Context(), layer, dispatch.Request{
			Method:        "POST",
			URL:           layer.Client.PointsPath(siteID),
			Body:          payload,
			EntityType:    models.EntityMeasurementPoint,
			Kind:          queue.KindCreate,
			LocalEntityID: queue.TempID(),
			DependsOn:     pendingCreateOp(layer, siteID),
		})
		if err != nil {
			return err
		}

		point.ID = res.CreatedID()
		if layer.DB != nil {
			if cerr := layer.DB.CreatePoint(&point); cerr != nil {
				output.Warning("saved remotely but local mirror failed: %v", cerr)
			}
		}

		if res.Queued != nil {
			output.Queued("reading at %.2fm will sync when you are back online", distance)
		} else {
			output.Success("Recorded %.2fm from bank: depth %.2fm", distance, depth)
		}
		autoSync(layer)
		return nil
	},
}

func nextPointNumber(layer *offline.Layer, siteID string) int {
	if layer.DB == nil {
		return 1
	}
	points, err := layer.DB.ListPoints(siteID)
	if err != nil {
		return 1
	}
	max := 0
	for _, p := range points {
		if p.PointNumber > max {
			max = p.PointNumber
		}
	}
	return max + 1
}

var pointListCmd = &cobra.Command{
	Use:     "list <site-id>",
	Aliases: []string{"ls"},
	Short:   "List readings for a site",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		siteID := args[0]

		layer, err := openLayer(cmd.Context())
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer layer.Close()

		points, fromCache, err := listPoints(cmd, layer, siteID)
		if err != nil {
			output.Error("%v", err)
			return err
		}

		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			return output.JSON(points)
		}

		if fromCache {
			output.Info("offline, showing last synced data")
		}
		if len(points) == 0 {
			fmt.Println("No readings yet for this site.")
			return nil
		}
		for _, p := range points {
			line := fmt.Sprintf("#%d  %.2fm from bank  depth %.2fm", p.PointNumber, p.DistanceFromBank, p.Depth)
			if p.Velocity != nil {
				line += fmt.Sprintf("  velocity %.2fm/s", *p.Velocity)
			}
			fmt.Println(line)
		}
		return nil
	},
}

func listPoints(cmd *cobra.Command, layer *offline.Layer, siteID string) ([]models.MeasurementPoint, bool, error) {
	if isLocalOnly(siteID) {
		if layer.DB == nil {
			return nil, false, fmt.Errorf("site %s not available offline", siteID)
		}
		points, err := layer.DB.ListPoints(siteID)
		return points, false, err
	}

	var remote []models.MeasurementPoint
	fromCache, err := readList(cmd.Context(), layer, layer.Client.PointsPath(siteID), &remote)
	if err != nil {
		var offErr *dispatch.OfflineError
		if errors.As(err, &offErr) && layer.DB != nil {
			local, lerr := layer.DB.ListPoints(siteID)
			return local, true, lerr
		}
		return nil, false, err
	}
	return remote, fromCache, nil
}

var pointDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Delete a reading",
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
			URL:           layer.Client.PointPath(id),
			EntityType:    models.EntityMeasurementPoint,
			Kind:          queue.KindDelete,
			LocalEntityID: id,
		})
		if err != nil {
			return err
		}

		if layer.DB != nil {
			if derr := layer.DB.DeletePoint(id); derr != nil {
				output.Warning("local mirror not updated: %v", derr)
			}
		}

		if queued {
			output.Queued("reading deletion will sync when you are back online")
		} else {
			output.Success("Deleted reading %s", id)
		}
		autoSync(layer)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pointCmd)
	pointCmd.AddCommand(pointAddCmd, pointListCmd, pointDeleteCmd)

	pointAddCmd.Flags().Float64("distance", 0, "Distance from the near bank in metres")
	pointAddCmd.Flags().Float64("depth", 0, "Depth in metres")
	pointAddCmd.Flags().Float64("velocity", 0, "Velocity in m/s (optional)")
	pointAddCmd.Flags().Int("number", 0, "Point number (default: next in sequence)")

	pointListCmd.Flags().Bool("json", false, "Output as JSON")
}
