package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/riverwalks/rw/internal/dispatch"
	"github.com/riverwalks/rw/internal/models"
	"github.com/riverwalks/rw/internal/offline"
	"github.com/riverwalks/rw/internal/output"
	"github.com/riverwalks/rw/internal/queue"
)

var walkCmd = &cobra.Command{
	Use:     "walk",
	Short:   "Manage river walks",
	GroupID: "fieldwork",
}

var walkListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List river walks",
	RunE: func(cmd *cobra.Command, args []string) error {
		layer, err := openLayer(cmd.Context())
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer layer.Close()

		jsonOut, _ := cmd.Flags().GetBool("json")

		walks, fromCache, err := listWalks(cmd, layer)
		if err != nil {
			output.Error("%v", err)
			return err
		}

		if jsonOut {
			return output.JSON(walks)
		}

		if fromCache {
			output.Info("offline, showing last synced data")
		}
		if len(walks) == 0 {
			fmt.Println("No river walks yet. Create one with: rw walk create \"Name\"")
			return nil
		}
		for i := range walks {
			fmt.Println(output.FormatWalkShort(&walks[i]))
		}
		return nil
	},
}

// listWalks prefers the server view and falls back to the local mirror when
// offline with no cached copy. Unsynced local walks are appended either way
// so field data is never invisible.
func listWalks(cmd *cobra.Command, layer *offline.Layer) ([]models.RiverWalk, bool, error) {
	var remote []models.RiverWalk
	fromCache, err := readList(cmd.Context(), layer, layer.Client.WalksPath(), &remote)
	if err != nil {
		var offErr *dispatch.OfflineError
		if errors.As(err, &offErr) && layer.DB != nil {
			local, lerr := layer.DB.ListWalks()
			return local, true, lerr
		}
		return nil, false, err
	}

	if layer.DB != nil {
		local, lerr := layer.DB.ListWalks()
		if lerr == nil {
			seen := make(map[string]bool, len(remote))
			for _, w := range remote {
				seen[w.ID] = true
			}
			for _, w := range local {
				if strings.HasPrefix(w.ID, "tmp-") && !seen[w.ID] {
					remote = append(remote, w)
				}
			}
		}
	}
	return remote, fromCache, nil
}

var walkCreateCmd = &cobra.Command{
	Use:     "create [name]",
	Aliases: []string{"add", "new"},
	Short:   "Create a river walk",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		if len(args) > 0 {
			name = args[0]
		}
		if name == "" {
			output.Error("name is required")
			return fmt.Errorf("name is required")
		}
		river, _ := cmd.Flags().GetString("river")
		date, _ := cmd.Flags().GetString("date")
		notes, _ := cmd.Flags().GetString("notes")

		layer, err := openLayer(cmd.Context())
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer layer.Close()

		payload := mustJSON(map[string]any{
			"name":       name,
			"river_name": river,
			"walk_date":  date,
			"notes":      notes,
		})

		res, err := sendWrite(cmd.Context(), layer, dispatch.Request{
			Method:        "POST",
			URL:           layer.Client.WalksPath(),
			Body:          payload,
			EntityType:    models.EntityRiverWalk,
			Kind:          queue.KindCreate,
			LocalEntityID: queue.TempID(),
		})
		if err != nil {
			return err
		}

		id := res.CreatedID()
		if layer.DB != nil {
			w := &models.RiverWalk{ID: id, Name: name, RiverName: river, WalkDate: date, Notes: notes}
			if err := layer.DB.CreateWalk(w); err != nil {
				output.Warning("saved remotely but local mirror failed: %v", err)
			}
		}

		if res.Queued != nil {
			output.Queued("walk %q will sync when you are back online (%s)", name, id)
		} else {
			output.Success("Created walk %s (%s)", name, id)
		}
		autoSync(layer)
		return nil
	},
}

var walkShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one river walk",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		layer, err := openLayer(cmd.Context())
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer layer.Close()

		walk, err := loadWalk(cmd, layer, args[0])
		if err != nil {
			output.Error("%v", err)
			return err
		}

		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			return output.JSON(walk)
		}

		fmt.Println(output.FormatWalkShort(walk))
		if walk.RiverName != "" {
			fmt.Printf("  River: %s\n", walk.RiverName)
		}
		if walk.WalkDate != "" {
			fmt.Printf("  Date:  %s\n", walk.WalkDate)
		}
		if walk.Notes != "" {
			fmt.Println(output.IndentString(walk.Notes, 2))
		}

		if layer.DB != nil {
			sites, err := layer.DB.ListSites(walk.ID)
			if err == nil && len(sites) > 0 {
				fmt.Println()
				for i := range sites {
					fmt.Println("  " + output.FormatSiteShort(&sites[i]))
				}
			}
		}
		return nil
	},
}

func loadWalk(cmd *cobra.Command, layer *offline.Layer, id string) (*models.RiverWalk, error) {
	// Unsynced entities exist only in the mirror.
	if !strings.HasPrefix(id, "tmp-") {
		var w models.RiverWalk
		if _, err := readList(cmd.Context(), layer, layer.Client.WalkPath(id), &w); err == nil {
			return &w, nil
		}
	}
	if layer.DB == nil {
		return nil, fmt.Errorf("walk %s not available offline", id)
	}
	w, err := layer.DB.GetWalk(id)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, fmt.Errorf("walk %s not found", id)
	}
	return w, nil
}

var walkUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update a river walk",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]

		layer, err := openLayer(cmd.Context())
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer layer.Close()

		fields := map[string]any{}
		if cmd.Flags().Changed("name") {
			v, _ := cmd.Flags().GetString("name")
			fields["name"] = v
		}
		if cmd.Flags().Changed("river") {
			v, _ := cmd.Flags().GetString("river")
			fields["river_name"] = v
		}
		if cmd.Flags().Changed("date") {
			v, _ := cmd.Flags().GetString("date")
			fields["walk_date"] = v
		}
		if cmd.Flags().Changed("notes") {
			v, _ := cmd.Flags().GetString("notes")
			fields["notes"] = v
		}
		if len(fields) == 0 {
			output.Error("nothing to update")
			return fmt.Errorf("nothing to update")
		}

		queued, err := submitWrite(cmd.Context(), layer, dispatch.Request{
			Method:        "PUT",
			URL:           layer.Client.WalkPath(id),
			Body:          mustJSON(fields),
			EntityType:    models.EntityRiverWalk,
			Kind:          queue.KindUpdate,
			LocalEntityID: id,
		})
		if err != nil {
			return err
		}

		if layer.DB != nil {
			if w, gerr := layer.DB.GetWalk(id); gerr == nil && w != nil {
				applyWalkFields(w, fields)
				if uerr := layer.DB.UpdateWalk(w); uerr != nil {
					output.Warning("local mirror not updated: %v", uerr)
				}
			}
		}

		if queued {
			output.Queued("walk %s update will sync when you are back online", id)
		} else {
			output.Success("Updated walk %s", id)
		}
		autoSync(layer)
		return nil
	},
}

func applyWalkFields(w *models.RiverWalk, fields map[string]any) {
	if v, ok := fields["name"].(string); ok {
		w.Name = v
	}
	if v, ok := fields["river_name"].(string); ok {
		w.RiverName = v
	}
	if v, ok := fields["walk_date"].(string); ok {
		w.WalkDate = v
	}
	if v, ok := fields["notes"].(string); ok {
		w.Notes = v
	}
}

var walkDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Delete a river walk",
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
			URL:           layer.Client.WalkPath(id),
			EntityType:    models.EntityRiverWalk,
			Kind:          queue.KindDelete,
			LocalEntityID: id,
		})
		if err != nil {
			return err
		}

		if layer.DB != nil {
			if derr := layer.DB.DeleteWalk(id); derr != nil {
				output.Warning("local mirror not updated: %v", derr)
			}
		}

		if queued {
			output.Queued("walk %s deletion will sync when you are back online", id)
		} else {
			output.Success("Deleted walk %s", id)
		}
		autoSync(layer)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(walkCmd)
	walkCmd.AddCommand(walkListCmd, walkCreateCmd, walkShowCmd, walkUpdateCmd, walkDeleteCmd)

	walkListCmd.Flags().Bool("json", false, "Output as JSON")
	walkShowCmd.Flags().Bool("json", false, "Output as JSON")

	for _, c := range []*cobra.Command{walkCreateCmd, walkUpdateCmd} {
		c.Flags().String("name", "", "Walk name")
		c.Flags().String("river", "", "River name")
		c.Flags().String("date", "", "Walk date (YYYY-MM-DD)")
		c.Flags().String("notes", "", "Free-form notes")
	}
}
