package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/riverwalks/rw/internal/dispatch"
	"github.com/riverwalks/rw/internal/models"
	"github.com/riverwalks/rw/internal/offline"
	"github.com/riverwalks/rw/internal/output"
	"github.com/riverwalks/rw/internal/queue"
)

var errWidthRequired = errors.New("river width is required")

var siteCmd = &cobra.Command{
	Use:     "site",
	Short:   "Manage measurement sites",
	GroupID: "fieldwork",
}

var siteListCmd = &cobra.Command{
	Use:     "list <walk-id>",
	Aliases: []string{"ls"},
	Short:   "List sites for a walk",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		walkID := args[0]

		layer, err := openLayer(cmd.Context())
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer layer.Close()

		sites, fromCache, err := listSites(cmd, layer, walkID)
		if err != nil {
			output.Error("%v", err)
			return err
		}

		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			return output.JSON(sites)
		}

		if fromCache {
			output.Info("offline, showing last synced data")
		}
		if len(sites) == 0 {
			fmt.Println("No sites yet. Add one with: rw site add " + walkID)
			return nil
		}
		for i := range sites {
			fmt.Println(output.FormatSiteShort(&sites[i]))
		}
		return nil
	},
}

func listSites(cmd *cobra.Command, layer *offline.Layer, walkID string) ([]models.Site, bool, error) {
	// A walk that has never synced has no server-side sites to ask for.
	if strings.HasPrefix(walkID, "tmp-") {
		if layer.DB == nil {
			return nil, false, fmt.Errorf("walk %s not available offline", walkID)
		}
		sites, err := layer.DB.ListSites(walkID)
		return sites, false, err
	}

	var remote []models.Site
	fromCache, err := readList(cmd.Context(), layer, layer.Client.SitesPath(walkID), &remote)
	if err != nil {
		var offErr *dispatch.OfflineError
		if errors.As(err, &offErr) && layer.DB != nil {
			local, lerr := layer.DB.ListSites(walkID)
			return local, true, lerr
		}
		return nil, false, err
	}

	if layer.DB != nil {
		local, lerr := layer.DB.ListSites(walkID)
		if lerr == nil {
			seen := make(map[string]bool, len(remote))
			for _, s := range remote {
				seen[s.ID] = true
			}
			for _, s := range local {
				if strings.HasPrefix(s.ID, "tmp-") && !seen[s.ID] {
					remote = append(remote, s)
				}
			}
		}
	}
	return remote, fromCache, nil
}

var siteAddCmd = &cobra.Command{
	Use:     "add <walk-id>",
	Aliases: []string{"create", "new"},
	Short:   "Add a measurement site to a walk",
	Long: `Add a site with its channel width and optional GPS position.

Without --width the command opens an interactive form, which suits gloved
hands at the riverbank better than remembering flags.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		walkID := args[0]

		layer, err := openLayer(cmd.Context())
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer layer.Close()

		site := models.Site{WalkID: walkID}
		site.SiteName, _ = cmd.Flags().GetString("name")
		site.Notes, _ = cmd.Flags().GetString("notes")
		site.SiteNumber, _ = cmd.Flags().GetInt("number")
		site.RiverWidth, _ = cmd.Flags().GetFloat64("width")
		if cmd.Flags().Changed("lat") {
			v, _ := cmd.Flags().GetFloat64("lat")
			site.Latitude = &v
		}
		if cmd.Flags().Changed("long") {
			v, _ := cmd.Flags().GetFloat64("long")
			site.Longitude = &v
		}

		if !cmd.Flags().Changed("width") {
			if err := runSiteForm(&site); err != nil {
				output.Error("%v", err)
				return err
			}
		}
		if site.RiverWidth <= 0 {
			output.Error("%v", errWidthRequired)
			return errWidthRequired
		}

		if site.SiteNumber <= 0 {
			site.SiteNumber = nextSiteNumber(layer, walkID)
		}

		payload := mustJSON(map[string]any{
			"walk_id":     walkID,
			"site_number": site.SiteNumber,
			"site_name":   site.SiteName,
			"river_width": site.RiverWidth,
			"latitude":    site.Latitude,
			"longitude":   site.Longitude,
			"notes":       site.Notes,
		})

		res, err := sendWrite(cmd.Context(), layer, dispatch.Request{
			Method:        "POST",
			URL:           layer.Client.SitesPath(walkID),
			Body:          payload,
			EntityType:    models.EntitySite,
			Kind:          queue.KindCreate,
			LocalEntityID: queue.TempID(),
			DependsOn:     pendingCreateOp(layer, walkID),
		})
		if err != nil {
			return err
		}

		site.ID = res.CreatedID()
		if layer.DB != nil {
			if cerr := layer.DB.CreateSite(&site); cerr != nil {
				output.Warning("saved remotely but local mirror failed: %v", cerr)
			}
		}

		if res.Queued != nil {
			output.Queued("site %d will sync when you are back online (%s)", site.SiteNumber, site.ID)
		} else {
			output.Success("Added site %d (%s)", site.SiteNumber, site.ID)
		}
		autoSync(layer)
		return nil
	},
}

// runSiteForm collects site details interactively.
func runSiteForm(site *models.Site) error {
	var widthStr, latStr, longStr, numberStr string
	if site.RiverWidth > 0 {
		widthStr = strconv.FormatFloat(site.RiverWidth, 'f', -1, 64)
	}
	if site.SiteNumber > 0 {
		numberStr = strconv.Itoa(site.SiteNumber)
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Site name").
				Value(&site.SiteName).
				Placeholder("Meander below the weir..."),
			huh.NewInput().
				Title("Site number").
				Value(&numberStr).
				Placeholder("blank = next in sequence").
				Validate(optionalInt),
			huh.NewInput().
				Title("River width (m)").
				Value(&widthStr).
				Validate(func(s string) error {
					v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
					if err != nil || v <= 0 {
						return errWidthRequired
					}
					return nil
				}),
			huh.NewInput().
				Title("Latitude").
				Value(&latStr).
				Placeholder("optional").
				Validate(optionalFloat),
			huh.NewInput().
				Title("Longitude").
				Value(&longStr).
				Placeholder("optional").
				Validate(optionalFloat),
			huh.NewText().
				Title("Notes").
				Value(&site.Notes).
				Placeholder("Bed material, bank condition...").
				Lines(3),
		).Title("New Site"),
	)

	if err := form.Run(); err != nil {
		return err
	}

	site.RiverWidth, _ = strconv.ParseFloat(strings.TrimSpace(widthStr), 64)
	if n, err := strconv.Atoi(strings.TrimSpace(numberStr)); err == nil {
		site.SiteNumber = n
	}
	if v, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64); err == nil {
		site.Latitude = &v
	}
	if v, err := strconv.ParseFloat(strings.TrimSpace(longStr), 64); err == nil {
		site.Longitude = &v
	}
	return nil
}

func optionalFloat(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return errors.New("must be a number")
	}
	return nil
}

func optionalInt(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if _, err := strconv.Atoi(s); err != nil {
		return errors.New("must be a whole number")
	}
	return nil
}

// nextSiteNumber picks the next free downstream number from the mirror.
func nextSiteNumber(layer *offline.Layer, walkID string) int {
	if layer.DB == nil {
		return 1
	}
	sites, err := layer.DB.ListSites(walkID)
	if err != nil {
		return 1
	}
	max := 0
	for _, s := range sites {
		if s.SiteNumber > max {
			max = s.SiteNumber
		}
	}
	return max + 1
}

var siteShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one site with its readings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]

		layer, err := openLayer(cmd.Context())
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer layer.Close()

		site, err := loadSite(cmd, layer, id)
		if err != nil {
			output.Error("%v", err)
			return err
		}

		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			return output.JSON(site)
		}

		fmt.Println(output.FormatSiteShort(site))
		if site.Latitude != nil && site.Longitude != nil {
			fmt.Printf("  Position: %.5f, %.5f\n", *site.Latitude, *site.Longitude)
		}
		if site.Notes != "" {
			fmt.Println(output.IndentString(site.Notes, 2))
		}

		if layer.DB != nil {
			points, perr := layer.DB.ListPoints(site.ID)
			if perr == nil && len(points) > 0 {
				fmt.Printf("\n  %d reading(s):\n", len(points))
				for _, p := range points {
					line := fmt.Sprintf("    #%d  %.2fm from bank  depth %.2fm", p.PointNumber, p.DistanceFromBank, p.Depth)
					if p.Velocity != nil {
						line += fmt.Sprintf("  velocity %.2fm/s", *p.Velocity)
					}
					fmt.Println(line)
				}
			}
			samples, serr := layer.DB.ListSamples(site.ID)
			if serr == nil && len(samples) > 0 {
				fmt.Printf("\n  %d sediment sample(s)\n", len(samples))
			}
		}
		return nil
	},
}

func loadSite(cmd *cobra.Command, layer *offline.Layer, id string) (*models.Site, error) {
	if !isLocalOnly(id) {
		var s models.Site
		if _, err := readList(cmd.Context(), layer, layer.Client.SitePath(id), &s); err == nil {
			return &s, nil
		}
	}
	if layer.DB == nil {
		return nil, fmt.Errorf("site %s not available offline", id)
	}
	s, err := layer.DB.GetSite(id)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("site %s not found", id)
	}
	return s, nil
}

var siteUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update a site",
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
			fields["site_name"] = v
		}
		if cmd.Flags().Changed("width") {
			v, _ := cmd.Flags().GetFloat64("width")
			fields["river_width"] = v
		}
		if cmd.Flags().Changed("lat") {
			v, _ := cmd.Flags().GetFloat64("lat")
			fields["latitude"] = v
		}
		if cmd.Flags().Changed("long") {
			v, _ := cmd.Flags().GetFloat64("long")
			fields["longitude"] = v
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
			URL:           layer.Client.SitePath(id),
			Body:          mustJSON(fields),
			EntityType:    models.EntitySite,
			Kind:          queue.KindUpdate,
			LocalEntityID: id,
		})
		if err != nil {
			return err
		}

		if layer.DB != nil {
			if s, gerr := layer.DB.GetSite(id); gerr == nil && s != nil {
				applySiteFields(s, fields)
				if uerr := layer.DB.UpdateSite(s); uerr != nil {
					output.Warning("local mirror not updated: %v", uerr)
				}
			}
		}

		if queued {
			output.Queued("site %s update will sync when you are back online", id)
		} else {
			output.Success("Updated site %s", id)
		}
		autoSync(layer)
		return nil
	},
}

func applySiteFields(s *models.Site, fields map[string]any) {
	if v, ok := fields["site_name"].(string); ok {
		s.SiteName = v
	}
	if v, ok := fields["river_width"].(float64); ok {
		s.RiverWidth = v
	}
	if v, ok := fields["latitude"].(float64); ok {
		s.Latitude = &v
	}
	if v, ok := fields["longitude"].(float64); ok {
		s.Longitude = &v
	}
	if v, ok := fields["notes"].(string); ok {
		s.Notes = v
	}
}

var siteDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Delete a site and its readings",
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
			URL:           layer.Client.SitePath(id),
			EntityType:    models.EntitySite,
			Kind:          queue.KindDelete,
			LocalEntityID: id,
		})
		if err != nil {
			return err
		}

		if layer.DB != nil {
			if derr := layer.DB.DeleteSite(id); derr != nil {
				output.Warning("local mirror not updated: %v", derr)
			}
		}

		if queued {
			output.Queued("site %s deletion will sync when you are back online", id)
		} else {
			output.Success("Deleted site %s", id)
		}
		autoSync(layer)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(siteCmd)
	siteCmd.AddCommand(siteListCmd, siteAddCmd, siteShowCmd, siteUpdateCmd, siteDeleteCmd)

	siteListCmd.Flags().Bool("json", false, "Output as JSON")
	siteShowCmd.Flags().Bool("json", false, "Output as JSON")

	siteAddCmd.Flags().String("name", "", "Site name")
	siteAddCmd.Flags().Int("number", 0, "Site number (default: next in sequence)")
	siteAddCmd.Flags().Float64("width", 0, "River width in metres")
	siteAddCmd.Flags().Float64("lat", 0, "Latitude")
	siteAddCmd.Flags().Float64("long", 0, "Longitude")
	siteAddCmd.Flags().String("notes", "", "Free-form notes")

	siteUpdateCmd.Flags().String("name", "", "Site name")
	siteUpdateCmd.Flags().Float64("width", 0, "River width in metres")
	siteUpdateCmd.Flags().Float64("lat", 0, "Latitude")
	siteUpdateCmd.Flags().Float64("long", 0, "Longitude")
	siteUpdateCmd.Flags().String("notes", "", "Free-form notes")
}
