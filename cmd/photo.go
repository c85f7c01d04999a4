package cmd

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/riverwalks/rw/internal/dispatch"
	"github.com/riverwalks/rw/internal/models"
	"github.com/riverwalks/rw/internal/offline"
	"github.com/riverwalks/rw/internal/output"
	"github.com/riverwalks/rw/internal/queue"
)

// maxPhotoBytes caps what we are willing to queue. Field photos beyond this
// should be uploaded from a desk, not a riverbank.
const maxPhotoBytes = 10 << 20

var photoCmd = &cobra.Command{
	Use:     "photo",
	Short:   "Attach photos to sites",
	GroupID: "readings",
}

var photoAddCmd = &cobra.Command{
	Use:     "add <site-id> <file>",
	Aliases: []string{"attach"},
	Short:   "Attach a photo to a site",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		siteID, path := args[0], args[1]

		data, err := os.ReadFile(path)
		if err != nil {
			output.Error("read photo: %v", err)
			return err
		}
		if len(data) > maxPhotoBytes {
			output.Error("photo is too large to queue (%d MB max)", maxPhotoBytes>>20)
			return fmt.Errorf("photo too large")
		}

		layer, err := openLayer(cmd.Context())
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer layer.Close()

		caption, _ := cmd.Flags().GetString("caption")
		fileName := filepath.Base(path)

		payload := mustJSON(map[string]any{
			"site_id":   siteID,
			"file_name": fileName,
			"caption":   caption,
			"data":      base64.StdEncoding.EncodeToString(data),
		})

		res, err := sendWrite(cmd.Context(), layer, dispatch.Request{
			Method:        "POST",
			URL:           layer.Client.PhotosPath(siteID),
			Body:          payload,
			EntityType:    models.EntitySitePhoto,
			Kind:          queue.KindCreate,
			LocalEntityID: queue.TempID(),
			DependsOn:     pendingCreateOp(layer, siteID),
		})
		if err != nil {
			return err
		}

		photo := models.SitePhoto{
			ID:        res.CreatedID(),
			SiteID:    siteID,
			FileName:  fileName,
			LocalPath: path,
			Caption:   caption,
		}
		if layer.DB != nil {
			if cerr := layer.DB.CreatePhoto(&photo); cerr != nil {
				output.Warning("saved remotely but local mirror failed: %v", cerr)
			}
		}

		if res.Queued != nil {
			output.Queued("photo %s will upload when you are back online", fileName)
		} else {
			output.Success("Uploaded %s", fileName)
		}
		autoSync(layer)
		return nil
	},
}

var photoListCmd = &cobra.Command{
	Use:     "list <site-id>",
	Aliases: []string{"ls"},
	Short:   "List photos for a site",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		siteID := args[0]

		layer, err := openLayer(cmd.Context())
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer layer.Close()

		photos, fromCache, err := listPhotos(cmd, layer, siteID)
		if err != nil {
			output.Error("%v", err)
			return err
		}

		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			return output.JSON(photos)
		}

		if fromCache {
			output.Info("offline, showing last synced data")
		}
		if len(photos) == 0 {
			fmt.Println("No photos for this site.")
			return nil
		}
		for _, p := range photos {
			line := p.FileName
			if isLocalOnly(p.ID) {
				line += "  [not synced]"
			}
			if p.Caption != "" {
				line += "  " + p.Caption
			}
			fmt.Println(line)
		}
		return nil
	},
}

func listPhotos(cmd *cobra.Command, layer *offline.Layer, siteID string) ([]models.SitePhoto, bool, error) {
	if isLocalOnly(siteID) {
		if layer.DB == nil {
			return nil, false, fmt.Errorf("site %s not available offline", siteID)
		}
		photos, err := layer.DB.ListPhotos(siteID)
		return photos, false, err
	}

	var remote []models.SitePhoto
	fromCache, err := readList(cmd.Context(), layer, layer.Client.PhotosPath(siteID), &remote)
	if err != nil {
		var offErr *dispatch.OfflineError
		if errors.As(err, &offErr) && layer.DB != nil {
			local, lerr := layer.DB.ListPhotos(siteID)
			return local, true, lerr
		}
		return nil, false, err
	}
	return remote, fromCache, nil
}

var photoDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Delete a photo",
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
			URL:           layer.Client.PhotoPath(id),
			EntityType:    models.EntitySitePhoto,
			Kind:          queue.KindDelete,
			LocalEntityID: id,
		})
		if err != nil {
			return err
		}

		if layer.DB != nil {
			if derr := layer.DB.DeletePhoto(id); derr != nil {
				output.Warning("local mirror not updated: %v", derr)
			}
		}

		if queued {
			output.Queued("photo deletion will sync when you are back online")
		} else {
			output.Success("Deleted photo %s", id)
		}
		autoSync(layer)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(photoCmd)
	photoCmd.AddCommand(photoAddCmd, photoListCmd, photoDeleteCmd)

	photoAddCmd.Flags().String("caption", "", "Photo caption")
	photoListCmd.Flags().Bool("json", false, "Output as JSON")
}
