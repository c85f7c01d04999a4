package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/riverwalks/rw/internal/models"
)

// The entity tables are the optimistic local mirror: every write lands here
// immediately under either a server id or a tmp- id, and sync renames the
// tmp- ids once the server assigns real ones.

// CreateWalk inserts a river walk. A missing ID gets a generated one.
func (db *DB) CreateWalk(w *models.RiverWalk) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	w.CreatedAt = now
	w.UpdatedAt = now
	return db.withWriteLock(func() error {
		_, err := db.conn.Exec(
			`INSERT INTO river_walks (id, name, river_name, walk_date, notes, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			w.ID, w.Name, w.RiverName, w.WalkDate, w.Notes, w.CreatedAt, w.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert walk: %w", err)
		}
		return nil
	})
}

// GetWalk returns a walk by id, or nil when absent or soft-deleted.
func (db *DB) GetWalk(id string) (*models.RiverWalk, error) {
	var w models.RiverWalk
	err := db.conn.QueryRow(
		`SELECT id, name, river_name, walk_date, notes, created_at, updated_at
		 FROM river_walks WHERE id = ? AND deleted_at IS NULL`, id,
	).Scan(&w.ID, &w.Name, &w.RiverName, &w.WalkDate, &w.Notes, &w.CreatedAt, &w.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select walk: %w", err)
	}
	return &w, nil
}

// ListWalks returns all walks that are not soft-deleted, newest first.
func (db *DB) ListWalks() ([]models.RiverWalk, error) {
	rows, err := db.conn.Query(
		`SELECT id, name, river_name, walk_date, notes, created_at, updated_at
		 FROM river_walks WHERE deleted_at IS NULL ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list walks: %w", err)
	}
	defer rows.Close()

	var walks []models.RiverWalk
	for rows.Next() {
		var w models.RiverWalk
		if err := rows.Scan(&w.ID, &w.Name, &w.RiverName, &w.WalkDate, &w.Notes, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan walk: %w", err)
		}
		walks = append(walks, w)
	}
	return walks, rows.Err()
}

// UpdateWalk rewrites the mutable fields of a walk.
func (db *DB) UpdateWalk(w *models.RiverWalk) error {
	w.UpdatedAt = time.Now().UTC()
	return db.withWriteLock(func() error {
		res, err := db.conn.Exec(
			`UPDATE river_walks SET name = ?, river_name = ?, walk_date = ?, notes = ?, updated_at = ?
			 WHERE id = ? AND deleted_at IS NULL`,
			w.Name, w.RiverName, w.WalkDate, w.Notes, w.UpdatedAt, w.ID,
		)
		if err != nil {
			return fmt.Errorf("update walk: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("walk %s not found", w.ID)
		}
		return nil
	})
}

// DeleteWalk soft-deletes a walk and its sites.
func (db *DB) DeleteWalk(id string) error {
	return db.withWriteLock(func() error {
		now := time.Now().UTC()
		if _, err := db.conn.Exec(`UPDATE river_walks SET deleted_at = ? WHERE id = ?`, now, id); err != nil {
			return fmt.Errorf("delete walk: %w", err)
		}
		if _, err := db.conn.Exec(`UPDATE sites SET deleted_at = ? WHERE walk_id = ? AND deleted_at IS NULL`, now, id); err != nil {
			return fmt.Errorf("delete walk sites: %w", err)
		}
		return nil
	})
}

// CreateSite inserts a site.
func (db *DB) CreateSite(s *models.Site) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now
	return db.withWriteLock(func() error {
		_, err := db.conn.Exec(
			`INSERT INTO sites (id, walk_id, site_number, site_name, river_width, latitude, longitude, notes, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			s.ID, s.WalkID, s.SiteNumber, s.SiteName, s.RiverWidth, s.Latitude, s.Longitude, s.Notes, s.CreatedAt, s.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert site: %w", err)
		}
		return nil
	})
}

// GetSite returns a site by id, or nil when absent or soft-deleted.
func (db *DB) GetSite(id string) (*models.Site, error) {
	var s models.Site
	err := db.conn.QueryRow(
		`SELECT id, walk_id, site_number, site_name, river_width, latitude, longitude, notes, created_at, updated_at
		 FROM sites WHERE id = ? AND deleted_at IS NULL`, id,
	).Scan(&s.ID, &s.WalkID, &s.SiteNumber, &s.SiteName, &s.RiverWidth, &s.Latitude, &s.Longitude, &s.Notes, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select site: %w", err)
	}
	return &s, nil
}

// ListSites returns a walk's sites in site-number order.
func (db *DB) ListSites(walkID string) ([]models.Site, error) {
	rows, err := db.conn.Query(
		`SELECT id, walk_id, site_number, site_name, river_width, latitude, longitude, notes, created_at, updated_at
		 FROM sites WHERE walk_id = ? AND deleted_at IS NULL ORDER BY site_number ASC`, walkID,
	)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	defer rows.Close()

	var sites []models.Site
	for rows.Next() {
		var s models.Site
		if err := rows.Scan(&s.ID, &s.WalkID, &s.SiteNumber, &s.SiteName, &s.RiverWidth, &s.Latitude, &s.Longitude, &s.Notes, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan site: %w", err)
		}
		sites = append(sites, s)
	}
	return sites, rows.Err()
}

// UpdateSite rewrites the mutable fields of a site.
func (db *DB) UpdateSite(s *models.Site) error {
	s.UpdatedAt = time.Now().UTC()
	return db.withWriteLock(func() error {
		res, err := db.conn.Exec(
			`UPDATE sites SET site_number = ?, site_name = ?, river_width = ?, latitude = ?, longitude = ?, notes = ?, updated_at = ?
			 WHERE id = ? AND deleted_at IS NULL`,
			s.SiteNumber, s.SiteName, s.RiverWidth, s.Latitude, s.Longitude, s.Notes, s.UpdatedAt, s.ID,
		)
		if err != nil {
			return fmt.Errorf("update site: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("site %s not found", s.ID)
		}
		return nil
	})
}

// DeleteSite soft-deletes a site and hard-deletes its readings, which have
// no meaning without the site.
func (db *DB) DeleteSite(id string) error {
	return db.withWriteLock(func() error {
		if _, err := db.conn.Exec(`UPDATE sites SET deleted_at = ? WHERE id = ?`, time.Now().UTC(), id); err != nil {
			return fmt.Errorf("delete site: %w", err)
		}
		for _, table := range []string{"measurement_points", "site_photos", "sediment_samples"} {
			if _, err := db.conn.Exec(`DELETE FROM `+table+` WHERE site_id = ?`, id); err != nil {
				return fmt.Errorf("delete site %s: %w", table, err)
			}
		}
		return nil
	})
}

// CreatePoint inserts a measurement point.
func (db *DB) CreatePoint(p *models.MeasurementPoint) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = time.Now().UTC()
	return db.withWriteLock(func() error {
		_, err := db.conn.Exec(
			`INSERT INTO measurement_points (id, site_id, point_number, distance_from_bank, depth, velocity, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.SiteID, p.PointNumber, p.DistanceFromBank, p.Depth, p.Velocity, p.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert point: %w", err)
		}
		return nil
	})
}

// ListPoints returns a site's measurement points ordered by distance from
// the near bank.
func (db *DB) ListPoints(siteID string) ([]models.MeasurementPoint, error) {
	rows, err := db.conn.Query(
		`SELECT id, site_id, point_number, distance_from_bank, depth, velocity, created_at
		 FROM measurement_points WHERE site_id = ? ORDER BY distance_from_bank ASC`, siteID,
	)
	if err != nil {
		return nil, fmt.Errorf("list points: %w", err)
	}
	defer rows.Close()

	var points []models.MeasurementPoint
	for rows.Next() {
		var p models.MeasurementPoint
		if err := rows.Scan(&p.ID, &p.SiteID, &p.PointNumber, &p.DistanceFromBank, &p.Depth, &p.Velocity, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan point: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// DeletePoint removes a measurement point.
func (db *DB) DeletePoint(id string) error {
	return db.withWriteLock(func() error {
		_, err := db.conn.Exec(`DELETE FROM measurement_points WHERE id = ?`, id)
		return err
	})
}

// CreatePhoto inserts a site photo record.
func (db *DB) CreatePhoto(p *models.SitePhoto) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = time.Now().UTC()
	return db.withWriteLock(func() error {
		_, err := db.conn.Exec(
			`INSERT INTO site_photos (id, site_id, file_name, local_path, caption, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			p.ID, p.SiteID, p.FileName, p.LocalPath, p.Caption, p.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert photo: %w", err)
		}
		return nil
	})
}

// ListPhotos returns a site's photos oldest first.
func (db *DB) ListPhotos(siteID string) ([]models.SitePhoto, error) {
	rows, err := db.conn.Query(
		`SELECT id, site_id, file_name, local_path, caption, created_at
		 FROM site_photos WHERE site_id = ? ORDER BY created_at ASC`, siteID,
	)
	if err != nil {
		return nil, fmt.Errorf("list photos: %w", err)
	}
	defer rows.Close()

	var photos []models.SitePhoto
	for rows.Next() {
		var p models.SitePhoto
		if err := rows.Scan(&p.ID, &p.SiteID, &p.FileName, &p.LocalPath, &p.Caption, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan photo: %w", err)
		}
		photos = append(photos, p)
	}
	return photos, rows.Err()
}

// DeletePhoto removes a photo record.
func (db *DB) DeletePhoto(id string) error {
	return db.withWriteLock(func() error {
		_, err := db.conn.Exec(`DELETE FROM site_photos WHERE id = ?`, id)
		return err
	})
}

// CreateSample inserts a sediment sample.
func (db *DB) CreateSample(s *models.SedimentSample) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.CreatedAt = time.Now().UTC()
	return db.withWriteLock(func() error {
		_, err := db.conn.Exec(
			`INSERT INTO sediment_samples (id, site_id, sample_number, size_mm, roundness_index, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			s.ID, s.SiteID, s.SampleNumber, s.SizeMM, s.RoundnessIndex, s.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert sample: %w", err)
		}
		return nil
	})
}

// ListSamples returns a site's sediment samples in sample-number order.
func (db *DB) ListSamples(siteID string) ([]models.SedimentSample, error) {
	rows, err := db.conn.Query(
		`SELECT id, site_id, sample_number, size_mm, roundness_index, created_at
		 FROM sediment_samples WHERE site_id = ? ORDER BY sample_number ASC`, siteID,
	)
	if err != nil {
		return nil, fmt.Errorf("list samples: %w", err)
	}
	defer rows.Close()

	var samples []models.SedimentSample
	for rows.Next() {
		var s models.SedimentSample
		if err := rows.Scan(&s.ID, &s.SiteID, &s.SampleNumber, &s.SizeMM, &s.RoundnessIndex, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

// DeleteSample removes a sediment sample.
func (db *DB) DeleteSample(id string) error {
	return db.withWriteLock(func() error {
		_, err := db.conn.Exec(`DELETE FROM sediment_samples WHERE id = ?`, id)
		return err
	})
}

// entityTables maps an entity type to its table and the child tables that
// reference it by foreign id column.
var entityTables = map[models.EntityType]struct {
	table    string
	children map[string]string // table -> column referencing this entity
}{
	models.EntityRiverWalk: {
		table:    "river_walks",
		children: map[string]string{"sites": "walk_id"},
	},
	models.EntitySite: {
		table: "sites",
		children: map[string]string{
			"measurement_points": "site_id",
			"site_photos":        "site_id",
			"sediment_samples":   "site_id",
		},
	},
	models.EntityMeasurementPoint: {table: "measurement_points"},
	models.EntitySitePhoto:        {table: "site_photos"},
	models.EntitySedimentSample:   {table: "sediment_samples"},
}

// ReconcileID renames a temporary local entity id to the server-assigned
// id, in the entity's own row and in every child row that references it.
// Called by the sync orchestrator after a queued create succeeds.
func (db *DB) ReconcileID(entityType models.EntityType, tmpID, serverID string) error {
	info, ok := entityTables[entityType]
	if !ok {
		return fmt.Errorf("reconcile: unknown entity type %q", entityType)
	}
	return db.withWriteLock(func() error {
		if _, err := db.conn.Exec(
			fmt.Sprintf("UPDATE %s SET id = ? WHERE id = ?", info.table), serverID, tmpID,
		); err != nil {
			return fmt.Errorf("reconcile %s id: %w", info.table, err)
		}
		for table, col := range info.children {
			if _, err := db.conn.Exec(
				fmt.Sprintf("UPDATE %s SET %s = ? WHERE %s = ?", table, col, col), serverID, tmpID,
			); err != nil {
				return fmt.Errorf("reconcile %s.%s: %w", table, col, err)
			}
		}
		return nil
	})
}
