package models

import (
	"time"
)

// EntityType identifies the kind of record a queued write refers to.
type EntityType string

const (
	EntityRiverWalk        EntityType = "river_walk"
	EntitySite             EntityType = "site"
	EntityMeasurementPoint EntityType = "measurement_point"
	EntitySitePhoto        EntityType = "site_photo"
	EntitySedimentSample   EntityType = "sediment_sample"
)

// Valid reports whether the entity type is one the sync layer knows about.
// The set is open on the server side; locally we only queue types we can
// mirror into the local database.
func (e EntityType) Valid() bool {
	switch e {
	case EntityRiverWalk, EntitySite, EntityMeasurementPoint, EntitySitePhoto, EntitySedimentSample:
		return true
	}
	return false
}

// RiverWalk represents one fieldwork outing along a river.
type RiverWalk struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	RiverName string     `json:"river_name,omitempty"`
	WalkDate  string     `json:"walk_date,omitempty"` // YYYY-MM-DD
	Notes     string     `json:"notes,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Site represents a measurement site along a river walk.
type Site struct {
	ID         string     `json:"id"`
	WalkID     string     `json:"walk_id"`
	SiteNumber int        `json:"site_number"`
	SiteName   string     `json:"site_name,omitempty"`
	RiverWidth float64    `json:"river_width"` // metres, bank to bank
	Latitude   *float64   `json:"latitude,omitempty"`
	Longitude  *float64   `json:"longitude,omitempty"`
	Notes      string     `json:"notes,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
}

// MeasurementPoint is a single depth/velocity reading across a site's
// cross-section, ordered by distance from the near bank.
type MeasurementPoint struct {
	ID               string    `json:"id"`
	SiteID           string    `json:"site_id"`
	PointNumber      int       `json:"point_number"`
	DistanceFromBank float64   `json:"distance_from_bank"` // metres
	Depth            float64   `json:"depth"`              // metres
	Velocity         *float64  `json:"velocity,omitempty"` // m/s, optional float reading
	CreatedAt        time.Time `json:"created_at"`
}

// SitePhoto is a photo attached to a site. The binary lives in object
// storage on the server; locally we keep the file path until it uploads.
type SitePhoto struct {
	ID        string    `json:"id"`
	SiteID    string    `json:"site_id"`
	FileName  string    `json:"file_name"`
	LocalPath string    `json:"local_path,omitempty"`
	Caption   string    `json:"caption,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SedimentSample records a single sediment measurement at a site.
// Roundness uses the Powers index (1 very angular .. 6 well rounded).
type SedimentSample struct {
	ID             string    `json:"id"`
	SiteID         string    `json:"site_id"`
	SampleNumber   int       `json:"sample_number"`
	SizeMM         float64   `json:"size_mm"`
	RoundnessIndex int       `json:"roundness_index"`
	CreatedAt      time.Time `json:"created_at"`
}
