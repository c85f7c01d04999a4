package db

// SchemaVersion is the current database schema version
const SchemaVersion = 3

const schema = `
-- River walks table: one row per fieldwork outing
CREATE TABLE IF NOT EXISTS river_walks (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    river_name TEXT DEFAULT '',
    walk_date TEXT DEFAULT '',
    notes TEXT DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at DATETIME
);

-- Sites table: measurement sites along a walk
CREATE TABLE IF NOT EXISTS sites (
    id TEXT PRIMARY KEY,
    walk_id TEXT NOT NULL,
    site_number INTEGER NOT NULL,
    site_name TEXT DEFAULT '',
    river_width REAL NOT NULL DEFAULT 0,
    latitude REAL,
    longitude REAL,
    notes TEXT DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at DATETIME
);

-- Measurement points: depth/velocity readings across a site cross-section
CREATE TABLE IF NOT EXISTS measurement_points (
    id TEXT PRIMARY KEY,
    site_id TEXT NOT NULL,
    point_number INTEGER NOT NULL,
    distance_from_bank REAL NOT NULL,
    depth REAL NOT NULL,
    velocity REAL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Site photos: binary lives on the server, local_path until uploaded
CREATE TABLE IF NOT EXISTS site_photos (
    id TEXT PRIMARY KEY,
    site_id TEXT NOT NULL,
    file_name TEXT NOT NULL,
    local_path TEXT DEFAULT '',
    caption TEXT DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Sediment samples
CREATE TABLE IF NOT EXISTS sediment_samples (
    id TEXT PRIMARY KEY,
    site_id TEXT NOT NULL,
    sample_number INTEGER NOT NULL,
    size_mm REAL NOT NULL,
    roundness_index INTEGER NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Request cache: last-known-good responses keyed by method + canonical URL
CREATE TABLE IF NOT EXISTS cache_entries (
    key TEXT PRIMARY KEY,
    partition TEXT NOT NULL,
    status INTEGER NOT NULL,
    content_type TEXT DEFAULT '',
    body BLOB,
    stored_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Pending operations: writes awaiting replay, drained in seq order
CREATE TABLE IF NOT EXISTS pending_operations (
    id TEXT PRIMARY KEY,
    seq INTEGER NOT NULL,
    entity_type TEXT NOT NULL,
    kind TEXT NOT NULL,
    method TEXT NOT NULL,
    url TEXT NOT NULL,
    payload TEXT DEFAULT '',
    local_entity_id TEXT DEFAULT '',
    depends_on TEXT DEFAULT '',
    idempotency_key TEXT DEFAULT '',
    status TEXT NOT NULL DEFAULT 'pending',
    attempts INTEGER NOT NULL DEFAULT 0,
    last_error TEXT DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_info (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

-- Indexes
CREATE INDEX IF NOT EXISTS idx_sites_walk ON sites(walk_id);
CREATE INDEX IF NOT EXISTS idx_points_site ON measurement_points(site_id);
CREATE INDEX IF NOT EXISTS idx_photos_site ON site_photos(site_id);
CREATE INDEX IF NOT EXISTS idx_samples_site ON sediment_samples(site_id);
CREATE INDEX IF NOT EXISTS idx_cache_partition ON cache_entries(partition);
CREATE INDEX IF NOT EXISTS idx_pending_status ON pending_operations(status, seq);
`

// Migration represents a single schema migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations lists schema changes in order. Versions at or below the
// database's recorded version are skipped.
var Migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		SQL:         schema,
	},
	{
		Version:     2,
		Description: "add idempotency_key to pending_operations",
		SQL:         `ALTER TABLE pending_operations ADD COLUMN idempotency_key TEXT DEFAULT ''`,
	},
	{
		Version:     3,
		Description: "add soft-delete column to sites",
		SQL:         `ALTER TABLE sites ADD COLUMN deleted_at DATETIME`,
	},
}
