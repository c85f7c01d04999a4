// Package config reads and writes the rw configuration and auth state under
// the user config directory. Every setting can be overridden per-process
// with an RW_* environment variable.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// AutoSyncConfig holds automatic queue drain settings.
type AutoSyncConfig struct {
	Enabled  *bool  `json:"enabled,omitempty"`  // nil = default true
	Debounce string `json:"debounce,omitempty"` // duration string, default "3s"
}

// SyncConfig holds sync and connectivity settings.
type SyncConfig struct {
	MaxAttempts   *int           `json:"max_attempts,omitempty"`   // nil = default 3
	ProbeInterval string         `json:"probe_interval,omitempty"` // duration string, default "30s"
	Auto          AutoSyncConfig `json:"auto"`
}

// Config is the global rw config stored at ~/.config/rw/config.json.
type Config struct {
	APIURL string     `json:"api_url,omitempty"`
	AppURL string     `json:"app_url,omitempty"`
	Sync   SyncConfig `json:"sync"`
}

// AuthCredentials stores authentication state at ~/.config/rw/auth.json.
type AuthCredentials struct {
	APIKey    string `json:"api_key"`
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	ServerURL string `json:"server_url"`
	DeviceID  string `json:"device_id"`
	ExpiresAt string `json:"expires_at"`
}

const (
	defaultAPIURL = "http://localhost:8080"
	defaultAppURL = "http://localhost:3000"
)

// ConfigDir returns the rw config directory, creating it if necessary.
// RW_CONFIG_DIR overrides the default ~/.config/rw.
func ConfigDir() (string, error) {
	if dir := os.Getenv("RW_CONFIG_DIR"); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("create config dir: %w", err)
		}
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	dir := filepath.Join(home, ".config", "rw")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	return dir, nil
}

// Load reads the global config from config.json. A missing file yields the
// zero config, not an error.
func Load() (*Config, error) {
	dir, err := ConfigDir()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, "config.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the global config using an atomic temp-file-plus-rename so a
// crash mid-write never leaves a torn config.json.
func Save(cfg *Config) error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(filepath.Join(dir, "config.json"), data, 0644)
}

// LoadAuth reads auth credentials from auth.json, or nil when logged out.
func LoadAuth() (*AuthCredentials, error) {
	dir, err := ConfigDir()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, "auth.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var creds AuthCredentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, err
	}
	return &creds, nil
}

// SaveAuth writes auth credentials to auth.json (0600 perms).
func SaveAuth(creds *AuthCredentials) error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(filepath.Join(dir, "auth.json"), data, 0600)
}

// ClearAuth removes the auth.json file.
func ClearAuth() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(dir, "auth.json"))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func writeAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

// GetAPIURL returns the backend API base URL.
// Priority: RW_API_URL env > config.json > default.
func GetAPIURL() string {
	if v := os.Getenv("RW_API_URL"); v != "" {
		return v
	}
	cfg, err := Load()
	if err == nil && cfg.APIURL != "" {
		return cfg.APIURL
	}
	return defaultAPIURL
}

// GetAppURL returns the web app base URL the offline shell is cached from.
// Priority: RW_APP_URL env > config.json > default.
func GetAppURL() string {
	if v := os.Getenv("RW_APP_URL"); v != "" {
		return v
	}
	cfg, err := Load()
	if err == nil && cfg.AppURL != "" {
		return cfg.AppURL
	}
	return defaultAppURL
}

// GetAPIKey returns the API key.
// Priority: RW_AUTH_KEY env > auth.json.
func GetAPIKey() string {
	if v := os.Getenv("RW_AUTH_KEY"); v != "" {
		return v
	}
	creds, err := LoadAuth()
	if err == nil && creds != nil {
		return creds.APIKey
	}
	return ""
}

// IsAuthenticated returns true if an API key is available.
func IsAuthenticated() bool {
	return GetAPIKey() != ""
}

// GetDeviceID returns the device ID from auth.json, generating one if
// needed.
func GetDeviceID() (string, error) {
	creds, err := LoadAuth()
	if err != nil {
		return "", err
	}
	if creds != nil && creds.DeviceID != "" {
		return creds.DeviceID, nil
	}
	return GenerateDeviceID()
}

// GenerateDeviceID creates a new random device ID (16 bytes hex).
func GenerateDeviceID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// parseBoolEnv returns nil if env not set, pointer to bool if set.
func parseBoolEnv(envKey string) *bool {
	v := strings.ToLower(os.Getenv(envKey))
	if v == "1" || v == "true" {
		b := true
		return &b
	}
	if v == "0" || v == "false" {
		b := false
		return &b
	}
	return nil
}

// GetAutoSyncEnabled returns whether reconnects and mutations trigger an
// automatic queue drain.
// Priority: RW_AUTO_SYNC env > config.json sync.auto.enabled > true
func GetAutoSyncEnabled() bool {
	if v := parseBoolEnv("RW_AUTO_SYNC"); v != nil {
		return *v
	}
	cfg, err := Load()
	if err == nil && cfg.Sync.Auto.Enabled != nil {
		return *cfg.Sync.Auto.Enabled
	}
	return true
}

// GetSyncDebounce returns the connectivity debounce window.
// Priority: RW_SYNC_DEBOUNCE env > config.json sync.auto.debounce > 3s
func GetSyncDebounce() time.Duration {
	if v := os.Getenv("RW_SYNC_DEBOUNCE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	cfg, err := Load()
	if err == nil && cfg.Sync.Auto.Debounce != "" {
		if d, err := time.ParseDuration(cfg.Sync.Auto.Debounce); err == nil {
			return d
		}
	}
	return 3 * time.Second
}

// GetProbeInterval returns how often the connectivity monitor probes the
// backend health endpoint.
// Priority: RW_PROBE_INTERVAL env > config.json sync.probe_interval > 30s
func GetProbeInterval() time.Duration {
	if v := os.Getenv("RW_PROBE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	cfg, err := Load()
	if err == nil && cfg.Sync.ProbeInterval != "" {
		if d, err := time.ParseDuration(cfg.Sync.ProbeInterval); err == nil {
			return d
		}
	}
	return 30 * time.Second
}

// GetMaxAttempts returns the retry budget for queued operations.
// Priority: RW_SYNC_MAX_ATTEMPTS env > config.json sync.max_attempts > 3
func GetMaxAttempts() int {
	if v := os.Getenv("RW_SYNC_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	cfg, err := Load()
	if err == nil && cfg.Sync.MaxAttempts != nil && *cfg.Sync.MaxAttempts > 0 {
		return *cfg.Sync.MaxAttempts
	}
	return 3
}
