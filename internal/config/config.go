package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// Config holds the configuration for the food logging service.
// Environment variables are automatically parsed from the FOODBUDDY_ prefix.
type Config struct {
	// DataDir is the root of all local state: the database, the image
	// files, and the stored API key. The paths below are derived from it
	// unless overridden individually.
	DataDir    string `envconfig:"DATA_DIR" default:"./data"`
	SQLitePath string `envconfig:"SQLITE_PATH" default:""`
	ImagesDir  string `envconfig:"IMAGES_DIR" default:""`
	APIKeyPath string `envconfig:"API_KEY_PATH" default:""`

	// Cloud photo sync. Disabled unless a bucket is configured; the sync
	// engine then only maintains local state.
	CloudSyncEnabled bool   `envconfig:"CLOUD_SYNC_ENABLED" default:"false"`
	S3Bucket         string `envconfig:"S3_BUCKET" default:""`
	S3Region         string `envconfig:"S3_REGION" default:""`
	S3Prefix         string `envconfig:"S3_PREFIX" default:"photos"`

	// Background scheduling
	SyncIntervalSeconds int `envconfig:"SYNC_INTERVAL_SECONDS" default:"300"`

	// AI description provider
	MistralModel   string `envconfig:"MISTRAL_MODEL" default:""`
	MistralBaseURL string `envconfig:"MISTRAL_BASE_URL" default:""`

	// Timezone used for calendar-day bucketing of meals. "Local" means the
	// process's local zone.
	Timezone string `envconfig:"TIMEZONE" default:"Local"`
}

// ResolveDefaults derives the per-concern paths from DataDir and validates
// the cloud sync settings.
func (c *Config) ResolveDefaults() error {
	if c.DataDir == "" {
		return fmt.Errorf("DATA_DIR must not be empty")
	}
	if c.SQLitePath == "" {
		c.SQLitePath = filepath.Join(c.DataDir, "foodbuddy.db")
	}
	if c.ImagesDir == "" {
		c.ImagesDir = filepath.Join(c.DataDir, "images")
	}
	if c.APIKeyPath == "" {
		c.APIKeyPath = filepath.Join(c.DataDir, "mistral_api_key")
	}

	if c.CloudSyncEnabled && c.S3Bucket == "" {
		return fmt.Errorf("FOODBUDDY_S3_BUCKET is required when cloud sync is enabled")
	}
	if c.SyncIntervalSeconds < 1 {
		return fmt.Errorf("unsupported SYNC_INTERVAL_SECONDS: %d", c.SyncIntervalSeconds)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("unsupported TIMEZONE: %s", c.Timezone)
	}
	return nil
}

// Location returns the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// SyncInterval returns the background cycle period.
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.SyncIntervalSeconds) * time.Second
}

// New creates a new Config by parsing environment variables.
// Environment variables should be prefixed with FOODBUDDY_
// Example: FOODBUDDY_DATA_DIR, FOODBUDDY_S3_BUCKET
func New() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("FOODBUDDY", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}

	log.Info().
		Str("data_dir", cfg.DataDir).
		Str("sqlite_path", cfg.SQLitePath).
		Bool("cloud_sync", cfg.CloudSyncEnabled).
		Str("s3_bucket", cfg.S3Bucket).
		Int("sync_interval_seconds", cfg.SyncIntervalSeconds).
		Str("timezone", cfg.Timezone).
		Msg("Configuration loaded")

	return &cfg, nil
}

// NewForTesting returns a Config rooted at dir with cloud sync disabled.
func NewForTesting(dir string) *Config {
	cfg := &Config{
		DataDir:             dir,
		SyncIntervalSeconds: 1,
		Timezone:            "UTC",
	}
	if err := cfg.ResolveDefaults(); err != nil {
		panic(err)
	}
	return cfg
}
