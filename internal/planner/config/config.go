// Package config loads runtime settings for the planner: defaults first,
// then a JSON file (if given), then command-line flags. Later sources take
// precedence.
package config

import "time"

// Config holds runtime settings for the studyplan CLI.
type Config struct {
	// VendorBaseURL is the external calendar service's API root.
	VendorBaseURL string

	// DatabasePath is the SQLite snapshot file.
	DatabasePath string

	// SyncCooldown is the debounce window between reconciliation passes.
	SyncCooldown time.Duration

	// DeletedGraceTTL bounds how long a locally deleted session suppresses
	// re-import of its remote event.
	DeletedGraceTTL time.Duration

	// SyncSchedule is a cron expression for timer-triggered passes.
	SyncSchedule string

	// HorizonDays is the default expansion window for list and export.
	HorizonDays int

	// Timezone is the IANA zone user-facing times are entered and shown in.
	Timezone string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.VendorBaseURL = "https://calendar.example.com/api/v1"
	c.DatabasePath = "studyplan.db"
	c.SyncCooldown = 30 * time.Second
	c.DeletedGraceTTL = 10 * time.Minute
	c.SyncSchedule = "@every 5m"
	c.HorizonDays = 14
	c.Timezone = "Local"
}

// Load constructs a Config, applies defaults, then overlays values from JSON
// (if present) and command-line flags (if present).
func Load() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJSON(cfg)
	parseFlags(cfg)
	return cfg
}
