package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/studyplan/internal/flagx"
	"github.com/dmitrijs2005/studyplan/internal/timex"
)

// jsonConfig is a DTO used exclusively for JSON unmarshalling. It relies on
// timex.Duration so JSON can specify intervals either as strings like "30s"
// or as integer nanoseconds.
type jsonConfig struct {
	VendorBaseURL   string         `json:"vendor_base_url"`
	DatabasePath    string         `json:"database_path"`
	SyncCooldown    timex.Duration `json:"sync_cooldown"`
	DeletedGraceTTL timex.Duration `json:"deleted_grace_ttl"`
	SyncSchedule    string         `json:"sync_schedule"`
	HorizonDays     int            `json:"horizon_days"`
	Timezone        string         `json:"timezone"`
}

// parseJSON overlays cfg with values loaded from the JSON file given via the
// -c/-config flags. Absent file means nothing to do; unreadable or invalid
// JSON panics (caller may recover).
func parseJSON(cfg *Config) {
	path := flagx.JSONConfigFlags()
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	var jc jsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.VendorBaseURL != "" {
		cfg.VendorBaseURL = jc.VendorBaseURL
	}
	if jc.DatabasePath != "" {
		cfg.DatabasePath = jc.DatabasePath
	}
	if jc.SyncCooldown.Duration > 0 {
		cfg.SyncCooldown = jc.SyncCooldown.Duration
	}
	if jc.DeletedGraceTTL.Duration > 0 {
		cfg.DeletedGraceTTL = jc.DeletedGraceTTL.Duration
	}
	if jc.SyncSchedule != "" {
		cfg.SyncSchedule = jc.SyncSchedule
	}
	if jc.HorizonDays > 0 {
		cfg.HorizonDays = jc.HorizonDays
	}
	if jc.Timezone != "" {
		cfg.Timezone = jc.Timezone
	}
}
