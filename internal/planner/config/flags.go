package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/studyplan/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags:
//
//	-u string   base URL of the calendar vendor API
//	-d string   path to the SQLite database
//	-i int      sync cooldown in seconds
//	-s string   cron schedule for timer-triggered passes
//	-z string   IANA timezone for entering and displaying times
//
// The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-u", "-d", "-i", "-s", "-z"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.VendorBaseURL, "u", cfg.VendorBaseURL, "calendar vendor API base URL")
	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "path to the SQLite database")
	cooldown := fs.Int("i", int(cfg.SyncCooldown.Seconds()), "sync cooldown (in seconds)")
	fs.StringVar(&cfg.SyncSchedule, "s", cfg.SyncSchedule, "cron schedule for sync passes")
	fs.StringVar(&cfg.Timezone, "z", cfg.Timezone, "IANA timezone for user-facing times")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.SyncCooldown = time.Duration(*cooldown) * time.Second
}
