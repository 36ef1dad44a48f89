package config

import (
	"fmt"
	"strings"
	"time"
)

// Validate checks cross-field constraints that strict decoding cannot catch.
// It is used both at startup and as the hot-reload validator hook.
func (c *Config) Validate() error {
	for _, f := range []struct{ path, raw string }{
		{"server.read_timeout", c.Server.ReadTimeout},
		{"server.write_timeout", c.Server.WriteTimeout},
		{"transcoder.job_timeout", c.Transcoder.JobTimeout},
		{"dispatcher.send_timeout", c.Dispatcher.SendTimeout},
		{"storage.busy_timeout", c.Storage.BusyTimeout},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}

	if c.Media.MaxUploadBytes < 0 {
		return fmt.Errorf("media.max_upload_bytes: must be >= 0")
	}
	if c.Media.SegmentSeconds < 0 {
		return fmt.Errorf("media.segment_seconds: must be >= 0")
	}

	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "memory", "sqlite", "sqlite3":
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
	}

	if tz := strings.TrimSpace(c.Dispatcher.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("dispatcher.timezone: %w", err)
		}
	}
	return nil
}
