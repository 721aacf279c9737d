// Package timespec parses the time specifications accepted by maintenance
// commands.
package timespec

import (
	"fmt"
	"time"
)

// Parse parses a cutoff specification into an absolute time.
// Supports two formats:
//   - Go duration format: "72h", "30m", "1h30m" (relative to now, in the past)
//   - RFC3339 timestamps: "2026-08-01T00:00:00Z"
//
// For example, "72h" means "72 hours ago".
func Parse(spec string) (time.Time, error) {
	if spec == "" {
		return time.Time{}, fmt.Errorf("empty time specification")
	}

	// Try parsing as RFC3339 first
	if t, err := time.Parse(time.RFC3339, spec); err == nil {
		return t, nil
	}

	// Try parsing as Go duration
	if d, err := time.ParseDuration(spec); err == nil {
		return time.Now().Add(-d), nil
	}

	return time.Time{}, fmt.Errorf("invalid time specification: %s (use duration like '72h' or RFC3339 like '2026-08-01T00:00:00Z')", spec)
}
