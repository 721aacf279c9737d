package meshrecord

import (
	"fmt"

	"github.com/goccy/go-json"
)

// requiredStoredFields lists the top-level fields every persisted record of a
// category must carry. Corruption sweeps check these against the raw stored
// JSON without rebuilding the full typed record.
var requiredStoredFields = map[Category][]string{
	CategoryMessages:             {"timestamp", "from_id", "to_id", "text"},
	CategoryNodes:                {"timestamp", "from_id", "user"},
	CategoryDeviceTelemetry:      {"timestamp", "from_id", "device_metrics"},
	CategoryNetworkTelemetry:     {"timestamp", "from_id", "local_stats"},
	CategoryEnvironmentTelemetry: {"timestamp", "from_id", "environment_metrics"},
}

// ValidateStored checks a raw persisted record against the required top-level
// fields of its category. It reports the first missing or null field, or a
// parse error for entries that are not JSON objects.
func ValidateStored(cat Category, raw []byte) error {
	required, ok := requiredStoredFields[cat]
	if !ok {
		return fmt.Errorf("unknown category: %q", cat)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return fmt.Errorf("unparseable record: %w", err)
	}

	for _, field := range required {
		v, ok := fields[field]
		if !ok || string(v) == "null" {
			return fmt.Errorf("missing required field: %s", field)
		}
	}
	return nil
}

// StoredTimestamp extracts and parses the timestamp of a raw persisted record.
func StoredTimestamp(raw []byte) (string, error) {
	var fields struct {
		Timestamp string `json:"timestamp"`
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return "", fmt.Errorf("unparseable record: %w", err)
	}
	if fields.Timestamp == "" {
		return "", fmt.Errorf("missing required field: timestamp")
	}
	return fields.Timestamp, nil
}
