// Package meshstore provides the append-only persistence gateway for mesh
// records, backed by Redis lists, one list per record category with the
// newest entry first. All keys and Pub/Sub channels are namespaced by station instance name
// so several base stations can share a single Redis server.
//
// Key pattern:     meshbase:{instance}:{category path}
// Channel pattern: meshbase:{instance}:events:{category}
package meshstore

import (
	"fmt"

	"meshbase/pkg/meshrecord"
)

// categoryPaths maps a record category to its key path segment. Telemetry
// categories share a "telemetry:" prefix for easy key scanning.
var categoryPaths = map[meshrecord.Category]string{
	meshrecord.CategoryMessages:             "messages",
	meshrecord.CategoryNodes:                "nodes",
	meshrecord.CategoryDeviceTelemetry:      "telemetry:device",
	meshrecord.CategoryNetworkTelemetry:     "telemetry:network",
	meshrecord.CategoryEnvironmentTelemetry: "telemetry:environment",
}

// ListKey returns the Redis key of a category's append-only list.
// Pattern: meshbase:{instance}:{category path}
func ListKey(instance string, cat meshrecord.Category) string {
	return fmt.Sprintf("meshbase:%s:%s", instance, categoryPaths[cat])
}

// NodeNamesKey returns the Redis key of the node directory hash
// (node id -> display name). The directory is the read-time join source for
// resolving node names; historical records are never rewritten.
// Pattern: meshbase:{instance}:directory:names
func NodeNamesKey(instance string) string {
	return fmt.Sprintf("meshbase:%s:directory:names", instance)
}

// NodeSeenKey returns the Redis key of the node last-seen hash
// (node id -> timestamp of the announcement that set the current name).
// Pattern: meshbase:{instance}:directory:seen
func NodeSeenKey(instance string) string {
	return fmt.Sprintf("meshbase:%s:directory:seen", instance)
}

// EventsChannel returns the Pub/Sub channel carrying freshly appended records
// of a category, published as their serialized JSON.
// Pattern: meshbase:{instance}:events:{category}
func EventsChannel(instance string, cat meshrecord.Category) string {
	return fmt.Sprintf("meshbase:%s:events:%s", instance, cat)
}
