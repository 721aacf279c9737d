// Package display flattens persisted records into the row shapes the CLI,
// TUI and GUI front ends consume. Formatting is a pure read-side transform:
// a malformed stored record yields no row (logged as a warning), never an
// error, so callers skip absent rows and keep going.
package display

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"meshbase/pkg/meshrecord"
)

// Formatter turns raw stored record JSON into display rows. When a node name
// directory is attached, message endpoints are resolved to display names at
// read time; stored records themselves are never rewritten on rename.
type Formatter struct {
	log   zerolog.Logger
	names map[string]string
}

// NewFormatter creates a formatter. names may be nil; attach one later with
// WithNames.
func NewFormatter(log zerolog.Logger) *Formatter {
	return &Formatter{log: log.With().Str("component", "display").Logger()}
}

// WithNames returns a copy of the formatter resolving node ids through the
// given directory.
func (f *Formatter) WithNames(names map[string]string) *Formatter {
	clone := *f
	clone.names = names
	return &clone
}

// resolve maps a node id to its display name, falling back to the id itself.
func (f *Formatter) resolve(nodeID string) string {
	if name, ok := f.names[nodeID]; ok && name != "" {
		return name
	}
	return nodeID
}

// MessageRow is the flattened display shape of a text message.
type MessageRow struct {
	Timestamp string
	From      string
	To        string
	Text      string
}

func (r MessageRow) String() string {
	return fmt.Sprintf("[%s] %s -> %s: %s", r.Timestamp, r.From, r.To, r.Text)
}

// Message formats one stored message record. Returns nil for malformed input.
func (f *Formatter) Message(raw string) *MessageRow {
	var rec meshrecord.TextMessage
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		f.log.Warn().Err(err).Msg("skipping malformed message record")
		return nil
	}
	if rec.Timestamp == "" || rec.FromID == "" {
		f.log.Warn().Msg("skipping message record with missing envelope fields")
		return nil
	}
	return &MessageRow{
		Timestamp: rec.Timestamp,
		From:      f.resolve(rec.FromID),
		To:        f.resolve(rec.ToID),
		Text:      rec.Text,
	}
}

// NodeRow is the flattened display shape of a node announcement.
type NodeRow struct {
	Timestamp string
	ID        string
	Name      string
}

func (r NodeRow) String() string {
	return fmt.Sprintf("[%s] Node %s: %s", r.Timestamp, r.ID, r.Name)
}

// Node formats one stored node record. Returns nil for malformed input.
func (f *Formatter) Node(raw string) *NodeRow {
	var rec meshrecord.NodeInfo
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		f.log.Warn().Err(err).Msg("skipping malformed node record")
		return nil
	}
	if rec.Timestamp == "" || rec.FromID == "" {
		f.log.Warn().Msg("skipping node record with missing envelope fields")
		return nil
	}
	return &NodeRow{
		Timestamp: rec.Timestamp,
		ID:        rec.FromID,
		Name:      rec.User.LongName,
	}
}

// DeviceTelemetryRow is the flattened display shape of device telemetry.
type DeviceTelemetryRow struct {
	Timestamp   string
	FromID      string
	Battery     string
	Voltage     string
	ChannelUtil string
	AirUtil     string
}

func (r DeviceTelemetryRow) String() string {
	return fmt.Sprintf("[%s] Device %s: battery=%s%% voltage=%sV chan=%s air=%s",
		r.Timestamp, r.FromID, r.Battery, r.Voltage, r.ChannelUtil, r.AirUtil)
}

// DeviceTelemetry formats one stored device telemetry record.
func (f *Formatter) DeviceTelemetry(raw string) *DeviceTelemetryRow {
	var rec meshrecord.DeviceTelemetry
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		f.log.Warn().Err(err).Msg("skipping malformed device telemetry record")
		return nil
	}
	if rec.Timestamp == "" || rec.FromID == "" {
		f.log.Warn().Msg("skipping device telemetry record with missing envelope fields")
		return nil
	}

	chanUtil := "-"
	if rec.DeviceMetrics.ChannelUtilization != nil {
		chanUtil = fmt.Sprintf("%.2f", *rec.DeviceMetrics.ChannelUtilization)
	}
	return &DeviceTelemetryRow{
		Timestamp:   rec.Timestamp,
		FromID:      rec.FromID,
		Battery:     fmt.Sprintf("%d", rec.DeviceMetrics.BatteryLevel),
		Voltage:     fmt.Sprintf("%.2f", rec.DeviceMetrics.Voltage),
		ChannelUtil: chanUtil,
		AirUtil:     fmt.Sprintf("%.2f", rec.DeviceMetrics.AirUtilTx),
	}
}

// NetworkTelemetryRow is the flattened display shape of network telemetry.
type NetworkTelemetryRow struct {
	Timestamp    string
	FromID       string
	OnlineNodes  string
	TotalNodes   string
	PacketsTx    string
	PacketsRx    string
	PacketsRxBad string
}

func (r NetworkTelemetryRow) String() string {
	return fmt.Sprintf("[%s] Network %s: online=%s/%s tx=%s rx=%s bad=%s",
		r.Timestamp, r.FromID, r.OnlineNodes, r.TotalNodes, r.PacketsTx, r.PacketsRx, r.PacketsRxBad)
}

// NetworkTelemetry formats one stored network telemetry record.
func (f *Formatter) NetworkTelemetry(raw string) *NetworkTelemetryRow {
	var rec meshrecord.NetworkTelemetry
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		f.log.Warn().Err(err).Msg("skipping malformed network telemetry record")
		return nil
	}
	if rec.Timestamp == "" || rec.FromID == "" {
		f.log.Warn().Msg("skipping network telemetry record with missing envelope fields")
		return nil
	}
	return &NetworkTelemetryRow{
		Timestamp:    rec.Timestamp,
		FromID:       rec.FromID,
		OnlineNodes:  fmt.Sprintf("%d", rec.LocalStats.NumOnlineNodes),
		TotalNodes:   fmt.Sprintf("%d", rec.LocalStats.NumTotalNodes),
		PacketsTx:    fmt.Sprintf("%d", rec.LocalStats.NumPacketsTx),
		PacketsRx:    fmt.Sprintf("%d", rec.LocalStats.NumPacketsRx),
		PacketsRxBad: fmt.Sprintf("%d", rec.LocalStats.NumPacketsRxBad),
	}
}

// EnvironmentTelemetryRow is the flattened display shape of environment
// telemetry.
type EnvironmentTelemetryRow struct {
	Timestamp   string
	FromID      string
	Temperature string
	Humidity    string
	Pressure    string
}

func (r EnvironmentTelemetryRow) String() string {
	return fmt.Sprintf("[%s] Environment %s: temp=%s humidity=%s pressure=%s",
		r.Timestamp, r.FromID, r.Temperature, r.Humidity, r.Pressure)
}

// EnvironmentTelemetry formats one stored environment telemetry record.
func (f *Formatter) EnvironmentTelemetry(raw string) *EnvironmentTelemetryRow {
	var rec meshrecord.EnvironmentTelemetry
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		f.log.Warn().Err(err).Msg("skipping malformed environment telemetry record")
		return nil
	}
	if rec.Timestamp == "" || rec.FromID == "" {
		f.log.Warn().Msg("skipping environment telemetry record with missing envelope fields")
		return nil
	}
	return &EnvironmentTelemetryRow{
		Timestamp:   rec.Timestamp,
		FromID:      rec.FromID,
		Temperature: fmt.Sprintf("%.1f°C", rec.EnvironmentMetrics.Temperature),
		Humidity:    fmt.Sprintf("%.1f%%", rec.EnvironmentMetrics.RelativeHumidity),
		Pressure:    fmt.Sprintf("%.1fhPa", rec.EnvironmentMetrics.BarometricPressure),
	}
}

// Line formats one stored record of the given category into its display line.
// Returns "" (skip) for malformed input.
func (f *Formatter) Line(cat meshrecord.Category, raw string) string {
	switch cat {
	case meshrecord.CategoryMessages:
		if row := f.Message(raw); row != nil {
			return row.String()
		}
	case meshrecord.CategoryNodes:
		if row := f.Node(raw); row != nil {
			return row.String()
		}
	case meshrecord.CategoryDeviceTelemetry:
		if row := f.DeviceTelemetry(raw); row != nil {
			return row.String()
		}
	case meshrecord.CategoryNetworkTelemetry:
		if row := f.NetworkTelemetry(raw); row != nil {
			return row.String()
		}
	case meshrecord.CategoryEnvironmentTelemetry:
		if row := f.EnvironmentTelemetry(raw); row != nil {
			return row.String()
		}
	}
	return ""
}
