// Package meshrecord defines the typed record schema for packets received from
// a Meshtastic mesh, and the normalization path from the protocol library's raw
// decoded packet shape into that schema. Records are immutable once built: the
// normalizer constructs them, the validator checks them, and the store appends
// them. Nothing rewrites a record afterwards.
package meshrecord

import (
	"fmt"
	"time"
)

// RecordType is the discriminator tag carried in every stored record.
type RecordType string

const (
	TypeNodeInfo             RecordType = "nodeinfo"
	TypeTextMessage          RecordType = "text"
	TypeDeviceTelemetry      RecordType = "device_telemetry"
	TypeNetworkTelemetry     RecordType = "network_telemetry"
	TypeEnvironmentTelemetry RecordType = "environment_telemetry"
)

// Validate checks if the RecordType is a valid enum value.
func (rt RecordType) Validate() error {
	switch rt {
	case TypeNodeInfo, TypeTextMessage, TypeDeviceTelemetry,
		TypeNetworkTelemetry, TypeEnvironmentTelemetry:
		return nil
	default:
		return fmt.Errorf("unknown record type: %q", rt)
	}
}

// Category names the append-only list a record is persisted to.
// Each record type maps to exactly one category.
type Category string

const (
	CategoryMessages             Category = "messages"
	CategoryNodes                Category = "nodes"
	CategoryDeviceTelemetry      Category = "device_telemetry"
	CategoryNetworkTelemetry     Category = "network_telemetry"
	CategoryEnvironmentTelemetry Category = "environment_telemetry"
)

// AllCategories lists every category, in a fixed order suitable for
// maintenance sweeps.
var AllCategories = []Category{
	CategoryMessages,
	CategoryNodes,
	CategoryDeviceTelemetry,
	CategoryNetworkTelemetry,
	CategoryEnvironmentTelemetry,
}

// Validate checks if the Category is a valid enum value.
func (c Category) Validate() error {
	switch c {
	case CategoryMessages, CategoryNodes, CategoryDeviceTelemetry,
		CategoryNetworkTelemetry, CategoryEnvironmentTelemetry:
		return nil
	default:
		return fmt.Errorf("unknown category: %q", c)
	}
}

// Record is the closed set of typed packet records. Exactly five types
// implement it: NodeInfo, TextMessage, DeviceTelemetry, NetworkTelemetry and
// EnvironmentTelemetry. The unexported method seals the interface so dispatch
// over record kinds stays exhaustive.
type Record interface {
	// Category returns the append-only list this record belongs to.
	Category() Category
	// Validate checks the record against its schema. Errors name the
	// offending field and the expected vs actual value.
	Validate() error

	sealed()
}

// Metrics holds the radio-level reception metrics embedded in every record.
// RxSNR and RxRSSI are absent on some packets and stay nil rather than being
// coerced to zero. HopLimit defaults to 3 when the packet omits it.
type Metrics struct {
	RxTime   int64    `json:"rx_time"`
	RxSNR    *float64 `json:"rx_snr,omitempty"`
	RxRSSI   *int     `json:"rx_rssi,omitempty"`
	HopLimit int      `json:"hop_limit"`
}

// Envelope carries the fields common to every record variant. Timestamp is
// assigned at normalization time and is monotonically non-decreasing in
// arrival order only. FromID is always derivable from FromNum via NodeID.
type Envelope struct {
	Type      RecordType `json:"type"`
	Timestamp string     `json:"timestamp"`
	FromNum   int64      `json:"from_num"`
	FromID    string     `json:"from_id"`
	Metrics   Metrics    `json:"metrics"`
}

// NodeID formats a numeric radio node identifier in the mesh convention:
// "!" followed by eight lowercase hex digits.
func NodeID(num int64) string {
	return fmt.Sprintf("!%08x", uint32(num))
}

// BroadcastID is the node identifier used for broadcast destinations.
const BroadcastID = "^all"

// broadcastNum is the wire value of a broadcast destination. The protocol
// library reports it as -1 (signed) or 0xFFFFFFFF (unsigned).
const broadcastNum = 0xFFFFFFFF

// timestampLayouts are accepted when parsing stored timestamps, newest
// convention first. Older stored data used a space-separated layout.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseTimestamp parses a record timestamp in any of the accepted layouts.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp: %q", s)
}

// validate checks the envelope fields shared by all record variants.
// want is the type tag the containing variant must carry.
func (e *Envelope) validate(want RecordType) error {
	if e.Type != want {
		return fmt.Errorf("field type: expected %q, got %q", want, e.Type)
	}
	if e.Timestamp == "" {
		return fmt.Errorf("missing required field: timestamp")
	}
	if _, err := ParseTimestamp(e.Timestamp); err != nil {
		return fmt.Errorf("field timestamp: %w", err)
	}
	if e.FromID == "" {
		return fmt.Errorf("missing required field: from_id")
	}
	if e.FromID != NodeID(e.FromNum) {
		return fmt.Errorf("field from_id: expected %q derived from from_num %d, got %q",
			NodeID(e.FromNum), e.FromNum, e.FromID)
	}
	if e.Metrics.RxTime < 0 {
		return fmt.Errorf("field metrics.rx_time: expected non-negative epoch seconds, got %d", e.Metrics.RxTime)
	}
	if e.Metrics.HopLimit < 0 {
		return fmt.Errorf("field metrics.hop_limit: expected non-negative, got %d", e.Metrics.HopLimit)
	}
	return nil
}

// UserInfo is the user sub-record of a NodeInfo announcement.
type UserInfo struct {
	ID        string `json:"id"`
	LongName  string `json:"long_name"`
	ShortName string `json:"short_name"`
	MacAddr   string `json:"macaddr"`
	HWModel   string `json:"hw_model"`
	Raw       string `json:"raw"`
}

// NodeInfo is a node announcement record.
type NodeInfo struct {
	Envelope
	User UserInfo `json:"user"`
}

func (n *NodeInfo) Category() Category { return CategoryNodes }
func (n *NodeInfo) sealed()            {}

// Validate checks the NodeInfo against its schema.
func (n *NodeInfo) Validate() error {
	if err := n.Envelope.validate(TypeNodeInfo); err != nil {
		return err
	}
	if n.User.ID == "" {
		return fmt.Errorf("missing required field: user.id")
	}
	if n.User.LongName == "" {
		return fmt.Errorf("missing required field: user.long_name")
	}
	return nil
}

// TextMessage is a point-to-point or broadcast text message record.
type TextMessage struct {
	Envelope
	ToNum int64  `json:"to_num"`
	ToID  string `json:"to_id"`
	Text  string `json:"text"`
}

func (m *TextMessage) Category() Category { return CategoryMessages }
func (m *TextMessage) sealed()            {}

// Validate checks the TextMessage against its schema.
func (m *TextMessage) Validate() error {
	if err := m.Envelope.validate(TypeTextMessage); err != nil {
		return err
	}
	if m.ToID == "" {
		return fmt.Errorf("missing required field: to_id")
	}
	if m.Text == "" {
		return fmt.Errorf("missing required field: text")
	}
	return nil
}

// DeviceMetrics is the payload of a device telemetry report.
// ChannelUtilization is not reported by every firmware build.
type DeviceMetrics struct {
	BatteryLevel       int      `json:"battery_level"`
	Voltage            float64  `json:"voltage"`
	ChannelUtilization *float64 `json:"channel_utilization,omitempty"`
	AirUtilTx          float64  `json:"air_util_tx"`
	UptimeSeconds      int64    `json:"uptime_seconds"`
}

// DeviceTelemetry is a device health telemetry record.
type DeviceTelemetry struct {
	Envelope
	DeviceMetrics DeviceMetrics `json:"device_metrics"`
	Priority      *string       `json:"priority,omitempty"`
}

func (d *DeviceTelemetry) Category() Category { return CategoryDeviceTelemetry }
func (d *DeviceTelemetry) sealed()            {}

// Validate checks the DeviceTelemetry against its schema.
func (d *DeviceTelemetry) Validate() error {
	if err := d.Envelope.validate(TypeDeviceTelemetry); err != nil {
		return err
	}
	if d.DeviceMetrics.BatteryLevel < 0 {
		return fmt.Errorf("field device_metrics.battery_level: expected non-negative, got %d",
			d.DeviceMetrics.BatteryLevel)
	}
	return nil
}

// LocalStats is the payload of a network telemetry report. The three relay
// counters were added by newer firmware and stay nil when not reported.
type LocalStats struct {
	UptimeSeconds      int64   `json:"uptime_seconds"`
	ChannelUtilization float64 `json:"channel_utilization"`
	AirUtilTx          float64 `json:"air_util_tx"`
	NumPacketsTx       int64   `json:"num_packets_tx"`
	NumPacketsRx       int64   `json:"num_packets_rx"`
	NumPacketsRxBad    int64   `json:"num_packets_rx_bad"`
	NumOnlineNodes     int     `json:"num_online_nodes"`
	NumTotalNodes      int     `json:"num_total_nodes"`
	NumRxDupe          *int64  `json:"num_rx_dupe,omitempty"`
	NumTxRelay         *int64  `json:"num_tx_relay,omitempty"`
	NumTxRelayCanceled *int64  `json:"num_tx_relay_canceled,omitempty"`
}

// NetworkTelemetry is a local network statistics record.
type NetworkTelemetry struct {
	Envelope
	LocalStats LocalStats `json:"local_stats"`
	Priority   *string    `json:"priority,omitempty"`
}

func (n *NetworkTelemetry) Category() Category { return CategoryNetworkTelemetry }
func (n *NetworkTelemetry) sealed()            {}

// Validate checks the NetworkTelemetry against its schema.
func (n *NetworkTelemetry) Validate() error {
	if err := n.Envelope.validate(TypeNetworkTelemetry); err != nil {
		return err
	}
	if n.LocalStats.NumOnlineNodes > n.LocalStats.NumTotalNodes {
		return fmt.Errorf("field local_stats.num_online_nodes: expected <= num_total_nodes %d, got %d",
			n.LocalStats.NumTotalNodes, n.LocalStats.NumOnlineNodes)
	}
	return nil
}

// EnvironmentMetrics is the payload of an environment sensor report.
type EnvironmentMetrics struct {
	Temperature        float64 `json:"temperature"`
	RelativeHumidity   float64 `json:"relative_humidity"`
	BarometricPressure float64 `json:"barometric_pressure"`
	GasResistance      float64 `json:"gas_resistance"`
	IAQ                int     `json:"iaq"`
}

// EnvironmentTelemetry is an environment sensor telemetry record.
type EnvironmentTelemetry struct {
	Envelope
	EnvironmentMetrics EnvironmentMetrics `json:"environment_metrics"`
	Priority           *string            `json:"priority,omitempty"`
}

func (e *EnvironmentTelemetry) Category() Category { return CategoryEnvironmentTelemetry }
func (e *EnvironmentTelemetry) sealed()            {}

// Validate checks the EnvironmentTelemetry against its schema.
func (e *EnvironmentTelemetry) Validate() error {
	return e.Envelope.validate(TypeEnvironmentTelemetry)
}
