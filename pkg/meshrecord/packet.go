package meshrecord

import (
	"github.com/spf13/cast"
)

// Port numbers tagging the decoded payload of a raw packet. These are the
// protocol library's names and arrive as strings under decoded.portnum.
const (
	PortNodeInfo    = "NODEINFO_APP"
	PortTextMessage = "TEXT_MESSAGE_APP"
	PortTelemetry   = "TELEMETRY_APP"
)

// RawPacket is a single already-decoded event as handed over by the protocol
// library: a loosely-typed map with camelCase keys and nested payload maps
// (decoded.user, decoded.telemetry.deviceMetrics, ...). Accessors report
// presence explicitly so absent fields are never confused with zero values.
type RawPacket map[string]any

// Int64 returns the value at key coerced to int64, and whether the key was
// present and coercible.
func (p RawPacket) Int64(key string) (int64, bool) {
	v, ok := p[key]
	if !ok || v == nil {
		return 0, false
	}
	n, err := cast.ToInt64E(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Int returns the value at key coerced to int.
func (p RawPacket) Int(key string) (int, bool) {
	n, ok := p.Int64(key)
	return int(n), ok
}

// Float64 returns the value at key coerced to float64.
func (p RawPacket) Float64(key string) (float64, bool) {
	v, ok := p[key]
	if !ok || v == nil {
		return 0, false
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, false
	}
	return f, true
}

// String returns the value at key coerced to string. A present-but-null or
// empty value reports absent.
func (p RawPacket) String(key string) (string, bool) {
	v, ok := p[key]
	if !ok || v == nil {
		return "", false
	}
	s, err := cast.ToStringE(v)
	if err != nil || s == "" {
		return "", false
	}
	return s, true
}

// Map returns the nested map at key, if present.
func (p RawPacket) Map(key string) (RawPacket, bool) {
	v, ok := p[key]
	if !ok || v == nil {
		return nil, false
	}
	m, err := cast.ToStringMapE(v)
	if err != nil {
		return nil, false
	}
	return RawPacket(m), true
}

// Decoded returns the decoded payload sub-map of the packet.
func (p RawPacket) Decoded() (RawPacket, bool) {
	return p.Map("decoded")
}

// PortNum returns the decoded.portnum tag, or "" when absent.
func (p RawPacket) PortNum() string {
	decoded, ok := p.Decoded()
	if !ok {
		return ""
	}
	port, _ := decoded.String("portnum")
	return port
}
