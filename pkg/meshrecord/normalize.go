package meshrecord

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnknownPort reports a packet whose decoded.portnum is not one of the
// handled applications. Unknown ports are dropped with a warning, not treated
// as pipeline failures.
var ErrUnknownPort = errors.New("unknown portnum")

// ErrUnknownTelemetry reports a TELEMETRY_APP packet carrying none of the
// recognized telemetry sub-structures.
var ErrUnknownTelemetry = errors.New("unknown telemetry variant")

// defaultHopLimit applies when a packet omits hopLimit.
const defaultHopLimit = 3

// Normalize maps a raw decoded packet into its typed record, routing on
// decoded.portnum. now becomes the record's timestamp. The mapping is pure:
// no I/O, no mutation of the input packet.
//
// A nil record with an error wrapping ErrUnknownPort or ErrUnknownTelemetry
// means the packet kind is unrecognized; any other error is structural
// (a required field missing or uncoercible).
func Normalize(p RawPacket, now time.Time) (Record, error) {
	switch port := p.PortNum(); port {
	case PortNodeInfo:
		return NormalizeNodeInfo(p, now)
	case PortTextMessage:
		return NormalizeTextMessage(p, now)
	case PortTelemetry:
		return NormalizeTelemetry(p, now)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPort, port)
	}
}

// envelope builds the common envelope fields. fromId is derived from the
// numeric id when the packet does not carry it.
func envelope(p RawPacket, typ RecordType, now time.Time) (Envelope, error) {
	fromNum, ok := p.Int64("from")
	if !ok {
		return Envelope{}, fmt.Errorf("missing required field: from")
	}

	fromID, ok := p.String("fromId")
	if !ok {
		fromID = NodeID(fromNum)
	}

	metrics, err := extractMetrics(p)
	if err != nil {
		return Envelope{}, err
	}

	return Envelope{
		Type:      typ,
		Timestamp: now.Format(time.RFC3339Nano),
		FromNum:   fromNum,
		FromID:    fromID,
		Metrics:   metrics,
	}, nil
}

// extractMetrics pulls the radio metrics off the packet. rxSnr and rxRssi
// stay nil when absent; hopLimit defaults to 3.
func extractMetrics(p RawPacket) (Metrics, error) {
	rxTime, ok := p.Int64("rxTime")
	if !ok {
		return Metrics{}, fmt.Errorf("missing required field: rxTime")
	}

	m := Metrics{
		RxTime:   rxTime,
		HopLimit: defaultHopLimit,
	}
	if snr, ok := p.Float64("rxSnr"); ok {
		m.RxSNR = &snr
	}
	if rssi, ok := p.Int("rxRssi"); ok {
		m.RxRSSI = &rssi
	}
	if hops, ok := p.Int("hopLimit"); ok {
		m.HopLimit = hops
	}
	return m, nil
}

// priority returns the optional packet priority, nil when absent.
func priority(p RawPacket) *string {
	s, ok := p.String("priority")
	if !ok {
		return nil
	}
	return &s
}

// NormalizeNodeInfo maps a NODEINFO_APP packet to a NodeInfo record.
func NormalizeNodeInfo(p RawPacket, now time.Time) (*NodeInfo, error) {
	env, err := envelope(p, TypeNodeInfo, now)
	if err != nil {
		return nil, fmt.Errorf("nodeinfo packet: %w", err)
	}

	decoded, ok := p.Decoded()
	if !ok {
		return nil, fmt.Errorf("nodeinfo packet: missing required field: decoded")
	}
	user, ok := decoded.Map("user")
	if !ok {
		return nil, fmt.Errorf("nodeinfo packet: missing required field: decoded.user")
	}

	id, ok := user.String("id")
	if !ok {
		return nil, fmt.Errorf("nodeinfo packet: missing required field: decoded.user.id")
	}
	longName, ok := user.String("longName")
	if !ok {
		return nil, fmt.Errorf("nodeinfo packet: missing required field: decoded.user.longName")
	}

	// Secondary identity fields are not reported by all hardware.
	shortName, _ := user.String("shortName")
	macaddr, _ := user.String("macaddr")
	hwModel, _ := user.String("hwModel")
	raw, _ := user.String("raw")

	return &NodeInfo{
		Envelope: env,
		User: UserInfo{
			ID:        id,
			LongName:  longName,
			ShortName: shortName,
			MacAddr:   macaddr,
			HWModel:   hwModel,
			Raw:       raw,
		},
	}, nil
}

// NormalizeTextMessage maps a TEXT_MESSAGE_APP packet to a TextMessage record.
// A missing toId resolves to the broadcast id when the destination is the
// broadcast address, or is derived from the numeric destination otherwise.
func NormalizeTextMessage(p RawPacket, now time.Time) (*TextMessage, error) {
	env, err := envelope(p, TypeTextMessage, now)
	if err != nil {
		return nil, fmt.Errorf("text packet: %w", err)
	}

	toNum, ok := p.Int64("to")
	if !ok {
		return nil, fmt.Errorf("text packet: missing required field: to")
	}
	toID, ok := p.String("toId")
	if !ok {
		if toNum == -1 || toNum == broadcastNum {
			toID = BroadcastID
		} else {
			toID = NodeID(toNum)
		}
	}

	decoded, ok := p.Decoded()
	if !ok {
		return nil, fmt.Errorf("text packet: missing required field: decoded")
	}
	text, ok := decoded.String("text")
	if !ok {
		return nil, fmt.Errorf("text packet: missing required field: decoded.text")
	}

	return &TextMessage{
		Envelope: env,
		ToNum:    toNum,
		ToID:     toID,
		Text:     text,
	}, nil
}

// NormalizeTelemetry maps a TELEMETRY_APP packet to one of the three telemetry
// records by inspecting which mutually-exclusive sub-structure the payload
// carries. A payload with none of them yields ErrUnknownTelemetry.
func NormalizeTelemetry(p RawPacket, now time.Time) (Record, error) {
	decoded, ok := p.Decoded()
	if !ok {
		return nil, fmt.Errorf("telemetry packet: missing required field: decoded")
	}
	telemetry, ok := decoded.Map("telemetry")
	if !ok {
		return nil, fmt.Errorf("telemetry packet: missing required field: decoded.telemetry")
	}

	if dm, ok := telemetry.Map("deviceMetrics"); ok {
		return normalizeDeviceTelemetry(p, dm, now)
	}
	if ls, ok := telemetry.Map("localStats"); ok {
		return normalizeNetworkTelemetry(p, ls, now)
	}
	if em, ok := telemetry.Map("environmentMetrics"); ok {
		return normalizeEnvironmentTelemetry(p, em, now)
	}
	return nil, ErrUnknownTelemetry
}

func normalizeDeviceTelemetry(p, dm RawPacket, now time.Time) (*DeviceTelemetry, error) {
	env, err := envelope(p, TypeDeviceTelemetry, now)
	if err != nil {
		return nil, fmt.Errorf("device telemetry packet: %w", err)
	}

	battery, ok := dm.Int("batteryLevel")
	if !ok {
		return nil, fmt.Errorf("device telemetry packet: missing required field: deviceMetrics.batteryLevel")
	}
	voltage, ok := dm.Float64("voltage")
	if !ok {
		return nil, fmt.Errorf("device telemetry packet: missing required field: deviceMetrics.voltage")
	}
	airUtil, ok := dm.Float64("airUtilTx")
	if !ok {
		return nil, fmt.Errorf("device telemetry packet: missing required field: deviceMetrics.airUtilTx")
	}
	uptime, ok := dm.Int64("uptimeSeconds")
	if !ok {
		return nil, fmt.Errorf("device telemetry packet: missing required field: deviceMetrics.uptimeSeconds")
	}

	metrics := DeviceMetrics{
		BatteryLevel:  battery,
		Voltage:       voltage,
		AirUtilTx:     airUtil,
		UptimeSeconds: uptime,
	}
	if chUtil, ok := dm.Float64("channelUtilization"); ok {
		metrics.ChannelUtilization = &chUtil
	}

	return &DeviceTelemetry{
		Envelope:      env,
		DeviceMetrics: metrics,
		Priority:      priority(p),
	}, nil
}

func normalizeNetworkTelemetry(p, ls RawPacket, now time.Time) (*NetworkTelemetry, error) {
	env, err := envelope(p, TypeNetworkTelemetry, now)
	if err != nil {
		return nil, fmt.Errorf("network telemetry packet: %w", err)
	}

	// Counters absent from older firmware default to zero; the three relay
	// counters stay nil when unreported.
	stats := LocalStats{}
	stats.UptimeSeconds, _ = ls.Int64("uptimeSeconds")
	stats.ChannelUtilization, _ = ls.Float64("channelUtilization")
	stats.AirUtilTx, _ = ls.Float64("airUtilTx")
	stats.NumPacketsTx, _ = ls.Int64("numPacketsTx")
	stats.NumPacketsRx, _ = ls.Int64("numPacketsRx")
	stats.NumPacketsRxBad, _ = ls.Int64("numPacketsRxBad")
	stats.NumOnlineNodes, _ = ls.Int("numOnlineNodes")
	stats.NumTotalNodes, _ = ls.Int("numTotalNodes")
	if v, ok := ls.Int64("numRxDupe"); ok {
		stats.NumRxDupe = &v
	}
	if v, ok := ls.Int64("numTxRelay"); ok {
		stats.NumTxRelay = &v
	}
	if v, ok := ls.Int64("numTxRelayCanceled"); ok {
		stats.NumTxRelayCanceled = &v
	}

	return &NetworkTelemetry{
		Envelope:   env,
		LocalStats: stats,
		Priority:   priority(p),
	}, nil
}

func normalizeEnvironmentTelemetry(p, em RawPacket, now time.Time) (*EnvironmentTelemetry, error) {
	env, err := envelope(p, TypeEnvironmentTelemetry, now)
	if err != nil {
		return nil, fmt.Errorf("environment telemetry packet: %w", err)
	}

	metrics := EnvironmentMetrics{}
	metrics.Temperature, _ = em.Float64("temperature")
	metrics.RelativeHumidity, _ = em.Float64("relativeHumidity")
	metrics.BarometricPressure, _ = em.Float64("barometricPressure")
	metrics.GasResistance, _ = em.Float64("gasResistance")
	metrics.IAQ, _ = em.Int("iaq")

	return &EnvironmentTelemetry{
		Envelope:           env,
		EnvironmentMetrics: metrics,
		Priority:           priority(p),
	}, nil
}
