package ingest

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"meshbase/pkg/meshrecord"
)

// Replay feeds already-decoded packets, one JSON object per line, through the
// bridge exactly as the protocol library would: routed to the handler matching
// the packet's port. It stands in for the serial protocol library during
// development and in tests. Lines that are not valid JSON objects are logged
// and skipped; routing of unknown ports falls through to the telemetry
// handler so the dispatcher applies its normal unknown-kind policy.
func Replay(ctx context.Context, r io.Reader, bridge *Bridge, log zerolog.Logger) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	line := 0
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line++

		text := scanner.Bytes()
		if len(text) == 0 {
			continue
		}

		var packet meshrecord.RawPacket
		if err := json.Unmarshal(text, &packet); err != nil {
			log.Warn().Int("line", line).Err(err).Msg("skipping unparseable replay line")
			continue
		}

		switch packet.PortNum() {
		case meshrecord.PortTextMessage:
			bridge.OnTextMessage(packet, nil)
		case meshrecord.PortNodeInfo:
			bridge.OnNodeInfo(packet, nil)
		default:
			bridge.OnTelemetry(packet, nil)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("replay read failed at line %d: %w", line, err)
	}
	return nil
}
