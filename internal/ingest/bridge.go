package ingest

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"meshbase/pkg/meshrecord"
)

// Bridge exposes the callback handlers the protocol library invokes when a
// decoded packet arrives. The handlers run on the library's own thread and do
// nothing but classify the packet and hand it to the queue without blocking;
// they never panic back into the library's dispatch path. Per-packet logging
// happens at trace level, below normal operational logs.
type Bridge struct {
	queue   *Queue
	log     zerolog.Logger
	metrics *Metrics
}

// NewBridge creates the ingress bridge. metrics may be nil.
func NewBridge(queue *Queue, log zerolog.Logger, metrics *Metrics) *Bridge {
	return &Bridge{
		queue:   queue,
		log:     log.With().Str("component", "bridge").Logger(),
		metrics: metrics,
	}
}

// OnTextMessage handles a decoded text message packet. The second parameter
// is the library's protocol-interface handle, required by the callback
// signature but unused here.
func (b *Bridge) OnTextMessage(packet meshrecord.RawPacket, _ any) {
	b.enqueue(KindText, packet)
}

// OnNodeInfo handles a decoded node announcement packet.
func (b *Bridge) OnNodeInfo(packet meshrecord.RawPacket, _ any) {
	b.enqueue(KindNode, packet)
}

// OnTelemetry handles a decoded telemetry packet.
func (b *Bridge) OnTelemetry(packet meshrecord.RawPacket, _ any) {
	b.enqueue(KindTelemetry, packet)
}

func (b *Bridge) enqueue(kind Kind, packet meshrecord.RawPacket) {
	item := Item{
		ID:         uuid.New().String(),
		Kind:       kind,
		Packet:     packet,
		EnqueuedAt: time.Now(),
	}

	b.log.Trace().
		Str("packet_id", item.ID).
		Str("kind", string(kind)).
		Str("portnum", packet.PortNum()).
		Interface("packet", packet).
		Msg("packet received")

	b.metrics.received(kind)

	if err := b.queue.Enqueue(item); err != nil {
		// Only possible on a bounded queue at capacity: drop, never raise
		// back into the protocol library.
		b.log.Error().
			Err(err).
			Str("packet_id", item.ID).
			Str("kind", string(kind)).
			Msg("dropping packet")
		b.metrics.dropped(DropReasonQueueFull)
		return
	}
	b.metrics.depth(b.queue.Len())
}
