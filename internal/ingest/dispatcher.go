package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"meshbase/pkg/meshrecord"
)

// State is the dispatcher lifecycle state.
type State int32

const (
	StateRunning State = iota
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// RecordStore is the storage surface the dispatcher writes through.
// *meshstore.Store satisfies it.
type RecordStore interface {
	Append(ctx context.Context, rec meshrecord.Record) error
	UpsertNodeName(ctx context.Context, nodeID, name, timestamp string) error
}

// Dispatcher is the single consumer of the ingest queue. It normalizes and
// validates each dequeued packet and appends the result through the store.
// Every item is marked complete regardless of outcome, so one bad packet
// never backs up the queue. On shutdown the dispatcher drains everything
// already enqueued before stopping.
type Dispatcher struct {
	queue   *Queue
	store   RecordStore
	log     zerolog.Logger
	metrics *Metrics

	// heartbeat bounds how long the dispatcher sleeps without emitting a
	// liveness log line while idle. Zero disables the heartbeat.
	heartbeat time.Duration

	// drainTimeout bounds the shutdown drain. Exceeding it is a fatal-log
	// condition and an error from Run, never a silent abort.
	drainTimeout time.Duration

	state atomic.Int32
	now   func() time.Time
}

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	Heartbeat    time.Duration
	DrainTimeout time.Duration
}

// NewDispatcher creates the dispatcher. metrics may be nil.
func NewDispatcher(queue *Queue, store RecordStore, log zerolog.Logger, metrics *Metrics, opts DispatcherOptions) *Dispatcher {
	return &Dispatcher{
		queue:        queue,
		store:        store,
		log:          log.With().Str("component", "dispatcher").Logger(),
		metrics:      metrics,
		heartbeat:    opts.Heartbeat,
		drainTimeout: opts.DrainTimeout,
		now:          time.Now,
	}
}

// State returns the current lifecycle state.
func (d *Dispatcher) State() State {
	return State(d.state.Load())
}

// Run consumes the queue until ctx is cancelled, then drains every item
// already enqueued and stops. Returns an error only if the drain was cut off
// by the drain timeout; per-item failures are logged and never abort the run.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.state.Store(int32(StateRunning))
	defer d.state.Store(int32(StateStopped))

	d.log.Info().Msg("dispatcher started")

	var heartbeatC <-chan time.Time
	if d.heartbeat > 0 {
		ticker := time.NewTicker(d.heartbeat)
		defer ticker.Stop()
		heartbeatC = ticker.C
	}

	for {
		// Shutdown is checked every iteration so items still queued at
		// cancellation are handed to the drain, not processed here.
		select {
		case <-ctx.Done():
			return d.drain()
		default:
		}

		if item, ok := d.queue.TryDequeue(); ok {
			d.process(ctx, item)
			d.metrics.depth(d.queue.Len())
			continue
		}

		select {
		case <-ctx.Done():
			return d.drain()
		case <-d.queue.Ready():
		case <-heartbeatC:
			d.log.Debug().Int("queue_depth", d.queue.Len()).Msg("dispatcher idle")
		}
	}
}

// drain synchronously processes every item still enqueued. No enqueued item
// is discarded on shutdown; abandoning items because the drain deadline
// passed is logged at fatal severity and surfaces as an error.
func (d *Dispatcher) drain() error {
	d.state.Store(int32(StateDraining))

	remaining := d.queue.Len()
	d.log.Info().Int("queued", remaining).Msg("draining queue before shutdown")

	drainCtx := context.Background()
	cancel := func() {}
	if d.drainTimeout > 0 {
		drainCtx, cancel = context.WithTimeout(drainCtx, d.drainTimeout)
	}
	defer cancel()

	for {
		item, ok := d.queue.TryDequeue()
		if !ok {
			d.log.Info().Msg("drain complete")
			return nil
		}

		if d.drainTimeout > 0 && drainCtx.Err() != nil {
			abandoned := d.queue.Len() + 1
			d.log.Error().
				Int("abandoned", abandoned).
				Dur("drain_timeout", d.drainTimeout).
				Msg("FATAL: drain deadline exceeded, abandoning queued items")
			return fmt.Errorf("drain deadline exceeded with %d items still queued", abandoned)
		}

		d.process(drainCtx, item)
	}
}

// process normalizes, validates and stores one item. Failures are logged with
// full context and the item is dropped; the queue never stalls on a bad
// packet.
func (d *Dispatcher) process(ctx context.Context, item Item) {
	rec, err := meshrecord.Normalize(item.Packet, d.now())
	if err != nil {
		if errors.Is(err, meshrecord.ErrUnknownPort) || errors.Is(err, meshrecord.ErrUnknownTelemetry) {
			d.log.Warn().
				Str("packet_id", item.ID).
				Str("kind", string(item.Kind)).
				Err(err).
				Msg("unknown packet kind, dropping")
			d.metrics.dropped(DropReasonUnknown)
			return
		}
		d.log.Error().
			Str("packet_id", item.ID).
			Str("kind", string(item.Kind)).
			Err(err).
			Msg("normalization failed, dropping packet")
		d.metrics.dropped(DropReasonStructural)
		return
	}

	if err := rec.Validate(); err != nil {
		d.log.Error().
			Str("packet_id", item.ID).
			Str("category", string(rec.Category())).
			Err(err).
			Msg("record failed validation, dropping packet")
		d.metrics.dropped(DropReasonInvalid)
		return
	}

	if err := d.store.Append(ctx, rec); err != nil {
		d.log.Error().
			Str("packet_id", item.ID).
			Str("category", string(rec.Category())).
			Err(err).
			Msg("storage append failed, dropping record")
		d.metrics.dropped(DropReasonStorage)
		return
	}
	d.metrics.stored(string(rec.Category()))

	switch r := rec.(type) {
	case *meshrecord.NodeInfo:
		// Keep the read-time name directory current. A directory failure
		// does not undo the stored announcement.
		if err := d.store.UpsertNodeName(ctx, r.FromID, r.User.LongName, r.Timestamp); err != nil {
			d.log.Warn().Str("node", r.FromID).Err(err).Msg("node directory update failed")
		}
		d.log.Info().
			Str("node", r.FromID).
			Str("name", r.User.LongName).
			Msg("node announcement stored")
	case *meshrecord.TextMessage:
		d.log.Info().
			Str("from", r.FromID).
			Str("to", r.ToID).
			Str("text", r.Text).
			Msg("message stored")
	default:
		d.log.Debug().
			Str("category", string(rec.Category())).
			Str("from_id", fromID(rec)).
			Msg("telemetry stored")
	}
}

// fromID extracts the envelope from_id of any record variant.
func fromID(rec meshrecord.Record) string {
	switch r := rec.(type) {
	case *meshrecord.NodeInfo:
		return r.FromID
	case *meshrecord.TextMessage:
		return r.FromID
	case *meshrecord.DeviceTelemetry:
		return r.FromID
	case *meshrecord.NetworkTelemetry:
		return r.FromID
	case *meshrecord.EnvironmentTelemetry:
		return r.FromID
	default:
		return ""
	}
}
