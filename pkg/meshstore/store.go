package meshstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"meshbase/pkg/meshrecord"
)

// appendRetries bounds the retry attempts for a transient append failure
// before the record is dropped.
const appendRetries = 3

// Store is the append-only storage gateway. It is the single owner of the
// Redis connection; during normal operation only the dispatcher writes through
// it, and maintenance operations (cleanup) must not run concurrently with
// active dispatch against the same category.
type Store struct {
	rdb      *redis.Client
	instance string
	log      zerolog.Logger

	// newBackoff builds the retry policy for one append. Tests substitute a
	// zero-wait policy.
	newBackoff func() backoff.BackOff
}

// New creates a store for the given station instance.
// Returns an error if instance is empty.
func New(redisOpts *redis.Options, instance string, log zerolog.Logger) (*Store, error) {
	if instance == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}

	return &Store{
		rdb:      redis.NewClient(redisOpts),
		instance: instance,
		log:      log.With().Str("component", "meshstore").Logger(),
		newBackoff: func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), appendRetries)
		},
	}, nil
}

// Close closes the Redis connection. Implements io.Closer.
func (s *Store) Close() error {
	return s.rdb.Close()
}

// Ping verifies Redis connectivity. Useful for health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Append serializes the record and prepends it to its category's list, then
// publishes the serialized record on the category's event channel. The push is
// retried with exponential backoff a bounded number of times; a publish
// failure is logged but does not fail the append, since the record is already
// durably stored.
func (s *Store) Append(ctx context.Context, rec meshrecord.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to serialize record: %w", err)
	}

	cat := rec.Category()
	key := ListKey(s.instance, cat)

	push := func() error {
		return s.rdb.LPush(ctx, key, payload).Err()
	}
	bo := backoff.WithContext(s.newBackoff(), ctx)
	if err := backoff.Retry(push, bo); err != nil {
		return fmt.Errorf("failed to append record to %s: %w", key, err)
	}
	s.log.Debug().Str("category", string(cat)).Int("bytes", len(payload)).Msg("record appended")

	channel := EventsChannel(s.instance, cat)
	if err := s.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		s.log.Warn().Err(err).Str("channel", channel).Msg("failed to publish record event")
	}

	return nil
}

// Load returns up to limit most-recently-appended raw records of a category,
// newest first. A limit <= 0 loads the whole list. Empty entries are filtered
// out defensively.
func (s *Store) Load(ctx context.Context, cat meshrecord.Category, limit int) ([]string, error) {
	key := ListKey(s.instance, cat)

	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}

	entries, err := s.rdb.LRange(ctx, key, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load records from %s: %w", key, err)
	}

	records := entries[:0]
	for _, e := range entries {
		if e != "" {
			records = append(records, e)
		}
	}
	s.log.Debug().Str("category", string(cat)).Int("count", len(records)).Msg("records loaded")
	return records, nil
}

// Length returns the number of stored records in a category.
func (s *Store) Length(ctx context.Context, cat meshrecord.Category) (int64, error) {
	n, err := s.rdb.LLen(ctx, ListKey(s.instance, cat)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read length of %s: %w", ListKey(s.instance, cat), err)
	}
	return n, nil
}

// UpsertNodeName records a node's current display name and the timestamp of
// the announcement that set it. The directory is joined at read time when
// formatting messages; stored message records are never rewritten on rename.
func (s *Store) UpsertNodeName(ctx context.Context, nodeID, name, timestamp string) error {
	pipe := s.rdb.Pipeline()
	pipe.HSet(ctx, NodeNamesKey(s.instance), nodeID, name)
	pipe.HSet(ctx, NodeSeenKey(s.instance), nodeID, timestamp)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to update node directory for %s: %w", nodeID, err)
	}
	s.log.Debug().Str("node", nodeID).Str("name", name).Msg("node directory updated")
	return nil
}

// NodeNames returns the node directory as a map of node id to display name.
// An empty directory is not an error.
func (s *Store) NodeNames(ctx context.Context) (map[string]string, error) {
	names, err := s.rdb.HGetAll(ctx, NodeNamesKey(s.instance)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load node directory: %w", err)
	}
	return names, nil
}

// NodeSeen returns the node id to last-announcement-timestamp map.
func (s *Store) NodeSeen(ctx context.Context) (map[string]string, error) {
	seen, err := s.rdb.HGetAll(ctx, NodeSeenKey(s.instance)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load node timestamps: %w", err)
	}
	return seen, nil
}

// InitBroadcastNode seeds the node directory with the broadcast pseudo-node so
// broadcast destinations resolve to a name from the first message on.
func (s *Store) InitBroadcastNode(ctx context.Context) error {
	ts := time.Now().Format(time.RFC3339Nano)
	return s.UpsertNodeName(ctx, meshrecord.BroadcastID, meshrecord.BroadcastID, ts)
}

// StoredRecord is one freshly appended record delivered by a subscription.
type StoredRecord struct {
	Category meshrecord.Category
	Payload  string
}

// Subscription is an active Pub/Sub subscription to record append events.
// Caller must call Close() when done. Delivery is at-most-once: a slow
// subscriber may miss events, which is acceptable for display surfaces.
type Subscription struct {
	events <-chan StoredRecord
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of appended records. It is closed when the
// subscription is closed or the context is cancelled.
func (s *Subscription) Events() <-chan StoredRecord {
	return s.events
}

// Errors returns the channel of non-fatal subscription errors.
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription and cleans up resources. Implements io.Closer.
// Safe to call multiple times.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// SubscribeEvents subscribes to append events for the given categories (all
// categories when none are named). Caller must call Close() on the returned
// subscription; context cancellation also stops it.
func (s *Store) SubscribeEvents(ctx context.Context, cats ...meshrecord.Category) (*Subscription, error) {
	if len(cats) == 0 {
		cats = meshrecord.AllCategories
	}

	channels := make([]string, 0, len(cats))
	byChannel := make(map[string]meshrecord.Category, len(cats))
	for _, cat := range cats {
		if err := cat.Validate(); err != nil {
			return nil, err
		}
		ch := EventsChannel(s.instance, cat)
		channels = append(channels, ch)
		byChannel[ch] = cat
	}

	pubsub := s.rdb.Subscribe(ctx, channels...)

	eventsChan := make(chan StoredRecord, 10)
	errorsChan := make(chan error, 10)
	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				cat, known := byChannel[msg.Channel]
				if !known {
					select {
					case errorsChan <- fmt.Errorf("event on unexpected channel %q", msg.Channel):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- StoredRecord{Category: cat, Payload: msg.Payload}:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}
