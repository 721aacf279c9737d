package meshstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meshbase/pkg/meshrecord"
)

// setupTestStore creates a store connected to a miniredis instance
func setupTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	mr := miniredis.NewMiniRedis()
	err := mr.Start()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	store, err := New(&redis.Options{Addr: mr.Addr()}, "test-station", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store, mr
}

func testMessage(text, timestamp string) *meshrecord.TextMessage {
	return &meshrecord.TextMessage{
		Envelope: meshrecord.Envelope{
			Type:      meshrecord.TypeTextMessage,
			Timestamp: timestamp,
			FromNum:   0x12345678,
			FromID:    "!12345678",
			Metrics:   meshrecord.Metrics{RxTime: 1724840000, HopLimit: 3},
		},
		ToNum: -1,
		ToID:  meshrecord.BroadcastID,
		Text:  text,
	}
}

func TestNew(t *testing.T) {
	t.Run("creates store successfully", func(t *testing.T) {
		store, _ := setupTestStore(t)
		assert.NotNil(t, store)
	})

	t.Run("rejects empty instance name", func(t *testing.T) {
		_, err := New(&redis.Options{Addr: "localhost:6379"}, "", zerolog.Nop())
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "instance name cannot be empty")
	})
}

func TestAppendAndLoad(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	t.Run("round trips a record", func(t *testing.T) {
		msg := testMessage("hello mesh", "2026-08-28T10:30:00Z")
		require.NoError(t, store.Append(ctx, msg))

		entries, err := store.Load(ctx, meshrecord.CategoryMessages, 0)
		require.NoError(t, err)
		require.Len(t, entries, 1)

		var got meshrecord.TextMessage
		require.NoError(t, json.Unmarshal([]byte(entries[0]), &got))
		assert.Equal(t, msg.Text, got.Text)
		assert.Equal(t, msg.FromID, got.FromID)
		assert.Equal(t, msg.ToID, got.ToID)
		assert.Equal(t, msg.Timestamp, got.Timestamp)
		assert.Nil(t, got.Metrics.RxSNR)
	})

	t.Run("newest record comes first", func(t *testing.T) {
		require.NoError(t, store.Append(ctx, testMessage("second", "2026-08-28T10:31:00Z")))
		require.NoError(t, store.Append(ctx, testMessage("third", "2026-08-28T10:32:00Z")))

		entries, err := store.Load(ctx, meshrecord.CategoryMessages, 0)
		require.NoError(t, err)
		require.Len(t, entries, 3)

		var newest meshrecord.TextMessage
		require.NoError(t, json.Unmarshal([]byte(entries[0]), &newest))
		assert.Equal(t, "third", newest.Text)
	})

	t.Run("limit truncates from the newest end", func(t *testing.T) {
		entries, err := store.Load(ctx, meshrecord.CategoryMessages, 2)
		require.NoError(t, err)
		assert.Len(t, entries, 2)
	})

	t.Run("empty category loads empty", func(t *testing.T) {
		entries, err := store.Load(ctx, meshrecord.CategoryNodes, 0)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

// recoveringBackoff clears the injected miniredis error before the first
// retry, so the next push attempt succeeds.
type recoveringBackoff struct {
	mr *miniredis.Miniredis
}

func (b *recoveringBackoff) NextBackOff() time.Duration {
	b.mr.SetError("")
	return 0
}

func (b *recoveringBackoff) Reset() {}

func TestAppendRetry(t *testing.T) {
	t.Run("retries a transient push failure", func(t *testing.T) {
		store, mr := setupTestStore(t)
		ctx := context.Background()

		mr.SetError("LOADING Redis is loading the dataset in memory")
		store.newBackoff = func() backoff.BackOff {
			return backoff.WithMaxRetries(&recoveringBackoff{mr: mr}, appendRetries)
		}

		require.NoError(t, store.Append(ctx, testMessage("persistent", "2026-08-28T10:30:00Z")))

		n, err := store.Length(ctx, meshrecord.CategoryMessages)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("fails after retries are exhausted", func(t *testing.T) {
		store, mr := setupTestStore(t)
		ctx := context.Background()

		mr.SetError("LOADING Redis is loading the dataset in memory")
		store.newBackoff = func() backoff.BackOff {
			return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, appendRetries)
		}

		err := store.Append(ctx, testMessage("doomed", "2026-08-28T10:30:00Z"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to append record")

		mr.SetError("")
		n, err := store.Length(ctx, meshrecord.CategoryMessages)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestLength(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	n, err := store.Length(ctx, meshrecord.CategoryMessages)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	require.NoError(t, store.Append(ctx, testMessage("one", "2026-08-28T10:30:00Z")))
	n, err = store.Length(ctx, meshrecord.CategoryMessages)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestCategoryIsolation(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	node := &meshrecord.NodeInfo{
		Envelope: meshrecord.Envelope{
			Type:      meshrecord.TypeNodeInfo,
			Timestamp: "2026-08-28T10:30:00Z",
			FromNum:   0x12345678,
			FromID:    "!12345678",
		},
		User: meshrecord.UserInfo{ID: "!12345678", LongName: "Base Camp"},
	}
	require.NoError(t, store.Append(ctx, node))
	require.NoError(t, store.Append(ctx, testMessage("hi", "2026-08-28T10:30:00Z")))

	nodes, err := store.Load(ctx, meshrecord.CategoryNodes, 0)
	require.NoError(t, err)
	messages, err := store.Load(ctx, meshrecord.CategoryMessages, 0)
	require.NoError(t, err)

	assert.Len(t, nodes, 1)
	assert.Len(t, messages, 1)
}

func TestNodeDirectory(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	t.Run("upsert and read back", func(t *testing.T) {
		require.NoError(t, store.UpsertNodeName(ctx, "!12345678", "Base Camp", "2026-08-28T10:30:00Z"))

		names, err := store.NodeNames(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Base Camp", names["!12345678"])

		seen, err := store.NodeSeen(ctx)
		require.NoError(t, err)
		assert.Equal(t, "2026-08-28T10:30:00Z", seen["!12345678"])
	})

	t.Run("rename overwrites without touching history", func(t *testing.T) {
		require.NoError(t, store.Append(ctx, testMessage("before rename", "2026-08-28T10:30:00Z")))
		require.NoError(t, store.UpsertNodeName(ctx, "!12345678", "Summit Relay", "2026-08-28T11:00:00Z"))

		names, err := store.NodeNames(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Summit Relay", names["!12345678"])

		entries, err := store.Load(ctx, meshrecord.CategoryMessages, 0)
		require.NoError(t, err)
		var msg meshrecord.TextMessage
		require.NoError(t, json.Unmarshal([]byte(entries[0]), &msg))
		assert.Equal(t, "!12345678", msg.FromID)
	})

	t.Run("broadcast pseudo-node is seeded", func(t *testing.T) {
		require.NoError(t, store.InitBroadcastNode(ctx))
		names, err := store.NodeNames(ctx)
		require.NoError(t, err)
		assert.Equal(t, meshrecord.BroadcastID, names[meshrecord.BroadcastID])
	})
}

func TestSubscribeEvents(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	t.Run("delivers appended records", func(t *testing.T) {
		sub, err := store.SubscribeEvents(ctx, meshrecord.CategoryMessages)
		require.NoError(t, err)
		defer sub.Close()

		// Give the subscriber goroutine time to attach.
		time.Sleep(50 * time.Millisecond)

		require.NoError(t, store.Append(ctx, testMessage("live", "2026-08-28T10:30:00Z")))

		select {
		case ev := <-sub.Events():
			assert.Equal(t, meshrecord.CategoryMessages, ev.Category)
			var msg meshrecord.TextMessage
			require.NoError(t, json.Unmarshal([]byte(ev.Payload), &msg))
			assert.Equal(t, "live", msg.Text)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for event")
		}
	})

	t.Run("rejects invalid category", func(t *testing.T) {
		_, err := store.SubscribeEvents(ctx, meshrecord.Category("bogus"))
		assert.Error(t, err)
	})

	t.Run("close is idempotent", func(t *testing.T) {
		sub, err := store.SubscribeEvents(ctx)
		require.NoError(t, err)
		assert.NoError(t, sub.Close())
		assert.NoError(t, sub.Close())
	})
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "meshbase:base1:messages", ListKey("base1", meshrecord.CategoryMessages))
	assert.Equal(t, "meshbase:base1:telemetry:device", ListKey("base1", meshrecord.CategoryDeviceTelemetry))
	assert.Equal(t, "meshbase:base1:directory:names", NodeNamesKey("base1"))
	assert.Equal(t, "meshbase:base1:directory:seen", NodeSeenKey("base1"))
	assert.Equal(t, "meshbase:base1:events:messages", EventsChannel("base1", meshrecord.CategoryMessages))
}
