package ingest

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meshbase/pkg/meshrecord"
)

func testItem(id string) Item {
	return Item{
		ID:         id,
		Kind:       KindText,
		Packet:     meshrecord.RawPacket{"from": float64(1)},
		EnqueuedAt: time.Now(),
	}
}

func TestQueueFIFO(t *testing.T) {
	q := NewQueue(0)

	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue(testItem(fmt.Sprintf("item-%d", i))))
	}
	assert.Equal(t, 5, q.Len())

	for i := 0; i < 5; i++ {
		item, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, fmt.Sprintf("item-%d", i), item.ID)
	}
	_, ok := q.TryDequeue()
	assert.False(t, ok)
}

func TestQueueBound(t *testing.T) {
	t.Run("bounded queue rejects at capacity", func(t *testing.T) {
		q := NewQueue(2)
		require.NoError(t, q.Enqueue(testItem("a")))
		require.NoError(t, q.Enqueue(testItem("b")))

		err := q.Enqueue(testItem("c"))
		assert.ErrorIs(t, err, ErrQueueFull)
		assert.Equal(t, 2, q.Len())
	})

	t.Run("capacity frees up after dequeue", func(t *testing.T) {
		q := NewQueue(1)
		require.NoError(t, q.Enqueue(testItem("a")))
		_, ok := q.TryDequeue()
		require.True(t, ok)
		assert.NoError(t, q.Enqueue(testItem("b")))
	})

	t.Run("zero limit is unbounded", func(t *testing.T) {
		q := NewQueue(0)
		for i := 0; i < 1000; i++ {
			require.NoError(t, q.Enqueue(testItem(fmt.Sprintf("item-%d", i))))
		}
		assert.Equal(t, 1000, q.Len())
	})
}

func TestQueueReadyWakesConsumer(t *testing.T) {
	q := NewQueue(0)

	got := make(chan Item, 1)
	go func() {
		<-q.Ready()
		if item, ok := q.TryDequeue(); ok {
			got <- item
		}
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.Enqueue(testItem("wakeup")))

	select {
	case item := <-got:
		assert.Equal(t, "wakeup", item.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer never woke up")
	}
}

func TestQueueReadySignalCoalesces(t *testing.T) {
	q := NewQueue(0)
	for i := 0; i < 10; i++ {
		require.NoError(t, q.Enqueue(testItem(fmt.Sprintf("item-%d", i))))
	}

	// A single buffered signal is enough: consumers loop on TryDequeue.
	<-q.Ready()
	drained := 0
	for {
		if _, ok := q.TryDequeue(); !ok {
			break
		}
		drained++
	}
	assert.Equal(t, 10, drained)
}
