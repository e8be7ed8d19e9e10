package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FilamentGames/rulescript/internal/ir"
)

func TestEventQueue_FIFO(t *testing.T) {
	q := newEventQueue()

	for _, key := range []string{"a", "b", "c"} {
		require.True(t, q.Enqueue(TriggerEvent(ir.EntityIDOf(key), ir.TriggerIDOf("hit"), nil)))
	}

	for _, key := range []string{"a", "b", "c"} {
		ev, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, EventTrigger, ev.Type)
		assert.Equal(t, ir.EntityIDOf(key), ev.Entity)
	}

	_, ok := q.TryDequeue()
	assert.False(t, ok, "queue should be empty")
}

func TestEventQueue_Drain(t *testing.T) {
	q := newEventQueue()
	assert.Nil(t, q.Drain())

	q.Enqueue(BroadcastEvent(ir.TriggerIDOf("alarm"), ir.Int(1)))
	q.Enqueue(BroadcastEvent(ir.TriggerIDOf("alarm"), ir.Int(2)))

	batch := q.Drain()
	require.Len(t, batch, 2)
	assert.Equal(t, ir.Int(1), batch[0].Arg)
	assert.Equal(t, ir.Int(2), batch[1].Arg)
	assert.Equal(t, 0, q.Len())

	// The drained batch is detached from the queue.
	q.Enqueue(BroadcastEvent(ir.TriggerIDOf("alarm"), ir.Int(3)))
	assert.Equal(t, ir.Int(1), batch[0].Arg)
	assert.Equal(t, 1, q.Len())
}

func TestEventQueue_WaitSignals(t *testing.T) {
	q := newEventQueue()

	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Enqueue(BroadcastEvent(ir.TriggerIDOf("alarm"), nil))
	}()

	select {
	case <-q.Wait():
		assert.Equal(t, 1, q.Len())
	case <-time.After(time.Second):
		t.Fatal("wait did not signal")
	}
}

func TestEventQueue_Close(t *testing.T) {
	q := newEventQueue()
	q.Close()
	q.Close() // idempotent

	assert.False(t, q.Enqueue(BroadcastEvent(ir.TriggerIDOf("alarm"), nil)))
	assert.True(t, q.isClosed())

	select {
	case <-q.Wait():
	default:
		t.Fatal("closed queue should wake waiters")
	}
}

func TestEventQueue_ConcurrentEnqueue(t *testing.T) {
	q := newEventQueue()
	const producers = 10
	const perProducer = 100

	var wg sync.WaitGroup
	for range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perProducer {
				q.Enqueue(BroadcastEvent(ir.TriggerIDOf("timer"), nil))
			}
		}()
	}
	wg.Wait()

	assert.Len(t, q.Drain(), producers*perProducer)
}

func TestEventType_String(t *testing.T) {
	assert.Equal(t, "trigger", EventTrigger.String())
	assert.Equal(t, "broadcast", EventBroadcast.String())
	assert.Equal(t, "unknown", EventType(0).String())
}
