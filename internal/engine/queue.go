package engine

import (
	"sync"

	"github.com/FilamentGames/rulescript/internal/ir"
)

// EventType distinguishes queued dispatch requests.
type EventType int

const (
	// EventTrigger dispatches a trigger to one entity.
	EventTrigger EventType = iota + 1
	// EventBroadcast dispatches a trigger to every listener.
	EventBroadcast
	// EventCall runs a function on the frame goroutine.
	EventCall
)

func (t EventType) String() string {
	switch t {
	case EventTrigger:
		return "trigger"
	case EventBroadcast:
		return "broadcast"
	case EventCall:
		return "call"
	}
	return "unknown"
}

// Event is a dispatch request submitted from outside the frame goroutine.
type Event struct {
	Type    EventType
	Entity  ir.EntityID // EventTrigger only
	Trigger ir.TriggerID
	Arg     ir.Value
	Force   bool
	Call    func(*Environment) // EventCall only
}

// TriggerEvent builds an EventTrigger.
func TriggerEvent(entity ir.EntityID, trigger ir.TriggerID, arg ir.Value) Event {
	return Event{Type: EventTrigger, Entity: entity, Trigger: trigger, Arg: arg}
}

// BroadcastEvent builds an EventBroadcast.
func BroadcastEvent(trigger ir.TriggerID, arg ir.Value) Event {
	return Event{Type: EventBroadcast, Trigger: trigger, Arg: arg}
}

// CallEvent builds an EventCall. fn may mutate tables since it runs
// between dispatches on the frame goroutine.
func CallEvent(fn func(*Environment)) Event {
	return Event{Type: EventCall, Call: fn}
}

// eventQueue is a thread-safe FIFO of dispatch requests.
//
// Producers (cron schedules, the reload watcher, signal handlers) enqueue
// from their own goroutines; the frame goroutine drains the queue at the
// start of every Tick.
//
// The signal channel lets Run wake early when work arrives between frames.
type eventQueue struct {
	mu     sync.Mutex
	events []Event
	closed bool
	signal chan struct{} // buffered, size 1
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]Event, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an event to the back of the queue.
// Returns false if the queue is closed.
func (q *eventQueue) Enqueue(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.events = append(q.events, e)

	// Non-blocking; the buffer coalesces repeated signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front event without blocking.
func (q *eventQueue) TryDequeue() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return Event{}, false
	}
	e := q.events[0]
	// Drop the slot's reference to Arg.
	q.events[0] = Event{}
	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}
	return e, true
}

// Drain removes and returns every queued event in FIFO order. Events
// enqueued while the caller processes the batch wait for the next drain.
func (q *eventQueue) Drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return nil
	}
	batch := q.events
	q.events = make([]Event, 0, cap(batch))
	return batch
}

// Wait returns a channel that signals when events may be available.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Close rejects further events and wakes waiters.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

func (q *eventQueue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
