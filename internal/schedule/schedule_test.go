package schedule

import (
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FilamentGames/rulescript/internal/config"
	"github.com/FilamentGames/rulescript/internal/engine"
	"github.com/FilamentGames/rulescript/internal/ir"
)

type queue struct {
	mu     sync.Mutex
	events []engine.Event
	closed bool
}

func (q *queue) Enqueue(ev engine.Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.events = append(q.events, ev)
	return true
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

func quiet() Option {
	return WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestJobEvent(t *testing.T) {
	broadcast := Job{Trigger: ir.TriggerIDOf("timer"), Arg: ir.Int(2)}.Event()
	assert.Equal(t, engine.EventBroadcast, broadcast.Type)
	assert.Equal(t, ir.Int(2), broadcast.Arg)

	direct := Job{Trigger: ir.TriggerIDOf("use"), Entity: ir.EntityIDOf("door")}.Event()
	assert.Equal(t, engine.EventTrigger, direct.Type)
	assert.Equal(t, ir.EntityIDOf("door"), direct.Entity)
}

func TestJobFromConfig(t *testing.T) {
	j, err := JobFromConfig(config.ScheduleConfig{
		Name: "tick", Cron: "@every 1s", Trigger: "timer", Entity: "clock", Arg: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, ir.TriggerIDOf("timer"), j.Trigger)
	assert.Equal(t, ir.EntityIDOf("clock"), j.Entity)
	assert.Equal(t, ir.Int(3), j.Arg)

	j, err = JobFromConfig(config.ScheduleConfig{Name: "bare", Cron: "@hourly", Trigger: "alarm"})
	require.NoError(t, err)
	assert.Zero(t, j.Entity)
	assert.Equal(t, ir.Null{}, j.Arg)

	_, err = JobFromConfig(config.ScheduleConfig{Name: "bad", Arg: []any{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schedule bad: arg")
}

func TestSchedulerAddRemove(t *testing.T) {
	s := New(&queue{}, quiet())

	require.NoError(t, s.Add(Job{Name: "a", Spec: "@hourly"}))
	require.NoError(t, s.Add(Job{Name: "b", Spec: "*/5 * * * *"}))

	err := s.Add(Job{Name: "a", Spec: "@daily"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")

	err = s.Add(Job{Name: "c", Spec: "sometimes"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid cron schedule")

	require.Error(t, s.Add(Job{Spec: "@daily"}))

	names := s.Names()
	sort.Strings(names)
	assert.Equal(t, []string{"a", "b"}, names)

	assert.True(t, s.Remove("a"))
	assert.False(t, s.Remove("a"))
	assert.True(t, s.Next("a").IsZero())
}

func TestSchedulerFire(t *testing.T) {
	q := &queue{}
	s := New(q, quiet())
	j := Job{Name: "ring", Trigger: ir.TriggerIDOf("alarm")}

	assert.True(t, s.Fire(j))
	require.Equal(t, 1, q.len())
	assert.Equal(t, engine.EventBroadcast, q.events[0].Type)

	q.closed = true
	assert.False(t, s.Fire(j))
	assert.Equal(t, 1, q.len())
}

func TestSchedulerRunsJobs(t *testing.T) {
	q := &queue{}
	s := New(q, quiet(), WithLocation(time.UTC))
	require.NoError(t, s.Add(Job{Name: "fast", Spec: "@every 1s", Trigger: ir.TriggerIDOf("timer")}))

	s.Start()
	s.Start()
	assert.True(t, s.IsRunning())
	assert.False(t, s.Next("fast").IsZero())

	require.Eventually(t, func() bool { return q.len() > 0 }, 5*time.Second, 50*time.Millisecond)

	s.Stop()
	s.Stop()
	assert.False(t, s.IsRunning())
}
