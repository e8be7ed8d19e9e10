package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/FilamentGames/rulescript/internal/entity"
	"github.com/FilamentGames/rulescript/internal/ir"
	"github.com/FilamentGames/rulescript/internal/library"
)

// Environment owns the runtime rule tables of every entity, the execution
// scope pool and the frame clock.
//
// Thread-safety model:
//   - Enqueue(): safe from any goroutine
//   - everything else: frame goroutine only
type Environment struct {
	lib      *library.Library
	entities entity.Manager

	logger   *slog.Logger
	metrics  *Metrics
	observer Observer
	tokens   TokenGenerator
	clock    *Clock
	queue    *eventQueue
	guard    *dispatchGuard
	pool     *scopePool

	tables map[ir.EntityID]*RuleTable
	order  []ir.EntityID // table insertion order, the order Tick steps in

	// ctx is the context of the Tick in progress.
	ctx context.Context

	// configuration applied by options before the pool is built
	registerCount int
	plainScopes   int
	bankScopes    int
	maxDepth      int
	reentrancy    bool
}

// Option configures an Environment.
type Option func(*Environment)

// WithRegisterCount sets the size of register banks. Default: 8.
func WithRegisterCount(n int) Option {
	return func(env *Environment) {
		env.registerCount = n
	}
}

// WithScopePool sets how many plain and register-carrying scopes are
// preallocated. Defaults: 16 and 8.
func WithScopePool(plain, registered int) Option {
	return func(env *Environment) {
		env.plainScopes = plain
		env.bankScopes = registered
	}
}

// WithMaxDepth caps nested synchronous dispatch. Default: 32.
func WithMaxDepth(depth int) Option {
	return func(env *Environment) {
		env.maxDepth = depth
	}
}

// WithReentrancyGuard drops synchronous dispatch of an (entity, trigger)
// pair that is already being evaluated further up the stack. Off by
// default; the depth cap applies either way.
func WithReentrancyGuard(on bool) Option {
	return func(env *Environment) {
		env.reentrancy = on
	}
}

// WithMetrics registers environment metrics with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(env *Environment) {
		env.metrics = NewMetrics(reg)
	}
}

// WithObserver sets the observer that receives execution events.
func WithObserver(o Observer) Option {
	return func(env *Environment) {
		env.observer = o
	}
}

// WithTokenGenerator sets the dispatch token generator.
// Default: UUIDv7Generator. Use NewSequenceGenerator in tests.
func WithTokenGenerator(g TokenGenerator) Option {
	return func(env *Environment) {
		env.tokens = g
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(env *Environment) {
		env.logger = l
	}
}

// WithClock starts the environment at the clock's frame.
// Used when resuming from a snapshot.
func WithClock(c *Clock) Option {
	return func(env *Environment) {
		env.clock = c
	}
}

// New creates an Environment over lib and the host's entity manager.
func New(lib *library.Library, entities entity.Manager, opts ...Option) *Environment {
	env := &Environment{
		lib:           lib,
		entities:      entities,
		observer:      NopObserver{},
		tokens:        UUIDv7Generator{},
		queue:         newEventQueue(),
		tables:        make(map[ir.EntityID]*RuleTable),
		registerCount: DefaultRegisterCount,
		plainScopes:   DefaultPlainScopes,
		bankScopes:    DefaultRegisteredScopes,
		maxDepth:      DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(env)
	}

	if env.logger == nil {
		env.logger = slog.Default()
	}
	if env.metrics == nil {
		env.metrics = NewMetrics(nil)
	}
	if env.clock == nil {
		env.clock = NewClock()
	}
	if env.registerCount <= 0 {
		env.registerCount = DefaultRegisterCount
	}
	env.guard = newDispatchGuard(env.maxDepth, env.reentrancy)
	env.pool = newScopePool(env, env.plainScopes, env.bankScopes, env.registerCount)
	return env
}

// Library returns the method library.
func (env *Environment) Library() *library.Library { return env.lib }

// Entities returns the entity manager.
func (env *Environment) Entities() entity.Manager { return env.entities }

// Frame returns the current frame.
func (env *Environment) Frame() int64 { return env.clock.Current() }

// Logger returns the environment logger.
func (env *Environment) Logger() *slog.Logger { return env.logger }

func (env *Environment) context() context.Context {
	if env.ctx == nil {
		return context.Background()
	}
	return env.ctx
}

// SetTable assigns an authored table to e and returns its runtime table.
// The table is copied; its triggers replace e's previous registrations in
// the entity manager's listener registry and any running tasks of the
// previous table are stopped.
func (env *Environment) SetTable(e entity.Entity, t *ir.RuleTable) *RuleTable {
	t = t.Clone()
	for i := range t.Rules {
		t.Rules[i].RecomputeFlags()
	}
	t.RecomputeTriggers()

	id := e.ID()
	if old, ok := env.tables[id]; ok {
		old.detach()
		env.entities.DeregisterTriggers(e, old.table.UniqueTriggers)
	} else {
		env.order = append(env.order, id)
	}

	rt := newRuleTable(env, e, t)
	env.tables[id] = rt
	env.entities.RegisterTriggers(e, t.UniqueTriggers)

	env.logger.Debug("rule table assigned",
		"entity", e.Key(),
		"table", t.Name,
		"rules", len(t.Rules),
		"triggers", len(t.UniqueTriggers),
	)
	return rt
}

// Table returns the runtime table of the entity with id, or nil.
func (env *Environment) Table(id ir.EntityID) *RuleTable {
	return env.tables[id]
}

// Tables returns the runtime tables in assignment order.
func (env *Environment) Tables() []*RuleTable {
	out := make([]*RuleTable, 0, len(env.order))
	for _, id := range env.order {
		out = append(out, env.tables[id])
	}
	return out
}

// RemoveTable stops the entity's tasks and deregisters its triggers.
func (env *Environment) RemoveTable(id ir.EntityID) bool {
	rt, ok := env.tables[id]
	if !ok {
		return false
	}
	rt.detach()
	env.entities.DeregisterTriggers(rt.owner, rt.table.UniqueTriggers)
	delete(env.tables, id)
	env.order = slices.DeleteFunc(env.order, func(x ir.EntityID) bool { return x == id })
	return true
}

// Trigger dispatches trigger to e and returns the number of rules that
// fired. Locked entities ignore the trigger unless force is set.
func (env *Environment) Trigger(e entity.Entity, trigger ir.TriggerID, arg ir.Value, force bool) int {
	return env.dispatch(env.context(), e, trigger, arg, force, env.tokens.Generate())
}

// Broadcast dispatches trigger to every entity listening for it.
func (env *Environment) Broadcast(trigger ir.TriggerID, arg ir.Value, force bool) int {
	return env.broadcast(env.context(), trigger, arg, force, env.tokens.Generate())
}

func (env *Environment) broadcast(ctx context.Context, trigger ir.TriggerID, arg ir.Value, force bool, token string) int {
	env.metrics.dispatches.WithLabelValues(EventBroadcast.String()).Inc()
	fired := 0
	for _, e := range env.entities.EntitiesForTrigger(trigger) {
		fired += env.dispatch(ctx, e, trigger, arg, force, token)
	}
	return fired
}

func (env *Environment) dispatch(ctx context.Context, e entity.Entity, trigger ir.TriggerID, arg ir.Value, force bool, token string) int {
	if e == nil {
		return 0
	}
	env.metrics.dispatches.WithLabelValues(EventTrigger.String()).Inc()
	rt := env.tables[e.ID()]
	if rt == nil {
		return 0
	}

	if err := env.guard.enter(e.ID(), trigger); err != nil {
		reason, level := "depth", slog.LevelError
		if IsReentrantError(err) {
			reason, level = "reentrant", slog.LevelWarn
		}
		env.metrics.guardDrops.WithLabelValues(reason).Inc()
		env.logger.Log(ctx, level, "dispatch dropped",
			"entity", e.Key(),
			"trigger", trigger.String(),
			"token", token,
			"error", err,
		)
		return 0
	}
	defer env.guard.leave(e.ID(), trigger)

	return rt.Evaluate(ctx, trigger, arg, force, token)
}

// Enqueue submits a dispatch request to be processed at the start of the
// next Tick. Safe from any goroutine. Returns false after Close.
func (env *Environment) Enqueue(ev Event) bool {
	return env.queue.Enqueue(ev)
}

// Pending returns the number of queued events.
func (env *Environment) Pending() int {
	return env.queue.Len()
}

// Tick advances the frame, processes queued events and steps every task
// launched in an earlier frame once. Tasks launched while draining the
// queue ran their first step there and wait for the next Tick.
func (env *Environment) Tick(ctx context.Context) {
	start := time.Now()
	env.ctx = ctx
	defer func() { env.ctx = nil }()

	frame := env.clock.Next()
	for _, ev := range env.queue.Drain() {
		if err := env.processEvent(ctx, ev); err != nil {
			env.logger.Warn("queued event dropped",
				"type", ev.Type.String(),
				"trigger", ev.Trigger.String(),
				"error", err,
			)
		}
	}

	for _, id := range slices.Clone(env.order) {
		if rt := env.tables[id]; rt != nil {
			rt.step(ctx, frame)
		}
	}

	env.metrics.runningTasks.Set(float64(env.Running()))
	env.metrics.tickDuration.Observe(time.Since(start).Seconds())
}

func (env *Environment) processEvent(ctx context.Context, ev Event) error {
	switch ev.Type {
	case EventTrigger:
		e := env.entities.EntityWithID(ev.Entity)
		if e == nil {
			return &RuntimeError{
				Code:    ErrCodeUnknownEntity,
				Message: "queued trigger names an unknown entity",
				Entity:  ev.Entity.String(),
				Trigger: ev.Trigger.String(),
			}
		}
		env.dispatch(ctx, e, ev.Trigger, ev.Arg, ev.Force, env.tokens.Generate())
		return nil
	case EventBroadcast:
		env.broadcast(ctx, ev.Trigger, ev.Arg, ev.Force, env.tokens.Generate())
		return nil
	case EventCall:
		if ev.Call == nil {
			return fmt.Errorf("call event without a function")
		}
		ev.Call(env)
		return nil
	default:
		return fmt.Errorf("unknown event type: %d", ev.Type)
	}
}

// Running returns the number of running tasks across all tables.
func (env *Environment) Running() int {
	n := 0
	for _, rt := range env.tables {
		n += rt.Running()
	}
	return n
}

// Run ticks every interval until ctx is cancelled or Close is called.
// Must be called from exactly one goroutine, which becomes the frame
// goroutine.
func (env *Environment) Run(ctx context.Context, interval time.Duration) error {
	env.logger.Info("environment starting",
		"interval", interval.String(),
		"tables", len(env.tables),
	)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			env.logger.Info("environment stopping: context cancelled",
				"frame", env.Frame(),
			)
			env.queue.Close()
			return ctx.Err()
		case <-ticker.C:
			env.Tick(ctx)
			if env.queue.isClosed() {
				env.logger.Info("environment stopping: queue closed",
					"frame", env.Frame(),
				)
				return nil
			}
		}
	}
}

// Close rejects further queued events and makes Run return after its
// current frame.
func (env *Environment) Close() {
	env.queue.Close()
}
