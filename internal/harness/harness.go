package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/FilamentGames/rulescript/internal/builtin"
	"github.com/FilamentGames/rulescript/internal/compiler"
	"github.com/FilamentGames/rulescript/internal/engine"
	"github.com/FilamentGames/rulescript/internal/entity"
	"github.com/FilamentGames/rulescript/internal/ir"
	"github.com/FilamentGames/rulescript/internal/library"
	"github.com/FilamentGames/rulescript/internal/store"
)

// Harness runs one scenario against the real environment over an
// in-memory world and an in-memory snapshot store.
type Harness struct {
	scenario *Scenario
	lib      *library.Library
	world    *entity.World
	env      *engine.Environment
	store    *store.Store
	result   *Result
	logger   *slog.Logger
}

// Option configures a run.
type Option func(*Harness)

// WithLogger routes engine and library logs to l. Runs are silent by
// default.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = l
	}
}

// Run executes a scenario and returns the result. The returned error
// reports a scenario that could not be executed; failed assertions are
// reported through Result.Errors.
//
// Execution flow:
//  1. Open a fresh in-memory snapshot store
//  2. Build the demonstration library and compile the rule tables
//  3. Spawn entities and assign their tables
//  4. Execute the steps in order
//  5. Evaluate assertions against the trace and final state
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	h := &Harness{
		scenario: scenario,
		result:   NewResult(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()
	h.store = st

	lib, err := builtin.New(builtin.WithLogger(h.logger), builtin.WithLogSink(h.logLine))
	if err != nil {
		return nil, fmt.Errorf("failed to build library: %w", err)
	}
	h.lib = lib

	tables, err := LoadTables(scenario.Rules)
	if err != nil {
		return nil, err
	}

	h.world = entity.NewWorld()
	envOpts := []engine.Option{
		engine.WithLogger(h.logger),
		engine.WithObserver(&tracer{lib: lib, result: h.result}),
		engine.WithTokenGenerator(engine.NewSequenceGenerator(scenario.Name)),
	}
	if scenario.Registers > 0 {
		envOpts = append(envOpts, engine.WithRegisterCount(scenario.Registers))
	}
	h.env = engine.New(lib, h.world, envOpts...)

	if err := h.spawn(tables); err != nil {
		return nil, err
	}

	ctx := context.Background()
	for i, step := range scenario.Steps {
		if err := h.execute(ctx, step); err != nil {
			return nil, fmt.Errorf("steps[%d] (%s): %w", i, step.Kind(), err)
		}
	}
	h.result.Frames = h.env.Frame()

	actx := &AssertionContext{World: h.world, Env: h.env}
	for _, msg := range EvaluateAssertions(h.result, scenario.Assertions, actx) {
		h.result.AddError(msg)
	}
	return h.result, nil
}

// LoadTables compiles every rule file or directory and indexes the
// tables by name. A table name defined twice is an error.
func LoadTables(paths []string) (map[string]*ir.RuleTable, error) {
	tables := make(map[string]*ir.RuleTable)
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("rules %s: %w", p, err)
		}
		var res *compiler.LoadResult
		var errs []error
		if info.IsDir() {
			res, errs = compiler.LoadDir(p, compiler.LoadModeCollectAll)
		} else {
			res, errs = compiler.LoadFile(p, compiler.LoadModeCollectAll)
		}
		if len(errs) > 0 {
			return nil, fmt.Errorf("rules %s: %w", p, errors.Join(errs...))
		}
		for _, t := range res.Tables {
			if _, dup := tables[t.Name]; dup {
				return nil, fmt.Errorf("rules %s: table %q defined twice", p, t.Name)
			}
			tables[t.Name] = t
		}
	}
	return tables, nil
}

func (h *Harness) spawn(tables map[string]*ir.RuleTable) error {
	for _, spec := range h.scenario.Entities {
		o, err := builtin.Spawn(h.world, entity.Spec{
			Key:    spec.Key,
			Name:   spec.Name,
			Prefab: spec.Prefab,
			Type:   spec.Type,
			Groups: spec.Groups,
		}, spec.Health)
		if err != nil {
			return fmt.Errorf("spawn %s: %w", spec.Key, err)
		}
		if spec.Inventory != nil {
			o.Attach(builtin.ComponentInventory, &builtin.Inventory{Items: append([]string(nil), spec.Inventory...)})
		}
		o.SetLocked(spec.Locked)

		if spec.Table == "" {
			continue
		}
		t, ok := tables[spec.Table]
		if !ok {
			return fmt.Errorf("entity %s: unknown table %q", spec.Key, spec.Table)
		}
		h.env.SetTable(o, t)
	}
	return nil
}

func (h *Harness) object(key string) (*entity.Object, error) {
	o := h.world.Object(key)
	if o == nil {
		return nil, fmt.Errorf("unknown entity %q", key)
	}
	return o, nil
}

func (h *Harness) rules(key string) (*engine.RuleTable, error) {
	o, err := h.object(key)
	if err != nil {
		return nil, err
	}
	rt := h.env.Table(o.ID())
	if rt == nil {
		return nil, fmt.Errorf("entity %q owns no rule table", key)
	}
	return rt, nil
}

func (h *Harness) execute(ctx context.Context, step Step) error {
	switch step.Kind() {
	case StepTrigger:
		o, err := h.object(step.Entity)
		if err != nil {
			return err
		}
		arg, err := parseArg(step.Arg)
		if err != nil {
			return err
		}
		h.env.Trigger(o, ir.TriggerIDOf(step.Trigger), arg, step.Force)

	case StepBroadcast:
		arg, err := parseArg(step.Arg)
		if err != nil {
			return err
		}
		h.env.Broadcast(ir.TriggerIDOf(step.Broadcast), arg, step.Force)

	case StepTick:
		for range step.Tick {
			h.env.Tick(ctx)
		}

	case StepEnable, StepDisable, StepStop:
		rt, err := h.rules(step.Entity)
		if err != nil {
			return err
		}
		switch {
		case step.Enable != "":
			rt.EnableRule(step.Enable)
		case step.Disable != "":
			rt.DisableRule(step.Disable)
		default:
			rt.StopRule(step.Stop)
		}

	case StepPersist:
		snaps, err := h.env.CaptureAll()
		if err != nil {
			return err
		}
		return h.store.SaveSnapshot(ctx, step.Persist, h.env.Frame(), snaps)

	case StepRestore:
		snap, err := h.store.LoadSnapshot(ctx, step.Restore)
		if err != nil {
			return err
		}
		var errs []error
		for _, e := range snap.Entities {
			errs = append(errs, h.env.Apply(e))
		}
		return errors.Join(errs...)

	case StepSetHealth:
		o, err := h.object(step.Entity)
		if err != nil {
			return err
		}
		hp, ok := o.Component(builtin.ComponentHealth).(*builtin.Health)
		if !ok {
			return fmt.Errorf("entity %q has no health", step.Entity)
		}
		hp.Current = *step.SetHealth

	default:
		return fmt.Errorf("step has no single action")
	}
	return nil
}

func parseArg(raw any) (ir.Value, error) {
	if raw == nil {
		return nil, nil
	}
	v, err := ir.ParseValue(raw)
	if err != nil {
		return nil, fmt.Errorf("arg: %w", err)
	}
	return v, nil
}

func (h *Harness) logLine(self entity.Entity, text string) {
	h.result.add(TraceEvent{
		Type:   EventLog,
		Frame:  h.env.Frame(),
		Entity: self.Key(),
		Text:   text,
	})
}

// keyOf returns e's key, or "" for nil.
func keyOf(e entity.Entity) string {
	if e == nil {
		return ""
	}
	return e.Key()
}

// tracer records engine observer events into the result trace.
type tracer struct {
	lib    *library.Library
	result *Result
}

var _ engine.Observer = (*tracer)(nil)

func (t *tracer) RuleFired(e engine.RuleFiredEvent) {
	ev := TraceEvent{
		Type:    EventFired,
		Frame:   e.Frame,
		Entity:  keyOf(e.Owner),
		Rule:    e.Rule,
		Trigger: e.Trigger.String(),
	}
	if info, ok := t.lib.FindTrigger(e.Trigger); ok {
		ev.Trigger = info.Key
	}
	if e.Arg != nil && ir.KindOf(e.Arg) != ir.KindNull {
		ev.Arg = ir.ValueToAny(e.Arg)
	}
	t.result.add(ev)
}

func (t *tracer) ActionPerformed(e engine.ActionEvent) {
	ev := TraceEvent{
		Type:   EventAction,
		Frame:  e.Frame,
		Entity: keyOf(e.Owner),
		Rule:   e.Rule,
		Action: e.Action,
		Status: e.Result.Status.String(),
	}
	ev.Target = keyOf(e.Result.Target)
	t.result.add(ev)
}

func (t *tracer) TaskFinished(e engine.TaskEvent) {
	typ := EventFinished
	if e.Stopped {
		typ = EventStopped
	}
	t.result.add(TraceEvent{
		Type:   typ,
		Frame:  e.Frame,
		Entity: keyOf(e.Owner),
		Rule:   e.Rule,
	})
}
