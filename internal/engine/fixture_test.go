package engine

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/FilamentGames/rulescript/internal/entity"
	"github.com/FilamentGames/rulescript/internal/ir"
	"github.com/FilamentGames/rulescript/internal/library"
	"github.com/FilamentGames/rulescript/internal/routine"
)

type health struct {
	Current int32
	Max     int32
	// Delay adds frames to every hold on this entity.
	Delay int32
}

type notes struct {
	Text string
}

func (n *notes) PersistCustom() ([]byte, error) { return []byte(n.Text), nil }
func (n *notes) RestoreCustom(data []byte) error {
	n.Text = string(data)
	return nil
}

type recorder struct {
	lines []string
}

func (r *recorder) add(format string, args ...any) {
	r.lines = append(r.lines, fmt.Sprintf(format, args...))
}

func (r *recorder) reset() { r.lines = nil }

// testLibrary registers the methods the engine tests drive. rec collects
// everything actions do.
func testLibrary(rec *recorder) *library.Library {
	healthOf := func(c library.Call) *health { return c.Component.(*health) }

	return library.NewBuilder().
		WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))).
		Component(library.ComponentDef{
			Type: "health",
			Fields: []library.FieldDef{
				{
					Name: "current",
					Kind: ir.KindInt,
					Get:  func(c any) ir.Value { return ir.Int(c.(*health).Current) },
					Set: func(c any, v ir.Value) error {
						n, err := ir.AsInt(v)
						c.(*health).Current = n
						return err
					},
				},
				{
					Name: "max",
					Kind: ir.KindInt,
					Get:  func(c any) ir.Value { return ir.Int(c.(*health).Max) },
					Set: func(c any, v ir.Value) error {
						n, err := ir.AsInt(v)
						c.(*health).Max = n
						return err
					},
				},
			},
		}).
		Component(library.ComponentDef{Type: "notes"}).
		Group(library.GroupDef{Key: "enemies"}).
		Trigger(library.TriggerDef{Key: "hit", Owner: "health", Params: []library.ParamDef{{Name: "damage", Kind: ir.KindInt}}}).
		Trigger(library.TriggerDef{Key: "start"}).
		Trigger(library.TriggerDef{Key: "use"}).
		Trigger(library.TriggerDef{Key: "chain"}).
		Query(library.QueryDef{
			Key: "health", Owner: "health", Returns: ir.KindInt,
			Func: func(c library.Call) ir.Value { return ir.Int(healthOf(c).Current) },
		}).
		Query(library.QueryDef{
			Key: "arg", Returns: ir.KindInt,
			Func: func(c library.Call) ir.Value { return c.Scope.Argument() },
		}).
		Query(library.QueryDef{
			Key: "self", Returns: ir.KindScope,
			Func: func(c library.Call) ir.Value { return ir.Scope{EntityScope: ir.SelfScope()} },
		}).
		Query(library.QueryDef{
			Key: "echo", Returns: ir.KindInt,
			Params: []library.ParamDef{{Name: "value", Kind: ir.KindInt, Default: ir.Int(7)}},
			Func: func(c library.Call) ir.Value {
				rec.add("echo %s", ir.Format(c.Arg(0)))
				return c.Arg(0)
			},
		}).
		Query(library.QueryDef{
			Key: "key", Owner: "health", Returns: ir.KindString,
			Func: func(c library.Call) ir.Value { return ir.String(c.Target.Key()) },
		}).
		Action(library.ActionDef{
			Key:    "record",
			Params: []library.ParamDef{{Name: "text", Kind: ir.KindString}},
			Func: func(c library.Call) (ir.Value, routine.Routine) {
				rec.add("%s", c.StringArg(0))
				return nil, nil
			},
		}).
		Action(library.ActionDef{
			Key:    "damage",
			Owner:  "health",
			Params: []library.ParamDef{{Name: "amount", Kind: ir.KindInt, Default: ir.Int(1)}},
			Func: func(c library.Call) (ir.Value, routine.Routine) {
				h := healthOf(c)
				h.Current -= c.IntArg(0)
				rec.add("damage %s %d", c.Target.Key(), h.Current)
				return ir.Int(h.Current), nil
			},
		}).
		Action(library.ActionDef{
			Key:    "hold",
			Owner:  "health",
			Params: []library.ParamDef{{Name: "frames", Kind: ir.KindInt}},
			Func: func(c library.Call) (ir.Value, routine.Routine) {
				key := c.Target.Key()
				frames := int(c.IntArg(0) + healthOf(c).Delay)
				rec.add("hold %s", key)
				return nil, routine.Sequence(
					routine.Wait(frames),
					routine.Func(func(context.Context) bool {
						rec.add("release %s", key)
						return false
					}),
				)
			},
		}).
		Action(library.ActionDef{
			Key:    "set_register",
			Params: []library.ParamDef{{Name: "index", Kind: ir.KindInt}, {Name: "value", Kind: ir.KindInt}},
			Func: func(c library.Call) (ir.Value, routine.Routine) {
				c.Scope.SetRegister(int(c.IntArg(0)), c.Arg(1))
				return nil, nil
			},
		}).
		Action(library.ActionDef{
			Key:    "stop_group",
			Params: []library.ParamDef{{Name: "pattern", Kind: ir.KindString}},
			Func: func(c library.Call) (ir.Value, routine.Routine) {
				n := c.Scope.Rules(c.Scope.Self()).StopGroup(c.StringArg(0))
				return ir.Int(n), nil
			},
		}).
		Action(library.ActionDef{
			Key:    "retreat",
			Owner:  "health",
			Params: []library.ParamDef{{Name: "pattern", Kind: ir.KindString}},
			Func: func(c library.Call) (ir.Value, routine.Routine) {
				rec.add("retreat %s", c.Target.Key())
				n := c.Scope.Rules(c.Scope.Self()).StopGroup(c.StringArg(0))
				return ir.Int(n), nil
			},
		}).
		Action(library.ActionDef{
			Key:    "fire",
			Params: []library.ParamDef{{Name: "trigger", Kind: ir.KindTrigger}},
			Func: func(c library.Call) (ir.Value, routine.Routine) {
				trig, _ := ir.AsTrigger(c.Arg(0))
				return ir.Int(c.Scope.Trigger(c.Scope.Self(), trig, nil)), nil
			},
		}).
		MustBuild()
}

type fixture struct {
	world *entity.World
	rec   *recorder
	env   *Environment
	logs  *bytes.Buffer
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	rec := &recorder{}
	logs := &bytes.Buffer{}
	world := entity.NewWorld()
	opts = append([]Option{
		WithLogger(slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))),
		WithTokenGenerator(NewSequenceGenerator("t")),
	}, opts...)
	return &fixture{
		world: world,
		rec:   rec,
		env:   New(testLibrary(rec), world, opts...),
		logs:  logs,
	}
}

func (f *fixture) spawn(t *testing.T, key string, hp int32, groups ...string) *entity.Object {
	t.Helper()
	o, err := f.world.Spawn(entity.Spec{Key: key, Type: "creature", Groups: groups})
	require.NoError(t, err)
	o.Attach("health", &health{Current: hp, Max: hp})
	return o
}

func (f *fixture) tick(n int) {
	for range n {
		f.env.Tick(context.Background())
	}
}

func (f *fixture) trigger(e entity.Entity, key string, arg ir.Value) int {
	return f.env.Trigger(e, ir.TriggerIDOf(key), arg, false)
}

func (f *fixture) scope(self entity.Entity, arg ir.Value) *ExecutionScope {
	return NewExecutionScope(f.env, self, arg, DefaultRegisterCount)
}

func act(scope ir.EntityScope, key string, args ...ir.ResolvableValue) ir.Action {
	return ir.Action{
		Enabled: true,
		Method:  ir.EntityScopedIdentifier{Scope: scope, ID: ir.MethodIDOf(key)},
		Args:    args,
	}
}

func record(text string) ir.Action {
	return act(ir.GlobalScope(), "record", lit(ir.String(text)))
}

func cond(query ir.ResolvableValue, op ir.CompareOperator, target ir.ResolvableValue) ir.Condition {
	return ir.Condition{Enabled: true, Query: query, Operator: op, Target: target}
}

func query(scope ir.EntityScope, key string, args ...ir.NestedValue) ir.ResolvableValue {
	return ir.FromQuery(scope, ir.MethodIDOf(key), args...)
}

func lit(v ir.Value) ir.ResolvableValue { return ir.Literal(v) }

func rule(id, trigger string, conds []ir.Condition, actions ...ir.Action) ir.Rule {
	return ir.Rule{
		ID:         id,
		Enabled:    true,
		Trigger:    ir.TriggerIDOf(trigger),
		Conditions: conds,
		Actions:    actions,
	}
}
