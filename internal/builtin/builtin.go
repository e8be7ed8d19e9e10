// Package builtin registers a small demonstration library: two persisted
// components, a handful of triggers, and the queries and actions the CLI,
// the scenario harness and the tests author rules against.
//
// Methods that apply to whatever entity a scope resolves to are owned by
// library.AnyEntity. Methods that only make sense once per dispatch
// (wait, broadcast, group_count) are global.
package builtin

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"

	"github.com/FilamentGames/rulescript/internal/entity"
	"github.com/FilamentGames/rulescript/internal/ir"
	"github.com/FilamentGames/rulescript/internal/library"
	"github.com/FilamentGames/rulescript/internal/routine"
)

// Component types.
const (
	ComponentHealth    = "health"
	ComponentInventory = "inventory"
)

// Trigger keys.
const (
	TriggerStart = "start"
	TriggerHit   = "hit"
	TriggerUse   = "use"
	TriggerTimer = "timer"
	TriggerAlarm = "alarm"
)

// Health is the health component.
type Health struct {
	Current int32
	Max     int32
}

// Inventory is a component persisted through its custom payload only.
type Inventory struct {
	Items []string
}

// PersistCustom encodes the item list.
func (inv *Inventory) PersistCustom() ([]byte, error) {
	items := inv.Items
	if items == nil {
		items = []string{}
	}
	return json.Marshal(items)
}

// RestoreCustom replaces the item list.
func (inv *Inventory) RestoreCustom(data []byte) error {
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("decode inventory: %w", err)
	}
	inv.Items = items
	return nil
}

// LogSink receives the text of every log action together with the entity
// whose rule performed it.
type LogSink func(self entity.Entity, text string)

type options struct {
	logger *slog.Logger
	sink   LogSink
}

// Option configures the library.
type Option func(*options)

// WithLogger sets the logger the builder reports missing lookups to.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithLogSink routes log action output to sink in addition to the scope
// logger.
func WithLogSink(sink LogSink) Option {
	return func(o *options) {
		o.sink = sink
	}
}

// New builds the demonstration library.
func New(opts ...Option) (*library.Library, error) {
	return Register(library.NewBuilder(), opts...).Build()
}

// Register adds the demonstration descriptors to b, for hosts that extend
// the library with methods of their own.
func Register(b *library.Builder, opts ...Option) *library.Builder {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger != nil {
		b = b.WithLogger(o.logger)
	}

	registerComponents(b)
	registerTriggers(b)
	registerQueries(b)
	registerActions(b, o)
	return b
}

func registerComponents(b *library.Builder) {
	b.Component(library.ComponentDef{
		Type:        ComponentHealth,
		Description: "Hit points with an upper bound.",
		Fields: []library.FieldDef{
			{
				Name: "current",
				Kind: ir.KindInt,
				Get:  func(c any) ir.Value { return ir.Int(c.(*Health).Current) },
				Set: func(c any, v ir.Value) error {
					n, err := ir.AsInt(v)
					if err != nil {
						return err
					}
					c.(*Health).Current = n
					return nil
				},
			},
			{
				Name: "max",
				Kind: ir.KindInt,
				Get:  func(c any) ir.Value { return ir.Int(c.(*Health).Max) },
				Set: func(c any, v ir.Value) error {
					n, err := ir.AsInt(v)
					if err != nil {
						return err
					}
					c.(*Health).Max = n
					return nil
				},
			},
		},
	})
	b.Component(library.ComponentDef{
		Type:        ComponentInventory,
		Description: "Named items carried by the entity.",
	})
}

func registerTriggers(b *library.Builder) {
	b.Trigger(library.TriggerDef{Key: TriggerStart, Description: "Raised once when the world starts."})
	b.Trigger(library.TriggerDef{
		Key:         TriggerHit,
		Owner:       ComponentHealth,
		Description: "Raised when the entity takes damage.",
		Params:      []library.ParamDef{{Name: "damage", Kind: ir.KindInt}},
	})
	b.Trigger(library.TriggerDef{Key: TriggerUse, Owner: library.AnyEntity, Description: "Raised when the entity is used."})
	b.Trigger(library.TriggerDef{
		Key:         TriggerTimer,
		Description: "Raised by schedules.",
		Params:      []library.ParamDef{{Name: "count", Kind: ir.KindInt}},
	})
	b.Trigger(library.TriggerDef{Key: TriggerAlarm, Description: "Raised by alarms and other rules."})
}

func healthOf(c library.Call) *Health { return c.Component.(*Health) }

func registerQueries(b *library.Builder) {
	b.Query(library.QueryDef{
		Key: "health", Owner: ComponentHealth, Returns: ir.KindInt,
		Description: "Current hit points.",
		Func:        func(c library.Call) ir.Value { return ir.Int(healthOf(c).Current) },
	})
	b.Query(library.QueryDef{
		Key: "max_health", Owner: ComponentHealth, Returns: ir.KindInt,
		Func: func(c library.Call) ir.Value { return ir.Int(healthOf(c).Max) },
	})
	b.Query(library.QueryDef{
		Key: "name", Owner: library.AnyEntity, Returns: ir.KindString,
		Func: func(c library.Call) ir.Value { return ir.String(c.Target.Name()) },
	})
	b.Query(library.QueryDef{
		Key: "is_active", Owner: library.AnyEntity, Returns: ir.KindBool,
		Func: func(c library.Call) ir.Value { return ir.Bool(c.Target.Active()) },
	})
	b.Query(library.QueryDef{
		Key: "group_count", Returns: ir.KindInt,
		Description: "Number of active entities in a group.",
		Params:      []library.ParamDef{{Name: "group", Kind: ir.KindGroup}},
		Func: func(c library.Call) ir.Value {
			g, err := ir.AsGroup(c.Arg(0))
			if err != nil {
				return ir.Int(0)
			}
			n := 0
			for e := range c.Scope.Entities().EntitiesWithGroup(g) {
				if e.Active() {
					n++
				}
			}
			return ir.Int(int32(n))
		},
	})
	b.Query(library.QueryDef{
		Key: "argument", Returns: ir.KindInt,
		Description: "The argument of the trigger being evaluated.",
		Func:        func(c library.Call) ir.Value { return c.Scope.Argument() },
	})
	b.Query(library.QueryDef{
		Key: "item_count", Owner: ComponentInventory, Returns: ir.KindInt,
		Func: func(c library.Call) ir.Value { return ir.Int(int32(len(c.Component.(*Inventory).Items))) },
	})
	b.Query(library.QueryDef{
		Key: "has_item", Owner: ComponentInventory, Returns: ir.KindBool,
		Params: []library.ParamDef{{Name: "item", Kind: ir.KindString}},
		Func: func(c library.Call) ir.Value {
			return ir.Bool(slices.Contains(c.Component.(*Inventory).Items, c.StringArg(0)))
		},
	})
}

func registerActions(b *library.Builder, o *options) {
	b.Action(library.ActionDef{
		Key:    "log",
		Params: []library.ParamDef{{Name: "text", Kind: ir.KindString}},
		Func: func(c library.Call) (ir.Value, routine.Routine) {
			self := c.Scope.Self()
			text := c.StringArg(0)
			c.Scope.Logger().Info("rule log", "entity", self.Key(), "text", text)
			if o.sink != nil {
				o.sink(self, text)
			}
			return nil, nil
		},
	})
	b.Action(library.ActionDef{
		Key: "damage", Owner: ComponentHealth, Returns: ir.KindInt,
		Params: []library.ParamDef{{Name: "amount", Kind: ir.KindInt, Default: ir.Int(1)}},
		Func: func(c library.Call) (ir.Value, routine.Routine) {
			h := healthOf(c)
			h.Current = max(h.Current-c.IntArg(0), 0)
			return ir.Int(h.Current), nil
		},
	})
	b.Action(library.ActionDef{
		Key: "heal", Owner: ComponentHealth, Returns: ir.KindInt,
		Params: []library.ParamDef{{Name: "amount", Kind: ir.KindInt, Default: ir.Int(1)}},
		Func: func(c library.Call) (ir.Value, routine.Routine) {
			h := healthOf(c)
			h.Current = min(h.Current+c.IntArg(0), h.Max)
			return ir.Int(h.Current), nil
		},
	})
	b.Action(library.ActionDef{
		Key:         "wait",
		Description: "Suspends the rule for a number of frames.",
		Params:      []library.ParamDef{{Name: "frames", Kind: ir.KindInt, Default: ir.Int(1)}},
		Func: func(c library.Call) (ir.Value, routine.Routine) {
			return nil, routine.Wait(int(c.IntArg(0)))
		},
	})
	b.Action(library.ActionDef{
		Key: "set_register",
		Params: []library.ParamDef{
			{Name: "index", Kind: ir.KindInt},
			{Name: "value", Kind: ir.KindInt},
		},
		Func: func(c library.Call) (ir.Value, routine.Routine) {
			i := int(c.IntArg(0))
			if i < 0 || i >= c.Scope.RegisterCount() {
				c.Scope.Logger().Warn("set_register out of range",
					"index", i,
					"registers", c.Scope.RegisterCount(),
				)
				return ir.Invalid{}, nil
			}
			c.Scope.SetRegister(i, c.Arg(1))
			return nil, nil
		},
	})
	b.Action(library.ActionDef{
		Key: "trigger", Owner: library.AnyEntity, Returns: ir.KindInt,
		Description: "Dispatches a trigger to every target.",
		Params: []library.ParamDef{
			{Name: "trigger", Kind: ir.KindTrigger},
			{Name: "argument", Kind: ir.KindInt},
		},
		Func: func(c library.Call) (ir.Value, routine.Routine) {
			trig, err := ir.AsTrigger(c.Arg(0))
			if err != nil {
				return ir.Invalid{}, nil
			}
			return ir.Int(int32(c.Scope.Trigger(c.Target, trig, c.Arg(1)))), nil
		},
	})
	b.Action(library.ActionDef{
		Key: "broadcast", Returns: ir.KindInt,
		Params: []library.ParamDef{
			{Name: "trigger", Kind: ir.KindTrigger},
			{Name: "argument", Kind: ir.KindInt},
		},
		Func: func(c library.Call) (ir.Value, routine.Routine) {
			trig, err := ir.AsTrigger(c.Arg(0))
			if err != nil {
				return ir.Invalid{}, nil
			}
			return ir.Int(int32(c.Scope.Broadcast(trig, c.Arg(1)))), nil
		},
	})
	b.Action(library.ActionDef{
		Key: "give", Owner: ComponentInventory,
		Params: []library.ParamDef{{Name: "item", Kind: ir.KindString}},
		Func: func(c library.Call) (ir.Value, routine.Routine) {
			inv := c.Component.(*Inventory)
			inv.Items = append(inv.Items, c.StringArg(0))
			return nil, nil
		},
	})

	control := func(key string, apply func(library.RuleController, string) int) {
		b.Action(library.ActionDef{
			Key: key, Owner: library.AnyEntity, Returns: ir.KindInt,
			Params: []library.ParamDef{{Name: "pattern", Kind: ir.KindString}},
			Func: func(c library.Call) (ir.Value, routine.Routine) {
				rules := c.Scope.Rules(c.Target)
				if rules == nil {
					return ir.Int(0), nil
				}
				return ir.Int(int32(apply(rules, c.StringArg(0)))), nil
			},
		})
	}
	control("enable_rule", library.RuleController.EnableRule)
	control("disable_rule", library.RuleController.DisableRule)
	control("stop_rule", library.RuleController.StopRule)
	control("enable_group", library.RuleController.EnableGroup)
	control("disable_group", library.RuleController.DisableGroup)
	control("stop_group", library.RuleController.StopGroup)
}

// Spawn creates an entity carrying the components the demonstration
// methods need. hp <= 0 leaves the health component off.
func Spawn(w *entity.World, spec entity.Spec, hp int32) (*entity.Object, error) {
	o, err := w.Spawn(spec)
	if err != nil {
		return nil, err
	}
	if hp > 0 {
		o.Attach(ComponentHealth, &Health{Current: hp, Max: hp})
	}
	return o, nil
}
