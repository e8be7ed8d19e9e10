package builtin

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FilamentGames/rulescript/internal/compiler"
	"github.com/FilamentGames/rulescript/internal/engine"
	"github.com/FilamentGames/rulescript/internal/entity"
	"github.com/FilamentGames/rulescript/internal/ir"
	"github.com/FilamentGames/rulescript/internal/library"
)

type fixture struct {
	world *entity.World
	env   *engine.Environment
	lines []string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{world: entity.NewWorld()}
	lib, err := New(
		WithLogger(discard),
		WithLogSink(func(self entity.Entity, text string) {
			f.lines = append(f.lines, self.Key()+": "+text)
		}),
	)
	require.NoError(t, err)
	f.env = engine.New(lib, f.world,
		engine.WithLogger(discard),
		engine.WithTokenGenerator(engine.NewSequenceGenerator("t")),
	)
	return f
}

func (f *fixture) spawn(t *testing.T, key string, hp int32, groups ...string) *entity.Object {
	t.Helper()
	o, err := Spawn(f.world, entity.Spec{Key: key, Type: "creature", Groups: groups}, hp)
	require.NoError(t, err)
	return o
}

// table compiles a CUE table body and assigns it to owner.
func (f *fixture) table(t *testing.T, owner entity.Entity, body string) {
	t.Helper()
	res, errs := compiler.LoadSource("rules.cue", []byte("table: t: "+body), compiler.LoadModeFailFast)
	require.Empty(t, errs)
	f.env.SetTable(owner, res.Tables[0])
}

func (f *fixture) trigger(e entity.Entity, key string, arg ir.Value) int {
	return f.env.Trigger(e, ir.TriggerIDOf(key), arg, false)
}

func TestNewRegistersDescriptors(t *testing.T) {
	lib, err := New()
	require.NoError(t, err)

	for _, key := range []string{TriggerStart, TriggerHit, TriggerUse, TriggerTimer, TriggerAlarm} {
		assert.NotNil(t, lib.Trigger(ir.TriggerIDOf(key)), key)
	}
	for _, key := range []string{"health", "name", "is_active", "group_count", "argument"} {
		assert.NotNil(t, lib.Query(ir.MethodIDOf(key)), key)
	}
	for _, key := range []string{"log", "damage", "heal", "wait", "set_register", "trigger",
		"broadcast", "enable_rule", "disable_rule", "stop_group"} {
		assert.NotNil(t, lib.Action(ir.MethodIDOf(key)), key)
	}

	health := lib.Component(ComponentHealth)
	require.NotNil(t, health)
	assert.NotNil(t, health.Field("current"))
	assert.NotNil(t, health.Field("max"))

	assert.True(t, lib.Query(ir.MethodIDOf("name")).Owner.IsAny())
	assert.True(t, lib.Action(ir.MethodIDOf("wait")).Owner.IsGlobal())
}

func TestAnyEntityDescriptorsMatchEveryEntity(t *testing.T) {
	lib, err := New()
	require.NoError(t, err)
	world := entity.NewWorld()
	door := world.MustSpawn(entity.Spec{Key: "door", Type: "door"})

	var keys []string
	for _, tr := range lib.Triggers(library.Filter{Scope: library.ScopeEntity(door)}) {
		keys = append(keys, tr.Key)
	}
	assert.Equal(t, []string{TriggerUse}, keys, "hit needs the health component")
}

func TestDamageAndHeal(t *testing.T) {
	f := newFixture(t)
	goblin := f.spawn(t, "goblin", 20)
	f.table(t, goblin, `rules: [{
		id: "hurt", trigger: "hit"
		actions: [{action: "damage", args: [{argument: true}]}]
	}, {
		id: "flee", trigger: "hit"
		conditions: [{query: {query: "health"}, op: "<", target: 10}]
		actions: [{action: "log", args: ["flee"]}]
	}, {
		id: "rest", trigger: "use"
		actions: [{action: "heal", args: [100]}]
	}]`)

	f.trigger(goblin, TriggerHit, ir.Int(15))
	h := goblin.Component(ComponentHealth).(*Health)
	assert.Equal(t, int32(5), h.Current)
	assert.Equal(t, []string{"goblin: flee"}, f.lines)

	f.trigger(goblin, TriggerHit, ir.Int(15))
	assert.Equal(t, int32(0), h.Current, "damage stops at zero")

	f.trigger(goblin, TriggerUse, nil)
	assert.Equal(t, int32(20), h.Current, "heal stops at max")
}

func TestWaitSuspendsAcrossFrames(t *testing.T) {
	f := newFixture(t)
	lever := f.spawn(t, "lever", 0)
	f.table(t, lever, `rules: [{
		id: "pull", trigger: "use"
		actions: [
			{action: "log", args: ["a"]},
			{action: "wait", args: [2]},
			{action: "log", args: ["b"]},
		]
	}]`)

	require.Equal(t, 1, f.trigger(lever, TriggerUse, nil))
	assert.Equal(t, []string{"lever: a"}, f.lines)

	ctx := context.Background()
	f.env.Tick(ctx)
	assert.True(t, f.env.Table(lever.ID()).IsRunning("pull"))
	assert.Equal(t, []string{"lever: a"}, f.lines)

	f.env.Tick(ctx)
	assert.False(t, f.env.Table(lever.ID()).IsRunning("pull"))
	assert.Equal(t, []string{"lever: a", "lever: b"}, f.lines)
}

func TestTriggerActionTargetsScope(t *testing.T) {
	f := newFixture(t)
	lever := f.spawn(t, "lever", 0)
	door := f.spawn(t, "door", 0)
	f.table(t, lever, `rules: [{
		id: "pull", trigger: "use"
		actions: [{
			action: "trigger"
			scope:  {type: "name", search: "do*"}
			args:   [{trigger: "alarm"}]
		}]
	}]`)
	f.table(t, door, `rules: [{
		id: "open", trigger: "alarm"
		actions: [{action: "log", args: ["open"]}]
	}]`)

	f.trigger(lever, TriggerUse, nil)
	assert.Equal(t, []string{"door: open"}, f.lines)
}

func TestBroadcastAction(t *testing.T) {
	f := newFixture(t)
	bell := f.spawn(t, "bell", 0)
	for _, key := range []string{"a", "b"} {
		e := f.spawn(t, key, 0)
		f.table(t, e, `rules: [{id: "wake", trigger: "alarm", actions: [{action: "log", args: ["awake"]}]}]`)
	}
	f.table(t, bell, `rules: [{
		id: "ring", trigger: "use"
		actions: [{action: "broadcast", args: [{trigger: "alarm"}]}]
	}]`)

	f.trigger(bell, TriggerUse, nil)
	assert.Equal(t, []string{"a: awake", "b: awake"}, f.lines)
}

func TestGroupCountSkipsInactive(t *testing.T) {
	f := newFixture(t)
	boss := f.spawn(t, "boss", 50)
	f.spawn(t, "e1", 5, "enemies")
	f.spawn(t, "e2", 5, "enemies")
	f.spawn(t, "e3", 5, "enemies").SetActive(false)
	f.table(t, boss, `rules: [{
		id: "count", trigger: "start"
		conditions: [{
			query:  {query: "group_count", scope: "global", args: [{group: "enemies"}]}
			target: 2
		}]
		actions: [{action: "log", args: ["two left"]}]
	}]`)

	assert.Equal(t, 1, f.env.Broadcast(ir.TriggerIDOf(TriggerStart), nil, false))
	assert.Equal(t, []string{"boss: two left"}, f.lines)
}

func TestRuleControlActions(t *testing.T) {
	f := newFixture(t)
	vault := f.spawn(t, "vault", 0)
	f.table(t, vault, `rules: [{
		id: "disarm", trigger: "use"
		actions: [{action: "disable_rule", args: ["trap*"]}]
	}, {
		id: "trap_a", trigger: "alarm"
		actions: [{action: "log", args: ["zap"]}]
	}, {
		id: "rearm", trigger: "timer"
		actions: [{action: "enable_rule", args: ["trap_a"]}]
	}]`)
	rules := f.env.Table(vault.ID())

	f.trigger(vault, TriggerUse, nil)
	assert.False(t, rules.IsEnabled("trap_a"))
	assert.Zero(t, f.trigger(vault, TriggerAlarm, nil))

	f.trigger(vault, TriggerTimer, ir.Int(1))
	assert.True(t, rules.IsEnabled("trap_a"))
	assert.Equal(t, 1, f.trigger(vault, TriggerAlarm, nil))
	assert.Equal(t, []string{"vault: zap"}, f.lines)
}

func TestStopGroupAction(t *testing.T) {
	f := newFixture(t)
	guard := f.spawn(t, "guard", 10)
	f.table(t, guard, `rules: [{
		id: "patrol", trigger: "start", group: "ai"
		actions: [{action: "wait", args: [10]}]
	}, {
		id: "halt", trigger: "use"
		actions: [{action: "stop_group", args: ["ai"]}]
	}]`)
	rules := f.env.Table(guard.ID())

	f.trigger(guard, TriggerStart, nil)
	require.True(t, rules.IsRunning("patrol"))
	f.trigger(guard, TriggerUse, nil)
	assert.False(t, rules.IsRunning("patrol"))
}

func TestSetRegister(t *testing.T) {
	f := newFixture(t)
	golem := f.spawn(t, "golem", 100)
	f.table(t, golem, `rules: [{
		id: "smash", trigger: "use"
		actions: [
			{action: "set_register", args: [0, 42]},
			{action: "damage", args: [{register: 0}]},
		]
	}, {
		id: "no_bank", trigger: "alarm"
		actions: [{action: "set_register", args: [0, 1]}]
	}]`)

	f.trigger(golem, TriggerUse, nil)
	assert.Equal(t, int32(58), golem.Component(ComponentHealth).(*Health).Current)

	assert.NotPanics(t, func() { f.trigger(golem, TriggerAlarm, nil) },
		"writing without a bank is reported, not fatal")
}

func TestInventoryPersistsThroughCustomPayload(t *testing.T) {
	f := newFixture(t)
	hero := f.spawn(t, "hero", 10)
	inv := &Inventory{}
	hero.Attach(ComponentInventory, inv)
	f.table(t, hero, `rules: [{
		id: "loot", trigger: "use"
		conditions: [{query: {query: "has_item", args: ["key"]}, target: false}]
		actions: [{action: "give", args: ["key"]}]
	}]`)

	f.trigger(hero, TriggerUse, nil)
	f.trigger(hero, TriggerUse, nil)
	assert.Equal(t, []string{"key"}, inv.Items, "the condition blocks a second key")

	snap, err := f.env.Capture(hero)
	require.NoError(t, err)
	cs := snap.Component(ComponentInventory)
	require.NotNil(t, cs)
	assert.JSONEq(t, `["key"]`, string(cs.Custom))

	inv.Items = nil
	hero.Component(ComponentHealth).(*Health).Current = 1
	require.NoError(t, f.env.Apply(snap))
	assert.Equal(t, []string{"key"}, inv.Items)
	assert.Equal(t, int32(10), hero.Component(ComponentHealth).(*Health).Current)
}

func TestInventoryRestoreRejectsGarbage(t *testing.T) {
	inv := &Inventory{Items: []string{"a"}}
	err := inv.RestoreCustom([]byte("{"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode inventory")
	assert.Equal(t, []string{"a"}, inv.Items)

	data, err := (&Inventory{}).PersistCustom()
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}
