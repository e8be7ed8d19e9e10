package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FilamentGames/rulescript/internal/entity"
	"github.com/FilamentGames/rulescript/internal/ir"
	"github.com/FilamentGames/rulescript/internal/routine"
)

func TestPerformAction_Statuses(t *testing.T) {
	f := newFixture(t)
	goblin := f.spawn(t, "goblin", 10)
	sleeping := f.spawn(t, "sleeping", 10).SetActive(false)
	rock := f.world.MustSpawn(entity.Spec{Key: "rock", Type: "prop"})
	sc := f.scope(goblin, nil)

	tests := []struct {
		name   string
		action ir.Action
		want   ActionStatus
		target entity.Entity
	}{
		{"returned", act(ir.SelfScope(), "damage", lit(ir.Int(3))), StatusReturned, goblin},
		{"iterator", act(ir.SelfScope(), "hold", lit(ir.Int(1))), StatusIterator, goblin},
		{"inactive", act(ir.IDScope(sleeping.ID()), "damage"), StatusInactive, sleeping},
		{"no component", act(ir.IDScope(rock.ID()), "damage"), StatusInvalidNoComponent, rock},
		{"no entity", act(ir.IDScope(ir.EntityIDOf("missing")), "damage"), StatusInvalidNoEntity, nil},
		{"unknown action", act(ir.SelfScope(), "explode"), StatusInvalid, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := sc.PerformAction(tt.action)
			require.Len(t, results, 1)
			assert.Equal(t, tt.want, results[0].Status)
			assert.True(t, entity.Same(tt.target, results[0].Target))
		})
	}

	assert.Equal(t, int32(7), goblin.Component("health").(*health).Current)
}

func TestPerformAction_DefaultsAndSharedArguments(t *testing.T) {
	f := newFixture(t)
	f.spawn(t, "a", 10, "enemies")
	f.spawn(t, "b", 10, "enemies")
	sc := f.scope(f.world.Global(), nil)

	// Omitted argument falls back to the declared default of 1.
	results := sc.PerformAction(act(ir.GroupScope(ir.GroupIDOf("enemies")), "damage"))
	require.Len(t, results, 2)
	assert.Equal(t, ir.Int(9), results[0].Value)
	assert.Equal(t, ir.Int(9), results[1].Value)

	// The argument query runs once, not once per target.
	f.rec.reset()
	amount := query(ir.GlobalScope(), "echo", lit(ir.Int(4)).Nested())
	sc.PerformAction(act(ir.GroupScope(ir.GroupIDOf("enemies")), "damage", amount))
	assert.Equal(t, []string{"echo 4", "damage a 5", "damage b 5"}, f.rec.lines)
}

func TestPerformAction_GlobalRunsOnce(t *testing.T) {
	f := newFixture(t)
	f.spawn(t, "a", 10, "enemies")
	f.spawn(t, "b", 10, "enemies")
	sc := f.scope(f.world.Global(), nil)

	results := sc.PerformAction(act(ir.GroupScope(ir.GroupIDOf("enemies")), "record", lit(ir.String("once"))))
	require.Len(t, results, 1)
	assert.True(t, entity.Same(f.world.Global(), results[0].Target))
	assert.Equal(t, []string{"once"}, f.rec.lines)
}

func TestPerformActions_GroupFanOutJoins(t *testing.T) {
	f := newFixture(t)
	for i, key := range []string{"a", "b", "c"} {
		f.spawn(t, key, 10, "enemies").Component("health").(*health).Delay = int32(i)
	}
	sc := f.scope(f.world.Global(), nil)
	ctx := context.Background()

	r := sc.PerformActions([]ir.Action{
		act(ir.GroupScope(ir.GroupIDOf("enemies")), "hold", lit(ir.Int(1))),
		record("after"),
	})

	// First step starts all three holds together.
	require.True(t, r.Next(ctx))
	assert.Equal(t, []string{"hold a", "hold b", "hold c"}, f.rec.lines)

	require.True(t, r.Next(ctx))
	assert.Equal(t, "release a", f.rec.lines[len(f.rec.lines)-1])
	require.True(t, r.Next(ctx))
	assert.Equal(t, "release b", f.rec.lines[len(f.rec.lines)-1])
	assert.NotContains(t, f.rec.lines, "after", "next action must wait for every target")

	require.False(t, r.Next(ctx))
	assert.Equal(t, []string{
		"hold a", "hold b", "hold c",
		"release a", "release b", "release c",
		"after",
	}, f.rec.lines)
}

func TestPerformActions_InstantActionsShareAStep(t *testing.T) {
	f := newFixture(t)
	sc := f.scope(f.world.Global(), nil)

	disabled := record("skipped")
	disabled.Enabled = false

	steps := routine.Run(context.Background(), sc.PerformActions([]ir.Action{
		record("one"), disabled, record("two"),
	}), 0)

	assert.Equal(t, 1, steps)
	assert.Equal(t, []string{"one", "two"}, f.rec.lines)
}

func TestPerformActions_StopsWhenScopeReleased(t *testing.T) {
	f := newFixture(t)
	goblin := f.spawn(t, "goblin", 10)
	sc := f.scope(goblin, nil)
	ctx := context.Background()

	r := sc.PerformActions([]ir.Action{
		act(ir.SelfScope(), "hold", lit(ir.Int(5))),
		record("never"),
	})
	require.True(t, r.Next(ctx))

	sc.reset()
	assert.False(t, r.Next(ctx))
	assert.NotContains(t, f.rec.lines, "never")
}

func TestPerformAction_SelfStopEndsFanOut(t *testing.T) {
	log := &eventLog{}
	f := newFixture(t, WithObserver(log))
	a := f.spawn(t, "a", 10, "enemies")
	f.spawn(t, "b", 10, "enemies")

	retreat := rule("retreat", "use", nil,
		act(ir.GroupScope(ir.GroupIDOf("enemies")), "retreat", lit(ir.String("ai"))),
		record("after"),
	)
	retreat.RoutineGroup = "ai"
	f.env.SetTable(a, ir.NewRuleTable("t", retreat))

	require.NotPanics(t, func() { f.trigger(a, "use", nil) })

	require.Len(t, log.actions, 1, "targets after the stop are skipped")
	assert.True(t, entity.Same(a, log.actions[0].Owner))
	assert.Equal(t, "retreat", log.actions[0].Rule)
	assert.Equal(t, "t-1", log.actions[0].Token)

	require.Len(t, log.finished, 1)
	assert.True(t, log.finished[0].Stopped)
	assert.Equal(t, []string{"retreat a"}, f.rec.lines)
	assert.False(t, f.env.Table(a.ID()).IsRunning("retreat"))
}
