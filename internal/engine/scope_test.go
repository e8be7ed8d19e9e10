package engine

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FilamentGames/rulescript/internal/entity"
	"github.com/FilamentGames/rulescript/internal/ir"
)

func keys(seq func(func(entity.Entity) bool)) []string {
	var out []string
	for e := range seq {
		out = append(out, e.Key())
	}
	return out
}

func TestResolveEntityScope(t *testing.T) {
	f := newFixture(t)
	knight := f.spawn(t, "knight", 10, "heroes")
	squire := f.spawn(t, "squire", 10, "heroes")
	horse := f.spawn(t, "horse", 10)
	saddle := f.spawn(t, "saddle", 10)
	bag := f.spawn(t, "bag", 10)
	knight.Link("mount", horse)
	squire.Link("mount", horse)
	horse.Link("gear", saddle, bag)

	sc := f.scope(knight, ir.Scope{EntityScope: ir.IDScope(squire.ID())})
	heroes := ir.GroupScope(ir.GroupIDOf("heroes"))

	tests := []struct {
		name  string
		scope ir.EntityScope
		want  []string
	}{
		{"self", ir.SelfScope(), []string{"knight"}},
		{"global", ir.GlobalScope(), []string{entity.GlobalKey}},
		{"by id", ir.IDScope(horse.ID()), []string{"horse"}},
		{"missing id", ir.IDScope(ir.EntityIDOf("nobody")), nil},
		{"group", heroes, []string{"knight", "squire"}},
		{"group first", heroes.First(), []string{"knight"}},
		{"name wildcard", ir.NameScope("s*"), []string{"squire", "saddle"}},
		{"argument", ir.ArgumentScope(), []string{"squire"}},
		{"link", ir.SelfScope().Via("mount", false), []string{"horse"}},
		{"link path yields every final link", ir.SelfScope().Via("mount.gear", false), []string{"saddle", "bag"}},
		{"link path first link", ir.SelfScope().Via("mount.gear", true), []string{"saddle"}},
		{"links applied to every base entity", heroes.Via("mount", false), []string{"horse", "horse"}},
		{"missing link", ir.SelfScope().Via("rider", false), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, keys(sc.ResolveEntityScope(tt.scope)))
		})
	}
}

func TestResolveEntityScope_IndirectionIsOneLevel(t *testing.T) {
	f := newFixture(t)
	knight := f.spawn(t, "knight", 10)

	sc := f.scope(knight, ir.Scope{EntityScope: ir.ArgumentScope()})
	assert.Empty(t, keys(sc.ResolveEntityScope(ir.ArgumentScope())))

	sc.SetRegister(1, ir.Scope{EntityScope: ir.SelfScope()})
	sc.SetRegister(2, ir.Scope{EntityScope: ir.RegisterScope(1)})
	assert.Equal(t, []string{"knight"}, keys(sc.ResolveEntityScope(ir.RegisterScope(1))))
	assert.Empty(t, keys(sc.ResolveEntityScope(ir.RegisterScope(2))))

	// A non-scope argument resolves nothing.
	plain := f.scope(knight, ir.Int(3))
	assert.Empty(t, keys(plain.ResolveEntityScope(ir.ArgumentScope())))
}

func TestResolveValue(t *testing.T) {
	f := newFixture(t)
	f.spawn(t, "a", 3, "enemies")
	f.spawn(t, "b", 4, "enemies")
	sc := f.scope(f.world.Global(), ir.Int(42))
	sc.SetRegister(0, ir.String("r0"))

	collect := func(r ir.ResolvableValue) []ir.Value {
		return slices.Collect(sc.ResolveValue(r))
	}

	assert.Equal(t, []ir.Value{ir.Int(5)}, collect(lit(ir.Int(5))))
	assert.Equal(t, []ir.Value{ir.Null{}}, collect(lit(nil)))
	assert.Equal(t, []ir.Value{ir.Int(42)}, collect(ir.FromArgument()))
	assert.Equal(t, []ir.Value{ir.String("r0")}, collect(ir.FromRegister(0)))
	assert.Equal(t, []ir.Value{ir.Int(3), ir.Int(4)}, collect(query(ir.GroupScope(ir.GroupIDOf("enemies")), "health")))
	assert.Equal(t, []ir.Value{ir.Int(42)}, collect(query(ir.GlobalScope(), "arg")))
	assert.Empty(t, collect(query(ir.GlobalScope(), "missing")))
}

func TestResolveValue_QueryArgumentsResolvedOnce(t *testing.T) {
	f := newFixture(t)
	f.spawn(t, "a", 3, "enemies")
	f.spawn(t, "b", 4, "enemies")
	sc := f.scope(f.world.Global(), ir.Int(9))

	// Omitted argument uses the declared default.
	got := slices.Collect(sc.ResolveValue(query(ir.GlobalScope(), "echo")))
	assert.Equal(t, []ir.Value{ir.Int(7)}, got)

	// Argument resolved against the invoking scope.
	f.rec.reset()
	got = slices.Collect(sc.ResolveValue(query(ir.GlobalScope(), "echo", ir.FromArgument().Nested())))
	assert.Equal(t, []ir.Value{ir.Int(9)}, got)
	assert.Equal(t, []string{"echo 9"}, f.rec.lines)
}

func TestRegisters_ContractViolationsPanic(t *testing.T) {
	f := newFixture(t)
	goblin := f.spawn(t, "goblin", 1)

	bare := NewExecutionScope(f.env, goblin, nil, 0)
	assert.False(t, bare.HasRegisters())

	var re *RuntimeError
	func() {
		defer func() {
			r := recover()
			require.NotNil(t, r)
			re = r.(*RuntimeError)
		}()
		bare.Register(0)
	}()
	assert.Equal(t, ErrCodeMissingRegisters, re.Code)

}

func TestRegisters_OutsideBankIsLogged(t *testing.T) {
	f := newFixture(t)
	sc := f.scope(f.spawn(t, "goblin", 1), nil)

	assert.NotPanics(t, func() { sc.SetRegister(DefaultRegisterCount, ir.Int(1)) })
	assert.Equal(t, ir.Null{}, sc.Register(DefaultRegisterCount))
	assert.Equal(t, ir.Null{}, sc.Register(-1))
	assert.Contains(t, f.logs.String(), "register outside bank")
	assert.Contains(t, f.logs.String(), "code=REGISTER_RANGE")
}

func TestExecutionScope_ResetZeroesBank(t *testing.T) {
	f := newFixture(t)
	sc := f.scope(f.spawn(t, "goblin", 1), ir.Int(1))
	sc.SetRegister(3, ir.Int(5))
	gen := sc.gen

	sc.reset()
	assert.Equal(t, ir.Null{}, sc.Register(3))
	assert.Nil(t, sc.Self())
	assert.Equal(t, ir.Null{}, sc.Argument())
	assert.Equal(t, gen+1, sc.gen)
}
