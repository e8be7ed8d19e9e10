package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FilamentGames/rulescript/internal/ir"
)

func TestDispatchGuard_Reentrant(t *testing.T) {
	g := newDispatchGuard(0, true)
	e, hit := ir.EntityIDOf("goblin"), ir.TriggerIDOf("hit")

	require.NoError(t, g.enter(e, hit))
	err := g.enter(e, hit)
	require.Error(t, err)
	assert.True(t, IsReentrantError(err))
	assert.False(t, IsDepthError(err))

	// Another trigger on the same entity is fine.
	require.NoError(t, g.enter(e, ir.TriggerIDOf("use")))
	assert.Equal(t, 2, g.Depth())

	g.leave(e, ir.TriggerIDOf("use"))
	g.leave(e, hit)
	assert.Equal(t, 0, g.Depth())
	assert.NoError(t, g.enter(e, hit), "pair is allowed again once it left")
}

func TestDispatchGuard_ReentrancyOff(t *testing.T) {
	g := newDispatchGuard(0, false)
	e, hit := ir.EntityIDOf("goblin"), ir.TriggerIDOf("hit")

	require.NoError(t, g.enter(e, hit))
	require.NoError(t, g.enter(e, hit))
	assert.Equal(t, 2, g.Depth())
}

func TestDispatchGuard_Depth(t *testing.T) {
	g := newDispatchGuard(3, false)
	trig := ir.TriggerIDOf("chain")

	for _, key := range []string{"a", "b", "c"} {
		require.NoError(t, g.enter(ir.EntityIDOf(key), trig))
	}
	err := g.enter(ir.EntityIDOf("d"), trig)
	require.Error(t, err)
	assert.True(t, IsDepthError(err))

	var re *RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "3", re.Details["max_depth"])
}

func TestDispatchGuard_DefaultDepth(t *testing.T) {
	assert.Equal(t, DefaultMaxDepth, newDispatchGuard(-1, false).maxDepth)
}

func TestFixedGenerator(t *testing.T) {
	g := NewFixedGenerator("a", "b")
	assert.Equal(t, "a", g.Generate())
	assert.Equal(t, "b", g.Generate())
	assert.Equal(t, "dispatch-3", g.Generate())

	seq := NewSequenceGenerator("t")
	assert.Equal(t, "t-1", seq.Generate())
	assert.Equal(t, "t-2", seq.Generate())
}

func TestUUIDv7Generator_Unique(t *testing.T) {
	var g UUIDv7Generator
	a, b := g.Generate(), g.Generate()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}
