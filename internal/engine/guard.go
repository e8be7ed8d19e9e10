package engine

import "github.com/FilamentGames/rulescript/internal/ir"

// DefaultMaxDepth is the default limit on nested synchronous dispatch.
const DefaultMaxDepth = 32

// dispatchGuard keeps synchronous trigger cascades finite.
//
// Actions may dispatch triggers, which run their rules synchronously and
// may dispatch more triggers. The stack of nested dispatches is always
// capped (A -> B -> C -> ...). Optionally, an (entity, trigger) pair
// already being evaluated on the current stack is not dispatched again
// (A -> B -> A).
//
// Tasks stepped in later frames start from an empty stack, so a rule that
// re-triggers itself after a wait is allowed.
type dispatchGuard struct {
	maxDepth   int
	reentrancy bool
	active     map[dispatchKey]int
	depth      int
}

type dispatchKey struct {
	entity  ir.EntityID
	trigger ir.TriggerID
}

func newDispatchGuard(maxDepth int, reentrancy bool) *dispatchGuard {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &dispatchGuard{
		maxDepth:   maxDepth,
		reentrancy: reentrancy,
		active:     make(map[dispatchKey]int),
	}
}

// enter records a dispatch and returns a *RuntimeError if it is refused.
// Every successful enter must be paired with leave.
func (g *dispatchGuard) enter(entity ir.EntityID, trigger ir.TriggerID) error {
	key := dispatchKey{entity, trigger}
	if g.reentrancy && g.active[key] > 0 {
		return NewReentrantError(entity.String(), trigger.String())
	}
	if g.depth >= g.maxDepth {
		return NewDepthError(entity.String(), trigger.String(), g.depth, g.maxDepth)
	}
	g.active[key]++
	g.depth++
	return nil
}

func (g *dispatchGuard) leave(entity ir.EntityID, trigger ir.TriggerID) {
	key := dispatchKey{entity, trigger}
	if g.active[key]--; g.active[key] <= 0 {
		delete(g.active, key)
	}
	g.depth--
}

// Depth returns the current nesting depth.
func (g *dispatchGuard) Depth() int {
	return g.depth
}
