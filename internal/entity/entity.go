// Package entity defines the host object model the rule runtime works
// against, plus an in-memory World implementation used by tests, the
// scenario harness and the CLI.
package entity

import (
	"iter"

	"github.com/FilamentGames/rulescript/internal/ir"
)

// Entity is a host object that can own a rule table and be targeted by
// scopes. Identity is the ID.
type Entity interface {
	ID() ir.EntityID
	Key() string
	Name() string
	Prefab() string
	Type() string

	// Active is false for disabled or destroyed entities.
	Active() bool
	// Locked entities ignore unforced triggers.
	Locked() bool

	Groups() []ir.GroupID
	InGroup(g ir.GroupID) bool

	// Component returns the component instance of the given type, or nil.
	Component(typ string) any
	// ComponentTypes lists attached component types in attachment order.
	ComponentTypes() []string

	// Links returns the entities reachable through the named link.
	Links(name string) []Entity
}

// Manager is the collaborator the runtime uses to find entities and to
// route triggers to entities that listen for them.
type Manager interface {
	EntityWithID(id ir.EntityID) Entity
	EntitiesWithGroup(g ir.GroupID) iter.Seq[Entity]
	EntitiesWithName(pattern string) iter.Seq[Entity]
	EntitiesWithPrefab(pattern string) iter.Seq[Entity]

	// Global is the entity global methods and scopes bind to.
	Global() Entity

	RegisterTriggers(e Entity, triggers []ir.TriggerID)
	DeregisterTriggers(e Entity, triggers []ir.TriggerID)
	// EntitiesForTrigger returns listeners in registration order.
	EntitiesForTrigger(trigger ir.TriggerID) []Entity
}

// Same reports whether a and b are the same entity. Two nil entities are
// the same; a nil and a non-nil entity are not.
func Same(a, b Entity) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.ID() == b.ID()
}

// HasComponent reports whether e has a component of type typ.
func HasComponent(e Entity, typ string) bool {
	return e != nil && e.Component(typ) != nil
}
