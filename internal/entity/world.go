package entity

import (
	"fmt"
	"iter"
	"slices"
	"sync"

	"github.com/FilamentGames/rulescript/internal/ir"
)

// GlobalKey is the key of the World's global entity.
const GlobalKey = "global"

// Object is the World's Entity implementation.
type Object struct {
	world *World

	id     ir.EntityID
	key    string
	name   string
	prefab string
	typ    string

	active bool
	locked bool

	groups     []ir.GroupID
	compTypes  []string
	components map[string]any
	links      map[string][]ir.EntityID
}

func (o *Object) ID() ir.EntityID { return o.id }
func (o *Object) Key() string     { return o.key }
func (o *Object) Name() string    { return o.name }
func (o *Object) Prefab() string  { return o.prefab }
func (o *Object) Type() string    { return o.typ }

func (o *Object) Active() bool {
	o.world.mu.RLock()
	defer o.world.mu.RUnlock()
	return o.active
}

func (o *Object) Locked() bool {
	o.world.mu.RLock()
	defer o.world.mu.RUnlock()
	return o.locked
}

func (o *Object) Groups() []ir.GroupID {
	o.world.mu.RLock()
	defer o.world.mu.RUnlock()
	return slices.Clone(o.groups)
}

func (o *Object) InGroup(g ir.GroupID) bool {
	o.world.mu.RLock()
	defer o.world.mu.RUnlock()
	return slices.Contains(o.groups, g)
}

func (o *Object) Component(typ string) any {
	o.world.mu.RLock()
	defer o.world.mu.RUnlock()
	return o.components[typ]
}

func (o *Object) ComponentTypes() []string {
	o.world.mu.RLock()
	defer o.world.mu.RUnlock()
	return slices.Clone(o.compTypes)
}

// Links resolves link targets that still exist in the world.
func (o *Object) Links(name string) []Entity {
	o.world.mu.RLock()
	defer o.world.mu.RUnlock()
	ids := o.links[name]
	out := make([]Entity, 0, len(ids))
	for _, id := range ids {
		if target, ok := o.world.byID[id]; ok {
			out = append(out, target)
		}
	}
	return out
}

// SetActive toggles whether the entity is active.
func (o *Object) SetActive(active bool) *Object {
	o.world.mu.Lock()
	defer o.world.mu.Unlock()
	o.active = active
	return o
}

// SetLocked toggles whether the entity ignores unforced triggers.
func (o *Object) SetLocked(locked bool) *Object {
	o.world.mu.Lock()
	defer o.world.mu.Unlock()
	o.locked = locked
	return o
}

// AddToGroup adds the entity to groups it is not yet a member of.
func (o *Object) AddToGroup(groups ...ir.GroupID) *Object {
	o.world.mu.Lock()
	defer o.world.mu.Unlock()
	for _, g := range groups {
		if !slices.Contains(o.groups, g) {
			o.groups = append(o.groups, g)
		}
	}
	return o
}

// Attach adds or replaces a component instance.
func (o *Object) Attach(typ string, component any) *Object {
	o.world.mu.Lock()
	defer o.world.mu.Unlock()
	if _, ok := o.components[typ]; !ok {
		o.compTypes = append(o.compTypes, typ)
	}
	o.components[typ] = component
	return o
}

// Detach removes a component.
func (o *Object) Detach(typ string) *Object {
	o.world.mu.Lock()
	defer o.world.mu.Unlock()
	if _, ok := o.components[typ]; ok {
		delete(o.components, typ)
		o.compTypes = slices.DeleteFunc(o.compTypes, func(t string) bool { return t == typ })
	}
	return o
}

// Link appends targets to the named link.
func (o *Object) Link(name string, targets ...Entity) *Object {
	o.world.mu.Lock()
	defer o.world.mu.Unlock()
	for _, t := range targets {
		o.links[name] = append(o.links[name], t.ID())
	}
	return o
}

func (o *Object) String() string {
	return fmt.Sprintf("%s(%s)", o.key, o.id)
}

// Spec describes an entity to spawn.
type Spec struct {
	Key    string
	Name   string
	Prefab string
	Type   string
	Groups []string
}

// World is an in-memory Manager. Entities are kept in spawn order, which
// is the order every enumeration yields them in.
type World struct {
	mu        sync.RWMutex
	order     []*Object
	byID      map[ir.EntityID]*Object
	global    *Object
	listeners map[ir.TriggerID][]ir.EntityID
}

// NewWorld creates an empty world with its global entity.
func NewWorld() *World {
	w := &World{
		byID:      make(map[ir.EntityID]*Object),
		listeners: make(map[ir.TriggerID][]ir.EntityID),
	}
	w.global = w.newObject(Spec{Key: GlobalKey, Name: GlobalKey, Type: GlobalKey})
	w.byID[w.global.id] = w.global
	return w
}

func (w *World) newObject(spec Spec) *Object {
	name := spec.Name
	if name == "" {
		name = spec.Key
	}
	o := &Object{
		world:      w,
		id:         ir.EntityIDOf(spec.Key),
		key:        spec.Key,
		name:       name,
		prefab:     spec.Prefab,
		typ:        spec.Type,
		active:     true,
		components: make(map[string]any),
		links:      make(map[string][]ir.EntityID),
	}
	for _, g := range spec.Groups {
		o.groups = append(o.groups, ir.GroupIDOf(g))
	}
	return o
}

// Spawn creates an entity. Keys must be unique.
func (w *World) Spawn(spec Spec) (*Object, error) {
	if spec.Key == "" {
		return nil, fmt.Errorf("entity key is empty")
	}
	o := w.newObject(spec)

	w.mu.Lock()
	defer w.mu.Unlock()
	if existing, ok := w.byID[o.id]; ok {
		if existing.key == spec.Key {
			return nil, fmt.Errorf("entity %q already exists", spec.Key)
		}
		return nil, fmt.Errorf("entity %q collides with %q (id %s)", spec.Key, existing.key, o.id)
	}
	w.byID[o.id] = o
	w.order = append(w.order, o)
	return o, nil
}

// MustSpawn is Spawn for fixtures; it panics on error.
func (w *World) MustSpawn(spec Spec) *Object {
	o, err := w.Spawn(spec)
	if err != nil {
		panic(err)
	}
	return o
}

// Destroy removes an entity and its trigger registrations. Handles held
// by callers report inactive afterwards.
func (w *World) Destroy(id ir.EntityID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	o, ok := w.byID[id]
	if !ok || o == w.global {
		return false
	}
	o.active = false
	delete(w.byID, id)
	w.order = slices.DeleteFunc(w.order, func(x *Object) bool { return x == o })
	for trig, ids := range w.listeners {
		w.listeners[trig] = slices.DeleteFunc(ids, func(x ir.EntityID) bool { return x == id })
	}
	return true
}

// Object returns the concrete entity with the given key, or nil.
func (w *World) Object(key string) *Object {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if o, ok := w.byID[ir.EntityIDOf(key)]; ok && o.key == key {
		return o
	}
	return nil
}

// Entities returns all spawned entities in spawn order, excluding global.
func (w *World) Entities() []*Object {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return slices.Clone(w.order)
}

func (w *World) EntityWithID(id ir.EntityID) Entity {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if o, ok := w.byID[id]; ok {
		return o
	}
	return nil
}

func (w *World) Global() Entity { return w.global }

// EntitiesWithGroup yields members of g in spawn order.
func (w *World) EntitiesWithGroup(g ir.GroupID) iter.Seq[Entity] {
	return w.filter(func(o *Object) bool { return slices.Contains(o.groups, g) })
}

// EntitiesWithName yields entities whose name matches the wildcard pattern.
func (w *World) EntitiesWithName(pattern string) iter.Seq[Entity] {
	return w.filter(func(o *Object) bool { return ir.MatchWildcard(pattern, o.name) })
}

// EntitiesWithPrefab yields entities whose prefab matches the wildcard pattern.
func (w *World) EntitiesWithPrefab(pattern string) iter.Seq[Entity] {
	return w.filter(func(o *Object) bool { return o.prefab != "" && ir.MatchWildcard(pattern, o.prefab) })
}

// filter snapshots the matching set lazily on first pull, so callers may
// mutate the world while ranging.
func (w *World) filter(match func(*Object) bool) iter.Seq[Entity] {
	return func(yield func(Entity) bool) {
		w.mu.RLock()
		var hits []*Object
		for _, o := range w.order {
			if match(o) {
				hits = append(hits, o)
			}
		}
		w.mu.RUnlock()
		for _, o := range hits {
			if !yield(o) {
				return
			}
		}
	}
}

// RegisterTriggers adds e as a listener for each trigger. Registering
// twice is a no-op.
func (w *World) RegisterTriggers(e Entity, triggers []ir.TriggerID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := e.ID()
	for _, t := range triggers {
		if !slices.Contains(w.listeners[t], id) {
			w.listeners[t] = append(w.listeners[t], id)
		}
	}
}

// DeregisterTriggers removes e as a listener for each trigger.
func (w *World) DeregisterTriggers(e Entity, triggers []ir.TriggerID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := e.ID()
	for _, t := range triggers {
		ids := slices.DeleteFunc(w.listeners[t], func(x ir.EntityID) bool { return x == id })
		if len(ids) == 0 {
			delete(w.listeners, t)
			continue
		}
		w.listeners[t] = ids
	}
}

func (w *World) EntitiesForTrigger(trigger ir.TriggerID) []Entity {
	w.mu.RLock()
	defer w.mu.RUnlock()
	ids := w.listeners[trigger]
	out := make([]Entity, 0, len(ids))
	for _, id := range ids {
		if o, ok := w.byID[id]; ok {
			out = append(out, o)
		}
	}
	return out
}
