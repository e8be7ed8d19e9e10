// Package library is the metadata registry of triggers, queries, actions,
// components, groups and enums. A Library is built once from explicit
// registrations and is read-only afterwards, so it is safe to share.
package library

import (
	"log/slog"
	"slices"

	"github.com/FilamentGames/rulescript/internal/entity"
	"github.com/FilamentGames/rulescript/internal/ir"
)

// Library is the linked, read-only registry.
type Library struct {
	logger *slog.Logger

	triggers   map[ir.TriggerID]*TriggerInfo
	queries    map[ir.MethodID]*QueryInfo
	actions    map[ir.MethodID]*ActionInfo
	components map[string]*ComponentInfo
	groups     map[ir.GroupID]*GroupInfo
	enums      map[string]*EnumInfo

	// Sorted by key for deterministic enumeration.
	triggerList   []*TriggerInfo
	queryList     []*QueryInfo
	actionList    []*ActionInfo
	componentList []*ComponentInfo
	groupList     []*GroupInfo
}

func (l *Library) sortIndexes() {
	l.triggerList = sortedValues(l.triggers, func(t *TriggerInfo) string { return t.Key })
	l.queryList = sortedValues(l.queries, func(q *QueryInfo) string { return q.Key })
	l.actionList = sortedValues(l.actions, func(a *ActionInfo) string { return a.Key })
	l.componentList = sortedValues(l.components, func(c *ComponentInfo) string { return c.Type })
	l.groupList = sortedValues(l.groups, func(g *GroupInfo) string { return g.Key })
}

// Trigger returns the trigger with id. A miss is logged and returns nil.
func (l *Library) Trigger(id ir.TriggerID) *TriggerInfo {
	t, ok := l.triggers[id]
	if !ok {
		l.logger.Error("unknown trigger", "id", id.String())
	}
	return t
}

// Query returns the query with id. A miss is logged and returns nil.
func (l *Library) Query(id ir.MethodID) *QueryInfo {
	q, ok := l.queries[id]
	if !ok {
		l.logger.Error("unknown query", "id", id.String())
	}
	return q
}

// Action returns the action with id. A miss is logged and returns nil.
func (l *Library) Action(id ir.MethodID) *ActionInfo {
	a, ok := l.actions[id]
	if !ok {
		l.logger.Error("unknown action", "id", id.String())
	}
	return a
}

// Component returns the component type typ. A miss is logged and returns nil.
func (l *Library) Component(typ string) *ComponentInfo {
	c, ok := l.components[typ]
	if !ok {
		l.logger.Error("unknown component", "type", typ)
	}
	return c
}

// Group returns the group with id. A miss is logged and returns nil.
func (l *Library) Group(id ir.GroupID) *GroupInfo {
	g, ok := l.groups[id]
	if !ok {
		l.logger.Error("unknown group", "id", id.String())
	}
	return g
}

// Enum returns the enum type key, or nil.
func (l *Library) Enum(key string) *EnumInfo {
	return l.enums[key]
}

// FindTrigger is Trigger without logging, for validation passes.
func (l *Library) FindTrigger(id ir.TriggerID) (*TriggerInfo, bool) {
	t, ok := l.triggers[id]
	return t, ok
}

// FindQuery is Query without logging.
func (l *Library) FindQuery(id ir.MethodID) (*QueryInfo, bool) {
	q, ok := l.queries[id]
	return q, ok
}

// FindAction is Action without logging.
func (l *Library) FindAction(id ir.MethodID) (*ActionInfo, bool) {
	a, ok := l.actions[id]
	return a, ok
}

// FindComponent is Component without logging.
func (l *Library) FindComponent(typ string) (*ComponentInfo, bool) {
	c, ok := l.components[typ]
	return c, ok
}

// FindGroup is Group without logging.
func (l *Library) FindGroup(id ir.GroupID) (*GroupInfo, bool) {
	g, ok := l.groups[id]
	return g, ok
}

// Components returns all component types sorted by type.
func (l *Library) Components() []*ComponentInfo {
	return slices.Clone(l.componentList)
}

// Groups returns all groups sorted by key.
func (l *Library) Groups() []*GroupInfo {
	return slices.Clone(l.groupList)
}

// ScopeKind selects which owners an enumeration includes.
type ScopeKind uint8

const (
	ScopeKindAll ScopeKind = iota
	ScopeKindGlobal
	ScopeKindType
	ScopeKindEntity
)

// ScopeFilter restricts enumeration by owner.
type ScopeFilter struct {
	Kind   ScopeKind
	Type   string
	Entity entity.Entity
}

// ScopeAll includes every descriptor.
func ScopeAll() ScopeFilter { return ScopeFilter{Kind: ScopeKindAll} }

// ScopeGlobal includes only global descriptors.
func ScopeGlobal() ScopeFilter { return ScopeFilter{Kind: ScopeKindGlobal} }

// ScopeType includes descriptors owned by an entity or component type.
func ScopeType(typ string) ScopeFilter { return ScopeFilter{Kind: ScopeKindType, Type: typ} }

// ScopeEntity includes descriptors owned by the entity's type or any of
// its attached component types.
func ScopeEntity(e entity.Entity) ScopeFilter {
	return ScopeFilter{Kind: ScopeKindEntity, Entity: e}
}

func (s ScopeFilter) admits(o Owner) bool {
	switch s.Kind {
	case ScopeKindAll:
		return true
	case ScopeKindGlobal:
		return o.IsGlobal()
	case ScopeKindType:
		return !o.IsGlobal() && o.Type == s.Type
	case ScopeKindEntity:
		if s.Entity == nil || o.IsGlobal() {
			return false
		}
		if o.IsAny() || o.Type == s.Entity.Type() {
			return true
		}
		return slices.Contains(s.Entity.ComponentTypes(), o.Type)
	}
	return false
}

// Filter selects descriptors during enumeration.
type Filter struct {
	Scope ScopeFilter
	// When MatchKind is set, triggers must carry a parameter and queries
	// and actions must return a value convertible to Kind.
	MatchKind bool
	Kind      ir.Kind
	// NoParams keeps only descriptors without parameters.
	NoParams bool
}

func (f Filter) admits(o Owner, params []ParameterInfo, kind ir.Kind, hasKind bool) bool {
	if !f.Scope.admits(o) {
		return false
	}
	if f.NoParams && len(params) > 0 {
		return false
	}
	if f.MatchKind && (!hasKind || !ir.Convertible(kind, f.Kind)) {
		return false
	}
	return true
}

// Triggers enumerates triggers sorted by key.
func (l *Library) Triggers(f Filter) []*TriggerInfo {
	var out []*TriggerInfo
	for _, t := range l.triggerList {
		var kind ir.Kind
		p := t.Param()
		if p != nil {
			kind = p.Kind
		}
		if f.admits(t.Owner, t.Params, kind, p != nil) {
			out = append(out, t)
		}
	}
	return out
}

// Queries enumerates queries sorted by key.
func (l *Library) Queries(f Filter) []*QueryInfo {
	var out []*QueryInfo
	for _, q := range l.queryList {
		if f.admits(q.Owner, q.Params, q.Returns, true) {
			out = append(out, q)
		}
	}
	return out
}

// Actions enumerates actions sorted by key.
func (l *Library) Actions(f Filter) []*ActionInfo {
	var out []*ActionInfo
	for _, a := range l.actionList {
		if f.admits(a.Owner, a.Params, a.Returns, a.Returns != ir.KindNull) {
			out = append(out, a)
		}
	}
	return out
}
