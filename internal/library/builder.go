package library

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/FilamentGames/rulescript/internal/ir"
)

// Builder collects definitions. Registration order does not matter:
// cross-references are linked in Build once every definition exists.
type Builder struct {
	logger     *slog.Logger
	triggers   []TriggerDef
	queries    []QueryDef
	actions    []ActionDef
	components []ComponentDef
	groups     []GroupDef
	enums      []EnumDef
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// WithLogger sets the logger used by the built Library for lookup misses.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

func (b *Builder) Trigger(d TriggerDef) *Builder     { b.triggers = append(b.triggers, d); return b }
func (b *Builder) Query(d QueryDef) *Builder         { b.queries = append(b.queries, d); return b }
func (b *Builder) Action(d ActionDef) *Builder       { b.actions = append(b.actions, d); return b }
func (b *Builder) Component(d ComponentDef) *Builder { b.components = append(b.components, d); return b }
func (b *Builder) Group(d GroupDef) *Builder         { b.groups = append(b.groups, d); return b }
func (b *Builder) Enum(d EnumDef) *Builder           { b.enums = append(b.enums, d); return b }

// Build validates and links all definitions. Every problem found is
// reported, joined into one error.
func (b *Builder) Build() (*Library, error) {
	lib := &Library{
		logger:     b.logger,
		triggers:   make(map[ir.TriggerID]*TriggerInfo),
		queries:    make(map[ir.MethodID]*QueryInfo),
		actions:    make(map[ir.MethodID]*ActionInfo),
		components: make(map[string]*ComponentInfo),
		groups:     make(map[ir.GroupID]*GroupInfo),
		enums:      make(map[string]*EnumInfo),
	}
	if lib.logger == nil {
		lib.logger = slog.Default()
	}
	l := &linker{lib: lib}

	for _, d := range b.enums {
		l.addEnum(d)
	}
	for _, d := range b.components {
		l.addComponent(d)
	}
	for _, d := range b.groups {
		l.addGroup(d)
	}
	for _, d := range b.triggers {
		l.addTrigger(d)
	}
	for _, d := range b.queries {
		l.addQuery(d)
	}
	for _, d := range b.actions {
		l.addAction(d)
	}

	if err := errors.Join(l.errs...); err != nil {
		return nil, fmt.Errorf("build library: %w", err)
	}
	lib.sortIndexes()
	return lib, nil
}

// MustBuild is Build for static registrations; it panics on error.
func (b *Builder) MustBuild() *Library {
	lib, err := b.Build()
	if err != nil {
		panic(err)
	}
	return lib
}

// linker accumulates errors while linking definitions into a Library.
type linker struct {
	lib  *Library
	errs []error

	triggerKeys map[ir.HashID]string
	queryKeys   map[ir.HashID]string
	actionKeys  map[ir.HashID]string
	groupKeys   map[ir.HashID]string
}

func (l *linker) fail(format string, args ...any) {
	l.errs = append(l.errs, fmt.Errorf(format, args...))
}

// claim records key under its hash in seen, failing on duplicates and
// collisions.
func (l *linker) claim(seen *map[ir.HashID]string, what, key string) (ir.HashID, bool) {
	if key == "" {
		l.fail("%s with empty key", what)
		return 0, false
	}
	if *seen == nil {
		*seen = make(map[ir.HashID]string)
	}
	id := ir.HashKey(key)
	if prev, ok := (*seen)[id]; ok {
		if prev == key {
			l.fail("duplicate %s %q", what, key)
		} else {
			l.fail("%s %q collides with %q (id %s)", what, key, prev, id)
		}
		return 0, false
	}
	(*seen)[id] = key
	return id, true
}

// DisplayName derives a human-readable name from a key:
// "stop_group" becomes "Stop Group".
func DisplayName(key string) string {
	words := strings.FieldsFunc(key, func(r rune) bool {
		return r == '_' || r == '-' || r == '.' || r == ' '
	})
	return cases.Title(language.English).String(strings.Join(words, " "))
}

func nameOr(name, key string) string {
	if name != "" {
		return name
	}
	return DisplayName(key)
}

func (l *linker) addEnum(d EnumDef) {
	if d.Key == "" {
		l.fail("enum with empty key")
		return
	}
	if _, ok := l.lib.enums[d.Key]; ok {
		l.fail("duplicate enum %q", d.Key)
		return
	}
	l.lib.enums[d.Key] = &EnumInfo{Key: d.Key, Name: nameOr(d.Name, d.Key), Values: d.Values}
}

func (l *linker) addComponent(d ComponentDef) {
	if d.Type == "" {
		l.fail("component with empty type")
		return
	}
	if _, ok := l.lib.components[d.Type]; ok {
		l.fail("duplicate component %q", d.Type)
		return
	}
	info := &ComponentInfo{Type: d.Type, Name: nameOr(d.Name, d.Type), Description: d.Description}
	for _, f := range d.Fields {
		if f.Get == nil || f.Set == nil {
			l.fail("component %q field %q: getter and setter are required", d.Type, f.Name)
			continue
		}
		info.Fields = append(info.Fields, FieldInfo(f))
	}
	l.lib.components[d.Type] = info
}

func (l *linker) addGroup(d GroupDef) {
	id, ok := l.claim(&l.groupKeys, "group", d.Key)
	if !ok {
		return
	}
	l.lib.groups[ir.GroupID(id)] = &GroupInfo{
		ID:          ir.GroupID(id),
		Key:         d.Key,
		Name:        nameOr(d.Name, d.Key),
		Description: d.Description,
	}
}

func (l *linker) owner(typ string) Owner {
	if typ == "" {
		return Owner{}
	}
	if c, ok := l.lib.components[typ]; ok {
		return Owner{Type: typ, Component: c}
	}
	return Owner{Type: typ}
}

func (l *linker) params(what, key string, defs []ParamDef) ([]ParameterInfo, []ir.Value) {
	params := make([]ParameterInfo, 0, len(defs))
	defaults := make([]ir.Value, 0, len(defs))
	for _, p := range defs {
		info := ParameterInfo{Name: p.Name, Description: p.Description, Kind: p.Kind, Default: p.Default}
		if p.Enum != "" {
			e, ok := l.lib.enums[p.Enum]
			if !ok {
				l.fail("%s %q param %q: unknown enum %q", what, key, p.Name, p.Enum)
			}
			info.Enum = e
		} else if p.Kind == ir.KindEnum {
			l.fail("%s %q param %q: enum parameter needs an enum type", what, key, p.Name)
		}
		if info.Default == nil {
			info.Default = ir.Zero(p.Kind)
		} else if !ir.Convertible(ir.KindOf(info.Default), p.Kind) {
			l.fail("%s %q param %q: default %s is not convertible to %s",
				what, key, p.Name, ir.KindOf(info.Default), p.Kind)
		}
		params = append(params, info)
		defaults = append(defaults, info.Default)
	}
	return params, defaults
}

func (l *linker) addTrigger(d TriggerDef) {
	id, ok := l.claim(&l.triggerKeys, "trigger", d.Key)
	if !ok {
		return
	}
	if len(d.Params) > 1 {
		l.fail("trigger %q: at most one parameter allowed, got %d", d.Key, len(d.Params))
	}
	params, _ := l.params("trigger", d.Key, d.Params)
	l.lib.triggers[ir.TriggerID(id)] = &TriggerInfo{
		ID:          ir.TriggerID(id),
		Key:         d.Key,
		Name:        nameOr(d.Name, d.Key),
		Description: d.Description,
		Owner:       l.owner(d.Owner),
		Params:      params,
	}
}

func (l *linker) addQuery(d QueryDef) {
	id, ok := l.claim(&l.queryKeys, "query", d.Key)
	if !ok {
		return
	}
	if d.Func == nil {
		l.fail("query %q has no function", d.Key)
	}
	params, defaults := l.params("query", d.Key, d.Params)
	info := &QueryInfo{
		ID:          ir.MethodID(id),
		Key:         d.Key,
		Name:        nameOr(d.Name, d.Key),
		Description: d.Description,
		Owner:       l.owner(d.Owner),
		Params:      params,
		Returns:     d.Returns,
		DefaultArgs: defaults,
		Func:        d.Func,
	}
	if d.ReturnEnum != "" {
		e, ok := l.lib.enums[d.ReturnEnum]
		if !ok {
			l.fail("query %q: unknown return enum %q", d.Key, d.ReturnEnum)
		}
		info.ReturnEnum = e
	}
	l.lib.queries[info.ID] = info
}

func (l *linker) addAction(d ActionDef) {
	id, ok := l.claim(&l.actionKeys, "action", d.Key)
	if !ok {
		return
	}
	if d.Func == nil {
		l.fail("action %q has no function", d.Key)
	}
	params, defaults := l.params("action", d.Key, d.Params)
	l.lib.actions[ir.MethodID(id)] = &ActionInfo{
		ID:          ir.MethodID(id),
		Key:         d.Key,
		Name:        nameOr(d.Name, d.Key),
		Description: d.Description,
		Owner:       l.owner(d.Owner),
		Params:      params,
		Returns:     d.Returns,
		DefaultArgs: defaults,
		Func:        d.Func,
	}
}

func sortedValues[K comparable, T any](m map[K]T, key func(T) string) []T {
	out := make([]T, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return key(out[i]) < key(out[j]) })
	return out
}
