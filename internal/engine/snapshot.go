package engine

import (
	"errors"
	"fmt"

	"github.com/FilamentGames/rulescript/internal/entity"
	"github.com/FilamentGames/rulescript/internal/ir"
	"github.com/FilamentGames/rulescript/internal/library"
)

// Capture records the persistable state of e: the state of its rule
// table and the fields of every component the library describes.
// Components unknown to the library are skipped.
func (env *Environment) Capture(e entity.Entity) (ir.EntitySnapshot, error) {
	snap := ir.EntitySnapshot{Entity: e.ID()}
	if rt := env.tables[e.ID()]; rt != nil {
		snap.Rules = rt.Persist()
	}

	for _, typ := range e.ComponentTypes() {
		info, ok := env.lib.FindComponent(typ)
		if !ok {
			continue
		}
		comp := e.Component(typ)
		cs := ir.ComponentSnapshot{Type: typ, Fields: make(map[string]ir.Value, len(info.Fields))}
		for _, f := range info.Fields {
			cs.Fields[f.Name] = ir.Normalize(f.Get(comp))
		}
		if p, ok := comp.(library.CustomPersister); ok {
			data, err := p.PersistCustom()
			if err != nil {
				return ir.EntitySnapshot{}, fmt.Errorf("persist %s on %s: %w", typ, e.Key(), err)
			}
			cs.Custom = data
		}
		snap.Components = append(snap.Components, cs)
	}
	return snap, nil
}

// CaptureAll captures every entity owning a rule table, in table order.
func (env *Environment) CaptureAll() ([]ir.EntitySnapshot, error) {
	out := make([]ir.EntitySnapshot, 0, len(env.order))
	for _, id := range env.order {
		snap, err := env.Capture(env.tables[id].owner)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

// Apply restores a snapshot onto its entity. Rule states are matched by
// id and component fields by name; unknown rules, components and fields
// are ignored. Field errors are collected and returned together.
func (env *Environment) Apply(snap ir.EntitySnapshot) error {
	e := env.entities.EntityWithID(snap.Entity)
	if e == nil {
		return &RuntimeError{
			Code:    ErrCodeUnknownEntity,
			Message: "snapshot names an unknown entity",
			Entity:  snap.Entity.String(),
		}
	}
	if rt := env.tables[e.ID()]; rt != nil {
		rt.Restore(snap.Rules)
	}

	var errs []error
	for _, cs := range snap.Components {
		info, ok := env.lib.FindComponent(cs.Type)
		comp := e.Component(cs.Type)
		if !ok || comp == nil {
			env.logger.Debug("snapshot component skipped",
				"entity", e.Key(),
				"component", cs.Type,
			)
			continue
		}
		for name, v := range cs.Fields {
			f := info.Field(name)
			if f == nil {
				continue
			}
			if err := f.Set(comp, v); err != nil {
				errs = append(errs, fmt.Errorf("restore %s.%s on %s: %w", cs.Type, name, e.Key(), err))
			}
		}
		if p, ok := comp.(library.CustomPersister); ok && cs.Custom != nil {
			if err := p.RestoreCustom(cs.Custom); err != nil {
				errs = append(errs, fmt.Errorf("restore %s on %s: %w", cs.Type, e.Key(), err))
			}
		}
	}
	return errors.Join(errs...)
}
