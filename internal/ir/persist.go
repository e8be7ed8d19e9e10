package ir

import (
	"encoding/base64"
	"fmt"
	"sort"
)

// ComponentSnapshot holds the persisted fields of one component plus an
// optional opaque payload written by the component itself.
type ComponentSnapshot struct {
	Type   string
	Fields map[string]Value
	Custom []byte
}

// EntitySnapshot is everything persisted for one entity.
type EntitySnapshot struct {
	Entity     EntityID
	Rules      []PersistedRule
	Components []ComponentSnapshot
}

// Component returns the snapshot of component typ, or nil.
func (s *EntitySnapshot) Component(typ string) *ComponentSnapshot {
	for i := range s.Components {
		if s.Components[i].Type == typ {
			return &s.Components[i]
		}
	}
	return nil
}

// SnapshotToAny converts s to a JSON-ready document. Values use their
// tagged form and the custom payload is base64 encoded.
func SnapshotToAny(s EntitySnapshot) map[string]any {
	rules := make([]any, len(s.Rules))
	for i, r := range s.Rules {
		rules[i] = map[string]any{"id": r.ID, "state": int64(r.State)}
	}
	comps := make([]any, len(s.Components))
	for i, c := range s.Components {
		fields := make(map[string]any, len(c.Fields))
		for k, v := range c.Fields {
			fields[k] = ValueToAny(v)
		}
		doc := map[string]any{"type": c.Type, "fields": fields}
		if len(c.Custom) > 0 {
			doc["custom"] = base64.StdEncoding.EncodeToString(c.Custom)
		}
		comps[i] = doc
	}
	return map[string]any{
		"entity":     uint64(s.Entity),
		"rules":      rules,
		"components": comps,
	}
}

// SnapshotFromAny is the inverse of SnapshotToAny.
func SnapshotFromAny(raw any) (EntitySnapshot, error) {
	var s EntitySnapshot
	m, ok := raw.(map[string]any)
	if !ok {
		return s, fmt.Errorf("snapshot: expected object, got %T", raw)
	}
	id, err := parseHashID(m["entity"])
	if err != nil {
		return s, fmt.Errorf("snapshot entity: %w", err)
	}
	s.Entity = EntityID(id)

	rules, _ := m["rules"].([]any)
	for i, r := range rules {
		rm, ok := r.(map[string]any)
		if !ok {
			return s, fmt.Errorf("rules[%d]: expected object", i)
		}
		ruleID, _ := rm["id"].(string)
		state, _ := toInt64(rm["state"])
		s.Rules = append(s.Rules, PersistedRule{ID: ruleID, State: RuleState(state)})
	}

	comps, _ := m["components"].([]any)
	for i, c := range comps {
		cm, ok := c.(map[string]any)
		if !ok {
			return s, fmt.Errorf("components[%d]: expected object", i)
		}
		cs := ComponentSnapshot{Fields: map[string]Value{}}
		cs.Type, _ = cm["type"].(string)
		fields, _ := cm["fields"].(map[string]any)
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			v, err := ParseValue(fields[k])
			if err != nil {
				return s, fmt.Errorf("components[%d].%s: %w", i, k, err)
			}
			cs.Fields[k] = v
		}
		if enc, ok := cm["custom"].(string); ok && enc != "" {
			cs.Custom, err = base64.StdEncoding.DecodeString(enc)
			if err != nil {
				return s, fmt.Errorf("components[%d].custom: %w", i, err)
			}
		}
		s.Components = append(s.Components, cs)
	}
	return s, nil
}
