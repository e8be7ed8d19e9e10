package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
)

// ValueToAny converts v to its tagged object form, e.g. {"int": 5}.
// The result contains only JSON-native Go types plus float32 slices.
func ValueToAny(v Value) any {
	switch x := Normalize(v).(type) {
	case Null:
		return map[string]any{"null": true}
	case Invalid:
		return map[string]any{"invalid": true}
	case Int:
		return map[string]any{"int": int64(x)}
	case Bool:
		return map[string]any{"bool": bool(x)}
	case Float:
		return map[string]any{"float": float32(x)}
	case Color:
		return map[string]any{"color": []float32{x[0], x[1], x[2], x[3]}}
	case Vector2:
		return map[string]any{"vector2": []float32{x[0], x[1]}}
	case Vector3:
		return map[string]any{"vector3": []float32{x[0], x[1], x[2]}}
	case Vector4:
		return map[string]any{"vector4": []float32{x[0], x[1], x[2], x[3]}}
	case String:
		return map[string]any{"string": string(x)}
	case Enum:
		return map[string]any{"enum": map[string]any{"type": x.Type, "value": int64(x.Value)}}
	case Scope:
		return map[string]any{"scope": ScopeToAny(x.EntityScope)}
	case Group:
		return map[string]any{"group": uint64(x)}
	case Trigger:
		return map[string]any{"trigger": uint64(x)}
	default:
		return map[string]any{"invalid": true}
	}
}

// ParseValue converts a decoded JSON or CUE value into a Value.
//
// Tagged objects are the canonical input. As an authoring convenience bare
// scalars are also accepted: null, booleans, strings, integral numbers (Int)
// and fractional numbers (Float).
func ParseValue(raw any) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return x, nil
	case bool:
		return Bool(x), nil
	case string:
		return String(x), nil
	case map[string]any:
		return parseTagged(x)
	}
	if f, ok := toFloat64(raw); ok {
		if f == math.Trunc(f) && f >= math.MinInt32 && f <= math.MaxInt32 {
			return Int(int32(f)), nil
		}
		return Float(float32(f)), nil
	}
	return nil, fmt.Errorf("cannot parse value from %T", raw)
}

func parseTagged(m map[string]any) (Value, error) {
	if len(m) != 1 {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("tagged value must have exactly one key, got [%s]", strings.Join(keys, ", "))
	}
	for tag, body := range m {
		kind, ok := ParseKind(tag)
		if !ok {
			return nil, fmt.Errorf("unknown value tag %q", tag)
		}
		v, err := parseBody(kind, body)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", tag, err)
		}
		return v, nil
	}
	return nil, fmt.Errorf("empty tagged value")
}

func parseBody(kind Kind, body any) (Value, error) {
	switch kind {
	case KindNull:
		return Null{}, nil
	case KindInvalid:
		return Invalid{}, nil
	case KindInt:
		n, ok := toInt64(body)
		if !ok || n > math.MaxInt32 || n < math.MinInt32 {
			return nil, fmt.Errorf("expected int32, got %v", body)
		}
		return Int(int32(n)), nil
	case KindBool:
		b, ok := body.(bool)
		if !ok {
			return nil, fmt.Errorf("expected bool, got %T", body)
		}
		return Bool(b), nil
	case KindFloat:
		f, ok := toFloat64(body)
		if !ok {
			return nil, fmt.Errorf("expected number, got %T", body)
		}
		return Float(float32(f)), nil
	case KindColor, KindVector2, KindVector3, KindVector4:
		return parseVector(kind, body)
	case KindString:
		s, ok := body.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", body)
		}
		return String(s), nil
	case KindEnum:
		m, ok := body.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("expected {type, value}, got %T", body)
		}
		typ, _ := m["type"].(string)
		n, ok := toInt64(m["value"])
		if !ok {
			return nil, fmt.Errorf("enum value must be an integer")
		}
		return Enum{Type: typ, Value: int32(n)}, nil
	case KindScope:
		s, err := ParseScope(body)
		if err != nil {
			return nil, err
		}
		return Scope{s}, nil
	case KindGroup:
		id, err := parseHashID(body)
		if err != nil {
			return nil, err
		}
		return Group(id), nil
	case KindTrigger:
		id, err := parseHashID(body)
		if err != nil {
			return nil, err
		}
		return Trigger(id), nil
	}
	return nil, fmt.Errorf("unsupported kind %s", kind)
}

func parseVector(kind Kind, body any) (Value, error) {
	want := map[Kind]int{KindColor: 4, KindVector2: 2, KindVector3: 3, KindVector4: 4}[kind]
	var comps []float64
	switch xs := body.(type) {
	case []any:
		for i, x := range xs {
			f, ok := toFloat64(x)
			if !ok {
				return nil, fmt.Errorf("component %d: expected number, got %T", i, x)
			}
			comps = append(comps, f)
		}
	case []float32:
		for _, f := range xs {
			comps = append(comps, float64(f))
		}
	case []float64:
		comps = xs
	default:
		return nil, fmt.Errorf("expected array, got %T", body)
	}
	if len(comps) != want {
		return nil, fmt.Errorf("expected %d components, got %d", want, len(comps))
	}
	var c [4]float32
	for i, f := range comps {
		c[i] = float32(f)
	}
	switch kind {
	case KindColor:
		return Color(c), nil
	case KindVector2:
		return Vector2{c[0], c[1]}, nil
	case KindVector3:
		return Vector3{c[0], c[1], c[2]}, nil
	default:
		return Vector4(c), nil
	}
}

// parseHashID accepts a key string (hashed) or a numeric id.
func parseHashID(body any) (HashID, error) {
	if s, ok := body.(string); ok {
		return HashKey(s), nil
	}
	n, ok := toInt64(body)
	if !ok || n < 0 || n > math.MaxUint32 {
		return 0, fmt.Errorf("expected name or id, got %v", body)
	}
	return HashID(n), nil
}

// ScopeToAny converts s to its object form. Zero fields are omitted.
func ScopeToAny(s EntityScope) map[string]any {
	out := map[string]any{"type": s.Type.String()}
	if s.ID != 0 {
		out["id"] = uint64(s.ID)
	}
	if s.Type == ScopeInRegister || s.Register != 0 {
		out["register"] = int64(s.Register)
	}
	if s.Group != 0 {
		out["group"] = uint64(s.Group)
	}
	if s.Search != "" {
		out["search"] = s.Search
	}
	if s.Links != "" {
		out["links"] = s.Links
	}
	if s.UseFirst {
		out["use_first"] = true
	}
	if s.UseFirstLink {
		out["use_first_link"] = true
	}
	return out
}

// ParseScope decodes an EntityScope from its object form. A bare string is
// shorthand for a scope with only a type, e.g. "self".
func ParseScope(raw any) (EntityScope, error) {
	switch x := raw.(type) {
	case nil:
		return EntityScope{}, nil
	case string:
		t, ok := ParseScopeType(x)
		if !ok {
			return EntityScope{}, fmt.Errorf("unknown scope type %q", x)
		}
		return EntityScope{Type: t}, nil
	case map[string]any:
		var s EntityScope
		name, _ := x["type"].(string)
		t, ok := ParseScopeType(name)
		if !ok {
			return s, fmt.Errorf("unknown scope type %q", name)
		}
		s.Type = t
		for key, v := range x {
			switch key {
			case "type":
			case "id":
				id, err := parseHashID(v)
				if err != nil {
					return s, fmt.Errorf("id: %w", err)
				}
				s.ID = EntityID(id)
			case "group":
				id, err := parseHashID(v)
				if err != nil {
					return s, fmt.Errorf("group: %w", err)
				}
				s.Group = GroupID(id)
			case "register":
				n, ok := toInt64(v)
				if !ok {
					return s, fmt.Errorf("register: expected integer, got %v", v)
				}
				s.Register = int(n)
			case "search":
				s.Search, _ = v.(string)
			case "links":
				s.Links, _ = v.(string)
			case "use_first":
				s.UseFirst, _ = v.(bool)
			case "use_first_link":
				s.UseFirstLink, _ = v.(bool)
			default:
				return s, fmt.Errorf("unknown scope field %q", key)
			}
		}
		return s, nil
	default:
		return EntityScope{}, fmt.Errorf("cannot parse scope from %T", raw)
	}
}

// MarshalValue encodes v as canonical tagged JSON.
func MarshalValue(v Value) ([]byte, error) {
	return MarshalCanonical(ValueToAny(v))
}

// UnmarshalValue decodes tagged JSON produced by MarshalValue.
func UnmarshalValue(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return ParseValue(raw)
}

func toFloat64(x any) (float64, bool) {
	switch n := x.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func toInt64(x any) (int64, bool) {
	switch n := x.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	if f, ok := toFloat64(x); ok && f == math.Trunc(f) {
		return int64(f), true
	}
	return 0, false
}
