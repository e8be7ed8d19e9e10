package ir

import (
	"errors"
	"fmt"
	"math"
)

// Kind tags the active variant of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindInt
	KindBool
	KindColor
	KindFloat
	KindVector2
	KindVector3
	KindVector4
	KindString
	KindEnum
	KindScope
	KindGroup
	KindTrigger
	KindInvalid
)

var kindNames = [...]string{
	KindNull:    "null",
	KindInt:     "int",
	KindBool:    "bool",
	KindColor:   "color",
	KindFloat:   "float",
	KindVector2: "vector2",
	KindVector3: "vector3",
	KindVector4: "vector4",
	KindString:  "string",
	KindEnum:    "enum",
	KindScope:   "scope",
	KindGroup:   "group",
	KindTrigger: "trigger",
	KindInvalid: "invalid",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind maps a kind name back to its Kind.
func ParseKind(name string) (Kind, bool) {
	for k, n := range kindNames {
		if n == name {
			return Kind(k), true
		}
	}
	return KindInvalid, false
}

// IsNumeric reports whether the kind takes part in Int/Bool/Float widening.
func (k Kind) IsNumeric() bool {
	return k == KindInt || k == KindBool || k == KindFloat
}

// IsVector reports whether the kind is one of the four-component
// reinterpretations (Color, Vector2/3/4).
func (k Kind) IsVector() bool {
	return k == KindColor || k == KindVector2 || k == KindVector3 || k == KindVector4
}

// Value is a sealed interface over the runtime-exchangeable data kinds.
// Only the types declared in this file implement it.
// A nil Value is treated as Null everywhere.
type Value interface {
	Kind() Kind
	value() // Sealed
}

// Null is the empty value.
type Null struct{}

// Int is a 32-bit integer value.
type Int int32

// Bool is a boolean value.
type Bool bool

// Float is a 32-bit float value.
type Float float32

// Color is an RGBA color.
type Color [4]float32

// Vector2 is a two-component vector.
type Vector2 [2]float32

// Vector3 is a three-component vector.
type Vector3 [3]float32

// Vector4 is a four-component vector.
type Vector4 [4]float32

// String is a text value.
type String string

// Enum is an integer tagged with the name of its enum type.
type Enum struct {
	Type  string
	Value int32
}

// Scope carries an EntityScope as a value.
type Scope struct {
	EntityScope
}

// Group carries a group id.
type Group GroupID

// Trigger carries a trigger id.
type Trigger TriggerID

// Invalid marks a value that failed to resolve.
type Invalid struct{}

func (Null) Kind() Kind    { return KindNull }
func (Int) Kind() Kind     { return KindInt }
func (Bool) Kind() Kind    { return KindBool }
func (Color) Kind() Kind   { return KindColor }
func (Float) Kind() Kind   { return KindFloat }
func (Vector2) Kind() Kind { return KindVector2 }
func (Vector3) Kind() Kind { return KindVector3 }
func (Vector4) Kind() Kind { return KindVector4 }
func (String) Kind() Kind  { return KindString }
func (Enum) Kind() Kind    { return KindEnum }
func (Scope) Kind() Kind   { return KindScope }
func (Group) Kind() Kind   { return KindGroup }
func (Trigger) Kind() Kind { return KindTrigger }
func (Invalid) Kind() Kind { return KindInvalid }

func (Null) value()    {}
func (Int) value()     {}
func (Bool) value()    {}
func (Color) value()   {}
func (Float) value()   {}
func (Vector2) value() {}
func (Vector3) value() {}
func (Vector4) value() {}
func (String) value()  {}
func (Enum) value()    {}
func (Scope) value()   {}
func (Group) value()   {}
func (Trigger) value() {}
func (Invalid) value() {}

// KindOf returns the kind of v, treating nil as Null.
func KindOf(v Value) Kind {
	if v == nil {
		return KindNull
	}
	return v.Kind()
}

// Normalize replaces a nil Value with Null.
func Normalize(v Value) Value {
	if v == nil {
		return Null{}
	}
	return v
}

// Zero returns the zero value of kind k.
func Zero(k Kind) Value {
	switch k {
	case KindInt:
		return Int(0)
	case KindBool:
		return Bool(false)
	case KindColor:
		return Color{}
	case KindFloat:
		return Float(0)
	case KindVector2:
		return Vector2{}
	case KindVector3:
		return Vector3{}
	case KindVector4:
		return Vector4{}
	case KindString:
		return String("")
	case KindEnum:
		return Enum{}
	case KindScope:
		return Scope{}
	case KindGroup:
		return Group(0)
	case KindTrigger:
		return Trigger(0)
	case KindInvalid:
		return Invalid{}
	}
	return Null{}
}

// ErrTypeMismatch is matched by every accessor failure.
var ErrTypeMismatch = errors.New("value type mismatch")

// TypeMismatchError reports an accessor applied to an incompatible kind.
type TypeMismatchError struct {
	Want Kind
	Got  Kind
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("value type mismatch: want %s, got %s", e.Want, e.Got)
}

// Is makes errors.Is(err, ErrTypeMismatch) succeed.
func (e *TypeMismatchError) Is(target error) bool {
	return target == ErrTypeMismatch
}

func mismatch(want Kind, v Value) error {
	return &TypeMismatchError{Want: want, Got: KindOf(v)}
}

// Of builds a Value from a supported native Go value.
func Of(x any) (Value, error) {
	switch v := x.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return v, nil
	case int:
		if v > math.MaxInt32 || v < math.MinInt32 {
			return nil, fmt.Errorf("int %d overflows int32", v)
		}
		return Int(v), nil
	case int8:
		return Int(v), nil
	case int16:
		return Int(v), nil
	case int32:
		return Int(v), nil
	case int64:
		if v > math.MaxInt32 || v < math.MinInt32 {
			return nil, fmt.Errorf("int %d overflows int32", v)
		}
		return Int(v), nil
	case uint8:
		return Int(v), nil
	case uint16:
		return Int(v), nil
	case bool:
		return Bool(v), nil
	case float32:
		return Float(v), nil
	case float64:
		return Float(v), nil
	case string:
		return String(v), nil
	case [4]float32:
		return Color(v), nil
	case [2]float32:
		return Vector2(v), nil
	case [3]float32:
		return Vector3(v), nil
	case EntityScope:
		return Scope{v}, nil
	case GroupID:
		return Group(v), nil
	case TriggerID:
		return Trigger(v), nil
	default:
		return nil, fmt.Errorf("unsupported native type %T", x)
	}
}

// MustOf is like Of but panics on unsupported input.
func MustOf(x any) Value {
	v, err := Of(x)
	if err != nil {
		panic(err)
	}
	return v
}

// AsInt reads v as an int32. Bool widens to 1/0, Float truncates,
// Enum yields its integer value.
func AsInt(v Value) (int32, error) {
	switch x := v.(type) {
	case Int:
		return int32(x), nil
	case Bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case Float:
		return int32(x), nil
	case Enum:
		return x.Value, nil
	default:
		return 0, mismatch(KindInt, v)
	}
}

// AsBool reads v as a bool. Numbers are true when non-zero.
func AsBool(v Value) (bool, error) {
	switch x := v.(type) {
	case Bool:
		return bool(x), nil
	case Int:
		return x != 0, nil
	case Float:
		return x != 0, nil
	default:
		return false, mismatch(KindBool, v)
	}
}

// AsFloat reads v as a float32. Int and Bool widen.
func AsFloat(v Value) (float32, error) {
	switch x := v.(type) {
	case Float:
		return float32(x), nil
	case Int:
		return float32(x), nil
	case Bool:
		if x {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, mismatch(KindFloat, v)
	}
}

// components reinterprets any vector-family value as four components.
func components(v Value) ([4]float32, bool) {
	switch x := v.(type) {
	case Color:
		return [4]float32(x), true
	case Vector4:
		return [4]float32(x), true
	case Vector3:
		return [4]float32{x[0], x[1], x[2], 0}, true
	case Vector2:
		return [4]float32{x[0], x[1], 0, 0}, true
	default:
		return [4]float32{}, false
	}
}

// AsColor reads any vector-family value as a Color.
func AsColor(v Value) (Color, error) {
	c, ok := components(v)
	if !ok {
		return Color{}, mismatch(KindColor, v)
	}
	return Color(c), nil
}

// AsVector2 reads any vector-family value as a Vector2.
func AsVector2(v Value) (Vector2, error) {
	c, ok := components(v)
	if !ok {
		return Vector2{}, mismatch(KindVector2, v)
	}
	return Vector2{c[0], c[1]}, nil
}

// AsVector3 reads any vector-family value as a Vector3.
func AsVector3(v Value) (Vector3, error) {
	c, ok := components(v)
	if !ok {
		return Vector3{}, mismatch(KindVector3, v)
	}
	return Vector3{c[0], c[1], c[2]}, nil
}

// AsVector4 reads any vector-family value as a Vector4.
func AsVector4(v Value) (Vector4, error) {
	c, ok := components(v)
	if !ok {
		return Vector4{}, mismatch(KindVector4, v)
	}
	return Vector4(c), nil
}

// AsString reads v as a string. No coercion.
func AsString(v Value) (string, error) {
	if x, ok := v.(String); ok {
		return string(x), nil
	}
	return "", mismatch(KindString, v)
}

// AsEnum reads v as an Enum. An Int reads as an enum of unnamed type.
func AsEnum(v Value) (Enum, error) {
	switch x := v.(type) {
	case Enum:
		return x, nil
	case Int:
		return Enum{Value: int32(x)}, nil
	default:
		return Enum{}, mismatch(KindEnum, v)
	}
}

// AsScope reads v as an EntityScope. Null reads as the Null scope.
func AsScope(v Value) (EntityScope, error) {
	switch x := v.(type) {
	case Scope:
		return x.EntityScope, nil
	case Null, nil:
		return EntityScope{}, nil
	default:
		return EntityScope{}, mismatch(KindScope, v)
	}
}

// AsGroup reads v as a GroupID.
func AsGroup(v Value) (GroupID, error) {
	if x, ok := v.(Group); ok {
		return GroupID(x), nil
	}
	return 0, mismatch(KindGroup, v)
}

// AsTrigger reads v as a TriggerID.
func AsTrigger(v Value) (TriggerID, error) {
	if x, ok := v.(Trigger); ok {
		return TriggerID(x), nil
	}
	return 0, mismatch(KindTrigger, v)
}

// MustInt is AsInt for callers that have already checked the kind.
// A mismatch is a broken internal invariant and panics.
func MustInt(v Value) int32 {
	n, err := AsInt(v)
	if err != nil {
		panic(err)
	}
	return n
}

// MustFloat is AsFloat that panics on mismatch.
func MustFloat(v Value) float32 {
	f, err := AsFloat(v)
	if err != nil {
		panic(err)
	}
	return f
}

// MustBool is AsBool that panics on mismatch.
func MustBool(v Value) bool {
	b, err := AsBool(v)
	if err != nil {
		panic(err)
	}
	return b
}

// MustString is AsString that panics on mismatch.
func MustString(v Value) string {
	s, err := AsString(v)
	if err != nil {
		panic(err)
	}
	return s
}

// Convertible reports whether a value of kind from can be read through the
// accessor for kind to.
func Convertible(from, to Kind) bool {
	if from == to {
		return true
	}
	switch {
	case to == KindInt:
		return from.IsNumeric() || from == KindEnum
	case to == KindBool, to == KindFloat:
		return from.IsNumeric()
	case to.IsVector():
		return from.IsVector()
	case to == KindEnum:
		return from == KindInt
	case to == KindScope:
		return from == KindNull
	}
	return false
}

// Equal compares two values structurally over (kind, payload).
// Floats compare by bit pattern so that equal values always hash equally.
func Equal(a, b Value) bool {
	a, b = Normalize(a), Normalize(b)
	if a.Kind() != b.Kind() {
		return false
	}
	switch x := a.(type) {
	case Float:
		return math.Float32bits(float32(x)) == math.Float32bits(float32(b.(Float)))
	case Color, Vector2, Vector3, Vector4:
		ca, _ := components(x)
		cb, _ := components(b)
		for i := range ca {
			if math.Float32bits(ca[i]) != math.Float32bits(cb[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

// Format renders a value for logs and reports.
func Format(v Value) string {
	switch x := Normalize(v).(type) {
	case Null:
		return "null"
	case Invalid:
		return "invalid"
	case Int:
		return fmt.Sprintf("%d", int32(x))
	case Bool:
		return fmt.Sprintf("%t", bool(x))
	case Float:
		return fmt.Sprintf("%g", float32(x))
	case String:
		return fmt.Sprintf("%q", string(x))
	case Color:
		return fmt.Sprintf("rgba(%g, %g, %g, %g)", x[0], x[1], x[2], x[3])
	case Vector2:
		return fmt.Sprintf("(%g, %g)", x[0], x[1])
	case Vector3:
		return fmt.Sprintf("(%g, %g, %g)", x[0], x[1], x[2])
	case Vector4:
		return fmt.Sprintf("(%g, %g, %g, %g)", x[0], x[1], x[2], x[3])
	case Enum:
		return fmt.Sprintf("%s(%d)", x.Type, x.Value)
	case Scope:
		return x.EntityScope.String()
	case Group:
		return "group:" + GroupID(x).String()
	case Trigger:
		return "trigger:" + TriggerID(x).String()
	default:
		return fmt.Sprintf("%v", x)
	}
}
