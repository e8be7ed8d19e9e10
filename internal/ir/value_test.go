package ir

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueSealed(t *testing.T) {
	var _ Value = Null{}
	var _ Value = Int(1)
	var _ Value = Bool(true)
	var _ Value = Float(1)
	var _ Value = Color{}
	var _ Value = Vector2{}
	var _ Value = Vector3{}
	var _ Value = Vector4{}
	var _ Value = String("s")
	var _ Value = Enum{}
	var _ Value = Scope{}
	var _ Value = Group(0)
	var _ Value = Trigger(0)
	var _ Value = Invalid{}
}

func TestOfNativeRoundTrip(t *testing.T) {
	v, err := Of(42)
	require.NoError(t, err)
	n, err := AsInt(v)
	require.NoError(t, err)
	assert.Equal(t, int32(42), n)

	v, err = Of(true)
	require.NoError(t, err)
	b, err := AsBool(v)
	require.NoError(t, err)
	assert.True(t, b)

	v, err = Of(1.5)
	require.NoError(t, err)
	f, err := AsFloat(v)
	require.NoError(t, err)
	assert.Equal(t, float32(1.5), f)

	v, err = Of("hello")
	require.NoError(t, err)
	s, err := AsString(v)
	require.NoError(t, err)
	assert.Equal(t, "hello", s)

	v, err = Of([4]float32{1, 0.5, 0, 1})
	require.NoError(t, err)
	c, err := AsColor(v)
	require.NoError(t, err)
	assert.Equal(t, Color{1, 0.5, 0, 1}, c)

	scope := GroupScope(GroupIDOf("enemies")).First()
	v, err = Of(scope)
	require.NoError(t, err)
	got, err := AsScope(v)
	require.NoError(t, err)
	assert.Equal(t, scope, got)

	v, err = Of(GroupIDOf("enemies"))
	require.NoError(t, err)
	g, err := AsGroup(v)
	require.NoError(t, err)
	assert.Equal(t, GroupIDOf("enemies"), g)

	v, err = Of(nil)
	require.NoError(t, err)
	assert.Equal(t, KindNull, v.Kind())
}

func TestOfRejectsUnsupported(t *testing.T) {
	_, err := Of(struct{}{})
	assert.Error(t, err)

	_, err = Of(int64(1) << 40)
	assert.Error(t, err)
}

func TestAccessorCoercions(t *testing.T) {
	n, err := AsInt(Bool(true))
	require.NoError(t, err)
	assert.Equal(t, int32(1), n)

	n, err = AsInt(Float(3.9))
	require.NoError(t, err)
	assert.Equal(t, int32(3), n)

	n, err = AsInt(Enum{Type: "Team", Value: 2})
	require.NoError(t, err)
	assert.Equal(t, int32(2), n)

	f, err := AsFloat(Int(7))
	require.NoError(t, err)
	assert.Equal(t, float32(7), f)

	b, err := AsBool(Int(0))
	require.NoError(t, err)
	assert.False(t, b)

	b, err = AsBool(Float(0.1))
	require.NoError(t, err)
	assert.True(t, b)

	v3, err := AsVector3(Vector2{1, 2})
	require.NoError(t, err)
	assert.Equal(t, Vector3{1, 2, 0}, v3)

	v2, err := AsVector2(Color{0.1, 0.2, 0.3, 0.4})
	require.NoError(t, err)
	assert.Equal(t, Vector2{0.1, 0.2}, v2)

	c, err := AsColor(Vector4{1, 2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, Color{1, 2, 3, 4}, c)

	e, err := AsEnum(Int(3))
	require.NoError(t, err)
	assert.Equal(t, int32(3), e.Value)

	s, err := AsScope(Null{})
	require.NoError(t, err)
	assert.Equal(t, ScopeNull, s.Type)
}

func TestAccessorMismatch(t *testing.T) {
	tests := []struct {
		name string
		fn   func() error
		want Kind
		got  Kind
	}{
		{"string from int", func() error { _, err := AsString(Int(1)); return err }, KindString, KindInt},
		{"int from string", func() error { _, err := AsInt(String("1")); return err }, KindInt, KindString},
		{"float from color", func() error { _, err := AsFloat(Color{}); return err }, KindFloat, KindColor},
		{"color from float", func() error { _, err := AsColor(Float(1)); return err }, KindColor, KindFloat},
		{"group from trigger", func() error { _, err := AsGroup(Trigger(1)); return err }, KindGroup, KindTrigger},
		{"scope from int", func() error { _, err := AsScope(Int(1)); return err }, KindScope, KindInt},
		{"bool from nil", func() error { _, err := AsBool(nil); return err }, KindBool, KindNull},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fn()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrTypeMismatch))

			var tm *TypeMismatchError
			require.True(t, errors.As(err, &tm))
			assert.Equal(t, tt.want, tm.Want)
			assert.Equal(t, tt.got, tm.Got)
		})
	}
}

func TestMustAccessorsPanic(t *testing.T) {
	assert.Panics(t, func() { MustInt(String("x")) })
	assert.Panics(t, func() { MustString(Int(1)) })
	assert.NotPanics(t, func() { MustFloat(Int(1)) })
}

func TestConvertibleMatchesAccessors(t *testing.T) {
	assert.True(t, Convertible(KindBool, KindInt))
	assert.True(t, Convertible(KindEnum, KindInt))
	assert.True(t, Convertible(KindVector2, KindColor))
	assert.True(t, Convertible(KindString, KindString))
	assert.False(t, Convertible(KindString, KindInt))
	assert.False(t, Convertible(KindEnum, KindFloat))
	assert.False(t, Convertible(KindGroup, KindTrigger))
}

func TestEqualAndHash(t *testing.T) {
	assert.True(t, Equal(Int(5), Int(5)))
	assert.False(t, Equal(Int(5), Float(5)))
	assert.True(t, Equal(nil, Null{}))
	assert.True(t, Equal(Scope{SelfScope()}, Scope{SelfScope()}))
	assert.False(t, Equal(Scope{SelfScope()}, Scope{GlobalScope()}))
	assert.True(t, Equal(Vector3{1, 2, 3}, Vector3{1, 2, 3}))

	assert.Equal(t, Hash(String("abc")), Hash(String("abc")))
	assert.Equal(t, Hash(nil), Hash(Null{}))
	assert.NotEqual(t, Hash(Int(1)), Hash(Bool(true)))
}

func TestMarshalValueTaggedForm(t *testing.T) {
	tests := []struct {
		name     string
		value    Value
		expected string
	}{
		{"null", Null{}, `{"null":true}`},
		{"int", Int(5), `{"int":5}`},
		{"float", Float(1.5), `{"float":1.5}`},
		{"bool", Bool(false), `{"bool":false}`},
		{"vector3", Vector3{1, 2, 3}, `{"vector3":[1,2,3]}`},
		{"enum", Enum{Type: "Team", Value: 2}, `{"enum":{"type":"Team","value":2}}`},
		{"group", Group(7), `{"group":7}`},
		{"scope", Scope{GroupScope(5)}, `{"scope":{"group":5,"type":"group"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := MarshalValue(tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(data))

			back, err := UnmarshalValue(data)
			require.NoError(t, err)
			assert.True(t, Equal(tt.value, back), "got %s", Format(back))
		})
	}
}

func TestParseValueNamesAndScalars(t *testing.T) {
	v, err := ParseValue(map[string]any{"group": "enemies"})
	require.NoError(t, err)
	assert.Equal(t, Group(GroupIDOf("enemies")), v)

	v, err = ParseValue(float64(5))
	require.NoError(t, err)
	assert.Equal(t, Int(5), v)

	v, err = ParseValue(2.5)
	require.NoError(t, err)
	assert.Equal(t, Float(2.5), v)

	v, err = ParseValue(map[string]any{"scope": "self"})
	require.NoError(t, err)
	assert.Equal(t, Scope{SelfScope()}, v)

	_, err = ParseValue(map[string]any{"int": 1, "bool": true})
	assert.Error(t, err)

	_, err = ParseValue(map[string]any{"vector2": []any{1.0}})
	assert.Error(t, err)

	_, err = ParseValue(map[string]any{"nope": 1})
	assert.Error(t, err)
}
