package library

import (
	"context"
	"log/slog"

	"github.com/FilamentGames/rulescript/internal/entity"
	"github.com/FilamentGames/rulescript/internal/ir"
	"github.com/FilamentGames/rulescript/internal/routine"
)

// QueryFunc computes a value for one target entity.
type QueryFunc func(c Call) ir.Value

// ActionFunc performs an action on one target entity. A non-nil routine
// suspends the caller until it finishes.
type ActionFunc func(c Call) (ir.Value, routine.Routine)

// Scope is the view of the invoking execution scope that methods see.
type Scope interface {
	Self() entity.Entity
	Argument() ir.Value

	HasRegisters() bool
	// RegisterCount is the size of the register bank, 0 without one.
	RegisterCount() int
	Register(i int) ir.Value
	SetRegister(i int, v ir.Value)

	// Trigger dispatches trigger to target and returns the number of rules
	// that fired.
	Trigger(target entity.Entity, trigger ir.TriggerID, arg ir.Value) int
	// Broadcast dispatches trigger to every listener.
	Broadcast(trigger ir.TriggerID, arg ir.Value) int
	// Rules returns the rule controller of e, or nil when e owns no table.
	Rules(e entity.Entity) RuleController
	// Entities is the host's entity manager.
	Entities() entity.Manager

	Frame() int64
	Logger() *slog.Logger
}

// RuleController is the subset of a runtime rule table that actions may
// drive. Patterns accept '*' and '?' wildcards. Each call returns the
// number of rules affected.
type RuleController interface {
	EnableRule(pattern string) int
	DisableRule(pattern string) int
	StopRule(pattern string) int
	EnableGroup(pattern string) int
	DisableGroup(pattern string) int
	StopGroup(pattern string) int
}

// CustomPersister is implemented by component instances that persist
// state not expressible as typed fields.
type CustomPersister interface {
	PersistCustom() ([]byte, error)
	RestoreCustom(data []byte) error
}

// Call carries everything a query or action invocation needs.
type Call struct {
	Ctx    context.Context
	Scope  Scope
	Target entity.Entity
	// Component is the owning component instance of Target for
	// component-owned methods, nil otherwise.
	Component any
	Args      []ir.Value
}

// Arg returns argument i, or Null when out of range.
func (c Call) Arg(i int) ir.Value {
	if i < 0 || i >= len(c.Args) {
		return ir.Null{}
	}
	return ir.Normalize(c.Args[i])
}

// IntArg reads argument i as an int, returning 0 on mismatch.
func (c Call) IntArg(i int) int32 {
	n, _ := ir.AsInt(c.Arg(i))
	return n
}

// StringArg reads argument i as a string, returning "" on mismatch.
func (c Call) StringArg(i int) string {
	s, _ := ir.AsString(c.Arg(i))
	return s
}

// ParamDef declares one parameter of a trigger, query or action.
type ParamDef struct {
	Name        string
	Description string
	Kind        ir.Kind
	// Default is used when an argument is omitted. Nil means the zero
	// value of Kind.
	Default ir.Value
	// Enum names the enum type for KindEnum parameters.
	Enum string
}

// TriggerDef declares a trigger. Triggers carry at most one parameter,
// which is the argument passed on dispatch.
type TriggerDef struct {
	Key         string
	Name        string
	Description string
	Owner       string
	Params      []ParamDef
}

// QueryDef declares a query.
type QueryDef struct {
	Key         string
	Name        string
	Description string
	Owner       string
	Params      []ParamDef
	Returns     ir.Kind
	ReturnEnum  string
	Func        QueryFunc
}

// ActionDef declares an action.
type ActionDef struct {
	Key         string
	Name        string
	Description string
	Owner       string
	Params      []ParamDef
	Returns     ir.Kind
	Func        ActionFunc
}

// FieldDef declares a persisted component field.
type FieldDef struct {
	Name string
	Kind ir.Kind
	Get  func(component any) ir.Value
	Set  func(component any, v ir.Value) error
}

// ComponentDef declares a component type.
type ComponentDef struct {
	Type        string
	Name        string
	Description string
	Fields      []FieldDef
}

// GroupDef declares a named entity group.
type GroupDef struct {
	Key         string
	Name        string
	Description string
}

// EnumValueDef is one member of an enum.
type EnumValueDef struct {
	Name  string
	Value int32
}

// EnumDef declares an enum type.
type EnumDef struct {
	Key    string
	Name   string
	Values []EnumValueDef
}

// EnumInfo is a linked enum type.
type EnumInfo struct {
	Key    string
	Name   string
	Values []EnumValueDef
}

// ValueName returns the member name for v, or "".
func (e *EnumInfo) ValueName(v int32) string {
	for _, m := range e.Values {
		if m.Value == v {
			return m.Name
		}
	}
	return ""
}

// Lookup returns the value of member name.
func (e *EnumInfo) Lookup(name string) (int32, bool) {
	for _, m := range e.Values {
		if m.Name == name {
			return m.Value, true
		}
	}
	return 0, false
}

// ParameterInfo is a linked parameter.
type ParameterInfo struct {
	Name        string
	Description string
	Kind        ir.Kind
	Default     ir.Value
	Enum        *EnumInfo
}

// FieldInfo is a linked component field.
type FieldInfo struct {
	Name string
	Kind ir.Kind
	Get  func(component any) ir.Value
	Set  func(component any, v ir.Value) error
}

// ComponentInfo is a linked component type.
type ComponentInfo struct {
	Type        string
	Name        string
	Description string
	Fields      []FieldInfo
}

// Field returns the field named name, or nil.
func (c *ComponentInfo) Field(name string) *FieldInfo {
	for i := range c.Fields {
		if c.Fields[i].Name == name {
			return &c.Fields[i]
		}
	}
	return nil
}

// GroupInfo is a registered group.
type GroupInfo struct {
	ID          ir.GroupID
	Key         string
	Name        string
	Description string
}

// Owner describes what a trigger or method binds to. The zero Owner is
// global.
type Owner struct {
	Type      string
	Component *ComponentInfo
}

// AnyEntity is the owner type of methods that apply to every entity a
// scope resolves to, whatever its type or components.
const AnyEntity = "*"

// IsGlobal reports whether the owner is the global entity.
func (o Owner) IsGlobal() bool { return o.Type == "" }

// IsAny reports whether the owner accepts every entity.
func (o Owner) IsAny() bool { return o.Type == AnyEntity }

// IsComponent reports whether the owner is a component type.
func (o Owner) IsComponent() bool { return o.Component != nil }

// Accepts reports whether e can be targeted: its type matches an entity
// owner or it carries the owning component.
func (o Owner) Accepts(e entity.Entity) bool {
	if e == nil {
		return false
	}
	if o.IsGlobal() || o.IsAny() {
		return true
	}
	if o.IsComponent() {
		return e.Component(o.Type) != nil
	}
	return e.Type() == o.Type
}

// TriggerInfo is a linked trigger.
type TriggerInfo struct {
	ID          ir.TriggerID
	Key         string
	Name        string
	Description string
	Owner       Owner
	Params      []ParameterInfo
}

// Param returns the trigger's argument parameter, or nil.
func (t *TriggerInfo) Param() *ParameterInfo {
	if len(t.Params) == 0 {
		return nil
	}
	return &t.Params[0]
}

// QueryInfo is a linked query.
type QueryInfo struct {
	ID          ir.MethodID
	Key         string
	Name        string
	Description string
	Owner       Owner
	Params      []ParameterInfo
	Returns     ir.Kind
	ReturnEnum  *EnumInfo
	DefaultArgs []ir.Value
	Func        QueryFunc
}

// ActionInfo is a linked action.
type ActionInfo struct {
	ID          ir.MethodID
	Key         string
	Name        string
	Description string
	Owner       Owner
	Params      []ParameterInfo
	Returns     ir.Kind
	DefaultArgs []ir.Value
	Func        ActionFunc
}
