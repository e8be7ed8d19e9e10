package ir

import "fmt"

// EntityScopedIdentifier names a query, action or trigger together with the
// scope of entities it applies to.
type EntityScopedIdentifier struct {
	Scope EntityScope
	ID    MethodID
}

func (e EntityScopedIdentifier) String() string {
	return fmt.Sprintf("%s@%s", e.ID, e.Scope)
}

// ResolveMode selects where a ResolvableValue reads from.
type ResolveMode uint8

const (
	ModeValue ResolveMode = iota
	ModeArgument
	ModeRegister
	ModeQuery
)

var resolveModeNames = [...]string{
	ModeValue:    "value",
	ModeArgument: "argument",
	ModeRegister: "register",
	ModeQuery:    "query",
}

func (m ResolveMode) String() string {
	if int(m) < len(resolveModeNames) {
		return resolveModeNames[m]
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

// ParseResolveMode maps a mode name back to its ResolveMode.
func ParseResolveMode(name string) (ResolveMode, bool) {
	for m, n := range resolveModeNames {
		if n == name {
			return ResolveMode(m), true
		}
	}
	return ModeValue, false
}

// ResolvableValue is a value produced at evaluation time: a literal, the
// trigger argument, a register slot, or the result of a query over a scope.
type ResolvableValue struct {
	Mode     ResolveMode
	Value    Value
	Register int
	Query    EntityScopedIdentifier
	Args     []NestedValue
}

// NestedValue is a query argument. Its Query carries no argument list of
// its own, which bounds nesting at one level.
type NestedValue struct {
	Mode     ResolveMode
	Value    Value
	Register int
	Query    EntityScopedIdentifier
}

// Literal wraps a constant.
func Literal(v Value) ResolvableValue {
	return ResolvableValue{Mode: ModeValue, Value: v}
}

// FromArgument reads the trigger argument.
func FromArgument() ResolvableValue {
	return ResolvableValue{Mode: ModeArgument}
}

// FromRegister reads register r.
func FromRegister(r int) ResolvableValue {
	return ResolvableValue{Mode: ModeRegister, Register: r}
}

// FromQuery invokes query id over scope with the given arguments.
func FromQuery(scope EntityScope, id MethodID, args ...NestedValue) ResolvableValue {
	return ResolvableValue{
		Mode:  ModeQuery,
		Query: EntityScopedIdentifier{Scope: scope, ID: id},
		Args:  args,
	}
}

// Nested converts r to a NestedValue, dropping its argument list.
func (r ResolvableValue) Nested() NestedValue {
	return NestedValue{Mode: r.Mode, Value: r.Value, Register: r.Register, Query: r.Query}
}

// Resolvable lifts n back to a ResolvableValue with no arguments.
func (n NestedValue) Resolvable() ResolvableValue {
	return ResolvableValue{Mode: n.Mode, Value: n.Value, Register: n.Register, Query: n.Query}
}

// UsesRegisters reports whether resolving r touches the register bank,
// either directly or through an InRegister scope.
func (r ResolvableValue) UsesRegisters() bool {
	if r.Mode == ModeRegister {
		return true
	}
	if r.Mode == ModeQuery && r.Query.Scope.Type == ScopeInRegister {
		return true
	}
	for _, a := range r.Args {
		if a.Resolvable().UsesRegisters() {
			return true
		}
	}
	return scopeValueUsesRegisters(r.Value)
}

// UsesArgument reports whether resolving r reads the trigger argument.
func (r ResolvableValue) UsesArgument() bool {
	if r.Mode == ModeArgument {
		return true
	}
	if r.Mode == ModeQuery && r.Query.Scope.Type == ScopeArgument {
		return true
	}
	for _, a := range r.Args {
		if a.Resolvable().UsesArgument() {
			return true
		}
	}
	return false
}

func scopeValueUsesRegisters(v Value) bool {
	s, ok := v.(Scope)
	return ok && s.Type == ScopeInRegister
}

func (r ResolvableValue) String() string {
	switch r.Mode {
	case ModeValue:
		return Format(r.Value)
	case ModeArgument:
		return "argument"
	case ModeRegister:
		return fmt.Sprintf("register[%d]", r.Register)
	case ModeQuery:
		return fmt.Sprintf("query(%s, %d args)", r.Query, len(r.Args))
	}
	return r.Mode.String()
}
