package ir

import (
	"fmt"
	"slices"
)

// CompareOperator is the comparison a condition applies.
type CompareOperator uint8

const (
	OpEqual CompareOperator = iota
	OpNotEqual
	OpLess
	OpLessEqual
	OpGreater
	OpGreaterEqual
)

var operatorNames = [...]string{
	OpEqual:        "==",
	OpNotEqual:     "!=",
	OpLess:         "<",
	OpLessEqual:    "<=",
	OpGreater:      ">",
	OpGreaterEqual: ">=",
}

func (op CompareOperator) String() string {
	if int(op) < len(operatorNames) {
		return operatorNames[op]
	}
	return fmt.Sprintf("op(%d)", uint8(op))
}

// ParseOperator maps "==", "<" etc. to a CompareOperator.
func ParseOperator(s string) (CompareOperator, bool) {
	for op, n := range operatorNames {
		if n == s {
			return CompareOperator(op), true
		}
	}
	return OpEqual, false
}

// IsOrdered reports whether op needs an ordering rather than equality.
func (op CompareOperator) IsOrdered() bool {
	return op >= OpLess && op <= OpGreaterEqual
}

// OperatorLegal reports whether op is meaningful for values of kind k.
// Ordered comparisons are only defined for Int and Float.
func OperatorLegal(op CompareOperator, k Kind) bool {
	if int(op) >= len(operatorNames) {
		return false
	}
	if !op.IsOrdered() {
		return k != KindInvalid
	}
	return k == KindInt || k == KindFloat
}

// Subset aggregates a predicate across many values or conditions.
type Subset uint8

const (
	SubsetAll Subset = iota
	SubsetAny
	SubsetNone
)

var subsetNames = [...]string{
	SubsetAll:  "all",
	SubsetAny:  "any",
	SubsetNone: "none",
}

func (s Subset) String() string {
	if int(s) < len(subsetNames) {
		return subsetNames[s]
	}
	return fmt.Sprintf("subset(%d)", uint8(s))
}

// ParseSubset maps "all", "any" or "none" to a Subset.
func ParseSubset(name string) (Subset, bool) {
	for s, n := range subsetNames {
		if n == name {
			return Subset(s), true
		}
	}
	return SubsetAll, false
}

// Condition compares a queried value with a target value.
type Condition struct {
	Enabled  bool
	Query    ResolvableValue
	Operator CompareOperator
	Target   ResolvableValue
	Subset   Subset
}

// Action invokes a registered action over a scope of entities.
type Action struct {
	Enabled bool
	Method  EntityScopedIdentifier
	Args    []ResolvableValue
}

// RuleFlags caches properties derived from a rule's conditions and actions.
type RuleFlags uint8

const (
	FlagUsesRegisters RuleFlags = 1 << iota
	FlagUsesArgument
)

// Has reports whether all bits of f are set.
func (r RuleFlags) Has(f RuleFlags) bool { return r&f == f }

// Rule binds a trigger to conditions and an ordered action list.
type Rule struct {
	ID            string
	Name          string
	RoutineGroup  string
	Flags         RuleFlags
	Enabled       bool
	OnlyOnce      bool
	DontInterrupt bool
	Trigger       TriggerID
	Subset        Subset
	Conditions    []Condition
	Actions       []Action
}

// RecomputeFlags derives Flags from the rule's conditions and actions.
func (r *Rule) RecomputeFlags() {
	var flags RuleFlags
	mark := func(v ResolvableValue) {
		if v.UsesRegisters() {
			flags |= FlagUsesRegisters
		}
		if v.UsesArgument() {
			flags |= FlagUsesArgument
		}
	}
	markScope := func(s EntityScope) {
		switch s.Type {
		case ScopeInRegister:
			flags |= FlagUsesRegisters
		case ScopeArgument:
			flags |= FlagUsesArgument
		}
	}
	for _, c := range r.Conditions {
		mark(c.Query)
		mark(c.Target)
	}
	for _, a := range r.Actions {
		markScope(a.Method.Scope)
		for _, arg := range a.Args {
			mark(arg)
		}
	}
	r.Flags = flags
}

// RuleTable is the authored list of rules owned by one entity.
// UniqueTriggers always equals the deduplicated, first-seen-ordered trigger
// ids of Rules as long as rules are edited through the table's methods.
type RuleTable struct {
	Name           string
	Rules          []Rule
	UniqueTriggers []TriggerID
}

// NewRuleTable builds a table from rules, deriving flags and triggers.
func NewRuleTable(name string, rules ...Rule) *RuleTable {
	t := &RuleTable{Name: name, Rules: rules}
	for i := range t.Rules {
		t.Rules[i].RecomputeFlags()
	}
	t.RecomputeTriggers()
	return t
}

// RecomputeTriggers re-derives UniqueTriggers from Rules. Call it after
// editing rule triggers directly.
func (t *RuleTable) RecomputeTriggers() {
	ids := make([]TriggerID, len(t.Rules))
	for i, r := range t.Rules {
		ids[i] = r.Trigger
	}
	t.UniqueTriggers = DedupeTriggers(ids)
}

// Index returns the position of the rule with id, or -1.
func (t *RuleTable) Index(id string) int {
	return slices.IndexFunc(t.Rules, func(r Rule) bool { return r.ID == id })
}

// Rule returns the rule with id, or nil.
func (t *RuleTable) Rule(id string) *Rule {
	if i := t.Index(id); i >= 0 {
		return &t.Rules[i]
	}
	return nil
}

// AddRule appends r. Rule ids must be unique within a table.
func (t *RuleTable) AddRule(r Rule) error {
	if r.ID == "" {
		return fmt.Errorf("rule id is empty")
	}
	if t.Index(r.ID) >= 0 {
		return fmt.Errorf("duplicate rule id %q", r.ID)
	}
	r.RecomputeFlags()
	t.Rules = append(t.Rules, r)
	t.RecomputeTriggers()
	return nil
}

// RemoveRule deletes the rule with id and reports whether it existed.
func (t *RuleTable) RemoveRule(id string) bool {
	i := t.Index(id)
	if i < 0 {
		return false
	}
	t.Rules = slices.Delete(t.Rules, i, i+1)
	t.RecomputeTriggers()
	return true
}

// MoveRule moves the rule with id to position to. Table order is the order
// rules are evaluated in, so moves can reorder UniqueTriggers.
func (t *RuleTable) MoveRule(id string, to int) error {
	i := t.Index(id)
	if i < 0 {
		return fmt.Errorf("unknown rule %q", id)
	}
	if to < 0 || to >= len(t.Rules) {
		return fmt.Errorf("position %d out of range [0, %d)", to, len(t.Rules))
	}
	r := t.Rules[i]
	t.Rules = slices.Delete(t.Rules, i, i+1)
	t.Rules = slices.Insert(t.Rules, to, r)
	t.RecomputeTriggers()
	return nil
}

// SetRuleTrigger changes the trigger of the rule with id.
func (t *RuleTable) SetRuleTrigger(id string, trigger TriggerID) error {
	r := t.Rule(id)
	if r == nil {
		return fmt.Errorf("unknown rule %q", id)
	}
	r.Trigger = trigger
	t.RecomputeTriggers()
	return nil
}

// Clone returns a deep copy of the table's rule structure.
func (t *RuleTable) Clone() *RuleTable {
	out := &RuleTable{Name: t.Name, Rules: make([]Rule, len(t.Rules))}
	for i, r := range t.Rules {
		r.Conditions = slices.Clone(r.Conditions)
		r.Actions = slices.Clone(r.Actions)
		for j := range r.Actions {
			r.Actions[j].Args = slices.Clone(r.Actions[j].Args)
		}
		out.Rules[i] = r
	}
	out.UniqueTriggers = slices.Clone(t.UniqueTriggers)
	return out
}

// RuleState is the persisted per-rule bitmask.
type RuleState uint8

const (
	StateEnabled RuleState = 1 << iota
	StateFired
)

// Has reports whether all bits of s are set.
func (r RuleState) Has(s RuleState) bool { return r&s == s }

func (r RuleState) String() string {
	switch {
	case r.Has(StateEnabled | StateFired):
		return "enabled|fired"
	case r.Has(StateEnabled):
		return "enabled"
	case r.Has(StateFired):
		return "fired"
	}
	return "disabled"
}

// PersistedRule is the saved state of one rule.
type PersistedRule struct {
	ID    string
	State RuleState
}
