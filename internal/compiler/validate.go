package compiler

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/FilamentGames/rulescript/internal/ir"
	"github.com/FilamentGames/rulescript/internal/library"
)

// Validation codes (V100-V199)
const (
	CodeDuplicateRule     = "V101" // duplicate rule id
	CodeEmptyRuleID       = "V102" // rule id is empty
	CodeEmptyName         = "V103" // rule has no display name (warning)
	CodeUnknownTrigger    = "V110" // trigger id does not resolve
	CodeUnknownQuery      = "V111" // query id does not resolve
	CodeUnknownAction     = "V112" // action id does not resolve
	CodeOutOfScope        = "V113" // descriptor not owned by the table's entity (warning)
	CodeCardinality       = "V120" // multi-entity scope in a single-entity context
	CodeIllegalOperator   = "V121" // operator not defined for the value kind
	CodeKindMismatch      = "V122" // compared kinds never match (warning)
	CodeArgumentCount     = "V130" // too many arguments
	CodeArgumentKind      = "V131" // argument kind not convertible to parameter kind
	CodeRegisterRange     = "V140" // register index outside the bank
	CodeArgumentNoTrigger = "V141" // rule reads an argument its trigger never passes (warning)
)

// Severity classifies a validation message.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Message is one finding of a validation pass.
type Message struct {
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	Text     string   `json:"message"`
}

// Report is a node of the hierarchical validation report: one per table,
// rule, condition and action. Errors and Warnings aggregate over the node
// and all of its children.
type Report struct {
	Name     string    `json:"name"`
	Errors   int       `json:"errors"`
	Warnings int       `json:"warnings"`
	Messages []Message `json:"messages,omitempty"`
	Children []*Report `json:"children,omitempty"`
}

// OK reports whether the report has no errors. Warnings are allowed.
func (r *Report) OK() bool { return r.Errors == 0 }

func (r *Report) add(sev Severity, code, format string, args ...any) {
	r.Messages = append(r.Messages, Message{Severity: sev, Code: code, Text: fmt.Sprintf(format, args...)})
}

func (r *Report) errorf(code, format string, args ...any) {
	r.add(SeverityError, code, format, args...)
}

func (r *Report) warnf(code, format string, args ...any) {
	r.add(SeverityWarning, code, format, args...)
}

func (r *Report) child(name string) *Report {
	c := &Report{Name: name}
	r.Children = append(r.Children, c)
	return c
}

// tally recomputes aggregated counts bottom-up.
func (r *Report) tally() {
	r.Errors, r.Warnings = 0, 0
	for _, m := range r.Messages {
		if m.Severity == SeverityError {
			r.Errors++
		} else {
			r.Warnings++
		}
	}
	for _, c := range r.Children {
		c.tally()
		r.Errors += c.Errors
		r.Warnings += c.Warnings
	}
}

// Format renders the report as indented text. Nodes without findings
// below them are omitted.
func (r *Report) Format(w io.Writer) error {
	return r.format(w, 0)
}

func (r *Report) format(w io.Writer, depth int) error {
	indent := strings.Repeat("  ", depth)
	if _, err := fmt.Fprintf(w, "%s%s: %d error(s), %d warning(s)\n", indent, r.Name, r.Errors, r.Warnings); err != nil {
		return err
	}
	for _, m := range r.Messages {
		if _, err := fmt.Fprintf(w, "%s  [%s] %s: %s\n", indent, m.Code, m.Severity, m.Text); err != nil {
			return err
		}
	}
	for _, c := range r.Children {
		if c.Errors == 0 && c.Warnings == 0 {
			continue
		}
		if err := c.format(w, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// JSON returns the report as indented JSON.
func (r *Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// Context describes the entity a table is validated for. A zero Type skips
// ownership checks. Registers defaults to 8.
type Context struct {
	Type       string
	Components []string
	Registers  int
}

func (c Context) owns(o library.Owner) bool {
	if c.Type == "" || o.IsGlobal() || o.IsAny() {
		return true
	}
	return o.Type == c.Type || slices.Contains(c.Components, o.Type)
}

type validator struct {
	lib *library.Library
	ctx Context
}

// ValidateTable checks table against lib and returns the full report.
// Validation never stops at the first finding.
func ValidateTable(lib *library.Library, table *ir.RuleTable, ctx Context) *Report {
	if ctx.Registers <= 0 {
		ctx.Registers = 8
	}
	v := &validator{lib: lib, ctx: ctx}

	root := &Report{Name: "table " + table.Name}
	seen := make(map[string]bool, len(table.Rules))
	for i := range table.Rules {
		r := &table.Rules[i]
		if r.ID != "" && seen[r.ID] {
			root.errorf(CodeDuplicateRule, "duplicate rule id %q", r.ID)
		}
		seen[r.ID] = true
		v.rule(root.child(fmt.Sprintf("rule %q", r.ID)), r)
	}
	root.tally()
	return root
}

func (v *validator) rule(rep *Report, r *ir.Rule) {
	if strings.TrimSpace(r.ID) == "" {
		rep.errorf(CodeEmptyRuleID, "rule id is empty")
	}
	if strings.TrimSpace(r.Name) == "" {
		rep.warnf(CodeEmptyName, "rule has no display name")
	}

	trigger, ok := v.lib.FindTrigger(r.Trigger)
	if !ok {
		rep.errorf(CodeUnknownTrigger, "unknown trigger %s", r.Trigger)
	} else if !v.ctx.owns(trigger.Owner) {
		rep.warnf(CodeOutOfScope, "trigger %q belongs to %q, not %q", trigger.Key, trigger.Owner.Type, v.ctx.Type)
	}

	flagged := *r
	flagged.RecomputeFlags()
	if trigger != nil && trigger.Param() == nil && flagged.Flags.Has(ir.FlagUsesArgument) {
		rep.warnf(CodeArgumentNoTrigger, "rule reads the trigger argument but %q passes none", trigger.Key)
	}

	var argKind ir.Kind
	hasArgKind := false
	if trigger != nil && trigger.Param() != nil {
		argKind, hasArgKind = trigger.Param().Kind, true
	}

	for i := range r.Conditions {
		v.condition(rep.child(fmt.Sprintf("condition %d", i)), &r.Conditions[i], argKind, hasArgKind)
	}
	for i := range r.Actions {
		v.action(rep.child(fmt.Sprintf("action %d", i)), &r.Actions[i], argKind, hasArgKind)
	}
}

func (v *validator) condition(rep *Report, c *ir.Condition, argKind ir.Kind, hasArgKind bool) {
	queryKind, queryKnown := v.resolvable(rep, "query", c.Query, argKind, hasArgKind, false)
	targetKind, targetKnown := v.resolvable(rep, "target", c.Target, argKind, hasArgKind, true)

	if queryKnown && !ir.OperatorLegal(c.Operator, queryKind) {
		rep.errorf(CodeIllegalOperator, "operator %s is not defined for %s", c.Operator, queryKind)
	}
	if queryKnown && targetKnown && !kindsComparable(queryKind, targetKind) {
		rep.warnf(CodeKindMismatch, "comparing %s with %s is always false", queryKind, targetKind)
	}
}

// kindsComparable mirrors the runtime comparison: ints and floats compare
// with each other, enums with ints, vectors with vectors, everything else
// by equal kind.
func kindsComparable(a, b ir.Kind) bool {
	if a == b || a == ir.KindNull || b == ir.KindNull {
		return true
	}
	if a == ir.KindEnum || b == ir.KindEnum {
		return a == ir.KindInt || b == ir.KindInt
	}
	num := func(k ir.Kind) bool { return k == ir.KindInt || k == ir.KindFloat }
	if num(a) && num(b) {
		return true
	}
	return a.IsVector() && b.IsVector()
}

func (v *validator) action(rep *Report, a *ir.Action, argKind ir.Kind, hasArgKind bool) {
	v.scope(rep, "action scope", a.Method.Scope, false)

	info, ok := v.lib.FindAction(a.Method.ID)
	if !ok {
		rep.errorf(CodeUnknownAction, "unknown action %s", a.Method.ID)
		for i, arg := range a.Args {
			v.resolvable(rep, fmt.Sprintf("argument %d", i), arg, argKind, hasArgKind, true)
		}
		return
	}
	if a.Method.Scope.Type == ir.ScopeSelf && !v.ctx.owns(info.Owner) {
		rep.warnf(CodeOutOfScope, "action %q belongs to %q, not %q", info.Key, info.Owner.Type, v.ctx.Type)
	}
	v.arguments(rep, info.Key, info.Params, a.Args, argKind, hasArgKind)
}

func (v *validator) arguments(rep *Report, key string, params []library.ParameterInfo, args []ir.ResolvableValue, argKind ir.Kind, hasArgKind bool) {
	if len(args) > len(params) {
		rep.errorf(CodeArgumentCount, "%q takes %d argument(s), got %d", key, len(params), len(args))
	}
	for i, arg := range args {
		kind, known := v.resolvable(rep, fmt.Sprintf("argument %d", i), arg, argKind, hasArgKind, true)
		if i >= len(params) || !known {
			continue
		}
		if !ir.Convertible(kind, params[i].Kind) {
			rep.errorf(CodeArgumentKind, "%q argument %d (%s): %s is not convertible to %s",
				key, i, params[i].Name, kind, params[i].Kind)
		}
	}
}

// resolvable checks r and returns the kind it yields when that is known
// statically. single marks contexts that need at most one value.
func (v *validator) resolvable(rep *Report, what string, r ir.ResolvableValue, argKind ir.Kind, hasArgKind, single bool) (ir.Kind, bool) {
	switch r.Mode {
	case ir.ModeValue:
		if s, ok := ir.Normalize(r.Value).(ir.Scope); ok {
			v.scope(rep, what, s.EntityScope, false)
		}
		return ir.KindOf(r.Value), true
	case ir.ModeArgument:
		return argKind, hasArgKind
	case ir.ModeRegister:
		v.register(rep, what, r.Register)
		return 0, false
	case ir.ModeQuery:
		v.scope(rep, what+" scope", r.Query.Scope, single)
		info, ok := v.lib.FindQuery(r.Query.ID)
		if !ok {
			rep.errorf(CodeUnknownQuery, "%s: unknown query %s", what, r.Query.ID)
			return 0, false
		}
		if r.Query.Scope.Type == ir.ScopeSelf && !v.ctx.owns(info.Owner) {
			rep.warnf(CodeOutOfScope, "query %q belongs to %q, not %q", info.Key, info.Owner.Type, v.ctx.Type)
		}
		args := make([]ir.ResolvableValue, len(r.Args))
		for i, a := range r.Args {
			args[i] = a.Resolvable()
		}
		v.arguments(rep, info.Key, info.Params, args, argKind, hasArgKind)
		return info.Returns, true
	}
	return 0, false
}

func (v *validator) scope(rep *Report, what string, s ir.EntityScope, single bool) {
	if s.Type == ir.ScopeInRegister {
		v.register(rep, what, s.Register)
	}
	if single && s.IsMulti() {
		rep.errorf(CodeCardinality, "%s %s may yield many entities where one is expected; set use_first", what, s)
	}
}

func (v *validator) register(rep *Report, what string, i int) {
	if i < 0 || i >= v.ctx.Registers {
		rep.errorf(CodeRegisterRange, "%s: register %d outside bank of %d", what, i, v.ctx.Registers)
	}
}
