package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/FilamentGames/rulescript/internal/ir"
)

// CompileTable parses a CUE value into a RuleTable.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the table struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`table: goblin: { rules: [...] }`)
//	table, err := CompileTable(v.LookupPath(cue.ParsePath("table.goblin")))
//
// Trigger, query and action references are string keys hashed to ids.
// Values, scopes and resolvables use their tagged object forms; bare
// scalars are accepted as literals.
func CompileTable(v cue.Value) (*ir.RuleTable, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	name := ""
	if labels := v.Path().Selectors(); len(labels) > 0 {
		name = strings.Trim(labels[len(labels)-1].String(), `"`)
	}
	if err := checkFields(v, "", "rules", "name"); err != nil {
		return nil, err
	}
	if n := v.LookupPath(cue.ParsePath("name")); n.Exists() {
		s, err := stringField(n, "name")
		if err != nil {
			return nil, err
		}
		name = s
	}

	rulesVal := v.LookupPath(cue.ParsePath("rules"))
	if !rulesVal.Exists() {
		return nil, &CompileError{
			Field:   "rules",
			Message: "rules is required",
			Pos:     v.Pos(),
		}
	}
	iter, err := rulesVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var rules []ir.Rule
	for i := 0; iter.Next(); i++ {
		r, err := compileRule(iter.Value(), fmt.Sprintf("rules[%d]", i))
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return ir.NewRuleTable(name, rules...), nil
}

func compileRule(v cue.Value, path string) (ir.Rule, error) {
	r := ir.Rule{Enabled: true}
	if err := checkFields(v, path,
		"id", "name", "trigger", "group", "enabled", "only_once",
		"dont_interrupt", "subset", "conditions", "actions",
	); err != nil {
		return r, err
	}

	var err error
	if r.ID, err = requiredString(v, path, "id"); err != nil {
		return r, err
	}
	trigger, err := requiredString(v, path, "trigger")
	if err != nil {
		return r, err
	}
	r.Trigger = ir.TriggerIDOf(trigger)

	if r.Name, err = optionalString(v, path, "name"); err != nil {
		return r, err
	}
	if r.RoutineGroup, err = optionalString(v, path, "group"); err != nil {
		return r, err
	}
	if r.Enabled, err = optionalBool(v, path, "enabled", true); err != nil {
		return r, err
	}
	if r.OnlyOnce, err = optionalBool(v, path, "only_once", false); err != nil {
		return r, err
	}
	if r.DontInterrupt, err = optionalBool(v, path, "dont_interrupt", false); err != nil {
		return r, err
	}
	if r.Subset, err = subsetField(v, path); err != nil {
		return r, err
	}

	if err := eachListItem(v, path, "conditions", func(item cue.Value, p string) error {
		c, err := compileCondition(item, p)
		r.Conditions = append(r.Conditions, c)
		return err
	}); err != nil {
		return r, err
	}
	if err := eachListItem(v, path, "actions", func(item cue.Value, p string) error {
		a, err := compileAction(item, p)
		r.Actions = append(r.Actions, a)
		return err
	}); err != nil {
		return r, err
	}
	return r, nil
}

func compileCondition(v cue.Value, path string) (ir.Condition, error) {
	c := ir.Condition{Enabled: true}
	if err := checkFields(v, path, "query", "op", "target", "subset", "enabled"); err != nil {
		return c, err
	}

	var err error
	if c.Enabled, err = optionalBool(v, path, "enabled", true); err != nil {
		return c, err
	}
	if c.Subset, err = subsetField(v, path); err != nil {
		return c, err
	}

	op, err := optionalString(v, path, "op")
	if err != nil {
		return c, err
	}
	if op != "" {
		parsed, ok := ir.ParseOperator(op)
		if !ok {
			return c, &CompileError{
				Field:   join(path, "op"),
				Message: fmt.Sprintf("unknown operator %q, must be one of ==, !=, <, <=, >, >=", op),
				Pos:     v.LookupPath(cue.ParsePath("op")).Pos(),
			}
		}
		c.Operator = parsed
	}

	for _, f := range []struct {
		name string
		dst  *ir.ResolvableValue
	}{{"query", &c.Query}, {"target", &c.Target}} {
		fv := v.LookupPath(cue.ParsePath(f.name))
		if !fv.Exists() {
			return c, &CompileError{
				Field:   join(path, f.name),
				Message: f.name + " is required",
				Pos:     v.Pos(),
			}
		}
		if *f.dst, err = compileResolvable(fv, join(path, f.name), true); err != nil {
			return c, err
		}
	}
	return c, nil
}

func compileAction(v cue.Value, path string) (ir.Action, error) {
	a := ir.Action{Enabled: true}
	if err := checkFields(v, path, "action", "scope", "args", "enabled"); err != nil {
		return a, err
	}

	key, err := requiredString(v, path, "action")
	if err != nil {
		return a, err
	}
	a.Method.ID = ir.MethodIDOf(key)
	if a.Enabled, err = optionalBool(v, path, "enabled", true); err != nil {
		return a, err
	}
	if a.Method.Scope, err = scopeField(v, path); err != nil {
		return a, err
	}

	if err := eachListItem(v, path, "args", func(item cue.Value, p string) error {
		arg, err := compileResolvable(item, p, true)
		a.Args = append(a.Args, arg)
		return err
	}); err != nil {
		return a, err
	}
	return a, nil
}

// compileResolvable decodes one of:
//
//	{query: "key", scope: <scope>, args: [...]}
//	{argument: true}
//	{register: <index>}
//	<value>
//
// Query arguments may not carry arguments of their own.
func compileResolvable(v cue.Value, path string, allowArgs bool) (ir.ResolvableValue, error) {
	if v.IncompleteKind() == cue.StructKind {
		switch {
		case v.LookupPath(cue.ParsePath("query")).Exists():
			return compileQuery(v, path, allowArgs)
		case v.LookupPath(cue.ParsePath("argument")).Exists():
			if err := checkFields(v, path, "argument"); err != nil {
				return ir.ResolvableValue{}, err
			}
			return ir.FromArgument(), nil
		case v.LookupPath(cue.ParsePath("register")).Exists():
			if err := checkFields(v, path, "register"); err != nil {
				return ir.ResolvableValue{}, err
			}
			rv := v.LookupPath(cue.ParsePath("register"))
			n, err := rv.Int64()
			if err != nil {
				return ir.ResolvableValue{}, &CompileError{
					Field:   join(path, "register"),
					Message: "register must be an integer",
					Pos:     rv.Pos(),
				}
			}
			return ir.FromRegister(int(n)), nil
		}
	}

	val, err := decodeValue(v, path)
	if err != nil {
		return ir.ResolvableValue{}, err
	}
	return ir.Literal(val), nil
}

func compileQuery(v cue.Value, path string, allowArgs bool) (ir.ResolvableValue, error) {
	if err := checkFields(v, path, "query", "scope", "args"); err != nil {
		return ir.ResolvableValue{}, err
	}
	key, err := requiredString(v, path, "query")
	if err != nil {
		return ir.ResolvableValue{}, err
	}
	scope, err := scopeField(v, path)
	if err != nil {
		return ir.ResolvableValue{}, err
	}

	var args []ir.NestedValue
	argsVal := v.LookupPath(cue.ParsePath("args"))
	if argsVal.Exists() && !allowArgs {
		return ir.ResolvableValue{}, &CompileError{
			Field:   join(path, "args"),
			Message: "a query argument cannot take arguments of its own",
			Pos:     argsVal.Pos(),
		}
	}
	if err := eachListItem(v, path, "args", func(item cue.Value, p string) error {
		arg, err := compileResolvable(item, p, false)
		args = append(args, arg.Nested())
		return err
	}); err != nil {
		return ir.ResolvableValue{}, err
	}
	return ir.FromQuery(scope, ir.MethodIDOf(key), args...), nil
}

// scopeField decodes the optional "scope" field. Defaults to self.
func scopeField(v cue.Value, path string) (ir.EntityScope, error) {
	sv := v.LookupPath(cue.ParsePath("scope"))
	if !sv.Exists() {
		return ir.SelfScope(), nil
	}
	var raw any
	if err := sv.Decode(&raw); err != nil {
		return ir.EntityScope{}, formatCUEError(err)
	}
	s, err := ir.ParseScope(raw)
	if err != nil {
		return s, &CompileError{Field: join(path, "scope"), Message: err.Error(), Pos: sv.Pos()}
	}
	return s, nil
}

func decodeValue(v cue.Value, path string) (ir.Value, error) {
	var raw any
	if err := v.Decode(&raw); err != nil {
		return nil, formatCUEError(err)
	}
	val, err := ir.ParseValue(raw)
	if err != nil {
		return nil, &CompileError{Field: path, Message: err.Error(), Pos: v.Pos()}
	}
	return val, nil
}

func subsetField(v cue.Value, path string) (ir.Subset, error) {
	name, err := optionalString(v, path, "subset")
	if err != nil || name == "" {
		return ir.SubsetAll, err
	}
	s, ok := ir.ParseSubset(name)
	if !ok {
		return s, &CompileError{
			Field:   join(path, "subset"),
			Message: fmt.Sprintf("unknown subset %q, must be \"all\", \"any\" or \"none\"", name),
			Pos:     v.LookupPath(cue.ParsePath("subset")).Pos(),
		}
	}
	return s, nil
}

// checkFields rejects struct fields outside allowed.
func checkFields(v cue.Value, path string, allowed ...string) error {
	iter, err := v.Fields()
	if err != nil {
		return &CompileError{Field: orRoot(path), Message: "expected a struct", Pos: v.Pos()}
	}
	for iter.Next() {
		label := iter.Label()
		known := false
		for _, a := range allowed {
			if a == label {
				known = true
				break
			}
		}
		if !known {
			return &CompileError{
				Field:   join(path, label),
				Message: fmt.Sprintf("unknown field %q", label),
				Pos:     iter.Value().Pos(),
			}
		}
	}
	return nil
}

func eachListItem(v cue.Value, path, field string, fn func(item cue.Value, path string) error) error {
	lv := v.LookupPath(cue.ParsePath(field))
	if !lv.Exists() {
		return nil
	}
	iter, err := lv.List()
	if err != nil {
		return &CompileError{Field: join(path, field), Message: "expected a list", Pos: lv.Pos()}
	}
	for i := 0; iter.Next(); i++ {
		if err := fn(iter.Value(), fmt.Sprintf("%s[%d]", join(path, field), i)); err != nil {
			return err
		}
	}
	return nil
}

func requiredString(v cue.Value, path, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", &CompileError{
			Field:   join(path, field),
			Message: field + " is required",
			Pos:     v.Pos(),
		}
	}
	s, err := stringField(fv, join(path, field))
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(s) == "" {
		return "", &CompileError{
			Field:   join(path, field),
			Message: field + " must be non-empty",
			Pos:     fv.Pos(),
		}
	}
	return s, nil
}

func optionalString(v cue.Value, path, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", nil
	}
	return stringField(fv, join(path, field))
}

func stringField(v cue.Value, path string) (string, error) {
	s, err := v.String()
	if err != nil {
		return "", &CompileError{Field: path, Message: "expected a string", Pos: v.Pos()}
	}
	return s, nil
}

func optionalBool(v cue.Value, path, field string, def bool) (bool, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return def, nil
	}
	b, err := fv.Bool()
	if err != nil {
		return def, &CompileError{Field: join(path, field), Message: "expected a bool", Pos: fv.Pos()}
	}
	return b, nil
}

func join(path, field string) string {
	if path == "" {
		return field
	}
	return path + "." + field
}

func orRoot(path string) string {
	if path == "" {
		return "table"
	}
	return path
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// First error with position info wins.
	firstErr := errs[0]
	if positions := errors.Positions(firstErr); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
