package engine

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"github.com/FilamentGames/rulescript/internal/entity"
	"github.com/FilamentGames/rulescript/internal/ir"
	"github.com/FilamentGames/rulescript/internal/library"
)

// ExecutionScope is the state of one rule evaluation: the owning entity,
// the trigger argument and an optional register bank. Scopes are pooled;
// a scope is owned by one evaluation, and by its task if the rule fires.
type ExecutionScope struct {
	env *Environment

	ctx       context.Context
	self      entity.Entity
	arg       ir.Value
	registers []ir.Value // nil when acquired without a bank
	token     string
	rule      string

	// gen increments on every release so that routines holding a stale
	// scope can tell they were stopped.
	gen uint64
}

var _ library.Scope = (*ExecutionScope)(nil)

// NewExecutionScope creates a standalone scope outside the pool. Pass
// registers > 0 to attach a register bank of that size.
func NewExecutionScope(env *Environment, self entity.Entity, arg ir.Value, registers int) *ExecutionScope {
	sc := &ExecutionScope{env: env}
	if registers > 0 {
		sc.registers = make([]ir.Value, registers)
	}
	sc.bind(context.Background(), self, arg, "", "")
	return sc
}

func (sc *ExecutionScope) bind(ctx context.Context, self entity.Entity, arg ir.Value, token, rule string) {
	sc.ctx = ctx
	sc.self = self
	sc.arg = ir.Normalize(arg)
	sc.token = token
	sc.rule = rule
}

// reset clears the scope for reuse and zeroes the register bank.
func (sc *ExecutionScope) reset() {
	sc.ctx = nil
	sc.self = nil
	sc.arg = nil
	sc.token = ""
	sc.rule = ""
	clear(sc.registers)
	sc.gen++
}

func (sc *ExecutionScope) context() context.Context {
	if sc.ctx == nil {
		return context.Background()
	}
	return sc.ctx
}

func (sc *ExecutionScope) Self() entity.Entity { return sc.self }
func (sc *ExecutionScope) Argument() ir.Value  { return ir.Normalize(sc.arg) }
func (sc *ExecutionScope) HasRegisters() bool  { return sc.registers != nil }
func (sc *ExecutionScope) RegisterCount() int  { return len(sc.registers) }

// Token returns the dispatch token of the evaluation using this scope.
func (sc *ExecutionScope) Token() string { return sc.token }

// Register reads register i. Reading a register on a scope without a bank
// is a contract violation and panics. An index outside the bank reads as
// Null and is logged.
func (sc *ExecutionScope) Register(i int) ir.Value {
	if !sc.inBank(i) {
		return ir.Null{}
	}
	return ir.Normalize(sc.registers[i])
}

// SetRegister writes register i. Writes outside the bank are dropped.
func (sc *ExecutionScope) SetRegister(i int, v ir.Value) {
	if sc.inBank(i) {
		sc.registers[i] = v
	}
}

func (sc *ExecutionScope) inBank(i int) bool {
	if sc.registers == nil {
		panic(&RuntimeError{
			Code:    ErrCodeMissingRegisters,
			Message: fmt.Sprintf("register %d accessed on a scope without a register bank", i),
			Token:   sc.token,
		})
	}
	if i < 0 || i >= len(sc.registers) {
		sc.env.logger.Error("register outside bank",
			"code", string(ErrCodeRegisterRange),
			"register", i,
			"registers", len(sc.registers),
			"rule", sc.rule,
			"token", sc.token,
		)
		return false
	}
	return true
}

// Trigger dispatches a nested trigger. Nested dispatches share the
// evaluation's token.
func (sc *ExecutionScope) Trigger(target entity.Entity, trigger ir.TriggerID, arg ir.Value) int {
	return sc.env.dispatch(sc.context(), target, trigger, arg, false, sc.token)
}

// Broadcast dispatches a nested trigger to every listener.
func (sc *ExecutionScope) Broadcast(trigger ir.TriggerID, arg ir.Value) int {
	return sc.env.broadcast(sc.context(), trigger, arg, false, sc.token)
}

// Rules returns the runtime rule table owned by e.
func (sc *ExecutionScope) Rules(e entity.Entity) library.RuleController {
	if e == nil {
		return nil
	}
	if rt := sc.env.Table(e.ID()); rt != nil {
		return rt
	}
	return nil
}

func (sc *ExecutionScope) Entities() entity.Manager { return sc.env.entities }

func (sc *ExecutionScope) Frame() int64 { return sc.env.clock.Current() }

func (sc *ExecutionScope) Logger() *slog.Logger {
	l := sc.env.logger
	if sc.token != "" {
		l = l.With("token", sc.token)
	}
	return l
}

// ResolveEntityScope lazily yields the entities s describes. Link paths are
// applied to every base result: intermediate segments follow the first
// link, the final segment yields every link unless UseFirstLink is set.
func (sc *ExecutionScope) ResolveEntityScope(s ir.EntityScope) iter.Seq[entity.Entity] {
	return sc.resolveEntityScope(s, false)
}

func (sc *ExecutionScope) resolveEntityScope(s ir.EntityScope, indirect bool) iter.Seq[entity.Entity] {
	base := sc.baseEntities(s, indirect)
	if s.UseFirst {
		base = firstOf(base)
	}
	path := s.LinkPath()
	if len(path) == 0 {
		return base
	}
	return func(yield func(entity.Entity) bool) {
		for e := range base {
			for target := range followLinks(e, path, s.UseFirstLink) {
				if !yield(target) {
					return
				}
			}
		}
	}
}

func (sc *ExecutionScope) baseEntities(s ir.EntityScope, indirect bool) iter.Seq[entity.Entity] {
	mgr := sc.env.entities
	switch s.Type {
	case ir.ScopeSelf:
		return single(sc.self)
	case ir.ScopeGlobal:
		return single(mgr.Global())
	case ir.ScopeByID:
		return single(mgr.EntityWithID(s.ID))
	case ir.ScopeArgument:
		if indirect {
			return none
		}
		return sc.scopeInValue(sc.Argument())
	case ir.ScopeInRegister:
		if indirect {
			return none
		}
		return sc.scopeInValue(sc.Register(s.Register))
	case ir.ScopeWithGroup:
		return mgr.EntitiesWithGroup(s.Group)
	case ir.ScopeWithName:
		return mgr.EntitiesWithName(s.Search)
	case ir.ScopeWithPrefab:
		return mgr.EntitiesWithPrefab(s.Search)
	default:
		return none
	}
}

// scopeInValue resolves the entity scope carried by v. Only one level of
// indirection is followed: a carried Argument or InRegister scope is empty.
func (sc *ExecutionScope) scopeInValue(v ir.Value) iter.Seq[entity.Entity] {
	s, ok := v.(ir.Scope)
	if !ok {
		return none
	}
	return sc.resolveEntityScope(s.EntityScope, true)
}

// ResolveSingle returns the first entity of s, or nil.
func (sc *ExecutionScope) ResolveSingle(s ir.EntityScope) entity.Entity {
	for e := range sc.ResolveEntityScope(s) {
		return e
	}
	return nil
}

// ResolveValue lazily yields the values r describes. Query arguments are
// resolved once against this scope before the query runs per target.
// Global queries run once.
func (sc *ExecutionScope) ResolveValue(r ir.ResolvableValue) iter.Seq[ir.Value] {
	switch r.Mode {
	case ir.ModeValue:
		return singleValue(ir.Normalize(r.Value))
	case ir.ModeArgument:
		return singleValue(sc.Argument())
	case ir.ModeRegister:
		return singleValue(sc.Register(r.Register))
	case ir.ModeQuery:
		return sc.runQuery(r.Query, r.Args)
	}
	return func(func(ir.Value) bool) {}
}

func (sc *ExecutionScope) runQuery(id ir.EntityScopedIdentifier, nested []ir.NestedValue) iter.Seq[ir.Value] {
	return func(yield func(ir.Value) bool) {
		info := sc.env.lib.Query(id.ID)
		if info == nil {
			return
		}
		args := sc.resolveArgs(nested, info.DefaultArgs)
		if info.Owner.IsGlobal() {
			yield(ir.Normalize(info.Func(sc.call(sc.env.entities.Global(), nil, args))))
			return
		}
		for target := range sc.ResolveEntityScope(id.Scope) {
			if !info.Owner.Accepts(target) {
				sc.env.logger.Debug("query target skipped",
					"query", info.Key,
					"target", target.Key(),
					"owner", info.Owner.Type,
				)
				continue
			}
			var comp any
			if info.Owner.IsComponent() {
				comp = target.Component(info.Owner.Type)
			}
			if !yield(ir.Normalize(info.Func(sc.call(target, comp, args)))) {
				return
			}
		}
	}
}

func (sc *ExecutionScope) call(target entity.Entity, comp any, args []ir.Value) library.Call {
	return library.Call{
		Ctx:       sc.context(),
		Scope:     sc,
		Target:    target,
		Component: comp,
		Args:      args,
	}
}

// resolveFirst returns the first value r yields, or Null.
func (sc *ExecutionScope) resolveFirst(r ir.ResolvableValue) ir.Value {
	for v := range sc.ResolveValue(r) {
		return v
	}
	return ir.Null{}
}

// resolveArgs resolves nested arguments, filling omitted trailing ones
// from defaults.
func (sc *ExecutionScope) resolveArgs(nested []ir.NestedValue, defaults []ir.Value) []ir.Value {
	n := max(len(nested), len(defaults))
	args := make([]ir.Value, n)
	for i := range n {
		if i < len(nested) {
			args[i] = sc.resolveFirst(nested[i].Resolvable())
		} else {
			args[i] = defaults[i]
		}
	}
	return args
}

// resolveActionArgs is resolveArgs for top-level action arguments.
func (sc *ExecutionScope) resolveActionArgs(rs []ir.ResolvableValue, defaults []ir.Value) []ir.Value {
	n := max(len(rs), len(defaults))
	args := make([]ir.Value, n)
	for i := range n {
		if i < len(rs) {
			args[i] = sc.resolveFirst(rs[i])
		} else {
			args[i] = defaults[i]
		}
	}
	return args
}

func none(func(entity.Entity) bool) {}

func single(e entity.Entity) iter.Seq[entity.Entity] {
	return func(yield func(entity.Entity) bool) {
		if e != nil {
			yield(e)
		}
	}
}

func singleValue(v ir.Value) iter.Seq[ir.Value] {
	return func(yield func(ir.Value) bool) {
		yield(v)
	}
}

func firstOf(seq iter.Seq[entity.Entity]) iter.Seq[entity.Entity] {
	return func(yield func(entity.Entity) bool) {
		for e := range seq {
			yield(e)
			return
		}
	}
}

func followLinks(e entity.Entity, path []string, useFirstLink bool) iter.Seq[entity.Entity] {
	return func(yield func(entity.Entity) bool) {
		cur := e
		for _, name := range path[:len(path)-1] {
			links := cur.Links(name)
			if len(links) == 0 {
				return
			}
			cur = links[0]
		}
		for _, target := range cur.Links(path[len(path)-1]) {
			if !yield(target) || useFirstLink {
				return
			}
		}
	}
}
