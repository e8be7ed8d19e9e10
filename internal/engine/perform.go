package engine

import (
	"context"

	"github.com/FilamentGames/rulescript/internal/entity"
	"github.com/FilamentGames/rulescript/internal/ir"
	"github.com/FilamentGames/rulescript/internal/library"
	"github.com/FilamentGames/rulescript/internal/routine"
)

// ActionStatus classifies the outcome of an action for one target.
type ActionStatus uint8

const (
	// StatusReturned means the action completed and produced Value.
	StatusReturned ActionStatus = iota
	// StatusIterator means the action suspended; Routine must be stepped.
	StatusIterator
	// StatusInactive means the target entity is not active.
	StatusInactive
	// StatusInvalid means the action is unknown or the target has the
	// wrong entity type.
	StatusInvalid
	// StatusInvalidNoEntity means the scope resolved no targets.
	StatusInvalidNoEntity
	// StatusInvalidNoComponent means the target lacks the owning component.
	StatusInvalidNoComponent
)

var statusNames = [...]string{
	StatusReturned:           "returned",
	StatusIterator:           "iterator",
	StatusInactive:           "inactive",
	StatusInvalid:            "invalid",
	StatusInvalidNoEntity:    "invalid_no_entity",
	StatusInvalidNoComponent: "invalid_no_component",
}

func (s ActionStatus) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "unknown"
}

// OK reports whether the action ran against the target.
func (s ActionStatus) OK() bool {
	return s == StatusReturned || s == StatusIterator
}

// ActionResult is the outcome of one action against one target.
type ActionResult struct {
	Target  entity.Entity
	Status  ActionStatus
	Value   ir.Value
	Routine routine.Routine
}

// PerformAction invokes a against every target its scope resolves to and
// returns one result per target. Arguments are resolved once and shared
// by all targets. Suspended targets are returned as StatusIterator results
// and are not stepped.
//
// An action may stop the task that owns sc, releasing it. Remaining
// targets are then skipped and results are reported against the owner,
// rule and token the action started with.
func (sc *ExecutionScope) PerformAction(a ir.Action) []ActionResult {
	origin := actionOrigin{self: sc.self, rule: sc.rule, token: sc.token}
	info := sc.env.lib.Action(a.Method.ID)
	if info == nil {
		res := []ActionResult{{Status: StatusInvalid, Value: ir.Invalid{}}}
		sc.report(origin, a, nil, res[0])
		return res
	}
	args := sc.resolveActionArgs(a.Args, info.DefaultArgs)

	if info.Owner.IsGlobal() {
		res := []ActionResult{sc.invoke(info, sc.env.entities.Global(), args)}
		sc.report(origin, a, info, res[0])
		return res
	}

	gen := sc.gen
	var results []ActionResult
	for target := range sc.ResolveEntityScope(a.Method.Scope) {
		res := sc.invoke(info, target, args)
		sc.report(origin, a, info, res)
		results = append(results, res)
		if sc.gen != gen {
			break
		}
	}
	if len(results) == 0 {
		res := ActionResult{Status: StatusInvalidNoEntity, Value: ir.Invalid{}}
		sc.report(origin, a, info, res)
		results = append(results, res)
	}
	return results
}

// actionOrigin is the scope binding an action started with.
type actionOrigin struct {
	self  entity.Entity
	rule  string
	token string
}

func (sc *ExecutionScope) invoke(info *library.ActionInfo, target entity.Entity, args []ir.Value) ActionResult {
	res := ActionResult{Target: target, Value: ir.Invalid{}}
	if target == nil {
		res.Status = StatusInvalidNoEntity
		return res
	}
	if !target.Active() {
		res.Status = StatusInactive
		return res
	}

	var comp any
	switch {
	case info.Owner.IsComponent():
		comp = target.Component(info.Owner.Type)
		if comp == nil {
			res.Status = StatusInvalidNoComponent
			return res
		}
	case !info.Owner.IsGlobal() && !info.Owner.Accepts(target):
		res.Status = StatusInvalid
		return res
	}

	v, r := info.Func(sc.call(target, comp, args))
	res.Value = ir.Normalize(v)
	if r != nil {
		res.Status = StatusIterator
		res.Routine = r
		return res
	}
	res.Status = StatusReturned
	return res
}

func (sc *ExecutionScope) report(o actionOrigin, a ir.Action, info *library.ActionInfo, res ActionResult) {
	env := sc.env
	env.metrics.actionResults.WithLabelValues(res.Status.String()).Inc()

	key := a.Method.ID.String()
	if info != nil {
		key = info.Key
	}
	if !res.Status.OK() {
		env.logger.Debug("action skipped target",
			"action", key,
			"status", res.Status.String(),
			"rule", o.rule,
			"token", o.token,
		)
	}
	env.observer.ActionPerformed(ActionEvent{
		Token:  o.token,
		Frame:  env.clock.Current(),
		Owner:  o.self,
		Rule:   o.rule,
		Action: key,
		Result: res,
	})
}

// PerformActions returns a routine that performs the enabled actions in
// order. Actions that complete immediately run back to back within one
// step; when an action suspends, the routines of all its targets are
// joined and the next action starts only after every one has finished.
//
// The routine stops early once the scope is released, so a stopped task
// never performs another action.
func (sc *ExecutionScope) PerformActions(actions []ir.Action) routine.Routine {
	return &actionSequence{sc: sc, gen: sc.gen, actions: actions}
}

type actionSequence struct {
	sc      *ExecutionScope
	gen     uint64
	actions []ir.Action
	pos     int
	wait    routine.Routine
}

func (s *actionSequence) Next(ctx context.Context) bool {
	for {
		if s.sc.gen != s.gen || ctx.Err() != nil {
			return false
		}
		if s.wait != nil {
			if s.wait.Next(ctx) {
				return true
			}
			s.wait = nil
			continue
		}
		if s.pos >= len(s.actions) {
			return false
		}
		a := s.actions[s.pos]
		s.pos++
		if !a.Enabled {
			continue
		}

		var suspended []routine.Routine
		for _, res := range s.sc.PerformAction(a) {
			if res.Status == StatusIterator {
				suspended = append(suspended, res.Routine)
			}
		}
		if len(suspended) > 0 {
			s.wait = routine.All(suspended...)
		}
	}
}
