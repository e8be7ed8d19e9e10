package engine

import (
	"context"

	"github.com/FilamentGames/rulescript/internal/entity"
	"github.com/FilamentGames/rulescript/internal/ir"
	"github.com/FilamentGames/rulescript/internal/library"
	"github.com/FilamentGames/rulescript/internal/routine"
)

// RuleTable is the runtime side of an authored rule table: per-rule state
// and at most one running task per rule.
//
// All methods must be called on the frame goroutine.
type RuleTable struct {
	env      *Environment
	owner    entity.Entity
	table    *ir.RuleTable
	states   []ir.RuleState
	tasks    []*task
	detached bool
}

var _ library.RuleController = (*RuleTable)(nil)

// task is one running action sequence. It owns its scope until it ends.
type task struct {
	scope   *ExecutionScope
	routine routine.Routine
	frame   int64 // frame the task was launched in
	token   string
}

func newRuleTable(env *Environment, owner entity.Entity, table *ir.RuleTable) *RuleTable {
	rt := &RuleTable{
		env:    env,
		owner:  owner,
		table:  table,
		states: make([]ir.RuleState, len(table.Rules)),
		tasks:  make([]*task, len(table.Rules)),
	}
	rt.resetStates()
	return rt
}

func (rt *RuleTable) resetStates() {
	for i, r := range rt.table.Rules {
		rt.states[i] = 0
		if r.Enabled {
			rt.states[i] = ir.StateEnabled
		}
	}
}

// Owner returns the entity owning the table.
func (rt *RuleTable) Owner() entity.Entity { return rt.owner }

// Table returns the authored table. It must not be modified.
func (rt *RuleTable) Table() *ir.RuleTable { return rt.table }

// Evaluate runs the trigger protocol for one dispatch and returns the
// number of rules that fired.
func (rt *RuleTable) Evaluate(ctx context.Context, trigger ir.TriggerID, arg ir.Value, force bool, token string) int {
	if rt.detached {
		return 0
	}
	if rt.owner.Locked() && !force {
		rt.env.logger.Debug("trigger ignored on locked entity",
			"entity", rt.owner.Key(),
			"trigger", trigger.String(),
		)
		return 0
	}

	var claimed map[string]bool
	fired := 0
	for i := range rt.table.Rules {
		if rt.detached {
			break
		}
		r := &rt.table.Rules[i]
		if r.Trigger != trigger || !rt.states[i].Has(ir.StateEnabled) {
			continue
		}
		if r.DontInterrupt && rt.tasks[i] != nil {
			continue
		}

		sc := rt.env.pool.acquire(r.Flags.Has(ir.FlagUsesRegisters))
		sc.bind(ctx, rt.owner, arg, token, r.ID)
		if !sc.EvaluateConditions(r.Conditions, r.Subset) {
			rt.env.pool.release(sc)
			continue
		}

		if r.RoutineGroup != "" {
			if claimed[r.RoutineGroup] {
				rt.env.pool.release(sc)
				continue
			}
			if claimed == nil {
				claimed = make(map[string]bool)
			}
			claimed[r.RoutineGroup] = true
			for j := range rt.table.Rules {
				if j != i && rt.table.Rules[j].RoutineGroup == r.RoutineGroup {
					rt.stopTask(j)
				}
			}
		}

		if r.OnlyOnce {
			rt.states[i] = rt.states[i]&^ir.StateEnabled | ir.StateFired
		}

		fired++
		rt.env.metrics.rulesFired.Inc()
		rt.env.logger.Debug("rule fired",
			"entity", rt.owner.Key(),
			"rule", r.ID,
			"trigger", trigger.String(),
			"token", token,
		)
		rt.env.observer.RuleFired(RuleFiredEvent{
			Token:   token,
			Frame:   rt.env.clock.Current(),
			Owner:   rt.owner,
			Rule:    r.ID,
			Trigger: trigger,
			Arg:     ir.Normalize(arg),
		})
		rt.launch(ctx, i, sc)
	}
	return fired
}

// launch replaces rule i's task with the rule's action sequence and runs
// its first step.
func (rt *RuleTable) launch(ctx context.Context, i int, sc *ExecutionScope) {
	rt.stopTask(i)
	t := &task{
		scope:   sc,
		routine: sc.PerformActions(rt.table.Rules[i].Actions),
		frame:   rt.env.clock.Current(),
		token:   sc.token,
	}
	rt.tasks[i] = t
	if !t.routine.Next(ctx) && rt.tasks[i] == t {
		rt.finish(i, false)
	}
}

// step advances every task launched before frame once.
func (rt *RuleTable) step(ctx context.Context, frame int64) {
	for i := range rt.tasks {
		t := rt.tasks[i]
		if t == nil || t.frame >= frame {
			continue
		}
		if !t.routine.Next(ctx) && rt.tasks[i] == t {
			rt.finish(i, false)
		}
	}
}

// stopTask stops rule i's task, reporting whether one was running.
func (rt *RuleTable) stopTask(i int) bool {
	if rt.tasks[i] == nil {
		return false
	}
	rt.finish(i, true)
	return true
}

func (rt *RuleTable) finish(i int, stopped bool) {
	t := rt.tasks[i]
	rt.tasks[i] = nil
	rt.env.observer.TaskFinished(TaskEvent{
		Token:   t.token,
		Frame:   rt.env.clock.Current(),
		Owner:   rt.owner,
		Rule:    rt.table.Rules[i].ID,
		Stopped: stopped,
	})
	rt.env.pool.release(t.scope)
}

// Running returns the number of running tasks.
func (rt *RuleTable) Running() int {
	n := 0
	for _, t := range rt.tasks {
		if t != nil {
			n++
		}
	}
	return n
}

// matchName reports whether name matches pattern exactly or, when the
// pattern has wildcards, by wildcard match.
func matchName(pattern, name string) bool {
	if ir.HasWildcard(pattern) {
		return ir.MatchWildcard(pattern, name)
	}
	return pattern == name
}

func (rt *RuleTable) ruleMatches(i int, pattern string) bool {
	r := &rt.table.Rules[i]
	return matchName(pattern, r.ID) || (r.Name != "" && matchName(pattern, r.Name))
}

func (rt *RuleTable) groupMatches(i int, pattern string) bool {
	g := rt.table.Rules[i].RoutineGroup
	return g != "" && matchName(pattern, g)
}

func (rt *RuleTable) each(match func(int) bool, apply func(int) bool) int {
	n := 0
	for i := range rt.table.Rules {
		if match(i) && apply(i) {
			n++
		}
	}
	return n
}

func (rt *RuleTable) enable(i int) bool {
	rt.states[i] |= ir.StateEnabled
	return true
}

// disable clears the enabled bit. A running task keeps running.
func (rt *RuleTable) disable(i int) bool {
	rt.states[i] &^= ir.StateEnabled
	return true
}

// EnableRule enables rules whose id or name matches pattern.
func (rt *RuleTable) EnableRule(pattern string) int {
	return rt.each(func(i int) bool { return rt.ruleMatches(i, pattern) }, rt.enable)
}

// DisableRule disables matching rules without stopping their tasks.
func (rt *RuleTable) DisableRule(pattern string) int {
	return rt.each(func(i int) bool { return rt.ruleMatches(i, pattern) }, rt.disable)
}

// StopRule stops the tasks of matching rules and returns how many were
// running.
func (rt *RuleTable) StopRule(pattern string) int {
	return rt.each(func(i int) bool { return rt.ruleMatches(i, pattern) }, rt.stopTask)
}

// EnableGroup enables rules whose routine group matches pattern.
func (rt *RuleTable) EnableGroup(pattern string) int {
	return rt.each(func(i int) bool { return rt.groupMatches(i, pattern) }, rt.enable)
}

func (rt *RuleTable) DisableGroup(pattern string) int {
	return rt.each(func(i int) bool { return rt.groupMatches(i, pattern) }, rt.disable)
}

func (rt *RuleTable) StopGroup(pattern string) int {
	return rt.each(func(i int) bool { return rt.groupMatches(i, pattern) }, rt.stopTask)
}

func all(int) bool { return true }

func (rt *RuleTable) EnableAll() int  { return rt.each(all, rt.enable) }
func (rt *RuleTable) DisableAll() int { return rt.each(all, rt.disable) }
func (rt *RuleTable) StopAll() int    { return rt.each(all, rt.stopTask) }

// ResetAll stops every task and restores the authored enabled state.
func (rt *RuleTable) ResetAll() {
	rt.StopAll()
	rt.resetStates()
}

// IsEnabled reports whether the rule with id is enabled.
func (rt *RuleTable) IsEnabled(id string) bool {
	i := rt.table.Index(id)
	return i >= 0 && rt.states[i].Has(ir.StateEnabled)
}

// IsRunning reports whether the rule with id has a running task.
func (rt *RuleTable) IsRunning(id string) bool {
	i := rt.table.Index(id)
	return i >= 0 && rt.tasks[i] != nil
}

// State returns the state bitmask of the rule with id.
func (rt *RuleTable) State(id string) (ir.RuleState, bool) {
	i := rt.table.Index(id)
	if i < 0 {
		return 0, false
	}
	return rt.states[i], true
}

// Persist returns the state of every rule in table order.
func (rt *RuleTable) Persist() []ir.PersistedRule {
	out := make([]ir.PersistedRule, len(rt.table.Rules))
	for i, r := range rt.table.Rules {
		out[i] = ir.PersistedRule{ID: r.ID, State: rt.states[i]}
	}
	return out
}

// Restore applies saved states by rule id. Entries naming rules that are
// not in the table are ignored, and rules missing from saved keep their
// current state.
func (rt *RuleTable) Restore(saved []ir.PersistedRule) {
	for _, p := range saved {
		i := rt.table.Index(p.ID)
		if i < 0 {
			rt.env.logger.Debug("restore skipped unknown rule",
				"entity", rt.owner.Key(),
				"rule", p.ID,
			)
			continue
		}
		rt.states[i] = p.State
	}
}

// detach stops every task and makes further dispatch a no-op.
func (rt *RuleTable) detach() {
	rt.StopAll()
	rt.detached = true
}
