package harness

import (
	"fmt"
	"strings"

	"github.com/FilamentGames/rulescript/internal/builtin"
	"github.com/FilamentGames/rulescript/internal/engine"
	"github.com/FilamentGames/rulescript/internal/entity"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, describe(event))
		}
	}

	return buf.String()
}

// describe renders one trace event on a single line.
func describe(e TraceEvent) string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "f%d %s %s", e.Frame, e.Type, e.Entity)
	if e.Rule != "" {
		fmt.Fprintf(&buf, " rule=%s", e.Rule)
	}
	if e.Trigger != "" {
		fmt.Fprintf(&buf, " trigger=%s", e.Trigger)
	}
	if e.Arg != nil {
		fmt.Fprintf(&buf, " arg=%v", e.Arg)
	}
	if e.Action != "" {
		fmt.Fprintf(&buf, " action=%s", e.Action)
	}
	if e.Target != "" {
		fmt.Fprintf(&buf, " target=%s", e.Target)
	}
	if e.Status != "" {
		fmt.Fprintf(&buf, " status=%s", e.Status)
	}
	if e.Text != "" {
		fmt.Fprintf(&buf, " text=%q", e.Text)
	}
	return buf.String()
}

// String renders the non-empty fields of a match.
func (m Match) String() string {
	var parts []string
	add := func(name, v string) {
		if v != "" {
			parts = append(parts, name+"="+v)
		}
	}
	add("event", m.Event)
	add("entity", m.Entity)
	add("rule", m.Rule)
	add("action", m.Action)
	add("text", m.Text)
	return "{" + strings.Join(parts, " ") + "}"
}

// assertTraceContains checks that at least one event matches.
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if assertion.Match.matches(event) {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("event matching %s", assertion.Match),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the first event matching each entry appears
// in the listed order. Events need not be consecutive.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	positions := make([]int, len(assertion.Events))
	for i, m := range assertion.Events {
		for j, event := range trace {
			if m.matches(event) {
				positions[i] = j + 1 // 1-indexed for readability
				break
			}
		}
		if positions[i] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all events present: %v", assertion.Events),
				Actual:   fmt.Sprintf("missing event: %s", m),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(positions); i++ {
		if positions[i-1] >= positions[i] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("events in order: %v", assertion.Events),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					assertion.Events[i-1], positions[i-1], assertion.Events[i], positions[i]),
				Trace: trace,
			}
		}
	}

	return nil
}

// assertTraceCount checks that exactly Count events match.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if assertion.Match.matches(event) {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d events matching %s", assertion.Count, assertion.Match),
			Actual:   fmt.Sprintf("%d events", count),
			Trace:    trace,
		}
	}

	return nil
}

// assertRuleState checks the enabled or running flag of one rule.
func assertRuleState(actx *AssertionContext, assertion Assertion) error {
	o := actx.World.Object(assertion.Entity)
	if o == nil {
		return fmt.Errorf("%s: unknown entity %q", assertion.Type, assertion.Entity)
	}
	rt := actx.Env.Table(o.ID())
	if rt == nil {
		return fmt.Errorf("%s: entity %q owns no rule table", assertion.Type, assertion.Entity)
	}
	if rt.Table().Index(assertion.Rule) < 0 {
		return fmt.Errorf("%s: entity %q has no rule %q", assertion.Type, assertion.Entity, assertion.Rule)
	}

	want := assertion.Expect.(bool)
	got := rt.IsEnabled(assertion.Rule)
	if assertion.Type == AssertRuleRunning {
		got = rt.IsRunning(assertion.Rule)
	}
	if got != want {
		return &AssertionError{
			Type:     assertion.Type,
			Expected: fmt.Sprintf("%s.%s = %t", assertion.Entity, assertion.Rule, want),
			Actual:   fmt.Sprintf("%t", got),
		}
	}
	return nil
}

// assertHealth checks the current health of an entity.
func assertHealth(actx *AssertionContext, assertion Assertion) error {
	o := actx.World.Object(assertion.Entity)
	if o == nil {
		return fmt.Errorf("health: unknown entity %q", assertion.Entity)
	}
	hp, ok := o.Component(builtin.ComponentHealth).(*builtin.Health)
	if !ok {
		return fmt.Errorf("health: entity %q has no health component", assertion.Entity)
	}

	want := assertion.Expect.(int)
	if int(hp.Current) != want {
		return &AssertionError{
			Type:     AssertHealth,
			Expected: fmt.Sprintf("%s health %d", assertion.Entity, want),
			Actual:   fmt.Sprintf("%d", hp.Current),
		}
	}
	return nil
}

// AssertionContext provides the final world state to state assertions.
type AssertionContext struct {
	World *entity.World
	Env   *engine.Environment
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter is required by rule_enabled, rule_running and health.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertRuleEnabled, AssertRuleRunning, AssertHealth:
			if actx == nil || actx.World == nil || actx.Env == nil {
				err = fmt.Errorf("assertion[%d]: %s requires world context", i, assertion.Type)
			} else if assertion.Type == AssertHealth {
				err = assertHealth(actx, assertion)
			} else {
				err = assertRuleState(actx, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
