package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rule(id, trigger string) Rule {
	return Rule{ID: id, Name: id, Enabled: true, Trigger: TriggerIDOf(trigger)}
}

func expectedTriggers(t *RuleTable) []TriggerID {
	ids := make([]TriggerID, 0, len(t.Rules))
	for _, r := range t.Rules {
		ids = append(ids, r.Trigger)
	}
	return DedupeTriggers(ids)
}

func TestRuleTableUniqueTriggersTrackEdits(t *testing.T) {
	table := NewRuleTable("guard", rule("a", "hit"), rule("b", "start"), rule("c", "hit"))
	assert.Equal(t, []TriggerID{TriggerIDOf("hit"), TriggerIDOf("start")}, table.UniqueTriggers)

	require.NoError(t, table.AddRule(rule("d", "use")))
	assert.Equal(t, expectedTriggers(table), table.UniqueTriggers)
	assert.Len(t, table.UniqueTriggers, 3)

	require.NoError(t, table.MoveRule("b", 0))
	assert.Equal(t, TriggerIDOf("start"), table.UniqueTriggers[0])
	assert.Equal(t, expectedTriggers(table), table.UniqueTriggers)

	require.NoError(t, table.SetRuleTrigger("d", TriggerIDOf("hit")))
	assert.Equal(t, expectedTriggers(table), table.UniqueTriggers)
	assert.NotContains(t, table.UniqueTriggers, TriggerIDOf("use"))

	assert.True(t, table.RemoveRule("b"))
	assert.Equal(t, []TriggerID{TriggerIDOf("hit")}, table.UniqueTriggers)

	assert.False(t, table.RemoveRule("missing"))
}

func TestRuleTableRecomputeAfterDirectEdit(t *testing.T) {
	table := NewRuleTable("t", rule("a", "hit"))
	table.Rules[0].Trigger = TriggerIDOf("timer")
	table.RecomputeTriggers()
	assert.Equal(t, []TriggerID{TriggerIDOf("timer")}, table.UniqueTriggers)
}

func TestRuleTableEditErrors(t *testing.T) {
	table := NewRuleTable("t", rule("a", "hit"))

	assert.Error(t, table.AddRule(rule("a", "use")))
	assert.Error(t, table.AddRule(Rule{}))
	assert.Error(t, table.MoveRule("a", 5))
	assert.Error(t, table.MoveRule("zzz", 0))
	assert.Error(t, table.SetRuleTrigger("zzz", TriggerIDOf("hit")))
}

func TestDedupeTriggersDropsZero(t *testing.T) {
	ids := []TriggerID{0, 3, 1, 3, 0, 2, 1}
	assert.Equal(t, []TriggerID{3, 1, 2}, DedupeTriggers(ids))
}

func TestRecomputeFlags(t *testing.T) {
	r := Rule{
		ID: "r",
		Conditions: []Condition{{
			Enabled: true,
			Query:   FromQuery(SelfScope(), MethodIDOf("health")),
			Target:  Literal(Int(10)),
		}},
	}
	r.RecomputeFlags()
	assert.Equal(t, RuleFlags(0), r.Flags)

	r.Actions = []Action{{
		Enabled: true,
		Method:  EntityScopedIdentifier{Scope: RegisterScope(2), ID: MethodIDOf("damage")},
	}}
	r.RecomputeFlags()
	assert.True(t, r.Flags.Has(FlagUsesRegisters))
	assert.False(t, r.Flags.Has(FlagUsesArgument))

	r.Conditions[0].Target = FromArgument()
	r.RecomputeFlags()
	assert.True(t, r.Flags.Has(FlagUsesRegisters|FlagUsesArgument))

	r.Actions = nil
	r.Conditions[0].Query = FromQuery(SelfScope(), MethodIDOf("health"), FromRegister(0).Nested())
	r.RecomputeFlags()
	assert.True(t, r.Flags.Has(FlagUsesRegisters))
}

func TestOperatorLegal(t *testing.T) {
	assert.True(t, OperatorLegal(OpLess, KindInt))
	assert.True(t, OperatorLegal(OpGreaterEqual, KindFloat))
	assert.False(t, OperatorLegal(OpLess, KindString))
	assert.False(t, OperatorLegal(OpGreater, KindScope))
	assert.True(t, OperatorLegal(OpEqual, KindString))
	assert.True(t, OperatorLegal(OpNotEqual, KindScope))
	assert.False(t, OperatorLegal(OpEqual, KindInvalid))

	op, ok := ParseOperator("<=")
	require.True(t, ok)
	assert.Equal(t, OpLessEqual, op)
	_, ok = ParseOperator("=>")
	assert.False(t, ok)
}

func TestRuleTableCloneIsIndependent(t *testing.T) {
	r := rule("a", "hit")
	r.Actions = []Action{{Enabled: true, Args: []ResolvableValue{Literal(Int(1))}}}
	table := NewRuleTable("t", r)

	clone := table.Clone()
	clone.Rules[0].Actions[0].Args[0] = Literal(Int(2))
	clone.Rules[0].Enabled = false

	assert.Equal(t, Int(1), table.Rules[0].Actions[0].Args[0].Value)
	assert.True(t, table.Rules[0].Enabled)
}

func TestRuleStateString(t *testing.T) {
	assert.Equal(t, "enabled|fired", (StateEnabled | StateFired).String())
	assert.Equal(t, "fired", StateFired.String())
	assert.Equal(t, "disabled", RuleState(0).String())
}
