package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeRules creates a placeholder rules file for scenario validation.
func writeRules(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "rules.cue")
	require.NoError(t, os.WriteFile(path, []byte("table: t: rules: []\n"), 0644))
	return path
}

const minimalScenario = `
name: minimal
description: "minimal scenario"
rules: [rules.cue]
entities:
  - key: hero
    health: 5
steps:
  - trigger: use
    entity: hero
assertions:
  - type: trace_contains
    event: fired
`

func TestLoadScenario_ValidFile(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "goblin_flees.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "goblin_flees", scenario.Name)
	assert.Equal(t, []string{filepath.Join("testdata", "rules", "goblin.cue")}, scenario.Rules)
	require.Len(t, scenario.Entities, 1)
	assert.Equal(t, int32(20), scenario.Entities[0].Health)
	require.Len(t, scenario.Steps, 2)
	assert.Equal(t, StepTrigger, scenario.Steps[0].Kind())
	assert.Equal(t, 15, scenario.Steps[0].Arg)
	assert.Equal(t, StepTick, scenario.Steps[1].Kind())
	require.Len(t, scenario.Assertions, 4)
	assert.Len(t, scenario.Assertions[0].Events, 4)
	assert.Equal(t, "flee", scenario.Assertions[1].Rule, "match fields are inlined")
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_ResolvesRulesAgainstBaseDir(t *testing.T) {
	dir := t.TempDir()
	writeRules(t, dir)

	scenario, err := ParseScenario([]byte(minimalScenario), dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "rules.cue")}, scenario.Rules)
}

func TestParseScenario_RejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	writeRules(t, dir)

	_, err := ParseScenario([]byte(minimalScenario+"flow: []\n"), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "field flow not found")
}

func TestParseScenario_Invalid(t *testing.T) {
	dir := t.TempDir()
	writeRules(t, dir)

	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing name",
			yaml: `
description: d
rules: [rules.cue]
steps: [{tick: 1}]
assertions: [{type: trace_contains, event: fired}]
`,
			want: "name is required",
		},
		{
			name: "missing rules file",
			yaml: `
name: n
description: d
rules: [other.cue]
steps: [{tick: 1}]
assertions: [{type: trace_contains, event: fired}]
`,
			want: "rules path not found",
		},
		{
			name: "duplicate entity",
			yaml: `
name: n
description: d
rules: [rules.cue]
entities: [{key: a}, {key: a}]
steps: [{tick: 1}]
assertions: [{type: trace_contains, event: fired}]
`,
			want: `duplicate key "a"`,
		},
		{
			name: "two actions in one step",
			yaml: `
name: n
description: d
rules: [rules.cue]
steps: [{tick: 1, persist: x}]
assertions: [{type: trace_contains, event: fired}]
`,
			want: "exactly one of",
		},
		{
			name: "trigger without entity",
			yaml: `
name: n
description: d
rules: [rules.cue]
steps: [{trigger: use}]
assertions: [{type: trace_contains, event: fired}]
`,
			want: "entity is required for trigger",
		},
		{
			name: "unknown step entity",
			yaml: `
name: n
description: d
rules: [rules.cue]
steps: [{stop: r, entity: ghost}]
assertions: [{type: trace_contains, event: fired}]
`,
			want: `unknown entity "ghost"`,
		},
		{
			name: "arg on tick",
			yaml: `
name: n
description: d
rules: [rules.cue]
steps: [{tick: 1, arg: 3}]
assertions: [{type: trace_contains, event: fired}]
`,
			want: "arg is only valid",
		},
		{
			name: "empty trace match",
			yaml: `
name: n
description: d
rules: [rules.cue]
steps: [{tick: 1}]
assertions: [{type: trace_contains}]
`,
			want: "at least one match field",
		},
		{
			name: "short trace order",
			yaml: `
name: n
description: d
rules: [rules.cue]
steps: [{tick: 1}]
assertions: [{type: trace_order, events: [{event: fired}]}]
`,
			want: "at least two entries",
		},
		{
			name: "rule_enabled expects bool",
			yaml: `
name: n
description: d
rules: [rules.cue]
steps: [{tick: 1}]
assertions: [{type: rule_enabled, entity: a, rule: r, expect: 1}]
`,
			want: "expect must be a bool",
		},
		{
			name: "health expects int",
			yaml: `
name: n
description: d
rules: [rules.cue]
steps: [{tick: 1}]
assertions: [{type: health, entity: a, expect: "full"}]
`,
			want: "expect must be an integer",
		},
		{
			name: "unknown assertion",
			yaml: `
name: n
description: d
rules: [rules.cue]
steps: [{tick: 1}]
assertions: [{type: final_state}]
`,
			want: `unknown assertion type "final_state"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml), dir)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestStepKind(t *testing.T) {
	hp := int32(3)
	assert.Equal(t, StepSetHealth, Step{SetHealth: &hp, Entity: "a"}.Kind())
	assert.Equal(t, StepRestore, Step{Restore: "x"}.Kind())
	assert.Equal(t, "", Step{}.Kind())
	assert.Equal(t, "", Step{Enable: "a", Disable: "b"}.Kind())
}
