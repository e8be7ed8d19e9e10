package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario describes a world, the rule tables its entities own, a list of
// steps to drive it, and assertions over the resulting trace and state.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Rules lists CUE files or directories holding rule tables.
	// Relative paths are resolved against the scenario file's directory.
	Rules []string `yaml:"rules"`

	// Registers sets the register bank size. Zero keeps the default.
	Registers int `yaml:"registers,omitempty"`

	// Entities are spawned in order before the first step.
	Entities []EntitySpec `yaml:"entities"`

	// Steps drive the world.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// EntitySpec describes one entity of the scenario world.
type EntitySpec struct {
	Key    string   `yaml:"key"`
	Name   string   `yaml:"name,omitempty"`
	Type   string   `yaml:"type,omitempty"`
	Prefab string   `yaml:"prefab,omitempty"`
	Groups []string `yaml:"groups,omitempty"`

	// Health attaches a health component with current and max set to it.
	Health int32 `yaml:"health,omitempty"`
	// Inventory attaches an inventory component holding these items.
	Inventory []string `yaml:"inventory,omitempty"`

	// Table names the rule table the entity owns.
	Table  string `yaml:"table,omitempty"`
	Locked bool   `yaml:"locked,omitempty"`
}

// Step is one action of the scenario flow. Exactly one of the action
// fields is set.
type Step struct {
	Trigger   string `yaml:"trigger,omitempty"`
	Broadcast string `yaml:"broadcast,omitempty"`
	Tick      int    `yaml:"tick,omitempty"`
	Enable    string `yaml:"enable,omitempty"`
	Disable   string `yaml:"disable,omitempty"`
	Stop      string `yaml:"stop,omitempty"`
	Persist   string `yaml:"persist,omitempty"`
	Restore   string `yaml:"restore,omitempty"`
	SetHealth *int32 `yaml:"set_health,omitempty"`

	// Entity is the target of trigger, enable, disable, stop and
	// set_health steps.
	Entity string `yaml:"entity,omitempty"`
	// Arg is the trigger argument, a bare scalar or a tagged value.
	Arg any `yaml:"arg,omitempty"`
	// Force dispatches to locked entities.
	Force bool `yaml:"force,omitempty"`
}

// Kind returns the name of the step's action field, or "" when none or
// more than one is set.
func (s Step) Kind() string {
	var kinds []string
	add := func(set bool, name string) {
		if set {
			kinds = append(kinds, name)
		}
	}
	add(s.Trigger != "", StepTrigger)
	add(s.Broadcast != "", StepBroadcast)
	add(s.Tick > 0, StepTick)
	add(s.Enable != "", StepEnable)
	add(s.Disable != "", StepDisable)
	add(s.Stop != "", StepStop)
	add(s.Persist != "", StepPersist)
	add(s.Restore != "", StepRestore)
	add(s.SetHealth != nil, StepSetHealth)
	if len(kinds) != 1 {
		return ""
	}
	return kinds[0]
}

// Step kinds.
const (
	StepTrigger   = "trigger"
	StepBroadcast = "broadcast"
	StepTick      = "tick"
	StepEnable    = "enable"
	StepDisable   = "disable"
	StepStop      = "stop"
	StepPersist   = "persist"
	StepRestore   = "restore"
	StepSetHealth = "set_health"
)

// Match selects trace events. Empty fields match anything.
type Match struct {
	Event  string `yaml:"event,omitempty"`
	Entity string `yaml:"entity,omitempty"`
	Rule   string `yaml:"rule,omitempty"`
	Action string `yaml:"action,omitempty"`
	Text   string `yaml:"text,omitempty"`
}

// Assertion validates the trace or the final state.
type Assertion struct {
	// Type is one of trace_contains, trace_order, trace_count,
	// rule_enabled, rule_running or health.
	Type string `yaml:"type"`

	// Match selects events for trace_contains and trace_count. Its
	// Entity and Rule fields also name the subject of rule_enabled,
	// rule_running and health.
	Match `yaml:",inline"`

	// Events is the expected order for trace_order.
	Events []Match `yaml:"events,omitempty"`

	// Count is the expected number of matches for trace_count.
	Count int `yaml:"count,omitempty"`

	// Expect is the expected bool for rule_enabled and rule_running, or
	// the expected current health for health.
	Expect any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertRuleEnabled   = "rule_enabled"
	AssertRuleRunning   = "rule_running"
	AssertHealth        = "health"
)

// LoadScenario reads and parses a scenario YAML file. Rule paths are
// resolved against the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data, filepath.Dir(path))
}

// ParseScenario parses scenario YAML, resolving relative rule paths
// against baseDir. Unknown fields are rejected.
func ParseScenario(data []byte, baseDir string) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	for i, p := range scenario.Rules {
		if !filepath.IsAbs(p) && baseDir != "" {
			scenario.Rules[i] = filepath.Join(baseDir, p)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Rules) == 0 {
		return fmt.Errorf("rules list is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	if s.Registers < 0 {
		return fmt.Errorf("registers must be non-negative")
	}

	for _, p := range s.Rules {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return fmt.Errorf("rules path not found: %s", p)
		}
	}

	keys := make(map[string]bool, len(s.Entities))
	for i, e := range s.Entities {
		if e.Key == "" {
			return fmt.Errorf("entities[%d]: key is required", i)
		}
		if keys[e.Key] {
			return fmt.Errorf("entities[%d]: duplicate key %q", i, e.Key)
		}
		keys[e.Key] = true
		if e.Health < 0 {
			return fmt.Errorf("entities[%d]: health must be non-negative", i)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step, keys); err != nil {
			return err
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, step Step, keys map[string]bool) error {
	kind := step.Kind()
	if kind == "" {
		return fmt.Errorf("steps[%d]: exactly one of trigger, broadcast, tick, enable, disable, stop, persist, restore, set_health is required", index)
	}
	switch kind {
	case StepTrigger, StepEnable, StepDisable, StepStop, StepSetHealth:
		if step.Entity == "" {
			return fmt.Errorf("steps[%d]: entity is required for %s", index, kind)
		}
		if !keys[step.Entity] {
			return fmt.Errorf("steps[%d]: unknown entity %q", index, step.Entity)
		}
	}
	if step.Arg != nil && kind != StepTrigger && kind != StepBroadcast {
		return fmt.Errorf("steps[%d]: arg is only valid for trigger and broadcast", index)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Match == (Match{}) {
			return fmt.Errorf("assertions[%d]: at least one match field is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Events) < 2 {
			return fmt.Errorf("assertions[%d]: events needs at least two entries for trace_order", index)
		}
	case AssertTraceCount:
		if a.Match == (Match{}) {
			return fmt.Errorf("assertions[%d]: at least one match field is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertRuleEnabled, AssertRuleRunning:
		if a.Entity == "" || a.Rule == "" {
			return fmt.Errorf("assertions[%d]: entity and rule are required for %s", index, a.Type)
		}
		if _, ok := a.Expect.(bool); !ok {
			return fmt.Errorf("assertions[%d]: expect must be a bool for %s", index, a.Type)
		}
	case AssertHealth:
		if a.Entity == "" {
			return fmt.Errorf("assertions[%d]: entity is required for health", index)
		}
		if _, ok := a.Expect.(int); !ok {
			return fmt.Errorf("assertions[%d]: expect must be an integer for health", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
