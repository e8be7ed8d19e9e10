// Package harness runs rule tables against scripted worlds.
//
// A scenario spawns entities, assigns them compiled rule tables, drives
// them with triggers and frame ticks, and checks the observed trace and
// final state.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: goblin_flees
//	description: "A wounded goblin runs away"
//	rules:
//	  - rules/goblin.cue
//	entities:
//	  - key: goblin
//	    type: creature
//	    health: 20
//	    table: goblin
//	steps:
//	  - trigger: hit
//	    entity: goblin
//	    arg: 15
//	  - tick: 2
//	  - persist: checkpoint
//	assertions:
//	  - type: trace_contains
//	    event: log
//	    text: flee
//	  - type: health
//	    entity: goblin
//	    expect: 5
//
// Exactly one of trigger, broadcast, tick, enable, disable, stop,
// persist, restore or set_health is set per step. Persist and restore
// round-trip the world through an in-memory snapshot store.
//
// # Assertion Types
//
//   - trace_contains: at least one event matches
//   - trace_order: the first match of each entry appears in order
//   - trace_count: exactly count events match
//   - rule_enabled, rule_running: a rule's state flag equals expect
//   - health: an entity's current health equals expect
//
// # Deterministic Testing
//
// Tokens come from a sequence generator seeded with the scenario name and
// the frame clock starts at zero, so identical scenarios produce
// identical traces. RunWithGolden compares a trace against
// testdata/golden/{name}.golden.
package harness
