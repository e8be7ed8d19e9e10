package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FilamentGames/rulescript/internal/harness"
)

var scenarioDir = filepath.Join("..", "harness", "testdata", "scenarios")

func TestRunScenarioDirectory(t *testing.T) {
	out, err := execute(t, "run", scenarioDir)
	require.NoError(t, err)
	assert.Contains(t, out, "3 passed, 0 failed, 3 total")
}

func TestRunScenarioJSON(t *testing.T) {
	out, err := execute(t, "--format", "json", "run", filepath.Join(scenarioDir, "goblin_flees.yaml"))
	require.NoError(t, err)

	var resp struct {
		Status string              `json:"status"`
		Data   harness.SuiteResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.Data.Total)
	assert.Equal(t, 1, resp.Data.Passed)
}

func TestRunFailingScenario(t *testing.T) {
	rules := writeCUE(t, "goblin.cue", goblinRules)
	path := filepath.Join(t.TempDir(), "wrong.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`name: wrong_health
description: expects the goblin unhurt
rules:
  - `+filepath.Join(rules, "goblin.cue")+`
entities:
  - key: goblin
    health: 20
    table: goblin
steps:
  - trigger: hit
    entity: goblin
    arg: 1
assertions:
  - type: health
    entity: goblin
    expect: 20
`), 0644))

	out, err := execute(t, "run", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ wrong_health")
	assert.Contains(t, out, "0 passed, 1 failed, 1 total")

	out, err = execute(t, "--format", "json", "run", path)
	require.Error(t, err)
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "S001", resp.Error.Code)
}

func TestRunMissingPath(t *testing.T) {
	_, err := execute(t, "run", filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "does not exist")
}

func TestRunEmptyDirectory(t *testing.T) {
	out, err := execute(t, "run", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}
