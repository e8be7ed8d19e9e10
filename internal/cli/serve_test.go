package cli

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FilamentGames/rulescript/internal/builtin"
	"github.com/FilamentGames/rulescript/internal/config"
	"github.com/FilamentGames/rulescript/internal/store"
)

const startRules = `package rules

table: goblin: rules: [{
	id:      "ambush"
	trigger: "start"
	actions: [{action: "damage", args: [3]}]
}]
`

func serveConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Rules.Dir = writeCUE(t, "goblin.cue", startRules)
	cfg.Store.Path = filepath.Join(t.TempDir(), "db", "rs.db")
	cfg.Store.Checkpoint = "checkpoint"
	cfg.Store.Restore = "checkpoint"
	cfg.Engine.FrameInterval = 5 * time.Millisecond
	cfg.Entities = []config.EntityConfig{{Key: "goblin", Type: "creature", Health: 10, Table: "goblin"}}
	return cfg
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func runFor(t *testing.T, s *server, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	require.NoError(t, s.run(ctx))
}

func goblinHealth(t *testing.T, s *server) int32 {
	t.Helper()
	o := s.world.Object("goblin")
	require.NotNil(t, o)
	h, ok := o.Component(builtin.ComponentHealth).(*builtin.Health)
	require.True(t, ok)
	return h.Current
}

func TestServerCheckpointsAndRestores(t *testing.T) {
	cfg := serveConfig(t)

	first, err := newServer(cfg, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, int32(10), goblinHealth(t, first))
	runFor(t, first, 100*time.Millisecond)
	assert.Equal(t, int32(7), goblinHealth(t, first))

	st, err := store.Open(cfg.Store.Path)
	require.NoError(t, err)
	snap, err := st.LoadSnapshot(context.Background(), "checkpoint")
	require.NoError(t, err)
	assert.Len(t, snap.Entities, 1)
	assert.Positive(t, snap.Frame)
	require.NoError(t, st.Close())

	second, err := newServer(cfg, quietLogger())
	require.NoError(t, err)
	defer second.store.Close()
	assert.Equal(t, int32(7), goblinHealth(t, second))
}

func TestServerUnknownTable(t *testing.T) {
	cfg := serveConfig(t)
	cfg.Entities[0].Table = "troll"

	_, err := newServer(cfg, quietLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown table "troll"`)
}

func TestServerMetricsEndpoint(t *testing.T) {
	cfg := serveConfig(t)
	cfg.Metrics.Enabled = true
	cfg.Metrics.ListenAddress = "127.0.0.1:0"

	s, err := newServer(cfg, quietLogger())
	require.NoError(t, err)
	url := "http://" + s.metrics.Addr().String() + cfg.Metrics.Path

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.run(ctx) }()

	assert.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return false
		}
		return strings.Contains(string(body), "rulescript_rules_fired_total 1")
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestServeCommandMissingRules(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "rulescript.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("store:\n  path: "+filepath.Join(t.TempDir(), "rs.db")+"\n"), 0644))

	_, err := execute(t, "serve", "--config", cfgPath, "--rules", filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
