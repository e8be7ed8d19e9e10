package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FilamentGames/rulescript/internal/ir"
	"github.com/FilamentGames/rulescript/internal/store"
)

// seedStore creates a database holding one snapshot named "before".
func seedStore(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rs.db")
	st, err := store.Open(path)
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.SaveSnapshot(context.Background(), "before", 12, []ir.EntitySnapshot{{
		Entity: ir.EntityIDOf("goblin"),
		Rules:  []ir.PersistedRule{{ID: "flee", State: ir.RuleState(0)}},
		Components: []ir.ComponentSnapshot{{
			Type:   "health",
			Fields: map[string]ir.Value{"current": ir.Int(7), "max": ir.Int(20)},
		}},
	}}))
	return path
}

func TestSnapshotList(t *testing.T) {
	db := seedStore(t)

	out, err := execute(t, "snapshot", "list", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "before")
	assert.Contains(t, out, "frame=12 entities=1")

	out, err = execute(t, "--format", "json", "snapshot", "list", "--db", db)
	require.NoError(t, err)
	var resp struct {
		Status string               `json:"status"`
		Data   []store.SnapshotInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "before", resp.Data[0].Name)
	assert.Equal(t, int64(12), resp.Data[0].Frame)
}

func TestSnapshotShow(t *testing.T) {
	db := seedStore(t)

	out, err := execute(t, "snapshot", "show", "before", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "before (seq 1, frame 12)")
	assert.Contains(t, out, "rules=1 components=1")

	out, err = execute(t, "--format", "json", "snapshot", "show", "before", "--db", db)
	require.NoError(t, err)
	var resp struct {
		Data SnapshotDetail `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "before", resp.Data.Name)
	require.Len(t, resp.Data.Entities, 1)

	_, err = execute(t, "snapshot", "show", "after", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestSnapshotDelete(t *testing.T) {
	db := seedStore(t)

	out, err := execute(t, "snapshot", "delete", "before", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted snapshot before")

	_, err = execute(t, "snapshot", "delete", "before", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	out, err = execute(t, "snapshot", "list", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "No snapshots.")
}

func TestSnapshotMissingDatabase(t *testing.T) {
	_, err := execute(t, "snapshot", "list", "--db", filepath.Join(t.TempDir(), "none.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "database not found")
}
