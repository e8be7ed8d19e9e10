package store

import (
	"path/filepath"
	"testing"

	"github.com/FilamentGames/rulescript/internal/ir"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	return createStoreAt(t, filepath.Join(t.TempDir(), "test.db"))
}

func createStoreAt(t *testing.T, path string) *Store {
	t.Helper()
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// entitySnapshot builds a snapshot with one health component and the given
// rule states.
func entitySnapshot(key string, current int32, rules ...ir.PersistedRule) ir.EntitySnapshot {
	return ir.EntitySnapshot{
		Entity: ir.EntityIDOf(key),
		Rules:  rules,
		Components: []ir.ComponentSnapshot{{
			Type: "health",
			Fields: map[string]ir.Value{
				"current": ir.Int(current),
				"max":     ir.Int(100),
			},
		}},
	}
}
