package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotDocumentRoundTrip(t *testing.T) {
	snap := EntitySnapshot{
		Entity: EntityIDOf("knight"),
		Rules: []PersistedRule{
			{ID: "on-hit", State: StateEnabled},
			{ID: "once", State: StateFired},
		},
		Components: []ComponentSnapshot{
			{Type: "health", Fields: map[string]Value{"current": Int(40), "max": Int(100)}},
			{Type: "inventory", Fields: map[string]Value{}, Custom: []byte("sword,shield")},
		},
	}

	data, err := MarshalCanonical(SnapshotToAny(snap))
	require.NoError(t, err)

	var raw any
	require.NoError(t, json.Unmarshal(data, &raw))

	back, err := SnapshotFromAny(raw)
	require.NoError(t, err)
	assert.Equal(t, snap, back)

	hp := back.Component("health")
	require.NotNil(t, hp)
	assert.Equal(t, Int(40), hp.Fields["current"])
	assert.Nil(t, back.Component("mana"))
}

func TestSnapshotFromAnyRejectsGarbage(t *testing.T) {
	_, err := SnapshotFromAny("nope")
	assert.Error(t, err)

	_, err = SnapshotFromAny(map[string]any{"entity": -1})
	assert.Error(t, err)
}
