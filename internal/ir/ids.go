package ir

import (
	"fmt"
	"hash/fnv"
)

// HashID is the 32-bit identity derived from a stable string key.
// Zero is reserved for "none"; a key hashing to zero is remapped to 1.
type HashID uint32

// HashKey computes the FNV-1a hash of key.
// The empty key hashes to zero (none).
func HashKey(key string) HashID {
	if key == "" {
		return 0
	}
	h := fnv.New32a()
	h.Write([]byte(key))
	id := HashID(h.Sum32())
	if id == 0 {
		id = 1
	}
	return id
}

// String renders the id as fixed-width hex.
func (id HashID) String() string {
	return fmt.Sprintf("%08x", uint32(id))
}

// IsZero reports whether the id is unset.
func (id HashID) IsZero() bool { return id == 0 }

// EntityID identifies an entity owned by the host.
type EntityID HashID

// GroupID identifies an entity group.
type GroupID HashID

// TriggerID identifies a registered trigger.
type TriggerID HashID

// MethodID identifies a registered action or query.
type MethodID HashID

// EntityIDOf hashes an entity key.
func EntityIDOf(key string) EntityID { return EntityID(HashKey(key)) }

// GroupIDOf hashes a group name.
func GroupIDOf(name string) GroupID { return GroupID(HashKey(name)) }

// TriggerIDOf hashes a trigger key.
func TriggerIDOf(key string) TriggerID { return TriggerID(HashKey(key)) }

// MethodIDOf hashes an action or query key.
func MethodIDOf(key string) MethodID { return MethodID(HashKey(key)) }

func (id EntityID) String() string  { return HashID(id).String() }
func (id GroupID) String() string   { return HashID(id).String() }
func (id TriggerID) String() string { return HashID(id).String() }
func (id MethodID) String() string  { return HashID(id).String() }

// DedupeTriggers returns ids with duplicates and zero ids removed,
// preserving first-seen order.
func DedupeTriggers(ids []TriggerID) []TriggerID {
	seen := make(map[TriggerID]bool, len(ids))
	out := make([]TriggerID, 0, len(ids))
	for _, id := range ids {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
