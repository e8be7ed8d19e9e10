package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/FilamentGames/rulescript/internal/ir"
)

// ErrNotFound is returned when a named snapshot does not exist.
var ErrNotFound = errors.New("snapshot not found")

// Snapshot is a named capture of entity state at a frame.
type Snapshot struct {
	Name     string
	Seq      int64
	Frame    int64
	Entities []ir.EntitySnapshot
}

// SnapshotInfo summarizes a stored snapshot without decoding its entities.
type SnapshotInfo struct {
	Name     string `json:"name"`
	Seq      int64  `json:"seq"`
	Frame    int64  `json:"frame"`
	Entities int    `json:"entities"`
}

// EntityRecord is one entity document from a stored snapshot.
type EntityRecord struct {
	Snapshot string
	Frame    int64
	Entity   ir.EntitySnapshot
}

// SaveSnapshot stores entities under name, replacing any snapshot with the
// same name. Every save takes a fresh seq; seqs of replaced or deleted
// snapshots are never reused.
//
// An entity appearing twice in entities is an error.
func (s *Store) SaveSnapshot(ctx context.Context, name string, frame int64, entities []ir.EntitySnapshot) error {
	if name == "" {
		return fmt.Errorf("save snapshot: name is required")
	}

	docs := make([]string, len(entities))
	for i, e := range entities {
		doc, err := marshalEntity(e)
		if err != nil {
			return fmt.Errorf("save snapshot %q: entity %s: %w", name, e.Entity, err)
		}
		docs[i] = doc
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshots WHERE name = ?`, name); err != nil {
		return fmt.Errorf("replace snapshot %q: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO snapshots (name, frame) VALUES (?, ?)`,
		name, frame,
	); err != nil {
		return fmt.Errorf("insert snapshot %q: %w", name, err)
	}

	for i, e := range entities {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO snapshot_entities (snapshot, position, entity_id, document)
			VALUES (?, ?, ?, ?)
		`, name, i, int64(e.Entity), docs[i]); err != nil {
			return fmt.Errorf("insert entity %s into %q: %w", e.Entity, name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot %q: %w", name, err)
	}
	return nil
}

// LoadSnapshot reads the snapshot called name.
// Returns ErrNotFound if it does not exist.
func (s *Store) LoadSnapshot(ctx context.Context, name string) (Snapshot, error) {
	snap := Snapshot{Name: name}
	err := s.db.QueryRowContext(ctx,
		`SELECT seq, frame FROM snapshots WHERE name = ?`, name,
	).Scan(&snap.Seq, &snap.Frame)
	if errors.Is(err, sql.ErrNoRows) {
		return snap, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if err != nil {
		return snap, fmt.Errorf("query snapshot %q: %w", name, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT document
		FROM snapshot_entities
		WHERE snapshot = ?
		ORDER BY position ASC
	`, name)
	if err != nil {
		return snap, fmt.Errorf("query entities of %q: %w", name, err)
	}
	defer rows.Close()

	snap.Entities = []ir.EntitySnapshot{}
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return snap, fmt.Errorf("scan entity: %w", err)
		}
		e, err := unmarshalEntity(doc)
		if err != nil {
			return snap, fmt.Errorf("decode entity of %q: %w", name, err)
		}
		snap.Entities = append(snap.Entities, e)
	}
	if err := rows.Err(); err != nil {
		return snap, fmt.Errorf("iterate entities: %w", err)
	}
	return snap, nil
}

// ListSnapshots returns every stored snapshot in save order.
func (s *Store) ListSnapshots(ctx context.Context) ([]SnapshotInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.name, s.seq, s.frame, COUNT(e.position)
		FROM snapshots s
		LEFT JOIN snapshot_entities e ON e.snapshot = s.name
		GROUP BY s.name
		ORDER BY s.seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	out := []SnapshotInfo{}
	for rows.Next() {
		var info SnapshotInfo
		if err := rows.Scan(&info.Name, &info.Seq, &info.Frame, &info.Entities); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return out, nil
}

// DeleteSnapshot removes the snapshot called name and its entities.
// Reports whether a snapshot was removed.
func (s *Store) DeleteSnapshot(ctx context.Context, name string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("delete snapshot %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// EntityHistory returns the documents of one entity across every snapshot
// that contains it, in save order.
func (s *Store) EntityHistory(ctx context.Context, id ir.EntityID) ([]EntityRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.name, s.frame, e.document
		FROM snapshot_entities e
		JOIN snapshots s ON s.name = e.snapshot
		WHERE e.entity_id = ?
		ORDER BY s.seq ASC
	`, int64(id))
	if err != nil {
		return nil, fmt.Errorf("query entity %s: %w", id, err)
	}
	defer rows.Close()

	out := []EntityRecord{}
	for rows.Next() {
		var (
			rec EntityRecord
			doc string
		)
		if err := rows.Scan(&rec.Snapshot, &rec.Frame, &doc); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		rec.Entity, err = unmarshalEntity(doc)
		if err != nil {
			return nil, fmt.Errorf("decode entity in %q: %w", rec.Snapshot, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entities: %w", err)
	}
	return out, nil
}

func marshalEntity(e ir.EntitySnapshot) (string, error) {
	data, err := ir.MarshalCanonical(ir.SnapshotToAny(e))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalEntity(doc string) (ir.EntitySnapshot, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(doc)))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return ir.EntitySnapshot{}, fmt.Errorf("decode document: %w", err)
	}
	return ir.SnapshotFromAny(raw)
}
