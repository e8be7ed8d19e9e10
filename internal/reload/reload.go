// Package reload recompiles a CUE rule directory and swaps the new tables
// into a running environment.
//
// Compilation happens on the caller's goroutine. The swap is submitted as
// a call event so it runs on the frame goroutine between dispatches.
package reload

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/FilamentGames/rulescript/internal/compiler"
	"github.com/FilamentGames/rulescript/internal/engine"
	"github.com/FilamentGames/rulescript/internal/ir"
)

// Enqueuer accepts events from any goroutine.
type Enqueuer interface {
	Enqueue(ev engine.Event) bool
}

// Reloader recompiles a rule directory on demand.
type Reloader struct {
	dir    string
	target Enqueuer
	logger *slog.Logger

	generation atomic.Int64
}

// New creates a reloader for dir submitting swaps to target.
func New(dir string, target Enqueuer, logger *slog.Logger) *Reloader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reloader{dir: dir, target: target, logger: logger.With("component", "reload")}
}

// Generation returns the number of successful reloads.
func (r *Reloader) Generation() int64 { return r.generation.Load() }

// LoadTables compiles every table under dir and indexes them by name.
// Compile errors are joined; no partial result is returned.
func LoadTables(dir string) (map[string]*ir.RuleTable, error) {
	res, errs := compiler.LoadDir(dir, compiler.LoadModeCollectAll)
	if len(errs) > 0 {
		return nil, fmt.Errorf("compile %s: %w", dir, errors.Join(errs...))
	}
	tables := make(map[string]*ir.RuleTable, len(res.Tables))
	for _, t := range res.Tables {
		tables[t.Name] = t
	}
	return tables, nil
}

// Reload recompiles the directory and enqueues the swap. On a compile
// error the running tables are left untouched.
func (r *Reloader) Reload() error {
	tables, err := LoadTables(r.dir)
	if err != nil {
		return err
	}
	gen := r.generation.Add(1)
	if !r.target.Enqueue(engine.CallEvent(func(env *engine.Environment) {
		swapped, missing := Swap(env, tables)
		r.logger.Info("rule tables reloaded",
			"generation", gen,
			"swapped", swapped,
			"missing", missing,
		)
	})) {
		return fmt.Errorf("reload %s: environment queue closed", r.dir)
	}
	return nil
}

// Swap reassigns every runtime table whose name appears in tables. It
// returns the number of tables swapped and the names that vanished from
// the new set; their owners keep the previous table. Running tasks of a
// swapped table are stopped.
func Swap(env *engine.Environment, tables map[string]*ir.RuleTable) (int, []string) {
	swapped := 0
	var missing []string
	for _, rt := range env.Tables() {
		name := rt.Table().Name
		t, ok := tables[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		env.SetTable(rt.Owner(), t)
		swapped++
	}
	return swapped, missing
}
