// Package routine provides the cooperative suspension token returned by
// actions that span more than one frame.
//
// A Routine is stepped once per frame by its owner. Next performs one step
// and reports whether the routine is still running. A routine that returns
// false is finished and must not be stepped again.
package routine

import "context"

// Routine is a resumable unit of work.
type Routine interface {
	Next(ctx context.Context) bool
}

// Func adapts a step function to Routine.
type Func func(ctx context.Context) bool

// Next calls f.
func (f Func) Next(ctx context.Context) bool { return f(ctx) }

// Wait returns a routine that stays suspended across n frame boundaries.
// The first n steps report running; step n+1 reports finished.
// Wait(0) finishes on its first step.
func Wait(n int) Routine {
	return &wait{remaining: n}
}

type wait struct {
	remaining int
}

func (w *wait) Next(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	if w.remaining <= 0 {
		return false
	}
	w.remaining--
	return true
}

// Until returns a routine that runs until cond reports true.
// cond is checked on every step including the first.
func Until(cond func() bool) Routine {
	return Func(func(ctx context.Context) bool {
		return ctx.Err() == nil && !cond()
	})
}

// All joins routines. Each step advances every unfinished member once;
// the join is finished when all members are. Nil members are ignored.
func All(rs ...Routine) Routine {
	live := make([]Routine, 0, len(rs))
	for _, r := range rs {
		if r != nil {
			live = append(live, r)
		}
	}
	return &join{live: live}
}

type join struct {
	live []Routine
}

func (j *join) Next(ctx context.Context) bool {
	kept := j.live[:0]
	for _, r := range j.live {
		if r.Next(ctx) {
			kept = append(kept, r)
		}
	}
	// Clear the tail so finished routines can be collected.
	for i := len(kept); i < len(j.live); i++ {
		j.live[i] = nil
	}
	j.live = kept
	return len(j.live) > 0
}

// Sequence runs routines one after another. A member that finishes lets the
// next member start within the same step.
func Sequence(rs ...Routine) Routine {
	return &sequence{steps: rs}
}

type sequence struct {
	steps []Routine
	pos   int
}

func (s *sequence) Next(ctx context.Context) bool {
	for s.pos < len(s.steps) {
		if ctx.Err() != nil {
			return false
		}
		r := s.steps[s.pos]
		if r != nil && r.Next(ctx) {
			return true
		}
		s.pos++
	}
	return false
}

// Run steps r until it finishes or max steps have run, and returns the
// number of steps taken. max <= 0 means no limit.
func Run(ctx context.Context, r Routine, max int) int {
	steps := 0
	for max <= 0 || steps < max {
		steps++
		if !r.Next(ctx) {
			break
		}
	}
	return steps
}
