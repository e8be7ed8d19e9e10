// Package schedule enqueues triggers on cron schedules.
//
// Cron jobs run on their own goroutines, so jobs never dispatch directly:
// they submit events through the environment's queue and the frame
// goroutine picks them up on its next Tick.
package schedule

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/FilamentGames/rulescript/internal/config"
	"github.com/FilamentGames/rulescript/internal/engine"
	"github.com/FilamentGames/rulescript/internal/ir"
)

// Enqueuer accepts events from any goroutine.
type Enqueuer interface {
	Enqueue(ev engine.Event) bool
}

// Job is a trigger submitted on a schedule.
type Job struct {
	Name    string
	Spec    string
	Trigger ir.TriggerID
	Arg     ir.Value

	// Entity targets one entity; the zero id broadcasts.
	Entity ir.EntityID
}

// Event returns the queued event the job submits.
func (j Job) Event() engine.Event {
	if j.Entity == 0 {
		return engine.BroadcastEvent(j.Trigger, j.Arg)
	}
	return engine.TriggerEvent(j.Entity, j.Trigger, j.Arg)
}

// JobFromConfig converts a configured schedule into a job.
func JobFromConfig(c config.ScheduleConfig) (Job, error) {
	arg, err := ir.ParseValue(c.Arg)
	if err != nil {
		return Job{}, fmt.Errorf("schedule %s: arg: %w", c.Name, err)
	}
	j := Job{
		Name:    c.Name,
		Spec:    c.Cron,
		Trigger: ir.TriggerIDOf(c.Trigger),
		Arg:     arg,
	}
	if c.Entity != "" {
		j.Entity = ir.EntityIDOf(c.Entity)
	}
	return j, nil
}

// Scheduler owns a cron instance whose jobs enqueue trigger events.
type Scheduler struct {
	target  Enqueuer
	cron    *cron.Cron
	logger  *slog.Logger
	mu      sync.Mutex
	entries map[string]cron.EntryID
	running bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the scheduler's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = l
	}
}

// WithLocation evaluates schedules in loc instead of the local zone.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		s.cron = cron.New(cron.WithLocation(loc))
	}
}

// New creates a stopped scheduler submitting to target.
func New(target Enqueuer, opts ...Option) *Scheduler {
	s := &Scheduler{
		target:  target,
		cron:    cron.New(),
		logger:  slog.Default(),
		entries: make(map[string]cron.EntryID),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "schedule")
	return s
}

// Add registers a job. Names must be unique.
func (s *Scheduler) Add(j Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if j.Name == "" {
		return fmt.Errorf("schedule name is required")
	}
	if _, dup := s.entries[j.Name]; dup {
		return fmt.Errorf("schedule %q already registered", j.Name)
	}
	id, err := s.cron.AddFunc(j.Spec, func() { s.Fire(j) })
	if err != nil {
		return fmt.Errorf("invalid cron schedule %q for %s: %w", j.Spec, j.Name, err)
	}
	s.entries[j.Name] = id

	s.logger.Debug("schedule added",
		"name", j.Name,
		"spec", j.Spec,
		"trigger", j.Trigger.String(),
	)
	return nil
}

// Remove unregisters a job, reporting whether it existed.
func (s *Scheduler) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.entries[name]
	if !ok {
		return false
	}
	s.cron.Remove(id)
	delete(s.entries, name)
	return true
}

// Fire submits the job's event immediately. A closed queue drops it.
func (s *Scheduler) Fire(j Job) bool {
	if !s.target.Enqueue(j.Event()) {
		s.logger.Warn("scheduled trigger dropped: queue closed",
			"name", j.Name,
			"trigger", j.Trigger.String(),
		)
		return false
	}
	s.logger.Debug("scheduled trigger enqueued",
		"name", j.Name,
		"trigger", j.Trigger.String(),
	)
	return true
}

// Start runs the cron loop in its own goroutine.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
	s.logger.Info("scheduler started", "jobs", len(s.entries))
}

// Stop stops the cron loop and waits for running jobs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("scheduler stopped")
}

// IsRunning returns true if the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Next returns the next activation of the named job. The zero time is
// returned for unknown jobs or before Start.
func (s *Scheduler) Next(name string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.entries[name]
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(id).Next
}

// Names returns the registered job names.
func (s *Scheduler) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	return names
}
