package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/FilamentGames/rulescript/internal/builtin"
	"github.com/FilamentGames/rulescript/internal/config"
	"github.com/FilamentGames/rulescript/internal/engine"
	"github.com/FilamentGames/rulescript/internal/entity"
	"github.com/FilamentGames/rulescript/internal/ir"
	"github.com/FilamentGames/rulescript/internal/reload"
	"github.com/FilamentGames/rulescript/internal/schedule"
	"github.com/FilamentGames/rulescript/internal/store"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Config   string
	RulesDir string
	Watch    bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the rule environment",
		Long: `Spawn the configured entities, assign their rule tables and tick the
environment until interrupted.

Schedules enqueue triggers on cron expressions, --watch recompiles the
rule directory when it changes, and the store restores and checkpoints
world state around the run.

Example:
  rulescript serve --config rulescript.yaml
  rulescript serve --config rulescript.yaml --watch --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Config, "config", "c", "", "path to the configuration file")
	cmd.Flags().StringVar(&opts.RulesDir, "rules", "", "rule directory (overrides rules.dir)")
	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "reload rule tables when files change")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := config.LoadWithEnvOverrides(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	if opts.RulesDir != "" {
		cfg.Rules.Dir = opts.RulesDir
	}
	if opts.Watch {
		cfg.Rules.Watch = true
	}

	logger := cfg.Log.NewLogger(cmd.ErrOrStderr(), opts.Verbose)
	slog.SetDefault(logger)

	srv, err := newServer(cfg, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	fmt.Fprintln(cmd.OutOrStdout(), "Environment started. Press Ctrl-C to stop.")
	if err := srv.run(ctx); err != nil {
		return WrapExitError(ExitFailure, "environment error", err)
	}
	return nil
}

// server wires the environment to the store, schedules, reload watcher
// and metrics endpoint described by a configuration.
type server struct {
	cfg      *config.Config
	logger   *slog.Logger
	world    *entity.World
	env      *engine.Environment
	store    *store.Store
	registry *prometheus.Registry
	sched    *schedule.Scheduler
	reloader *reload.Reloader
	metrics  net.Listener
}

func newServer(cfg *config.Config, logger *slog.Logger) (*server, error) {
	s := &server{
		cfg:      cfg,
		logger:   logger,
		world:    entity.NewWorld(),
		registry: prometheus.NewRegistry(),
	}
	s.registry.MustRegister(collectors.NewGoCollector())

	lib, err := builtin.New(builtin.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("build library: %w", err)
	}
	tables, err := reload.LoadTables(cfg.Rules.Dir)
	if err != nil {
		return nil, err
	}

	s.env = engine.New(lib, s.world,
		engine.WithLogger(logger),
		engine.WithMetrics(s.registry),
		engine.WithRegisterCount(cfg.Engine.Registers),
		engine.WithScopePool(cfg.Engine.PlainScopes, cfg.Engine.RegisterScopes),
		engine.WithMaxDepth(cfg.Engine.MaxDepth),
		engine.WithReentrancyGuard(cfg.Engine.ReentrancyGuard),
	)
	if err := s.spawn(tables); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	s.store, err = store.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := s.restore(context.Background()); err != nil {
		s.store.Close()
		return nil, err
	}

	s.sched = schedule.New(s.env, schedule.WithLogger(logger))
	for _, sc := range cfg.Schedules {
		job, err := schedule.JobFromConfig(sc)
		if err != nil {
			s.store.Close()
			return nil, err
		}
		if err := s.sched.Add(job); err != nil {
			s.store.Close()
			return nil, err
		}
	}

	s.reloader = reload.New(cfg.Rules.Dir, s.env, logger)

	if cfg.Metrics.Enabled {
		s.metrics, err = net.Listen("tcp", cfg.Metrics.ListenAddress)
		if err != nil {
			s.store.Close()
			return nil, fmt.Errorf("listen on %s: %w", cfg.Metrics.ListenAddress, err)
		}
	}
	return s, nil
}

// spawn creates the configured entities and assigns their tables.
func (s *server) spawn(tables map[string]*ir.RuleTable) error {
	for _, ec := range s.cfg.Entities {
		o, err := builtin.Spawn(s.world, entity.Spec{
			Key:    ec.Key,
			Name:   ec.Name,
			Prefab: ec.Prefab,
			Type:   ec.Type,
			Groups: ec.Groups,
		}, ec.Health)
		if err != nil {
			return fmt.Errorf("spawn %s: %w", ec.Key, err)
		}
		if ec.Inventory != nil {
			o.Attach(builtin.ComponentInventory, &builtin.Inventory{Items: append([]string(nil), ec.Inventory...)})
		}
		if ec.Table == "" {
			continue
		}
		t, ok := tables[ec.Table]
		if !ok {
			return fmt.Errorf("entity %s: unknown table %q", ec.Key, ec.Table)
		}
		s.env.SetTable(o, t)
	}
	return nil
}

// restore applies the configured startup snapshot. A missing snapshot is
// not an error.
func (s *server) restore(ctx context.Context) error {
	name := s.cfg.Store.Restore
	if name == "" {
		return nil
	}
	snap, err := s.store.LoadSnapshot(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		s.logger.Info("no snapshot to restore", "name", name)
		return nil
	}
	if err != nil {
		return fmt.Errorf("restore %s: %w", name, err)
	}

	var errs []error
	for _, e := range snap.Entities {
		if err := s.env.Apply(e); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("restore %s: %w", name, err)
	}
	s.logger.Info("snapshot restored", "name", name, "frame", snap.Frame, "entities", len(snap.Entities))
	return nil
}

// checkpoint saves every table-owning entity under the configured name.
func (s *server) checkpoint(ctx context.Context) error {
	name := s.cfg.Store.Checkpoint
	if name == "" {
		return nil
	}
	snaps, err := s.env.CaptureAll()
	if err != nil {
		return fmt.Errorf("checkpoint %s: %w", name, err)
	}
	if err := s.store.SaveSnapshot(ctx, name, s.env.Frame(), snaps); err != nil {
		return fmt.Errorf("checkpoint %s: %w", name, err)
	}
	s.logger.Info("checkpoint saved", "name", name, "frame", s.env.Frame(), "entities", len(snaps))
	return nil
}

// run ticks the environment until ctx is cancelled, then checkpoints and
// releases the store.
func (s *server) run(ctx context.Context) error {
	defer func() {
		if err := s.store.Close(); err != nil {
			s.logger.Error("error closing store", "error", err)
		}
	}()

	if s.metrics != nil {
		mux := http.NewServeMux()
		mux.Handle(s.cfg.Metrics.Path, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
		hs := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := hs.Serve(s.metrics); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("metrics server failed", "error", err)
			}
		}()
		s.logger.Info("metrics listening", "address", s.metrics.Addr().String(), "path", s.cfg.Metrics.Path)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = hs.Shutdown(shutdownCtx)
		}()
	}

	if s.cfg.Rules.Watch {
		w, err := reload.NewWatcher(s.cfg.Rules.Dir, s.cfg.Rules.Debounce, s.logger)
		if err != nil {
			return err
		}
		go func() {
			if err := w.Watch(ctx, s.reloader.Reload); err != nil {
				s.logger.Error("rule watcher failed", "error", err)
			}
		}()
		defer func() {
			if err := w.Stop(); err != nil {
				s.logger.Warn("error stopping rule watcher", "error", err)
			}
		}()
	}

	s.sched.Start()
	defer s.sched.Stop()

	s.env.Enqueue(engine.BroadcastEvent(ir.TriggerIDOf(builtin.TriggerStart), nil))

	err := s.env.Run(ctx, s.cfg.Engine.FrameInterval)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}
	if cerr := s.checkpoint(context.Background()); cerr != nil {
		err = errors.Join(err, cerr)
	}
	return err
}
