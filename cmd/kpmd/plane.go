package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/mattjoyce/kpmd/internal/backend"
	"github.com/mattjoyce/kpmd/internal/config"
	"github.com/mattjoyce/kpmd/internal/events"
	"github.com/mattjoyce/kpmd/internal/hook"
	"github.com/mattjoyce/kpmd/internal/kpm"
	"github.com/mattjoyce/kpmd/internal/metrics"
	"github.com/mattjoyce/kpmd/internal/supercall"
)

// controlPlane is the in-process wiring shared by start, call and hooks.
type controlPlane struct {
	registry   *hook.Registry
	hub        *events.Hub
	metrics    *metrics.Metrics
	dispatcher *kpm.Dispatcher
	mux        *supercall.Mux
	backend    *backend.Exec // nil when no backend is attached
}

// buildControlPlane attaches the configured backend and assembles the
// dispatcher behind the supercall mux. Extra observers see every dispatch
// after the hub and metrics.
func buildControlPlane(cfg *config.Config, logger *slog.Logger, observers ...kpm.Observer) (*controlPlane, error) {
	p := &controlPlane{
		registry: hook.NewRegistry(),
		hub:      events.NewHub(cfg.Events.Buffer),
		metrics:  metrics.New(),
	}
	p.registry.OnChange(func(st hook.SlotStatus) {
		p.hub.HookChanged(st)
		p.metrics.HookChanged(st)
	})

	exec, err := attachBackend(cfg, p.registry, logger)
	if err != nil {
		return nil, err
	}
	p.backend = exec
	p.metrics.SeedHooks(p.registry.Status())

	opts := []kpm.Option{kpm.WithObserver(p.hub), kpm.WithObserver(p.metrics)}
	for _, o := range observers {
		opts = append(opts, kpm.WithObserver(o))
	}
	p.dispatcher = kpm.New(p.registry, opts...)

	p.mux, err = supercall.New(supercall.KPM(p.dispatcher))
	if err != nil {
		return nil, fmt.Errorf("build supercall mux: %w", err)
	}
	return p, nil
}

// attachBackend discovers cfg.Backend.Dir and binds the selected backend.
// With no backend name configured, a missing directory or an empty catalog
// leaves every slot at its default stub.
func attachBackend(cfg *config.Config, reg *hook.Registry, logger *slog.Logger) (*backend.Exec, error) {
	name := cfg.Backend.Name
	if name == "" {
		if _, err := os.Stat(cfg.Backend.Dir); os.IsNotExist(err) {
			logger.Info("no backend directory, hooks stay at defaults", "dir", cfg.Backend.Dir)
			return nil, nil
		}
	}

	catalog, err := backend.Discover(cfg.Backend.Dir, discoveryLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("backend discovery: %w", err)
	}

	names := catalog.Names()
	if name == "" {
		switch len(names) {
		case 0:
			logger.Info("no backends discovered, hooks stay at defaults", "dir", cfg.Backend.Dir)
			return nil, nil
		case 1:
			name = names[0]
		default:
			return nil, fmt.Errorf("backend.name is required when %d backends are discovered (%v)", len(names), names)
		}
	}

	desc, ok := catalog.Get(name)
	if !ok {
		return nil, fmt.Errorf("backend %q not found in %s (discovered: %v)", name, cfg.Backend.Dir, names)
	}

	points, err := cfg.HookPoints()
	if err != nil {
		return nil, err
	}
	for _, p := range points {
		if !desc.Implements(p) {
			return nil, fmt.Errorf("backend %q does not implement hook %q", name, p)
		}
	}

	exec := backend.NewExec(desc, backend.Options{
		Timeout: cfg.Backend.Timeout,
		Grace:   cfg.Backend.Grace,
		Config:  cfg.Backend.Config,
	})
	points, err = exec.Attach(reg, points...)
	if err != nil {
		return nil, err
	}
	logger.Info("backend attached", "backend", exec.Name(), "hooks", len(points))
	return exec, nil
}

func discoveryLogger(logger *slog.Logger) func(level, msg string, args ...any) {
	return func(level, msg string, args ...any) {
		switch level {
		case "debug":
			logger.Debug(msg, args...)
		case "info":
			logger.Info(msg, args...)
		case "warn":
			logger.Warn(msg, args...)
		case "error":
			logger.Error(msg, args...)
		}
	}
}
