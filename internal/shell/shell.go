// Package shell hosts the spotlight components and owns process-wide startup
// and shutdown.
package shell

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/spotlight/internal/command"
	"github.com/eliteGoblin/focusd/spotlight/internal/config"
	"github.com/eliteGoblin/focusd/spotlight/internal/domain"
	"github.com/eliteGoblin/focusd/spotlight/internal/eventbus"
	"github.com/eliteGoblin/focusd/spotlight/internal/ipc"
	"github.com/eliteGoblin/focusd/spotlight/internal/usecase"
)

// Deps are the OS adapters the shell runs on.
type Deps struct {
	Host      domain.WindowHost
	Checker   domain.AccessibilityChecker
	Launcher  domain.WorkerLauncher
	Processes domain.ProcessManager
}

// Shell wires the window controller, permission gate and worker bridge
// together. Each component is built once here and handed to the command
// layer explicitly.
type Shell struct {
	cfg    config.Config
	deps   Deps
	logger *zap.Logger

	Bus        *eventbus.Bus
	Window     *usecase.WindowControllerImpl
	Permission *usecase.PermissionGate
	Bridge     *usecase.WorkerBridgeImpl
	Commands   *command.Registry

	server      *ipc.Server
	spawnResult <-chan error
	started     time.Time
}

// New builds a shell. Nothing touches the OS until Start.
func New(cfg config.Config, workerSpec domain.WorkerSpec, deps Deps, logger *zap.Logger) *Shell {
	started := time.Now()
	bus := eventbus.New(logger.Named("eventbus"))

	window := usecase.NewWindowController(
		deps.Host,
		cfg.WindowSpec(),
		domain.ActivationPolicy(cfg.Window.ActivationPolicy),
		logger.Named("window"),
	)
	permission := usecase.NewPermissionGate(deps.Checker, logger.Named("permission"))
	bridge := usecase.NewWorkerBridge(deps.Launcher, bus, usecase.BridgeConfig{
		Spec:            workerSpec,
		AckThreshold:    cfg.Worker.AckThreshold,
		AckMessage:      cfg.Worker.AckMessage,
		EventName:       cfg.Worker.EventName,
		ShutdownTimeout: cfg.Worker.ShutdownTimeout,
	}, logger.Named("bridge"))

	commands := command.NewDefaultRegistry(command.Deps{
		Window:     window,
		Permission: permission,
		Bridge:     bridge,
		Processes:  deps.Processes,
		Started:    started,
	}, logger.Named("command"))

	return &Shell{
		cfg:        cfg,
		deps:       deps,
		logger:     logger,
		Bus:        bus,
		Window:     window,
		Permission: permission,
		Bridge:     bridge,
		Commands:   commands,
		started:    started,
	}
}

// Start runs the startup sequence and returns without waiting for the worker,
// unless worker.required is set, in which case a spawn failure aborts startup.
func (s *Shell) Start(ctx context.Context) error {
	// Fire and forget: the answer is only cached for status
	go s.Permission.Request(s.cfg.Permission.PromptOnStart)

	if err := s.Window.Init(); err != nil {
		return fmt.Errorf("failed to initialize spotlight window: %w", err)
	}

	if s.cfg.IPC.SocketPath != "" {
		s.server = ipc.NewServer(s.cfg.IPC.SocketPath, s.Commands, s.Bus, s.logger.Named("ipc"))
		if err := s.server.Start(); err != nil {
			s.server = nil
			return err
		}
	}

	if !s.cfg.Worker.Enabled {
		s.logger.Info("worker disabled by configuration")
		return nil
	}

	s.spawnResult = s.Bridge.Spawn(ctx)
	if !s.cfg.Worker.Required {
		return nil
	}

	select {
	case err := <-s.spawnResult:
		s.spawnResult = nil
		if err != nil {
			return fmt.Errorf("required worker failed to start: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run starts the shell and blocks until ctx is canceled, then shuts down.
func (s *Shell) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		s.shutdownWithTimeout()
		return err
	}

	s.logger.Info("spotlight running",
		zap.String("visibility", string(s.Window.Visibility())),
		zap.String("socket", s.cfg.IPC.SocketPath))

	var recheck <-chan time.Time
	if s.cfg.Permission.RecheckInterval > 0 {
		ticker := time.NewTicker(s.cfg.Permission.RecheckInterval)
		defer ticker.Stop()
		recheck = ticker.C
	}

	spawnResult := s.spawnResult
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("spotlight stopping")
			return s.shutdownWithTimeout()

		case err, ok := <-spawnResult:
			spawnResult = nil
			if ok && err != nil {
				s.logger.Warn("running without worker", zap.Error(err))
			}

		case <-recheck:
			s.Permission.Request(false)
		}
	}
}

func (s *Shell) shutdownWithTimeout() error {
	// Worker grace period plus room for the IPC server
	timeout := s.cfg.Worker.ShutdownTimeout + 2*time.Second
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.Shutdown(ctx)
}

// Shutdown stops the worker, closes the IPC server and releases the window.
func (s *Shell) Shutdown(ctx context.Context) error {
	var firstErr error
	if err := s.Bridge.Stop(ctx); err != nil {
		s.logger.Error("failed to stop worker bridge", zap.Error(err))
		firstErr = err
	}
	if s.server != nil {
		if err := s.server.Close(); err != nil {
			s.logger.Warn("failed to close IPC server", zap.Error(err))
		}
	}
	if err := s.deps.Host.Close(); err != nil {
		s.logger.Warn("failed to close window host", zap.Error(err))
	}
	s.logger.Info("spotlight stopped", zap.Duration("uptime", time.Since(s.started)))
	return firstErr
}

// Status returns the current status snapshot.
func (s *Shell) Status() domain.Status {
	return command.Snapshot(command.Deps{
		Window:     s.Window,
		Permission: s.Permission,
		Bridge:     s.Bridge,
		Processes:  s.deps.Processes,
		Started:    s.started,
	})
}
