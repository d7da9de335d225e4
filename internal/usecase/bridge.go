package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/spotlight/internal/domain"
)

// Diagnostic events emitted alongside relayed worker lines.
const (
	EventWorkerFailed  = "worker_failed"
	EventWorkerStopped = "worker_stopped"
)

// BridgeConfig holds worker bridge settings.
type BridgeConfig struct {
	Spec            domain.WorkerSpec
	AckThreshold    int           // Stdout lines per acknowledgment
	AckMessage      string        // Written to stdin, newline appended
	EventName       string        // UI event name for relayed lines
	ShutdownTimeout time.Duration // SIGTERM grace period before SIGKILL
}

// DefaultBridgeConfig returns the stock line protocol settings.
func DefaultBridgeConfig() BridgeConfig {
	return BridgeConfig{
		AckThreshold:    4,
		AckMessage:      "message from Rust",
		EventName:       "message",
		ShutdownTimeout: 3 * time.Second,
	}
}

// WorkerBridgeImpl implements domain.WorkerBridge.
// It owns the single worker process of the app instance: nothing else
// reads its stdout or writes its stdin.
type WorkerBridgeImpl struct {
	launcher domain.WorkerLauncher
	sink     domain.EventSink
	cfg      BridgeConfig
	logger   *zap.Logger
	now      func() time.Time

	mu       sync.Mutex
	state    domain.BridgeState
	proc     domain.WorkerProcess
	stats    domain.BridgeStats
	stopping bool
	done     chan struct{}
}

// NewWorkerBridge creates an idle bridge.
func NewWorkerBridge(launcher domain.WorkerLauncher, sink domain.EventSink, cfg BridgeConfig, logger *zap.Logger) *WorkerBridgeImpl {
	if cfg.AckThreshold < 1 {
		cfg.AckThreshold = DefaultBridgeConfig().AckThreshold
	}
	return &WorkerBridgeImpl{
		launcher: launcher,
		sink:     sink,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		state:    domain.BridgeIdle,
		stats:    domain.BridgeStats{State: domain.BridgeIdle},
		done:     make(chan struct{}),
	}
}

// Spawn launches the worker on a background goroutine and returns at once.
// The channel receives a single result and is then closed.
func (b *WorkerBridgeImpl) Spawn(ctx context.Context) <-chan error {
	result := make(chan error, 1)
	if err := b.begin(); err != nil {
		result <- err
		close(result)
		return result
	}
	go func() {
		result <- b.launch(ctx)
		close(result)
	}()
	return result
}

// Start launches the worker and waits for the launch result.
// The relay loop still runs in the background.
func (b *WorkerBridgeImpl) Start(ctx context.Context) error {
	if err := b.begin(); err != nil {
		return err
	}
	return b.launch(ctx)
}

// begin moves Idle to Starting. A bridge spawns at most once.
func (b *WorkerBridgeImpl) begin() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != domain.BridgeIdle {
		return fmt.Errorf("%w (state %s)", domain.ErrWorkerAlreadySpawned, b.state)
	}
	b.state = domain.BridgeStarting
	b.stats.State = b.state
	return nil
}

func (b *WorkerBridgeImpl) launch(ctx context.Context) error {
	proc, err := b.launcher.Launch(ctx, b.cfg.Spec)
	if err != nil {
		if !errors.Is(err, domain.ErrSpawnFailed) {
			err = fmt.Errorf("%w: %v", domain.ErrSpawnFailed, err)
		}
		b.logger.Error("worker spawn failed, continuing without worker",
			zap.String("binary", b.cfg.Spec.Binary),
			zap.Error(err))

		b.mu.Lock()
		b.setState(domain.BridgeFailed)
		close(b.done)
		b.mu.Unlock()

		b.emitDiagnostic(EventWorkerFailed, err.Error())
		return err
	}

	b.mu.Lock()
	b.proc = proc
	b.stats.PID = proc.PID()
	b.setState(domain.BridgeRunning)
	stopping := b.stopping
	b.mu.Unlock()

	b.logger.Info("worker bridge running",
		zap.Int("pid", proc.PID()),
		zap.Int("ack_threshold", b.cfg.AckThreshold))

	go b.relay(proc)

	if stopping {
		// Stop raced with the launch
		go b.terminate(context.Background(), proc)
	}
	return nil
}

// relay forwards worker output until the event stream closes.
func (b *WorkerBridgeImpl) relay(proc domain.WorkerProcess) {
	exitCode := 0
	for ev := range proc.Events() {
		switch ev.Kind {
		case domain.WorkerStdout:
			b.relayLine(proc, ev.Line)
		case domain.WorkerStderr:
			b.logger.Info("worker stderr", zap.String("line", ev.Line))
		case domain.WorkerError:
			b.logger.Warn("worker stream error", zap.Error(ev.Err))
		case domain.WorkerTerminated:
			exitCode = ev.ExitCode
		default:
			b.logger.Debug("ignoring worker event", zap.String("kind", string(ev.Kind)))
		}
	}

	b.mu.Lock()
	b.setState(domain.BridgeStopped)
	stats := b.stats
	b.mu.Unlock()

	b.logger.Info("worker stopped, bridge will not restart it",
		zap.Int("exit_code", exitCode),
		zap.Int("lines_relayed", stats.LinesRelayed),
		zap.Int("acks_sent", stats.AcksSent))
	b.emitDiagnostic(EventWorkerStopped, fmt.Sprintf("exit code %d", exitCode))

	close(b.done)
}

func (b *WorkerBridgeImpl) relayLine(proc domain.WorkerProcess, line string) {
	payload, _ := json.Marshal(line)
	b.sink.Emit(domain.UIEvent{Name: b.cfg.EventName, Payload: payload, At: b.now()})

	b.mu.Lock()
	b.stats.LinesRelayed++
	b.stats.Counter++
	ack := b.stats.Counter >= b.cfg.AckThreshold
	if ack {
		b.stats.Counter = 0
	}
	b.mu.Unlock()

	if !ack {
		return
	}

	err := proc.WriteLine(b.cfg.AckMessage)

	b.mu.Lock()
	if err != nil {
		b.stats.WriteFailures++
	} else {
		b.stats.AcksSent++
	}
	b.mu.Unlock()

	if err != nil {
		b.logger.Warn("failed to acknowledge worker", zap.Error(err))
	}
}

// Stop terminates the worker and waits for the relay loop to end.
// A bridge that never spawned moves straight to Stopped.
func (b *WorkerBridgeImpl) Stop(ctx context.Context) error {
	b.mu.Lock()
	b.stopping = true
	proc := b.proc
	switch b.state {
	case domain.BridgeIdle:
		b.setState(domain.BridgeStopped)
		close(b.done)
		b.mu.Unlock()
		return nil
	case domain.BridgeStopped, domain.BridgeFailed:
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	if proc != nil {
		b.terminate(ctx, proc)
	}

	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker bridge did not stop: %w", ctx.Err())
	}
}

func (b *WorkerBridgeImpl) terminate(ctx context.Context, proc domain.WorkerProcess) {
	termCtx := ctx
	if b.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		termCtx, cancel = context.WithTimeout(ctx, b.cfg.ShutdownTimeout)
		defer cancel()
	}
	b.logger.Info("terminating worker", zap.Int("pid", proc.PID()))
	if err := proc.Terminate(termCtx); err != nil {
		b.logger.Error("failed to terminate worker", zap.Int("pid", proc.PID()), zap.Error(err))
	}
}

// State returns the lifecycle state.
func (b *WorkerBridgeImpl) State() domain.BridgeState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Counter returns stdout lines received since the last acknowledgment.
func (b *WorkerBridgeImpl) Counter() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats.Counter
}

// Stats returns a snapshot of the bridge counters.
func (b *WorkerBridgeImpl) Stats() domain.BridgeStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// Done is closed once the bridge reaches Stopped or Failed.
func (b *WorkerBridgeImpl) Done() <-chan struct{} {
	return b.done
}

// setState must be called with mu held.
func (b *WorkerBridgeImpl) setState(state domain.BridgeState) {
	b.state = state
	b.stats.State = state
}

func (b *WorkerBridgeImpl) emitDiagnostic(name, message string) {
	payload, _ := json.Marshal(message)
	b.sink.Emit(domain.UIEvent{Name: name, Payload: payload, At: b.now()})
}

// Ensure WorkerBridgeImpl implements domain.WorkerBridge.
var _ domain.WorkerBridge = (*WorkerBridgeImpl)(nil)
