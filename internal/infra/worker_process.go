package infra

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/spotlight/internal/domain"
)

// maxLineSize caps a single worker output line.
const maxLineSize = 1024 * 1024

// ExecLauncher implements domain.WorkerLauncher with os/exec.
type ExecLauncher struct {
	pm     domain.ProcessManager
	logger *zap.Logger
}

// NewExecLauncher creates a launcher. pm is used to stop process trees.
func NewExecLauncher(pm domain.ProcessManager, logger *zap.Logger) *ExecLauncher {
	return &ExecLauncher{pm: pm, logger: logger}
}

// Launch locates spec.Binary and starts it with piped stdio.
// Any failure before the process is running wraps domain.ErrSpawnFailed.
func (l *ExecLauncher) Launch(ctx context.Context, spec domain.WorkerSpec) (domain.WorkerProcess, error) {
	path, err := exec.LookPath(spec.Binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSpawnFailed, err)
	}

	cmd := exec.Command(path, spec.Args...)
	cmd.Env = append(os.Environ(), spec.Env...)
	// Own process group so terminal signals reach only the shell
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdout pipe: %v", domain.ErrSpawnFailed, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stderr pipe: %v", domain.ErrSpawnFailed, err)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdin pipe: %v", domain.ErrSpawnFailed, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSpawnFailed, err)
	}
	l.logInfo("worker started",
		zap.String("binary", path),
		zap.Strings("args", spec.Args),
		zap.Int("pid", cmd.Process.Pid))

	w := &execWorker{
		cmd:     cmd,
		stdin:   stdin,
		events:  make(chan domain.WorkerEvent, 64),
		exited:  make(chan struct{}),
		pm:      l.pm,
		logger:  l.logger,
		started: time.Now(),
	}
	w.start(stdout, stderr)
	return w, nil
}

func (l *ExecLauncher) logInfo(msg string, fields ...zap.Field) {
	if l.logger != nil {
		l.logger.Info(msg, fields...)
	}
}

// execWorker is one running worker process.
type execWorker struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	events chan domain.WorkerEvent
	exited chan struct{}
	pm     domain.ProcessManager
	logger *zap.Logger

	started time.Time
	writeMu sync.Mutex
}

func (w *execWorker) start(stdout, stderr io.Reader) {
	// stdout and stderr each keep their own order; there is no ordering between them
	var readers sync.WaitGroup
	readers.Add(2)
	go w.readLines(&readers, stdout, domain.WorkerStdout)
	go w.readLines(&readers, stderr, domain.WorkerStderr)

	go func() {
		// Wait must follow the last pipe read
		readers.Wait()
		err := w.cmd.Wait()

		exitCode := 0
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				exitCode = exitErr.ExitCode()
			} else {
				w.events <- domain.WorkerEvent{Kind: domain.WorkerError, Err: err}
				exitCode = -1
			}
		}
		if w.logger != nil {
			w.logger.Info("worker exited",
				zap.Int("pid", w.PID()),
				zap.Int("exit_code", exitCode),
				zap.Duration("uptime", time.Since(w.started)))
		}

		w.writeMu.Lock()
		close(w.exited)
		_ = w.stdin.Close()
		w.writeMu.Unlock()

		w.events <- domain.WorkerEvent{Kind: domain.WorkerTerminated, ExitCode: exitCode}
		close(w.events)
	}()
}

func (w *execWorker) readLines(wg *sync.WaitGroup, r io.Reader, kind domain.WorkerEventKind) {
	defer wg.Done()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		w.events <- domain.WorkerEvent{Kind: kind, Line: scanner.Text()}
	}
	if err := scanner.Err(); err != nil {
		w.events <- domain.WorkerEvent{Kind: domain.WorkerError, Err: fmt.Errorf("%s: %w", kind, err)}
		// Drain so the process is never blocked on a full pipe
		_, _ = io.Copy(io.Discard, r)
	}
}

// Events returns the output stream, closed after exit.
func (w *execWorker) Events() <-chan domain.WorkerEvent {
	return w.events
}

// WriteLine writes line and a newline to stdin.
func (w *execWorker) WriteLine(line string) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	select {
	case <-w.exited:
		return fmt.Errorf("%w: worker exited", domain.ErrWriteFailed)
	default:
	}
	if _, err := io.WriteString(w.stdin, line+"\n"); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrWriteFailed, err)
	}
	return nil
}

// PID returns the worker's process ID.
func (w *execWorker) PID() int {
	return w.cmd.Process.Pid
}

// Terminate sends SIGTERM to the worker tree and escalates to SIGKILL
// if it has not exited when ctx is done.
func (w *execWorker) Terminate(ctx context.Context) error {
	select {
	case <-w.exited:
		return nil
	default:
	}

	if err := w.pm.TerminateTree(w.PID()); err != nil && w.logger != nil {
		w.logger.Warn("failed to terminate worker", zap.Int("pid", w.PID()), zap.Error(err))
	}

	select {
	case <-w.exited:
		return nil
	case <-ctx.Done():
	}

	if w.logger != nil {
		w.logger.Warn("worker ignored SIGTERM, killing", zap.Int("pid", w.PID()))
	}
	if err := w.pm.KillTree(w.PID()); err != nil {
		return fmt.Errorf("failed to kill worker %d: %w", w.PID(), err)
	}
	return nil
}

// Ensure ExecLauncher implements domain.WorkerLauncher.
var _ domain.WorkerLauncher = (*ExecLauncher)(nil)
