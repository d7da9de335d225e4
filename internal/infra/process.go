// Package infra implements infrastructure concerns (process, window system, accessibility).
package infra

import (
	"errors"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/eliteGoblin/focusd/spotlight/internal/domain"
)

// ProcessManagerImpl implements domain.ProcessManager using gopsutil.
type ProcessManagerImpl struct{}

// NewProcessManager creates a new process manager.
func NewProcessManager() domain.ProcessManager {
	return &ProcessManagerImpl{}
}

// IsRunning checks if a PID exists and is not a zombie.
func (pm *ProcessManagerImpl) IsRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	status, err := p.Status()
	if err != nil {
		// Process may have exited between the two calls
		running, _ := p.IsRunning()
		return running
	}
	for _, s := range status {
		if s == process.Zombie {
			return false
		}
	}
	return true
}

// TerminateTree sends SIGTERM to pid and every descendant, children first.
func (pm *ProcessManagerImpl) TerminateTree(pid int) error {
	return signalTree(pid, (*process.Process).Terminate)
}

// KillTree sends SIGKILL to pid and every descendant, children first.
func (pm *ProcessManagerImpl) KillTree(pid int) error {
	return signalTree(pid, (*process.Process).Kill)
}

func signalTree(pid int, signal func(*process.Process) error) error {
	root, err := process.NewProcess(int32(pid))
	if err != nil {
		return err
	}

	var errs []error
	for _, p := range append(descendants(root), root) {
		if err := signal(p); err != nil {
			// Already gone is fine
			if exists, _ := process.PidExists(p.Pid); exists {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// descendants returns all processes below p, deepest first.
func descendants(p *process.Process) []*process.Process {
	children, err := p.Children()
	if err != nil {
		return nil // ErrorNoChildren or process gone
	}
	var out []*process.Process
	for _, c := range children {
		out = append(out, descendants(c)...)
		out = append(out, c)
	}
	return out
}

// Ensure ProcessManagerImpl implements domain.ProcessManager.
var _ domain.ProcessManager = (*ProcessManagerImpl)(nil)
