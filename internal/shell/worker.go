package shell

import (
	"fmt"
	"os"

	"github.com/eliteGoblin/focusd/spotlight/internal/config"
	"github.com/eliteGoblin/focusd/spotlight/internal/domain"
)

// WorkerCommand is the hidden CLI command that runs the built-in demo worker.
const WorkerCommand = "worker"

// ResolveWorkerSpec turns worker config into a launch spec.
// With no binary configured the current executable is re-run with the
// hidden worker command.
func ResolveWorkerSpec(cfg config.WorkerConfig) (domain.WorkerSpec, error) {
	if cfg.Binary != "" {
		return domain.WorkerSpec{Binary: cfg.Binary, Args: cfg.Args, Env: cfg.Env}, nil
	}

	executable, err := os.Executable()
	if err != nil {
		return domain.WorkerSpec{}, fmt.Errorf("failed to locate own executable: %w", err)
	}
	return domain.WorkerSpec{
		Binary: executable,
		Args:   append([]string{WorkerCommand}, cfg.Args...),
		Env:    cfg.Env,
	}, nil
}
