package infra

import (
	"fmt"
	"os"
	"runtime"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/spotlight/internal/config"
	"github.com/eliteGoblin/focusd/spotlight/internal/domain"
)

// NewWindowHost builds the host for backend (auto, x11 or headless).
// Auto picks X11 on Linux when $DISPLAY is set and falls back to headless.
func NewWindowHost(backend string, logger *zap.Logger) (domain.WindowHost, error) {
	switch backend {
	case config.BackendHeadless:
		return NewHeadlessHost(), nil
	case config.BackendX11:
		host, err := NewX11Host(logger)
		if err != nil {
			return nil, err
		}
		return host, nil
	case config.BackendAuto, "":
		if runtime.GOOS == "linux" && os.Getenv("DISPLAY") != "" {
			host, err := NewX11Host(logger)
			if err == nil {
				return host, nil
			}
			logger.Warn("X11 unavailable, using headless window host", zap.Error(err))
		}
		return NewHeadlessHost(), nil
	default:
		return nil, fmt.Errorf("unknown window backend %q", backend)
	}
}
