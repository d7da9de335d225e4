//go:build !linux

package infra

import (
	"fmt"
	"runtime"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/spotlight/internal/domain"
)

// X11Host is unavailable on this platform.
type X11Host struct {
	domain.WindowHost
}

// NewX11Host always fails outside Linux.
func NewX11Host(logger *zap.Logger) (*X11Host, error) {
	return nil, fmt.Errorf("x11 backend not supported on %s", runtime.GOOS)
}
