// Package usecase contains the spotlight backend's application logic.
package usecase

import (
	"sync"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/spotlight/internal/domain"
)

// PermissionGate implements domain.PermissionRequester on top of an
// AccessibilityChecker. It keeps no state besides the last observed answer.
type PermissionGate struct {
	checker domain.AccessibilityChecker
	logger  *zap.Logger

	mu   sync.Mutex
	last domain.PermissionState
}

// NewPermissionGate creates a permission gate.
func NewPermissionGate(checker domain.AccessibilityChecker, logger *zap.Logger) *PermissionGate {
	return &PermissionGate{
		checker: checker,
		logger:  logger,
		last:    domain.PermissionUnknown,
	}
}

// Request returns the best-effort current permission state.
// The checker is first asked without a prompt; only when the answer is not
// Granted and promptUser is set is it asked once more with the prompt enabled.
// Denial is returned as data, never as an error.
func (g *PermissionGate) Request(promptUser bool) domain.PermissionState {
	g.mu.Lock()
	defer g.mu.Unlock()

	state := g.check(false)
	if state != domain.PermissionGranted && promptUser {
		g.logger.Info("requesting accessibility permission", zap.String("current", string(state)))
		state = g.check(true)
	}

	if state != g.last {
		g.logger.Info("accessibility permission changed",
			zap.String("from", string(g.last)),
			zap.String("to", string(state)))
	}
	g.last = state
	return state
}

// Last returns the state observed by the most recent Request.
func (g *PermissionGate) Last() domain.PermissionState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}

func (g *PermissionGate) check(prompt bool) domain.PermissionState {
	state, err := g.checker.Check(prompt)
	if err != nil {
		g.logger.Warn("accessibility check failed",
			zap.Bool("prompt", prompt),
			zap.Error(err))
		return domain.PermissionUnknown
	}
	return state
}

// Ensure PermissionGate implements domain.PermissionRequester.
var _ domain.PermissionRequester = (*PermissionGate)(nil)
