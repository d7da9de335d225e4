package usecase

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/spotlight/internal/domain"
)

// WindowControllerImpl implements domain.WindowController.
// It owns the two-state visibility of the spotlight window; every
// operation holds mu so concurrent callers see a consistent state.
type WindowControllerImpl struct {
	host   domain.WindowHost
	spec   domain.WindowSpec
	policy domain.ActivationPolicy
	logger *zap.Logger

	mu          sync.Mutex
	handle      domain.WindowHandle
	visibility  domain.WindowVisibility
	policySet   bool
	initialized bool
}

// NewWindowController creates a controller. No window exists until Init.
func NewWindowController(host domain.WindowHost, spec domain.WindowSpec, policy domain.ActivationPolicy, logger *zap.Logger) *WindowControllerImpl {
	return &WindowControllerImpl{
		host:       host,
		spec:       spec,
		policy:     policy,
		logger:     logger,
		visibility: domain.WindowHidden,
	}
}

// Init ensures the window exists. Calling it again while the window is
// alive is a no-op; after external destruction it creates a new hidden window.
func (c *WindowControllerImpl) Init() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handle != 0 && c.host.Exists(c.handle) {
		return nil
	}

	if !c.policySet {
		if err := c.host.SetActivationPolicy(c.policy); err != nil {
			// The window still works, it just may not float over full-screen apps
			c.logger.Warn("failed to set activation policy",
				zap.String("policy", string(c.policy)),
				zap.Error(err))
		} else {
			c.policySet = true
		}
	}

	if c.handle != 0 {
		c.logger.Warn("spotlight window was destroyed, recreating", zap.Uint32("old_handle", uint32(c.handle)))
	}

	handle, err := c.host.Create(c.spec)
	if err != nil {
		c.logger.Error("failed to create spotlight window", zap.Error(err))
		return fmt.Errorf("%w: %v", domain.ErrWindowUnavailable, err)
	}

	c.handle = handle
	c.visibility = domain.WindowHidden
	c.initialized = true
	c.logger.Info("spotlight window initialized",
		zap.Uint32("handle", uint32(handle)),
		zap.String("policy", string(c.policy)))
	return nil
}

// Show makes the window visible and focused. No-op when already visible.
func (c *WindowControllerImpl) Show() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.show()
}

// Hide hides the window without destroying it. No-op when already hidden.
func (c *WindowControllerImpl) Hide() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hide()
}

// Toggle hides a visible window and shows a hidden one.
func (c *WindowControllerImpl) Toggle() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.visibility == domain.WindowVisible {
		return c.hide()
	}
	return c.show()
}

// Visibility returns the current state.
func (c *WindowControllerImpl) Visibility() domain.WindowVisibility {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.visibility
}

// Initialized reports whether Init has succeeded at least once.
func (c *WindowControllerImpl) Initialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized
}

func (c *WindowControllerImpl) show() error {
	if err := c.checkWindow(); err != nil {
		return err
	}
	if c.visibility == domain.WindowVisible {
		return nil
	}

	if err := c.host.Show(c.handle); err != nil {
		c.logger.Error("failed to show spotlight window", zap.Error(err))
		return err
	}
	c.visibility = domain.WindowVisible

	if err := c.host.Focus(c.handle); err != nil {
		// Mapped but the window manager refused focus
		c.logger.Warn("failed to focus spotlight window", zap.Error(err))
	}
	c.logger.Debug("spotlight window shown")
	return nil
}

func (c *WindowControllerImpl) hide() error {
	if err := c.checkWindow(); err != nil {
		return err
	}
	if c.visibility == domain.WindowHidden {
		return nil
	}

	if err := c.host.Hide(c.handle); err != nil {
		c.logger.Error("failed to hide spotlight window", zap.Error(err))
		return err
	}
	c.visibility = domain.WindowHidden
	c.logger.Debug("spotlight window hidden")
	return nil
}

// checkWindow must be called with mu held.
func (c *WindowControllerImpl) checkWindow() error {
	if c.handle == 0 {
		return domain.ErrWindowNotInitialized
	}
	if !c.host.Exists(c.handle) {
		c.logger.Warn("spotlight window unavailable", zap.Uint32("handle", uint32(c.handle)))
		return fmt.Errorf("%w: window %d no longer exists", domain.ErrWindowUnavailable, c.handle)
	}
	return nil
}

// Ensure WindowControllerImpl implements domain.WindowController.
var _ domain.WindowController = (*WindowControllerImpl)(nil)
