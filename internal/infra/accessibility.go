package infra

import (
	"errors"
	"os/exec"
	"runtime"
	"strings"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/spotlight/internal/domain"
)

// StaticChecker always reports the same state.
// Used on platforms without an accessibility gate.
type StaticChecker struct {
	State domain.PermissionState
}

// Check returns the configured state.
func (s StaticChecker) Check(prompt bool) (domain.PermissionState, error) {
	return s.State, nil
}

// Script probe settings for macOS without cgo.
const (
	accessibilityProbeScript = `tell application "System Events" to get name of first application process whose frontmost is true`
	accessibilitySettingsURL = "x-apple.systempreferences:com.apple.preference.security?Privacy_Accessibility"
)

// osascript error codes that mean "not allowed assistive access"
var deniedMarkers = []string{"-1719", "-25211", "not allowed assistive access"}

// ScriptChecker probes accessibility through osascript and System Events.
// It cannot trigger the system prompt, so prompting opens the
// Accessibility pane of System Settings instead.
type ScriptChecker struct {
	cmdRunner CommandRunner
	logger    *zap.Logger
}

// NewScriptChecker creates a checker using real osascript.
func NewScriptChecker(logger *zap.Logger) *ScriptChecker {
	return NewScriptCheckerWithRunner(&RealCommandRunner{}, logger)
}

// NewScriptCheckerWithRunner creates a checker with an injectable runner (for testing).
func NewScriptCheckerWithRunner(cmdRunner CommandRunner, logger *zap.Logger) *ScriptChecker {
	return &ScriptChecker{cmdRunner: cmdRunner, logger: logger}
}

// Check runs the probe script. Prompting never yields Granted directly;
// the user's answer arrives later and is picked up by the next Check.
func (s *ScriptChecker) Check(prompt bool) (domain.PermissionState, error) {
	state, err := s.probe()
	if err != nil {
		return domain.PermissionUnknown, err
	}
	if state == domain.PermissionGranted || !prompt {
		return state, nil
	}

	if err := s.cmdRunner.Run("open", accessibilitySettingsURL); err != nil {
		s.logWarn("failed to open accessibility settings", zap.Error(err))
		return state, nil
	}
	return domain.PermissionUnknown, nil
}

func (s *ScriptChecker) probe() (domain.PermissionState, error) {
	out, err := s.cmdRunner.Output("osascript", "-e", accessibilityProbeScript)
	if err == nil {
		return domain.PermissionGranted, nil
	}

	msg := string(out) + " " + err.Error()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		msg += " " + string(exitErr.Stderr)
	}
	for _, marker := range deniedMarkers {
		if strings.Contains(msg, marker) {
			return domain.PermissionDenied, nil
		}
	}
	return domain.PermissionUnknown, err
}

func (s *ScriptChecker) logWarn(msg string, fields ...zap.Field) {
	if s.logger != nil {
		s.logger.Warn(msg, fields...)
	}
}

// NewAccessibilityChecker returns the best checker for the current platform.
func NewAccessibilityChecker(logger *zap.Logger) domain.AccessibilityChecker {
	if c := platformChecker(logger); c != nil {
		return c
	}
	if runtime.GOOS == "darwin" {
		return NewScriptChecker(logger)
	}
	return StaticChecker{State: domain.PermissionGranted}
}

// Ensure checkers implement domain.AccessibilityChecker.
var (
	_ domain.AccessibilityChecker = StaticChecker{}
	_ domain.AccessibilityChecker = (*ScriptChecker)(nil)
)
