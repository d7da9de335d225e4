package infra

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/spotlight/internal/domain"
)

// mockCommandRunner records commands and returns canned results
type mockCommandRunner struct {
	outputErr error
	output    []byte
	runErr    error
	calls     [][]string
}

func (m *mockCommandRunner) Run(name string, args ...string) error {
	m.calls = append(m.calls, append([]string{name}, args...))
	return m.runErr
}

func (m *mockCommandRunner) Output(name string, args ...string) ([]byte, error) {
	m.calls = append(m.calls, append([]string{name}, args...))
	return m.output, m.outputErr
}

func (m *mockCommandRunner) ran(name string) bool {
	for _, c := range m.calls {
		if c[0] == name {
			return true
		}
	}
	return false
}

func TestScriptChecker_Granted(t *testing.T) {
	runner := &mockCommandRunner{output: []byte("Finder\n")}
	checker := NewScriptCheckerWithRunner(runner, zap.NewNop())

	state, err := checker.Check(true)

	require.NoError(t, err)
	assert.Equal(t, domain.PermissionGranted, state)
	assert.False(t, runner.ran("open"), "granted never opens settings")
}

func TestScriptChecker_Denied(t *testing.T) {
	runner := &mockCommandRunner{
		outputErr: errors.New("execution error: osascript is not allowed assistive access. (-1719)"),
	}
	checker := NewScriptCheckerWithRunner(runner, zap.NewNop())

	state, err := checker.Check(false)

	require.NoError(t, err)
	assert.Equal(t, domain.PermissionDenied, state)
	assert.False(t, runner.ran("open"))
}

func TestScriptChecker_PromptOpensSettings(t *testing.T) {
	runner := &mockCommandRunner{outputErr: errors.New("System Events got an error (-25211)")}
	checker := NewScriptCheckerWithRunner(runner, zap.NewNop())

	state, err := checker.Check(true)

	require.NoError(t, err)
	assert.Equal(t, domain.PermissionUnknown, state, "answer pending")
	require.Len(t, runner.calls, 2)
	assert.Equal(t, []string{"open", accessibilitySettingsURL}, runner.calls[1])
}

func TestScriptChecker_PromptOpenFailureKeepsDenied(t *testing.T) {
	runner := &mockCommandRunner{
		outputErr: errors.New("(-1719)"),
		runErr:    errors.New("open: not found"),
	}
	checker := NewScriptCheckerWithRunner(runner, zap.NewNop())

	state, err := checker.Check(true)

	require.NoError(t, err)
	assert.Equal(t, domain.PermissionDenied, state)
}

func TestScriptChecker_UnrecognizedFailure(t *testing.T) {
	runner := &mockCommandRunner{outputErr: errors.New("exec: \"osascript\": executable file not found in $PATH")}
	checker := NewScriptCheckerWithRunner(runner, zap.NewNop())

	state, err := checker.Check(false)

	assert.Error(t, err)
	assert.Equal(t, domain.PermissionUnknown, state)
}

func TestStaticChecker(t *testing.T) {
	checker := StaticChecker{State: domain.PermissionGranted}

	for _, prompt := range []bool{false, true} {
		state, err := checker.Check(prompt)
		require.NoError(t, err)
		assert.Equal(t, domain.PermissionGranted, state)
	}
}

func TestNewAccessibilityChecker_NeverNil(t *testing.T) {
	assert.NotNil(t, NewAccessibilityChecker(zap.NewNop()))
}
