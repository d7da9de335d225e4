package domain

import "context"

// AccessibilityChecker queries the OS accessibility permission.
// Implementations: AXIsProcessTrustedWithOptions (darwin+cgo), osascript probe
// (darwin without cgo), static grant (platforms without a gate).
type AccessibilityChecker interface {
	// Check returns the current permission. When prompt is true and permission
	// is not granted, the OS may show its permission dialog.
	Check(prompt bool) (PermissionState, error)
}

// WindowHost owns OS window resources for the spotlight window.
// All calls are made from a single goroutine at a time (the controller serializes them).
type WindowHost interface {
	// Create allocates a new window in the hidden state.
	Create(spec WindowSpec) (WindowHandle, error)

	// Exists reports whether the window is still allocated.
	Exists(h WindowHandle) bool

	// Show maps the window and raises it above other windows.
	Show(h WindowHandle) error

	// Focus gives the window input focus.
	Focus(h WindowHandle) error

	// Hide unmaps the window without destroying it.
	Hide(h WindowHandle) error

	// SetActivationPolicy applies the app-wide activation policy.
	// Windows created afterwards also follow it.
	SetActivationPolicy(policy ActivationPolicy) error

	// Close releases all host resources.
	Close() error
}

// WindowController owns the spotlight window visibility state machine.
type WindowController interface {
	// Init ensures the window exists. Idempotent.
	Init() error

	// Show transitions Hidden to Visible and focuses the window.
	Show() error

	// Hide transitions Visible to Hidden.
	Hide() error

	// Toggle hides a visible window and shows a hidden one.
	Toggle() error

	// Visibility returns the current state.
	Visibility() WindowVisibility

	// Initialized reports whether Init has succeeded at least once.
	Initialized() bool
}

// PermissionRequester requests accessibility permission.
type PermissionRequester interface {
	// Request returns the best-effort current state, prompting at most once when promptUser is set.
	Request(promptUser bool) PermissionState

	// Last returns the state observed by the most recent Request.
	Last() PermissionState
}

// WorkerProcess is a running worker with line-oriented stdio.
type WorkerProcess interface {
	// Events returns the output stream. Closed after the process exits.
	Events() <-chan WorkerEvent

	// WriteLine writes line plus a newline to stdin.
	// Returns an error wrapping ErrWriteFailed once the process has exited.
	WriteLine(line string) error

	// PID returns the OS process ID.
	PID() int

	// Terminate asks the process (and its children) to exit.
	Terminate(ctx context.Context) error
}

// WorkerLauncher starts worker processes.
type WorkerLauncher interface {
	Launch(ctx context.Context, spec WorkerSpec) (WorkerProcess, error)
}

// WorkerBridge relays worker output to the UI and acknowledges it.
type WorkerBridge interface {
	// Spawn launches the worker in the background. The returned channel
	// receives exactly one value: nil or an error wrapping ErrSpawnFailed.
	Spawn(ctx context.Context) <-chan error

	// State returns the lifecycle state.
	State() BridgeState

	// Stats returns counters for status reporting.
	Stats() BridgeStats

	// Done is closed when the relay loop has finished (or spawn failed).
	Done() <-chan struct{}

	// Stop terminates the worker and waits for the relay loop.
	Stop(ctx context.Context) error
}

// EventSink receives UI events.
type EventSink interface {
	Emit(event UIEvent)
}

// ProcessManager handles OS process operations.
// Implementation: uses gopsutil for cross-platform support.
type ProcessManager interface {
	// IsRunning checks if a PID exists and is running.
	IsRunning(pid int) bool

	// TerminateTree sends SIGTERM to pid and its descendants.
	TerminateTree(pid int) error

	// KillTree sends SIGKILL to pid and its descendants.
	KillTree(pid int) error
}
