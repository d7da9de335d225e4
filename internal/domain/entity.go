// Package domain contains core entities and interfaces of the spotlight backend.
// This is the innermost layer - no external dependencies.
package domain

import (
	"encoding/json"
	"time"
)

// PermissionState is the last observed OS accessibility permission.
type PermissionState string

const (
	PermissionUnknown PermissionState = "unknown"
	PermissionGranted PermissionState = "granted"
	PermissionDenied  PermissionState = "denied"
)

// WindowVisibility is the two-state visibility of the spotlight window.
type WindowVisibility string

const (
	WindowHidden  WindowVisibility = "hidden"
	WindowVisible WindowVisibility = "visible"
)

// ActivationPolicy controls how the app presents itself to the window system.
type ActivationPolicy string

const (
	// PolicyAccessory floats the window above full-screen apps and hides it
	// from the dock / task switcher.
	PolicyAccessory ActivationPolicy = "accessory"
	// PolicyRegular is a normal app window.
	PolicyRegular ActivationPolicy = "regular"
)

// WindowHandle identifies a window created by a WindowHost. Zero means none.
type WindowHandle uint32

// WindowSpec describes the spotlight window to create.
type WindowSpec struct {
	Title  string
	Width  int
	Height int
	X      int
	Y      int
	Center bool // Ignore X/Y and center on the primary screen
}

// BridgeState is the lifecycle state of the worker bridge.
type BridgeState string

const (
	BridgeIdle     BridgeState = "idle"
	BridgeStarting BridgeState = "starting"
	BridgeRunning  BridgeState = "running"
	BridgeStopped  BridgeState = "stopped" // worker exited; terminal
	BridgeFailed   BridgeState = "failed"  // spawn failed; terminal
)

// WorkerEventKind classifies an event coming from the worker process.
type WorkerEventKind string

const (
	WorkerStdout     WorkerEventKind = "stdout"
	WorkerStderr     WorkerEventKind = "stderr"
	WorkerError      WorkerEventKind = "error"
	WorkerTerminated WorkerEventKind = "terminated"
)

// WorkerEvent is one item of the worker's output stream.
type WorkerEvent struct {
	Kind     WorkerEventKind
	Line     string // Stdout/Stderr text without trailing newline
	Err      error  // Set for WorkerError
	ExitCode int    // Set for WorkerTerminated
}

// WorkerSpec describes how to launch the worker process.
type WorkerSpec struct {
	Binary string
	Args   []string
	Env    []string // Extra KEY=VALUE pairs appended to the current environment
}

// UIEvent is an event delivered to the UI layer.
// Payload is JSON; relayed worker lines are JSON strings.
type UIEvent struct {
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload,omitempty"`
	At      time.Time       `json:"at"`
}

// BridgeStats is a snapshot of worker bridge counters.
type BridgeStats struct {
	State         BridgeState `json:"state" yaml:"state"`
	PID           int         `json:"pid,omitempty" yaml:"pid,omitempty"`
	Counter       int         `json:"counter" yaml:"counter"`
	LinesRelayed  int         `json:"lines_relayed" yaml:"lines_relayed"`
	AcksSent      int         `json:"acks_sent" yaml:"acks_sent"`
	WriteFailures int         `json:"write_failures" yaml:"write_failures"`
}

// Status is the full state reported by the spotlight_status command.
type Status struct {
	Visibility        WindowVisibility `json:"visibility" yaml:"visibility"`
	WindowInitialized bool             `json:"window_initialized" yaml:"window_initialized"`
	Permission        PermissionState  `json:"permission" yaml:"permission"`
	Bridge            BridgeStats      `json:"bridge" yaml:"bridge"`
	WorkerAlive       bool             `json:"worker_alive" yaml:"worker_alive"`
	UptimeSeconds     int64            `json:"uptime_seconds" yaml:"uptime_seconds"`
}
