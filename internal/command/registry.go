// Package command maps invocable command names to spotlight operations.
package command

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/spotlight/internal/domain"
)

// Invocable command names.
const (
	InitWindow        = "init_spotlight_window"
	ShowWindow        = "show_spotlight"
	HideWindow        = "hide_spotlight"
	ToggleWindow      = "toggle_spotlight"
	RequestPermission = "request_accessibility_permission"
	Status            = "spotlight_status"
)

// Handler runs one command. The result must be JSON-encodable; nil means no data.
type Handler func(ctx context.Context, payload json.RawMessage) (any, error)

// PermissionPayload is the input of request_accessibility_permission.
type PermissionPayload struct {
	Prompt bool `json:"prompt"`
}

// PermissionResult is the output of request_accessibility_permission.
type PermissionResult struct {
	State domain.PermissionState `json:"state"`
}

// Registry holds named handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	logger   *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
		logger:   logger,
	}
}

// Register adds or replaces a handler.
func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// Invoke runs the named command.
func (r *Registry) Invoke(ctx context.Context, name string, payload json.RawMessage) (any, error) {
	r.mu.RLock()
	h, ok := r.handlers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownCommand, name)
	}

	result, err := h(ctx, payload)
	if err != nil {
		r.logger.Warn("command failed", zap.String("command", name), zap.Error(err))
		return nil, err
	}
	r.logger.Debug("command handled", zap.String("command", name))
	return result, nil
}

// Names returns registered command names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Deps are the components the built-in commands operate on.
type Deps struct {
	Window     domain.WindowController
	Permission domain.PermissionRequester
	Bridge     domain.WorkerBridge
	Processes  domain.ProcessManager
	Started    time.Time
}

// NewDefaultRegistry registers the built-in spotlight commands.
func NewDefaultRegistry(deps Deps, logger *zap.Logger) *Registry {
	r := NewRegistry(logger)
	r.Register(InitWindow, noData(deps.Window.Init))
	r.Register(ShowWindow, noData(deps.Window.Show))
	r.Register(HideWindow, noData(deps.Window.Hide))
	r.Register(ToggleWindow, noData(deps.Window.Toggle))

	r.Register(RequestPermission, func(ctx context.Context, payload json.RawMessage) (any, error) {
		var p PermissionPayload
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &p); err != nil {
				return nil, fmt.Errorf("invalid %s payload: %w", RequestPermission, err)
			}
		}
		return PermissionResult{State: deps.Permission.Request(p.Prompt)}, nil
	})

	r.Register(Status, func(ctx context.Context, payload json.RawMessage) (any, error) {
		return Snapshot(deps), nil
	})
	return r
}

// Snapshot builds the status report.
func Snapshot(deps Deps) domain.Status {
	status := domain.Status{
		Visibility:        deps.Window.Visibility(),
		WindowInitialized: deps.Window.Initialized(),
		Permission:        deps.Permission.Last(),
	}
	if deps.Bridge != nil {
		status.Bridge = deps.Bridge.Stats()
		if status.Bridge.State == domain.BridgeRunning && status.Bridge.PID > 0 && deps.Processes != nil {
			status.WorkerAlive = deps.Processes.IsRunning(status.Bridge.PID)
		}
	}
	if !deps.Started.IsZero() {
		status.UptimeSeconds = int64(time.Since(deps.Started).Seconds())
	}
	return status
}

func noData(op func() error) Handler {
	return func(ctx context.Context, payload json.RawMessage) (any, error) {
		return nil, op()
	}
}
