package infra

import (
	"fmt"
	"sync"

	"github.com/eliteGoblin/focusd/spotlight/internal/domain"
)

// headlessWindow is the in-memory state of one window.
type headlessWindow struct {
	spec    domain.WindowSpec
	mapped  bool
	focused bool
}

// HeadlessHost implements domain.WindowHost without a display.
// It backs CI runs, machines without X11 and tests.
type HeadlessHost struct {
	mu      sync.Mutex
	next    domain.WindowHandle
	windows map[domain.WindowHandle]*headlessWindow
	policy  domain.ActivationPolicy
	creates int
	closed  bool
}

// NewHeadlessHost creates an empty headless host.
func NewHeadlessHost() *HeadlessHost {
	return &HeadlessHost{
		windows: make(map[domain.WindowHandle]*headlessWindow),
		policy:  domain.PolicyRegular,
	}
}

// Create allocates a hidden window.
func (h *HeadlessHost) Create(spec domain.WindowSpec) (domain.WindowHandle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return 0, fmt.Errorf("headless host closed")
	}
	h.next++
	h.windows[h.next] = &headlessWindow{spec: spec}
	h.creates++
	return h.next, nil
}

// Exists reports whether the window is allocated.
func (h *HeadlessHost) Exists(handle domain.WindowHandle) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.windows[handle]
	return ok
}

// Show maps the window.
func (h *HeadlessHost) Show(handle domain.WindowHandle) error {
	return h.update(handle, func(w *headlessWindow) { w.mapped = true })
}

// Focus gives the window input focus.
func (h *HeadlessHost) Focus(handle domain.WindowHandle) error {
	return h.update(handle, func(w *headlessWindow) { w.focused = true })
}

// Hide unmaps the window and drops focus.
func (h *HeadlessHost) Hide(handle domain.WindowHandle) error {
	return h.update(handle, func(w *headlessWindow) {
		w.mapped = false
		w.focused = false
	})
}

// SetActivationPolicy records the policy.
func (h *HeadlessHost) SetActivationPolicy(policy domain.ActivationPolicy) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.policy = policy
	return nil
}

// Close releases every window.
func (h *HeadlessHost) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.windows = make(map[domain.WindowHandle]*headlessWindow)
	h.closed = true
	return nil
}

// Destroy removes a window as if the window system had closed it.
func (h *HeadlessHost) Destroy(handle domain.WindowHandle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.windows, handle)
}

// Mapped reports whether the window is currently shown.
func (h *HeadlessHost) Mapped(handle domain.WindowHandle) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	w, ok := h.windows[handle]
	return ok && w.mapped
}

// Focused reports whether the window has focus.
func (h *HeadlessHost) Focused(handle domain.WindowHandle) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	w, ok := h.windows[handle]
	return ok && w.focused
}

// Policy returns the last applied activation policy.
func (h *HeadlessHost) Policy() domain.ActivationPolicy {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.policy
}

// Creates returns how many windows have been created.
func (h *HeadlessHost) Creates() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.creates
}

// Windows returns the number of live windows.
func (h *HeadlessHost) Windows() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.windows)
}

func (h *HeadlessHost) update(handle domain.WindowHandle, fn func(*headlessWindow)) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	w, ok := h.windows[handle]
	if !ok {
		return unavailable(handle)
	}
	fn(w)
	return nil
}

func unavailable(handle domain.WindowHandle) error {
	return fmt.Errorf("%w: window %d destroyed", domain.ErrWindowUnavailable, handle)
}

// Ensure HeadlessHost implements domain.WindowHost.
var _ domain.WindowHost = (*HeadlessHost)(nil)
