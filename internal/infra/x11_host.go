//go:build linux

package infra

import (
	"fmt"
	"sync"
	"time"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/icccm"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/spotlight/internal/domain"
)

// EWMH hints for each activation policy.
// Accessory keeps the window above others on every desktop and out of
// taskbars and pagers, which is the closest X11 has to a floating panel.
var (
	accessoryStates = []string{
		"_NET_WM_STATE_ABOVE",
		"_NET_WM_STATE_STICKY",
		"_NET_WM_STATE_SKIP_TASKBAR",
		"_NET_WM_STATE_SKIP_PAGER",
	}
	accessoryType = []string{"_NET_WM_WINDOW_TYPE_UTILITY"}
	regularType   = []string{"_NET_WM_WINDOW_TYPE_NORMAL"}
)

const closeTimeout = 2 * time.Second

// X11Host implements domain.WindowHost on an X11 display.
type X11Host struct {
	xu     *xgbutil.XUtil
	root   xproto.Window
	logger *zap.Logger

	mu      sync.Mutex
	policy  domain.ActivationPolicy
	windows map[domain.WindowHandle]struct{}
	closed  bool

	drained chan struct{} // closed when the event drain loop exits
}

// NewX11Host connects to $DISPLAY.
func NewX11Host(logger *zap.Logger) (*X11Host, error) {
	xu, err := xgbutil.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}
	h := &X11Host{
		xu:      xu,
		root:    xu.RootWin(),
		logger:  logger,
		policy:  domain.PolicyRegular,
		windows: make(map[domain.WindowHandle]struct{}),
		drained: make(chan struct{}),
	}
	go h.drainEvents()
	return h, nil
}

// drainEvents consumes every event and async error on the connection.
// xgb blocks its reader once its event buffer is full, which would stall
// every later Reply. xevent.Main is not used because it exits the process
// when the connection closes.
func (h *X11Host) drainEvents() {
	defer close(h.drained)
	for {
		ev, err := h.xu.Conn().WaitForEvent()
		if ev == nil && err == nil {
			return // connection closed
		}
		if err != nil {
			h.logDebug("x11 async error", zap.String("error", err.Error()))
		}
	}
}

// Create allocates an unmapped top-level window.
func (h *X11Host) Create(spec domain.WindowSpec) (domain.WindowHandle, error) {
	conn := h.xu.Conn()
	screen := h.xu.Screen()

	wid, err := xproto.NewWindowId(conn)
	if err != nil {
		return 0, err
	}

	x, y := spec.X, spec.Y
	if spec.Center {
		x = (int(screen.WidthInPixels) - spec.Width) / 2
		y = (int(screen.HeightInPixels) - spec.Height) / 3
	}

	err = xproto.CreateWindowChecked(
		conn,
		screen.RootDepth,
		wid,
		h.root,
		int16(x), int16(y),
		uint16(spec.Width), uint16(spec.Height),
		0,
		xproto.WindowClassInputOutput,
		screen.RootVisual,
		xproto.CwBackPixel,
		[]uint32{screen.BlackPixel},
	).Check()
	if err != nil {
		return 0, fmt.Errorf("failed to create window: %w", err)
	}

	if err := ewmh.WmNameSet(h.xu, wid, spec.Title); err != nil {
		h.logWarn("failed to set window name", zap.Error(err))
	}
	if err := icccm.WmClassSet(h.xu, wid, &icccm.WmClass{Instance: "spotlight", Class: "Spotlight"}); err != nil {
		h.logWarn("failed to set window class", zap.Error(err))
	}

	handle := domain.WindowHandle(wid)
	h.mu.Lock()
	h.windows[handle] = struct{}{}
	policy := h.policy
	h.mu.Unlock()

	h.applyHints(wid, policy)
	return handle, nil
}

// Exists asks the server whether the window is still allocated.
func (h *X11Host) Exists(handle domain.WindowHandle) bool {
	if handle == 0 {
		return false
	}
	_, err := xproto.GetWindowAttributes(h.xu.Conn(), xproto.Window(handle)).Reply()
	return err == nil
}

// Show maps the window and raises it to the top of the stack.
func (h *X11Host) Show(handle domain.WindowHandle) error {
	if !h.Exists(handle) {
		return unavailable(handle)
	}
	wid := xproto.Window(handle)

	h.mu.Lock()
	policy := h.policy
	h.mu.Unlock()
	// State hints on an unmapped window are read by the WM at map time
	h.applyHints(wid, policy)

	if err := xproto.MapWindowChecked(h.xu.Conn(), wid).Check(); err != nil {
		return fmt.Errorf("failed to map window: %w", err)
	}
	return xproto.ConfigureWindowChecked(
		h.xu.Conn(),
		wid,
		xproto.ConfigWindowStackMode,
		[]uint32{xproto.StackModeAbove},
	).Check()
}

// Focus activates the window using _NET_ACTIVE_WINDOW.
func (h *X11Host) Focus(handle domain.WindowHandle) error {
	if !h.Exists(handle) {
		return unavailable(handle)
	}
	const sourceIndication = 1 // normal application
	if err := ewmh.ActiveWindowReqExtra(h.xu, xproto.Window(handle), sourceIndication, 0, 0); err != nil {
		return fmt.Errorf("failed to activate window: %w", err)
	}
	return nil
}

// Hide unmaps the window without destroying it.
func (h *X11Host) Hide(handle domain.WindowHandle) error {
	if !h.Exists(handle) {
		return unavailable(handle)
	}
	if err := xproto.UnmapWindowChecked(h.xu.Conn(), xproto.Window(handle)).Check(); err != nil {
		return fmt.Errorf("failed to unmap window: %w", err)
	}
	return nil
}

// SetActivationPolicy records the policy and re-applies hints to live windows.
func (h *X11Host) SetActivationPolicy(policy domain.ActivationPolicy) error {
	h.mu.Lock()
	h.policy = policy
	handles := make([]domain.WindowHandle, 0, len(h.windows))
	for handle := range h.windows {
		handles = append(handles, handle)
	}
	h.mu.Unlock()

	for _, handle := range handles {
		if h.Exists(handle) {
			h.applyHints(xproto.Window(handle), policy)
		}
	}
	return nil
}

// Close destroys our windows and disconnects. Safe to call twice.
func (h *X11Host) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	for handle := range h.windows {
		xproto.DestroyWindow(h.xu.Conn(), xproto.Window(handle))
	}
	h.windows = make(map[domain.WindowHandle]struct{})
	h.mu.Unlock()

	h.xu.Conn().Close()
	select {
	case <-h.drained:
	case <-time.After(closeTimeout):
		h.logWarn("x11 event loop did not stop", zap.Duration("timeout", closeTimeout))
	}
	return nil
}

func (h *X11Host) applyHints(wid xproto.Window, policy domain.ActivationPolicy) {
	states, types := []string{}, regularType
	if policy == domain.PolicyAccessory {
		states, types = accessoryStates, accessoryType
	}
	if err := ewmh.WmWindowTypeSet(h.xu, wid, types); err != nil {
		h.logWarn("failed to set window type", zap.Error(err))
	}
	if err := ewmh.WmStateSet(h.xu, wid, states); err != nil {
		h.logWarn("failed to set window state", zap.Error(err))
	}
}

func (h *X11Host) logDebug(msg string, fields ...zap.Field) {
	if h.logger != nil {
		h.logger.Debug(msg, fields...)
	}
}

func (h *X11Host) logWarn(msg string, fields ...zap.Field) {
	if h.logger != nil {
		h.logger.Warn(msg, fields...)
	}
}

// Ensure X11Host implements domain.WindowHost.
var _ domain.WindowHost = (*X11Host)(nil)
