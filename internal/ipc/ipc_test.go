package ipc

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/spotlight/internal/domain"
	"github.com/eliteGoblin/focusd/spotlight/internal/eventbus"
)

// stubInvoker answers a fixed set of commands
type stubInvoker struct {
	mu    sync.Mutex
	calls []string
}

func (s *stubInvoker) Invoke(ctx context.Context, name string, payload json.RawMessage) (any, error) {
	s.mu.Lock()
	s.calls = append(s.calls, name)
	s.mu.Unlock()

	switch name {
	case "show_spotlight":
		return nil, nil
	case "spotlight_status":
		return domain.Status{Visibility: domain.WindowVisible, Permission: domain.PermissionGranted}, nil
	case "echo":
		return json.RawMessage(payload), nil
	case "broken":
		return nil, domain.ErrWindowUnavailable
	default:
		return nil, domain.ErrUnknownCommand
	}
}

func (s *stubInvoker) called() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// socketPath stays short; unix socket paths are limited to ~104 bytes
func socketPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "sl")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "s.sock")
}

func startServer(t *testing.T) (*Server, *stubInvoker, *eventbus.Bus) {
	t.Helper()
	invoker := &stubInvoker{}
	bus := eventbus.New(zap.NewNop())
	srv := NewServer(socketPath(t), invoker, bus, zap.NewNop())
	require.NoError(t, srv.Start())
	t.Cleanup(func() { srv.Close() })
	return srv, invoker, bus
}

func TestIPC_InvokeCommand(t *testing.T) {
	srv, invoker, _ := startServer(t)
	client := NewClient(srv.SocketPath())

	data, err := client.Invoke("show_spotlight", nil)

	require.NoError(t, err)
	assert.Empty(t, data)
	assert.Equal(t, []string{"show_spotlight"}, invoker.called())
}

func TestIPC_Status(t *testing.T) {
	srv, _, _ := startServer(t)
	client := NewClient(srv.SocketPath())

	status, err := client.Status()

	require.NoError(t, err)
	assert.Equal(t, domain.WindowVisible, status.Visibility)
	assert.Equal(t, domain.PermissionGranted, status.Permission)
	assert.NoError(t, client.Ping())
}

func TestIPC_PayloadRoundTrip(t *testing.T) {
	srv, _, _ := startServer(t)
	client := NewClient(srv.SocketPath())

	var out map[string]bool
	err := client.InvokeInto("echo", map[string]bool{"prompt": true}, &out)

	require.NoError(t, err)
	assert.True(t, out["prompt"])
}

func TestIPC_ErrorResponse(t *testing.T) {
	srv, _, _ := startServer(t)
	client := NewClient(srv.SocketPath())

	_, err := client.Invoke("broken", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "spotlight window unavailable")

	_, err = client.Invoke("nope", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
}

func TestIPC_InvalidRequest(t *testing.T) {
	srv, _, _ := startServer(t)

	conn, err := net.Dial("unix", srv.SocketPath())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte("not json\n"))
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.NewDecoder(conn).Decode(&resp))
	assert.Equal(t, StatusError, resp.Status)
	assert.Contains(t, resp.Error, "invalid request")
}

func TestIPC_SocketPermissions(t *testing.T) {
	srv, _, _ := startServer(t)

	info, err := os.Stat(srv.SocketPath())

	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestIPC_RefusesSecondInstance(t *testing.T) {
	srv, _, bus := startServer(t)

	second := NewServer(srv.SocketPath(), &stubInvoker{}, bus, zap.NewNop())

	assert.Error(t, second.Start())
}

func TestIPC_ReplacesStaleSocket(t *testing.T) {
	path := socketPath(t)
	require.NoError(t, os.WriteFile(path, nil, 0600))

	srv := NewServer(path, &stubInvoker{}, eventbus.New(zap.NewNop()), zap.NewNop())
	require.NoError(t, srv.Start())
	defer srv.Close()

	assert.NoError(t, NewClient(path).Ping())
}

func TestIPC_CloseRemovesSocket(t *testing.T) {
	srv, _, _ := startServer(t)

	require.NoError(t, srv.Close())

	_, err := os.Stat(srv.SocketPath())
	assert.True(t, os.IsNotExist(err))
	assert.Error(t, NewClient(srv.SocketPath()).Ping())
}

func TestIPC_SubscribeStreamsEvents(t *testing.T) {
	srv, _, bus := startServer(t)
	client := NewClient(srv.SocketPath())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan domain.UIEvent, 10)
	errc := make(chan error, 1)
	go func() {
		errc <- client.Subscribe(ctx, func(ev domain.UIEvent) { received <- ev })
	}()

	require.Eventually(t, func() bool { return bus.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)
	for _, line := range []string{"tick 1", "tick 2"} {
		payload, _ := json.Marshal(line)
		bus.Emit(domain.UIEvent{Name: "message", Payload: payload, At: time.Now()})
	}

	for _, want := range []string{`"tick 1"`, `"tick 2"`} {
		select {
		case ev := <-received:
			assert.Equal(t, "message", ev.Name)
			assert.Equal(t, want, string(ev.Payload))
		case <-time.After(2 * time.Second):
			t.Fatal("event not received")
		}
	}

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("subscribe did not return after cancel")
	}
	require.Eventually(t, func() bool { return bus.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestIPC_CloseEndsSubscriptions(t *testing.T) {
	srv, _, bus := startServer(t)
	client := NewClient(srv.SocketPath())

	errc := make(chan error, 1)
	go func() {
		errc <- client.Subscribe(context.Background(), func(domain.UIEvent) {})
	}()
	require.Eventually(t, func() bool { return bus.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, srv.Close())

	select {
	case err := <-errc:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not closed by server shutdown")
	}
}

func TestIPC_CloseDropsIdleClient(t *testing.T) {
	srv, _, _ := startServer(t)

	// Connects and never sends a request
	conn, err := net.Dial("unix", srv.SocketPath())
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool {
		srv.shutdownMu.Lock()
		defer srv.shutdownMu.Unlock()
		return len(srv.conns) == 1
	}, 2*time.Second, 10*time.Millisecond)

	closed := make(chan error, 1)
	go func() { closed <- srv.Close() }()

	select {
	case err := <-closed:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked on an idle client")
	}

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, err = conn.Read(make([]byte, 1))
	assert.Error(t, err, "server side of the connection is closed")
}

func TestIPC_ErrNotRunningOnlyWhenNoServer(t *testing.T) {
	_, err := NewClient(socketPath(t)).Invoke("show_spotlight", nil)
	assert.ErrorIs(t, err, ErrNotRunning)

	srv, _, _ := startServer(t)
	_, err = NewClient(srv.SocketPath()).Invoke("broken", nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotRunning)
}
