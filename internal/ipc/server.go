package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/spotlight/internal/domain"
)

// requestTimeout bounds a single command invocation.
const requestTimeout = 10 * time.Second

// Invoker runs named commands.
type Invoker interface {
	Invoke(ctx context.Context, name string, payload json.RawMessage) (any, error)
}

// Subscriber hands out UI event streams.
type Subscriber interface {
	Subscribe() (<-chan domain.UIEvent, func())
}

// Server handles IPC requests from clients
type Server struct {
	socketPath string
	invoker    Invoker
	events     Subscriber
	logger     *zap.Logger

	listener     net.Listener
	quit         chan struct{}
	wg           sync.WaitGroup
	shuttingDown bool
	conns        map[net.Conn]struct{}
	shutdownMu   sync.Mutex
}

// NewServer creates a new IPC server
func NewServer(socketPath string, invoker Invoker, events Subscriber, logger *zap.Logger) *Server {
	return &Server{
		socketPath: socketPath,
		invoker:    invoker,
		events:     events,
		logger:     logger,
		quit:       make(chan struct{}),
		conns:      make(map[net.Conn]struct{}),
	}
}

// Start begins listening for IPC connections.
// Fails if another spotlight instance already answers on the socket.
func (s *Server) Start() error {
	if conn, err := net.DialTimeout("unix", s.socketPath, 500*time.Millisecond); err == nil {
		conn.Close()
		return fmt.Errorf("another spotlight instance is listening on %s", s.socketPath)
	}
	// Stale socket from a crashed run
	os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to create IPC socket: %w", err)
	}
	s.listener = listener

	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.logger.Info("IPC server listening", zap.String("socket", s.socketPath))

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Close stops accepting, drops open connections, ends event streams and
// removes the socket.
func (s *Server) Close() error {
	s.shutdownMu.Lock()
	if s.shuttingDown {
		s.shutdownMu.Unlock()
		return nil
	}
	s.shuttingDown = true
	for conn := range s.conns {
		conn.Close()
	}
	s.shutdownMu.Unlock()

	close(s.quit)
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	s.wg.Wait()
	os.Remove(s.socketPath)
	return err
}

// SocketPath returns the listening path.
func (s *Server) SocketPath() string {
	return s.socketPath
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.shutdownMu.Lock()
			shuttingDown := s.shuttingDown
			s.shutdownMu.Unlock()
			if shuttingDown || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("IPC accept error", zap.Error(err))
			continue
		}

		if !s.track(conn) {
			conn.Close()
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.handleConnection(conn)
		}()
	}
}

// track registers conn so Close can drop it. Returns false once closing.
func (s *Server) track(conn net.Conn) bool {
	s.shutdownMu.Lock()
	defer s.shutdownMu.Unlock()
	if s.shuttingDown {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.shutdownMu.Lock()
	defer s.shutdownMu.Unlock()
	delete(s.conns, conn)
}

func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	// A client gets requestTimeout to send its request line
	conn.SetReadDeadline(time.Now().Add(requestTimeout))
	reader := bufio.NewReader(conn)
	data, err := reader.ReadBytes('\n')
	if err != nil && err != io.EOF {
		s.logger.Warn("IPC read error", zap.Error(err))
		return
	}
	conn.SetReadDeadline(time.Time{})

	req, err := ParseRequest(data)
	if err != nil {
		s.send(conn, NewErrorResponse(fmt.Sprintf("invalid request: %v", err)))
		return
	}

	if req.Command == CommandSubscribe {
		s.stream(conn, reader)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	result, err := s.invoker.Invoke(ctx, req.Command, req.Payload)
	if err != nil {
		s.send(conn, NewErrorResponse(err.Error()))
		return
	}
	resp, err := NewOKResponse(result)
	if err != nil {
		resp = NewErrorResponse(err.Error())
	}
	s.send(conn, resp)
}

// stream acknowledges the subscription, then writes one UIEvent per line
// until the client disconnects or the server closes.
func (s *Server) stream(conn net.Conn, reader *bufio.Reader) {
	events, cancel := s.events.Subscribe()
	defer cancel()

	ok, _ := NewOKResponse(nil)
	if err := s.send(conn, ok); err != nil {
		return
	}

	// Any read result means the client is gone
	gone := make(chan struct{})
	go func() {
		_, _ = io.Copy(io.Discard, reader)
		close(gone)
	}()

	s.logger.Debug("IPC event subscriber connected")
	encoder := json.NewEncoder(conn)
	for {
		select {
		case ev, open := <-events:
			if !open {
				return
			}
			if err := encoder.Encode(ev); err != nil {
				s.logger.Debug("IPC event subscriber write failed", zap.Error(err))
				return
			}
		case <-gone:
			s.logger.Debug("IPC event subscriber disconnected")
			return
		case <-s.quit:
			return
		}
	}
}

func (s *Server) send(conn net.Conn, resp *Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("failed to marshal response", zap.Error(err))
		return err
	}
	data = append(data, '\n')
	if _, err := conn.Write(data); err != nil {
		s.logger.Warn("failed to send response", zap.Error(err))
		return err
	}
	return nil
}
