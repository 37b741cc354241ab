package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/anthropic/agentwatch/internal/errs"
	"github.com/anthropic/agentwatch/internal/logger"
)

// maxRequestBytes bounds one request line; change batches can be large.
const maxRequestBytes = 4 << 20

// Backend is what the server needs from the daemon. It is an interface so
// this package does not import the daemon.
type Backend interface {
	Uptime() time.Duration
	Stop()
	Status(ctx context.Context) (StatusData, error)
	Ingest(ctx context.Context, envelope []byte) (any, error)
	StartMonitor(ctx context.Context, config []byte) (any, error)
	StopMonitor(ctx context.Context, sessionID string) error
	ListMonitors(ctx context.Context) (any, error)
}

// Server is a Unix domain socket server for CLI-to-daemon communication.
type Server struct {
	log *logger.Logger

	mu       sync.Mutex
	backend  Backend
	listener net.Listener
	wg       sync.WaitGroup
	stopped  bool
}

// NewServer creates a new IPC server. The backend may be set later with
// SetBackend, which breaks the construction cycle with the daemon.
func NewServer(backend Backend, log *logger.Logger) *Server {
	return &Server{backend: backend, log: logger.OrNop(log)}
}

// SetBackend sets the backend after daemon creation.
func (s *Server) SetBackend(b Backend) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backend = b
}

// Listen starts accepting connections on the given Unix socket path.
// It blocks until the context is cancelled or an error occurs.
func (s *Server) Listen(ctx context.Context, socketPath string) error {
	// Remove stale socket file if it exists.
	if _, err := os.Stat(socketPath); err == nil {
		_ = os.Remove(socketPath)
	}

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen %s: %w", socketPath, err)
	}
	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = ln.Close()
		return fmt.Errorf("chmod socket: %w", err)
	}

	s.mu.Lock()
	s.listener = ln
	s.stopped = false
	s.mu.Unlock()

	s.log.Info("IPC server listening", "socket", socketPath)

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			stopped := s.stopped
			s.mu.Unlock()
			if stopped {
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("accept: %w", err)
			}
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

// Stop stops accepting connections and waits for in-flight connections to drain.
func (s *Server) Stop() error {
	s.mu.Lock()
	s.stopped = true
	ln := s.listener
	s.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("drain timeout: connections still open after 5s")
	}
}

// handleConn reads a single JSON request, dispatches it, and writes the response.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(30 * time.Second))

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), maxRequestBytes)
	if !scanner.Scan() {
		writeError(conn, errs.Validation("empty request"))
		return
	}

	var req Request
	if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
		writeError(conn, errs.Validation("invalid JSON: %v", err))
		return
	}

	s.mu.Lock()
	b := s.backend
	s.mu.Unlock()
	if b == nil && req.Command != CmdPing {
		writeError(conn, fmt.Errorf("daemon is starting"))
		return
	}

	switch req.Command {
	case CmdPing:
		writeData(conn, "pong", nil)

	case CmdStatus:
		data, err := b.Status(ctx)
		writeData(conn, data, err)

	case CmdStop:
		writeData(conn, "shutting down", nil)
		// Trigger shutdown after the response is written.
		b.Stop()

	case CmdIngest:
		data, err := b.Ingest(ctx, req.Payload)
		writeData(conn, data, err)

	case CmdMonitorStart:
		data, err := b.StartMonitor(ctx, req.Payload)
		writeData(conn, data, err)

	case CmdMonitorStop:
		err := b.StopMonitor(ctx, req.Args["id"])
		writeData(conn, "stopped", err)

	case CmdMonitorList:
		data, err := b.ListMonitors(ctx)
		writeData(conn, data, err)

	default:
		writeError(conn, errs.InvalidState("unknown command: %q", req.Command))
	}
}

func writeData(conn net.Conn, v any, err error) {
	if err != nil {
		writeError(conn, err)
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		writeError(conn, fmt.Errorf("marshal response: %w", err))
		return
	}
	writeResponse(conn, Response{OK: true, Data: data})
}

func writeResponse(conn net.Conn, resp Response) {
	data, _ := json.Marshal(resp)
	data = append(data, '\n')
	_, _ = conn.Write(data)
}

func writeError(conn net.Conn, err error) {
	writeResponse(conn, Response{OK: false, Error: err.Error(), Code: errs.Code(err)})
}
