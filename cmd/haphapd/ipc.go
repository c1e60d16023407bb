package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// IPC Server - Unix Domain Socket Interface
// ============================================================================
// Protocol: line-delimited JSON, one response per request line.
//   - Client sends:     {"type": "run_release", "data": {"power": 0.5}}
//   - Server responds:  {"status": "ok"|"noop"|"error", "code": "...", "error": "..."}
//
// A request is answered once the session reduced it (and, where needed, after
// the engine start it triggered). Lifecycle notifications (app_background,
// app_foreground) are acknowledged as soon as they are queued.
// ============================================================================

// IPCResponse represents the response sent back to IPC clients
type IPCResponse struct {
	Status       string         `json:"status"`
	Code         string         `json:"code,omitempty"`
	Error        string         `json:"error,omitempty"`
	RequestID    string         `json:"request_id,omitempty"`
	Capabilities *Capabilities  `json:"capabilities,omitempty"`
	State        *StateSnapshot `json:"state,omitempty"`
}

func responseFromResult(res Result) IPCResponse {
	resp := IPCResponse{
		Status:       string(res.Status),
		Capabilities: res.Capabilities,
		State:        res.Snapshot,
	}
	if res.Err != nil {
		resp.Status = string(StatusError)
		resp.Code = errorCode(res.Err)
		resp.Error = res.Err.Error()
	}
	return resp
}

func errorResponse(code, msg string) IPCResponse {
	return IPCResponse{Status: string(StatusError), Code: code, Error: msg}
}

// IPCServer accepts request lines on a Unix socket and forwards them to the session.
type IPCServer struct {
	socketPath   string
	events       chan<- Event
	replyTimeout time.Duration
	logger       *slog.Logger
}

func NewIPCServer(socketPath string, events chan<- Event, replyTimeout time.Duration, logger *slog.Logger) *IPCServer {
	return &IPCServer{
		socketPath:   socketPath,
		events:       events,
		replyTimeout: replyTimeout,
		logger:       logger,
	}
}

// Run serves until ctx is canceled, then closes the listener and removes the socket.
func (s *IPCServer) Run(ctx context.Context) error {
	if err := os.RemoveAll(s.socketPath); err != nil {
		return fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.socketPath, err)
	}
	defer listener.Close()
	defer os.Remove(s.socketPath)

	if err := os.Chmod(s.socketPath, 0666); err != nil {
		return fmt.Errorf("chmod socket: %w", err)
	}

	s.logger.Info("IPC listening", "socket", s.socketPath)

	// Closing the listener unblocks Accept().
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.logger.Debug("IPC listener closed (shutdown)")
				return nil
			}
			if errors.Is(err, net.ErrClosed) || strings.Contains(err.Error(), "use of closed network connection") {
				s.logger.Debug("IPC listener closed")
				return nil
			}
			s.logger.Error("IPC accept error", "error", err)
			continue
		}

		go s.handleConn(ctx, conn)
	}
}

func (s *IPCServer) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	// Unblock the scanner on shutdown.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	s.logger.Debug("IPC connection", "remote_addr", conn.RemoteAddr())

	scanner := bufio.NewScanner(conn)
	encoder := json.NewEncoder(conn)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}

		reqID := uuid.NewString()
		logger := s.logger.With("request_id", reqID)
		logger.Debug("IPC received", "line", string(line))

		resp := s.handle(ctx, line, logger)
		resp.RequestID = reqID
		if err := encoder.Encode(resp); err != nil {
			logger.Error("IPC failed to send response", "error", err)
			return
		}
	}

	s.logger.Debug("IPC connection closed")
}

// handle decodes one request, queues it and waits for the session's answer.
func (s *IPCServer) handle(ctx context.Context, line []byte, logger *slog.Logger) IPCResponse {
	reply := make(chan Result, 1)
	ev, err := UnmarshalRequest(line, reply)
	if err != nil {
		logger.Debug("IPC bad request", "error", err)
		return errorResponse(errorCode(err), err.Error())
	}

	select {
	case s.events <- ev:
	default:
		logger.Warn("IPC event queue full")
		return errorResponse(codeQueueFull, "event queue full")
	}

	if replyOf(ev) == nil {
		return IPCResponse{Status: string(StatusOK)}
	}

	timer := time.NewTimer(s.replyTimeout)
	defer timer.Stop()

	select {
	case res := <-reply:
		return responseFromResult(res)
	case <-timer.C:
		logger.Warn("IPC request timed out", "timeout", s.replyTimeout)
		return errorResponse(codeTimeout, "timed out waiting for session")
	case <-ctx.Done():
		return errorResponse(codeTimeout, "daemon shutting down")
	}
}
