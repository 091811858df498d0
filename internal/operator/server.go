// Package operator — server.go
//
// Unix domain socket server exposing the range coordinator's admin
// surface to a privileged operator channel, independent of the admin
// CLI's stdin REPL (internal/admin) — both ultimately call the same
// AdminSurface.
//
// Protocol: newline-delimited JSON over a Unix domain socket.
// Socket path: /run/rangecoord/operator.sock (configurable).
// Permissions: 0600.
//
// Commands (JSON request -> JSON response):
//
//	{"cmd":"start_server"}
//	  -> Response: {"ok":true}
//
//	{"cmd":"stop_server"}
//	  -> Response: {"ok":true}
//
//	{"cmd":"start_match"}
//	  -> Response: {"ok":true}
//
//	{"cmd":"stop_match"}
//	  -> Response: {"ok":true}
//
//	{"cmd":"status"}
//	  -> Response: {"ok":true,"status":{"match_state":"PLAYING","round":3,...}}
//
// No player identity confers any of these operations; the socket's own
// filesystem permissions are the entire access control model.
//
// Security:
//   - Socket is created with 0600 permissions.
//   - Each connection is handled in a separate goroutine.
//   - Max concurrent connections: 4 (operator use only, not high-throughput).
//   - Max request size: 4096 bytes.
//   - Connection timeout: 10s read, 10s write.
package operator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

const (
	maxConcurrentConns = 4
	maxRequestBytes    = 4096
	connTimeout        = 10 * time.Second
)

// PlayerStatus is a snapshot of one player for the status response.
type PlayerStatus struct {
	PlayerID  string `json:"player_id"`
	IP        string `json:"ip"`
	Score     int    `json:"score"`
	HP        int    `json:"hp"`
	Connected bool   `json:"is_connected"`
}

// StatusResponse is the status projection reported to an operator.
type StatusResponse struct {
	MatchState     string         `json:"match_state"`
	Round          int            `json:"round"`
	TotalRounds    int            `json:"total"`
	PlayerCount    int            `json:"player_count"`
	Players        []PlayerStatus `json:"players"`
	DifficultyName string         `json:"difficulty,omitempty"`

	// RecentMessages is the packet debug ring's contents, oldest first,
	// as "type:player_id" pairs. Empty unless observability.packet_log_enabled
	// is set.
	RecentMessages []string `json:"recent_messages,omitempty"`
}

// AdminSurface is the four privileged operations plus status, implemented
// by the coordinator's top-level wiring in cmd/rangecoord. Both this
// socket server and internal/admin's stdin REPL drive the same
// interface.
type AdminSurface interface {
	StartServer() error
	StopServer() error
	StartMatch() error
	StopMatch() error
	Status() StatusResponse
}

// Request is the JSON structure for operator commands.
type Request struct {
	Cmd string `json:"cmd"` // start_server | stop_server | start_match | stop_match | status
}

// Response is the JSON structure for operator command responses.
type Response struct {
	OK     bool            `json:"ok"`
	Error  string          `json:"error,omitempty"`
	Status *StatusResponse `json:"status,omitempty"`
}

// Server is the operator Unix domain socket server.
type Server struct {
	socketPath string
	admin      AdminSurface
	log        *zap.Logger
	sem        chan struct{}
}

// NewServer creates an operator Server.
func NewServer(socketPath string, admin AdminSurface, log *zap.Logger) *Server {
	return &Server{
		socketPath: socketPath,
		admin:      admin,
		log:        log,
		sem:        make(chan struct{}, maxConcurrentConns),
	}
}

// ListenAndServe starts the operator socket server. Removes any stale
// socket file before binding. Blocks until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("operator: remove stale socket %q: %w", s.socketPath, err)
	}

	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0o700); err != nil {
		return fmt.Errorf("operator: mkdir %q: %w", filepath.Dir(s.socketPath), err)
	}

	lis, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("operator: listen %q: %w", s.socketPath, err)
	}
	defer lis.Close()

	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		return fmt.Errorf("operator: chmod %q: %w", s.socketPath, err)
	}

	s.log.Info("operator socket listening", zap.String("path", s.socketPath))

	go func() {
		<-ctx.Done()
		lis.Close()
	}()

	for {
		conn, err := lis.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				s.log.Error("operator: accept error", zap.Error(err))
				continue
			}
		}

		select {
		case s.sem <- struct{}{}:
		default:
			s.log.Warn("operator: max connections reached, rejecting")
			_ = conn.Close()
			continue
		}

		go func(c net.Conn) {
			defer func() { <-s.sem }()
			defer c.Close()
			s.handleConn(c)
		}(conn)
	}
}

// handleConn handles a single operator connection: reads one JSON
// request, executes the command, writes one JSON response.
func (s *Server) handleConn(conn net.Conn) {
	_ = conn.SetDeadline(time.Now().Add(connTimeout))

	buf := make([]byte, maxRequestBytes)
	n, err := conn.Read(buf)
	if err != nil && err != io.EOF {
		s.log.Warn("operator: read error", zap.Error(err))
		return
	}

	var req Request
	if err := json.Unmarshal(buf[:n], &req); err != nil {
		s.writeResponse(conn, Response{OK: false, Error: "invalid JSON: " + err.Error()})
		return
	}

	resp := s.dispatch(req)
	s.writeResponse(conn, resp)
}

func (s *Server) dispatch(req Request) Response {
	switch req.Cmd {
	case "start_server":
		if err := s.admin.StartServer(); err != nil {
			return Response{OK: false, Error: err.Error()}
		}
		return Response{OK: true}
	case "stop_server":
		if err := s.admin.StopServer(); err != nil {
			return Response{OK: false, Error: err.Error()}
		}
		return Response{OK: true}
	case "start_match":
		if err := s.admin.StartMatch(); err != nil {
			return Response{OK: false, Error: err.Error()}
		}
		return Response{OK: true}
	case "stop_match":
		if err := s.admin.StopMatch(); err != nil {
			return Response{OK: false, Error: err.Error()}
		}
		return Response{OK: true}
	case "status":
		st := s.admin.Status()
		return Response{OK: true, Status: &st}
	default:
		return Response{OK: false, Error: fmt.Sprintf("unknown command %q", req.Cmd)}
	}
}

func (s *Server) writeResponse(conn net.Conn, resp Response) {
	data, _ := json.Marshal(resp)
	data = append(data, '\n')
	_, _ = conn.Write(data)
}
