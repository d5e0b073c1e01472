// Package operator is the operator control plane (SPEC_FULL.md §5): a
// Unix domain socket accepting newline-delimited JSON requests, gated by
// config.Operator.Enabled. It is a read-mostly convenience surface over
// the Store — out-of-scope per spec §1 is the terminal dashboard
// renderer, not a query interface, so this does not conflict with the
// spec's Non-goals. Grounded on the teacher's operator/server.go
// socket-lifecycle shape; the state-mutation commands (reset/pin/unpin
// against a PID registry) don't apply to this domain and are replaced
// with status/list/dismiss against the Store.
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

	"github.com/streamguard/streamguard/internal/model"
	"github.com/streamguard/streamguard/internal/store"
)

const (
	maxConcurrentConns = 4
	maxRequestBytes    = 4096
	connTimeout        = 10 * time.Second
)

// Request is the JSON structure for operator commands (SPEC_FULL.md §5).
type Request struct {
	Cmd    string `json:"cmd"` // status | list | dismiss
	UserID *int64 `json:"user_id,omitempty"`
	IP     string `json:"ip,omitempty"`
}

// UserStatus is one row of a status/list response for a tracked user.
type UserStatus struct {
	UserID         int64   `json:"user_id"`
	FailedAttempts int     `json:"failed_attempts"`
	ResourceCount  int     `json:"resource_count"`
	IPCount        int     `json:"ip_count"`
	CurrentScore   float64 `json:"current_score"`
	LastAlertScore float64 `json:"last_alert_score"`
}

// IPStatus is one row of a status/list response for a tracked IP.
type IPStatus struct {
	IPAddress      string  `json:"ip_address"`
	FailedAttempts int     `json:"failed_attempts"`
	LastAlertScore float64 `json:"last_alert_score"`
}

// Response is the JSON structure for operator command responses.
type Response struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`

	User *UserStatus `json:"user,omitempty"`
	IP   *IPStatus   `json:"ip,omitempty"`

	Users []UserStatus `json:"users,omitempty"`
	IPs   []IPStatus   `json:"ips,omitempty"`
}

// Server is the operator Unix domain socket server.
type Server struct {
	socketPath string
	store      *store.Store
	log        *zap.Logger
	sem        chan struct{}
}

// NewServer builds an operator Server over s.
func NewServer(socketPath string, s *store.Store, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		socketPath: socketPath,
		store:      s,
		log:        log,
		sem:        make(chan struct{}, maxConcurrentConns),
	}
}

// ListenAndServe binds the operator socket (0600, removing any stale
// socket file first) and serves connections until ctx is cancelled.
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

	s.writeResponse(conn, s.dispatch(req))
}

func (s *Server) dispatch(req Request) Response {
	switch req.Cmd {
	case "status":
		return s.cmdStatus(req)
	case "list":
		return s.cmdList()
	case "dismiss":
		return s.cmdDismiss(req)
	default:
		return Response{OK: false, Error: fmt.Sprintf("unknown command %q", req.Cmd)}
	}
}

func (s *Server) cmdStatus(req Request) Response {
	if req.UserID == nil && req.IP == "" {
		return Response{OK: false, Error: "status requires user_id or ip"}
	}

	if req.UserID != nil {
		s.store.Mu.Lock()
		u, ok := s.store.LookupUserLocked(*req.UserID)
		var status *UserStatus
		if ok {
			status = userStatusLocked(u)
		}
		s.store.Mu.Unlock()
		if !ok {
			return Response{OK: false, Error: fmt.Sprintf("user %d not tracked", *req.UserID)}
		}
		return Response{OK: true, User: status}
	}

	s.store.IPMu.Lock()
	ip, ok := s.store.LookupIPLocked(req.IP)
	var status *IPStatus
	if ok {
		status = ipStatusLocked(ip)
	}
	s.store.IPMu.Unlock()
	if !ok {
		return Response{OK: false, Error: fmt.Sprintf("ip %q not tracked", req.IP)}
	}
	return Response{OK: true, IP: status}
}

func (s *Server) cmdList() Response {
	s.store.Mu.Lock()
	users := make([]UserStatus, 0, len(s.store.UsersLocked()))
	for _, u := range s.store.UsersLocked() {
		users = append(users, *userStatusLocked(u))
	}
	s.store.Mu.Unlock()

	s.store.IPMu.Lock()
	ips := make([]IPStatus, 0, len(s.store.IPIndexLocked()))
	for _, ip := range s.store.IPIndexLocked() {
		ips = append(ips, *ipStatusLocked(ip))
	}
	s.store.IPMu.Unlock()

	return Response{OK: true, Users: users, IPs: ips}
}

// cmdDismiss acknowledges a user's current score without emitting an
// alert (SPEC_FULL.md §5): it resets last_alert_score to the current
// score so the next unchanged sweep doesn't re-alert, but it does not
// touch failed_attempts, resources, ips, or the log list — an operator
// dismissal is not a resurrection of a removed entity and must never
// look like one.
func (s *Server) cmdDismiss(req Request) Response {
	if req.UserID == nil {
		return Response{OK: false, Error: "dismiss requires user_id"}
	}

	s.store.Mu.Lock()
	u, ok := s.store.LookupUserLocked(*req.UserID)
	var status *UserStatus
	if ok {
		u.LastAlertScore = u.CurrentScore
		u.LastAlertTime = time.Now()
		status = userStatusLocked(u)
	}
	s.store.Mu.Unlock()

	if !ok {
		return Response{OK: false, Error: fmt.Sprintf("user %d not tracked", *req.UserID)}
	}
	return Response{OK: true, User: status}
}

func userStatusLocked(u *model.EntityStats) *UserStatus {
	return &UserStatus{
		UserID:         u.UserID,
		FailedAttempts: u.FailedAttempts,
		ResourceCount:  u.ResourceCount(),
		IPCount:        u.IPCount(),
		CurrentScore:   u.CurrentScore,
		LastAlertScore: u.LastAlertScore,
	}
}

func ipStatusLocked(ip *model.IPStats) *IPStatus {
	return &IPStatus{
		IPAddress:      ip.IPAddress,
		FailedAttempts: ip.FailedAttempts,
		LastAlertScore: ip.LastAlertScore,
	}
}

func (s *Server) writeResponse(conn net.Conn, resp Response) {
	data, _ := json.Marshal(resp)
	data = append(data, '\n')
	_, _ = conn.Write(data)
}
