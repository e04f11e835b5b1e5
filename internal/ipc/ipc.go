// Package ipc implements the loopback JSON-over-TCP framing and bearer-token
// authentication shared by every role's control socket (spec.md §4.8, §6).
//
// Each connection carries exactly one JSON request and one JSON response,
// matching spec.md's "one JSON object per TCP connection" framing. The
// accept-loop/per-connection-handler shape is grounded on the teacher's
// cmd/restic/cmd_serve.go (net.Listen + srv.Serve), adapted from HTTP to a
// raw framed protocol since the payloads here are commands, not REST
// resources.
package ipc

import (
	"bufio"
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/throttlehq/throttle/internal/debug"
	"github.com/throttlehq/throttle/internal/errors"
)

// MaxMessageSize caps a single request per spec.md §4.8 ("up to 64 KiB").
const MaxMessageSize = 64 * 1024

// Status values for replies that are not a structured JSON object.
const (
	StatusOK              = "OK"
	StatusAuthError       = "AUTH_ERROR"
	StatusUnknownCommand  = "UNKNOWN_COMMAND"
	StatusError           = "ERROR"
)

// Request is the envelope every IPC caller sends.
type Request struct {
	Token   string          `json:"token"`
	Event   string          `json:"event,omitempty"`
	Command string          `json:"command,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Name returns Command if set, else Event — callers address either field
// depending on whether they're speaking to the arbiter's event stream or a
// command-style port, but dispatch treats them identically.
func (r Request) Name() string {
	if r.Command != "" {
		return r.Command
	}
	return r.Event
}

// Response is the envelope every IPC handler returns. Status carries one of
// the Status* constants for simple replies; Data carries a JSON object for
// STATUS-class calls (spec.md §4.8).
type Response struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

func OK() Response                      { return Response{Status: StatusOK} }
func AuthError() Response               { return Response{Status: StatusAuthError} }
func UnknownCommand() Response          { return Response{Status: StatusUnknownCommand} }
func Err(err error) Response            { return Response{Status: StatusError, Error: err.Error()} }
func WithData(v interface{}) Response {
	buf, err := json.Marshal(v)
	if err != nil {
		return Err(err)
	}
	return Response{Status: StatusOK, Data: buf}
}

// Handler processes one authenticated request.
type Handler func(ctx context.Context, req Request) Response

// Server binds strictly to 127.0.0.1 (spec.md §4.8) and serves one Handler.
type Server struct {
	Addr     string
	Token    string
	Handler  Handler
	listener net.Listener
}

// NewServer constructs a Server bound to 127.0.0.1:port.
func NewServer(port int, token string, handler Handler) *Server {
	return &Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", port),
		Token:   token,
		Handler: handler,
	}
}

// ListenAndServe binds the listener and serves until ctx is done. A bind
// failure is fatal per spec.md §6 ("Any listener that cannot bind exits
// with a fatal error").
func (s *Server) ListenAndServe(ctx context.Context) error {
	l, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return errors.Classify(errors.KindResource, errors.Wrapf(err, "listen %s", s.Addr))
	}
	s.listener = l

	go func() {
		<-ctx.Done()
		_ = l.Close()
	}()

	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			debug.Log("ipc: accept error on %s: %v", s.Addr, err)
			continue
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(30 * time.Second))

	reader := io.LimitReader(conn, MaxMessageSize)
	var req Request
	if err := json.NewDecoder(bufio.NewReader(reader)).Decode(&req); err != nil {
		writeResponse(conn, Err(errors.Classify(errors.KindInvalidInput, err)))
		return
	}

	if !CheckToken(s.Token, req.Token) {
		writeResponse(conn, AuthError())
		return
	}

	resp := s.Handler(ctx, req)
	writeResponse(conn, resp)
}

func writeResponse(conn net.Conn, resp Response) {
	buf, err := json.Marshal(resp)
	if err != nil {
		debug.Log("ipc: marshal response: %v", err)
		return
	}
	_, _ = conn.Write(buf)
}

// CheckToken compares the two tokens in constant time, per spec.md §4.8
// ("The token is compared by constant-time equality").
func CheckToken(want, got string) bool {
	if len(want) == 0 {
		return false
	}
	if len(want) != len(got) {
		// still run a comparison so the branch doesn't leak exact length
		// through timing any more than necessary.
		subtle.ConstantTimeCompare([]byte(want), []byte(want))
		return false
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}
