// Package ipc implements C8: a local control surface for operators who are
// not on Slack. A Unix domain socket accepts one JSON object per line
// (§4.9); each connection is served independently and can issue any number
// of requests before closing.
package ipc

import (
	"bufio"
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"net"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/softwaresalt/agent-intercom/internal/errs"
)

// Handler resolves IPC commands against the same registry and
// session-manager operations the chat adapter uses (§4.9), so the two
// surfaces stay symmetric.
type Handler interface {
	List(ctx context.Context) (any, error)
	Approve(ctx context.Context, id, reason string) (string, error)
	Reject(ctx context.Context, id, reason string) (string, error)
	Resume(ctx context.Context, instruction string) (string, error)
	SetMode(ctx context.Context, mode string) (string, error)
}

// Server listens on a Unix domain socket named after the configured
// ipc_name and dispatches each request line to a Handler.
type Server struct {
	socketPath string
	handler    Handler
	log        zerolog.Logger
	authToken  string // empty disables authentication

	mu       sync.Mutex
	listener net.Listener
}

// New constructs a Server bound to socketPath. If authToken is empty,
// requests are accepted without a token (§4.9 "auth is disabled").
func New(socketPath string, handler Handler, authToken string, logger zerolog.Logger) *Server {
	return &Server{socketPath: socketPath, handler: handler, authToken: authToken, log: logger}
}

// GenerateToken returns a random hex-encoded shared secret for the
// controller to hand to intercomctl out of band (the daemon writes it to
// TokenPath, under the OS temp directory).
func GenerateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", errs.Wrap(errs.Ipc, "cannot generate auth token", err)
	}
	return hex.EncodeToString(buf), nil
}

// Listen binds the Unix domain socket, removing any stale socket file left
// behind by a previous, uncleanly-terminated run.
func (s *Server) Listen() error {
	if err := os.RemoveAll(s.socketPath); err != nil {
		return errs.Wrap(errs.Ipc, "cannot clear stale socket", err)
	}
	l, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return errs.Wrap(errs.Ipc, "cannot listen on socket", err)
	}
	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()
	return nil
}

// Serve accepts connections until ctx is cancelled or the listener closes.
// Each connection is handled on its own goroutine so a slow or stuck client
// does not block others.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	l := s.listener
	s.mu.Unlock()
	if l == nil {
		return errs.New(errs.Ipc, "server is not listening")
	}

	go func() {
		<-ctx.Done()
		l.Close()
	}()

	var wg sync.WaitGroup
	for {
		conn, err := l.Accept()
		if err != nil {
			wg.Wait()
			if ctx.Err() != nil {
				return nil
			}
			return errs.Wrap(errs.Ipc, "accept failed", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.serveConn(ctx, conn)
		}()
	}
}

// Close removes the socket file; safe to call after Serve has returned.
func (s *Server) Close() error {
	s.mu.Lock()
	l := s.listener
	s.mu.Unlock()
	if l != nil {
		l.Close()
	}
	return os.RemoveAll(s.socketPath)
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	encoder := json.NewEncoder(conn)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			encoder.Encode(fail("malformed request"))
			continue
		}
		resp := s.handle(ctx, req)
		if err := encoder.Encode(resp); err != nil {
			return
		}
	}
}

func (s *Server) handle(ctx context.Context, req Request) Response {
	if !s.authorized(req.AuthToken) {
		return fail("unauthorized")
	}

	switch req.Command {
	case CommandList:
		data, err := s.handler.List(ctx)
		return fromResult(data, err)
	case CommandApprove:
		msg, err := s.handler.Approve(ctx, req.ID, req.Reason)
		return fromResult(msg, err)
	case CommandReject:
		msg, err := s.handler.Reject(ctx, req.ID, req.Reason)
		return fromResult(msg, err)
	case CommandResume:
		msg, err := s.handler.Resume(ctx, req.Instruction)
		return fromResult(msg, err)
	case CommandMode:
		msg, err := s.handler.SetMode(ctx, req.Mode)
		return fromResult(msg, err)
	default:
		return fail("unknown command: " + req.Command)
	}
}

func (s *Server) authorized(token string) bool {
	if s.authToken == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) == 1
}

func fromResult(data any, err error) Response {
	if err != nil {
		return fail(err.Error())
	}
	return ok(data)
}
