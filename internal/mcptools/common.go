package mcptools

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/softwaresalt/agent-intercom/internal/errs"
	"github.com/softwaresalt/agent-intercom/internal/model"
)

// toolJSON marshals a result payload for a successful tool call. Marshal
// errors here would mean a handler built an unmarshalable payload, which
// never happens for the plain maps/slices every handler returns.
func toolJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// resolveSession implements the "(a) resolves the active session via C9"
// step shared by every handler (§4.7): an explicit session_id is trusted
// outright (the caller already knows it, e.g. a spawned session's own
// HTTP endpoint carries it); otherwise it falls back to the primary
// direct-connect agent's most recently active session.
func (s *Server) resolveSession(args map[string]any) (*model.Session, error) {
	if id := stringArg(args, "session_id"); id != "" {
		sess, err := s.store.GetSession(id)
		if err != nil {
			return nil, err
		}
		if sess == nil {
			return nil, errs.New(errs.NotFound, "session not found")
		}
		return sess, nil
	}
	return s.sessions.ResolveSession("", model.ReservedLocalOwner)
}

// touchSession implements steps (b) and (c) shared by every handler: reset
// the stall detector and stamp last_tool/updated_at.
func (s *Server) touchSession(sess *model.Session, toolName string) {
	if err := s.store.TouchSession(sess.ID, toolName, nil, time.Now().UTC()); err != nil {
		s.log.Warn().Err(err).Str("session_id", sess.ID).Msg("cannot touch session")
	}
	if s.detectors != nil {
		if d := s.detectors.Get(sess.ID); d != nil {
			d.Reset()
		}
	}
}

// errResult maps a daemon error onto a tool-call failure result, using the
// stable error_code from §7 as the visible message prefix.
func errResult(err error) (*mcp.CallToolResult, error) {
	if de, ok := err.(*errs.Error); ok {
		return mcp.NewToolResultError(de.Code()), nil
	}
	return mcp.NewToolResultError(err.Error()), nil
}

// postInfo posts message at info severity to the chat adapter if one is
// connected; it is a best-effort announcement, never a hard failure.
func (s *Server) postInfo(message string) (posted bool) {
	if s.chatAdp == nil {
		return false
	}
	if _, err := s.chatAdp.PostSynchronous(message); err != nil {
		s.log.Warn().Err(err).Msg("cannot post announcement")
		return false
	}
	return true
}

// deliversToChat reports which adapters a session's tool-generated controls
// should be rendered to (§4.11): Local never touches chat, Remote/Hybrid do.
func deliversToChat(sess *model.Session) bool {
	return sess.Mode == model.ModeRemote || sess.Mode == model.ModeHybrid
}

func isUnifiedDiff(content string) bool {
	return strings.HasPrefix(content, "--- ") || strings.HasPrefix(content, "diff ")
}
