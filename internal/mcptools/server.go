// Package mcptools implements C10 (the nine MCP tool handlers) and C12
// (the slack://channel/{id}/recent resource). Each handler resolves the
// active session via C9, resets the stall detector before and after
// execution, and updates session.last_tool — the shared bookkeeping that
// lets the nine tools present a uniform contract regardless of which one
// is called.
package mcptools

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/softwaresalt/agent-intercom/internal/chat"
	"github.com/softwaresalt/agent-intercom/internal/checkpoint"
	"github.com/softwaresalt/agent-intercom/internal/policy"
	"github.com/softwaresalt/agent-intercom/internal/registry"
	"github.com/softwaresalt/agent-intercom/internal/session"
	"github.com/softwaresalt/agent-intercom/internal/stall"
	"github.com/softwaresalt/agent-intercom/internal/store"
)

// getArgs extracts arguments from request as map[string]any.
func getArgs(request mcp.CallToolRequest) map[string]any {
	if args, ok := request.Params.Arguments.(map[string]any); ok {
		return args
	}
	return make(map[string]any)
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func boolArg(args map[string]any, key string, deflt bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return deflt
}

func intArg(args map[string]any, key string, deflt int) int {
	if v, ok := args[key].(float64); ok {
		return int(v)
	}
	return deflt
}

// Timeouts carries the three configurable blocking-call ceilings (§5, §6).
type Timeouts struct {
	ApprovalSeconds int
	PromptSeconds   int
	WaitSeconds     int
}

// Detectors looks up the live stall detector for a session, bridging C5's
// Detector type (keyed in the lifecycle controller) into the tool layer
// without mcptools owning detector lifecycle itself.
type Detectors interface {
	Get(sessionID string) *stall.Detector
}

// Server wires the nine MCP tool handlers and the Slack resource to the
// rest of the daemon: persistence (C3), path safety (C1), hashing (C2),
// the policy evaluator (C4), the pending-call registry (C6), the chat
// adapter (C7, optional — nil in local-only mode), the session manager
// (C9) and the checkpoint manager (C13).
type Server struct {
	mcpServer *server.MCPServer

	store      *store.Store
	sessions   *session.Manager
	registry   *registry.Registry
	policies   *policy.Cache
	chatAdp    *chat.Adapter // nil when running local-only
	checkpoint *checkpoint.Manager
	detectors  Detectors
	commands   map[string]string
	timeouts   Timeouts
	log        zerolog.Logger
}

// NewServer constructs a Server and registers every tool and resource.
// chatAdp may be nil when no Slack credentials were resolved at startup;
// handlers degrade gracefully per §4.11 rather than failing.
func NewServer(
	st *store.Store,
	sessions *session.Manager,
	reg *registry.Registry,
	policies *policy.Cache,
	chatAdp *chat.Adapter,
	cp *checkpoint.Manager,
	detectors Detectors,
	commands map[string]string,
	timeouts Timeouts,
	logger zerolog.Logger,
) *Server {
	s := &Server{
		store:      st,
		sessions:   sessions,
		registry:   reg,
		policies:   policies,
		chatAdp:    chatAdp,
		checkpoint: cp,
		detectors:  detectors,
		commands:   commands,
		timeouts:   timeouts,
		log:        logger,
	}

	mcpServer := server.NewMCPServer(
		"agent-intercom",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, true),
	)

	s.registerTools(mcpServer)
	s.registerResources(mcpServer)

	s.mcpServer = mcpServer
	return s
}

// ServeStdio runs the primary agent's transport: one stdio-framed MCP
// connection per daemon process, matching the direct-connect primary agent
// wiring (§4.11).
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// HTTPHandler exposes the streamable-HTTP transport used for spawned
// sessions (§4.11). The session manager hands each child an MCP URL with a
// session_id query parameter, but this handler does not read it: a tool
// call is bound to a session only through its own session_id argument, and
// a call without one resolves to the primary agent's session.
func (s *Server) HTTPHandler() *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(s.mcpServer)
}

func (s *Server) registerTools(mcpServer *server.MCPServer) {
	checkClearanceTool := mcp.NewTool("check_clearance",
		mcp.WithDescription("Request human approval for a proposed file write or patch before applying it"),
		mcp.WithString("title", mcp.Required(), mcp.Description("Short title describing the proposed change")),
		mcp.WithString("description", mcp.Description("Longer description of the change and its intent")),
		mcp.WithString("diff", mcp.Required(), mcp.Description("Unified diff or full file content to apply once approved")),
		mcp.WithString("file_path", mcp.Required(), mcp.Description("Path to the file, relative to the workspace root")),
		mcp.WithString("risk_level", mcp.Description("One of low, high, critical (default low)")),
		mcp.WithString("session_id", mcp.Description("Optional session id; defaults to the caller's active session")),
	)
	mcpServer.AddTool(checkClearanceTool, s.handleCheckClearance)

	checkDiffTool := mcp.NewTool("check_diff",
		mcp.WithDescription("Apply a previously approved file change now that clearance has been granted"),
		mcp.WithString("request_id", mcp.Required(), mcp.Description("The approval request id returned by check_clearance")),
		mcp.WithBoolean("force", mcp.Description("Apply even if the file has changed since the hash was recorded")),
	)
	mcpServer.AddTool(checkDiffTool, s.handleCheckDiff)

	autoCheckTool := mcp.NewTool("auto_check",
		mcp.WithDescription("Check whether a tool call would be auto-approved by the workspace's policy, without requesting human clearance"),
		mcp.WithString("tool_name", mcp.Required(), mcp.Description("The tool or command name to evaluate")),
		mcp.WithString("file_path", mcp.Description("File path the call would touch, if any")),
		mcp.WithString("risk_level", mcp.Description("One of low, high, critical (default low)")),
		mcp.WithString("session_id", mcp.Description("Optional session id; defaults to the caller's active session")),
	)
	mcpServer.AddTool(autoCheckTool, s.handleAutoCheck)

	transmitTool := mcp.NewTool("transmit",
		mcp.WithDescription("Send a continuation question to the operator and wait for Continue, Refine, or Stop"),
		mcp.WithString("prompt_text", mcp.Required(), mcp.Description("The question or status to present")),
		mcp.WithString("prompt_type", mcp.Description("One of continuation, clarification, error_recovery, resource_warning (default continuation)")),
		mcp.WithNumber("elapsed_seconds", mcp.Description("Seconds spent on the current task so far")),
		mcp.WithString("actions_taken", mcp.Description("Summary of actions taken so far")),
		mcp.WithString("session_id", mcp.Description("Optional session id; defaults to the caller's active session")),
	)
	mcpServer.AddTool(transmitTool, s.handleTransmit)

	broadcastTool := mcp.NewTool("broadcast",
		mcp.WithDescription("Post a one-way status message to the operator's channel"),
		mcp.WithString("message", mcp.Required(), mcp.Description("The message to post")),
		mcp.WithString("level", mcp.Description("One of info, success, warning, error (default info)")),
		mcp.WithString("thread_ts", mcp.Description("Optional thread timestamp to reply within")),
		mcp.WithString("session_id", mcp.Description("Optional session id; defaults to the caller's active session")),
	)
	mcpServer.AddTool(broadcastTool, s.handleBroadcast)

	rebootTool := mcp.NewTool("reboot",
		mcp.WithDescription("Check for interrupted work from a previous run without mutating any state"),
		mcp.WithString("session_id", mcp.Description("Optional session id; defaults to the caller's most recently interrupted session")),
	)
	mcpServer.AddTool(rebootTool, s.handleReboot)

	switchFreqTool := mcp.NewTool("switch_freq",
		mcp.WithDescription("Change which channel(s) deliver and resolve operator interactions for this session"),
		mcp.WithString("mode", mcp.Required(), mcp.Description("One of remote, local, hybrid")),
		mcp.WithString("session_id", mcp.Description("Optional session id; defaults to the caller's active session")),
	)
	mcpServer.AddTool(switchFreqTool, s.handleSwitchFreq)

	standbyTool := mcp.NewTool("standby",
		mcp.WithDescription("Pause and wait for the operator to resume, optionally with new instructions, or to stop"),
		mcp.WithString("message", mcp.Description("Optional status message explaining why the session is standing by")),
		mcp.WithNumber("timeout_seconds", mcp.Description("Optional timeout in seconds; 0 defers to the configured wait timeout or waits indefinitely")),
		mcp.WithString("session_id", mcp.Description("Optional session id; defaults to the caller's active session")),
	)
	mcpServer.AddTool(standbyTool, s.handleStandby)

	pingTool := mcp.NewTool("ping",
		mcp.WithDescription("Heartbeat indicating the session is alive, optionally updating its progress snapshot"),
		mcp.WithString("status_message", mcp.Description("Optional status to post at info severity")),
		mcp.WithString("progress_snapshot", mcp.Description("Optional JSON array of {label, status} progress steps")),
	)
	mcpServer.AddTool(pingTool, s.handlePing)
}

func (s *Server) registerResources(mcpServer *server.MCPServer) {
	resource := mcp.NewResource(
		"slack://channel/{id}/recent",
		"Recent messages posted in the operator's Slack channel",
	)
	mcpServer.AddResource(resource, s.handleReadRecent)
}
