package daemon

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/softwaresalt/agent-intercom/internal/chat"
	"github.com/softwaresalt/agent-intercom/internal/checkpoint"
	"github.com/softwaresalt/agent-intercom/internal/config"
	"github.com/softwaresalt/agent-intercom/internal/ipc"
	"github.com/softwaresalt/agent-intercom/internal/logging"
	"github.com/softwaresalt/agent-intercom/internal/mcptools"
	"github.com/softwaresalt/agent-intercom/internal/policy"
	"github.com/softwaresalt/agent-intercom/internal/registry"
	"github.com/softwaresalt/agent-intercom/internal/session"
	"github.com/softwaresalt/agent-intercom/internal/stall"
	"github.com/softwaresalt/agent-intercom/internal/store"
)

// Daemon is the fully wired agent-intercom server: every component from
// the component table (§2) constructed and bound together, plus the
// Handler/Authorizer glue the chat and IPC adapters call into. The MCP
// transports (stdio, streamable HTTP) are driven by the caller (cmd/
// agent-intercomd) since mcp-go owns their run loops directly.
type Daemon struct {
	Config *config.Config

	Store      *store.Store
	Sessions   *session.Manager
	Registry   *registry.Registry
	Policies   *policy.Cache
	Checkpoint *checkpoint.Manager
	Detectors  *DetectorRegistry
	Tools      *mcptools.Server
	IPCServer  *ipc.Server

	Chat *chat.Adapter // nil in local-only mode (§4.11)

	operators []string
	log       zerolog.Logger
}

// New wires every component against cfg and the already-open store. Chat
// credentials, if cred is non-nil, produce a live Slack adapter; otherwise
// the daemon runs IPC/local-only, mirroring the teacher's own graceful
// degradation when optional integrations are unavailable.
func New(cfg *config.Config, cred *config.Credentials, st *store.Store, logger zerolog.Logger) (*Daemon, error) {
	d := &Daemon{
		Config: cfg,
		Store:  st,
		log:    logger,
	}
	if cred != nil {
		d.operators = cred.OperatorUsers
	}

	d.Registry = registry.New()

	policies, err := policy.NewCache(logging.Component(logger, "policy"))
	if err != nil {
		return nil, err
	}
	d.Policies = policies

	d.Sessions = session.NewManager(st, session.SpawnConfig{
		HostCLI:              cfg.HostCLI,
		HostCLIArgs:          cfg.HostCLIArgs,
		MCPBaseURL:           httpMCPBaseURL(cfg.HTTPPort),
		DefaultWorkspaceRoot: cfg.DefaultWorkspaceRoot,
	}, cfg.MaxConcurrentSess, logging.Component(logger, "session"))

	d.Checkpoint = checkpoint.NewManager(st, logging.Component(logger, "checkpoint"))

	if cfg.Stall.Enabled {
		d.Detectors = NewDetectorRegistry(stall.Config{
			InactivityThreshold: time.Duration(cfg.Stall.InactivityThresholdSeconds) * time.Second,
			EscalationInterval:  time.Duration(cfg.Stall.EscalationThresholdSeconds) * time.Second,
			MaxRetries:          cfg.Stall.MaxRetries,
			DefaultNudgeMessage: cfg.Stall.DefaultNudgeMessage,
		})
	}

	if cred != nil && cred.AppToken != "" && cred.BotToken != "" {
		d.Chat = chat.New(chat.Config{
			AppToken:  cred.AppToken,
			BotToken:  cred.BotToken,
			ChannelID: cfg.Slack.ChannelID,
		}, d, d, logging.Component(logger, "chat"))
		chat.SetReconnectHook(d.onChatReconnect)
	}

	d.Tools = mcptools.NewServer(
		st, d.Sessions, d.Registry, d.Policies, d.Chat, d.Checkpoint, d.detectorsOrNil(),
		cfg.Commands,
		mcptools.Timeouts{
			ApprovalSeconds: cfg.Timeouts.ApprovalSeconds,
			PromptSeconds:   cfg.Timeouts.PromptSeconds,
			WaitSeconds:     cfg.Timeouts.WaitSeconds,
		},
		logging.Component(logger, "mcptools"),
	)

	return d, nil
}

// detectorsOrNil adapts the possibly-nil *DetectorRegistry to the
// mcptools.Detectors interface without the typed-nil pitfall: a nil
// *DetectorRegistry boxed into an interface is non-nil, so mcptools must
// see a genuinely nil interface when stall detection is disabled.
func (d *Daemon) detectorsOrNil() mcptools.Detectors {
	if d.Detectors == nil {
		return nil
	}
	return d.Detectors
}

func httpMCPBaseURL(port int) string {
	return "http://127.0.0.1:" + strconv.Itoa(port) + "/mcp"
}

// RunChat runs the Slack adapter's event loop until ctx is cancelled. A
// no-op when no chat adapter was constructed.
func (d *Daemon) RunChat(ctx context.Context) error {
	if d.Chat == nil {
		return nil
	}
	return d.Chat.Run(ctx)
}

// RunIPC runs the IPC listener's accept loop until ctx is cancelled.
func (d *Daemon) RunIPC(ctx context.Context) error {
	return d.IPCServer.Serve(ctx)
}

// RunStallEvents drains the detector registry's event stream, translating
// each event into persistence updates and (when the session's mode
// delivers to chat) operator-facing messages. A no-op when stall detection
// is disabled.
func (d *Daemon) RunStallEvents(ctx context.Context) {
	if d.Detectors == nil {
		return
	}
	events := d.Detectors.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			d.handleStallEvent(ev)
		}
	}
}

// InitIPC generates the shared auth secret, constructs the IPC server
// bound to socketPath, and starts listening (§4.11 step 8). The caller
// (cmd/agent-intercomd) still drives Serve via RunIPC so shutdown ordering
// stays explicit in main.
func (d *Daemon) InitIPC(socketPath string) (token string, err error) {
	token, err = ipc.GenerateToken()
	if err != nil {
		return "", err
	}
	d.IPCServer = ipc.New(socketPath, d, token, logging.Component(d.log, "ipc"))
	if err := d.IPCServer.Listen(); err != nil {
		return "", err
	}
	return token, nil
}
