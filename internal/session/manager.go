// Package session implements C9: the session lifecycle state machine, owner
// binding, concurrent-session cap enforcement, and host child-process
// spawn/terminate with a graceful-then-forced shutdown.
package session

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/softwaresalt/agent-intercom/internal/errs"
	"github.com/softwaresalt/agent-intercom/internal/model"
	"github.com/softwaresalt/agent-intercom/internal/store"
)

// terminateGrace is how long terminate_session waits for the child process
// to exit after the termination signal before force-killing it (§4.10).
const terminateGrace = 5 * time.Second

// SpawnConfig holds the host CLI invocation template from the top-level
// configuration (§6: host_cli, host_cli_args).
type SpawnConfig struct {
	HostCLI              string
	HostCLIArgs          []string
	MCPBaseURL           string // e.g. "http://127.0.0.1:3000/mcp"
	DefaultWorkspaceRoot string
}

// Manager owns every live child process and enforces the concurrent-session
// cap and owner-scoped lookups against the persistent store.
type Manager struct {
	store *store.Store
	spawn SpawnConfig
	log   zerolog.Logger

	maxConcurrent int

	mu       sync.Mutex
	children map[string]*child
}

// child pairs a spawned host process with the single done channel its own
// reaper goroutine closes after the one allowed call to cmd.Wait.
type child struct {
	cmd  *exec.Cmd
	done chan struct{}
}

// NewManager constructs a Manager bound to st, enforcing maxConcurrent live
// sessions in total across all owners.
func NewManager(st *store.Store, spawn SpawnConfig, maxConcurrent int, logger zerolog.Logger) *Manager {
	return &Manager{
		store:         st,
		spawn:         spawn,
		log:           logger,
		maxConcurrent: maxConcurrent,
		children:      make(map[string]*child),
	}
}

// ResolveSession implements resolve_session (§4.10): returns the session
// matching requestedID, or if empty, the caller's most-recently-updated
// Active session. A session owned by someone else is Unauthorized.
//
// For the untagged primary direct-connect agent (requestedID=="" and
// callerUserID==model.ReservedLocalOwner) an absent session is not an
// error: §4.11's auto-create rule applies and a fresh Active session bound
// to the default workspace root is created. The stale cleanup run first
// terminates only that owner's Active sessions, and this branch is reached
// only when it has none, so it terminates nothing here; a Paused or
// Created session left from a previous connection stays as it is.
func (m *Manager) ResolveSession(requestedID, callerUserID string) (*model.Session, error) {
	if requestedID != "" {
		sess, err := m.store.GetSession(requestedID)
		if err != nil {
			return nil, err
		}
		if sess == nil {
			return nil, errs.New(errs.NotFound, "session not found")
		}
		if sess.OwnerID != callerUserID {
			return nil, errs.New(errs.Unauthorized, "session is owned by another caller")
		}
		return sess, nil
	}

	sess, err := m.store.MostRecentActiveByOwner(callerUserID)
	if err != nil {
		return nil, err
	}
	if sess != nil {
		return sess, nil
	}

	if callerUserID != model.ReservedLocalOwner {
		return nil, errs.New(errs.NotFound, "no active session for caller")
	}
	return m.autoCreateForPrimaryAgent(callerUserID)
}

// autoCreateForPrimaryAgent implements §4.11's "otherwise" branch of the
// session auto-create rule for the untagged primary agent: run
// TerminateStaleForOwner (which ends only the owner's Active sessions),
// then create a fresh Active session bound to the default workspace root. Unlike
// SpawnSession, no host process is started here — the primary agent is
// already connected over the direct transport.
func (m *Manager) autoCreateForPrimaryAgent(ownerUserID string) (*model.Session, error) {
	if err := m.TerminateStaleForOwner(ownerUserID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	sess := model.Session{
		ID:            uuid.NewString(),
		OwnerID:       ownerUserID,
		WorkspaceRoot: m.spawn.DefaultWorkspaceRoot,
		Status:        model.SessionActive,
		Mode:          model.ModeHybrid,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := m.store.CreateSession(sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// SpawnSession implements spawn_session (§4.10): enforces the concurrent
// cap, persists a Created session, spawns the host CLI with environment
// carrying workspace/session/MCP endpoint, then transitions to Active.
func (m *Manager) SpawnSession(ctx context.Context, prompt, workspaceRoot, ownerUserID string, port int) (*model.Session, error) {
	n, err := m.store.CountLiveSessions()
	if err != nil {
		return nil, err
	}
	if n >= m.maxConcurrent {
		return nil, errs.New(errs.Config, fmt.Sprintf("max_concurrent_sessions (%d) reached", m.maxConcurrent))
	}

	now := time.Now().UTC()
	sess := model.Session{
		ID:            uuid.NewString(),
		OwnerID:       ownerUserID,
		WorkspaceRoot: workspaceRoot,
		Status:        model.SessionCreated,
		Mode:          model.ModeHybrid,
		Prompt:        prompt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := m.store.CreateSession(sess); err != nil {
		return nil, err
	}

	c, err := m.spawnHostProcess(ctx, sess, port)
	if err != nil {
		_ = m.store.UpdateSessionStatus(sess.ID, model.SessionTerminated, time.Now().UTC())
		return nil, errs.Wrap(errs.Config, "cannot spawn host process", err)
	}

	m.mu.Lock()
	m.children[sess.ID] = c
	m.mu.Unlock()

	sess.Status = model.SessionActive
	sess.UpdatedAt = time.Now().UTC()
	if err := m.store.UpdateSessionStatus(sess.ID, model.SessionActive, sess.UpdatedAt); err != nil {
		return nil, err
	}
	return &sess, nil
}

// spawnHostProcess launches the configured host_cli with the session's
// workspace, id and MCP endpoint passed as environment variables, mirroring
// the teacher's command-orchestrator launch style (own cwd, stdout/stderr
// forwarded to the daemon's own, context-scoped lifetime).
func (m *Manager) spawnHostProcess(ctx context.Context, sess model.Session, port int) (*child, error) {
	if m.spawn.HostCLI == "" {
		return nil, fmt.Errorf("host_cli is not configured")
	}

	cmd := exec.CommandContext(ctx, m.spawn.HostCLI, m.spawn.HostCLIArgs...)
	cmd.Dir = sess.WorkspaceRoot
	cmd.Env = append(os.Environ(),
		"AGENT_INTERCOM_WORKSPACE="+sess.WorkspaceRoot,
		"AGENT_INTERCOM_SESSION_ID="+sess.ID,
		fmt.Sprintf("AGENT_INTERCOM_MCP_URL=%s?session_id=%s", m.spawn.MCPBaseURL, sess.ID),
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	c := &child{cmd: cmd, done: make(chan struct{})}

	go func() {
		_ = cmd.Wait()
		close(c.done)
		m.mu.Lock()
		delete(m.children, sess.ID)
		m.mu.Unlock()
	}()

	return c, nil
}

// TerminateSession implements terminate_session (§4.10): sends SIGTERM,
// waits up to terminateGrace, force-kills on expiry, and marks the session
// Terminated.
func (m *Manager) TerminateSession(sess *model.Session) error {
	m.mu.Lock()
	c, ok := m.children[sess.ID]
	m.mu.Unlock()

	if ok && c.cmd.Process != nil {
		_ = c.cmd.Process.Signal(syscall.SIGTERM)

		select {
		case <-c.done:
		case <-time.After(terminateGrace):
			_ = c.cmd.Process.Kill()
			<-c.done
		}
	}

	m.mu.Lock()
	delete(m.children, sess.ID)
	m.mu.Unlock()

	return m.store.UpdateSessionStatus(sess.ID, model.SessionTerminated, time.Now().UTC())
}

// TerminateStaleForOwner implements the auto-create stale-cleanup rule
// (§4.11): terminate every Active session owned by ownerUserID before
// creating a fresh one for the same reserved owner.
func (m *Manager) TerminateStaleForOwner(ownerUserID string) error {
	live, err := m.store.ActiveSessionsByOwner(ownerUserID)
	if err != nil {
		return err
	}
	for i := range live {
		sess := live[i]
		if sess.Status != model.SessionActive {
			continue
		}
		if err := m.TerminateSession(&sess); err != nil {
			m.log.Warn().Err(err).Str("session_id", sess.ID).Msg("cannot terminate stale session")
		}
	}
	return nil
}

// DropAllChildren force-kills every tracked child process, used on
// graceful shutdown once sessions have already been marked Interrupted.
func (m *Manager) DropAllChildren() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, c := range m.children {
		if c.cmd.Process != nil {
			_ = c.cmd.Process.Kill()
		}
		delete(m.children, id)
	}
}
