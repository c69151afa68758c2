package daemon

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/softwaresalt/agent-intercom/internal/config"
	"github.com/softwaresalt/agent-intercom/internal/model"
	"github.com/softwaresalt/agent-intercom/internal/store"
)

func newTestDaemon(t *testing.T, operators []string) (*Daemon, *store.Store) {
	t.Helper()
	st, err := store.Open(store.Config{Path: filepath.Join(t.TempDir(), "test.db")}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := &config.Config{
		DefaultWorkspaceRoot: t.TempDir(),
		HostCLI:              "true",
		MaxConcurrentSess:    3,
		Stall:                config.StallConfig{DefaultNudgeMessage: "still there?"},
	}
	var cred *config.Credentials
	if operators != nil {
		cred = &config.Credentials{OperatorUsers: operators}
	}

	d, err := New(cfg, cred, st, zerolog.Nop())
	require.NoError(t, err)
	return d, st
}

func mustCreateSession(t *testing.T, st *store.Store, owner string, status model.SessionStatus) *model.Session {
	t.Helper()
	sess := model.Session{
		ID: "sess-" + owner, OwnerID: owner, WorkspaceRoot: t.TempDir(),
		Status: status, Mode: model.ModeRemote, Prompt: "do work",
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, st.CreateSession(sess))
	return &sess
}

func TestIsAuthorized(t *testing.T) {
	d, _ := newTestDaemon(t, []string{"U1", "U2"})
	assert.True(t, d.IsAuthorized("U1"))
	assert.False(t, d.IsAuthorized("U3"))
}

func TestHandleApproval_RejectsNonOwner(t *testing.T) {
	d, st := newTestDaemon(t, nil)
	sess := mustCreateSession(t, st, "owner-a", model.SessionActive)
	require.NoError(t, st.CreateApproval(model.ApprovalRequest{
		ID: "appr-1", SessionID: sess.ID, Title: "t", DiffContent: "x", FilePath: "a.txt",
		RiskLevel: model.RiskLow, Status: model.ApprovalPending, OriginalHash: "h", CreatedAt: time.Now().UTC(),
	}))
	d.Registry.RegisterApproval("appr-1")

	msg, err := d.HandleApproval(context.Background(), "owner-b", "appr-1", true)
	require.NoError(t, err)
	assert.Contains(t, msg, "do not own")
}

func TestHandleApproval_ResolvesForOwner(t *testing.T) {
	d, st := newTestDaemon(t, nil)
	sess := mustCreateSession(t, st, "owner-a", model.SessionActive)
	require.NoError(t, st.CreateApproval(model.ApprovalRequest{
		ID: "appr-2", SessionID: sess.ID, Title: "t", DiffContent: "x", FilePath: "a.txt",
		RiskLevel: model.RiskLow, Status: model.ApprovalPending, OriginalHash: "h", CreatedAt: time.Now().UTC(),
	}))
	ch := d.Registry.RegisterApproval("appr-2")

	msg, err := d.HandleApproval(context.Background(), "owner-a", "appr-2", true)
	require.NoError(t, err)
	assert.Equal(t, "Approved.", msg)

	select {
	case outcome := <-ch:
		assert.Equal(t, model.OutcomeApproved, outcome.Kind)
	default:
		t.Fatal("expected a buffered outcome")
	}
}

func TestHandleSlashCommand_SessionsListsOnlyCallerSessions(t *testing.T) {
	d, st := newTestDaemon(t, nil)
	mustCreateSession(t, st, "owner-a", model.SessionActive)
	mustCreateSession(t, st, "owner-b", model.SessionActive)

	out, err := d.HandleSlashCommand(context.Background(), "owner-a", "sessions", "")
	require.NoError(t, err)
	assert.Contains(t, out, "sess-owner-a")
	assert.NotContains(t, out, "sess-owner-b")
}

func TestHandleSlashCommand_UnknownCommand(t *testing.T) {
	d, _ := newTestDaemon(t, nil)
	out, err := d.HandleSlashCommand(context.Background(), "owner-a", "nonsense", "")
	require.NoError(t, err)
	assert.Contains(t, out, "Unknown command")
}

func TestRecoverOnStartup_CountsInterruptedAndPending(t *testing.T) {
	d, st := newTestDaemon(t, nil)
	mustCreateSession(t, st, "owner-a", model.SessionInterrupted)
	sess := mustCreateSession(t, st, "owner-b", model.SessionActive)
	require.NoError(t, st.CreateApproval(model.ApprovalRequest{
		ID: "appr-3", SessionID: sess.ID, Title: "t", DiffContent: "x", FilePath: "a.txt",
		RiskLevel: model.RiskLow, Status: model.ApprovalPending, OriginalHash: "h", CreatedAt: time.Now().UTC(),
	}))

	summary, err := d.RecoverOnStartup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.InterruptedSessions)
	assert.Equal(t, 1, summary.PendingApprovals)
	assert.Equal(t, 0, summary.PendingPrompts)
}

func TestShutdown_InterruptsLiveSessions(t *testing.T) {
	d, st := newTestDaemon(t, nil)
	mustCreateSession(t, st, "owner-a", model.SessionActive)

	require.NoError(t, d.Shutdown(context.Background()))

	sess, err := st.GetSession("sess-owner-a")
	require.NoError(t, err)
	assert.Equal(t, model.SessionInterrupted, sess.Status)
}
