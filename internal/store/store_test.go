package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/softwaresalt/agent-intercom/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	st, err := Open(Config{Path: filepath.Join(dir, "test.db"), MaxOpenConns: 1}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestSessionCRUD_RoundTrip(t *testing.T) {
	st := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	sess := model.Session{
		ID:            "sess-1",
		OwnerID:       model.ReservedLocalOwner,
		WorkspaceRoot: "/tmp/ws",
		Status:        model.SessionCreated,
		Mode:          model.ModeHybrid,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, st.CreateSession(sess))

	got, err := st.GetSession("sess-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, model.SessionCreated, got.Status)

	require.NoError(t, st.UpdateSessionStatus("sess-1", model.SessionActive, now))
	got, err = st.GetSession("sess-1")
	require.NoError(t, err)
	require.Equal(t, model.SessionActive, got.Status)
	require.Nil(t, got.TerminatedAt)

	require.NoError(t, st.UpdateSessionStatus("sess-1", model.SessionTerminated, now))
	got, err = st.GetSession("sess-1")
	require.NoError(t, err)
	require.Equal(t, model.SessionTerminated, got.Status)
	require.NotNil(t, got.TerminatedAt)
}

func TestApproval_SinglePendingInvariant(t *testing.T) {
	st := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	sess := model.Session{ID: "s1", OwnerID: "agent:local", WorkspaceRoot: "/tmp/ws", Status: model.SessionActive, Mode: model.ModeLocal, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, st.CreateSession(sess))

	approval := model.ApprovalRequest{
		ID: "a1", SessionID: "s1", Title: "rename", DiffContent: "new",
		FilePath: "src/a.rs", RiskLevel: model.RiskLow, Status: model.ApprovalPending,
		OriginalHash: "deadbeef", CreatedAt: now,
	}
	require.NoError(t, st.CreateApproval(approval))

	pending, err := st.PendingApprovalForSession("s1")
	require.NoError(t, err)
	require.NotNil(t, pending)
	require.Equal(t, "a1", pending.ID)

	require.NoError(t, st.UpdateApprovalStatus("a1", model.ApprovalApproved))
	require.NoError(t, st.ConsumeApproval("a1", now.Format(time.RFC3339)))

	err = st.ConsumeApproval("a1", now.Format(time.RFC3339))
	require.Error(t, err)
}

func TestStallAlert_OpenLookup(t *testing.T) {
	st := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)
	sess := model.Session{ID: "s2", OwnerID: "agent:local", WorkspaceRoot: "/tmp/ws", Status: model.SessionActive, Mode: model.ModeLocal, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, st.CreateSession(sess))

	alert := model.StallAlert{ID: "alert-1", SessionID: "s2", LastActivityAt: now, IdleSeconds: 5, Status: model.StallPending, CreatedAt: now}
	require.NoError(t, st.CreateStallAlert(alert))

	open, err := st.OpenStallAlertForSession("s2")
	require.NoError(t, err)
	require.NotNil(t, open)

	require.NoError(t, st.UpdateStallStatus("alert-1", model.StallEscalated, 2))
	open, err = st.OpenStallAlertForSession("s2")
	require.NoError(t, err)
	require.Nil(t, open)
}

func TestRetentionPurge_DeletesOnlyOldTerminated(t *testing.T) {
	st := newTestStore(t)
	old := time.Now().UTC().Add(-60 * 24 * time.Hour)
	recent := time.Now().UTC().Add(-1 * time.Hour)

	oldSess := model.Session{ID: "old", OwnerID: "agent:local", WorkspaceRoot: "/tmp/ws", Status: model.SessionTerminated, Mode: model.ModeLocal, CreatedAt: old, UpdatedAt: old, TerminatedAt: &old}
	recentSess := model.Session{ID: "recent", OwnerID: "agent:local", WorkspaceRoot: "/tmp/ws", Status: model.SessionTerminated, Mode: model.ModeLocal, CreatedAt: recent, UpdatedAt: recent, TerminatedAt: &recent}
	require.NoError(t, st.CreateSession(oldSess))
	require.NoError(t, st.CreateSession(recentSess))

	st.purgeOnce(30, zerolog.Nop())

	got, err := st.GetSession("old")
	require.NoError(t, err)
	require.Nil(t, got)

	got, err = st.GetSession("recent")
	require.NoError(t, err)
	require.NotNil(t, got)
}
