package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/softwaresalt/agent-intercom/internal/errs"
	"github.com/softwaresalt/agent-intercom/internal/model"
	"github.com/softwaresalt/agent-intercom/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	st, err := store.Open(store.Config{Path: path}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestResolveSession_UnauthorizedForOtherOwner(t *testing.T) {
	st := newTestStore(t)
	m := NewManager(st, SpawnConfig{HostCLI: "true"}, 3, zerolog.Nop())

	sess, err := m.SpawnSession(context.Background(), "do work", t.TempDir(), "user-a", 0)
	require.NoError(t, err)

	_, err = m.ResolveSession(sess.ID, "user-b")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.Unauthorized))
}

func TestResolveSession_FallsBackToMostRecentActive(t *testing.T) {
	st := newTestStore(t)
	m := NewManager(st, SpawnConfig{HostCLI: "true"}, 3, zerolog.Nop())

	sess, err := m.SpawnSession(context.Background(), "do work", t.TempDir(), "user-a", 0)
	require.NoError(t, err)

	found, err := m.ResolveSession("", "user-a")
	require.NoError(t, err)
	assert.Equal(t, sess.ID, found.ID)
}

func TestResolveSession_AutoCreatesForPrimaryAgent(t *testing.T) {
	st := newTestStore(t)
	root := t.TempDir()
	m := NewManager(st, SpawnConfig{DefaultWorkspaceRoot: root}, 3, zerolog.Nop())

	found, err := m.ResolveSession("", model.ReservedLocalOwner)
	require.NoError(t, err)
	assert.Equal(t, model.ReservedLocalOwner, found.OwnerID)
	assert.Equal(t, root, found.WorkspaceRoot)
	assert.Equal(t, model.SessionActive, found.Status)
}

func TestResolveSession_AutoCreateLeavesPausedPrimarySession(t *testing.T) {
	st := newTestStore(t)
	root := t.TempDir()
	m := NewManager(st, SpawnConfig{DefaultWorkspaceRoot: root}, 3, zerolog.Nop())

	now := time.Now().UTC()
	stalePaused := model.Session{
		ID:            "stale-session",
		OwnerID:       model.ReservedLocalOwner,
		WorkspaceRoot: root,
		Status:        model.SessionPaused,
		Mode:          model.ModeHybrid,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, st.CreateSession(stalePaused))

	fresh, err := m.ResolveSession("", model.ReservedLocalOwner)
	require.NoError(t, err)
	assert.NotEqual(t, stalePaused.ID, fresh.ID)
	assert.Equal(t, model.SessionActive, fresh.Status)

	stale, err := st.GetSession(stalePaused.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionPaused, stale.Status)
}

func TestSpawnSession_EnforcesConcurrentCap(t *testing.T) {
	st := newTestStore(t)
	m := NewManager(st, SpawnConfig{HostCLI: "true"}, 1, zerolog.Nop())

	_, err := m.SpawnSession(context.Background(), "first", t.TempDir(), "user-a", 0)
	require.NoError(t, err)

	_, err = m.SpawnSession(context.Background(), "second", t.TempDir(), "user-b", 0)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.Config))
}

func TestSpawnSession_NoHostCLIConfigured(t *testing.T) {
	st := newTestStore(t)
	m := NewManager(st, SpawnConfig{}, 3, zerolog.Nop())

	_, err := m.SpawnSession(context.Background(), "prompt", t.TempDir(), "user-a", 0)
	require.Error(t, err)
}

func TestTerminateSession_ForceKillsAfterGrace(t *testing.T) {
	st := newTestStore(t)
	m := NewManager(st, SpawnConfig{HostCLI: "sleep", HostCLIArgs: []string{"30"}}, 3, zerolog.Nop())

	sess, err := m.SpawnSession(context.Background(), "prompt", t.TempDir(), "user-a", 0)
	require.NoError(t, err)

	start := time.Now()
	err = m.TerminateSession(sess)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*terminateGrace)

	got, err := st.GetSession(sess.ID)
	require.NoError(t, err)
	require.NotNil(t, got.TerminatedAt)
}
