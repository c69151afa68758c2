package mcptools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/softwaresalt/agent-intercom/internal/checkpoint"
	"github.com/softwaresalt/agent-intercom/internal/hasher"
	"github.com/softwaresalt/agent-intercom/internal/model"
	"github.com/softwaresalt/agent-intercom/internal/policy"
	"github.com/softwaresalt/agent-intercom/internal/registry"
	"github.com/softwaresalt/agent-intercom/internal/session"
	"github.com/softwaresalt/agent-intercom/internal/store"
)

func newTestServer(t *testing.T) (*Server, *store.Store, string) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(store.Config{Path: filepath.Join(dir, "test.db"), MaxOpenConns: 1}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ws := t.TempDir()

	mgr := session.NewManager(st, session.SpawnConfig{}, 3, zerolog.Nop())
	reg := registry.New()
	policies, err := policy.NewCache(zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { policies.Close() })
	cp := checkpoint.NewManager(st, zerolog.Nop())

	srv := NewServer(st, mgr, reg, policies, nil, cp, nil, map[string]string{"npm test": "npm test"},
		Timeouts{ApprovalSeconds: 2, PromptSeconds: 2, WaitSeconds: 2}, zerolog.Nop())

	now := time.Now().UTC()
	sess := model.Session{
		ID:            "sess-1",
		OwnerID:       model.ReservedLocalOwner,
		WorkspaceRoot: ws,
		Status:        model.SessionActive,
		Mode:          model.ModeHybrid,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, st.CreateSession(sess))

	return srv, st, ws
}

func callTool(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func decodeResult(t *testing.T, res *mcp.CallToolResult) map[string]any {
	t.Helper()
	require.NotNil(t, res)
	require.False(t, res.IsError, "tool returned an error result")
	require.Len(t, res.Content, 1)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(tc.Text), &out))
	return out
}

func TestCheckClearance_ApprovedByRendezvous(t *testing.T) {
	srv, st, ws := newTestServer(t)
	require.NoError(t, os.WriteFile(filepath.Join(ws, "a.txt"), []byte("old"), 0o644))

	req := callTool(map[string]any{
		"title":      "update a.txt",
		"diff":       "new content",
		"file_path":  "a.txt",
		"session_id": "sess-1",
	})

	resultCh := make(chan *mcp.CallToolResult, 1)
	go func() {
		res, err := srv.handleCheckClearance(context.Background(), req)
		require.NoError(t, err)
		resultCh <- res
	}()

	require.Eventually(t, func() bool {
		a, err := st.PendingApprovalForSession("sess-1")
		return err == nil && a != nil
	}, time.Second, 10*time.Millisecond)

	approval, err := st.PendingApprovalForSession("sess-1")
	require.NoError(t, err)
	require.True(t, srv.registry.ResolveApproval(approval.ID, model.ApprovalOutcome{Kind: model.OutcomeApproved}))

	res := <-resultCh
	out := decodeResult(t, res)
	require.Equal(t, "Approved", out["status"])
}

func TestCheckClearance_DuplicatePending(t *testing.T) {
	srv, _, ws := newTestServer(t)
	require.NoError(t, os.WriteFile(filepath.Join(ws, "a.txt"), []byte("old"), 0o644))

	req := callTool(map[string]any{
		"title": "update a.txt", "diff": "x", "file_path": "a.txt", "session_id": "sess-1",
	})
	go srv.handleCheckClearance(context.Background(), req)

	require.Eventually(t, func() bool {
		a, err := srv.store.PendingApprovalForSession("sess-1")
		return err == nil && a != nil
	}, time.Second, 10*time.Millisecond)

	res, err := srv.handleCheckClearance(context.Background(), req)
	require.NoError(t, err)
	require.True(t, res.IsError)
}

func TestCheckDiff_AppliesOverwrite(t *testing.T) {
	srv, st, ws := newTestServer(t)
	require.NoError(t, os.WriteFile(filepath.Join(ws, "a.txt"), []byte("old"), 0o644))

	originalHash, err := hasher.Hash(filepath.Join(ws, "a.txt"))
	require.NoError(t, err)

	approval := model.ApprovalRequest{
		ID: "req-1", SessionID: "sess-1", Title: "t", DiffContent: "new body",
		FilePath: "a.txt", RiskLevel: model.RiskLow, Status: model.ApprovalPending,
		OriginalHash: originalHash, CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, st.CreateApproval(approval))
	require.NoError(t, st.UpdateApprovalStatus("req-1", model.ApprovalApproved))

	res, err := srv.handleCheckDiff(context.Background(), callTool(map[string]any{"request_id": "req-1"}))
	require.NoError(t, err)
	out := decodeResult(t, res)
	require.Equal(t, "applied", out["status"])

	body, err := os.ReadFile(filepath.Join(ws, "a.txt"))
	require.NoError(t, err)
	require.Equal(t, "new body", string(body))
}

func TestCheckDiff_PatchConflictOnHashMismatch(t *testing.T) {
	srv, st, ws := newTestServer(t)
	require.NoError(t, os.WriteFile(filepath.Join(ws, "a.txt"), []byte("old"), 0o644))

	approval := model.ApprovalRequest{
		ID: "req-1", SessionID: "sess-1", Title: "t", DiffContent: "new body",
		FilePath: "a.txt", RiskLevel: model.RiskLow, Status: model.ApprovalPending,
		OriginalHash: "stale-hash", CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, st.CreateApproval(approval))
	require.NoError(t, st.UpdateApprovalStatus("req-1", model.ApprovalApproved))

	res, err := srv.handleCheckDiff(context.Background(), callTool(map[string]any{"request_id": "req-1"}))
	require.NoError(t, err)
	require.True(t, res.IsError)
}

func TestAutoCheck_ToolRuleApproves(t *testing.T) {
	srv, _, ws := newTestServer(t)
	require.NoError(t, os.MkdirAll(filepath.Join(ws, ".intercom"), 0o755))
	settings := `{"enabled": true, "tools": ["auto_check_demo"], "risk_level_threshold": "low"}`
	require.NoError(t, os.WriteFile(filepath.Join(ws, ".intercom", "settings.json"), []byte(settings), 0o644))

	res, err := srv.handleAutoCheck(context.Background(), callTool(map[string]any{
		"tool_name": "auto_check_demo", "session_id": "sess-1",
	}))
	require.NoError(t, err)
	out := decodeResult(t, res)
	require.Equal(t, true, out["auto_approved"])
}

func TestBroadcast_NoChatAdapterReturnsNotPosted(t *testing.T) {
	srv, _, _ := newTestServer(t)
	res, err := srv.handleBroadcast(context.Background(), callTool(map[string]any{
		"message": "hello", "session_id": "sess-1",
	}))
	require.NoError(t, err)
	out := decodeResult(t, res)
	require.Equal(t, false, out["posted"])
}

func TestPing_RequiresExactlyOneActiveSession(t *testing.T) {
	srv, _, _ := newTestServer(t)
	res, err := srv.handlePing(context.Background(), callTool(map[string]any{}))
	require.NoError(t, err)
	out := decodeResult(t, res)
	require.Equal(t, true, out["acknowledged"])
	require.Equal(t, "sess-1", out["session_id"])
}

func TestReboot_CleanWhenNoInterruptedSession(t *testing.T) {
	srv, _, _ := newTestServer(t)
	res, err := srv.handleReboot(context.Background(), callTool(map[string]any{}))
	require.NoError(t, err)
	out := decodeResult(t, res)
	require.Equal(t, "clean", out["status"])
}
