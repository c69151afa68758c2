package ipc

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeHandler struct {
	approved []string
	rejected []string
	resumed  []string
	modes    []string
}

func (f *fakeHandler) List(ctx context.Context) (any, error) {
	return map[string]int{"sessions": 1}, nil
}

func (f *fakeHandler) Approve(ctx context.Context, id, reason string) (string, error) {
	f.approved = append(f.approved, id)
	return "approved " + id, nil
}

func (f *fakeHandler) Reject(ctx context.Context, id, reason string) (string, error) {
	f.rejected = append(f.rejected, id)
	return "rejected " + id, nil
}

func (f *fakeHandler) Resume(ctx context.Context, instruction string) (string, error) {
	f.resumed = append(f.resumed, instruction)
	return "resumed", nil
}

func (f *fakeHandler) SetMode(ctx context.Context, mode string) (string, error) {
	f.modes = append(f.modes, mode)
	return "mode set to " + mode, nil
}

func startTestServer(t *testing.T, handler Handler, token string) (*Server, string) {
	t.Helper()
	sockPath := filepath.Join(t.TempDir(), "agent-intercom.sock")
	srv := New(sockPath, handler, token, zerolog.Nop())
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		srv.Serve(ctx)
		close(done)
	}()

	t.Cleanup(func() {
		cancel()
		srv.Close()
		<-done
	})

	return srv, sockPath
}

func TestServer_RoutesCommands(t *testing.T) {
	h := &fakeHandler{}
	_, sockPath := startTestServer(t, h, "")
	client := NewClient(sockPath, "")
	ctx := context.Background()

	resp, err := client.Do(ctx, Request{Command: CommandApprove, ID: "req-1"})
	require.NoError(t, err)
	require.True(t, resp.OK)
	require.Equal(t, []string{"req-1"}, h.approved)

	resp, err = client.Do(ctx, Request{Command: CommandReject, ID: "req-2", Reason: "bad diff"})
	require.NoError(t, err)
	require.True(t, resp.OK)
	require.Equal(t, []string{"req-2"}, h.rejected)

	resp, err = client.Do(ctx, Request{Command: CommandResume, Instruction: "keep going"})
	require.NoError(t, err)
	require.True(t, resp.OK)
	require.Equal(t, []string{"keep going"}, h.resumed)

	resp, err = client.Do(ctx, Request{Command: CommandMode, Mode: "local"})
	require.NoError(t, err)
	require.True(t, resp.OK)
	require.Equal(t, []string{"local"}, h.modes)

	resp, err = client.Do(ctx, Request{Command: CommandList})
	require.NoError(t, err)
	require.True(t, resp.OK)
}

func TestServer_UnknownCommand(t *testing.T) {
	h := &fakeHandler{}
	_, sockPath := startTestServer(t, h, "")
	client := NewClient(sockPath, "")

	resp, err := client.Do(context.Background(), Request{Command: "bogus"})
	require.NoError(t, err)
	require.False(t, resp.OK)
	require.Contains(t, resp.Error, "unknown command")
}

func TestServer_RejectsMissingOrWrongToken(t *testing.T) {
	h := &fakeHandler{}
	_, sockPath := startTestServer(t, h, "s3cr3t")
	client := NewClient(sockPath, "")

	resp, err := client.Do(context.Background(), Request{Command: CommandList})
	require.NoError(t, err)
	require.False(t, resp.OK)
	require.Equal(t, "unauthorized", resp.Error)

	resp, err = client.Do(context.Background(), Request{Command: CommandList, AuthToken: "wrong"})
	require.NoError(t, err)
	require.False(t, resp.OK)
	require.Equal(t, "unauthorized", resp.Error)
}

func TestServer_AcceptsCorrectToken(t *testing.T) {
	h := &fakeHandler{}
	_, sockPath := startTestServer(t, h, "s3cr3t")
	client := NewClient(sockPath, "s3cr3t")

	resp, err := client.Do(context.Background(), Request{Command: CommandList})
	require.NoError(t, err)
	require.True(t, resp.OK)
}

func TestServer_MalformedLine(t *testing.T) {
	h := &fakeHandler{}
	_, sockPath := startTestServer(t, h, "")

	var dialer net.Dialer
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, err := dialer.DialContext(ctx, "unix", sockPath)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("not json\n"))
	require.NoError(t, err)

	buf := make([]byte, 256)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	require.Contains(t, string(buf[:n]), "malformed request")
}
