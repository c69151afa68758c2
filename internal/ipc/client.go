package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"net"

	"github.com/softwaresalt/agent-intercom/internal/errs"
)

// Client is a thin synchronous request/response client for the IPC
// socket, used by intercomctl. Unlike the chat adapter's long-lived
// connection, each invocation of the CLI opens a fresh connection, sends
// one request, reads one response, and closes.
type Client struct {
	socketPath string
	authToken  string
}

// NewClient constructs a Client bound to socketPath.
func NewClient(socketPath, authToken string) *Client {
	return &Client{socketPath: socketPath, authToken: authToken}
}

// Do dials the socket, sends req, and returns the decoded response.
func (c *Client) Do(ctx context.Context, req Request) (Response, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return Response{}, errs.Wrap(errs.Ipc, "cannot connect to daemon", err)
	}
	defer conn.Close()

	if req.AuthToken == "" {
		req.AuthToken = c.authToken
	}

	line, err := json.Marshal(req)
	if err != nil {
		return Response{}, errs.Wrap(errs.Ipc, "cannot encode request", err)
	}
	if _, err := conn.Write(append(line, '\n')); err != nil {
		return Response{}, errs.Wrap(errs.Ipc, "cannot send request", err)
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return Response{}, errs.Wrap(errs.Ipc, "cannot read response", err)
		}
		return Response{}, errs.New(errs.Ipc, "daemon closed connection without responding")
	}

	var resp Response
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		return Response{}, errs.Wrap(errs.Ipc, "cannot decode response", err)
	}
	return resp, nil
}
