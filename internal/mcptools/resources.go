package mcptools

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/softwaresalt/agent-intercom/internal/errs"
)

// handleReadRecent implements the slack://channel/{id}/recent[?limit=N]
// resource (§6): limit clamps to [1, 100], and the channel id in the URI
// must match the adapter's effective channel.
func (s *Server) handleReadRecent(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	if s.chatAdp == nil {
		return nil, errs.New(errs.Chat, "no chat adapter connected")
	}

	u, err := url.Parse(request.Params.URI)
	if err != nil {
		return nil, errs.Wrap(errs.Mcp, "cannot parse resource uri", err)
	}

	channelID := strings.TrimSuffix(strings.TrimPrefix(u.Path, "/"), "/recent")
	channelID = strings.TrimPrefix(channelID, "channel/")
	if channelID == "" || channelID != s.chatAdp.ChannelID() {
		return nil, errs.New(errs.Mcp, "channel id does not match the session's effective channel")
	}

	limit := 20
	if raw := u.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	if limit < 1 {
		limit = 1
	}
	if limit > 100 {
		limit = 100
	}

	messages, hasMore, err := s.chatAdp.FetchRecent(limit)
	if err != nil {
		return nil, err
	}

	payload := toolJSON(map[string]any{
		"messages": messages,
		"has_more": hasMore,
	})

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     payload,
		},
	}, nil
}
