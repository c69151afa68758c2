package daemon

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/softwaresalt/agent-intercom/internal/chat"
	"github.com/softwaresalt/agent-intercom/internal/errs"
	"github.com/softwaresalt/agent-intercom/internal/model"
	"github.com/softwaresalt/agent-intercom/internal/pathsafe"
)

// showFileLimit bounds how much of a file show-file echoes back to chat;
// Slack messages have their own size ceiling, so this is a conservative cut.
const showFileLimit = 4000

// HandleSlashCommand implements the closed slash-command set from §15.
// chat.dispatch applies only the authorization guard before this is
// reached; each command scopes itself to the caller's own sessions by
// looking them up by owner.
func (d *Daemon) HandleSlashCommand(ctx context.Context, userID, command, args string) (string, error) {
	if !chat.IsKnownCommand(command) {
		return "Unknown command. Try /intercom help.", nil
	}

	switch command {
	case "sessions":
		return d.cmdSessions(userID)
	case "session-start":
		return d.cmdSessionStart(ctx, userID, args)
	case "session-pause":
		return d.cmdSessionPause(userID)
	case "session-resume":
		return d.cmdSessionResume(userID)
	case "session-clear":
		return d.cmdSessionClear(userID)
	case "session-checkpoint":
		return d.cmdSessionCheckpoint(userID, args)
	case "session-restore":
		return d.cmdSessionRestore(userID, args)
	case "session-checkpoints":
		return d.cmdSessionCheckpoints(userID)
	case "list-files":
		return d.cmdListFiles(userID)
	case "show-file":
		return d.cmdShowFile(userID, args)
	case "help":
		return "Commands: " + strings.Join([]string{
			"sessions", "session-start <prompt>", "session-pause", "session-resume",
			"session-clear", "session-checkpoint [label]", "session-restore <id>",
			"session-checkpoints", "list-files", "show-file <path>", "help",
		}, ", "), nil
	}
	return "", errs.New(errs.Mcp, "unhandled command")
}

func (d *Daemon) cmdSessions(userID string) (string, error) {
	live, err := d.Store.ActiveSessionsByOwner(userID)
	if err != nil {
		return "", err
	}
	if len(live) == 0 {
		return "You have no active sessions.", nil
	}
	var b strings.Builder
	for _, s := range live {
		fmt.Fprintf(&b, "%s: %s (%s)\n", s.ID, s.Status, s.Mode)
	}
	return b.String(), nil
}

func (d *Daemon) cmdSessionStart(ctx context.Context, userID, prompt string) (string, error) {
	if prompt == "" {
		return "Usage: session-start <prompt>", nil
	}
	sess, err := d.Sessions.SpawnSession(ctx, prompt, d.Config.DefaultWorkspaceRoot, userID, d.Config.HTTPPort)
	if err != nil {
		return "", err
	}
	return "Started session " + sess.ID, nil
}

func (d *Daemon) callerSession(userID string, status model.SessionStatus) (*model.Session, error) {
	live, err := d.Store.ActiveSessionsByOwner(userID)
	if err != nil {
		return nil, err
	}
	for i := range live {
		if live[i].Status == status {
			return &live[i], nil
		}
	}
	return nil, nil
}

func (d *Daemon) cmdSessionPause(userID string) (string, error) {
	sess, err := d.callerSession(userID, model.SessionActive)
	if err != nil {
		return "", err
	}
	if sess == nil {
		return "You have no active session to pause.", nil
	}
	if err := d.Store.UpdateSessionStatus(sess.ID, model.SessionPaused, time.Now().UTC()); err != nil {
		return "", err
	}
	return "Paused " + sess.ID, nil
}

func (d *Daemon) cmdSessionResume(userID string) (string, error) {
	sess, err := d.callerSession(userID, model.SessionPaused)
	if err != nil {
		return "", err
	}
	if sess == nil {
		return "You have no paused session to resume.", nil
	}
	if err := d.Store.UpdateSessionStatus(sess.ID, model.SessionActive, time.Now().UTC()); err != nil {
		return "", err
	}
	return "Resumed " + sess.ID, nil
}

func (d *Daemon) cmdSessionClear(userID string) (string, error) {
	sess, err := d.Sessions.ResolveSession("", userID)
	if err != nil {
		return "", err
	}
	if err := d.Sessions.TerminateSession(sess); err != nil {
		return "", err
	}
	return "Terminated " + sess.ID, nil
}

func (d *Daemon) cmdSessionCheckpoint(userID, label string) (string, error) {
	sess, err := d.Sessions.ResolveSession("", userID)
	if err != nil {
		return "", err
	}
	cp, err := d.Checkpoint.Create(*sess, label, string(sess.Status))
	if err != nil {
		return "", err
	}
	return "Created checkpoint " + cp.ID, nil
}

func (d *Daemon) cmdSessionRestore(userID, checkpointID string) (string, error) {
	if checkpointID == "" {
		return "Usage: session-restore <checkpoint_id>", nil
	}
	cp, diffs, err := d.Checkpoint.Restore(checkpointID)
	if err != nil {
		return "", err
	}
	sess, err := d.Store.GetSession(cp.SessionID)
	if err != nil {
		return "", err
	}
	if !d.ownsSession(sess, userID) {
		return "You do not own this checkpoint's session.", nil
	}
	if len(diffs) == 0 {
		return "No divergence since checkpoint " + cp.ID, nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Divergence since %s:\n", cp.ID)
	for _, e := range diffs {
		fmt.Fprintf(&b, "%s: %s\n", e.Path, e.Kind)
	}
	return b.String(), nil
}

func (d *Daemon) cmdSessionCheckpoints(userID string) (string, error) {
	sess, err := d.Sessions.ResolveSession("", userID)
	if err != nil {
		return "", err
	}
	checkpoints, err := d.Store.CheckpointsForSession(sess.ID)
	if err != nil {
		return "", err
	}
	if len(checkpoints) == 0 {
		return "No checkpoints for this session.", nil
	}
	var b strings.Builder
	for _, cp := range checkpoints {
		fmt.Fprintf(&b, "%s %s (%s)\n", cp.ID, cp.Label, cp.CreatedAt.Format(time.RFC3339))
	}
	return b.String(), nil
}

func (d *Daemon) cmdListFiles(userID string) (string, error) {
	sess, err := d.Sessions.ResolveSession("", userID)
	if err != nil {
		return "", err
	}
	entries, err := os.ReadDir(sess.WorkspaceRoot)
	if err != nil {
		return "", errs.Wrap(errs.Diff, "cannot list workspace root", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Name() == ".intercom" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	if len(names) == 0 {
		return "Workspace is empty.", nil
	}
	return strings.Join(names, "\n"), nil
}

func (d *Daemon) cmdShowFile(userID, path string) (string, error) {
	if path == "" {
		return "Usage: show-file <path>", nil
	}
	sess, err := d.Sessions.ResolveSession("", userID)
	if err != nil {
		return "", err
	}
	resolved, err := pathsafe.Validate(path, sess.WorkspaceRoot)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", errs.Wrap(errs.Diff, "cannot read file", err)
	}
	if len(data) > showFileLimit {
		return string(data[:showFileLimit]) + "\n… (truncated)", nil
	}
	return string(data), nil
}
