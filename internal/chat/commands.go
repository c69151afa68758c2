package chat

import "strings"

// parseSlashCommand splits a Slack slash command invocation into a
// subcommand name and its remaining argument text. The app registers a
// single slash command (conventionally /intercom); the subcommand is the
// first whitespace-delimited token of the command text, per §6's list:
// sessions, session-start, session-pause, session-resume, session-clear,
// session-checkpoint, session-restore, session-checkpoints, list-files,
// show-file, help.
func parseSlashCommand(registeredCommand, text string) (name, args string) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "help", ""
	}
	fields := strings.SplitN(trimmed, " ", 2)
	name = fields[0]
	if len(fields) == 2 {
		args = strings.TrimSpace(fields[1])
	}
	return name, args
}

// knownCommands is the closed set of slash subcommands §6 defines; used by
// the Handler implementation to validate before dispatch and by help text.
var knownCommands = []string{
	"sessions",
	"session-start",
	"session-pause",
	"session-resume",
	"session-clear",
	"session-checkpoint",
	"session-restore",
	"session-checkpoints",
	"list-files",
	"show-file",
	"help",
}

// IsKnownCommand reports whether name is one of the closed slash command set.
func IsKnownCommand(name string) bool {
	for _, c := range knownCommands {
		if c == name {
			return true
		}
	}
	return false
}
