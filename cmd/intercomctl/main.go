// Command intercomctl is the local companion CLI for an operator who is
// not on Slack: it talks to agent-intercomd over the same Unix domain
// socket the daemon's IPC listener serves (§4.9, §6).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/softwaresalt/agent-intercom/internal/ipc"
)

func main() {
	ipcName := flag.String("ipc-name", "agent-intercom", "ipc_name the target daemon was configured with")
	reason := flag.String("reason", "", "reason text for reject")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(2)
	}

	token, err := os.ReadFile(ipc.TokenPath(*ipcName))
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot read ipc token (is agent-intercomd running?): %v\n", err)
		os.Exit(1)
	}

	client := ipc.NewClient(ipc.SocketPath(*ipcName), strings.TrimSpace(string(token)))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := buildRequest(args, *reason)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		printUsage()
		os.Exit(2)
	}

	resp, err := client.Do(ctx, req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "request failed: %v\n", err)
		os.Exit(1)
	}
	if !resp.OK {
		fmt.Fprintf(os.Stderr, "daemon error: %s\n", resp.Error)
		os.Exit(1)
	}

	printResponse(resp.Data)
}

func buildRequest(args []string, reason string) (ipc.Request, error) {
	switch args[0] {
	case "list":
		return ipc.Request{Command: ipc.CommandList}, nil
	case "approve":
		if len(args) < 2 {
			return ipc.Request{}, fmt.Errorf("approve requires an id")
		}
		return ipc.Request{Command: ipc.CommandApprove, ID: args[1]}, nil
	case "reject":
		if len(args) < 2 {
			return ipc.Request{}, fmt.Errorf("reject requires an id")
		}
		return ipc.Request{Command: ipc.CommandReject, ID: args[1], Reason: reason}, nil
	case "resume":
		instruction := ""
		if len(args) > 1 {
			instruction = strings.Join(args[1:], " ")
		}
		return ipc.Request{Command: ipc.CommandResume, Instruction: instruction}, nil
	case "mode":
		if len(args) < 2 {
			return ipc.Request{}, fmt.Errorf("mode requires one of remote, local, hybrid")
		}
		return ipc.Request{Command: ipc.CommandMode, Mode: args[1]}, nil
	default:
		return ipc.Request{}, fmt.Errorf("unknown command %q", args[0])
	}
}

func printResponse(data any) {
	if data == nil {
		fmt.Println("ok")
		return
	}
	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		fmt.Printf("%v\n", data)
		return
	}
	fmt.Println(string(encoded))
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `usage: intercomctl [--ipc-name NAME] <command> [args]

commands:
  list                       show live sessions and pending approvals/prompts
  approve <id>               approve a pending request
  reject <id> [--reason ..]  reject a pending request
  resume [instruction]       resume the standing-by local session
  mode <remote|local|hybrid> set the active session's delivery mode`)
}
