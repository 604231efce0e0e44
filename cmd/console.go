package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/8bitsats/Alice-Eliza-Hyperfy-Agent/internal/agent"
	"github.com/8bitsats/Alice-Eliza-Hyperfy-Agent/internal/chat"
)

// consoleAgent is the part of *agent.Agent the console drives.
type consoleAgent interface {
	Snapshot(ctx context.Context) (agent.Snapshot, error)
	PlayerArrived(playerID, playerName string)
	Arrived()
	Rotate(ctx context.Context, yawDeg float64) error
	Act(ctx context.Context, action string, params map[string]any) error
	Reconnect(ctx context.Context, target string) error
}

const consoleSender = "console"

const consoleHelp = `Plain text is sent as chat from "console". Commands:
  /greet <player-id> [name]   simulate a player arriving nearby
  /arrive                     report that the last movement finished
  /rotate <degrees>           turn the agent about its vertical axis
  /act <action> [json]        send an ACTION frame, e.g. /act emote {"name":"bow"}
  /reconnect [url]            reconnect, optionally to a new backend URL
  /status                     print the agent's state
  exit                        quit
`

// runConsole reads lines until EOF, "exit" or ctx is done.
func runConsole(ctx context.Context, a consoleAgent, feed *chat.Hub, in io.Reader, out io.Writer) {
	fmt.Fprintf(out, "\nHyperfy agent console. Type /help for commands.\n\n")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if !consoleLine(ctx, a, feed, strings.TrimSpace(line), out) {
				fmt.Fprintln(out, "Goodbye!")
				return
			}
		}
	}
}

// consoleLine handles one input line and reports whether to keep going.
func consoleLine(ctx context.Context, a consoleAgent, feed *chat.Hub, line string, out io.Writer) bool {
	if line == "" {
		return true
	}
	if line == "exit" || line == "quit" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		if feed.Publish(chat.Record{From: consoleSender, FromID: consoleSender, Body: line}) == 0 {
			fmt.Fprintln(out, "Error: no chat subscriber")
		}
		return true
	}

	name, rest, _ := strings.Cut(line[1:], " ")
	rest = strings.TrimSpace(rest)
	var err error

	switch name {
	case "help":
		fmt.Fprint(out, consoleHelp)
	case "greet":
		id, playerName, _ := strings.Cut(rest, " ")
		if id == "" {
			err = fmt.Errorf("usage: /greet <player-id> [name]")
			break
		}
		a.PlayerArrived(id, strings.TrimSpace(playerName))
	case "arrive":
		a.Arrived()
	case "rotate":
		var deg float64
		if deg, err = strconv.ParseFloat(rest, 64); err != nil {
			err = fmt.Errorf("usage: /rotate <degrees>")
			break
		}
		err = a.Rotate(ctx, deg)
	case "act":
		action, raw, _ := strings.Cut(rest, " ")
		if action == "" {
			err = fmt.Errorf("usage: /act <action> [json-params]")
			break
		}
		var params map[string]any
		if raw = strings.TrimSpace(raw); raw != "" {
			if err = json.Unmarshal([]byte(raw), &params); err != nil {
				err = fmt.Errorf("params: %w", err)
				break
			}
		}
		err = a.Act(ctx, action, params)
	case "reconnect":
		err = a.Reconnect(ctx, rest)
	case "status":
		var s agent.Snapshot
		if s, err = a.Snapshot(ctx); err == nil {
			printStatus(out, s)
		}
	default:
		err = fmt.Errorf("unknown command /%s (try /help)", name)
	}

	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
	}
	return true
}

func printStatus(out io.Writer, s agent.Snapshot) {
	st := s.State
	fmt.Fprintf(out, "  Agent:       %s\n", s.ID)
	fmt.Fprintf(out, "  Backend:     %s (%s)\n", s.Connection.Target, s.Connection.Phase)
	if s.Connection.Failures > 0 {
		fmt.Fprintf(out, "  Failures:    %d\n", s.Connection.Failures)
	}
	fmt.Fprintf(out, "  Animation:   %s\n", st.Animation)
	fmt.Fprintf(out, "  Position:    %v\n", st.Position)
	fmt.Fprintf(out, "  Rotation:    %v\n", st.Rotation)
	fmt.Fprintf(out, "  Flags:       moving=%t speaking=%t thinking=%t browsing=%t greeting=%t\n",
		st.Moving, st.Speaking, st.Thinking, st.Browsing, s.Greeting)
	fmt.Fprintf(out, "  Interacting: %t\n", s.Interacting)
	fmt.Fprintf(out, "  Chat lines:  %d\n", len(st.Chat))
	fmt.Fprintf(out, "  World:       %d objects, %d players\n", s.Objects, s.Players)
}
