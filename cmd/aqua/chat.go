package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

const chatHelp = `Commands:
  /new          start a new conversation
  /history      list previous conversations
  /open <id>    continue a previous conversation
  /status       show subscription status
  /trial on|off toggle the local trial
  /quit         leave`

func newChatCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, f, func(ctx context.Context, a *app) error {
				return a.repl(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
			})
		},
	}
}

// repl reads lines from in until EOF or /quit. Errors from single actions
// are printed and the loop continues.
func (a *app) repl(ctx context.Context, in io.Reader, out io.Writer) error {
	fmt.Fprintf(out, "Connected to %s. Type /help for commands.\n", a.api.BaseURL())
	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			if err := a.send(ctx, out, line); err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			}
			continue
		}
		quit, err := a.command(ctx, out, line)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
		if quit {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (a *app) command(ctx context.Context, out io.Writer, line string) (bool, error) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Fprintln(out, chatHelp)
	case "/new":
		a.mgr.Clear()
		fmt.Fprintln(out, "Started a new conversation.")
	case "/history":
		list, err := a.mgr.LoadHistoryList(ctx)
		if err != nil {
			return false, explain(err)
		}
		printHistory(out, list)
	case "/open":
		if len(fields) != 2 {
			return false, fmt.Errorf("usage: /open <id>")
		}
		if err := a.mgr.OpenConversation(ctx, fields[1]); err != nil {
			return false, explain(err)
		}
		a.printTurns(out, a.mgr.Snapshot().Turns)
	case "/status":
		printStatus(out, a.mgr.Snapshot())
	case "/trial":
		if len(fields) != 2 || (fields[1] != "on" && fields[1] != "off") {
			return false, fmt.Errorf("usage: /trial on|off")
		}
		a.mgr.SetTrialOverride(fields[1] == "on")
		fmt.Fprintf(out, "Trial %s.\n", fields[1])
	default:
		return false, fmt.Errorf("unknown command %s", fields[0])
	}
	return false, nil
}
