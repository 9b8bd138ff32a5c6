package command

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/sockmesh-go/internal/cli/repl"
	"github.com/yndnr/sockmesh-go/pkg/client"
)

// ShellCommand returns the interactive shell command.
func ShellCommand() *cli.Command {
	return &cli.Command{
		Name:  "shell",
		Usage: "Open an interactive shell over a live connection",
		Flags: append(socketFlags(),
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "How long ack waits for the acknowledgement",
				Value: defaultAckTimeout,
			},
			&cli.StringFlag{
				Name:  "history-file",
				Usage: "Shell history file (empty disables persistence)",
				Value: repl.DefaultHistoryPath(),
			},
		),
		Action: shellAction,
	}
}

func shellAction(c *cli.Context) error {
	sh := newShell(c.Duration("timeout"))

	dialCtx, cancel := context.WithTimeout(c.Context, requestTimeout)
	conn, err := dialSocket(dialCtx, c, client.WithAnyHandler(sh.onEvent))
	cancel()
	if err != nil {
		return err
	}
	defer conn.Close()

	history := repl.NewHistory(c.String("history-file"))
	if err := history.Load(); err != nil {
		PrintError("load history: %v", err)
	}
	defer func() {
		if err := history.Save(); err != nil {
			PrintError("save history: %v", err)
		}
	}()

	in := c.App.Reader
	if in == nil {
		in = os.Stdin
	}
	return sh.run(c.Context, conn, in, writer(c), history)
}

// shell holds the state of an interactive session. Events arriving before
// the REPL starts are buffered and printed once it does.
type shell struct {
	ackTimeout time.Duration

	mu      sync.Mutex
	r       *repl.REPL
	pending []string
	replies map[string][]any
}

func newShell(ackTimeout time.Duration) *shell {
	return &shell{
		ackTimeout: ackTimeout,
		replies:    make(map[string][]any),
	}
}

// onEvent prints inbound events and answers acknowledgement requests for
// events registered with "on".
func (sh *shell) onEvent(event string, args []json.RawMessage, ack client.AckFunc) {
	sh.mu.Lock()
	reply, hasReply := sh.replies[event]
	sh.mu.Unlock()

	note := ""
	switch {
	case ack != nil && hasReply:
		if err := ack(reply...); err != nil {
			note = fmt.Sprintf(" (ack failed: %v)", err)
		} else {
			note = " (acked)"
		}
	case ack != nil:
		note = " (ack requested)"
	}
	sh.print(fmt.Sprintf("<- %s %s%s\n", event, formatArgs(args), note))
}

func (sh *shell) print(line string) {
	sh.mu.Lock()
	r := sh.r
	if r == nil {
		sh.pending = append(sh.pending, line)
	}
	sh.mu.Unlock()
	if r != nil {
		r.Printf("%s", line)
	}
}

func (sh *shell) run(ctx context.Context, conn *client.Client, in io.Reader, out io.Writer, history *repl.History) error {
	r := repl.New(in, out, repl.WithHistory(history))
	sh.register(r, conn)

	sh.mu.Lock()
	sh.r = r
	pending := sh.pending
	sh.pending = nil
	sh.mu.Unlock()

	r.Printf("connected as %s (EIO=%d), type help\n", conn.ID(), conn.Protocol())
	for _, line := range pending {
		r.Printf("%s", line)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-conn.Done():
			r.Printf("\nconnection closed: %v\n", conn.Err())
			cancel()
		case <-ctx.Done():
		}
	}()
	return r.Run(ctx)
}

func (sh *shell) register(r *repl.REPL, conn *client.Client) {
	r.Register(repl.Command{
		Name:  "emit",
		Usage: "emit EVENT [ARG...]            send an event",
		Run: func(_ context.Context, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("usage: emit EVENT [ARG...]")
			}
			return conn.Emit(args[0], ParseArgs(args[1:])...)
		},
	})
	r.Register(repl.Command{
		Name:  "ack",
		Usage: "ack EVENT [ARG...]             send an event and wait for its acknowledgement",
		Run: func(ctx context.Context, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("usage: ack EVENT [ARG...]")
			}
			ctx, cancel := context.WithTimeout(ctx, sh.ackTimeout)
			defer cancel()
			reply, err := conn.EmitWithAck(ctx, args[0], ParseArgs(args[1:])...)
			if err != nil {
				return err
			}
			r.Printf("ack %s\n", formatArgs(reply))
			return nil
		},
	})
	r.Register(repl.Command{
		Name:  "on",
		Usage: "on EVENT [ARG...]              acknowledge EVENT with ARGs",
		Run: func(_ context.Context, args []string) error {
			if len(args) == 0 {
				return sh.listReplies(r)
			}
			sh.mu.Lock()
			sh.replies[args[0]] = ParseArgs(args[1:])
			sh.mu.Unlock()
			return nil
		},
	})
	r.Register(repl.Command{
		Name:  "off",
		Usage: "off EVENT                      stop acknowledging EVENT",
		Run: func(_ context.Context, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: off EVENT")
			}
			sh.mu.Lock()
			delete(sh.replies, args[0])
			sh.mu.Unlock()
			return nil
		},
	})
	r.Register(repl.Command{
		Name:  "id",
		Usage: "id                             print the session id",
		Run: func(_ context.Context, _ []string) error {
			r.Printf("%s\n", conn.ID())
			return nil
		},
	})
}

func (sh *shell) listReplies(r *repl.REPL) error {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	events := make([]string, 0, len(sh.replies))
	for event := range sh.replies {
		events = append(events, event)
	}
	sort.Strings(events)
	for _, event := range events {
		r.Printf("%s -> %s\n", event, formatAnyArgs(sh.replies[event]))
	}
	return nil
}

func formatArgs(args []json.RawMessage) string {
	if len(args) == 0 {
		return "[]"
	}
	b, err := json.Marshal(args)
	if err != nil {
		return fmt.Sprint(args)
	}
	return string(b)
}

func formatAnyArgs(args []any) string {
	parts := make([]string, len(args))
	for i, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			parts[i] = fmt.Sprint(a)
			continue
		}
		parts[i] = string(b)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
