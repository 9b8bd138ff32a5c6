package command

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/sockmesh-go/internal/cli/connection"
	"github.com/yndnr/sockmesh-go/internal/cli/output"
)

// SessionCommand returns the session subcommand group.
func SessionCommand() *cli.Command {
	return &cli.Command{
		Name:    "session",
		Aliases: []string{"sess"},
		Usage:   "Manage connected sessions",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List connected sessions",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "presence",
						Usage: "List the shared presence store instead of this node",
					},
				},
				Action: sessionList,
			},
			{
				Name:      "get",
				Usage:     "Get session details",
				ArgsUsage: "SESSION_ID",
				Action:    sessionGet,
			},
			{
				Name:      "disconnect",
				Aliases:   []string{"kick"},
				Usage:     "Disconnect a session",
				ArgsUsage: "SESSION_ID",
				Action:    sessionDisconnect,
			},
			{
				Name:      "push",
				Usage:     "Emit an event to a session",
				ArgsUsage: "SESSION_ID EVENT [ARG...]",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "ack",
						Aliases: []string{"a"},
						Usage:   "Wait for the client's acknowledgement",
					},
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "How long the server waits for the acknowledgement",
						Value: defaultAckTimeout,
					},
				},
				Action: sessionPush,
			},
		},
	}
}

// Session is a session as returned by the admin API.
type Session struct {
	ID          string    `json:"id" yaml:"id"`
	RemoteAddr  string    `json:"remote_addr" yaml:"remote_addr"`
	UserAgent   string    `json:"user_agent,omitempty" yaml:"user_agent,omitempty" table:"wide"`
	Protocol    int       `json:"protocol" yaml:"protocol"`
	State       string    `json:"state" yaml:"state"`
	ConnectedAt time.Time `json:"connected_at" yaml:"connected_at"`
	LastActive  time.Time `json:"last_active" yaml:"last_active" table:"wide"`
	Reason      string    `json:"reason,omitempty" yaml:"reason,omitempty" table:"wide"`
	PendingAcks int       `json:"pending_acks,omitempty" yaml:"pending_acks,omitempty" table:"wide"`
}

type sessionListResponse struct {
	Items []Session `json:"items"`
	Total int       `json:"total"`
}

// PushResult is the admin API reply to push.
type PushResult struct {
	Event   string            `json:"event" yaml:"event"`
	Emitted bool              `json:"emitted" yaml:"emitted"`
	AckArgs []json.RawMessage `json:"ack_args,omitempty" yaml:"ack_args,omitempty"`
}

// DisconnectResult is the admin API reply to disconnect.
type DisconnectResult struct {
	ID     string `json:"id" yaml:"id"`
	Reason string `json:"reason" yaml:"reason"`
}

func sessionList(c *cli.Context) error {
	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Context, requestTimeout)
	defer cancel()

	path := "/admin/v1/sessions"
	if c.Bool("presence") {
		path = "/admin/v1/presence"
	}
	resp, err := client.Get(ctx, path)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	var result sessionListResponse
	if err := connection.ParseResponse(resp, &result); err != nil {
		return err
	}

	flags, err := ParseGlobalFlags(c)
	if err != nil {
		return err
	}
	if err := printResult(c, result.Items); err != nil {
		return err
	}
	if flags.Output != output.FormatTable {
		return nil
	}
	_, err = fmt.Fprintf(writer(c), "\nTotal: %d sessions\n", result.Total)
	return err
}

func sessionGet(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("session ID required")
	}
	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Context, requestTimeout)
	defer cancel()

	resp, err := client.Get(ctx, "/admin/v1/sessions/"+url.PathEscape(c.Args().First()))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	var result Session
	if err := connection.ParseResponse(resp, &result); err != nil {
		return err
	}
	return printResult(c, result)
}

func sessionDisconnect(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("session ID required")
	}
	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Context, requestTimeout)
	defer cancel()

	path := "/admin/v1/sessions/" + url.PathEscape(c.Args().First()) + "/disconnect"
	resp, err := client.Post(ctx, path, nil)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	var result DisconnectResult
	if err := connection.ParseResponse(resp, &result); err != nil {
		return err
	}
	return printResult(c, result)
}

func sessionPush(c *cli.Context) error {
	if c.NArg() < 2 {
		return fmt.Errorf("session ID and event name required")
	}
	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}

	args := make([]json.RawMessage, 0, c.NArg()-2)
	for _, a := range ParseArgs(c.Args().Slice()[2:]) {
		raw, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("encode argument: %w", err)
		}
		args = append(args, raw)
	}

	body := map[string]any{
		"event": c.Args().Get(1),
		"args":  args,
	}
	timeout := c.Duration("timeout")
	if c.Bool("ack") {
		body["ack"] = true
		body["timeout_ms"] = timeout.Milliseconds()
	}

	ctx, cancel := context.WithTimeout(c.Context, requestTimeout+timeout)
	defer cancel()

	path := "/admin/v1/sessions/" + url.PathEscape(c.Args().First()) + "/emit"
	resp, err := client.Post(ctx, path, body)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	var result PushResult
	if err := connection.ParseResponse(resp, &result); err != nil {
		return err
	}
	return printResult(c, result)
}
