package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/sockmesh-go/internal/cli/connection"
	"github.com/yndnr/sockmesh-go/internal/cli/output"
	"github.com/yndnr/sockmesh-go/internal/infra/buildinfo"
	"github.com/yndnr/sockmesh-go/pkg/client"
)

const defaultAckTimeout = 5 * time.Second

// socketFlags are shared by commands that open a Socket.IO connection.
func socketFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:  "protocol",
			Usage: "Engine.IO protocol revision (3 or 4)",
			Value: 4,
		},
	}
}

// EmitCommand returns the emit command.
func EmitCommand() *cli.Command {
	return &cli.Command{
		Name:      "emit",
		Usage:     "Emit an event to the server",
		ArgsUsage: "EVENT [ARG...]",
		Description: "Each ARG is sent as JSON when it parses as JSON and as a string\n" +
			"otherwise: emit aaa Y sends [\"aaa\",\"Y\"], emit aaa '{\"n\":1}' sends an object.",
		Flags: append(socketFlags(),
			&cli.BoolFlag{
				Name:    "ack",
				Aliases: []string{"a"},
				Usage:   "Wait for the server's acknowledgement",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "How long to wait for the acknowledgement",
				Value: defaultAckTimeout,
			},
		),
		Action: emitAction,
	}
}

// ListenCommand returns the listen command.
func ListenCommand() *cli.Command {
	return &cli.Command{
		Name:  "listen",
		Usage: "Print events sent by the server until interrupted",
		Flags: append(socketFlags(),
			&cli.StringFlag{
				Name:  "ack-with",
				Usage: "JSON array (or single value) used to acknowledge events that ask for one",
			},
			&cli.IntFlag{
				Name:  "count",
				Usage: "Exit after this many events (0 means no limit)",
			},
		),
		Action: listenAction,
	}
}

// EmitResult is printed by emit.
type EmitResult struct {
	Event   string            `json:"event" yaml:"event"`
	Emitted bool              `json:"emitted" yaml:"emitted"`
	AckArgs []json.RawMessage `json:"ack_args,omitempty" yaml:"ack_args,omitempty"`
}

// EventRecord is printed by listen for every event.
type EventRecord struct {
	Time  time.Time         `json:"time" yaml:"time"`
	Event string            `json:"event" yaml:"event"`
	Args  []json.RawMessage `json:"args" yaml:"args"`
	Acked bool              `json:"acked" yaml:"acked"`
}

// ParseArgs converts command-line values to event arguments. Values that
// are valid JSON are sent as-is; anything else is sent as a string.
func ParseArgs(values []string) []any {
	args := make([]any, 0, len(values))
	for _, v := range values {
		if json.Valid([]byte(v)) {
			args = append(args, json.RawMessage(v))
			continue
		}
		args = append(args, v)
	}
	return args
}

// parseAckWith parses --ack-with. A JSON array is spread into arguments;
// any other value becomes the single argument.
func parseAckWith(value string) []any {
	if value == "" {
		return nil
	}
	if !json.Valid([]byte(value)) {
		return []any{value}
	}
	var list []json.RawMessage
	if err := json.Unmarshal([]byte(value), &list); err != nil {
		return []any{json.RawMessage(value)}
	}
	args := make([]any, len(list))
	for i, v := range list {
		args[i] = v
	}
	return args
}

// dialSocket opens a Socket.IO connection to the selected server.
func dialSocket(ctx context.Context, c *cli.Context, opts ...client.Option) (*client.Client, error) {
	flags, err := ParseGlobalFlags(c)
	if err != nil {
		return nil, err
	}
	tlsConfig, err := flags.TLSConfig()
	if err != nil {
		return nil, err
	}
	admin, err := connection.NewHTTPClient(flags.Server, tlsConfig)
	if err != nil {
		return nil, err
	}
	url, err := admin.SocketURL()
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("User-Agent", buildinfo.UserAgent("sockmesh-cli"))
	cfg := client.Config{
		URL:       url,
		Protocol:  c.Int("protocol"),
		Header:    header,
		TLSConfig: tlsConfig,
	}
	opts = append([]client.Option{client.WithLogger(flags.Logger())}, opts...)
	return client.Dial(ctx, cfg, opts...)
}

func emitAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("event name required")
	}
	event := c.Args().First()
	args := ParseArgs(c.Args().Tail())

	ctx, cancel := context.WithTimeout(c.Context, requestTimeout)
	defer cancel()

	conn, err := dialSocket(ctx, c)
	if err != nil {
		return err
	}
	defer conn.Close()

	result := EmitResult{Event: event}
	if c.Bool("ack") {
		ackCtx, ackCancel := context.WithTimeout(c.Context, c.Duration("timeout"))
		defer ackCancel()
		reply, err := conn.EmitWithAck(ackCtx, event, args...)
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("no acknowledgement for %q within %s", event, c.Duration("timeout"))
		}
		if err != nil {
			return fmt.Errorf("emit %q: %w", event, err)
		}
		result.AckArgs = reply
	} else if err := conn.Emit(event, args...); err != nil {
		return fmt.Errorf("emit %q: %w", event, err)
	}
	result.Emitted = true

	return printResult(c, result)
}

func listenAction(c *cli.Context) error {
	flags, err := ParseGlobalFlags(c)
	if err != nil {
		return err
	}
	ackArgs := parseAckWith(c.String("ack-with"))

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	records := make(chan EventRecord, 64)
	onEvent := func(event string, args []json.RawMessage, ack client.AckFunc) {
		if args == nil {
			args = []json.RawMessage{}
		}
		rec := EventRecord{Time: time.Now(), Event: event, Args: args}
		if ack != nil && ackArgs != nil {
			rec.Acked = ack(ackArgs...) == nil
		}
		select {
		case records <- rec:
		case <-ctx.Done():
		}
	}

	dialCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	conn, err := dialSocket(dialCtx, c, client.WithAnyHandler(onEvent))
	cancel()
	if err != nil {
		return err
	}
	defer conn.Close()

	if flags.Output == output.FormatTable {
		fmt.Fprintf(writer(c), "listening as %s\n", conn.ID())
	}

	limit := c.Int("count")
	for n := 0; limit == 0 || n < limit; n++ {
		select {
		case rec := <-records:
			if err := printEvent(c, flags, rec); err != nil {
				return err
			}
		case <-conn.Done():
			if errors.Is(conn.Err(), client.ErrServerDisconnect) {
				return nil
			}
			return conn.Err()
		case <-ctx.Done():
			return nil
		}
	}
	return nil
}

// printEvent writes one event: a line per event in table mode, a document
// per event otherwise.
func printEvent(c *cli.Context, flags *GlobalFlags, rec EventRecord) error {
	w := writer(c)
	if flags.Output != output.FormatTable {
		return output.NewFormatter(flags.Output, flags.Wide).Format(w, rec)
	}
	args, err := json.Marshal(rec.Args)
	if err != nil {
		return err
	}
	suffix := ""
	if rec.Acked {
		suffix = " (acked)"
	}
	_, err = fmt.Fprintf(w, "%s %s %s%s\n", rec.Time.Format(time.TimeOnly), rec.Event, args, suffix)
	return err
}
