package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// DefaultPrompt is printed before each line.
const DefaultPrompt = "sockmesh> "

// ErrExit ends Run without error when returned by a command.
var ErrExit = errors.New("repl: exit")

// Command is a shell command.
type Command struct {
	Name  string
	Usage string
	Run   func(ctx context.Context, args []string) error
}

// Option configures a REPL.
type Option func(*REPL)

// WithPrompt sets the prompt.
func WithPrompt(prompt string) Option {
	return func(r *REPL) {
		r.prompt = prompt
	}
}

// WithHistory sets the history store.
func WithHistory(h *History) Option {
	return func(r *REPL) {
		if h != nil {
			r.history = h
		}
	}
}

// REPL represents the Read-Eval-Print Loop.
type REPL struct {
	input     io.Reader
	output    io.Writer
	prompt    string
	commands  map[string]Command
	completer *Completer
	history   *History

	outMu sync.Mutex
}

// New creates a REPL reading from in and writing to out.
func New(in io.Reader, out io.Writer, opts ...Option) *REPL {
	r := &REPL{
		input:     in,
		output:    out,
		prompt:    DefaultPrompt,
		commands:  make(map[string]Command),
		completer: NewCompleter(),
		history:   NewHistory(""),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a command, replacing any command with the same name.
func (r *REPL) Register(cmd Command) {
	r.commands[cmd.Name] = cmd
	r.completer.Add(cmd.Name)
}

// Printf writes to the REPL output. It is safe to call from other
// goroutines while Run is reading input.
func (r *REPL) Printf(format string, args ...any) {
	r.outMu.Lock()
	defer r.outMu.Unlock()
	fmt.Fprintf(r.output, format, args...)
}

// History returns the history store.
func (r *REPL) History() *History {
	return r.history
}

// Run reads and executes lines until EOF, exit, or ctx is done. Command
// errors are printed and do not stop the loop.
func (r *REPL) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(r.input)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		r.Printf("%s", r.prompt)

		var line string
		select {
		case <-ctx.Done():
			r.Printf("\n")
			return nil
		case err := <-readErr:
			r.Printf("\n")
			return err
		case line = <-lines:
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		r.history.Add(line)

		err := r.execute(ctx, line)
		if errors.Is(err, ErrExit) {
			return nil
		}
		if err != nil {
			r.Printf("error: %v\n", err)
		}
	}
}

func (r *REPL) execute(ctx context.Context, line string) error {
	args, err := SplitArgs(line)
	if err != nil {
		return err
	}
	name, args := args[0], args[1:]

	switch name {
	case "exit", "quit":
		return ErrExit
	case "help":
		r.printHelp()
		return nil
	case "history":
		for i, entry := range r.history.Entries() {
			r.Printf("%4d  %s\n", i+1, entry)
		}
		return nil
	}

	cmd, ok := r.commands[name]
	if !ok {
		if suggestions := r.completer.Complete(name); len(suggestions) > 0 {
			return fmt.Errorf("unknown command %q (did you mean %s?)", name, strings.Join(suggestions, ", "))
		}
		return fmt.Errorf("unknown command %q, type help", name)
	}
	return cmd.Run(ctx, args)
}

func (r *REPL) printHelp() {
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		usage := r.commands[name].Usage
		if usage == "" {
			usage = name
		}
		r.Printf("  %s\n", usage)
	}
	r.Printf("  history\n  help\n  exit\n")
}

// SplitArgs splits line on whitespace. Quoted strings and balanced {} or
// [] groups stay in one argument; double quotes are kept so JSON strings
// survive, single quotes are removed.
func SplitArgs(line string) ([]string, error) {
	var (
		args    []string
		cur     strings.Builder
		depth   int
		quote   rune
		escaped bool
		started bool
	)

	flush := func() {
		if started {
			args = append(args, cur.String())
			cur.Reset()
			started = false
		}
	}

	for _, ch := range line {
		switch {
		case escaped:
			cur.WriteRune(ch)
			escaped = false
		case quote != 0:
			if ch == '\\' && quote == '"' {
				cur.WriteRune(ch)
				escaped = true
				continue
			}
			if ch == quote {
				quote = 0
				if ch == '\'' {
					continue
				}
			}
			cur.WriteRune(ch)
		case ch == '"' || ch == '\'':
			quote = ch
			started = true
			if ch == '"' {
				cur.WriteRune(ch)
			}
		case ch == '{' || ch == '[':
			depth++
			started = true
			cur.WriteRune(ch)
		case ch == '}' || ch == ']':
			if depth == 0 {
				return nil, fmt.Errorf("unbalanced %q", ch)
			}
			depth--
			cur.WriteRune(ch)
		case depth == 0 && (ch == ' ' || ch == '\t'):
			flush()
		default:
			started = true
			cur.WriteRune(ch)
		}
	}
	if quote != 0 {
		return nil, errors.New("unterminated quote")
	}
	if depth != 0 {
		return nil, errors.New("unbalanced brackets")
	}
	flush()
	if len(args) == 0 {
		return nil, errors.New("empty command")
	}
	return args, nil
}
