package repl

import (
	"bytes"
	"context"
	"errors"
	"io"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"
)

// syncBuffer is a bytes.Buffer safe for the REPL's concurrent writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestREPL_Run_Exit(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"exit command", "exit\n"},
		{"quit command", "quit\n"},
		{"EOF", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &syncBuffer{}
			r := New(strings.NewReader(tt.input), out)
			if err := r.Run(context.Background()); err != nil {
				t.Errorf("Run() error = %v", err)
			}
			if !strings.HasPrefix(out.String(), DefaultPrompt) {
				t.Errorf("output = %q, want prompt", out.String())
			}
		})
	}
}

func TestREPL_Run_Commands(t *testing.T) {
	var got [][]string
	out := &syncBuffer{}
	r := New(strings.NewReader("\n\nemit news {\"a\": 1} 'two words'\nboom\nnope\nemi\nexit\nemit after\n"), out,
		WithPrompt("> "))
	r.Register(Command{
		Name:  "emit",
		Usage: "emit EVENT [JSON...]",
		Run: func(_ context.Context, args []string) error {
			got = append(got, args)
			return nil
		},
	})
	r.Register(Command{
		Name: "boom",
		Run: func(context.Context, []string) error {
			return errors.New("exploded")
		},
	})

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := [][]string{{"news", `{"a": 1}`, "two words"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("emit args = %q, want %q", got, want)
	}
	output := out.String()
	for _, s := range []string{"error: exploded", `unknown command "nope"`, "did you mean emit"} {
		if !strings.Contains(output, s) {
			t.Errorf("output missing %q:\n%s", s, output)
		}
	}
	if h := r.History().Entries(); len(h) != 5 {
		t.Errorf("history = %q, want 5 entries", h)
	}
}

func TestREPL_Run_CommandExit(t *testing.T) {
	r := New(strings.NewReader("leave\nnever\n"), io.Discard)
	ran := false
	r.Register(Command{Name: "leave", Run: func(context.Context, []string) error { return ErrExit }})
	r.Register(Command{Name: "never", Run: func(context.Context, []string) error { ran = true; return nil }})

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if ran {
		t.Error("command after ErrExit ran")
	}
}

func TestREPL_Run_ContextCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(pr, io.Discard).Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestREPL_Help(t *testing.T) {
	out := &syncBuffer{}
	r := New(strings.NewReader("help\n"), out)
	r.Register(Command{Name: "listen", Usage: "on EVENT"})
	r.Run(context.Background())

	for _, s := range []string{"on EVENT", "history", "exit"} {
		if !strings.Contains(out.String(), s) {
			t.Errorf("help missing %q", s)
		}
	}
}

func TestSplitArgs(t *testing.T) {
	tests := []struct {
		line    string
		want    []string
		wantErr bool
	}{
		{"emit ccc", []string{"emit", "ccc"}, false},
		{"  emit   ccc  ", []string{"emit", "ccc"}, false},
		{`emit aaa "hello world"`, []string{"emit", "aaa", `"hello world"`}, false},
		{`emit aaa 'plain text'`, []string{"emit", "aaa", "plain text"}, false},
		{`emit aaa {"k": [1, 2]} [3, 4]`, []string{"emit", "aaa", `{"k": [1, 2]}`, "[3, 4]"}, false},
		{`emit aaa {"k": "}"}`, []string{"emit", "aaa", `{"k": "}"}`}, false},
		{`emit aaa "esc \" q"`, []string{"emit", "aaa", `"esc \" q"`}, false},
		{`emit "open`, nil, true},
		{`emit {"a": 1`, nil, true},
		{`emit ]`, nil, true},
		{"   ", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := SplitArgs(tt.line)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SplitArgs(%q) error = %v, wantErr %v", tt.line, err, tt.wantErr)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SplitArgs(%q) = %q, want %q", tt.line, got, tt.want)
			}
		})
	}
}

func TestCompleter(t *testing.T) {
	c := NewCompleter()
	c.Add("emit")
	c.Add("emit")
	c.Add("ack")

	tests := []struct {
		prefix string
		want   []string
	}{
		{"e", []string{"emit", "exit"}},
		{"h", []string{"help", "history"}},
		{"a", []string{"ack"}},
		{"z", nil},
	}
	for _, tt := range tests {
		if got := c.Complete(tt.prefix); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Complete(%q) = %v, want %v", tt.prefix, got, tt.want)
		}
	}
}
