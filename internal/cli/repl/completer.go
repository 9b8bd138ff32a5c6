package repl

import (
	"sort"
	"strings"
)

// Completer provides command completion for the REPL.
type Completer struct {
	commands []string
}

// NewCompleter creates a Completer that knows the built-in commands.
func NewCompleter() *Completer {
	c := &Completer{}
	for _, name := range []string{"help", "history", "exit", "quit"} {
		c.Add(name)
	}
	return c
}

// Add registers a command name.
func (c *Completer) Add(name string) {
	i := sort.SearchStrings(c.commands, name)
	if i < len(c.commands) && c.commands[i] == name {
		return
	}
	c.commands = append(c.commands, "")
	copy(c.commands[i+1:], c.commands[i:])
	c.commands[i] = name
}

// Complete returns the sorted command names starting with prefix.
func (c *Completer) Complete(prefix string) []string {
	var suggestions []string
	for _, cmd := range c.commands {
		if strings.HasPrefix(cmd, prefix) {
			suggestions = append(suggestions, cmd)
		}
	}
	return suggestions
}
