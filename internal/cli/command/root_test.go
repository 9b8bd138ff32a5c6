package command

import (
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/sockmesh-go/internal/cli/config"
	"github.com/yndnr/sockmesh-go/internal/cli/output"
)

func TestApp(t *testing.T) {
	app := App()
	if app.Name != "sockmesh-cli" {
		t.Errorf("Name = %q, want %q", app.Name, "sockmesh-cli")
	}

	commandNames := make(map[string]bool)
	for _, cmd := range app.Commands {
		commandNames[cmd.Name] = true
	}
	for _, name := range []string{"emit", "listen", "shell", "session", "system"} {
		if !commandNames[name] {
			t.Errorf("missing command: %s", name)
		}
	}

	flagNames := make(map[string]bool)
	for _, f := range app.Flags {
		flagNames[f.Names()[0]] = true
	}
	for _, name := range []string{"server", "output", "wide", "ca-file", "insecure", "config", "verbose"} {
		if !flagNames[name] {
			t.Errorf("missing global flag: %s", name)
		}
	}
}

func TestSubcommands(t *testing.T) {
	tests := []struct {
		cmd  *cli.Command
		subs []string
	}{
		{SessionCommand(), []string{"list", "get", "disconnect", "push"}},
		{SystemCommand(), []string{"health", "status", "version"}},
	}
	for _, tt := range tests {
		t.Run(tt.cmd.Name, func(t *testing.T) {
			names := make(map[string]bool)
			for _, sub := range tt.cmd.Subcommands {
				names[sub.Name] = true
			}
			for _, name := range tt.subs {
				if !names[name] {
					t.Errorf("missing subcommand: %s", name)
				}
			}
		})
	}
}

// flagContext builds a context with the global flags parsed from args and
// cfg installed as the loaded CLI config.
func flagContext(t *testing.T, cfg *config.CLIConfig, args ...string) *cli.Context {
	t.Helper()
	app := &cli.App{Name: "test", Flags: globalFlags(), Metadata: map[string]any{}}
	if cfg != nil {
		app.Metadata[metaConfig] = cfg
	}
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	for _, f := range app.Flags {
		if err := f.Apply(set); err != nil {
			t.Fatalf("Apply() error = %v", err)
		}
	}
	if err := set.Parse(args); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return cli.NewContext(app, set, nil)
}

func TestParseGlobalFlags(t *testing.T) {
	t.Setenv("SOCKMESH_SERVER", "")
	t.Setenv("SOCKMESH_CA_FILE", "")

	cfg := config.Default()
	cfg.DefaultOutput = "yaml"
	cfg.CAFile = "/etc/sockmesh/ca.pem"
	cfg.Servers["prod"] = "https://rt.example.com"

	tests := []struct {
		name       string
		cfg        *config.CLIConfig
		args       []string
		wantServer string
		wantOutput output.Format
		wantCA     string
		wantErr    bool
	}{
		{"defaults", nil, nil, config.DefaultServer, output.FormatTable, "", false},
		{"config defaults", cfg, nil, config.DefaultServer, output.FormatYAML, "/etc/sockmesh/ca.pem", false},
		{"alias", cfg, []string{"--server", "prod"}, "https://rt.example.com", output.FormatYAML, "/etc/sockmesh/ca.pem", false},
		{"flags win", cfg, []string{"-s", "http://127.0.0.1:9", "-o", "json", "--ca-file", "ca.pem"}, "http://127.0.0.1:9", output.FormatJSON, "ca.pem", false},
		{"bad output", nil, []string{"-o", "xml"}, "", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags, err := ParseGlobalFlags(flagContext(t, tt.cfg, tt.args...))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseGlobalFlags() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if flags.Server != tt.wantServer {
				t.Errorf("Server = %q, want %q", flags.Server, tt.wantServer)
			}
			if flags.Output != tt.wantOutput {
				t.Errorf("Output = %q, want %q", flags.Output, tt.wantOutput)
			}
			if flags.CAFile != tt.wantCA {
				t.Errorf("CAFile = %q, want %q", flags.CAFile, tt.wantCA)
			}
		})
	}
}

func TestApp_LoadsConfigFile(t *testing.T) {
	ts := newTestServer(t)

	path := filepath.Join(t.TempDir(), "cli.yaml")
	cfg := config.Default()
	cfg.DefaultOutput = "json"
	cfg.Servers["local"] = ts.URL
	if err := config.Save(cfg, path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	out := &lockedBuffer{}
	app := App()
	app.Writer = out
	if err := app.Run([]string{"sockmesh-cli", "--config", path, "-s", "local", "system", "status"}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	var status StatusResult
	decodeJSON(t, out.String(), &status)
	if status.Status != "running" {
		t.Errorf("Status = %q, want running", status.Status)
	}
	if status.Presence != "enabled" {
		t.Errorf("Presence = %q, want enabled", status.Presence)
	}
}

func TestApp_BadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cli.yaml")
	if err := os.WriteFile(path, []byte("servers: [unclosed"), 0600); err != nil {
		t.Fatal(err)
	}
	app := App()
	app.Writer = &lockedBuffer{}
	app.ErrWriter = &lockedBuffer{}
	if err := app.Run([]string{"sockmesh-cli", "--config", path, "system", "version", "--client"}); err == nil {
		t.Error("Run() error = nil, want config parse error")
	}
}

func TestParseArgs(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Y", `"Y"`},
		{`"quoted"`, `"quoted"`},
		{"42", "42"},
		{`{"n":1}`, `{"n":1}`},
		{"[1,2]", "[1,2]"},
		{"true", "true"},
		{"not json{", `"not json{"`},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			args := ParseArgs([]string{tt.in})
			got, err := json.Marshal(args[0])
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("ParseArgs(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseAckWith(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "null"},
		{"[]", "[]"},
		{`"ddd"`, `["ddd"]`},
		{`["a",1]`, `["a",1]`},
		{"plain", `["plain"]`},
		{`{"ok":true}`, `[{"ok":true}]`},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := json.Marshal(parseAckWith(tt.in))
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("parseAckWith(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}
