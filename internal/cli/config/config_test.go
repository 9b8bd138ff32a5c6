package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.DefaultServer != DefaultServer {
		t.Errorf("DefaultServer = %q, want %q", cfg.DefaultServer, DefaultServer)
	}
	if cfg.DefaultOutput != "table" {
		t.Errorf("DefaultOutput = %q, want table", cfg.DefaultOutput)
	}
	if cfg.Servers == nil {
		t.Error("Servers should not be nil")
	}
}

func TestDefaultConfigPath(t *testing.T) {
	path := DefaultConfigPath()
	if !strings.HasSuffix(path, filepath.Join(".sockmesh", "cli.yaml")) {
		t.Errorf("DefaultConfigPath() = %q", path)
	}
}

func TestLoad_NonExistentFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DefaultServer != DefaultServer {
		t.Errorf("DefaultServer = %q, want default", cfg.DefaultServer)
	}
}

func TestLoad_PartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cli.yaml")
	content := "default_output: json\nservers:\n  local: unix:///tmp/admin.sock\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DefaultOutput != "json" {
		t.Errorf("DefaultOutput = %q, want json", cfg.DefaultOutput)
	}
	if cfg.DefaultServer != DefaultServer {
		t.Errorf("DefaultServer = %q, want default kept", cfg.DefaultServer)
	}
	if cfg.Servers["local"] != "unix:///tmp/admin.sock" {
		t.Errorf("Servers = %v", cfg.Servers)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cli.yaml")
	os.WriteFile(path, []byte("servers: [unclosed"), 0o600)

	if _, err := Load(path); err == nil {
		t.Error("Load() error = nil, want parse error")
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cli.yaml")
	cfg := Default()
	cfg.CAFile = "/etc/sockmesh/ca.pem"
	cfg.Servers["prod"] = "https://rt.example.com"

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("mode = %o, want 600", perm)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.CAFile != cfg.CAFile || loaded.Servers["prod"] != "https://rt.example.com" {
		t.Errorf("loaded = %+v", loaded)
	}
}

func TestResolveServer(t *testing.T) {
	cfg := Default()
	cfg.Servers["local"] = "unix:///tmp/admin.sock"

	tests := []struct {
		in   string
		want string
	}{
		{"", DefaultServer},
		{"local", "unix:///tmp/admin.sock"},
		{"localhost:3000", "localhost:3000"},
	}
	for _, tt := range tests {
		if got := cfg.ResolveServer(tt.in); got != tt.want {
			t.Errorf("ResolveServer(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
