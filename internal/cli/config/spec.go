package config

// DefaultServer is the server address used when nothing else is set.
const DefaultServer = "http://localhost:3000"

// CLIConfig is the configuration for sockmesh-cli.
type CLIConfig struct {
	DefaultServer string `yaml:"default_server"`
	DefaultOutput string `yaml:"default_output"` // table, json, yaml

	// CAFile verifies https servers in addition to the system roots.
	CAFile string `yaml:"ca_file,omitempty"`

	// Servers maps alias names to server addresses.
	Servers map[string]string `yaml:"servers,omitempty"`
}

// Default returns the default CLI configuration.
func Default() *CLIConfig {
	return &CLIConfig{
		DefaultServer: DefaultServer,
		DefaultOutput: "table",
		Servers:       make(map[string]string),
	}
}

// ResolveServer expands an alias to its address. Other values are
// returned unchanged; an empty value yields the default server.
func (c *CLIConfig) ResolveServer(server string) string {
	if server == "" {
		server = c.DefaultServer
	}
	if addr, ok := c.Servers[server]; ok {
		return addr
	}
	return server
}
