package command

import (
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/sockmesh-go/internal/cli/config"
	"github.com/yndnr/sockmesh-go/internal/cli/connection"
	"github.com/yndnr/sockmesh-go/internal/cli/output"
	"github.com/yndnr/sockmesh-go/internal/infra/buildinfo"
	"github.com/yndnr/sockmesh-go/internal/infra/tlsroots"
	"github.com/yndnr/sockmesh-go/internal/telemetry/logger"
)

const (
	metaConfig = "cliConfig"

	// requestTimeout bounds a single admin API call.
	requestTimeout = 30 * time.Second
)

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "sockmesh-cli",
		Usage:   "SockMesh client and management tool",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			EmitCommand(),
			ListenCommand(),
			ShellCommand(),
			SessionCommand(),
			SystemCommand(),
		},
		Before: loadConfig,
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "server URL, unix:// admin socket, or alias from the config file",
			EnvVars: []string{"SOCKMESH_SERVER"},
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
			Value:   string(output.FormatTable),
		},
		&cli.BoolFlag{
			Name:    "wide",
			Aliases: []string{"w"},
			Usage:   "Show wide output (more columns)",
		},
		&cli.StringFlag{
			Name:    "ca-file",
			Usage:   "PEM bundle trusted for https servers",
			EnvVars: []string{"SOCKMESH_CA_FILE"},
		},
		&cli.BoolFlag{
			Name:  "insecure",
			Usage: "Skip TLS certificate verification",
		},
		&cli.StringFlag{
			Name:    "config",
			Usage:   "CLI config file",
			EnvVars: []string{"SOCKMESH_CLI_CONFIG"},
			Value:   config.DefaultConfigPath(),
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"V"},
			Usage:   "Enable verbose output",
		},
	}
}

func loadConfig(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if c.App.Metadata == nil {
		c.App.Metadata = make(map[string]any)
	}
	c.App.Metadata[metaConfig] = cfg
	return nil
}

// cliConfig returns the loaded CLI config, or the defaults when Before did
// not run.
func cliConfig(c *cli.Context) *config.CLIConfig {
	if cfg, ok := c.App.Metadata[metaConfig].(*config.CLIConfig); ok {
		return cfg
	}
	return config.Default()
}

// GlobalFlags defines flags available to all commands, merged with the CLI
// config file.
type GlobalFlags struct {
	Server   string
	Output   output.Format
	Wide     bool
	CAFile   string
	Insecure bool
	Verbose  bool
}

// ParseGlobalFlags extracts global flags from context. Flags win over the
// config file.
func ParseGlobalFlags(c *cli.Context) (*GlobalFlags, error) {
	cfg := cliConfig(c)

	outputValue := c.String("output")
	if !c.IsSet("output") && cfg.DefaultOutput != "" {
		outputValue = cfg.DefaultOutput
	}
	format, err := output.ParseFormat(outputValue)
	if err != nil {
		return nil, err
	}

	caFile := c.String("ca-file")
	if caFile == "" {
		caFile = cfg.CAFile
	}

	return &GlobalFlags{
		Server:   cfg.ResolveServer(c.String("server")),
		Output:   format,
		Wide:     c.Bool("wide"),
		CAFile:   caFile,
		Insecure: c.Bool("insecure"),
		Verbose:  c.Bool("verbose"),
	}, nil
}

// TLSConfig returns the client TLS configuration for the flags.
func (g *GlobalFlags) TLSConfig() (*tls.Config, error) {
	return tlsroots.LoadClientConfig(g.CAFile, g.Insecure)
}

// Logger returns the CLI logger. Only warnings are shown unless verbose.
func (g *GlobalFlags) Logger() *slog.Logger {
	level := "warn"
	if g.Verbose {
		level = "debug"
	}
	l, err := logger.New(logger.Config{Level: level, Format: "text", Output: os.Stderr})
	if err != nil {
		return slog.Default()
	}
	return l.Slog()
}

// EnsureConnected returns an admin API client for the selected server.
func EnsureConnected(c *cli.Context) (*connection.HTTPClient, error) {
	flags, err := ParseGlobalFlags(c)
	if err != nil {
		return nil, err
	}
	tlsConfig, err := flags.TLSConfig()
	if err != nil {
		return nil, err
	}
	return connection.NewHTTPClient(flags.Server, tlsConfig)
}

// writer returns where command output goes.
func writer(c *cli.Context) io.Writer {
	if c.App.Writer != nil {
		return c.App.Writer
	}
	return os.Stdout
}

// printResult renders data in the selected output format.
func printResult(c *cli.Context, data any) error {
	flags, err := ParseGlobalFlags(c)
	if err != nil {
		return err
	}
	return output.NewFormatter(flags.Output, flags.Wide).Format(writer(c), data)
}

// PrintError prints an error message to stderr.
func PrintError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
}
