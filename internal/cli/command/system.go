package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/sockmesh-go/internal/cli/connection"
	"github.com/yndnr/sockmesh-go/internal/infra/buildinfo"
)

// SystemCommand returns the system subcommand group.
func SystemCommand() *cli.Command {
	return &cli.Command{
		Name:    "system",
		Aliases: []string{"sys"},
		Usage:   "Server health and status",
		Subcommands: []*cli.Command{
			{
				Name:   "health",
				Usage:  "Check server liveness and readiness",
				Action: systemHealth,
			},
			{
				Name:   "status",
				Usage:  "Show the server status summary",
				Action: systemStatus,
			},
			{
				Name:  "version",
				Usage: "Show client and server versions",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "client",
						Usage: "Only show the client version",
					},
				},
				Action: systemVersion,
			},
		},
	}
}

// HealthResult is printed by system health.
type HealthResult struct {
	Server   string `json:"server" yaml:"server"`
	Status   string `json:"status" yaml:"status"`
	Ready    bool   `json:"ready" yaml:"ready"`
	Sessions int    `json:"sessions" yaml:"sessions"`
	Reason   string `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// StatusResult is the server status summary.
type StatusResult struct {
	Status   string `json:"status" yaml:"status"`
	Version  string `json:"version" yaml:"version"`
	Commit   string `json:"commit" yaml:"commit"`
	Uptime   string `json:"uptime" yaml:"uptime"`
	Sessions int    `json:"sessions" yaml:"sessions"`
	Presence string `json:"presence" yaml:"presence"`
}

// VersionResult is printed by system version.
type VersionResult struct {
	Client        string `json:"client" yaml:"client"`
	ClientCommit  string `json:"client_commit" yaml:"client_commit"`
	GoVersion     string `json:"go_version" yaml:"go_version" table:"wide"`
	Server        string `json:"server,omitempty" yaml:"server,omitempty"`
	ServerCommit  string `json:"server_commit,omitempty" yaml:"server_commit,omitempty"`
	ServerMessage string `json:"server_message,omitempty" yaml:"server_message,omitempty" table:"wide"`
}

func systemHealth(c *cli.Context) error {
	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Context, requestTimeout)
	defer cancel()

	resp, err := client.Get(ctx, "/health")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	var live struct {
		Status string `json:"status"`
	}
	if err := connection.ParseResponse(resp, &live); err != nil {
		return err
	}

	result := HealthResult{Server: client.BaseURL(), Status: live.Status}

	resp, err = client.Get(ctx, "/ready")
	if err != nil {
		return fmt.Errorf("readiness check failed: %w", err)
	}
	var ready struct {
		Sessions int `json:"sessions"`
	}
	err = connection.ParseResponse(resp, &ready)
	var apiErr *connection.APIError
	switch {
	case errors.As(err, &apiErr):
		result.Reason = apiErr.Message
	case err != nil:
		return err
	default:
		result.Ready = true
		result.Sessions = ready.Sessions
	}

	if err := printResult(c, result); err != nil {
		return err
	}
	if !result.Ready {
		return fmt.Errorf("server not ready: %s", result.Reason)
	}
	return nil
}

func systemStatus(c *cli.Context) error {
	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Context, requestTimeout)
	defer cancel()

	status, err := fetchStatus(ctx, client)
	if err != nil {
		return err
	}
	return printResult(c, status)
}

func fetchStatus(ctx context.Context, client *connection.HTTPClient) (*StatusResult, error) {
	resp, err := client.Get(ctx, "/admin/v1/status/summary")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	var status StatusResult
	if err := connection.ParseResponse(resp, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func systemVersion(c *cli.Context) error {
	info := buildinfo.Get()
	result := VersionResult{
		Client:       info.Version,
		ClientCommit: info.Commit,
		GoVersion:    info.GoVersion,
	}

	if !c.Bool("client") {
		client, err := EnsureConnected(c)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(c.Context, requestTimeout)
		defer cancel()

		status, err := fetchStatus(ctx, client)
		if err != nil {
			result.ServerMessage = err.Error()
		} else {
			result.Server = status.Version
			result.ServerCommit = status.Commit
		}
	}
	return printResult(c, result)
}
