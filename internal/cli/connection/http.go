package connection

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/yndnr/sockmesh-go/internal/infra/buildinfo"
)

const (
	unixScheme = "unix://"

	// unixBaseURL is the placeholder host for requests over a unix socket.
	unixBaseURL = "http://localhost"

	defaultTimeout = 30 * time.Second
)

// ErrNoSocketIO is returned by SocketURL for local socket addresses.
var ErrNoSocketIO = errors.New("connection: the local admin socket does not serve socket.io")

// HTTPClient provides HTTP communication with the server.
type HTTPClient struct {
	server   string
	baseURL  string
	unixPath string
	client   *http.Client
}

// NewHTTPClient creates a client for server. tlsConfig is used for https
// addresses and may be nil.
func NewHTTPClient(server string, tlsConfig *tls.Config) (*HTTPClient, error) {
	server = strings.TrimSpace(server)
	if server == "" {
		return nil, errors.New("connection: server address is empty")
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsConfig

	c := &HTTPClient{
		server: server,
		client: &http.Client{Timeout: defaultTimeout, Transport: transport},
	}

	switch {
	case strings.HasPrefix(server, unixScheme):
		c.unixPath = strings.TrimPrefix(server, unixScheme)
		if c.unixPath == "" {
			return nil, fmt.Errorf("connection: %q has no socket path", server)
		}
		c.baseURL = unixBaseURL
		transport.DialContext = func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", c.unixPath)
		}
	case strings.HasPrefix(server, "http://"), strings.HasPrefix(server, "https://"):
		c.baseURL = strings.TrimRight(server, "/")
	default:
		c.baseURL = "http://" + strings.TrimRight(server, "/")
	}
	return c, nil
}

// BaseURL returns the base URL of the client.
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

// IsLocal reports whether the client talks to the local admin socket.
func (c *HTTPClient) IsLocal() bool {
	return c.unixPath != ""
}

// SocketURL returns the base URL for socket.io connections.
func (c *HTTPClient) SocketURL() (string, error) {
	if c.IsLocal() {
		return "", ErrNoSocketIO
	}
	return c.baseURL, nil
}

// Get performs a GET request.
func (c *HTTPClient) Get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.addHeaders(req)
	return c.client.Do(req)
}

// Post performs a POST request with JSON body.
func (c *HTTPClient) Post(ctx context.Context, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.addHeaders(req)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.client.Do(req)
}

func (c *HTTPClient) addHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", buildinfo.UserAgent("sockmesh-cli"))
}

// APIError is an error envelope returned by the server.
type APIError struct {
	Status    int
	Code      string
	Message   string
	RequestID string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("request failed with status %d", e.Status)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

type envelope struct {
	Code      string          `json:"code"`
	Message   string          `json:"message"`
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data"`
}

// ParseResponse decodes the envelope's data field into target and closes
// the body. Error statuses are returned as *APIError.
func ParseResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var env envelope
	decodeErr := json.Unmarshal(body, &env)

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		if decodeErr == nil {
			apiErr.Code = env.Code
			apiErr.Message = env.Message
			apiErr.RequestID = env.RequestID
		}
		return apiErr
	}
	if decodeErr != nil {
		return fmt.Errorf("parse response: %w", decodeErr)
	}
	if target == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, target); err != nil {
		return fmt.Errorf("parse response data: %w", err)
	}
	return nil
}
