// Package stackapi talks to the stack advisor endpoint of the cluster-management server.
package stackapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"

	"github.com/codex-k8s/depconfctl/internal/recommend"
	"github.com/codex-k8s/depconfctl/internal/tls"
)

const (
	defaultTimeout = 30 * time.Second
	maxErrorBody   = 4 << 10
	requestedBy    = "depconfctl"
)

// Options configures a Client.
type Options struct {
	// ServerURL is the base URL of the server, e.g. "https://ambari:8443".
	ServerURL string
	// Stack is the stack name, e.g. "HDP".
	Stack string
	// Version is the stack version; it must parse as a semantic version.
	Version string
	User     string
	Password string
	// Timeout bounds a single request; zero means 30s.
	Timeout time.Duration
	// TLS controls server certificate verification for https URLs.
	TLS tls.Options
	// HTTPClient overrides the default client; TLS is ignored then.
	HTTPClient *http.Client
}

// Client posts recommendation requests.
type Client struct {
	logger   *slog.Logger
	http     *http.Client
	endpoint string
	user     string
	password string
}

// StatusError is returned for non-2xx replies.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("recommendation service returned %d", e.StatusCode)
	}
	return fmt.Sprintf("recommendation service returned %d: %s", e.StatusCode, e.Body)
}

// NewClient validates opts and builds a client.
func NewClient(logger *slog.Logger, opts Options) (*Client, error) {
	endpoint, err := Endpoint(opts.ServerURL, opts.Stack, opts.Version)
	if err != nil {
		return nil, err
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
		tlsConfig, err := tls.ClientConfig(opts.TLS)
		if err != nil {
			return nil, err
		}
		if tlsConfig != nil {
			transport := http.DefaultTransport.(*http.Transport).Clone()
			transport.TLSClientConfig = tlsConfig
			httpClient.Transport = transport
		}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		logger:   logger,
		http:     httpClient,
		endpoint: endpoint,
		user:     opts.User,
		password: opts.Password,
	}, nil
}

// Endpoint builds the recommendations URL for a stack version.
func Endpoint(serverURL, stack, version string) (string, error) {
	serverURL = strings.TrimSpace(serverURL)
	if serverURL == "" {
		return "", fmt.Errorf("server url is empty")
	}
	base, err := url.Parse(serverURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return "", fmt.Errorf("invalid server url %q", serverURL)
	}
	stack = strings.TrimSpace(stack)
	if stack == "" {
		return "", fmt.Errorf("stack name is empty")
	}
	v, err := semver.NewVersion(strings.TrimSpace(version))
	if err != nil {
		return "", fmt.Errorf("invalid stack version %q: %w", version, err)
	}
	return base.JoinPath("api", "v1", "stacks", stack, "versions", v.Original(), "recommendations").String(), nil
}

// Recommend posts req and decodes the reply.
func (c *Client) Recommend(ctx context.Context, req *recommend.Request) (*recommend.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("recommendation request is nil")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode recommendation request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build recommendation request: %w", err)
	}
	requestID := uuid.NewString()
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Requested-By", requestedBy)
	httpReq.Header.Set("X-Request-Id", requestID)
	if c.user != "" {
		httpReq.SetBasicAuth(c.user, c.password)
	}

	c.logger.Debug("posting recommendation request",
		"request_id", requestID,
		"endpoint", c.endpoint,
		"recommend", req.Recommend,
		"changed", len(req.ChangedConfigurations),
	)
	started := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", c.endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read recommendation response: %w", err)
	}
	c.logger.Debug("recommendation response received",
		"request_id", requestID,
		"status", resp.StatusCode,
		"bytes", len(data),
		"elapsed", time.Since(started),
	)
	return recommend.DecodeResponse(data)
}
