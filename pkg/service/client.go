// pkg/service/client.go
//
// HTTP realization of the facade: each operation is one JSON call to a
// running 2kc server, authenticated with the configured bearer token.
// Transport failures are translated into messages a user can act on.

package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/CodeMonkeyCybersecurity/2kc/pkg/config"
	"github.com/CodeMonkeyCybersecurity/2kc/pkg/inject"
	"github.com/CodeMonkeyCybersecurity/2kc/pkg/kc_err"
	"github.com/CodeMonkeyCybersecurity/2kc/pkg/request"
	"github.com/CodeMonkeyCybersecurity/2kc/pkg/store"
	cerr "github.com/cockroachdb/errors"
)

// callTimeout bounds every client call.
const callTimeout = 30 * time.Second

// Client speaks to a 2kc server over HTTP.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient builds the HTTP facade from config.
func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL: fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port),
		token:   cfg.Server.AuthToken,
		http:    &http.Client{Timeout: callTimeout},
	}
}

type errorBody struct {
	Error      string `json:"error"`
	StatusCode int    `json:"statusCode"`
}

func (c *Client) Health(ctx context.Context) (HealthInfo, error) {
	var out HealthInfo
	err := c.call(ctx, http.MethodGet, "/health", nil, &out)
	return out, err
}

func (c *Client) ListSecrets(ctx context.Context) ([]store.ListingItem, error) {
	var out []store.ListingItem
	err := c.call(ctx, http.MethodGet, "/api/secrets", nil, &out)
	return out, err
}

func (c *Client) AddSecret(ctx context.Context, ref, value string, tags []string) (string, error) {
	body := map[string]any{"ref": ref, "value": value, "tags": tags}
	var out struct {
		UUID string `json:"uuid"`
	}
	if err := c.call(ctx, http.MethodPost, "/api/secrets", body, &out); err != nil {
		return "", err
	}
	return out.UUID, nil
}

func (c *Client) RemoveSecret(ctx context.Context, uuid string) error {
	return c.call(ctx, http.MethodDelete, "/api/secrets/"+url.PathEscape(uuid), nil, nil)
}

func (c *Client) GetSecretMetadata(ctx context.Context, uuid string) (store.ListingItem, error) {
	var out store.ListingItem
	err := c.call(ctx, http.MethodGet, "/api/secrets/"+url.PathEscape(uuid), nil, &out)
	return out, err
}

func (c *Client) ResolveSecret(ctx context.Context, refOrUUID string) (store.ListingItem, error) {
	var out store.ListingItem
	err := c.call(ctx, http.MethodGet, "/api/secrets/resolve/"+url.PathEscape(refOrUUID), nil, &out)
	return out, err
}

func (c *Client) CreateRequest(ctx context.Context, secretUUIDs []string, reason, taskRef string, durationSeconds int) (*request.Request, error) {
	body := map[string]any{
		"secretUuids": secretUUIDs,
		"reason":      reason,
		"taskRef":     taskRef,
		"duration":    durationSeconds,
	}
	var out request.Request
	if err := c.call(ctx, http.MethodPost, "/api/requests", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ValidateGrant(ctx context.Context, requestID string) (bool, error) {
	var out bool
	err := c.call(ctx, http.MethodGet, "/api/grants/"+url.PathEscape(requestID), nil, &out)
	return out, err
}

func (c *Client) Inject(ctx context.Context, requestID, envVarName string, command []string) (inject.Result, error) {
	body := map[string]any{
		"requestId":  requestID,
		"envVarName": envVarName,
		"command":    command,
	}
	var out inject.Result
	err := c.call(ctx, http.MethodPost, "/api/inject", body, &out)
	return out, err
}

// call performs one JSON round trip and maps transport and HTTP errors to
// domain messages.
func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return cerr.Wrap(err, "failed to encode request body")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return cerr.Wrap(err, "failed to build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return c.translateTransport(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return cerr.Wrap(err, "failed to read response")
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return kc_err.NewNetworkError(
			"Authentication failed: the server rejected the auth token", nil,
			"Check server.authToken in ~/.2kc/config.json matches the server")
	}
	if resp.StatusCode >= 400 {
		var eb errorBody
		if json.Unmarshal(data, &eb) == nil && eb.Error != "" {
			return cerr.Newf("%s", eb.Error)
		}
		return cerr.Newf("server returned %d", resp.StatusCode)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return cerr.Wrap(err, "failed to parse server response")
	}
	return nil
}

func (c *Client) translateTransport(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "connection refused"):
		return kc_err.NewNetworkError(
			fmt.Sprintf("Server not running at %s", c.baseURL), err,
			"Start it with '2kc server start'")
	case strings.Contains(msg, "Client.Timeout") || strings.Contains(msg, "context deadline exceeded"):
		return kc_err.NewNetworkError(
			fmt.Sprintf("Request timed out after %s", callTimeout), err,
			"Check the server log at ~/.2kc/server.log")
	default:
		return kc_err.NewNetworkError("Failed to reach the 2kc server", err,
			"Check server.host and server.port in ~/.2kc/config.json")
	}
}
