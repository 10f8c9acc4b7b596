// Package client is the HTTP client used by the CLI to talk to a running
// remote-workspace server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/mufancom/remote-workspace/internal/daemon"
	"github.com/mufancom/remote-workspace/internal/workspace"
)

// Client talks to the remote-workspace HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for the server at serverURL.
func New(serverURL string) (*Client, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}

	if u.Scheme == "" {
		u.Scheme = "http"
	}

	return &Client{
		baseURL: u.String(),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// ListWorkspaces fetches the status of every workspace.
func (c *Client) ListWorkspaces(ctx context.Context) ([]daemon.Status, error) {
	var result struct {
		Data []daemon.Status `json:"data"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/workspaces", nil, &result); err != nil {
		return nil, err
	}
	return result.Data, nil
}

// CreateWorkspace creates a workspace and returns its ID.
func (c *Client) CreateWorkspace(ctx context.Context, options workspace.Options) (string, error) {
	var result struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/workspaces", options, &result); err != nil {
		return "", err
	}
	return result.Data.ID, nil
}

// UpdateWorkspace replaces the configuration of an existing workspace.
func (c *Client) UpdateWorkspace(ctx context.Context, id string, options workspace.Options) error {
	return c.doJSON(ctx, http.MethodPut, "/api/workspaces/"+url.PathEscape(id), options, nil)
}

// DeleteWorkspace removes a workspace.
func (c *Client) DeleteWorkspace(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/workspaces/"+url.PathEscape(id), nil, nil)
}

// ActivateWorkspace marks a workspace active so its containers come up.
func (c *Client) ActivateWorkspace(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodPost, "/api/workspaces/"+url.PathEscape(id)+"/activate", nil, nil)
}

// DeactivateWorkspace marks a workspace inactive and tears its containers down.
func (c *Client) DeactivateWorkspace(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodPost, "/api/workspaces/"+url.PathEscape(id)+"/deactivate", nil, nil)
}

// ListTemplates fetches the server's workspace templates.
func (c *Client) ListTemplates(ctx context.Context) (map[string]interface{}, error) {
	var result struct {
		Data map[string]interface{} `json:"data"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/templates", nil, &result); err != nil {
		return nil, err
	}
	return result.Data, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return parseErrorResponse(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func parseErrorResponse(resp *http.Response) error {
	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(payload, &body); err == nil && body.Error != "" {
		return fmt.Errorf("server error (%d): %s", resp.StatusCode, body.Error)
	}
	return fmt.Errorf("server error (%d)", resp.StatusCode)
}
