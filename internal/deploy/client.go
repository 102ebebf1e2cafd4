// Package deploy submits prepared compose stacks to the deployment target's
// REST API (or to an in-memory mock).
package deploy

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dockhand/dockhand/internal/api"
	"github.com/dockhand/dockhand/internal/compose"
)

// StackRequest is one prepared stack submission.
type StackRequest struct {
	Name       string
	Manifest   string
	EndpointID int
	Env        map[string]string
}

// Client submits stacks to a deployment target.
type Client interface {
	DeployStack(ctx context.Context, req StackRequest) (*api.DeployResponse, error)
	Validate(ctx context.Context) bool
	Mock() bool
}

// Prepare applies environment and bind-mount overrides to raw manifest
// text, producing the final document to submit. Transport and target
// addressing stay with the client.
func Prepare(manifest string, envOverrides, volumeOverrides map[string]string) (string, error) {
	var err error
	if len(envOverrides) > 0 {
		manifest, err = compose.ApplyEnvOverrides(manifest, envOverrides)
		if err != nil {
			return "", err
		}
	}
	if len(volumeOverrides) > 0 {
		manifest, err = compose.ApplyVolumeOverrides(manifest, volumeOverrides)
		if err != nil {
			return "", err
		}
	}
	return manifest, nil
}

// HTTPClient talks to a real deployment target.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

// NewHTTPClient creates a client for the target at baseURL authenticating
// with apiKey. insecureSkipVerify disables TLS verification for targets
// running self-signed certificates.
func NewHTTPClient(baseURL, apiKey string, insecureSkipVerify bool, logger *slog.Logger) *HTTPClient {
	transport := http.DefaultTransport
	if insecureSkipVerify {
		transport = &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}
		if logger != nil {
			logger.Warn("TLS verification disabled for deployment target")
		}
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second, Transport: transport},
		logger:  logger,
	}
}

func (c *HTTPClient) Mock() bool { return false }

// DeployStack posts the stack to the target's standalone-stack endpoint.
func (c *HTTPClient) DeployStack(ctx context.Context, req StackRequest) (*api.DeployResponse, error) {
	payload := map[string]any{
		"Name":             req.Name,
		"StackFileContent": req.Manifest,
	}
	if len(req.Env) > 0 {
		env := make([]map[string]string, 0, len(req.Env))
		for name, value := range req.Env {
			env = append(env, map[string]string{"name": name, "value": value})
		}
		payload["Env"] = env
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode stack payload: %w", err)
	}

	url := fmt.Sprintf("%s/api/stacks/create/standalone/string?endpointId=%d", c.baseURL, req.EndpointID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("X-API-Key", c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	if c.logger != nil {
		c.logger.Info("Submitting stack to deployment target", "stack", req.Name, "endpoint_id", req.EndpointID)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return &api.DeployResponse{Success: false, Message: fmt.Sprintf("request failed: %v", err)}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		if c.logger != nil {
			c.logger.Error("Deployment target rejected stack", "status", resp.StatusCode, "body", string(raw))
		}
		return &api.DeployResponse{
			Success: false,
			Message: fmt.Sprintf("deployment failed: %d", resp.StatusCode),
			Target:  map[string]any{"error": string(raw)},
		}, nil
	}

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode target response: %w", err)
	}

	stackID := 0
	if id, ok := result["Id"].(float64); ok {
		stackID = int(id)
	}
	return &api.DeployResponse{
		Success: true,
		StackID: stackID,
		Message: "Stack deployed successfully",
		Target:  result,
	}, nil
}

// Validate probes the target API with the configured key.
func (c *HTTPClient) Validate(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/users", nil)
	if err != nil {
		return false
	}
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		if c.logger != nil {
			c.logger.Error("Deployment target validation failed", "error", err)
		}
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
