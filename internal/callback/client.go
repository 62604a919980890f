// Package callback calls back into the app that owns a workflow instance,
// which performs process steps on the engine's behalf.
package callback

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

	"github.com/RezaEskandarii/procengine/internal/constants"
	"github.com/RezaEskandarii/procengine/types"
)

const (
	CommandMoveProcessForward    = "move-process-forward"
	CommandExecuteServiceTask    = "execute-service-task"
	CommandExecuteInterfaceHooks = "execute-interface-hooks"
)

// Payload is the JSON body of a callback.
type Payload struct {
	Actor    types.Actor `json:"actor"`
	Metadata any         `json:"metadata,omitempty"`
}

// StatusError is returned when the app answers with a non-2xx status.
type StatusError struct {
	Command    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("callback %s returned %d: %s", e.Command, e.StatusCode, e.Body)
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Endpoint builds {base}/{appID}/instances/{instanceID}/process-engine-callbacks/{command}.
// appID is "org/app" and instanceID is "partyID/guid"; each segment is escaped separately.
func (c *Client) Endpoint(appID, instanceID, command string) string {
	return c.baseURL + "/" + escapePath(appID) + "/instances/" + escapePath(instanceID) +
		"/process-engine-callbacks/" + url.PathEscape(command)
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, s := range parts {
		parts[i] = url.PathEscape(s)
	}
	return strings.Join(parts, "/")
}

// Call posts payload to the command endpoint of the given instance.
func (c *Client) Call(ctx context.Context, appID, instanceID, command string, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode callback payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint(appID, instanceID, command), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set(constants.APIKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("callback %s failed: %w", command, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Command: command, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
