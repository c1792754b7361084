package n8n

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Flowdeck-Labs/flowdeck-node/internal/utils"
)

const (
	apiKeyHeader   = "X-N8N-API-KEY"
	defaultTimeout = 10 * time.Second

	// Safety bound on internal cursor-following in ListWorkflows;
	// remote catalogs are small relative to execution history.
	maxWorkflowPages = 100
)

// Client is a per-provider handle on the remote automation API, bound
// to a base URL and a decrypted API key. It performs no retries.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	timeout    time.Duration
	logger     *utils.LogsManager
}

// NewClient creates a client for one provider
func NewClient(baseURL string, apiKey string, logger *utils.LogsManager) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{},
		timeout:    defaultTimeout,
		logger:     logger,
	}
}

// SetTimeout overrides the per-call deadline
func (c *Client) SetTimeout(d time.Duration) {
	if d > 0 {
		c.timeout = d
	}
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := c.baseURL + "/api/v1" + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %v", err)
	}
	req.Header.Set(apiKeyHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
			return fmt.Errorf("%w: GET %s", ErrRemoteTimeout, path)
		}
		return fmt.Errorf("request failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
			return fmt.Errorf("%w: GET %s", ErrRemoteTimeout, path)
		}
		return fmt.Errorf("failed to read response: %v", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message := parseErrorMessage(body)
		c.logger.Warn(fmt.Sprintf("Remote API returned %d for GET %s: %s", resp.StatusCode, path, message), "n8n")
		return &RemoteAPIError{Status: resp.StatusCode, Message: message}
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("failed to decode response for GET %s: %v", path, err)
		}
	}

	return nil
}

func parseErrorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	message := strings.TrimSpace(string(body))
	if len(message) > 200 {
		message = message[:200]
	}
	return message
}

// ListWorkflows returns the full remote workflow catalog, following the
// API's own pagination cursor internally.
func (c *Client) ListWorkflows(ctx context.Context) ([]WorkflowSummary, error) {
	var all []WorkflowSummary
	cursor := ""

	for page := 0; page < maxWorkflowPages; page++ {
		query := url.Values{}
		query.Set("limit", "100")
		if cursor != "" {
			query.Set("cursor", cursor)
		}

		var envelope listEnvelope[WorkflowSummary]
		if err := c.get(ctx, "/workflows", query, &envelope); err != nil {
			return nil, err
		}

		all = append(all, envelope.Data...)
		if envelope.NextCursor == "" {
			return all, nil
		}
		cursor = envelope.NextCursor
	}

	c.logger.Warn(fmt.Sprintf("Workflow listing exceeded %d pages, returning partial catalog", maxWorkflowPages), "n8n")
	return all, nil
}

// GetWorkflow fetches one full workflow definition
func (c *Client) GetWorkflow(ctx context.Context, remoteID string) (*Workflow, error) {
	var workflow Workflow
	if err := c.get(ctx, "/workflows/"+url.PathEscape(remoteID), nil, &workflow); err != nil {
		return nil, err
	}
	return &workflow, nil
}

// ListExecutions fetches one page of executions. includeData controls
// whether the heavy per-node result payload is included; discovery
// passes leave it off.
func (c *Client) ListExecutions(ctx context.Context, limit int, cursor string, includeData bool) (*ExecutionList, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	if cursor != "" {
		query.Set("cursor", cursor)
	}
	if includeData {
		query.Set("includeData", "true")
	}

	var envelope listEnvelope[Execution]
	if err := c.get(ctx, "/executions", query, &envelope); err != nil {
		return nil, err
	}

	return &ExecutionList{Items: envelope.Data, NextCursor: envelope.NextCursor}, nil
}

// GetExecution fetches one execution with its full payload
func (c *Client) GetExecution(ctx context.Context, remoteID string) (*Execution, error) {
	query := url.Values{}
	query.Set("includeData", "true")

	var execution Execution
	if err := c.get(ctx, "/executions/"+url.PathEscape(remoteID), query, &execution); err != nil {
		return nil, err
	}
	return &execution, nil
}
