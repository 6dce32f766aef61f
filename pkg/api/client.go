// Package api provides the request/response types and HTTP client for the
// coordination service.
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client is the HTTP client for the coordination service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new coordination API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) post(path string, request, response any) error {
	body, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.httpClient.Post(c.baseURL+path, "application/json", bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	return decodeResponse(resp, response)
}

func (c *Client) get(path string, response any) error {
	resp, err := c.httpClient.Get(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	return decodeResponse(resp, response)
}

func decodeResponse(resp *http.Response, response any) error {
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, response); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

// SendMessage sends a directed or broadcast message.
func (c *Client) SendMessage(request SendMessageRequest) (*SendMessageResponse, error) {
	var response SendMessageResponse
	if err := c.post("/messages", request, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// ReceiveMessages fetches the messages addressed to an agent. A non-empty
// since timestamp limits the result to strictly newer messages.
func (c *Client) ReceiveMessages(agentID, since string) (*ReceiveMessagesResponse, error) {
	path := fmt.Sprintf("/agents/%s/messages", url.PathEscape(agentID))
	if since != "" {
		path += "?since=" + url.QueryEscape(since)
	}

	var response ReceiveMessagesResponse
	if err := c.get(path, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// SendResponse sends the acknowledgement for a previously received message.
func (c *Client) SendResponse(request SendResponseRequest) (*SendResponseResponse, error) {
	var response SendResponseResponse
	if err := c.post("/responses", request, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// ReceiveResponses fetches the acknowledgements addressed to an agent.
func (c *Client) ReceiveResponses(agentID, since string) (*ReceiveResponsesResponse, error) {
	path := fmt.Sprintf("/agents/%s/responses", url.PathEscape(agentID))
	if since != "" {
		path += "?since=" + url.QueryEscape(since)
	}

	var response ReceiveResponsesResponse
	if err := c.get(path, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// ProcessPending runs an agent's pending messages through the service's
// registered handlers.
func (c *Client) ProcessPending(agentID string) (*ProcessResponse, error) {
	path := fmt.Sprintf("/agents/%s/process", url.PathEscape(agentID))

	var response ProcessResponse
	if err := c.post(path, struct{}{}, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// ExecuteWorkflow declares a workflow and runs one execution pass.
func (c *Client) ExecuteWorkflow(request WorkflowRequest) (*WorkflowResponse, error) {
	var response WorkflowResponse
	if err := c.post("/workflows", request, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// GetHealth checks the health of the coordination service.
func (c *Client) GetHealth() (*HealthStatus, error) {
	var response HealthStatus
	if err := c.get("/health", &response); err != nil {
		return nil, err
	}
	return &response, nil
}
