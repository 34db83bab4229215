// Package relayclient implements the REST half of the relay protocol:
// session baselines, pending-action lists, decisions, and message sends.
package relayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/quayside/coxswain/src/protocol"
)

const (
	defaultTimeout = 30 * time.Second
	defaultAgent   = "coxswain"
)

// Client is the relay REST API client.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new relay API client.
func NewClient(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, ErrNoBaseURL
	}
	if config.RetryCount == 0 {
		config.RetryCount = 3
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = time.Second
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	if config.UserAgent == "" {
		config.UserAgent = defaultAgent
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "relay_client")

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
	}, nil
}

// ListSessionsOptions narrows and pages the session listing.
type ListSessionsOptions struct {
	Archived *bool
	Cursor   string
	Limit    int
}

// ListSessions fetches one page of sessions.
func (c *Client) ListSessions(ctx context.Context, opts ListSessionsOptions) (*protocol.SessionPage, error) {
	q := url.Values{}
	if opts.Archived != nil {
		q.Set("archived", strconv.FormatBool(*opts.Archived))
	}
	if opts.Cursor != "" {
		q.Set("cursor", opts.Cursor)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	path := "/sessions"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var page protocol.SessionPage
	if err := c.get(ctx, path, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// CreateSession opens a new session on the relay.
func (c *Client) CreateSession(ctx context.Context, req protocol.CreateSessionRequest) (*protocol.SessionSummary, error) {
	var resp protocol.CreateSessionResponse
	if err := c.postJSON(ctx, "/sessions", req, &resp, http.StatusOK, http.StatusCreated); err != nil {
		return nil, err
	}
	return &resp.Session, nil
}

// GetSession fetches the full baseline for one session: summary, transcript,
// and turn list. A deleted session yields ErrSessionGone.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*protocol.SessionDetail, error) {
	var detail protocol.SessionDetail
	if err := c.get(ctx, "/sessions/"+url.PathEscape(sessionID), &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ListApprovals fetches the pending approvals for a session.
func (c *Client) ListApprovals(ctx context.Context, sessionID string) ([]protocol.Approval, error) {
	var list protocol.ApprovalList
	if err := c.get(ctx, "/sessions/"+url.PathEscape(sessionID)+"/approvals", &list); err != nil {
		return nil, err
	}
	return list.Items, nil
}

// ListToolInput fetches the pending tool-input requests for a session.
func (c *Client) ListToolInput(ctx context.Context, sessionID string) ([]protocol.ToolInputRequest, error) {
	var list protocol.ToolInputList
	if err := c.get(ctx, "/sessions/"+url.PathEscape(sessionID)+"/tool-input", &list); err != nil {
		return nil, err
	}
	return list.Items, nil
}

// DecideApproval submits a decision for one approval. ErrNotFound means the
// approval was already resolved server-side.
func (c *Client) DecideApproval(ctx context.Context, approvalID string, req protocol.ApprovalDecisionRequest) error {
	return c.postJSON(ctx, "/approvals/"+url.PathEscape(approvalID)+"/decision", req, nil, http.StatusOK)
}

// DecideToolInput submits a decision (and answers) for one tool-input
// request. ErrNotFound means the request was already resolved server-side.
func (c *Client) DecideToolInput(ctx context.Context, requestID string, req protocol.ToolInputDecisionRequest) error {
	return c.postJSON(ctx, "/tool-input/"+url.PathEscape(requestID)+"/decision", req, nil, http.StatusOK)
}

// SendMessage submits a user prompt; the relay answers 202 with the assigned
// turn id.
func (c *Client) SendMessage(ctx context.Context, sessionID string, req protocol.SendMessageRequest) (*protocol.SendMessageResponse, error) {
	var resp protocol.SendMessageResponse
	if err := c.postJSON(ctx, "/sessions/"+url.PathEscape(sessionID)+"/messages", req, &resp, http.StatusAccepted); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Interrupt stops the session's active turn. ErrNoActiveTurn means the turn
// already ended.
func (c *Client) Interrupt(ctx context.Context, sessionID, turnID string) error {
	req := protocol.InterruptRequest{TurnID: turnID}
	return c.postJSON(ctx, "/sessions/"+url.PathEscape(sessionID)+"/interrupt", req, nil, http.StatusOK)
}

// Steer injects guidance into a running turn.
func (c *Client) Steer(ctx context.Context, sessionID, turnID, input string) error {
	req := protocol.SteerRequest{Input: input}
	path := "/sessions/" + url.PathEscape(sessionID) + "/turns/" + url.PathEscape(turnID) + "/steer"
	return c.postJSON(ctx, path, req, nil, http.StatusOK)
}

// Rename retitles a session.
func (c *Client) Rename(ctx context.Context, sessionID, title string) error {
	return c.postJSON(ctx, "/sessions/"+url.PathEscape(sessionID)+"/rename", protocol.RenameRequest{Title: title}, nil, http.StatusOK)
}

// Archive hides a session from the default listing.
func (c *Client) Archive(ctx context.Context, sessionID string) error {
	return c.postJSON(ctx, "/sessions/"+url.PathEscape(sessionID)+"/archive", struct{}{}, nil, http.StatusOK)
}

// Unarchive restores an archived session.
func (c *Client) Unarchive(ctx context.Context, sessionID string) error {
	return c.postJSON(ctx, "/sessions/"+url.PathEscape(sessionID)+"/unarchive", struct{}{}, nil, http.StatusOK)
}

// SetProject assigns the session to a project; nil clears the assignment.
func (c *Client) SetProject(ctx context.Context, sessionID string, projectID *string) error {
	req := protocol.SetProjectRequest{ProjectID: projectID}
	return c.postJSON(ctx, "/sessions/"+url.PathEscape(sessionID)+"/project", req, nil, http.StatusOK)
}

// SuggestReply asks the relay to draft the user's next message.
func (c *Client) SuggestReply(ctx context.Context, sessionID string, req protocol.SuggestReplyRequest) (*protocol.SuggestReplyResponse, error) {
	var resp protocol.SuggestReplyResponse
	err := c.postJSON(ctx, "/sessions/"+url.PathEscape(sessionID)+"/suggested-request", req, &resp, http.StatusOK, http.StatusAccepted)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListProjects fetches all projects.
func (c *Client) ListProjects(ctx context.Context) ([]protocol.Project, error) {
	var list protocol.ProjectList
	if err := c.get(ctx, "/projects", &list); err != nil {
		return nil, err
	}
	return list.Items, nil
}

// Health probes the relay's liveness endpoint.
func (c *Client) Health(ctx context.Context) (*protocol.HealthResponse, error) {
	var resp protocol.HealthResponse
	if err := c.get(ctx, "/health", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// get performs a GET expecting 200 and decodes the body into out.
func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	resp, err := c.doRequestWithRetry(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.handleError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// postJSON performs a POST with a JSON body. Any status outside okStatuses
// becomes an *APIError; out may be nil when no body is expected.
func (c *Client) postJSON(ctx context.Context, path string, in, out any, okStatuses ...int) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	resp, err := c.doRequestWithRetry(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	ok := false
	for _, s := range okStatuses {
		if resp.StatusCode == s {
			ok = true
			break
		}
	}
	if !ok {
		return c.handleError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// newRequest creates a new HTTP request with the appropriate headers.
func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)
	return req, nil
}

// doRequestWithRetry performs an HTTP request with retry logic. Client
// errors (4xx) are never retried; server errors sleep and retry.
func (c *Client) doRequestWithRetry(req *http.Request) (*http.Response, error) {
	var lastErr error

	logger := c.logger.With("method", req.Method, "url", req.URL.String())

	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read request body: %w", err)
		}
	}

	for i := 0; i < c.config.RetryCount; i++ {
		reqCopy := req.Clone(req.Context())
		if bodyBytes != nil {
			reqCopy.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}

		resp, err := c.httpClient.Do(reqCopy)
		if err != nil {
			lastErr = err
			logger.Debug("request attempt failed", "attempt", i+1, "error", err)
			time.Sleep(c.config.RetryDelay * time.Duration(i+1))
			continue
		}

		if resp.StatusCode < 500 {
			return resp, nil
		}

		resp.Body.Close()
		lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
		logger.Debug("server error, retrying", "attempt", i+1, "status_code", resp.StatusCode)
		time.Sleep(c.config.RetryDelay * time.Duration(i+1))
	}

	logger.Error("request failed after all retries", "retry_count", c.config.RetryCount, "error", lastErr)
	return nil, fmt.Errorf("request failed after %d retries: %w", c.config.RetryCount, lastErr)
}

// handleError processes error responses from the API.
func (c *Client) handleError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read error response: %w", err)
	}

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		RequestID:  resp.Header.Get("X-Request-ID"),
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		apiErr.Message = errResp.Error.Message
		apiErr.Code = errResp.Error.Code
	} else {
		apiErr.Message = string(body)
	}

	return apiErr
}
