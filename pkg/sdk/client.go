// Package sdk is the Go client for the gateway HTTP API. It is what calling
// agents embed to connect providers, invoke operations and drive approvals
// without hand-rolling the wire format.
package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"omnigate/pkg/models"
)

// Client talks to one gateway on behalf of one tenant. Identity travels in
// the X-Tenant-ID, X-Actor-ID and X-Roles headers; when AuthToken is set a
// bearer header is sent instead for gateways running in token mode.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	TenantID   string
	ActorID    string
	Roles      []string
	AuthToken  string
}

func NewClient(baseURL, tenantID string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		TenantID:   tenantID,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// APIError is a non-2xx gateway response, carrying the stable reason code
// from the error body so callers can branch on it.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway error status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
}

// Connect starts the authorization flow for a provider.
func (c *Client) Connect(ctx context.Context, provider string) (models.ConnectResponse, error) {
	var out models.ConnectResponse
	err := c.do(ctx, http.MethodPost, "/v1/providers/"+url.PathEscape(provider)+"/connect", nil, &out)
	return out, err
}

// CompleteCallback reports the broker's connection outcome for a provider.
// status may be empty, "connected" or "error".
func (c *Client) CompleteCallback(ctx context.Context, provider, externalConnectionID, status string) (models.Connection, error) {
	var out models.Connection
	payload := map[string]string{"external_connection_id": externalConnectionID}
	if status != "" {
		payload["status"] = status
	}
	err := c.do(ctx, http.MethodPost, "/v1/providers/"+url.PathEscape(provider)+"/callback", payload, &out)
	return out, err
}

func (c *Client) Disconnect(ctx context.Context, provider string) error {
	return c.do(ctx, http.MethodPost, "/v1/providers/"+url.PathEscape(provider)+"/disconnect", nil, nil)
}

func (c *Client) ConnectionStatus(ctx context.Context, provider string) (models.Connection, error) {
	var out models.Connection
	err := c.do(ctx, http.MethodGet, "/v1/providers/"+url.PathEscape(provider)+"/status", nil, &out)
	return out, err
}

func (c *Client) Providers(ctx context.Context) ([]models.ProviderInfo, error) {
	var out struct {
		Providers []models.ProviderInfo `json:"providers"`
	}
	err := c.do(ctx, http.MethodGet, "/v1/providers", nil, &out)
	return out.Providers, err
}

// Invoke runs an operation. args is sent verbatim; for a gated write the
// result carries the pending approval instead of data.
func (c *Client) Invoke(ctx context.Context, provider, operation string, args json.RawMessage) (models.OperationResult, error) {
	var out models.OperationResult
	path := "/v1/providers/" + url.PathEscape(provider) + "/ops/" + url.PathEscape(operation)
	err := c.doRaw(ctx, http.MethodPost, path, args, &out)
	return out, err
}

// Approvals lists the tenant's approval requests, optionally filtered by
// status ("" means all).
func (c *Client) Approvals(ctx context.Context, status string) ([]models.ApprovalRequest, error) {
	var out struct {
		Approvals []models.ApprovalRequest `json:"approvals"`
	}
	path := "/v1/approvals"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out.Approvals, err
}

func (c *Client) Approval(ctx context.Context, requestID string) (models.ApprovalRequest, error) {
	var out models.ApprovalRequest
	err := c.do(ctx, http.MethodGet, "/v1/approvals/"+url.PathEscape(requestID), nil, &out)
	return out, err
}

func (c *Client) Approve(ctx context.Context, requestID string) (models.ApprovalRequest, error) {
	var out models.ApprovalRequest
	err := c.do(ctx, http.MethodPost, "/v1/approvals/"+url.PathEscape(requestID)+"/approve", nil, &out)
	return out, err
}

func (c *Client) Reject(ctx context.Context, requestID string) (models.ApprovalRequest, error) {
	var out models.ApprovalRequest
	err := c.do(ctx, http.MethodPost, "/v1/approvals/"+url.PathEscape(requestID)+"/reject", nil, &out)
	return out, err
}

// Execute replays an approved request through its provider.
func (c *Client) Execute(ctx context.Context, requestID string) (models.OperationResult, error) {
	var out models.OperationResult
	err := c.do(ctx, http.MethodPost, "/v1/approvals/"+url.PathEscape(requestID)+"/execute", nil, &out)
	return out, err
}

func (c *Client) Audit(ctx context.Context, limit int) ([]models.AuditRecord, error) {
	var out struct {
		Records []models.AuditRecord `json:"records"`
	}
	path := "/v1/audit"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out.Records, err
}

func (c *Client) do(ctx context.Context, method, path string, payload interface{}, out interface{}) error {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		raw = b
	}
	return c.doRaw(ctx, method, path, raw, out)
}

func (c *Client) doRaw(ctx context.Context, method, path string, body json.RawMessage, out interface{}) error {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	c.applyIdentity(req)
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
		var decoded struct {
			Code  string `json:"code"`
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &decoded) == nil && decoded.Code != "" {
			apiErr.Code = decoded.Code
			apiErr.Message = decoded.Error
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

func (c *Client) applyIdentity(req *http.Request) {
	if token := strings.TrimSpace(c.AuthToken); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
		return
	}
	if c.TenantID != "" {
		req.Header.Set("X-Tenant-ID", c.TenantID)
	}
	if c.ActorID != "" {
		req.Header.Set("X-Actor-ID", c.ActorID)
	}
	if len(c.Roles) > 0 {
		req.Header.Set("X-Roles", strings.Join(c.Roles, ","))
	}
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}
