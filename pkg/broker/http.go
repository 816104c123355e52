package broker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"omnigate/pkg/httpx"
)

// ErrNotConfigured is returned when the broker base URL is missing.
var ErrNotConfigured = errors.New("broker base url not configured")

// HTTPClient talks to the broker over HTTP. Calls run under a bounded timeout
// and are never retried here; retry policy belongs to the caller.
type HTTPClient struct {
	Client     *http.Client
	BaseURL    string
	AuthHeader string
	AuthToken  string
	Timeout    time.Duration
}

type authorizeRequest struct {
	Provider string   `json:"provider"`
	TenantID string   `json:"tenant_id"`
	Scopes   []string `json:"scopes,omitempty"`
}

type authorizeResponse struct {
	AuthorizationURL string `json:"authorization_url"`
}

func (c *HTTPClient) AuthorizeURL(ctx context.Context, provider, tenantID string, scopes []string) (string, error) {
	body, err := c.post(ctx, "/v1/connections/authorize", authorizeRequest{
		Provider: provider,
		TenantID: tenantID,
		Scopes:   scopes,
	})
	if err != nil {
		return "", err
	}
	var resp authorizeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &TransportError{Detail: "invalid authorize response: " + err.Error()}
	}
	return resp.AuthorizationURL, nil
}

func (c *HTTPClient) Proxy(ctx context.Context, call Call) (json.RawMessage, error) {
	return c.post(ctx, "/v1/proxy", call)
}

func (c *HTTPClient) post(ctx context.Context, path string, payload interface{}) (json.RawMessage, error) {
	base := strings.TrimSuffix(strings.TrimSpace(c.BaseURL), "/")
	if base == "" {
		return nil, ErrNotConfigured
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	headers := map[string]string{}
	if c.AuthHeader != "" && c.AuthToken != "" {
		headers[c.AuthHeader] = c.AuthToken
	}
	status, body, err := httpx.RequestJSON(callCtx, c.Client, http.MethodPost, base+path, raw, headers, 0, 0)
	if err != nil {
		return nil, &TransportError{Detail: err.Error()}
	}
	if status >= 300 {
		return nil, &TransportError{Status: status, Detail: strings.TrimSpace(string(body))}
	}
	return body, nil
}
