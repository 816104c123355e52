// Package broker is the narrow boundary to the external token-and-proxy
// service. The broker owns OAuth flows, refresh tokens and per-provider field
// mapping; this client only attaches routing identifiers and moves JSON.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
)

// Client is everything the gateway depends on from the broker: obtain an
// authorization URL for a connect flow, and proxy an arbitrary call for an
// authorized connection. Token acquisition and refresh are opaque here.
type Client interface {
	AuthorizeURL(ctx context.Context, provider, tenantID string, scopes []string) (string, error)
	Proxy(ctx context.Context, call Call) (json.RawMessage, error)
}

// Call describes one proxied provider API call.
type Call struct {
	Provider     string            `json:"provider"`
	ConnectionID string            `json:"connection_id"`
	Method       string            `json:"method"`
	Endpoint     string            `json:"endpoint"`
	Params       map[string]string `json:"params,omitempty"`
	Body         json.RawMessage   `json:"body,omitempty"`
}

// TransportError carries the upstream status and detail of a failed broker
// call. The gateway records it and surfaces it unmodified; it never retries
// and never translates broker error codes.
type TransportError struct {
	Status int
	Detail string
}

func (e *TransportError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("broker transport error: %s", e.Detail)
	}
	return fmt.Sprintf("broker transport error: status=%d detail=%s", e.Status, e.Detail)
}
