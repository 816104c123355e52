package models

import (
	"encoding/json"
	"time"
)

// Connection records a tenant's authorization state with one external provider.
// At most one connection exists per (tenant, provider) pair.
type Connection struct {
	TenantID             string    `json:"tenant_id"`
	Provider             string    `json:"provider"`
	Status               string    `json:"status"`
	ExternalConnectionID string    `json:"external_connection_id,omitempty"`
	Scopes               []string  `json:"scopes,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// Connection statuses.
const (
	ConnectionDisconnected = "disconnected"
	ConnectionPending      = "pending"
	ConnectionConnected    = "connected"
	ConnectionError        = "error"
)

// ApprovalRequest is a deferred write awaiting human sign-off. Parameters hold
// the exact arguments of the original call, byte for byte, so the operation can
// be re-invoked after approval. They are never mutated after creation.
type ApprovalRequest struct {
	RequestID    string          `json:"request_id"`
	TenantID     string          `json:"tenant_id"`
	Provider     string          `json:"provider"`
	ConnectionID string          `json:"connection_id,omitempty"`
	Operation    string          `json:"operation"`
	Parameters   json.RawMessage `json:"parameters"`
	Preview      string          `json:"preview,omitempty"`
	Status       string          `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	ApprovedAt   *time.Time      `json:"approved_at,omitempty"`
	ApprovedBy   string          `json:"approved_by,omitempty"`
}

// Approval statuses. A request moves pending -> approved or pending ->
// rejected, and an approved request moves to executed exactly once when its
// parameters are replayed. rejected and executed are terminal.
const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalRejected = "rejected"
	ApprovalExecuted = "executed"
)

// AuditRecord captures one operation attempt and its outcome. Records are
// append-only and never updated or deleted.
type AuditRecord struct {
	RecordID   string          `json:"record_id"`
	TenantID   string          `json:"tenant_id"`
	Provider   string          `json:"provider"`
	Operation  string          `json:"operation"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// OperationResult is returned by every adapter operation. Either Data carries
// the normalized provider response, or ApprovalRequired is true and Approval
// carries the pending request that gates the write.
type OperationResult struct {
	ApprovalRequired bool             `json:"approval_required"`
	Approval         *ApprovalRequest `json:"approval_request,omitempty"`
	Data             json.RawMessage  `json:"data,omitempty"`
}

// ConnectResponse is returned when a connect flow starts.
type ConnectResponse struct {
	Connection       Connection `json:"connection"`
	AuthorizationURL string     `json:"authorization_url,omitempty"`
}

// ProviderInfo describes one registered adapter.
type ProviderInfo struct {
	ID            string   `json:"id"`
	DefaultScopes []string `json:"default_scopes,omitempty"`
	Operations    []string `json:"operations"`
}
