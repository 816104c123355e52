// Package approval holds the lifecycle store for write-operation approval
// requests. A request is created pending, exactly one approve or reject may
// ever land on it, and an approved request is consumed by exactly one
// execution.
package approval

import (
	"context"
	"errors"

	"omnigate/pkg/models"
)

var (
	ErrNotFound       = errors.New("approval request not found")
	ErrAccessDenied   = errors.New("approval request belongs to another tenant")
	ErrAlreadyDecided = errors.New("approval request already decided")
	ErrNotApproved    = errors.New("approval request is not approved")
)

// CanTransition reports whether a status change is legal:
// pending -> approved, pending -> rejected, approved -> executed.
func CanTransition(from, to string) bool {
	switch from {
	case models.ApprovalPending:
		return to == models.ApprovalApproved || to == models.ApprovalRejected
	case models.ApprovalApproved:
		return to == models.ApprovalExecuted
	default:
		return false
	}
}

// IsTerminal reports whether no further transition is possible.
func IsTerminal(status string) bool {
	return status == models.ApprovalRejected || status == models.ApprovalExecuted
}

// CreateInput carries everything needed to park a write for later sign-off.
// Parameters are stored verbatim and are the basis for any later replay.
type CreateInput struct {
	TenantID     string
	Provider     string
	ConnectionID string
	Operation    string
	Parameters   []byte
	Preview      string
}

// Queue is the approval-request lifecycle store. Approve and Reject must
// resolve concurrent calls on the same request with exactly one winner; the
// loser observes ErrAlreadyDecided. MarkExecuted consumes the approval the
// same way, so a request's parameters replay at most once.
type Queue interface {
	Create(ctx context.Context, in CreateInput) (models.ApprovalRequest, error)
	// Get returns the request only if it is owned by tenantID.
	Get(ctx context.Context, requestID, tenantID string) (models.ApprovalRequest, error)
	// List returns tenantID's requests in insertion order, optionally
	// filtered by status ("" means all).
	List(ctx context.Context, tenantID, status string) ([]models.ApprovalRequest, error)
	Approve(ctx context.Context, requestID, tenantID, approverID string) (models.ApprovalRequest, error)
	Reject(ctx context.Context, requestID, tenantID, approverID string) (models.ApprovalRequest, error)
	// MarkExecuted moves an approved request to executed. A pending or
	// rejected request yields ErrNotApproved; an executed one yields
	// ErrAlreadyDecided, so of any concurrent callers exactly one wins.
	MarkExecuted(ctx context.Context, requestID, tenantID string) (models.ApprovalRequest, error)
}
