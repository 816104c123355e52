package approval

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"omnigate/pkg/models"
)

// MemoryQueue is the map-backed Queue used by tests and single-node
// deployments. The decision check-then-set runs under one mutex so two
// concurrent decisions on the same request cannot both win.
type MemoryQueue struct {
	mu    sync.Mutex
	items map[string]*models.ApprovalRequest
	order []string
	now   func() time.Time
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		items: map[string]*models.ApprovalRequest{},
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (q *MemoryQueue) Create(ctx context.Context, in CreateInput) (models.ApprovalRequest, error) {
	_ = ctx
	req := models.ApprovalRequest{
		RequestID:    uuid.New().String(),
		TenantID:     in.TenantID,
		Provider:     in.Provider,
		ConnectionID: in.ConnectionID,
		Operation:    in.Operation,
		Parameters:   append([]byte(nil), in.Parameters...),
		Preview:      in.Preview,
		Status:       models.ApprovalPending,
		CreatedAt:    q.now(),
	}
	q.mu.Lock()
	q.items[req.RequestID] = &req
	q.order = append(q.order, req.RequestID)
	q.mu.Unlock()
	return cloneRequest(&req), nil
}

func (q *MemoryQueue) Get(ctx context.Context, requestID, tenantID string) (models.ApprovalRequest, error) {
	_ = ctx
	q.mu.Lock()
	defer q.mu.Unlock()
	req, ok := q.items[requestID]
	if !ok {
		return models.ApprovalRequest{}, ErrNotFound
	}
	if req.TenantID != tenantID {
		return models.ApprovalRequest{}, ErrAccessDenied
	}
	return cloneRequest(req), nil
}

func (q *MemoryQueue) List(ctx context.Context, tenantID, status string) ([]models.ApprovalRequest, error) {
	_ = ctx
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]models.ApprovalRequest, 0, len(q.order))
	for _, id := range q.order {
		req := q.items[id]
		if req.TenantID != tenantID {
			continue
		}
		if status != "" && req.Status != status {
			continue
		}
		out = append(out, cloneRequest(req))
	}
	return out, nil
}

func (q *MemoryQueue) Approve(ctx context.Context, requestID, tenantID, approverID string) (models.ApprovalRequest, error) {
	return q.decide(ctx, requestID, tenantID, approverID, models.ApprovalApproved)
}

func (q *MemoryQueue) Reject(ctx context.Context, requestID, tenantID, approverID string) (models.ApprovalRequest, error) {
	return q.decide(ctx, requestID, tenantID, approverID, models.ApprovalRejected)
}

func (q *MemoryQueue) decide(ctx context.Context, requestID, tenantID, approverID, to string) (models.ApprovalRequest, error) {
	_ = ctx
	q.mu.Lock()
	defer q.mu.Unlock()
	req, ok := q.items[requestID]
	if !ok {
		return models.ApprovalRequest{}, ErrNotFound
	}
	if req.TenantID != tenantID {
		return models.ApprovalRequest{}, ErrAccessDenied
	}
	if !CanTransition(req.Status, to) {
		return models.ApprovalRequest{}, ErrAlreadyDecided
	}
	now := q.now()
	req.Status = to
	req.ApprovedAt = &now
	req.ApprovedBy = approverID
	return cloneRequest(req), nil
}

func (q *MemoryQueue) MarkExecuted(ctx context.Context, requestID, tenantID string) (models.ApprovalRequest, error) {
	_ = ctx
	q.mu.Lock()
	defer q.mu.Unlock()
	req, ok := q.items[requestID]
	if !ok {
		return models.ApprovalRequest{}, ErrNotFound
	}
	if req.TenantID != tenantID {
		return models.ApprovalRequest{}, ErrAccessDenied
	}
	switch req.Status {
	case models.ApprovalApproved:
		req.Status = models.ApprovalExecuted
		return cloneRequest(req), nil
	case models.ApprovalExecuted:
		return models.ApprovalRequest{}, ErrAlreadyDecided
	default:
		return models.ApprovalRequest{}, ErrNotApproved
	}
}

func cloneRequest(req *models.ApprovalRequest) models.ApprovalRequest {
	out := *req
	out.Parameters = append([]byte(nil), req.Parameters...)
	if req.ApprovedAt != nil {
		at := *req.ApprovedAt
		out.ApprovedAt = &at
	}
	return out
}
