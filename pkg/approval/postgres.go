package approval

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"omnigate/pkg/models"
)

type queueDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DBQueue is the Postgres-backed Queue. The decision is a conditional UPDATE
// keyed on status='pending'; the row count tells the loser apart from the
// winner without a read-then-write race.
type DBQueue struct {
	DB queueDB
}

func (q *DBQueue) Create(ctx context.Context, in CreateInput) (models.ApprovalRequest, error) {
	req := models.ApprovalRequest{
		RequestID:    uuid.New().String(),
		TenantID:     in.TenantID,
		Provider:     in.Provider,
		ConnectionID: in.ConnectionID,
		Operation:    in.Operation,
		Parameters:   append([]byte(nil), in.Parameters...),
		Preview:      in.Preview,
		Status:       models.ApprovalPending,
		CreatedAt:    time.Now().UTC(),
	}
	_, err := q.DB.Exec(ctx, `
		INSERT INTO approval_requests
		(request_id, tenant_id, provider, connection_id, operation, parameters, preview, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, req.RequestID, req.TenantID, req.Provider, req.ConnectionID, req.Operation, []byte(req.Parameters), req.Preview, req.Status, req.CreatedAt)
	if err != nil {
		return models.ApprovalRequest{}, err
	}
	return req, nil
}

func (q *DBQueue) Get(ctx context.Context, requestID, tenantID string) (models.ApprovalRequest, error) {
	row := q.DB.QueryRow(ctx, `
		SELECT request_id, tenant_id, provider, connection_id, operation, parameters, preview, status, created_at, approved_at, approved_by
		FROM approval_requests WHERE request_id=$1
	`, requestID)
	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ApprovalRequest{}, ErrNotFound
		}
		return models.ApprovalRequest{}, err
	}
	if req.TenantID != tenantID {
		return models.ApprovalRequest{}, ErrAccessDenied
	}
	return req, nil
}

func (q *DBQueue) List(ctx context.Context, tenantID, status string) ([]models.ApprovalRequest, error) {
	query := `
		SELECT request_id, tenant_id, provider, connection_id, operation, parameters, preview, status, created_at, approved_at, approved_by
		FROM approval_requests WHERE tenant_id=$1`
	args := []any{tenantID}
	if status != "" {
		query += ` AND status=$2`
		args = append(args, status)
	}
	query += ` ORDER BY created_at, request_id`
	rows, err := q.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.ApprovalRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func (q *DBQueue) Approve(ctx context.Context, requestID, tenantID, approverID string) (models.ApprovalRequest, error) {
	return q.decide(ctx, requestID, tenantID, approverID, models.ApprovalApproved)
}

func (q *DBQueue) Reject(ctx context.Context, requestID, tenantID, approverID string) (models.ApprovalRequest, error) {
	return q.decide(ctx, requestID, tenantID, approverID, models.ApprovalRejected)
}

func (q *DBQueue) decide(ctx context.Context, requestID, tenantID, approverID, to string) (models.ApprovalRequest, error) {
	// Tenant ownership is checked before the transition so a mismatch reports
	// ACCESS_DENIED rather than leaking whether the request is still pending.
	var owner string
	err := q.DB.QueryRow(ctx, `SELECT tenant_id FROM approval_requests WHERE request_id=$1`, requestID).Scan(&owner)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ApprovalRequest{}, ErrNotFound
		}
		return models.ApprovalRequest{}, err
	}
	if owner != tenantID {
		return models.ApprovalRequest{}, ErrAccessDenied
	}
	tag, err := q.DB.Exec(ctx, `
		UPDATE approval_requests SET status=$3, approved_at=$4, approved_by=$5
		WHERE request_id=$1 AND tenant_id=$2 AND status='pending'
	`, requestID, tenantID, to, time.Now().UTC(), approverID)
	if err != nil {
		return models.ApprovalRequest{}, err
	}
	if tag.RowsAffected() == 0 {
		return models.ApprovalRequest{}, ErrAlreadyDecided
	}
	return q.Get(ctx, requestID, tenantID)
}

// MarkExecuted consumes an approved request with the same conditional-UPDATE
// pattern as decide, keyed on status='approved'.
func (q *DBQueue) MarkExecuted(ctx context.Context, requestID, tenantID string) (models.ApprovalRequest, error) {
	var owner, status string
	err := q.DB.QueryRow(ctx, `SELECT tenant_id, status FROM approval_requests WHERE request_id=$1`, requestID).Scan(&owner, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ApprovalRequest{}, ErrNotFound
		}
		return models.ApprovalRequest{}, err
	}
	if owner != tenantID {
		return models.ApprovalRequest{}, ErrAccessDenied
	}
	tag, err := q.DB.Exec(ctx, `
		UPDATE approval_requests SET status=$3
		WHERE request_id=$1 AND tenant_id=$2 AND status='approved'
	`, requestID, tenantID, models.ApprovalExecuted)
	if err != nil {
		return models.ApprovalRequest{}, err
	}
	if tag.RowsAffected() == 0 {
		// The row count decides; the pre-read status only picks the error.
		if status == models.ApprovalPending || status == models.ApprovalRejected {
			return models.ApprovalRequest{}, ErrNotApproved
		}
		return models.ApprovalRequest{}, ErrAlreadyDecided
	}
	return q.Get(ctx, requestID, tenantID)
}

func scanRequest(row pgx.Row) (models.ApprovalRequest, error) {
	var req models.ApprovalRequest
	var params []byte
	var approvedAt *time.Time
	var approvedBy *string
	if err := row.Scan(&req.RequestID, &req.TenantID, &req.Provider, &req.ConnectionID, &req.Operation, &params, &req.Preview, &req.Status, &req.CreatedAt, &approvedAt, &approvedBy); err != nil {
		return models.ApprovalRequest{}, err
	}
	req.Parameters = params
	req.ApprovedAt = approvedAt
	if approvedBy != nil {
		req.ApprovedBy = *approvedBy
	}
	return req, nil
}
