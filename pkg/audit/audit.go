// Package audit records one immutable entry per operation attempt. Appends
// are best-effort by contract: a failed append is logged and never alters the
// outcome of the operation it describes. The memory backend does not survive
// process restarts; durability requires the Postgres backend.
package audit

import (
	"context"
	"log"

	"omnigate/pkg/models"
)

// Log is the append-only audit sink.
type Log interface {
	Append(ctx context.Context, rec models.AuditRecord) error
	List(ctx context.Context, tenantID string, limit int) ([]models.AuditRecord, error)
}

// BestEffort wraps an append so callers never branch on audit failures.
func BestEffort(ctx context.Context, l Log, rec models.AuditRecord) {
	if l == nil {
		return
	}
	if err := l.Append(ctx, rec); err != nil {
		log.Printf("audit append dropped: tenant=%s provider=%s op=%s err=%v", rec.TenantID, rec.Provider, rec.Operation, err)
	}
}

// Nop discards every record; used when AUDIT_LOG_ENABLED=false.
type Nop struct{}

func (Nop) Append(ctx context.Context, rec models.AuditRecord) error { return nil }

func (Nop) List(ctx context.Context, tenantID string, limit int) ([]models.AuditRecord, error) {
	return nil, nil
}
