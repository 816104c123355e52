package audit

import (
	"context"
	"sync"

	"omnigate/pkg/models"
)

// MemoryLog keeps records in insertion order. Capacity bounds growth; once
// full the oldest records are dropped.
type MemoryLog struct {
	mu       sync.Mutex
	records  []models.AuditRecord
	capacity int
}

func NewMemoryLog(capacity int) *MemoryLog {
	if capacity <= 0 {
		capacity = 10000
	}
	return &MemoryLog{capacity: capacity}
}

func (l *MemoryLog) Append(ctx context.Context, rec models.AuditRecord) error {
	_ = ctx
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
	if len(l.records) > l.capacity {
		l.records = l.records[len(l.records)-l.capacity:]
	}
	return nil
}

func (l *MemoryLog) List(ctx context.Context, tenantID string, limit int) ([]models.AuditRecord, error) {
	_ = ctx
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.AuditRecord, 0)
	for _, rec := range l.records {
		if rec.TenantID == tenantID {
			out = append(out, rec)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}
