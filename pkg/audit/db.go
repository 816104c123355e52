package audit

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"omnigate/pkg/models"
)

type auditDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// DBLog appends audit records to Postgres. When Redact is set, sensitive
// parameter values are replaced with salted hashes before the insert.
type DBLog struct {
	DB       auditDB
	HashSalt []byte
	Redact   bool
}

func (l *DBLog) Append(ctx context.Context, rec models.AuditRecord) error {
	if l.Redact {
		rec.Parameters = RedactParams(rec.Parameters, l.HashSalt)
	}
	_, err := l.DB.Exec(ctx, `
		INSERT INTO audit_records
		(record_id, tenant_id, provider, operation, parameters, result, error, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, rec.RecordID, rec.TenantID, rec.Provider, rec.Operation, []byte(rec.Parameters), []byte(rec.Result), rec.Error, rec.CreatedAt)
	return err
}

func (l *DBLog) List(ctx context.Context, tenantID string, limit int) ([]models.AuditRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.DB.Query(ctx, `
		SELECT record_id, tenant_id, provider, operation, parameters, result, error, created_at
		FROM audit_records WHERE tenant_id=$1 ORDER BY created_at DESC LIMIT $2
	`, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.AuditRecord
	for rows.Next() {
		var rec models.AuditRecord
		var params, result []byte
		var errText *string
		if err := rows.Scan(&rec.RecordID, &rec.TenantID, &rec.Provider, &rec.Operation, &params, &result, &errText, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Parameters = params
		rec.Result = result
		if errText != nil {
			rec.Error = *errText
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
