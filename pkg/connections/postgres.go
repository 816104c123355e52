package connections

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"omnigate/pkg/models"
)

type connDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DBStore is the Postgres-backed Store. The (tenant_id, provider) primary key
// plus ON CONFLICT upserts give per-key atomicity without explicit locking.
type DBStore struct {
	DB connDB
}

const connColumns = `tenant_id, provider, status, external_connection_id, scopes, created_at, updated_at`

func (s *DBStore) Get(ctx context.Context, tenantID, provider string) (models.Connection, bool, error) {
	row := s.DB.QueryRow(ctx, `SELECT `+connColumns+` FROM connections WHERE tenant_id=$1 AND provider=$2`, tenantID, provider)
	conn, err := scanConnection(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Connection{}, false, nil
		}
		return models.Connection{}, false, err
	}
	return conn, true, nil
}

func (s *DBStore) List(ctx context.Context, tenantID string) ([]models.Connection, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+connColumns+` FROM connections WHERE tenant_id=$1 ORDER BY provider`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Connection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, conn)
	}
	return out, rows.Err()
}

func (s *DBStore) Save(ctx context.Context, conn models.Connection) (models.Connection, error) {
	now := time.Now().UTC()
	row := s.DB.QueryRow(ctx, `
		INSERT INTO connections (tenant_id, provider, status, external_connection_id, scopes, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$6)
		ON CONFLICT (tenant_id, provider) DO UPDATE SET
			status=EXCLUDED.status,
			external_connection_id=EXCLUDED.external_connection_id,
			scopes=EXCLUDED.scopes,
			updated_at=EXCLUDED.updated_at
		RETURNING `+connColumns, conn.TenantID, conn.Provider, conn.Status, conn.ExternalConnectionID, conn.Scopes, now)
	return scanConnection(row)
}

func (s *DBStore) Delete(ctx context.Context, tenantID, provider string) (bool, error) {
	tag, err := s.DB.Exec(ctx, `DELETE FROM connections WHERE tenant_id=$1 AND provider=$2`, tenantID, provider)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *DBStore) UpdateStatus(ctx context.Context, tenantID, provider, status, externalID string) (models.Connection, bool, error) {
	row := s.DB.QueryRow(ctx, `
		UPDATE connections SET
			status=$3,
			external_connection_id=CASE WHEN $4 <> '' THEN $4 ELSE external_connection_id END,
			updated_at=$5
		WHERE tenant_id=$1 AND provider=$2
		RETURNING `+connColumns, tenantID, provider, status, externalID, time.Now().UTC())
	conn, err := scanConnection(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Connection{}, false, nil
		}
		return models.Connection{}, false, err
	}
	return conn, true, nil
}

func scanConnection(row pgx.Row) (models.Connection, error) {
	var conn models.Connection
	var externalID *string
	if err := row.Scan(&conn.TenantID, &conn.Provider, &conn.Status, &externalID, &conn.Scopes, &conn.CreatedAt, &conn.UpdatedAt); err != nil {
		return models.Connection{}, err
	}
	if externalID != nil {
		conn.ExternalConnectionID = *externalID
	}
	return conn, nil
}
