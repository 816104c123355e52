package connections

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"omnigate/pkg/models"
)

type fakeConnDB struct {
	execFn     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	queryFn    func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	queryRowFn func(ctx context.Context, sql string, args ...any) pgx.Row
}

func (f *fakeConnDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return f.execFn(ctx, sql, args...)
}

func (f *fakeConnDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return f.queryFn(ctx, sql, args...)
}

func (f *fakeConnDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return f.queryRowFn(ctx, sql, args...)
}

type fakeConnRow struct {
	values []any
	err    error
}

func (r fakeConnRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return errors.New("scan arity mismatch")
	}
	for i := range dest {
		switch d := dest[i].(type) {
		case *string:
			*d = r.values[i].(string)
		case **string:
			if r.values[i] == nil {
				*d = nil
			} else {
				tmp := r.values[i].(string)
				*d = &tmp
			}
		case *[]string:
			*d = append([]string(nil), r.values[i].([]string)...)
		case *time.Time:
			*d = r.values[i].(time.Time)
		default:
			return errors.New("unsupported scan destination")
		}
	}
	return nil
}

func connRow(tenant, provider, status, externalID string) []any {
	now := time.Now().UTC()
	var ext any
	if externalID != "" {
		ext = externalID
	}
	return []any{tenant, provider, status, ext, []string{"scope.read"}, now, now}
}

func TestDBStoreGet(t *testing.T) {
	t.Parallel()

	db := &fakeConnDB{queryRowFn: func(ctx context.Context, sql string, args ...any) pgx.Row {
		return fakeConnRow{values: connRow("t1", "hubspot", models.ConnectionConnected, "ext-1")}
	}}
	s := &DBStore{DB: db}

	conn, found, err := s.Get(context.Background(), "t1", "hubspot")
	if err != nil || !found {
		t.Fatalf("get: found=%v err=%v", found, err)
	}
	if conn.ExternalConnectionID != "ext-1" || len(conn.Scopes) != 1 {
		t.Fatalf("unexpected connection: %+v", conn)
	}

	db.queryRowFn = func(ctx context.Context, sql string, args ...any) pgx.Row {
		return fakeConnRow{err: pgx.ErrNoRows}
	}
	if _, found, err := s.Get(context.Background(), "t1", "hubspot"); err != nil || found {
		t.Fatalf("absent get: found=%v err=%v", found, err)
	}
}

func TestDBStoreDelete(t *testing.T) {
	t.Parallel()

	db := &fakeConnDB{execFn: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
		return pgconn.NewCommandTag("DELETE 1"), nil
	}}
	s := &DBStore{DB: db}

	deleted, err := s.Delete(context.Background(), "t1", "hubspot")
	if err != nil || !deleted {
		t.Fatalf("delete: deleted=%v err=%v", deleted, err)
	}

	db.execFn = func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
		return pgconn.NewCommandTag("DELETE 0"), nil
	}
	deleted, err = s.Delete(context.Background(), "t1", "hubspot")
	if err != nil {
		t.Fatalf("delete absent: %v", err)
	}
	if deleted {
		t.Fatal("absent delete must report false")
	}
}

func TestDBStoreUpdateStatusAbsent(t *testing.T) {
	t.Parallel()

	db := &fakeConnDB{queryRowFn: func(ctx context.Context, sql string, args ...any) pgx.Row {
		return fakeConnRow{err: pgx.ErrNoRows}
	}}
	s := &DBStore{DB: db}

	_, found, err := s.UpdateStatus(context.Background(), "t1", "hubspot", models.ConnectionConnected, "ext")
	if err != nil || found {
		t.Fatalf("absent update: found=%v err=%v", found, err)
	}
}

func TestDBStoreSaveReturnsStoredRow(t *testing.T) {
	t.Parallel()

	db := &fakeConnDB{queryRowFn: func(ctx context.Context, sql string, args ...any) pgx.Row {
		if len(args) != 6 {
			t.Fatalf("unexpected args: %v", args)
		}
		return fakeConnRow{values: connRow("t1", "guesty", models.ConnectionPending, "")}
	}}
	s := &DBStore{DB: db}

	conn, err := s.Save(context.Background(), models.Connection{TenantID: "t1", Provider: "guesty", Status: models.ConnectionPending})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if conn.Provider != "guesty" || conn.ExternalConnectionID != "" {
		t.Fatalf("unexpected connection: %+v", conn)
	}
}
