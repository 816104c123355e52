package main

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type schemaDB struct {
	applied map[string]bool
	execErr error
	rowErr  error
	tx      *schemaTx
	beginFn func(ctx context.Context) (pgx.Tx, error)
}

func (d *schemaDB) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	if d.execErr != nil {
		return pgconn.CommandTag{}, d.execErr
	}
	return pgconn.NewCommandTag("CREATE TABLE"), nil
}

func (d *schemaDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if d.rowErr != nil {
		return existsRow{err: d.rowErr}
	}
	name, _ := args[0].(string)
	return existsRow{exists: d.applied[name]}
}

func (d *schemaDB) Begin(ctx context.Context) (pgx.Tx, error) {
	if d.beginFn != nil {
		return d.beginFn(ctx)
	}
	if d.tx == nil {
		d.tx = &schemaTx{}
	}
	return d.tx, nil
}

type existsRow struct {
	exists bool
	err    error
}

func (r existsRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	b, ok := dest[0].(*bool)
	if !ok {
		return errors.New("existsRow scans into *bool only")
	}
	*b = r.exists
	return nil
}

// schemaTx records the statements run inside one migration transaction.
type schemaTx struct {
	statements []string
	failOn     int
	commitErr  error
	rollbacks  int
	commits    int
}

func (t *schemaTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	t.statements = append(t.statements, sql)
	if t.failOn > 0 && len(t.statements) == t.failOn {
		return pgconn.CommandTag{}, errors.New("statement failed")
	}
	return pgconn.NewCommandTag("EXEC 1"), nil
}

func (t *schemaTx) Commit(ctx context.Context) error {
	t.commits++
	return t.commitErr
}

func (t *schemaTx) Rollback(ctx context.Context) error {
	t.rollbacks++
	return nil
}

func (t *schemaTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *schemaTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, errors.New("not implemented")
}
func (t *schemaTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *schemaTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *schemaTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, errors.New("not implemented")
}
func (t *schemaTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}
func (t *schemaTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return existsRow{err: errors.New("not implemented")}
}
func (t *schemaTx) Conn() *pgx.Conn { return nil }

func staticFiles(files ...string) func(string) ([]string, error) {
	return func(string) ([]string, error) { return files, nil }
}

func staticSQL(sql string) func(string) ([]byte, error) {
	return func(string) ([]byte, error) { return []byte(sql), nil }
}

func TestResolveMigration(t *testing.T) {
	t.Parallel()

	clean, err := resolveMigration("migrations", "migrations/0001_init.sql")
	if err != nil {
		t.Fatalf("valid path rejected: %v", err)
	}
	if clean != filepath.Clean("migrations/0001_init.sql") {
		t.Fatalf("unexpected clean path: %s", clean)
	}
	if _, err := resolveMigration("migrations", "../escape.sql"); err == nil {
		t.Fatal("traversal path accepted")
	}
	if _, err := resolveMigration("migrations", "elsewhere/0001_init.sql"); err == nil {
		t.Fatal("sibling directory accepted")
	}
}

func TestApplyMigrationsInOrderSkippingApplied(t *testing.T) {
	t.Parallel()

	db := &schemaDB{applied: map[string]bool{"0001_init.sql": true}}
	reads := []string{}
	readFile := func(name string) ([]byte, error) {
		reads = append(reads, name)
		return []byte("CREATE TABLE t (id TEXT);"), nil
	}
	var logs []string
	logf := func(format string, args ...any) { logs = append(logs, format) }

	err := applyMigrations(context.Background(), db, "migrations",
		readFile, staticFiles("migrations/0002_indexes.sql", "migrations/0001_init.sql"), logf)
	if err != nil {
		t.Fatalf("applyMigrations: %v", err)
	}
	if len(reads) != 1 || filepath.Base(reads[0]) != "0002_indexes.sql" {
		t.Fatalf("only the unapplied file should be read, got %v", reads)
	}
	if db.tx.commits != 1 || db.tx.rollbacks != 0 {
		t.Fatalf("tx commits=%d rollbacks=%d", db.tx.commits, db.tx.rollbacks)
	}
	// Statement 1 is the migration SQL itself, statement 2 the ledger insert.
	if len(db.tx.statements) != 2 || !strings.Contains(db.tx.statements[1], "schema_migrations") {
		t.Fatalf("unexpected tx statements: %v", db.tx.statements)
	}
	if len(logs) != 2 {
		t.Fatalf("expected applied + summary logs, got %v", logs)
	}
}

func TestApplyMigrationsFailureRollsBack(t *testing.T) {
	t.Parallel()

	for name, failOn := range map[string]int{"run failure": 1, "record failure": 2} {
		failOn := failOn
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			tx := &schemaTx{failOn: failOn}
			db := &schemaDB{applied: map[string]bool{}, beginFn: func(ctx context.Context) (pgx.Tx, error) { return tx, nil }}
			err := applyMigrations(context.Background(), db, "migrations",
				staticSQL("CREATE TABLE t (id TEXT);"), staticFiles("migrations/0001_init.sql"), nil)
			if err == nil {
				t.Fatal("expected failure")
			}
			if tx.rollbacks != 1 || tx.commits != 0 {
				t.Fatalf("rollbacks=%d commits=%d", tx.rollbacks, tx.commits)
			}
		})
	}
}

func TestApplyMigrationsErrorSurface(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		db       migratorConn
		glob     func(string) ([]string, error)
		readFile func(string) ([]byte, error)
		want     string
	}{
		{
			name: "nil db",
			want: "nil database handle",
		},
		{
			name: "ledger table creation fails",
			db:   &schemaDB{execErr: errors.New("down")},
			want: "ensure ledger",
		},
		{
			name: "glob fails",
			db:   &schemaDB{},
			glob: func(string) ([]string, error) { return nil, errors.New("bad pattern") },
			want: "list migrations",
		},
		{
			name: "path escapes migrations dir",
			db:   &schemaDB{},
			glob: staticFiles("../evil.sql"),
			want: "escapes directory",
		},
		{
			name: "ledger lookup fails",
			db:   &schemaDB{rowErr: errors.New("down")},
			glob: staticFiles("migrations/0001_init.sql"),
			want: "check 0001_init.sql",
		},
		{
			name:     "file read fails",
			db:       &schemaDB{applied: map[string]bool{}},
			glob:     staticFiles("migrations/0001_init.sql"),
			readFile: func(string) ([]byte, error) { return nil, errors.New("gone") },
			want:     "read 0001_init.sql",
		},
		{
			name: "begin fails",
			db: &schemaDB{
				applied: map[string]bool{},
				beginFn: func(ctx context.Context) (pgx.Tx, error) { return nil, errors.New("down") },
			},
			glob:     staticFiles("migrations/0001_init.sql"),
			readFile: staticSQL("SELECT 1;"),
			want:     "begin 0001_init.sql",
		},
		{
			name: "commit fails",
			db: &schemaDB{
				applied: map[string]bool{},
				beginFn: func(ctx context.Context) (pgx.Tx, error) {
					return &schemaTx{commitErr: errors.New("down")}, nil
				},
			},
			glob:     staticFiles("migrations/0001_init.sql"),
			readFile: staticSQL("SELECT 1;"),
			want:     "commit 0001_init.sql",
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := applyMigrations(context.Background(), tc.db, "migrations", tc.readFile, tc.glob, nil)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("want error containing %q, got %v", tc.want, err)
			}
		})
	}
}
