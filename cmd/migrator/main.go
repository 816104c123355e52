// Command migrator brings the Postgres schema up to date. Every
// migrations/*.sql file runs at most once, in lexical order, inside its own
// transaction; applied files are recorded in the schema_migrations ledger.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"omnigate/pkg/store"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type migratorConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type migratorPool interface {
	migratorConn
	Close()
}

// Testable variables for main()
var (
	logFatalf = log.Fatalf
	openDBFn  = func(ctx context.Context) (migratorPool, error) {
		return store.NewPostgresPool(ctx)
	}
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	pool, err := openDBFn(ctx)
	if err != nil {
		logFatalf("connect: %v", err)
		return
	}
	defer pool.Close()

	if err := applyMigrations(ctx, pool, "migrations", nil, nil, log.Printf); err != nil {
		logFatalf("migrate: %v", err)
	}
}

// resolveMigration rejects file paths that escape the migrations directory.
func resolveMigration(dir, file string) (string, error) {
	clean := filepath.Clean(file)
	if !strings.HasPrefix(clean, filepath.Clean(dir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("migration %q escapes directory %q", file, dir)
	}
	return clean, nil
}

func ensureLedger(ctx context.Context, db migratorConn) error {
	_, err := db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure ledger: %w", err)
	}
	return nil
}

func applyMigrations(
	ctx context.Context,
	db migratorConn,
	dir string,
	readFile func(name string) ([]byte, error),
	glob func(pattern string) ([]string, error),
	logf func(format string, args ...any),
) error {
	if db == nil {
		return errors.New("nil database handle")
	}
	if readFile == nil {
		// #nosec G304 -- resolveMigration pins every path inside dir.
		readFile = os.ReadFile
	}
	if glob == nil {
		glob = filepath.Glob
	}
	if logf == nil {
		logf = log.Printf
	}

	if err := ensureLedger(ctx, db); err != nil {
		return err
	}

	dir = filepath.Clean(dir)
	files, err := glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return fmt.Errorf("list %s: %w", dir, err)
	}
	sort.Strings(files)

	applied := 0
	for _, file := range files {
		ran, err := applyOne(ctx, db, dir, file, readFile)
		if err != nil {
			return err
		}
		if ran {
			applied++
			logf("applied %s", filepath.Base(file))
		}
	}
	logf("schema current: %d applied, %d total", applied, len(files))
	return nil
}

// applyOne runs a single migration file unless the ledger already has it.
// The SQL and the ledger insert share one transaction, so a failed file
// leaves no trace.
func applyOne(ctx context.Context, db migratorConn, dir, file string, readFile func(string) ([]byte, error)) (bool, error) {
	path, err := resolveMigration(dir, file)
	if err != nil {
		return false, err
	}
	name := filepath.Base(path)
	var done bool
	if err := db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE filename=$1)`, name).Scan(&done); err != nil {
		return false, fmt.Errorf("check %s: %w", name, err)
	}
	if done {
		return false, nil
	}
	raw, err := readFile(path)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", name, err)
	}
	tx, err := db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin %s: %w", name, err)
	}
	if _, err := tx.Exec(ctx, string(raw)); err != nil {
		_ = tx.Rollback(ctx)
		return false, fmt.Errorf("run %s: %w", name, err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations(filename) VALUES($1)`, name); err != nil {
		_ = tx.Rollback(ctx)
		return false, fmt.Errorf("record %s: %w", name, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit %s: %w", name, err)
	}
	return true, nil
}
