package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*/*.sql
var migrationFiles embed.FS

// migration is one embedded script, named NNN_description.sql.
type migration struct {
	version int
	name    string
	sql     string
}

// loadMigrations reads the scripts of one dialect directory in version order.
func loadMigrations(dialect string) ([]migration, error) {
	dir := path.Join("migrations", dialect)
	entries, err := fs.ReadDir(migrationFiles, dir)
	if err != nil {
		return nil, fmt.Errorf("read %s migrations: %w", dialect, err)
	}

	var out []migration
	for _, e := range entries {
		base, ok := strings.CutSuffix(e.Name(), ".sql")
		if e.IsDir() || !ok {
			continue
		}
		num, name, _ := strings.Cut(base, "_")
		version, err := strconv.Atoi(num)
		if err != nil {
			return nil, fmt.Errorf("migration %s: file name must start with a version number", e.Name())
		}
		body, err := fs.ReadFile(migrationFiles, path.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, migration{version: version, name: name, sql: string(body)})
	}
	slices.SortFunc(out, func(a, b migration) int { return a.version - b.version })
	for i := 1; i < len(out); i++ {
		if out[i].version == out[i-1].version {
			return nil, fmt.Errorf("duplicate %s migration version %d", dialect, out[i].version)
		}
	}
	return out, nil
}

const createSchemaVersion = `CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`

// execer runs one statement inside a migration transaction.
type execer func(ctx context.Context, stmt string, args ...any) error

// migrationTarget is the per-driver surface the runner needs.
type migrationTarget struct {
	dialect    string
	recordStmt string
	exec       execer
	current    func(ctx context.Context) (int, error)
	inTx       func(ctx context.Context, fn func(exec execer) error) error
}

// migrate brings the target up to the newest embedded version, one
// transaction per migration. Applied versions are never re-run.
func migrate(ctx context.Context, t migrationTarget) error {
	all, err := loadMigrations(t.dialect)
	if err != nil {
		return err
	}
	if err := t.exec(ctx, createSchemaVersion); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}
	current, err := t.current(ctx)
	if err != nil {
		return fmt.Errorf("read schema_version: %w", err)
	}

	for _, m := range all {
		if m.version <= current {
			continue
		}
		err := t.inTx(ctx, func(exec execer) error {
			for _, stmt := range splitStatements(m.sql) {
				if err := exec(ctx, stmt); err != nil {
					return err
				}
			}
			return exec(ctx, t.recordStmt, m.version, m.name)
		})
		if err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
	}
	return nil
}

const currentVersionQuery = `SELECT COALESCE(MAX(version), 0) FROM schema_version`

func sqlTarget(db *sql.DB) migrationTarget {
	return migrationTarget{
		dialect:    "libsql",
		recordStmt: `INSERT INTO schema_version (version, name) VALUES (?, ?)`,
		exec: func(ctx context.Context, stmt string, args ...any) error {
			_, err := db.ExecContext(ctx, stmt, args...)
			return err
		},
		current: func(ctx context.Context) (n int, err error) {
			err = db.QueryRowContext(ctx, currentVersionQuery).Scan(&n)
			return n, err
		},
		inTx: func(ctx context.Context, fn func(execer) error) error {
			tx, err := db.BeginTx(ctx, nil)
			if err != nil {
				return err
			}
			err = fn(func(ctx context.Context, stmt string, args ...any) error {
				_, err := tx.ExecContext(ctx, stmt, args...)
				return err
			})
			if err != nil {
				_ = tx.Rollback()
				return err
			}
			return tx.Commit()
		},
	}
}

func pgxTarget(pool *pgxpool.Pool) migrationTarget {
	return migrationTarget{
		dialect:    "postgres",
		recordStmt: `INSERT INTO schema_version (version, name) VALUES ($1, $2)`,
		exec: func(ctx context.Context, stmt string, args ...any) error {
			_, err := pool.Exec(ctx, stmt, args...)
			return err
		},
		current: func(ctx context.Context) (n int, err error) {
			err = pool.QueryRow(ctx, currentVersionQuery).Scan(&n)
			return n, err
		},
		inTx: func(ctx context.Context, fn func(execer) error) error {
			return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
				return fn(func(ctx context.Context, stmt string, args ...any) error {
					_, err := tx.Exec(ctx, stmt, args...)
					return err
				})
			})
		},
	}
}

// splitStatements splits a script on semicolons and drops fragments made
// only of comments. Scripts must not contain semicolons inside literals.
func splitStatements(script string) []string {
	var stmts []string
	for _, raw := range strings.Split(script, ";") {
		s := strings.TrimSpace(raw)
		hasCode := slices.ContainsFunc(strings.Split(s, "\n"), func(l string) bool {
			l = strings.TrimSpace(l)
			return l != "" && !strings.HasPrefix(l, "--")
		})
		if hasCode {
			stmts = append(stmts, s)
		}
	}
	return stmts
}
