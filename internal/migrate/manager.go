// Package migrate applies the SQL schema migrations and seed files shipped
// with the binary. Bookkeeping lives in two tables so migrations and seeds
// are each applied exactly once.
package migrate

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"counselsoc.org/internal/obs"
)

const (
	migrationsTable = "schema_migrations"
	seedsTable      = "schema_seeds"

	upSuffix   = ".up.sql"
	downSuffix = ".down.sql"
)

// Manager runs migrations and seeds out of a file system, typically an
// embed.FS rooted at the migrations directory.
type Manager struct {
	db    *sql.DB
	files fs.FS
}

// NewManager constructs a Manager over the given file system. Migration
// files live under sql/ and seed files under seeds/.
func NewManager(db *sql.DB, files fs.FS) *Manager {
	return &Manager{db: db, files: files}
}

// Up applies every pending migration in lexical order.
func (m *Manager) Up(ctx context.Context) error {
	if err := m.ensureTables(ctx); err != nil {
		return err
	}
	applied, err := m.applied(ctx, migrationsTable)
	if err != nil {
		return err
	}
	names, err := m.list("sql", upSuffix)
	if err != nil {
		return err
	}
	for _, name := range names {
		if applied[name] {
			continue
		}
		if err := m.apply(ctx, "sql/"+name); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if err := m.record(ctx, migrationsTable, name); err != nil {
			return err
		}
		logStep("migrate_up", name)
	}
	return nil
}

// Down rolls back the most recently applied migration using its .down.sql
// counterpart.
func (m *Manager) Down(ctx context.Context) error {
	if err := m.ensureTables(ctx); err != nil {
		return err
	}
	history, err := m.history(ctx, migrationsTable)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		return errors.New("migrate: nothing to roll back")
	}
	last := history[len(history)-1]
	down := strings.TrimSuffix(last, upSuffix) + downSuffix
	if _, err := fs.Stat(m.files, "sql/"+down); err != nil {
		return fmt.Errorf("migrate: no down file for %s", last)
	}
	if err := m.apply(ctx, "sql/"+down); err != nil {
		return fmt.Errorf("rollback %s: %w", last, err)
	}
	_, err = m.db.ExecContext(ctx,
		`delete from `+migrationsTable+` where name = $1`, last)
	if err == nil {
		logStep("migrate_down", last)
	}
	return err
}

// Status returns applied migrations in application order.
func (m *Manager) Status(ctx context.Context) ([]string, error) {
	if err := m.ensureTables(ctx); err != nil {
		return nil, err
	}
	return m.history(ctx, migrationsTable)
}

// Seed applies pending seed files. Seeds are tracked like migrations, so a
// redeploy never re-runs one.
func (m *Manager) Seed(ctx context.Context) error {
	if err := m.ensureTables(ctx); err != nil {
		return err
	}
	applied, err := m.applied(ctx, seedsTable)
	if err != nil {
		return err
	}
	names, err := m.list("seeds", ".sql")
	if err != nil {
		return err
	}
	for _, name := range names {
		if applied[name] {
			continue
		}
		if err := m.apply(ctx, "seeds/"+name); err != nil {
			return fmt.Errorf("apply seed %s: %w", name, err)
		}
		if err := m.record(ctx, seedsTable, name); err != nil {
			return err
		}
		logStep("seed", name)
	}
	return nil
}

func (m *Manager) ensureTables(ctx context.Context) error {
	for _, table := range []string{migrationsTable, seedsTable} {
		_, err := m.db.ExecContext(ctx, `
			create table if not exists `+table+` (
				name text primary key,
				applied_at timestamptz not null default now()
			)`)
		if err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) list(dir, suffix string) ([]string, error) {
	entries, err := fs.ReadDir(m.files, dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), suffix) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// apply runs one file inside a transaction so a failed migration leaves no
// partial state behind.
func (m *Manager) apply(ctx context.Context, path string) error {
	raw, err := fs.ReadFile(m.files, path)
	if err != nil {
		return err
	}
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range splitStatements(string(raw)) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (m *Manager) record(ctx context.Context, table, name string) error {
	_, err := m.db.ExecContext(ctx,
		`insert into `+table+`(name, applied_at) values ($1, $2)`,
		name, time.Now().UTC())
	return err
}

func (m *Manager) applied(ctx context.Context, table string) (map[string]bool, error) {
	history, err := m.history(ctx, table)
	if err != nil {
		return nil, err
	}
	applied := make(map[string]bool, len(history))
	for _, name := range history {
		applied[name] = true
	}
	return applied, nil
}

func (m *Manager) history(ctx context.Context, table string) ([]string, error) {
	rows, err := m.db.QueryContext(ctx,
		`select name from `+table+` order by applied_at asc, name asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// splitStatements splits on semicolons outside single-quoted strings. Enough
// for plain DDL and seed inserts; functions with embedded semicolons would
// need a real parser.
func splitStatements(script string) []string {
	var (
		stmts    []string
		current  strings.Builder
		inString bool
	)
	for _, r := range script {
		current.WriteRune(r)
		switch r {
		case '\'':
			inString = !inString
		case ';':
			if !inString {
				stmts = append(stmts, current.String())
				current.Reset()
			}
		}
	}
	if strings.TrimSpace(current.String()) != "" {
		stmts = append(stmts, current.String())
	}
	return stmts
}

func logStep(step, name string) {
	entry := map[string]any{
		"ts":   time.Now().UTC().Format(time.RFC3339Nano),
		"type": "migrate",
		"step": step,
		"name": name,
	}
	if data, err := json.Marshal(entry); err == nil {
		obs.Logger().Println(string(data))
	}
}
