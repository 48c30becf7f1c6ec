// Package migrate applies the SQL schema and seed files to Postgres.
//
// Files are read from an fs.FS so the same manager serves the migrations
// embedded in the binary and a directory on disk. Every file runs in its own
// transaction together with its bookkeeping row, and a session advisory lock
// keeps two migrators from racing on the same database.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"
)

const (
	defaultMigrationsTable = "schema_migrations"
	defaultSeedsTable      = "schema_seeds"

	// lockKey is the pg_advisory_lock key shared by all migrators.
	lockKey int64 = 0x76656461726300
)

// ErrNothingToRollback is returned by Down when no migration is recorded.
var ErrNothingToRollback = errors.New("no migrations applied")

// Manager executes SQL migrations and seed files.
type Manager struct {
	db              *sql.DB
	migrations      fs.FS
	seeds           fs.FS
	migrationsTable string
	seedsTable      string
	now             func() time.Time
}

// Option configures Manager.
type Option func(*Manager)

// WithMigrationsTable overrides the default migrations bookkeeping table.
func WithMigrationsTable(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.migrationsTable = name
		}
	}
}

// WithSeedsTable overrides the default seeds bookkeeping table.
func WithSeedsTable(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.seedsTable = name
		}
	}
}

// NewManager constructs a Manager. Either source may be nil.
func NewManager(db *sql.DB, migrations, seeds fs.FS, opts ...Option) *Manager {
	m := &Manager{
		db:              db,
		migrations:      migrations,
		seeds:           seeds,
		migrationsTable: defaultMigrationsTable,
		seedsTable:      defaultSeedsTable,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Entry is one migration and whether it has been applied.
type Entry struct {
	Name      string
	AppliedAt *time.Time
}

func (e Entry) String() string {
	if e.AppliedAt == nil {
		return e.Name + "\tpending"
	}
	return e.Name + "\t" + e.AppliedAt.UTC().Format(time.RFC3339)
}

// Up applies all pending migrations in name order and returns their names.
func (m *Manager) Up(ctx context.Context) ([]string, error) {
	var applied []string
	err := m.locked(ctx, func(conn *sql.Conn) error {
		var err error
		applied, err = m.applyPending(ctx, conn, m.migrations, ".up.sql", m.migrationsTable)
		return err
	})
	return applied, err
}

// Seed applies seed files that have not run yet.
func (m *Manager) Seed(ctx context.Context) ([]string, error) {
	var applied []string
	err := m.locked(ctx, func(conn *sql.Conn) error {
		var err error
		applied, err = m.applyPending(ctx, conn, m.seeds, ".sql", m.seedsTable)
		return err
	})
	return applied, err
}

// Down rolls back the last steps applied migrations, newest first.
func (m *Manager) Down(ctx context.Context, steps int) ([]string, error) {
	if steps < 1 {
		steps = 1
	}
	var rolled []string
	err := m.locked(ctx, func(conn *sql.Conn) error {
		history, err := m.history(ctx, conn, m.migrationsTable)
		if err != nil {
			return err
		}
		if len(history) == 0 {
			return ErrNothingToRollback
		}
		for i := len(history) - 1; i >= 0 && len(rolled) < steps; i-- {
			name := history[i].Name
			down := strings.TrimSuffix(name, ".up.sql") + ".down.sql"
			body, err := fs.ReadFile(m.migrations, down)
			if err != nil {
				return fmt.Errorf("missing down migration for %s: %w", name, err)
			}
			del := fmt.Sprintf(`delete from %s where name = $1`, m.migrationsTable)
			if err := m.runFile(ctx, conn, string(body), del, name); err != nil {
				return fmt.Errorf("rollback migration %s: %w", name, err)
			}
			rolled = append(rolled, name)
		}
		return nil
	})
	return rolled, err
}

// Status lists every known migration, applied ones first in apply order.
func (m *Manager) Status(ctx context.Context) ([]Entry, error) {
	var out []Entry
	err := m.locked(ctx, func(conn *sql.Conn) error {
		history, err := m.history(ctx, conn, m.migrationsTable)
		if err != nil {
			return err
		}
		names, err := collectSQL(m.migrations, ".up.sql")
		if err != nil {
			return err
		}
		seen := make(map[string]bool, len(history))
		for _, e := range history {
			seen[e.Name] = true
			out = append(out, e)
		}
		for _, n := range names {
			if !seen[n] {
				out = append(out, Entry{Name: n})
			}
		}
		return nil
	})
	return out, err
}

func (m *Manager) applyPending(ctx context.Context, conn *sql.Conn, src fs.FS, suffix, table string) ([]string, error) {
	names, err := collectSQL(src, suffix)
	if err != nil {
		return nil, err
	}
	history, err := m.history(ctx, conn, table)
	if err != nil {
		return nil, err
	}
	done := make(map[string]bool, len(history))
	for _, e := range history {
		done[e.Name] = true
	}
	var applied []string
	record := fmt.Sprintf(`insert into %s (name, applied_at) values ($1, $2)`, table)
	for _, name := range names {
		if done[name] {
			continue
		}
		body, err := fs.ReadFile(src, name)
		if err != nil {
			return applied, err
		}
		if err := m.runFile(ctx, conn, string(body), record, name, m.now().UTC()); err != nil {
			return applied, fmt.Errorf("apply %s: %w", name, err)
		}
		applied = append(applied, name)
	}
	return applied, nil
}

// runFile executes body and the bookkeeping statement in one transaction.
func (m *Manager) runFile(ctx context.Context, conn *sql.Conn, body, bookkeeping string, args ...any) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range splitStatements(body) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, bookkeeping, args...); err != nil {
		return err
	}
	return tx.Commit()
}

// locked runs fn on a dedicated connection holding the advisory lock.
func (m *Manager) locked(ctx context.Context, fn func(conn *sql.Conn) error) error {
	conn, err := m.db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	if _, err := conn.ExecContext(ctx, `select pg_advisory_lock($1)`, lockKey); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.WithoutCancel(ctx), `select pg_advisory_unlock($1)`, lockKey)
	}()
	if err := m.ensureTables(ctx, conn); err != nil {
		return err
	}
	return fn(conn)
}

func (m *Manager) ensureTables(ctx context.Context, conn *sql.Conn) error {
	for _, table := range []string{m.migrationsTable, m.seedsTable} {
		ddl := fmt.Sprintf(`create table if not exists %s (
			name text primary key,
			applied_at timestamptz not null default now()
		)`, table)
		if _, err := conn.ExecContext(ctx, ddl); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) history(ctx context.Context, conn *sql.Conn, table string) ([]Entry, error) {
	rows, err := conn.QueryContext(ctx, fmt.Sprintf(`select name, applied_at from %s order by applied_at, name`, table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var (
			e  Entry
			at time.Time
		)
		if err := rows.Scan(&e.Name, &at); err != nil {
			return nil, err
		}
		e.AppliedAt = &at
		out = append(out, e)
	}
	return out, rows.Err()
}

// collectSQL returns the root-level file names of src ending in suffix, sorted.
// Down files never count as up files even though both end in ".sql".
func collectSQL(src fs.FS, suffix string) ([]string, error) {
	if src == nil {
		return nil, nil
	}
	entries, err := fs.ReadDir(src, ".")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, suffix) || path.Ext(name) != ".sql" {
			continue
		}
		if suffix == ".sql" && (strings.HasSuffix(name, ".down.sql") || strings.HasSuffix(name, ".up.sql")) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// splitStatements splits on semicolons outside quotes, dollar-quoted bodies
// and line comments.
func splitStatements(body string) []string {
	var (
		stmts   []string
		current strings.Builder
		quote   rune
		dollar  string
	)
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" && !onlyComments(s) {
			stmts = append(stmts, s)
		}
		current.Reset()
	}
	runes := []rune(body)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case dollar != "":
			if strings.HasPrefix(string(runes[i:]), dollar) {
				current.WriteString(dollar)
				i += len([]rune(dollar)) - 1
				dollar = ""
				continue
			}
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case r == '$':
			if tag := dollarTag(runes[i:]); tag != "" {
				dollar = tag
				current.WriteString(tag)
				i += len([]rune(tag)) - 1
				continue
			}
		case r == '-' && i+1 < len(runes) && runes[i+1] == '-':
			for i < len(runes) && runes[i] != '\n' {
				current.WriteRune(runes[i])
				i++
			}
			if i < len(runes) {
				current.WriteRune(runes[i])
			}
			continue
		case r == ';':
			flush()
			continue
		}
		current.WriteRune(r)
	}
	flush()
	return stmts
}

// dollarTag returns "$tag$" when s starts with a dollar-quote opener.
func dollarTag(s []rune) string {
	for j := 1; j < len(s); j++ {
		switch c := s[j]; {
		case c == '$':
			return string(s[:j+1])
		case c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || (j > 1 && c >= '0' && c <= '9'):
		default:
			return ""
		}
	}
	return ""
}

func onlyComments(s string) bool {
	for _, line := range strings.Split(s, "\n") {
		if l := strings.TrimSpace(line); l != "" && !strings.HasPrefix(l, "--") {
			return false
		}
	}
	return true
}
