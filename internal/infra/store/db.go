// Package store provides database/sql persistence for the Life System.
// SQLite (pure-Go modernc driver) is the default; Postgres is reached through
// the pgx stdlib driver. Queries are written once with ? placeholders and
// rebound per dialect.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "modernc.org/sqlite"             // Pure-Go SQLite driver (no CGO required)

	"github.com/sololeveling/lifesystem/internal/domain"
)

// Driver names accepted in Config.Driver.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// Config selects and locates the database.
type Config struct {
	Driver string // "sqlite" (default) or "pgx"
	DSN    string // Postgres connection string; ignored for sqlite
	Dir    string // SQLite data directory; the file is Dir/lifesystem.db
}

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// rebind rewrites ? placeholders as $1..$n for Postgres.
func (d dialect) rebind(query string) string {
	if d != dialectPostgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// lock returns the row-lock clause for a read-modify-write. SQLite has a
// single writer, so the transaction itself is the lock.
func (d dialect) lock(of string) string {
	if d != dialectPostgres {
		return ""
	}
	if of != "" {
		return " FOR UPDATE OF " + of
	}
	return " FOR UPDATE"
}

// least is the two-argument minimum function.
func (d dialect) least() string {
	if d == dialectPostgres {
		return "LEAST"
	}
	return "MIN"
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// repo implements domain.Repo over a queryer.
type repo struct {
	q       queryer
	dialect dialect
}

func (r *repo) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return r.q.ExecContext(ctx, r.dialect.rebind(query), args...)
}

func (r *repo) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return r.q.QueryContext(ctx, r.dialect.rebind(query), args...)
}

func (r *repo) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return r.q.QueryRowContext(ctx, r.dialect.rebind(query), args...)
}

func (r *repo) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	err := r.queryRow(ctx, query, args...).Scan(&n)
	return n, err
}

// DB wraps a database connection with migrations and transactions.
type DB struct {
	*repo
	db *sql.DB
}

var _ domain.Store = (*DB)(nil)

// Open connects to the configured database and runs migrations.
func Open(cfg Config) (*DB, error) {
	var (
		db  *sql.DB
		d   dialect
		err error
	)
	switch cfg.Driver {
	case "", DriverSQLite:
		db, err = openSQLite(cfg.Dir)
		d = dialectSQLite
	case DriverPostgres, "postgres":
		if cfg.DSN == "" {
			return nil, errors.New("postgres driver requires a dsn")
		}
		db, err = sql.Open(DriverPostgres, cfg.DSN)
		d = dialectPostgres
		if err == nil {
			db.SetMaxOpenConns(16)
			db.SetMaxIdleConns(4)
			db.SetConnMaxLifetime(30 * time.Minute)
		}
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}

	s := &DB{repo: &repo{q: db, dialect: d}, db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// OpenSQLite opens (or creates) the SQLite database in dir.
func OpenSQLite(dir string) (*DB, error) {
	return Open(Config{Driver: DriverSQLite, Dir: dir})
}

// openSQLite creates dir/lifesystem.db with WAL mode, foreign keys and a
// 5-second busy timeout.
func openSQLite(dir string) (*sql.DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	dsn := "file:" + filepath.Join(dir, "lifesystem.db") +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"

	db, err := sql.Open(DriverSQLite, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)
	return db, nil
}

// Close cleanly shuts down the database.
func (s *DB) Close() error {
	return s.db.Close()
}

// Ping checks database connectivity.
func (s *DB) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InTx runs fn inside a transaction. The transaction commits when fn returns
// nil and rolls back otherwise (including on panic).
func (s *DB) InTx(ctx context.Context, fn func(domain.Repo) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(&repo{q: tx, dialect: s.dialect}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// migrate runs idempotent schema migrations. The DDL is portable between
// SQLite and Postgres: text ids, unix-second BIGINTs, 0/1 INTEGER flags.
func (s *DB) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id         TEXT PRIMARY KEY,
			username   TEXT NOT NULL UNIQUE,
			role       TEXT NOT NULL,
			active     INTEGER NOT NULL DEFAULT 1,
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_role ON users(role, active)`,

		`CREATE TABLE IF NOT EXISTS user_progress (
			user_id            TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
			level              INTEGER NOT NULL DEFAULT 1,
			total_xp           BIGINT NOT NULL DEFAULT 0,
			current_xp         BIGINT NOT NULL DEFAULT 0,
			exp_to_next        BIGINT NOT NULL DEFAULT 100,
			streak_days        INTEGER NOT NULL DEFAULT 0,
			longest_streak     INTEGER NOT NULL DEFAULT 0,
			last_activity_date TEXT NOT NULL DEFAULT '',
			category           TEXT NOT NULL DEFAULT '',
			updated_at         BIGINT NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS stats (
			user_id   TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			name      TEXT NOT NULL,
			value     INTEGER NOT NULL,
			max_value INTEGER NOT NULL,
			PRIMARY KEY (user_id, name)
		)`,

		`CREATE TABLE IF NOT EXISTS quest_templates (
			id           TEXT PRIMARY KEY,
			title        TEXT NOT NULL,
			description  TEXT NOT NULL DEFAULT '',
			base_xp      BIGINT NOT NULL,
			difficulty   TEXT NOT NULL,
			related_stat TEXT NOT NULL DEFAULT '',
			category     TEXT NOT NULL,
			quest_type   TEXT NOT NULL,
			active       INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE INDEX IF NOT EXISTS idx_templates_pool ON quest_templates(quest_type, category, active)`,

		`CREATE TABLE IF NOT EXISTS assigned_quests (
			id            TEXT PRIMARY KEY,
			user_id       TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			template_id   TEXT,
			quest_type    TEXT NOT NULL,
			title         TEXT NOT NULL,
			description   TEXT NOT NULL DEFAULT '',
			difficulty    TEXT NOT NULL DEFAULT '',
			related_stat  TEXT NOT NULL DEFAULT '',
			base_xp       BIGINT NOT NULL DEFAULT 0,
			assigned_date TEXT NOT NULL,
			expires_at    BIGINT NOT NULL,
			expired       INTEGER NOT NULL DEFAULT 0,
			completed     INTEGER NOT NULL DEFAULT 0,
			completed_at  BIGINT NOT NULL DEFAULT 0,
			xp_awarded    BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_assigned_user ON assigned_quests(user_id, quest_type, expires_at)`,
		`CREATE INDEX IF NOT EXISTS idx_assigned_expiry ON assigned_quests(expires_at)`,

		`CREATE TABLE IF NOT EXISTS quest_history (
			id           TEXT PRIMARY KEY,
			user_id      TEXT NOT NULL,
			quest_id     TEXT NOT NULL,
			template_id  TEXT,
			quest_type   TEXT NOT NULL,
			xp           BIGINT NOT NULL,
			completed_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_history_user ON quest_history(user_id)`,

		`CREATE TABLE IF NOT EXISTS level_history (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			from_level INTEGER NOT NULL,
			to_level   INTEGER NOT NULL,
			total_xp   BIGINT NOT NULL,
			changed_at BIGINT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS daily_checkins (
			user_id          TEXT NOT NULL,
			checkin_date     TEXT NOT NULL,
			quests_completed INTEGER NOT NULL DEFAULT 0,
			xp_earned        BIGINT NOT NULL DEFAULT 0,
			PRIMARY KEY (user_id, checkin_date)
		)`,

		`CREATE TABLE IF NOT EXISTS achievements (
			user_id        TEXT NOT NULL,
			achievement_id TEXT NOT NULL,
			earned_at      BIGINT NOT NULL,
			PRIMARY KEY (user_id, achievement_id)
		)`,

		`CREATE TABLE IF NOT EXISTS notifications (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			type       TEXT NOT NULL,
			title      TEXT NOT NULL,
			message    TEXT NOT NULL,
			created_at BIGINT NOT NULL,
			expires_at BIGINT NOT NULL,
			is_read    INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notif_user ON notifications(user_id, created_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func timeOrZero(ts int64) time.Time {
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
