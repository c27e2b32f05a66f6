/*
Package sqldb provides a database/sql implementation of domain.Store.

PURPOSE:
  Persists people, programs, relationships, billing and the student roster
  in SQLite (development, tests) or PostgreSQL (production). Both dialects
  share one schema and one set of queries; queries are written with "?"
  placeholders and rebound to "$n" for PostgreSQL.

UNIQUENESS:
  The validation layer checks for active duplicates before writing, but two
  requests can race past the check. Partial unique indexes close the gap:
  - idx_assignments_active_shift:  one active teacher per (profile, shift)
  - idx_guardians_active:          one active link per (guardian, dependent, role)
  - sibling_relationships UNIQUE:  one row per normalized pair
  Violations surface as DUPLICATE_SHIFT / ALREADY_EXISTS errors.

TIMESTAMPS:
  Stored as fixed-width UTC text so lexical order equals time order in
  both dialects.

TRANSACTIONS:
  WithTx hands fn a Store bound to the *sql.Tx. SQLite runs on a single
  connection, so fn must only use the store it is given.

MIGRATION:
  Schema is auto-migrated by New and Open. NewWithDB skips migration (used
  with sqlmock).

SEE ALSO:
  - domain/store.go: interface definitions
  - domain/store/memory.go: in-memory implementation for tests
*/
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/warp/enrollment-engine/domain"
)

type Dialect string

const (
	DialectSQLite   Dialect = "sqlite3"
	DialectPostgres Dialect = "postgres"
)

// ParseDialect accepts the driver names used in configuration.
func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "postgres", "postgresql", "pgx":
		return DialectPostgres, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// Store implements domain.Store on top of database/sql.
type Store struct {
	db      *sql.DB
	tx      *sql.Tx
	dialect Dialect
	logger  *zap.Logger
}

var _ domain.Store = (*Store)(nil)

// Open connects with the given driver and migrates the schema.
func Open(ctx context.Context, driver, dsn string, logger *zap.Logger) (*Store, error) {
	dialect, err := ParseDialect(driver)
	if err != nil {
		return nil, err
	}
	if dialect == DialectSQLite {
		return New(dsn, logger)
	}

	db, err := sql.Open(string(DialectPostgres), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := NewWithDB(db, DialectPostgres, logger)
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// New opens a SQLite database at path. Use ":memory:" for an in-memory
// database.
func New(path string, logger *zap.Logger) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		dsn += "?_journal_mode=WAL&_busy_timeout=5000"
	}
	db, err := sql.Open(string(DialectSQLite), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// :memory: databases are per connection.
	db.SetMaxOpenConns(1)

	store := NewWithDB(db, DialectSQLite, logger)
	if err := store.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// NewWithDB wraps an open database without migrating it.
func NewWithDB(db *sql.DB, dialect Dialect, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, dialect: dialect, logger: logger}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

const schema = `
	CREATE TABLE IF NOT EXISTS persons (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		date_of_birth TEXT,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS contact_points (
		id TEXT PRIMARY KEY,
		person_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		type TEXT NOT NULL,
		value TEXT NOT NULL,
		is_primary BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE INDEX IF NOT EXISTS idx_contact_points_person
		ON contact_points(person_id);
	CREATE INDEX IF NOT EXISTS idx_contact_points_email
		ON contact_points(LOWER(value)) WHERE type = 'EMAIL';

	CREATE TABLE IF NOT EXISTS program_profiles (
		id TEXT PRIMARY KEY,
		person_id TEXT NOT NULL,
		program TEXT NOT NULL,
		education_level TEXT,
		grade_level TEXT,
		school_name TEXT,
		monthly_rate TEXT NOT NULL,
		custom_rate BOOLEAN NOT NULL DEFAULT FALSE,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_profiles_person
		ON program_profiles(person_id);

	CREATE TABLE IF NOT EXISTS batches (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		capacity INTEGER NOT NULL DEFAULT 0,
		start_date TEXT NOT NULL,
		end_date TEXT,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS enrollments (
		id TEXT PRIMARY KEY,
		program_profile_id TEXT NOT NULL,
		batch_id TEXT,
		status TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_enrollments_profile
		ON enrollments(program_profile_id);
	CREATE INDEX IF NOT EXISTS idx_enrollments_batch
		ON enrollments(batch_id) WHERE batch_id IS NOT NULL;

	CREATE TABLE IF NOT EXISTS teachers (
		id TEXT PRIMARY KEY,
		person_id TEXT NOT NULL UNIQUE,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS teacher_assignments (
		id TEXT PRIMARY KEY,
		program_profile_id TEXT NOT NULL,
		teacher_id TEXT NOT NULL,
		shift TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		start_date TEXT NOT NULL,
		end_date TEXT
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_assignments_active_shift
		ON teacher_assignments(program_profile_id, shift) WHERE is_active;

	CREATE TABLE IF NOT EXISTS guardian_relationships (
		id TEXT PRIMARY KEY,
		guardian_id TEXT NOT NULL,
		dependent_id TEXT NOT NULL,
		role TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_guardians_active
		ON guardian_relationships(guardian_id, dependent_id, role) WHERE is_active;

	CREATE TABLE IF NOT EXISTS sibling_relationships (
		id TEXT PRIMARY KEY,
		person1_id TEXT NOT NULL,
		person2_id TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL,
		UNIQUE(person1_id, person2_id),
		CHECK (person1_id < person2_id)
	);

	CREATE TABLE IF NOT EXISTS subscriptions (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		amount TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS billing_assignments (
		id TEXT PRIMARY KEY,
		subscription_id TEXT NOT NULL,
		program_profile_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL,
		UNIQUE(subscription_id, program_profile_id)
	);

	CREATE TABLE IF NOT EXISTS students (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		phone TEXT,
		date_of_birth TEXT,
		education_level TEXT,
		grade_level TEXT,
		school_name TEXT,
		batch_id TEXT,
		subscription_id TEXT,
		subscription_status TEXT,
		status TEXT NOT NULL,
		billing_type TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_students_batch
		ON students(batch_id) WHERE batch_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_students_created
		ON students(created_at, id);
	`

// =============================================================================
// QUERY PLUMBING
// =============================================================================

func (s *Store) q() querier {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// rebind rewrites "?" placeholders for the store's dialect.
func (s *Store) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var (
		b strings.Builder
		n int
	)
	b.Grow(len(query) + 8)
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	_, err := s.q().ExecContext(ctx, s.rebind(query), args...)
	return err
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.q().QueryRowContext(ctx, s.rebind(query), args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.q().QueryContext(ctx, s.rebind(query), args...)
}

// inTx runs fn in the current transaction, or a new one.
func (s *Store) inTx(ctx context.Context, fn func(*Store) error) error {
	if s.tx != nil {
		return fn(s)
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(s.bind(sqlTx)); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func (s *Store) bind(tx *sql.Tx) *Store {
	return &Store{db: s.db, tx: tx, dialect: s.dialect, logger: s.logger}
}

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(domain.StudentStore) error) error {
	return s.inTx(ctx, func(tx *Store) error { return fn(tx) })
}

// =============================================================================
// HELPERS
// =============================================================================

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(v string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", v, err)
	}
	return t, nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func timePtr(v sql.NullString) (*time.Time, error) {
	if !v.Valid {
		return nil, nil
	}
	t, err := parseTime(v.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func isUniqueConstraintError(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
