package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Driver names registered by the imported drivers
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// ErrUnsupportedDB is returned for an unknown DB_TYPE
var ErrUnsupportedDB = errors.New("unsupported database type")

// DB wraps the sqlx connection. Repositories share one DB.
type DB struct {
	*sqlx.DB
}

// Open connects to the database and makes sure the schema exists.
// dbType is "sqlite" or "postgres".
func Open(dbType, dsn string) (*DB, error) {
	switch strings.ToLower(strings.TrimSpace(dbType)) {
	case "", "sqlite", "sqlite3":
		return openSQLite(dsn)
	case "postgres", "postgresql":
		return openPostgres(dsn)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDB, dbType)
	}
}

func openSQLite(dsn string) (*DB, error) {
	if dsn == "" {
		dsn = filepath.Join("data", "deutschbot.db")
	}
	if !strings.HasPrefix(dsn, ":memory:") && !strings.HasPrefix(dsn, "file:") {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	conn, err := sqlx.Connect(DriverSQLite, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite doesn't support multiple writers
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	db := &DB{DB: conn}
	if err := db.initializeSchema(context.Background()); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

func openPostgres(dsn string) (*DB, error) {
	if dsn == "" {
		return nil, errors.New("DATABASE_URL is required for postgres")
	}

	var conn *sqlx.DB
	var err error
	// The database container may need a few seconds to accept connections
	for attempt := 1; attempt <= 5; attempt++ {
		conn, err = sqlx.Connect(DriverPostgres, dsn)
		if err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	conn.SetMaxOpenConns(20)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(30 * time.Minute)

	db := &DB{DB: conn}
	if err := db.initializeSchema(context.Background()); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// IsPostgres reports whether row-level locks with SKIP LOCKED are available
func (db *DB) IsPostgres() bool {
	return db.DriverName() == DriverPostgres
}

// IsSQLite reports whether the database is a local SQLite file
func (db *DB) IsSQLite() bool {
	return db.DriverName() == DriverSQLite
}

// Close closes the database connection
func (db *DB) Close() error {
	if db == nil || db.DB == nil {
		return nil
	}
	return db.DB.Close()
}

// dbTime normalizes timestamps before they are written or compared.
// Second precision in UTC keeps SQLite's text encoding fixed-width and ordered.
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// schema is written once and specialized per dialect
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		user_id {{bigint}} PRIMARY KEY,
		username TEXT NOT NULL DEFAULT '',
		first_name TEXT NOT NULL DEFAULT '',
		current_level TEXT NOT NULL DEFAULT 'A1',
		goal TEXT NOT NULL DEFAULT 'general',
		daily_time_minutes INTEGER NOT NULL DEFAULT 15,
		onboarding_completed BOOLEAN NOT NULL DEFAULT FALSE,
		daily_word_enabled BOOLEAN NOT NULL DEFAULT TRUE,
		daily_word_hour INTEGER NOT NULL DEFAULT 9,
		is_blocked BOOLEAN NOT NULL DEFAULT FALSE,
		created_at {{ts}} NOT NULL,
		updated_at {{ts}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_users_daily_word ON users (daily_word_enabled, daily_word_hour)`,

	`CREATE TABLE IF NOT EXISTS vocab (
		id {{serial}},
		level TEXT NOT NULL,
		de TEXT NOT NULL,
		uz TEXT NOT NULL,
		pos TEXT NOT NULL DEFAULT '',
		example_de TEXT NOT NULL DEFAULT '',
		example_uz TEXT NOT NULL DEFAULT '',
		UNIQUE (level, de)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_vocab_level ON vocab (level)`,

	`CREATE TABLE IF NOT EXISTS grammar_topics (
		id TEXT PRIMARY KEY,
		level TEXT NOT NULL,
		title TEXT NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		example TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_grammar_topics_level ON grammar_topics (level)`,

	`CREATE TABLE IF NOT EXISTS mastery (
		user_id {{bigint}} NOT NULL,
		item_id TEXT NOT NULL,
		module TEXT NOT NULL,
		box INTEGER NOT NULL DEFAULT 0,
		next_review TEXT NOT NULL,
		last_reviewed_at {{ts}},
		is_suspended BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (user_id, item_id, module)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_mastery_due ON mastery (user_id, next_review)`,

	`CREATE TABLE IF NOT EXISTS mistakes (
		user_id {{bigint}} NOT NULL,
		item_id TEXT NOT NULL,
		module TEXT NOT NULL,
		level TEXT NOT NULL DEFAULT '',
		mistake_count INTEGER NOT NULL DEFAULT 0,
		success_count INTEGER NOT NULL DEFAULT 0,
		mastered BOOLEAN NOT NULL DEFAULT FALSE,
		last_mistake_at {{ts}},
		tags TEXT,
		PRIMARY KEY (user_id, item_id, module)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_mistakes_level ON mistakes (user_id, level)`,

	`CREATE TABLE IF NOT EXISTS grammar_coverage (
		user_id {{bigint}} NOT NULL,
		topic_id TEXT NOT NULL,
		level TEXT NOT NULL,
		seen_count INTEGER NOT NULL DEFAULT 0,
		last_seen_at {{ts}} NOT NULL,
		PRIMARY KEY (user_id, topic_id)
	)`,

	`CREATE TABLE IF NOT EXISTS daily_plans (
		user_id {{bigint}} NOT NULL,
		plan_date TEXT NOT NULL,
		plan_json TEXT NOT NULL,
		created_at {{ts}} NOT NULL,
		PRIMARY KEY (user_id, plan_date)
	)`,
	`CREATE TABLE IF NOT EXISTS plan_audit (
		id {{serial}},
		user_id {{bigint}} NOT NULL,
		plan_date TEXT NOT NULL,
		action TEXT NOT NULL,
		created_at {{ts}} NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS lesson_sessions (
		user_id {{bigint}} PRIMARY KEY,
		plan_date TEXT NOT NULL,
		status TEXT NOT NULL,
		step INTEGER NOT NULL,
		plan_json TEXT NOT NULL,
		quiz_index INTEGER NOT NULL DEFAULT 0,
		last_answered_quiz_index INTEGER NOT NULL DEFAULT -1,
		quiz_correct INTEGER NOT NULL DEFAULT 0,
		quiz_total INTEGER NOT NULL DEFAULT 0,
		question_json TEXT,
		updated_at {{ts}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS lesson_completions (
		user_id {{bigint}} NOT NULL,
		completed_date TEXT NOT NULL,
		quiz_correct INTEGER NOT NULL DEFAULT 0,
		quiz_total INTEGER NOT NULL DEFAULT 0,
		created_at {{ts}} NOT NULL,
		PRIMARY KEY (user_id, completed_date)
	)`,
	`CREATE TABLE IF NOT EXISTS streaks (
		user_id {{bigint}} PRIMARY KEY,
		current_streak INTEGER NOT NULL DEFAULT 0,
		best_streak INTEGER NOT NULL DEFAULT 0,
		last_completed_date TEXT NOT NULL DEFAULT '',
		updated_at {{ts}} NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS broadcast_jobs (
		id {{serial}},
		user_id {{bigint}} NOT NULL,
		kind TEXT NOT NULL,
		payload {{blob}},
		status TEXT NOT NULL DEFAULT 'pending',
		attempts INTEGER NOT NULL DEFAULT 0,
		available_at {{ts}} NOT NULL,
		locked_at {{ts}},
		dedupe_key TEXT UNIQUE,
		last_error TEXT,
		created_at {{ts}} NOT NULL,
		updated_at {{ts}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_broadcast_jobs_claim ON broadcast_jobs (status, available_at, id)`,
}

// initializeSchema creates necessary tables if they don't exist
func (db *DB) initializeSchema(ctx context.Context) error {
	types := strings.NewReplacer(
		"{{serial}}", "INTEGER PRIMARY KEY AUTOINCREMENT",
		"{{bigint}}", "INTEGER",
		"{{ts}}", "TIMESTAMP",
		"{{blob}}", "BLOB",
	)
	if db.IsPostgres() {
		types = strings.NewReplacer(
			"{{serial}}", "BIGSERIAL PRIMARY KEY",
			"{{bigint}}", "BIGINT",
			"{{ts}}", "TIMESTAMPTZ",
			"{{blob}}", "BYTEA",
		)
	}

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, types.Replace(stmt)); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}
