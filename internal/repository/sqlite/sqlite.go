// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// DOCUMENTS ON A RELATIONAL ENGINE:
// A question and its responses behave like one document: responses have
// no life of their own and are always read with their parent. We model
// that with two tables (questions, responses) joined on question_id and
// assemble the embedded list in Go. Appending a response is one
// transaction, so readers never see half a write.
//
// WHY modernc.org/sqlite?
// It is a pure Go translation of SQLite: no CGo, no C toolchain, and
// ":memory:" databases make repository tests fast and isolated.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DB wraps a sql.DB connection pool and provides repository methods for
// users and questions.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/consulthub.db" → file-based database (persistent)
//   - ":memory:"           → in-memory database (tests)
//
// ONE CONNECTION:
// SQLite allows a single writer anyway, and every pooled connection to
// ":memory:" would otherwise get its own empty database. Capping the pool
// at one connection keeps both cases correct; the price is that code must
// never run a query while another *sql.Rows is still open.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers proceed while a write is in flight.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Foreign keys are OFF by default in SQLite. Response and question
	// authors must reference real users.
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema. CREATE ... IF NOT EXISTS keeps it idempotent.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id                     TEXT PRIMARY KEY,
			username               TEXT NOT NULL UNIQUE,
			email                  TEXT NOT NULL UNIQUE,
			password_hash          TEXT NOT NULL,
			field                  TEXT NOT NULL,
			notify_own_channel     INTEGER NOT NULL DEFAULT 1,
			notify_general_channel INTEGER NOT NULL DEFAULT 0,
			created_at             DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at             DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_users_field ON users(field);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	// title_lower backs the case-insensitive title lookup.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS questions (
			id          TEXT PRIMARY KEY,
			title       TEXT NOT NULL,
			title_lower TEXT NOT NULL,
			body        TEXT NOT NULL,
			channel     TEXT NOT NULL,
			author_id   TEXT NOT NULL REFERENCES users(id),
			created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_questions_channel ON questions(channel);
		CREATE INDEX IF NOT EXISTS idx_questions_title_lower ON questions(channel, title_lower);
		CREATE INDEX IF NOT EXISTS idx_questions_author ON questions(author_id);
	`)
	if err != nil {
		return fmt.Errorf("creating questions table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS responses (
			id          TEXT PRIMARY KEY,
			question_id TEXT NOT NULL REFERENCES questions(id),
			content     TEXT NOT NULL,
			author_id   TEXT NOT NULL REFERENCES users(id),
			created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_responses_question ON responses(question_id);
		CREATE INDEX IF NOT EXISTS idx_responses_author ON responses(author_id);
	`)
	if err != nil {
		return fmt.Errorf("creating responses table: %w", err)
	}

	return nil
}

// uniqueViolation reports whether err is a UNIQUE constraint failure and,
// if so, the offending "table.column" as SQLite names it.
func uniqueViolation(err error) (string, bool) {
	var se *sqlite.Error
	if !errors.As(err, &se) || se.Code() != sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return "", false
	}
	// Message shape: "UNIQUE constraint failed: users.email"
	msg := se.Error()
	if i := strings.LastIndex(msg, ": "); i >= 0 {
		return strings.TrimSpace(msg[i+2:]), true
	}
	return "", true
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
