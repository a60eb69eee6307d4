// Package sqlite implements the repository interfaces on top of SQLite.
//
// DRIVER:
// modernc.org/sqlite is a pure Go port of SQLite, so the binary builds
// without a C toolchain. It registers itself with database/sql under the
// driver name "sqlite" through the blank import below.
//
// CONNECTIONS:
// The pool is capped at one open connection. SQLite serialises writers
// anyway, PRAGMAs are per connection, and ":memory:" databases are private
// to the connection that created them. Code that runs inside a transaction
// must therefore only use the *sql.Tx, never db.conn, or it will block
// waiting for the single connection.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and implements every repository
// interface in internal/repository.
type DB struct {
	conn *sql.DB
}

// New opens the database at dbPath, applies connection PRAGMAs and runs the
// migrations. Use ":memory:" for a throwaway database in tests.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers proceed while a write is in progress.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// dsn appends the driver options to dbPath.
//
// TIME FORMAT:
// _time_format=sqlite stores time.Time as "2006-01-02 15:04:05.999999999-07:00".
// Every timestamp is written in UTC, so the text compares in time order
// and ORDER BY created_at / expires_at <= ? work on the raw column.
func dsn(dbPath string) string {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	// foreign_keys is off by default and is a per-connection setting, so it
	// goes in the DSN where the driver applies it to every new connection.
	return dbPath + sep + "_time_format=sqlite&_pragma=foreign_keys(1)"
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks the database is reachable. Used by the health endpoint.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: ping: %w", err)
	}
	return nil
}

// migrate creates the schema. Every statement is idempotent so it is safe
// to run on each start.
func (db *DB) migrate() error {
	steps := []struct {
		name string
		sql  string
	}{
		{"users", `
			CREATE TABLE IF NOT EXISTS users (
				id            TEXT PRIMARY KEY,
				username      TEXT NOT NULL,
				email         TEXT NOT NULL UNIQUE,
				password_hash TEXT NOT NULL,
				created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);`},
		{"recipes", `
			CREATE TABLE IF NOT EXISTS recipes (
				id          TEXT PRIMARY KEY,
				title       TEXT NOT NULL,
				ingredients TEXT NOT NULL,
				steps       TEXT NOT NULL,
				image       TEXT NOT NULL DEFAULT '',
				user_id     TEXT NOT NULL REFERENCES users(id),
				created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_recipes_user_id ON recipes(user_id);`},
		{"comments", `
			CREATE TABLE IF NOT EXISTS comments (
				id         TEXT PRIMARY KEY,
				content    TEXT NOT NULL,
				user_id    TEXT NOT NULL REFERENCES users(id),
				recipe_id  TEXT NOT NULL REFERENCES recipes(id) ON DELETE CASCADE,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_comments_recipe_id ON comments(recipe_id, created_at);`},
		// The composite primary key is what keeps a (user, recipe) pair unique.
		{"likes", `
			CREATE TABLE IF NOT EXISTS likes (
				user_id   TEXT NOT NULL REFERENCES users(id),
				recipe_id TEXT NOT NULL REFERENCES recipes(id) ON DELETE CASCADE,
				PRIMARY KEY (user_id, recipe_id)
			);
			CREATE INDEX IF NOT EXISTS idx_likes_recipe_id ON likes(recipe_id);`},
		{"sessions", `
			CREATE TABLE IF NOT EXISTS sessions (
				id         TEXT PRIMARY KEY,
				user_id    TEXT NOT NULL REFERENCES users(id),
				expires_at DATETIME NOT NULL,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id);`},
	}

	for _, step := range steps {
		if _, err := db.conn.Exec(step.sql); err != nil {
			return fmt.Errorf("creating %s table: %w", step.name, err)
		}
	}

	return nil
}

// withTx runs fn inside a transaction, committing on success and rolling
// back on error or panic.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
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

	if err = fn(tx); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing transaction: %w", err)
	}
	return nil
}
