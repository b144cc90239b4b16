package store

import (
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// memoryPath opens a private in-memory database.
const memoryPath = ":memory:"

// pragma is a connection setting applied on Open.
type pragma struct {
	name  string
	value string
}

// pragmas for file databases. In-memory databases skip journal_mode.
var pragmas = []pragma{
	{"journal_mode", "WAL"},
	{"synchronous", "NORMAL"},
	{"busy_timeout", "5000"},
}

// migration upgrades the schema by one user_version step.
type migration func(tx *sql.Tx) error

// migrations[i] takes user_version i to i+1. schema.sql always describes the
// latest version, so a fresh database still runs them and each must tolerate
// an already-current table.
var migrations = []migration{
	addUpdatedAt,
}

// Store is the sqlite kv table behind kv: tokens.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path, applying pragmas, schema and
// pending migrations. Use ":memory:" for a throwaway store.
//
// Reopening an existing database is safe.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: sqlite has a single writer, and an in-memory database
	// exists only on the connection that created it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database %s: %w", path, err)
	}

	for _, p := range pragmas {
		if path == memoryPath && p.name == "journal_mode" {
			continue
		}
		if _, err := db.Exec(fmt.Sprintf("PRAGMA %s = %s", p.name, p.value)); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", p.name, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SchemaVersion reports the database's user_version.
func (s *Store) SchemaVersion() (int, error) {
	return userVersion(s.db)
}

func userVersion(db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRow("PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("read user_version: %w", err)
	}
	return v, nil
}

// migrate runs each pending migration in its own transaction together with
// the user_version bump.
func migrate(db *sql.DB) error {
	current, err := userVersion(db)
	if err != nil {
		return err
	}

	for v := current; v < len(migrations); v++ {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("migrate to v%d: %w", v+1, err)
		}
		if err := migrations[v](tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migrate to v%d: %w", v+1, err)
		}
		// PRAGMA does not accept bound parameters.
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", v+1)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migrate to v%d: set user_version: %w", v+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migrate to v%d: %w", v+1, err)
		}
	}
	return nil
}

// addUpdatedAt adds kv_values.updated_at to tables created before it existed.
func addUpdatedAt(tx *sql.Tx) error {
	ok, err := hasColumn(tx, "kv_values", "updated_at")
	if err != nil || ok {
		return err
	}

	// ALTER TABLE only takes constant defaults; backfill afterwards.
	if _, err := tx.Exec(`ALTER TABLE kv_values ADD COLUMN updated_at TEXT NOT NULL DEFAULT ''`); err != nil {
		return err
	}
	_, err = tx.Exec(`UPDATE kv_values SET updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`)
	return err
}

func hasColumn(tx *sql.Tx, table, column string) (bool, error) {
	var n int
	err := tx.QueryRow(`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("inspect %s.%s: %w", table, column, err)
	}
	return n > 0, nil
}

// pragmaValue reads back a connection setting.
func (s *Store) pragmaValue(name string) (string, error) {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return "", fmt.Errorf("read pragma %s: %w", name, err)
	}
	return value, nil
}
