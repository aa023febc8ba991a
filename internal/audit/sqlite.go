// Package audit keeps a local SQLite log of vault lifecycle events. It never
// stores passphrases, keys or record contents.
package audit

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite" // SQLite driver
)

// Log wraps the SQLite handle.
type Log struct {
	sql  *sql.DB
	path string
}

// Open initialises the audit database at path, creating it with 0600 permissions.
func Open(path string) (*Log, error) {
	if path == "" {
		return nil, errors.New("audit database path is required")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errors.Wrap(err, "create audit directory")
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
	handle, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open audit database")
	}
	handle.SetMaxOpenConns(1)

	if err := handle.Ping(); err != nil {
		handle.Close()
		return nil, errors.Wrap(err, "ping audit database")
	}

	l := &Log{sql: handle, path: path}
	if err := l.migrate(); err != nil {
		handle.Close()
		return nil, err
	}

	if err := ensurePerm0600(path); err != nil {
		handle.Close()
		return nil, err
	}
	return l, nil
}

// Path returns the database file location.
func (l *Log) Path() string {
	return l.path
}

// Close releases the database handle.
func (l *Log) Close() error {
	if l == nil || l.sql == nil {
		return nil
	}
	return l.sql.Close()
}

// ensurePerm0600 restricts the database to its owner on Unix systems.
func ensurePerm0600(path string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	if err := os.Chmod(path, 0o600); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "chmod audit database")
	}
	return nil
}

const createEventsTable = `
CREATE TABLE IF NOT EXISTS events (
	id     INTEGER PRIMARY KEY AUTOINCREMENT,
	at     INTEGER NOT NULL,
	vault  TEXT    NOT NULL,
	kind   TEXT    NOT NULL,
	detail TEXT    NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_events_vault_kind_at ON events(vault, kind, at);
`

func (l *Log) migrate() error {
	if _, err := l.sql.Exec(createEventsTable); err != nil {
		return errors.Wrap(err, "migrate audit schema")
	}
	return nil
}
