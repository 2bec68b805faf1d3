// Package db opens SQLite stores with the settings the rest of the tree
// relies on. The legacy project format is a SQLite file, so this package
// is its access layer.
package db

import (
	"database/sql"
	"strconv"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/geosift/geosift/errors"
)

// SQLiteBusyTimeoutMS is how long a connection waits on a locked
// database before giving up.
const SQLiteBusyTimeoutMS = 5000

// Open opens a SQLite database at the specified path with WAL mode,
// foreign keys, and a busy timeout. If logger is provided, logs database
// operations; otherwise operates silently.
//
// SQLite creates the file on first access, so callers reading an
// existing store must check the path exists before calling Open.
func Open(path string, logger *zap.SugaredLogger) (*sql.DB, error) {
	if logger != nil {
		logger.Debugw("Opening database", "path", path)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open database %s", path)
	}

	// WAL allows concurrent reads during writes
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "enable WAL mode")
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "enable foreign keys")
	}

	if _, err := db.Exec("PRAGMA busy_timeout = " + strconv.Itoa(SQLiteBusyTimeoutMS)); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "set busy timeout")
	}

	if logger != nil {
		logger.Debugw("Database opened",
			"path", path,
			"wal_mode", true,
			"foreign_keys", true,
		)
	}

	return db, nil
}

// OpenReadOnly opens an existing SQLite database without write access.
// Open's WAL pragma rewrites the database header, so readers of files
// the user owns go through here instead.
func OpenReadOnly(path string, logger *zap.SugaredLogger) (*sql.DB, error) {
	if logger != nil {
		logger.Debugw("Opening database read-only", "path", path)
	}
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, errors.Wrapf(err, "open database %s", path)
	}

	// busy_timeout is per-connection, not persisted
	if _, err := db.Exec("PRAGMA busy_timeout = " + strconv.Itoa(SQLiteBusyTimeoutMS)); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "set busy timeout")
	}

	return db, nil
}
