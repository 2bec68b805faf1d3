package db

import (
	"database/sql"

	"github.com/geosift/geosift/errors"
)

// EnsureSchema applies a DDL statement set inside one transaction.
// Statements are expected to carry IF NOT EXISTS guards, so running it
// against an already-initialized store is a no-op. The legacy project
// format has a fixed single-table schema, which is why this takes the
// DDL directly instead of versioned migration files.
func EnsureSchema(db *sql.DB, ddl string) error {
	tx, err := db.Begin()
	if err != nil {
		return errors.Wrap(err, "begin schema transaction")
	}

	if _, err := tx.Exec(ddl); err != nil {
		tx.Rollback()
		return errors.Wrap(err, "apply schema")
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit schema")
	}
	return nil
}
