// common holds what SQLite backed stores share
package common

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/lloydmeta/reqindex/internal/config"
)

const driverName = "sqlite"

// Open opens and pings the SQLite database described by conf
func Open(conf config.Sqlite) (*sql.DB, error) {
	dsn := strings.TrimSpace(conf.DSN)
	if len(dsn) == 0 {
		return nil, SqliteErr{Underlying: fmt.Errorf("dsn is required")}
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, SqliteErr{Underlying: err}
	}
	if conf.MaxOpenConns > 0 {
		db.SetMaxOpenConns(conf.MaxOpenConns)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, SqliteErr{Underlying: err}
	}
	return db, nil
}

type SqliteErr struct {
	Underlying error
}

func (e SqliteErr) Error() string {
	return fmt.Sprintf("Error from SQLite: %v", e.Underlying)
}

func (e SqliteErr) Unwrap() error {
	return e.Underlying
}

// IsUniqueViolation returns true if the error is SQLite refusing a duplicate key
func IsUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return false
}
