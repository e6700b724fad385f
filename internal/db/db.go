// Package db persists the install event journal in SQLite. The journal is
// append-only history; the authoritative stage flags live in the YAML
// state file, so losing the journal costs diagnostics, not correctness.
package db

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
)

var (
	db   *sql.DB
	once sync.Once
)

// Init opens (and if needed creates) the journal database at path.
func Init(path string) error {
	var initErr error
	once.Do(func() {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			initErr = fmt.Errorf("failed to create journal directory: %w", err)
			return
		}

		var err error
		db, err = sql.Open("sqlite", path)
		if err != nil {
			initErr = fmt.Errorf("failed to open journal: %w", err)
			return
		}

		// SQLite single writer
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)

		if err := initTables(); err != nil {
			initErr = fmt.Errorf("failed to init journal tables: %w", err)
			return
		}

		log.Printf("Journal opened: %s", path)
	})
	return initErr
}

// Get returns the journal connection.
func Get() *sql.DB {
	return db
}

// Close closes the journal and allows a later re-Init (used by tests).
func Close() error {
	if db != nil {
		err := db.Close()
		db = nil
		once = sync.Once{}
		return err
	}
	return nil
}

func initTables() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			stage      TEXT NOT NULL,
			status     TEXT NOT NULL,
			message    TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}
