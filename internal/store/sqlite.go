// Package store persists research chunks and generated account plans in
// SQLite. The vector store ranks by cosine similarity over embeddings kept in
// a JSON column; the plan store keys plans by user and chat with a
// case-insensitive company fallback.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"planforge/internal/core"
	"planforge/internal/logging"
)

// openDB opens the SQLite file at path, creating parent directories and
// applying the standard pragmas. A file that fails to open as a database is
// removed and recreated once; persistent corruption surfaces as
// ErrDataCorruption.
func openDB(path string) (*sql.DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("store: create directory: %w", err)
	}

	db, err := open(path)
	if err == nil {
		return db, nil
	}

	logging.Get(logging.CategoryStore).Warn("database at %s unreadable, resetting: %v", path, err)
	if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
		return nil, fmt.Errorf("store: %w: reset failed: %v", core.ErrDataCorruption, rmErr)
	}
	db, err = open(path)
	if err != nil {
		return nil, fmt.Errorf("store: %w: %v", core.ErrDataCorruption, err)
	}
	logging.Store("recreated database at %s", path)
	return db, nil
}

func open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			logging.StoreDebug("pragma failed: %s: %v", pragma, err)
		}
	}
	// A corrupted file only fails once a real statement runs.
	if _, err := db.Exec("CREATE TABLE IF NOT EXISTS _probe (id INTEGER)"); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func placeholderList(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
