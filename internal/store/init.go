package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gwlsn/trimsilence/internal/logger"
)

// DBFileName is the history database inside the data directory.
const DBFileName = "trimsilence.db"

// GetDBPath returns the history database path for a data directory.
func GetDBPath(dataDir string) string {
	return filepath.Join(dataDir, DBFileName)
}

// CleanupDBFiles removes SQLite database files (main, WAL, and SHM).
func CleanupDBFiles(dbPath string) {
	os.Remove(dbPath)
	os.Remove(dbPath + "-wal")
	os.Remove(dbPath + "-shm")
}

// InitStore opens the history database in dataDir and fails any job a
// previous process left unfinished.
// This is the main entry point for store initialization.
func InitStore(dataDir string) (*SQLiteStore, error) {
	dbPath := GetDBPath(dataDir)

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	// Crash recovery
	count, err := store.MarkInterrupted()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("mark interrupted jobs: %w", err)
	}
	if count > 0 {
		logger.Info("Marked interrupted jobs as failed", "count", count)
	}

	return store, nil
}
