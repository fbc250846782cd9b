package store

import (
	"fmt"
	"os"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store wraps the gorm handle and the sqlite file path it was opened
// against, so DeleteDatabase can remove the file after closing it.
type Store struct {
	DB   *gorm.DB
	path string
}

// Open parses a "sqlite://" DSN, opens the database in WAL mode, and
// runs AutoMigrate plus the archived-message FTS triggers.
func Open(dsn string) (*Store, error) {
	if !strings.HasPrefix(dsn, "sqlite://") {
		return nil, fmt.Errorf("unsupported store DSN: %s (only sqlite:// is supported)", dsn)
	}
	path := strings.TrimPrefix(dsn, "sqlite://")

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	if err := db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if err := db.Exec("PRAGMA foreign_keys=ON").Error; err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := db.Exec("PRAGMA busy_timeout=5000").Error; err != nil {
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := db.AutoMigrate(allModels()...); err != nil {
		return nil, fmt.Errorf("migrate store: %w", err)
	}

	s := &Store{DB: db, path: path}
	if err := s.ensureFTS(); err != nil {
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// DeleteDatabase closes the store and removes its backing file (and
// the WAL/SHM side files sqlite leaves alongside it), for use from
// tests that need a clean slate.
func (s *Store) DeleteDatabase() error {
	if err := s.Close(); err != nil {
		return err
	}
	if s.path == "" || s.path == ":memory:" {
		return nil
	}
	for _, suffix := range []string{"", "-wal", "-shm"} {
		if err := os.Remove(s.path + suffix); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// IntegrityCheckResult is the outcome of PRAGMA integrity_check.
type IntegrityCheckResult struct {
	OK       bool
	Messages []string
}

// IntegrityCheck runs sqlite's built-in integrity check on demand.
func (s *Store) IntegrityCheck() (IntegrityCheckResult, error) {
	var rows []string
	if err := s.DB.Raw("PRAGMA integrity_check").Scan(&rows).Error; err != nil {
		return IntegrityCheckResult{}, fmt.Errorf("integrity check: %w", err)
	}
	ok := len(rows) == 1 && rows[0] == "ok"
	return IntegrityCheckResult{OK: ok, Messages: rows}, nil
}
