package datastore

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// SQLiteStore is the SQLite-backed store used in production and tests.
type SQLiteStore struct {
	DataStore
	Path string
}

// New creates a store for the given SQLite database path. Use
// ":memory:" for an ephemeral database.
func New(path string) *SQLiteStore {
	return &SQLiteStore{Path: path}
}

// Open connects to the database and runs migrations.
func (s *SQLiteStore) Open() error {
	db, err := gorm.Open(sqlite.Open(s.Path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return fmt.Errorf("datastore: opening sqlite database at %s: %w", s.Path, err)
	}
	s.DB = db
	s.log = newLogger()

	if err := s.migrate(); err != nil {
		return fmt.Errorf("datastore: migrating schema: %w", err)
	}

	s.log.Info().Str("path", s.Path).Msg("SQLite database opened")
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s.DB == nil {
		return nil
	}
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
