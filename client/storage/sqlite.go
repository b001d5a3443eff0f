package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/tkrehbiel/checkin/client/telemetry"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// SQLiteStore keeps every key in one table of a sqlite database
type SQLiteStore struct {
	dsn string
	db  *gorm.DB
}

// entry is one stored key
type entry struct {
	Key       string `gorm:"primaryKey"`
	Value     string
	UpdatedAt time.Time
}

func (entry) TableName() string {
	return "entries"
}

// gormWriter sends gorm's own messages to the telemetry log
type gormWriter struct{}

func (gormWriter) Printf(format string, args ...any) {
	telemetry.Log(format, args...)
}

func (s *SQLiteStore) Open() error {
	if s.db != nil {
		s.Close()
	}
	db, err := gorm.Open(sqlite.Open(s.dsn), &gorm.Config{
		Logger: logger.New(gormWriter{}, logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Error,
			IgnoreRecordNotFoundError: true,
		}),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(&entry{}); err != nil {
		return fmt.Errorf("migrating %s: %w", s.dsn, err)
	}
	s.db = db
	return nil
}

func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	s.db = nil
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func byKey(key string) clause.Eq {
	return clause.Eq{Column: clause.Column{Name: "key"}, Value: key}
}

func (s *SQLiteStore) opened() error {
	if s.db == nil {
		return fmt.Errorf("store %s has not been opened", s.dsn)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (string, error) {
	if err := s.opened(); err != nil {
		return "", err
	}
	var row entry
	err := s.db.WithContext(ctx).Take(&row, byKey(key)).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return "", ErrNotFound
	case err != nil:
		return "", fmt.Errorf("error finding key %s: %w", key, err)
	}
	return row.Value, nil
}

// Set inserts or overwrites a key in one statement
func (s *SQLiteStore) Set(ctx context.Context, key string, value string) error {
	if err := s.opened(); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry{Key: key, Value: value}).Error
	if err != nil {
		return fmt.Errorf("error setting key %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Remove(ctx context.Context, key string) error {
	if err := s.opened(); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(&entry{}, byKey(key)).Error; err != nil {
		return fmt.Errorf("error deleting key %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if err := s.opened(); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&entry{}).Error
	if err != nil {
		return fmt.Errorf("error clearing store: %w", err)
	}
	return nil
}

// NewSQLite returns an unopened sqlite store for a data source name,
// usually a file name.
func NewSQLite(dsn string) *SQLiteStore {
	return &SQLiteStore{dsn: dsn}
}
