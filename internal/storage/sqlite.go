package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/cyderes/activity-ingestion-service/internal/config"
	"github.com/cyderes/activity-ingestion-service/internal/models"
)

// SQLiteStorage implements Storage interface on a local SQLite file via gorm
type SQLiteStorage struct {
	db        *gorm.DB
	tableName string
}

type sqliteStatusRow struct {
	ID                     string `gorm:"column:id;primaryKey"`
	models.IngestionStatus `gorm:"embedded"`
	UpdatedAt              time.Time
}

// NewSQLiteStorage opens (creating if needed) the database at SQLITE_PATH
func NewSQLiteStorage(cfg config.StorageConfig) (*SQLiteStorage, error) {
	if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(cfg.SQLitePath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Exec("PRAGMA journal_mode=WAL;").Error; err != nil {
		return nil, fmt.Errorf("failed to set journal mode: %w", err)
	}

	if err := db.Table(cfg.TableName).AutoMigrate(&sqliteStatusRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &SQLiteStorage{db: db, tableName: cfg.TableName}, nil
}

// UpdateIngestionStatus upserts the ledger row
func (s *SQLiteStorage) UpdateIngestionStatus(ctx context.Context, status models.IngestionStatus) error {
	row := sqliteStatusRow{ID: statusKey, IngestionStatus: status}
	err := s.db.WithContext(ctx).Table(s.tableName).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to store ingestion status: %w", err)
	}
	return nil
}

// GetIngestionStatus retrieves the current ingestion status
func (s *SQLiteStorage) GetIngestionStatus(ctx context.Context) (*models.IngestionStatus, error) {
	var row sqliteStatusRow
	err := s.db.WithContext(ctx).Table(s.tableName).Where("id = ?", statusKey).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return neverRun(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ingestion status: %w", err)
	}
	return &row.IngestionStatus, nil
}

// Close closes the underlying database handle
func (s *SQLiteStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
