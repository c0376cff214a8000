// Package storage keeps the run-status ledger: the outcome of the most recent
// ingestion run and when the last successful one finished.
package storage

import (
	"context"
	"fmt"

	"github.com/cyderes/activity-ingestion-service/internal/config"
	"github.com/cyderes/activity-ingestion-service/internal/models"
)

// statusKey identifies the single ledger record each backend maintains.
const statusKey = "ingestion_status"

// Storage interface defines the contract for the run-status ledger
type Storage interface {
	UpdateIngestionStatus(ctx context.Context, status models.IngestionStatus) error
	GetIngestionStatus(ctx context.Context) (*models.IngestionStatus, error)
	Close() error
}

// NewStorage creates a new storage instance based on configuration
func NewStorage(ctx context.Context, cfg config.StorageConfig) (Storage, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemoryStorage(), nil
	case "dynamodb":
		return NewDynamoDBStorage(cfg)
	case "mongodb":
		return NewMongoDBStorage(ctx, cfg)
	case "postgresql":
		return NewPostgreSQLStorage(ctx, cfg)
	case "sqlite":
		return NewSQLiteStorage(cfg)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

func neverRun() *models.IngestionStatus {
	return &models.IngestionStatus{Status: models.StatusNeverRun}
}
