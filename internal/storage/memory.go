package storage

import (
	"context"
	"sync"

	"github.com/cyderes/activity-ingestion-service/internal/models"
)

// MemoryStorage keeps the ledger in process memory. It is the default for
// one-shot runs where nothing reads the ledger afterwards.
type MemoryStorage struct {
	mu     sync.RWMutex
	status *models.IngestionStatus
}

// NewMemoryStorage creates an empty in-memory ledger.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

// UpdateIngestionStatus replaces the stored status.
func (m *MemoryStorage) UpdateIngestionStatus(ctx context.Context, status models.IngestionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = &status
	return nil
}

// GetIngestionStatus returns a copy of the stored status.
func (m *MemoryStorage) GetIngestionStatus(ctx context.Context) (*models.IngestionStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.status == nil {
		return neverRun(), nil
	}
	status := *m.status
	return &status, nil
}

// Close is a no-op.
func (m *MemoryStorage) Close() error {
	return nil
}
