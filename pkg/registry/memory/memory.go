// Package memory provides the in-memory deposit store used for
// session-lifetime history.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vaultbridge/txflow/pkg/models"
	"github.com/vaultbridge/txflow/pkg/registry"
)

type Store struct {
	mu      sync.RWMutex
	order   []string
	records map[string]*models.DepositRecord
}

func NewStore() *Store {
	return &Store{
		records: make(map[string]*models.DepositRecord),
	}
}

func (s *Store) Append(_ context.Context, record *models.DepositRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[record.ID]; exists {
		return fmt.Errorf("deposit record %s already exists", record.ID)
	}

	stored := *record
	s.records[record.ID] = &stored
	s.order = append(s.order, record.ID)

	return nil
}

func (s *Store) UpdateStatus(_ context.Context, id string, status models.DepositStatus) (*models.DepositRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, exists := s.records[id]
	if !exists {
		return nil, registry.ErrDepositNotFound
	}

	if !record.Status.CanTransitionTo(status) {
		return nil, fmt.Errorf("%w: %s -> %s", registry.ErrStatusRegression, record.Status, status)
	}

	record.Status = status
	record.UpdatedAt = time.Now().UTC()

	copied := *record

	return &copied, nil
}

func (s *Store) List(_ context.Context) ([]*models.DepositRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]*models.DepositRecord, 0, len(s.order))

	for _, id := range s.order {
		copied := *s.records[id]
		records = append(records, &copied)
	}

	return records, nil
}

func (s *Store) ByID(_ context.Context, id string) (*models.DepositRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, exists := s.records[id]
	if !exists {
		return nil, registry.ErrDepositNotFound
	}

	copied := *record

	return &copied, nil
}

func (s *Store) Pending(ctx context.Context) ([]*models.DepositRecord, error) {
	records, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	pending := make([]*models.DepositRecord, 0)

	for _, record := range records {
		if record.Status == models.DepositStatusPending {
			pending = append(pending, record)
		}
	}

	return pending, nil
}

func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

func (s *Store) Close(_ context.Context) error {
	return nil
}
