// Package redisstore provides a Redis-backed deposit store. It keeps the same
// session-lifetime semantics as the in-memory store but survives a page reload
// within the session.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/vaultbridge/txflow/pkg/models"
	"github.com/vaultbridge/txflow/pkg/registry"
)

const (
	recordKeyPrefix = "txflow:deposits:"
	orderKey        = "txflow:deposits:order"
)

type Store struct {
	client redis.UniversalClient
}

func NewStore(url string) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	return &Store{client: redis.NewClient(opts)}, nil
}

func (s *Store) Append(ctx context.Context, record *models.DepositRecord) error {
	key := recordKeyPrefix + record.ID

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to check deposit record %s: %w", record.ID, err)
	}

	if exists > 0 {
		return fmt.Errorf("deposit record %s already exists", record.ID)
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}

	err = s.client.Set(ctx, key, payload, 0).Err()
	if err != nil {
		return fmt.Errorf("failed to store deposit record %s: %w", record.ID, err)
	}

	return s.client.RPush(ctx, orderKey, record.ID).Err()
}

func (s *Store) UpdateStatus(ctx context.Context, id string, status models.DepositStatus) (*models.DepositRecord, error) {
	record, err := s.ByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !record.Status.CanTransitionTo(status) {
		return nil, fmt.Errorf("%w: %s -> %s", registry.ErrStatusRegression, record.Status, status)
	}

	record.Status = status
	record.UpdatedAt = time.Now().UTC()

	payload, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}

	err = s.client.Set(ctx, recordKeyPrefix+id, payload, 0).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to update deposit record %s: %w", id, err)
	}

	return record, nil
}

func (s *Store) List(ctx context.Context) ([]*models.DepositRecord, error) {
	ids, err := s.client.LRange(ctx, orderKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list deposit records: %w", err)
	}

	records := make([]*models.DepositRecord, 0, len(ids))

	for _, id := range ids {
		record, err := s.ByID(ctx, id)
		if err != nil {
			return nil, err
		}

		records = append(records, record)
	}

	return records, nil
}

func (s *Store) ByID(ctx context.Context, id string) (*models.DepositRecord, error) {
	payload, err := s.client.Get(ctx, recordKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, registry.ErrDepositNotFound
		}

		return nil, fmt.Errorf("failed to fetch deposit record %s: %w", id, err)
	}

	var record models.DepositRecord

	err = json.Unmarshal(payload, &record)
	if err != nil {
		return nil, fmt.Errorf("failed to decode deposit record %s: %w", id, err)
	}

	return &record, nil
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

func (s *Store) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close(_ context.Context) error {
	return s.client.Close()
}
