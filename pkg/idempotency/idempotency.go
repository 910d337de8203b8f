package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/channelsync/orders-backend/pkg/redis"
)

// Manager tracks processed batch IDs per consumer using Redis SETNX with a TTL.
// Keys follow the `cs:idempotency:batch:processed:<consumer>:<batch_id>` pattern.
type Manager struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

// NewManager builds an idempotency guard that marks batches as processed for the given TTL.
func NewManager(store redis.IdempotencyStore, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Manager{
		store: store,
		ttl:   ttl,
	}, nil
}

// CheckAndMarkProcessed returns true if the batch has already been processed
// and otherwise marks it as processed with the configured TTL.
func (m *Manager) CheckAndMarkProcessed(ctx context.Context, consumer, batchID string) (bool, error) {
	key, err := m.processedKey(consumer, batchID)
	if err != nil {
		return false, err
	}
	set, err := m.store.SetNX(ctx, key, "1", m.ttl)
	if err != nil {
		return false, err
	}
	return !set, nil
}

// Delete clears the processed marker so a batch can be replayed.
func (m *Manager) Delete(ctx context.Context, consumer, batchID string) error {
	key, err := m.processedKey(consumer, batchID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Manager) processedKey(consumer, batchID string) (string, error) {
	if strings.TrimSpace(consumer) == "" {
		return "", errors.New("consumer name is required")
	}
	if strings.TrimSpace(batchID) == "" {
		return "", errors.New("batch id is required")
	}
	scope := fmt.Sprintf("batch:processed:%s", consumer)
	return m.store.IdempotencyKey(scope, batchID), nil
}
