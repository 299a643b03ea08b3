package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sergeJAVA/contractor-service/pkg/redis"
)

const processingValue = "processing"

// State is what the guard knows about a message id.
type State int

const (
	// StateNew means the caller now holds the processing lease.
	StateNew State = iota
	// StateInProgress means another attempt holds the lease, or held it and
	// died before finishing.
	StateInProgress
	// StateProcessed means a previous attempt completed.
	StateProcessed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateInProgress:
		return "in_progress"
	case StateProcessed:
		return "processed"
	default:
		return "unknown"
	}
}

// Manager remembers which outbox message ids a consumer already handled.
// Keys follow `ctr:idempotency:msg:processed:<consumer>:<message_id>`. A key
// first holds a short processing lease and is only turned into the long
// lived processed marker once the handler succeeded, so a crash mid-handling
// never makes the message look done.
type Manager struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	lease time.Duration
}

// NewManager builds an idempotency guard. Processed markers live for ttl,
// processing leases for lease.
func NewManager(store redis.IdempotencyStore, ttl, lease time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if lease <= 0 {
		return nil, errors.New("processing lease must be positive")
	}
	return &Manager{store: store, ttl: ttl, lease: lease}, nil
}

// Begin takes the processing lease for the message unless another attempt
// holds it or the message was already processed.
func (m *Manager) Begin(ctx context.Context, consumer, messageID string) (State, error) {
	key, err := m.processedKey(consumer, messageID)
	if err != nil {
		return StateNew, err
	}
	set, err := m.store.SetNX(ctx, key, processingValue, m.lease)
	if err != nil {
		return StateNew, fmt.Errorf("take processing lease: %w", err)
	}
	if set {
		return StateNew, nil
	}

	value, err := m.store.Get(ctx, key)
	if redis.IsNil(err) {
		// the lease expired between the two calls; let the next delivery retry
		return StateInProgress, nil
	}
	if err != nil {
		return StateNew, fmt.Errorf("read processed marker: %w", err)
	}
	if value == processingValue {
		return StateInProgress, nil
	}
	return StateProcessed, nil
}

// MarkProcessed replaces the processing lease with the processed marker.
func (m *Manager) MarkProcessed(ctx context.Context, consumer, messageID string) error {
	key, err := m.processedKey(consumer, messageID)
	if err != nil {
		return err
	}
	if err := m.store.Set(ctx, key, time.Now().UTC().Format(time.RFC3339), m.ttl); err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}

// Delete forgets the marker so a redelivery is handled again.
func (m *Manager) Delete(ctx context.Context, consumer, messageID string) error {
	key, err := m.processedKey(consumer, messageID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Manager) processedKey(consumer, messageID string) (string, error) {
	if strings.TrimSpace(consumer) == "" {
		return "", errors.New("consumer name is required")
	}
	id, err := uuid.Parse(strings.TrimSpace(messageID))
	if err != nil || id == uuid.Nil {
		return "", fmt.Errorf("invalid message id %q", messageID)
	}
	return m.store.IdempotencyKey("msg:processed:"+consumer, id.String()), nil
}
