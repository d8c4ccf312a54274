package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/marketcheckout/pkg/redis"
)

const (
	processedMarker = "1"
	inFlightMarker  = "in-flight"
)

// ClaimState is the result of Claim.
type ClaimState int

const (
	ClaimAcquired ClaimState = iota
	ClaimInFlight
	ClaimProcessed
)

// Manager tracks processed event IDs per consumer using Redis SETNX with a TTL.
// Keys follow the `mc:idempotency:evt:processed:<consumer>:<event_id>` pattern.
type Manager struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

// NewManager builds an idempotency guard that marks events as processed for the given TTL.
func NewManager(store redis.IdempotencyStore, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Manager{store: store, ttl: ttl}, nil
}

// CheckAndMarkProcessed returns true if the event has already been processed and
// otherwise marks it as processed with the configured TTL.
func (m *Manager) CheckAndMarkProcessed(ctx context.Context, consumer, eventID string) (bool, error) {
	key, err := m.processedKey(consumer, eventID)
	if err != nil {
		return false, err
	}
	set, err := m.store.SetNX(ctx, key, processedMarker, m.ttl)
	if err != nil {
		return false, err
	}
	return !set, nil
}

// Claim reserves an event for hold. The caller calls MarkProcessed once its
// work is committed, or Delete when it fails; a claim that is never settled
// lapses after hold so a redelivery can run.
func (m *Manager) Claim(ctx context.Context, consumer, eventID string, hold time.Duration) (ClaimState, error) {
	key, err := m.processedKey(consumer, eventID)
	if err != nil {
		return ClaimInFlight, err
	}
	if hold <= 0 {
		return ClaimInFlight, errors.New("hold must be positive")
	}
	set, err := m.store.SetNX(ctx, key, inFlightMarker, hold)
	if err != nil {
		return ClaimInFlight, err
	}
	if set {
		return ClaimAcquired, nil
	}
	value, err := m.store.Get(ctx, key)
	switch {
	case errors.Is(err, goredis.Nil):
		// The claim lapsed between the two calls.
		return ClaimInFlight, nil
	case err != nil:
		return ClaimInFlight, err
	case value == inFlightMarker:
		return ClaimInFlight, nil
	default:
		return ClaimProcessed, nil
	}
}

// MarkProcessed records eventID as done for the manager's TTL.
func (m *Manager) MarkProcessed(ctx context.Context, consumer, eventID string) error {
	key, err := m.processedKey(consumer, eventID)
	if err != nil {
		return err
	}
	return m.store.Set(ctx, key, processedMarker, m.ttl)
}

// Delete clears the processed mark so a redelivery is handled again.
func (m *Manager) Delete(ctx context.Context, consumer, eventID string) error {
	key, err := m.processedKey(consumer, eventID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Manager) processedKey(consumer, eventID string) (string, error) {
	if consumer == "" {
		return "", errors.New("consumer name is required")
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return "", errors.New("event id is required")
	}
	scope := fmt.Sprintf("evt:processed:%s", consumer)
	return m.store.IdempotencyKey(scope, eventID), nil
}
