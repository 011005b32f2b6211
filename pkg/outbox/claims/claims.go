// Package claims lets exactly one consumer process handle each outbox event.
package claims

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/dishdash-backend/pkg/redis"
)

type Claims struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

// New keeps each claim for ttl. Zero keeps claims until Redis evicts them.
func New(store redis.IdempotencyStore, ttl time.Duration) (*Claims, error) {
	switch {
	case store == nil:
		return nil, errors.New("claim store is required")
	case ttl < 0:
		return nil, errors.New("claim ttl must not be negative")
	}
	return &Claims{store: store, ttl: ttl}, nil
}

// Claim reports whether the caller is the first to take eventID for consumer.
func (c *Claims) Claim(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	key, err := c.key(consumer, eventID)
	if err != nil {
		return false, err
	}
	return c.store.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), c.ttl)
}

// Release drops a claim so a redelivery can be handled again.
func (c *Claims) Release(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := c.key(consumer, eventID)
	if err != nil {
		return err
	}
	return c.store.Del(ctx, key)
}

func (c *Claims) key(consumer string, eventID uuid.UUID) (string, error) {
	switch {
	case consumer == "":
		return "", errors.New("consumer is required")
	case eventID == uuid.Nil:
		return "", errors.New("event id is required")
	}
	return c.store.IdempotencyKey("event:"+consumer, eventID.String()), nil
}
