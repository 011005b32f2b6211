package claims

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	values map[string]any
	ttls   map[string]time.Duration
	err    error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: map[string]any{}, ttls: map[string]time.Duration{}}
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	v, _ := m.values[key].(string)
	return v, m.err
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if _, taken := m.values[key]; taken {
		return false, nil
	}
	m.values[key] = value
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	m.values[key] = value
	m.ttls[key] = ttl
	return m.err
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.values, k)
	}
	return m.err
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "dd:idempotency:" + scope + ":" + id
}

func TestClaimIsExclusivePerConsumer(t *testing.T) {
	store := newMemoryStore()
	c, err := New(store, time.Hour)
	require.NoError(t, err)
	ctx := context.Background()
	eventID := uuid.New()

	won, err := c.Claim(ctx, "order-notifications", eventID)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = c.Claim(ctx, "order-notifications", eventID)
	require.NoError(t, err)
	assert.False(t, won, "second claim must lose")

	won, err = c.Claim(ctx, "analytics", eventID)
	require.NoError(t, err)
	assert.True(t, won, "other consumers claim independently")

	key := "dd:idempotency:event:order-notifications:" + eventID.String()
	assert.Equal(t, time.Hour, store.ttls[key])
}

func TestReleaseAllowsReclaim(t *testing.T) {
	c, err := New(newMemoryStore(), time.Hour)
	require.NoError(t, err)
	ctx := context.Background()
	eventID := uuid.New()

	_, err = c.Claim(ctx, "order-notifications", eventID)
	require.NoError(t, err)
	require.NoError(t, c.Release(ctx, "order-notifications", eventID))

	won, err := c.Claim(ctx, "order-notifications", eventID)
	require.NoError(t, err)
	assert.True(t, won)
}

func TestClaimValidatesInput(t *testing.T) {
	store := newMemoryStore()
	c, err := New(store, 0)
	require.NoError(t, err)

	_, err = c.Claim(context.Background(), "", uuid.New())
	assert.Error(t, err)
	_, err = c.Claim(context.Background(), "order-notifications", uuid.Nil)
	assert.Error(t, err)
	assert.Empty(t, store.values)

	_, err = New(nil, time.Hour)
	assert.Error(t, err)
	_, err = New(store, -time.Second)
	assert.Error(t, err)
}

func TestClaimSurfacesStoreErrors(t *testing.T) {
	store := newMemoryStore()
	store.err = errors.New("redis down")
	c, err := New(store, time.Hour)
	require.NoError(t, err)

	_, err = c.Claim(context.Background(), "order-notifications", uuid.New())
	assert.EqualError(t, err, "redis down")
}
