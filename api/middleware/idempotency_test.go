package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/dishdash-backend/pkg/errors"
)

type fakeStore struct {
	data map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string)}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	f.data[key] = fmt.Sprint(value)
	return nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	f.data[key] = fmt.Sprint(value)
	return true, nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return "fake:" + scope + ":" + id
}

func asUser(req *http.Request, userID uuid.UUID) *http.Request {
	return req.WithContext(WithIdentity(req.Context(), Identity{UserID: userID, Role: "customer"}))
}

// keyedPost builds a POST carrying an Idempotency-Key; a nil user leaves it anonymous.
func keyedPost(path, key, body string, user *uuid.UUID) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}
	if user != nil {
		req = asUser(req, *user)
	}
	return req
}

// countingHandler answers with the given statuses in turn and counts calls.
func countingHandler(statuses ...int) (http.Handler, *int) {
	calls := new(int)
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		status := statuses[min(*calls, len(statuses)-1)]
		*calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}), calls
}

func TestRouteTTLSelection(t *testing.T) {
	orderID := uuid.NewString()
	tests := []struct {
		name   string
		method string
		path   string
		want   time.Duration
		ok     bool
	}{
		{"place order", http.MethodPost, "/api/v1/orders", criticalIdempotencyTTL, true},
		{"order cancel", http.MethodPost, "/api/v1/orders/" + orderID + "/cancel", criticalIdempotencyTTL, true},
		{"order status", http.MethodPost, "/api/v1/orders/" + orderID + "/status", defaultIdempotencyTTL, true},
		{"order assign", http.MethodPost, "/api/v1/orders/" + orderID + "/assign", defaultIdempotencyTTL, true},
		{"nested too deep", http.MethodPost, "/api/v1/orders/" + orderID + "/assign/extra", 0, false},
		{"empty order id", http.MethodPost, "/api/v1/orders//cancel", 0, false},
		{"availability", http.MethodPost, "/api/v1/drivers/me/availability", defaultIdempotencyTTL, true},
		{"read is not covered", http.MethodGet, "/api/v1/orders", 0, false},
		{"notifications", http.MethodPost, "/api/v1/notifications/read-all", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ttl, ok := routeTTL(tt.method, tt.path)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, ttl)
		})
	}
}

func TestIdempotencyRequiresHeader(t *testing.T) {
	handler, calls := countingHandler(http.StatusCreated)
	rec := httptest.NewRecorder()
	Idempotency(newFakeStore(), nil)(handler).ServeHTTP(rec, keyedPost("/api/v1/orders", "", `{}`, nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, *calls)
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	store := newFakeStore()
	handler, calls := countingHandler(http.StatusCreated)
	mw := Idempotency(store, nil)(handler)
	user := uuid.New()

	first := httptest.NewRecorder()
	mw.ServeHTTP(first, keyedPost("/api/v1/orders", "abc", `{"foo":"bar"}`, &user))
	require.Equal(t, http.StatusCreated, first.Code)

	for range 2 {
		rec := httptest.NewRecorder()
		mw.ServeHTTP(rec, keyedPost("/api/v1/orders", "abc", `{"foo":"bar"}`, &user))
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		assert.Equal(t, "true", rec.Header().Get(replayedHeader))
		assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
	}
	assert.Equal(t, 1, *calls)
}

func TestIdempotencyRejectsConcurrentDuplicate(t *testing.T) {
	store := newFakeStore()
	user := uuid.New()
	var dup *httptest.ResponseRecorder
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if dup == nil {
			dup = httptest.NewRecorder()
			Idempotency(store, nil)(http.NotFoundHandler()).ServeHTTP(dup, keyedPost("/api/v1/orders", "dup", `{}`, &user))
		}
		w.WriteHeader(http.StatusCreated)
	})

	rec := httptest.NewRecorder()
	Idempotency(store, nil)(handler).ServeHTTP(rec, keyedPost("/api/v1/orders", "dup", `{}`, &user))

	assert.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, dup)
	assert.Equal(t, http.StatusConflict, dup.Code)
}

func TestIdempotencyKeysAreScopedPerUser(t *testing.T) {
	handler, calls := countingHandler(http.StatusCreated)
	mw := Idempotency(newFakeStore(), nil)(handler)
	for _, user := range []uuid.UUID{uuid.New(), uuid.New()} {
		mw.ServeHTTP(httptest.NewRecorder(), keyedPost("/api/v1/orders", "shared", `{}`, &user))
	}
	assert.Equal(t, 2, *calls)
}

func TestIdempotencyDetectsBodyChange(t *testing.T) {
	handler, _ := countingHandler(http.StatusOK)
	mw := Idempotency(newFakeStore(), nil)(handler)
	path := "/api/v1/orders/" + uuid.NewString() + "/cancel"

	mw.ServeHTTP(httptest.NewRecorder(), keyedPost(path, "xyz", `{"notes":"a"}`, nil))
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, keyedPost(path, "xyz", `{"notes":"b"}`, nil))

	require.Equal(t, http.StatusConflict, rec.Code)
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, string(pkgerrors.CodeIdempotency), payload.Error.Code)
}

func TestIdempotencyDoesNotStoreServerErrors(t *testing.T) {
	store := newFakeStore()
	handler, calls := countingHandler(http.StatusServiceUnavailable, http.StatusOK)
	mw := Idempotency(store, nil)(handler)
	path := "/api/v1/orders/" + uuid.NewString() + "/advance"

	for range 2 {
		mw.ServeHTTP(httptest.NewRecorder(), keyedPost(path, "retry-me", "", nil))
	}
	assert.Equal(t, 2, *calls)
	assert.Len(t, store.data, 1)
}
