package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/dishdash-backend/api/responses"
	pkgerrors "github.com/angelmondragon/dishdash-backend/pkg/errors"
	"github.com/angelmondragon/dishdash-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/dishdash-backend/pkg/redis"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "Idempotent-Replayed"

	defaultIdempotencyTTL  = 24 * time.Hour
	criticalIdempotencyTTL = 7 * 24 * time.Hour
	inFlightTTL            = time.Minute

	inFlightMarker = "in-flight"
)

// idempotentRoutes lists the write endpoints that demand an Idempotency-Key.
// A "*" segment matches any single non-empty path segment.
var idempotentRoutes = []struct {
	method  string
	pattern []string
	ttl     time.Duration
}{
	{http.MethodPost, []string{"api", "v1", "orders"}, criticalIdempotencyTTL},
	{http.MethodPost, []string{"api", "v1", "orders", "*", "cancel"}, criticalIdempotencyTTL},
	{http.MethodPost, []string{"api", "v1", "orders", "*", "status"}, defaultIdempotencyTTL},
	{http.MethodPost, []string{"api", "v1", "orders", "*", "advance"}, defaultIdempotencyTTL},
	{http.MethodPost, []string{"api", "v1", "orders", "*", "assign"}, defaultIdempotencyTTL},
	{http.MethodPost, []string{"api", "v1", "drivers", "me", "availability"}, defaultIdempotencyTTL},
}

// storedResponse is what a finished request leaves under its key.
type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
	RequestHash string `json:"request_hash"`
}

type keyGuard struct {
	store pkgredis.IdempotencyStore
	logg  *logger.Logger
}

// Idempotency replays the first response for a repeated (user, route, key)
// and rejects a reused key whose body differs. While the handler runs the key
// holds an in-flight marker, so a concurrent duplicate gets 409 instead of a
// second execution. 5xx responses free the key for a retry.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	g := keyGuard{store: store, logg: logg}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, ok := routeTTL(r.Method, r.URL.Path)
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if clientKey == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			}
			hash, err := hashBody(r)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			key := store.IdempotencyKey(strings.Join([]string{
				UserIDFromContext(ctx), RoleFromContext(ctx), r.Method, r.URL.Path,
			}, "|"), clientKey)

			claimed, err := store.SetNX(ctx, key, inFlightMarker, inFlightTTL)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key"))
				return
			}
			if !claimed {
				if err := g.replay(ctx, w, key, hash); err != nil {
					responses.WriteError(ctx, logg, w, err)
				}
				return
			}

			capture := &responseCapture{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(capture, r)
			g.finish(ctx, key, ttl, storedResponse{
				Status:      capture.status,
				ContentType: capture.Header().Get("Content-Type"),
				Body:        capture.body.Bytes(),
				RequestHash: hash,
			})
		})
	}
}

// hashBody digests the request body and rewinds it for the handler.
func hashBody(r *http.Request) (string, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return "", err
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:]), nil
}

// finish replaces the in-flight marker with the response, or drops it after a 5xx.
func (g keyGuard) finish(ctx context.Context, key string, ttl time.Duration, resp storedResponse) {
	var err error
	if resp.Status >= http.StatusInternalServerError {
		err = g.store.Del(ctx, key)
	} else {
		var payload []byte
		if payload, err = json.Marshal(resp); err == nil {
			err = g.store.Set(ctx, key, string(payload), ttl)
		}
	}
	if err != nil && g.logg != nil {
		g.logg.Error(g.logg.WithField(ctx, "idempotency_key", key), "settle idempotency key", err)
	}
}

func (g keyGuard) replay(ctx context.Context, w http.ResponseWriter, key, hash string) error {
	raw, err := g.store.Get(ctx, key)
	switch {
	case errors.Is(err, redis.Nil), raw == inFlightMarker:
		return pkgerrors.New(pkgerrors.CodeIdempotency, "a request with this idempotency key is still being processed")
	case err != nil:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load idempotency record")
	}

	var stored storedResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record")
	}
	if stored.RequestHash != hash {
		return pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body")
	}

	if stored.ContentType != "" {
		w.Header().Set("Content-Type", stored.ContentType)
	}
	w.Header().Set(replayedHeader, "true")
	w.WriteHeader(stored.Status)
	_, _ = w.Write(stored.Body)
	return nil
}

// routeTTL matches the concrete request path; middleware mounted above a
// sub-router cannot see the final route pattern.
func routeTTL(method, path string) (time.Duration, bool) {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for _, route := range idempotentRoutes {
		if route.method == method && matchSegments(route.pattern, segments) {
			return route.ttl, true
		}
	}
	return 0, false
}

func matchSegments(pattern, path []string) bool {
	if len(pattern) != len(path) {
		return false
	}
	for i, want := range pattern {
		if path[i] == "" || (want != "*" && want != path[i]) {
			return false
		}
	}
	return true
}

// responseCapture tees the body so it can be stored after the handler returns.
type responseCapture struct {
	http.ResponseWriter
	body        bytes.Buffer
	status      int
	wroteHeader bool
}

func (c *responseCapture) WriteHeader(code int) {
	if !c.wroteHeader {
		c.status = code
		c.wroteHeader = true
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	c.wroteHeader = true
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}
