// Package writer batches analytics rows into BigQuery.
package writer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/sethvargo/go-retry"

	"github.com/angelmondragon/dishdash-backend/internal/analytics/types"
	pkgbigquery "github.com/angelmondragon/dishdash-backend/pkg/bigquery"
)

const (
	defaultBatchSize   = 25
	defaultMaxDelay    = 5 * time.Second
	defaultMaxAttempts = 3
	defaultBackoff     = 250 * time.Millisecond
	maxBackoff         = 2 * time.Second
)

// Config tunes batching and retries. Zero values fall back to defaults.
type Config struct {
	// BatchSize rows are sent together.
	BatchSize int
	// MaxDelay flushes a partial batch once its oldest row has waited this long.
	MaxDelay    time.Duration
	MaxAttempts int
	Backoff     time.Duration
}

type orderEventInserter interface {
	InsertOrderEvents(ctx context.Context, rows any) error
}

// BigQueryWriter buffers order event rows and streams them in batches.
// It is safe for concurrent use.
type BigQueryWriter struct {
	dest orderEventInserter
	cfg  Config
	now  func() time.Time

	mu      sync.Mutex
	pending []types.OrderEventRow
	oldest  time.Time
}

func New(dest orderEventInserter, cfg Config) (*BigQueryWriter, error) {
	if dest == nil {
		return nil, errors.New("bigquery client required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaultMaxDelay
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = defaultBackoff
	}
	return &BigQueryWriter{dest: dest, cfg: cfg, now: time.Now}, nil
}

// InsertOrderEvent queues row and sends the batch when it is full or stale.
func (w *BigQueryWriter) InsertOrderEvent(ctx context.Context, row types.OrderEventRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.pending) == 0 {
		w.oldest = w.now()
	}
	w.pending = append(w.pending, row)
	if len(w.pending) >= w.cfg.BatchSize || w.now().Sub(w.oldest) >= w.cfg.MaxDelay {
		return w.sendLocked(ctx)
	}
	return nil
}

// Flush sends whatever is queued.
func (w *BigQueryWriter) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sendLocked(ctx)
}

// sendLocked keeps the rows queued when every attempt fails so the next
// flush tries them again.
func (w *BigQueryWriter) sendLocked(ctx context.Context) error {
	if len(w.pending) == 0 {
		return nil
	}
	rows := slices.Clone(w.pending)

	backoff := retry.NewExponential(w.cfg.Backoff)
	backoff = retry.WithCappedDuration(maxBackoff, backoff)
	backoff = retry.WithMaxRetries(uint64(w.cfg.MaxAttempts-1), backoff)

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := w.dest.InsertOrderEvents(ctx, rows)
		if err != nil && pkgbigquery.Retryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("insert %d order event rows: %w", len(rows), err)
	}
	w.pending = w.pending[:0]
	return nil
}

// EncodeJSON turns payload into a BigQuery JSON column value. Raw JSON passes
// through untouched; nil and empty input become NULL.
func EncodeJSON(payload any) (cbigquery.NullJSON, error) {
	var raw []byte
	switch v := payload.(type) {
	case nil:
		return cbigquery.NullJSON{}, nil
	case cbigquery.NullJSON:
		return v, nil
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return cbigquery.NullJSON{}, fmt.Errorf("marshal json: %w", err)
		}
		raw = encoded
	}
	if len(raw) == 0 {
		return cbigquery.NullJSON{}, nil
	}
	return cbigquery.NullJSON{Valid: true, JSONVal: string(raw)}, nil
}
