package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/dishdash-backend/pkg/config"
	"github.com/angelmondragon/dishdash-backend/pkg/gcp"
	"github.com/angelmondragon/dishdash-backend/pkg/logger"
)

const metadataTimeout = 10 * time.Second

var errNotInitialized = errors.New("bigquery client not initialized")

// Client writes analytics rows into one dataset.
type Client struct {
	client  *bigquery.Client
	dataset *bigquery.Dataset
	cfg     config.BigQueryConfig
}

// NewClient connects to BigQuery and fails fast when the dataset or the
// order events table is missing.
func NewClient(ctx context.Context, gcpCfg config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger) (*Client, error) {
	projectID, err := gcp.Project(gcpCfg)
	if err != nil {
		return nil, err
	}
	cfg.Dataset = strings.TrimSpace(cfg.Dataset)
	cfg.OrderEventsTable = strings.TrimSpace(cfg.OrderEventsTable)
	switch {
	case cfg.Dataset == "":
		return nil, errors.New("bigquery dataset is required")
	case cfg.OrderEventsTable == "":
		return nil, errors.New("bigquery order events table is required")
	}

	bq, err := bigquery.NewClient(ctx, projectID, gcp.ClientOptions(gcpCfg)...)
	if err != nil {
		return nil, fmt.Errorf("creating bigquery client: %w", err)
	}
	c := &Client{client: bq, dataset: bq.Dataset(cfg.Dataset), cfg: cfg}
	if err := c.Ping(ctx); err != nil {
		_ = bq.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"dataset": cfg.Dataset,
			"table":   cfg.OrderEventsTable,
		}), "bigquery client initialized")
	}
	return c, nil
}

// Ping reads dataset and table metadata.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.dataset == nil {
		return errNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()

	if _, err := c.dataset.Metadata(ctx); err != nil {
		return gcp.Exists("dataset", c.dataset.DatasetID, err)
	}
	if _, err := c.dataset.Table(c.cfg.OrderEventsTable).Metadata(ctx); err != nil {
		return gcp.Exists("table", c.cfg.OrderEventsTable, err)
	}
	return nil
}

// InsertOrderEvents streams rows into the order events table. Unknown
// columns are dropped rather than failing the whole batch.
func (c *Client) InsertOrderEvents(ctx context.Context, rows any) error {
	if c == nil || c.dataset == nil {
		return errNotInitialized
	}
	inserter := c.dataset.Table(c.cfg.OrderEventsTable).Inserter()
	inserter.IgnoreUnknownValues = true
	return inserter.Put(ctx, rows)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// Retryable reports whether an insert error is worth another attempt. Row
// level failures are retryable only when every inner error is.
func Retryable(err error) bool {
	if err == nil {
		return false
	}

	var putErr bigquery.PutMultiError
	if errors.As(err, &putErr) {
		if len(putErr) == 0 {
			return false
		}
		for _, row := range putErr {
			if !Retryable(row.Errors) {
				return false
			}
		}
		return true
	}

	var multi bigquery.MultiError
	if errors.As(err, &multi) {
		if len(multi) == 0 {
			return false
		}
		for _, inner := range multi {
			if !Retryable(inner) {
				return false
			}
		}
		return true
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests, http.StatusRequestTimeout, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Aborted, codes.DeadlineExceeded, codes.Internal, codes.ResourceExhausted, codes.Unavailable:
			return true
		}
	}
	return false
}
