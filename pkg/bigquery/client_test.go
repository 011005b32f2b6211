package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/dishdash-backend/pkg/config"
)

func TestNewClientValidatesConfig(t *testing.T) {
	ctx := context.Background()
	if _, err := NewClient(ctx, config.GCPConfig{}, config.BigQueryConfig{Dataset: "d", OrderEventsTable: "t"}, nil); err == nil {
		t.Fatal("expected project id error")
	}
	if _, err := NewClient(ctx, config.GCPConfig{ProjectID: "p"}, config.BigQueryConfig{OrderEventsTable: "t"}, nil); err == nil {
		t.Fatal("expected dataset error")
	}
	if _, err := NewClient(ctx, config.GCPConfig{ProjectID: "p"}, config.BigQueryConfig{Dataset: "d", OrderEventsTable: "  "}, nil); err == nil {
		t.Fatal("expected table error")
	}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"503", &googleapi.Error{Code: http.StatusServiceUnavailable}, true},
		{"wrapped 429", fmt.Errorf("insert: %w", &googleapi.Error{Code: http.StatusTooManyRequests}), true},
		{"400", &googleapi.Error{Code: http.StatusBadRequest}, false},
		{"grpc unavailable", status.Error(codes.Unavailable, "down"), true},
		{"grpc invalid", status.Error(codes.InvalidArgument, "bad"), false},
		{"plain", errors.New("boom"), false},
		{"rows all transient", bigquery.PutMultiError{
			{Errors: bigquery.MultiError{&googleapi.Error{Code: http.StatusInternalServerError}}},
		}, true},
		{"rows mixed", bigquery.PutMultiError{
			{Errors: bigquery.MultiError{&googleapi.Error{Code: http.StatusInternalServerError}}},
			{Errors: bigquery.MultiError{&googleapi.Error{Code: http.StatusBadRequest}}},
		}, false},
		{"rows empty", bigquery.PutMultiError{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Retryable(tc.err); got != tc.want {
				t.Fatalf("Retryable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestNilClient(t *testing.T) {
	var c *Client
	if err := c.InsertOrderEvents(context.Background(), []any{1}); err == nil {
		t.Fatal("expected error inserting through nil client")
	}
	if err := c.Ping(context.Background()); err == nil {
		t.Fatal("expected error pinging nil client")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close should be a no-op: %v", err)
	}
}
