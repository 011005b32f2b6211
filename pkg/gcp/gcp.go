// Package gcp holds what the Pub/Sub and BigQuery clients share: credentials
// and the existence check run at start-up.
package gcp

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/dishdash-backend/pkg/config"
)

var ErrProjectRequired = errors.New("gcp project id is required")

// Project returns the trimmed project id or ErrProjectRequired.
func Project(cfg config.GCPConfig) (string, error) {
	id := strings.TrimSpace(cfg.ProjectID)
	if id == "" {
		return "", ErrProjectRequired
	}
	return id, nil
}

// ClientOptions picks inline JSON credentials, then a credentials file, then
// application default credentials.
func ClientOptions(cfg config.GCPConfig) []option.ClientOption {
	if strings.TrimSpace(cfg.CredentialsJSON) != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(cfg.CredentialsJSON))}
	}
	if path := strings.TrimSpace(cfg.ApplicationCredentials); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}

// Exists turns the error of a metadata lookup for the named resource into a
// readable start-up failure. Both gRPC and REST not-found shapes are recognised.
func Exists(kind, name string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if status.Code(err) == codes.NotFound || (errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound) {
		return fmt.Errorf("%s %q does not exist", kind, name)
	}
	return fmt.Errorf("checking %s %q: %w", kind, name, err)
}
