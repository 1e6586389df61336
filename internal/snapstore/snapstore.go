// Package snapstore persists schema snapshots as opaque JSON objects keyed by
// databaseId, each carrying a last-updated timestamp. It backs the
// snapshot-save half of the connection registry contract.
//
// Callers depend only on the Store interface — the MinIO implementation in
// this package is one provider; a filesystem or S3 provider slots in without
// touching call sites.
package snapstore

import (
	"context"
	"time"

	"github.com/edarah/dbgateway/internal/schema"
)

// Store persists and retrieves one snapshot per database.
type Store interface {
	// Ping verifies the storage backend is reachable.
	Ping(ctx context.Context) error

	// Save writes the snapshot for databaseID, replacing any previous one.
	Save(ctx context.Context, databaseID string, snap *schema.Snapshot, updatedAt time.Time) error

	// Load returns the stored snapshot and its last-updated timestamp.
	// A database with no stored snapshot yields a NotFound error.
	Load(ctx context.Context, databaseID string) (*schema.Snapshot, time.Time, error)

	// Delete removes the stored snapshot, if any.
	Delete(ctx context.Context, databaseID string) error
}

// Config holds the settings for the object-store backend.
type Config struct {
	// Endpoint is the host:port of the storage server.
	// Example: "localhost:9000" for local MinIO.
	Endpoint string

	// AccessKey is the access key ID (MinIO / S3 style).
	AccessKey string

	// SecretKey is the secret access key.
	SecretKey string

	// UseSSL controls whether TLS is used for the connection.
	UseSSL bool

	// Region is used by region-aware backends. Leave empty for MinIO.
	Region string

	// Bucket holds the snapshot objects.
	Bucket string
}

// DefaultConfig returns a sensible local-dev config for MinIO.
func DefaultConfig(endpoint, accessKey, secretKey string) *Config {
	return &Config{
		Endpoint:  endpoint,
		AccessKey: accessKey,
		SecretKey: secretKey,
		UseSSL:    false,
		Bucket:    "schema-snapshots",
	}
}

// envelope is the stored JSON layout: the snapshot plus its timestamp.
type envelope struct {
	Snapshot  *schema.Snapshot `json:"snapshot"`
	UpdatedAt time.Time        `json:"updated_at"`
}
