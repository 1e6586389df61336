package snapstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/edarah/dbgateway/internal/errs"
	"github.com/edarah/dbgateway/internal/schema"
)

// MinioStore is a MinIO implementation of Store.
// It is safe for concurrent use by multiple goroutines.
type MinioStore struct {
	client *miniogo.Client
	bucket string
}

// NewMinio connects to MinIO using the provided Config and returns a store.
// It pings the backend to validate credentials before returning.
func NewMinio(ctx context.Context, cfg *Config) (*MinioStore, error) {
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "failed to create minio client", err)
	}

	s := &MinioStore{client: client, bucket: cfg.Bucket}
	if err := s.Ping(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Ping verifies the bucket is reachable.
func (s *MinioStore) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

// Save writes the snapshot envelope for databaseID.
func (s *MinioStore) Save(ctx context.Context, databaseID string, snap *schema.Snapshot, updatedAt time.Time) error {
	payload, err := json.Marshal(envelope{Snapshot: snap, UpdatedAt: updatedAt})
	if err != nil {
		return errs.Wrap(errs.ErrKindInvalidInput, "failed to encode snapshot", err)
	}

	_, err = s.client.PutObject(ctx, s.bucket, objectKey(databaseID),
		bytes.NewReader(payload), int64(len(payload)),
		miniogo.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return mapError(err, "failed to store snapshot")
	}
	return nil
}

// Load reads the snapshot envelope for databaseID.
func (s *MinioStore) Load(ctx context.Context, databaseID string) (*schema.Snapshot, time.Time, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, objectKey(databaseID), miniogo.GetObjectOptions{})
	if err != nil {
		return nil, time.Time{}, mapError(err, "failed to fetch snapshot")
	}
	defer obj.Close()

	raw, err := io.ReadAll(obj)
	if err != nil {
		return nil, time.Time{}, mapError(err, "failed to read snapshot")
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, time.Time{}, errs.Wrap(errs.ErrKindCacheCorrupt, "stored snapshot failed to decode", err)
	}
	return env.Snapshot, env.UpdatedAt, nil
}

// Delete removes the stored snapshot for databaseID.
func (s *MinioStore) Delete(ctx context.Context, databaseID string) error {
	err := s.client.RemoveObject(ctx, s.bucket, objectKey(databaseID), miniogo.RemoveObjectOptions{})
	if err != nil {
		return mapError(err, "failed to delete snapshot")
	}
	return nil
}

func objectKey(databaseID string) string {
	return "snapshots/" + databaseID + ".json"
}

// mapError translates a MinIO SDK error into a *errs.Error.
// It mirrors the mapError pattern used in the engine adapters.
func mapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	// MinIO SDK exposes a typed ErrorResponse for S3-protocol errors.
	var resp miniogo.ErrorResponse
	if errors.As(err, &resp) {
		switch resp.StatusCode {
		case http.StatusNotFound:
			return errs.Wrap(errs.ErrKindNotFound, msg, err)
		}
		switch resp.Code {
		case "NoSuchBucket", "NoSuchKey":
			return errs.Wrap(errs.ErrKindNotFound, msg, err)
		case "RequestTimeout", "SlowDown":
			return errs.Wrap(errs.ErrKindTimeout, msg, err)
		}
	}

	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}
