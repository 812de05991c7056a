// Package storage archives chat transcripts and workflow records as JSON
// objects in a bucket.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/mindwell/apiserver/config"
)

// ObjectStorage is the subset of bucket operations the archive needs.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Bucket() string
	Close() error
}

// Archive stores JSON documents in an ObjectStorage backend. A nil *Archive
// is valid and discards everything, which is how a disabled archive behaves.
type Archive struct {
	backend ObjectStorage
}

func NewArchive(backend ObjectStorage) *Archive {
	return &Archive{backend: backend}
}

// Open builds the archive selected in cfg. It returns a nil archive when
// storage is disabled.
func Open(ctx context.Context, cfg config.StorageConfig) (*Archive, error) {
	var (
		backend ObjectStorage
		err     error
	)
	switch cfg.Backend {
	case config.StorageBackendNone, "":
		return nil, nil
	case config.StorageBackendMinio:
		backend, err = NewMinioClient(cfg.Minio)
	case config.StorageBackendGCS:
		backend, err = NewGCSClient(ctx, cfg.GCS)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	if err := backend.EnsureBucket(ctx); err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("ensure bucket %s: %w", backend.Bucket(), err)
	}
	return NewArchive(backend), nil
}

// Enabled reports whether documents are actually stored.
func (a *Archive) Enabled() bool {
	return a != nil && a.backend != nil
}

// PutJSON stores v under key.
func (a *Archive) PutJSON(ctx context.Context, key string, v any) error {
	if !a.Enabled() {
		return nil
	}
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return a.backend.Put(ctx, key, bytes.NewReader(body), int64(len(body)), "application/json")
}

// Close releases the backend client.
func (a *Archive) Close() error {
	if !a.Enabled() {
		return nil
	}
	return a.backend.Close()
}

// TranscriptKey is the object key of a session transcript snapshot.
func TranscriptKey(sessionID string) string {
	return path.Join("transcripts", sessionID+".json")
}

// RecordKey is the object key of a processed workflow record.
func RecordKey(kind, id string, at time.Time) string {
	return path.Join("records", kind, at.UTC().Format("2006/01/02"), id+".json")
}
