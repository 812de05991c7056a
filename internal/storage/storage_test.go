package storage

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/mindwell/apiserver/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newMemoryBucket() *memoryBucket {
	return &memoryBucket{objects: map[string][]byte{}, types: map[string]string{}}
}

func (b *memoryBucket) EnsureBucket(context.Context) error { return nil }

func (b *memoryBucket) Put(_ context.Context, key string, r io.Reader, _ int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = data
	b.types[key] = contentType
	return nil
}

func (b *memoryBucket) Bucket() string { return "test" }
func (b *memoryBucket) Close() error   { return nil }

func TestArchivePutJSON(t *testing.T) {
	bucket := newMemoryBucket()
	archive := NewArchive(bucket)
	ctx := context.Background()

	type doc struct {
		SessionID string `json:"sessionId"`
		Turns     int    `json:"turns"`
	}

	key := TranscriptKey("abc")
	require.NoError(t, archive.PutJSON(ctx, key, doc{SessionID: "abc", Turns: 2}))
	assert.Equal(t, "application/json", bucket.types[key])

	var got doc
	require.NoError(t, json.Unmarshal(bucket.objects[key], &got))
	assert.Equal(t, doc{SessionID: "abc", Turns: 2}, got)
}

func TestNilArchiveIsDisabled(t *testing.T) {
	var archive *Archive
	ctx := context.Background()

	assert.False(t, archive.Enabled())
	assert.NoError(t, archive.PutJSON(ctx, "k", map[string]int{"a": 1}))
	assert.NoError(t, archive.Close())
}

func TestOpenDisabledAndUnknown(t *testing.T) {
	archive, err := Open(context.Background(), config.StorageConfig{Backend: config.StorageBackendNone})
	require.NoError(t, err)
	assert.Nil(t, archive)

	_, err = Open(context.Background(), config.StorageConfig{Backend: "s3"})
	assert.Error(t, err)

	_, err = Open(context.Background(), config.StorageConfig{Backend: config.StorageBackendMinio})
	assert.Error(t, err)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "transcripts/s1.json", TranscriptKey("s1"))
	at := time.Date(2024, 3, 9, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, "records/mood/2024/03/09/e1.json", RecordKey("mood", "e1", at))
}
