package s3store

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/require"

	"progress-sync-service/internal/store"
)

type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	failAll error
}

func (b *fakeBucket) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failAll != nil {
		return nil, b.failAll
	}
	data, ok := b.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{Message: aws.String("missing")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (b *fakeBucket) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failAll != nil {
		return nil, b.failAll
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	b.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func TestPutGet(t *testing.T) {
	bucket := &fakeBucket{objects: map[string][]byte{}}
	s := newStore(bucket, "backups", "saves/")
	ctx := context.Background()

	got, err := s.Get(ctx, "p1")
	require.NoError(t, err)
	require.False(t, got.Exists)

	_, err = s.Put(ctx, "p1", store.Record{Fields: map[string]any{"level": 4}, LastSaved: 300}, 0)
	require.NoError(t, err)
	require.Contains(t, bucket.objects, "backups/saves/p1.json")

	got, err = s.Get(ctx, "p1")
	require.NoError(t, err)
	require.True(t, got.Exists)
	require.Equal(t, int64(300), got.Record.LastSaved)
}

func TestBackendFailure(t *testing.T) {
	bucket := &fakeBucket{objects: map[string][]byte{}, failAll: errors.New("connection reset")}
	s := newStore(bucket, "backups", "")

	_, err := s.Put(context.Background(), "p1", store.Record{}, 0)
	require.ErrorIs(t, err, store.ErrUnavailable)

	_, err = s.Get(context.Background(), "p1")
	require.ErrorIs(t, err, store.ErrUnavailable)
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{})
	require.Error(t, err)
}
