// Package inmem provides an in-memory implementation of objectstore.Store
// for testing and local development.
package inmem

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/polaris-ecosystems/rfp-agent/internal/objectstore"
)

type object struct {
	data        []byte
	contentType string
}

// Store implements objectstore.Store over an in-process map. It is
// thread-safe and generates deterministic fake presigned URLs so tests can
// assert on bucket/key without a real S3 endpoint.
type Store struct {
	mu      sync.RWMutex
	bucket  string
	objects map[string]object
}

// New returns a new in-memory store scoped to bucket.
func New(bucket string) *Store {
	return &Store{bucket: bucket, objects: make(map[string]object)}
}

func (s *Store) PutBytes(_ context.Context, key string, data []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cloned := make([]byte, len(data))
	copy(cloned, data)
	s.objects[key] = object{data: cloned, contentType: contentType}
	return nil
}

func (s *Store) GetBytes(_ context.Context, key string, maxBytes int64) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("objectstore: %s not found", key)
	}
	if maxBytes > 0 && int64(len(obj.data)) > maxBytes {
		return nil, fmt.Errorf("%w: %s", objectstore.ErrObjectTooLarge, key)
	}
	out := make([]byte, len(obj.data))
	copy(out, obj.data)
	return out, nil
}

func (s *Store) Head(_ context.Context, key string) (objectstore.ObjectMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return objectstore.ObjectMeta{}, fmt.Errorf("objectstore: %s not found", key)
	}
	return objectstore.ObjectMeta{Key: key, ContentLength: int64(len(obj.data)), ContentType: obj.contentType}, nil
}

// ListObjects satisfies tools.ObjectLister for tests and local development.
func (s *Store) ListObjects(_ context.Context, prefix string) ([]objectstore.ObjectMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	metas := make([]objectstore.ObjectMeta, 0, len(s.objects))
	for key, obj := range s.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		metas = append(metas, objectstore.ObjectMeta{Key: key, ContentLength: int64(len(obj.data)), ContentType: obj.contentType})
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].Key < metas[j].Key })
	return metas, nil
}

func (s *Store) Copy(_ context.Context, sourceKey, destKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[sourceKey]
	if !ok {
		return fmt.Errorf("objectstore: %s not found", sourceKey)
	}
	s.objects[destKey] = obj
	return nil
}

func (s *Store) Move(ctx context.Context, sourceKey, destKey string) error {
	if err := s.Copy(ctx, sourceKey, destKey); err != nil {
		return err
	}
	return s.Delete(ctx, sourceKey)
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *Store) PresignPut(_ context.Context, key, _ string, expiresIn time.Duration) (objectstore.PresignedRequest, error) {
	expiresIn = objectstore.ClampPutExpiry(expiresIn)
	return objectstore.PresignedRequest{
		Bucket: s.bucket,
		Key:    key,
		URL:    fmt.Sprintf("https://fake-s3.test/%s/%s?method=PUT&expires=%d", s.bucket, key, int(expiresIn.Seconds())),
	}, nil
}

func (s *Store) PresignGet(_ context.Context, key string, expiresIn time.Duration) (objectstore.PresignedRequest, error) {
	expiresIn = objectstore.ClampGetExpiry(expiresIn)
	return objectstore.PresignedRequest{
		Bucket: s.bucket,
		Key:    key,
		URL:    fmt.Sprintf("https://fake-s3.test/%s/%s?method=GET&expires=%d", s.bucket, key, int(expiresIn.Seconds())),
	}, nil
}
