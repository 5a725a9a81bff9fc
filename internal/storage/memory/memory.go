// Package memory provides an in-memory storage backend.
// It is safe for concurrent use and is intended for tests and local development.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fruitsalade/cloudstore/internal/storage"
)

type object struct {
	data        []byte
	contentType string
	modTime     time.Time
}

// Backend stores objects in a map keyed by object key.
type Backend struct {
	mu      sync.RWMutex
	objects map[string]object
}

// New creates an empty in-memory backend.
func New() *Backend {
	return &Backend{objects: make(map[string]object)}
}

// PutObject stores a copy of body under key.
func (b *Backend) PutObject(_ context.Context, key string, body io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("read body for %s: %w", key, err)
	}
	if size >= 0 && int64(len(data)) != size {
		return fmt.Errorf("size mismatch for %s: expected %d bytes, got %d", key, size, len(data))
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = object{data: data, contentType: contentType, modTime: time.Now()}
	return nil
}

// HeadObject returns metadata for key.
func (b *Backend) HeadObject(_ context.Context, key string) (storage.ObjectInfo, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, ok := b.objects[key]
	if !ok {
		return storage.ObjectInfo{}, &storage.NotFoundError{Key: key}
	}
	return info(key, obj), nil
}

// GetObject returns a reader over a snapshot of the object's content.
func (b *Backend) GetObject(_ context.Context, key string) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, ok := b.objects[key]
	if !ok {
		return nil, &storage.NotFoundError{Key: key}
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

// ListObjects returns the keys under prefix.
func (b *Backend) ListObjects(_ context.Context, prefix string, recursive bool) ([]storage.ObjectInfo, error) {
	b.mu.RLock()
	var out []storage.ObjectInfo
	for key, obj := range b.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, info(key, obj))
		}
	}
	b.mu.RUnlock()

	if !recursive {
		return storage.FoldByDelimiter(prefix, out), nil
	}
	storage.SortByKey(out)
	return out, nil
}

// CopyObject duplicates srcKey at dstKey.
func (b *Backend) CopyObject(_ context.Context, srcKey, dstKey string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	obj, ok := b.objects[srcKey]
	if !ok {
		return &storage.NotFoundError{Key: srcKey}
	}
	data := make([]byte, len(obj.data))
	copy(data, obj.data)
	b.objects[dstKey] = object{data: data, contentType: obj.contentType, modTime: time.Now()}
	return nil
}

// DeleteObject removes key if present.
func (b *Backend) DeleteObject(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	return nil
}

// Len returns the number of stored objects.
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.objects)
}

// Type returns "memory".
func (b *Backend) Type() string { return "memory" }

// Close is a no-op.
func (b *Backend) Close() error { return nil }

func info(key string, obj object) storage.ObjectInfo {
	return storage.ObjectInfo{
		Key:          key,
		Size:         int64(len(obj.data)),
		ContentType:  obj.contentType,
		LastModified: obj.modTime,
	}
}
