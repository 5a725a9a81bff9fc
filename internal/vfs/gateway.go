package vfs

import (
	"context"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/cloudstore/internal/logging"
	"github.com/fruitsalade/cloudstore/internal/metrics"
	"github.com/fruitsalade/cloudstore/internal/storage"
)

// Gateway is a thin synchronous client over a storage.Backend. Every
// backend failure is returned as a *StorageError tagged with the op the
// caller supplied. Nothing is retried.
type Gateway struct {
	backend storage.Backend
}

// NewGateway wraps backend.
func NewGateway(backend storage.Backend) *Gateway {
	return &Gateway{backend: backend}
}

// Backend returns the underlying backend.
func (g *Gateway) Backend() storage.Backend {
	return g.backend
}

func (g *Gateway) observe(primitive string, start time.Time, err error) {
	metrics.RecordStorageOperation(g.backend.Type(), primitive, time.Since(start), err == nil)
}

// PutMarker writes a zero-length directory marker. Overwrites are harmless.
func (g *Gateway) PutMarker(ctx context.Context, op, key string) error {
	start := time.Now()
	err := g.backend.PutObject(ctx, key, strings.NewReader(""), 0, storage.DirectoryContentType)
	g.observe("put", start, err)
	if err != nil {
		return &StorageError{Op: op, Key: key, Err: err}
	}
	logging.Debug("put marker", zap.String("key", key))
	return nil
}

// PutBytes writes file content, replacing any existing object.
func (g *Gateway) PutBytes(ctx context.Context, op, key string, body io.Reader, size int64, contentType string) error {
	start := time.Now()
	err := g.backend.PutObject(ctx, key, body, size, contentType)
	g.observe("put", start, err)
	if err != nil {
		return &StorageError{Op: op, Key: key, Err: err}
	}
	logging.Debug("put object", zap.String("key", key), zap.Int64("size", size))
	return nil
}

// Exists reports whether key is present. A failed stat counts as absent.
func (g *Gateway) Exists(ctx context.Context, key string) bool {
	start := time.Now()
	_, err := g.backend.HeadObject(ctx, key)
	g.observe("head", start, err)
	if err != nil && !storage.IsNotFound(err) {
		logging.WithContext(ctx).Warn("stat failed, treating as absent", zap.String("key", key), zap.Error(err))
	}
	return err == nil
}

// Size returns the byte length of key.
func (g *Gateway) Size(ctx context.Context, key string) (int64, error) {
	start := time.Now()
	info, err := g.backend.HeadObject(ctx, key)
	g.observe("head", start, err)
	if err != nil {
		return 0, &StorageError{Op: OpGetSize, Key: key, Err: err}
	}
	return info.Size, nil
}

// ListChildren lists the direct children of prefix, excluding prefix's own marker.
func (g *Gateway) ListChildren(ctx context.Context, op, prefix string) ([]storage.ObjectInfo, error) {
	return g.list(ctx, op, prefix, false)
}

// ListAll lists every descendant of prefix, excluding prefix's own marker.
func (g *Gateway) ListAll(ctx context.Context, op, prefix string) ([]storage.ObjectInfo, error) {
	return g.list(ctx, op, prefix, true)
}

func (g *Gateway) list(ctx context.Context, op, prefix string, recursive bool) ([]storage.ObjectInfo, error) {
	start := time.Now()
	objects, err := g.backend.ListObjects(ctx, prefix, recursive)
	g.observe("list", start, err)
	if err != nil {
		return nil, &StorageError{Op: op, Key: prefix, Err: err}
	}

	out := objects[:0]
	for _, obj := range objects {
		if obj.Key != prefix {
			out = append(out, obj)
		}
	}
	return out, nil
}

// Copy copies one object server-side.
func (g *Gateway) Copy(ctx context.Context, op, srcKey, dstKey string) error {
	start := time.Now()
	err := g.backend.CopyObject(ctx, srcKey, dstKey)
	g.observe("copy", start, err)
	if err != nil {
		return &StorageError{Op: op, Key: srcKey, Err: err}
	}
	logging.Debug("copy object", zap.String("src", srcKey), zap.String("dst", dstKey))
	return nil
}

// Remove deletes one object. A missing object is not an error.
func (g *Gateway) Remove(ctx context.Context, op, key string) error {
	start := time.Now()
	err := g.backend.DeleteObject(ctx, key)
	g.observe("delete", start, err)
	if err != nil {
		return &StorageError{Op: op, Key: key, Err: err}
	}
	logging.Debug("delete object", zap.String("key", key))
	return nil
}

// Open returns a reader over key's content.
func (g *Gateway) Open(ctx context.Context, op, key string) (io.ReadCloser, error) {
	start := time.Now()
	rc, err := g.backend.GetObject(ctx, key)
	g.observe("get", start, err)
	if err != nil {
		return nil, &StorageError{Op: op, Key: key, Err: err}
	}
	return rc, nil
}
